package subjects

import (
	"path/filepath"
	"strings"

	"github.com/unbound-force/dri/internal/config"
)

// Filter returns true if the given relative path should be considered
// by a directory scan, based on the include/exclude patterns in cfg.
//
// Logic:
//  1. If include patterns are set, the file must match at least one.
//  2. If the file matches any exclude pattern, it is excluded.
//  3. Otherwise, the file is included.
func Filter(rel string, cfg config.ScanConfig) bool {
	rel = filepath.ToSlash(rel)

	if len(cfg.Include) > 0 {
		matched := false
		for _, pattern := range cfg.Include {
			if matchGlob(pattern, rel) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return !excluded(rel, cfg)
}

// excluded reports whether rel matches any exclude pattern. Scan
// prunes directories with it, leaving include patterns to files.
func excluded(rel string, cfg config.ScanConfig) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range cfg.Exclude {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

// matchGlob matches a path against a glob pattern. Besides
// filepath.Match syntax it supports "dir/**" prefixes, and patterns
// without a slash are also tried against the base name.
func matchGlob(pattern, rel string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	}

	matched, err := filepath.Match(pattern, rel)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	if !strings.Contains(pattern, "/") {
		matched, err = filepath.Match(pattern, filepath.Base(rel))
		return err == nil && matched
	}
	return false
}
