// Package scaffold writes a starter DRI configuration and lexicon to a
// target project directory.
package scaffold

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/lexicon"
)

// LexiconFileName is the lexicon written next to the configuration.
const LexiconFileName = "lexicon.yaml"

// Options configures the scaffold operation.
type Options struct {
	// TargetDir is the root directory to scaffold into.
	// Defaults to the current working directory.
	TargetDir string

	// Force overwrites existing files when true.
	// When false, existing files are skipped.
	Force bool

	// Version is the dri version string to embed in the
	// version marker comment. Defaults to "dev".
	Version string

	// Stdout is the writer for summary output.
	// Defaults to os.Stdout.
	Stdout io.Writer
}

// Result reports what the scaffold operation did.
type Result struct {
	// Created lists files that were written for the first time.
	Created []string

	// Skipped lists files that already existed and were not
	// overwritten (Force was false).
	Skipped []string

	// Overwritten lists files that existed and were replaced
	// (Force was true).
	Overwritten []string
}

// versionMarker returns the version marker comment to prepend to
// each scaffolded file.
func versionMarker(version string) string {
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("# scaffolded by dri %s\n", version)
}

// file is one scaffolded output.
type file struct {
	name    string
	content func() ([]byte, error)
}

// files lists the scaffolded outputs in write order.
func files() []file {
	return []file{
		{name: config.FileName, content: ConfigYAML},
		{name: LexiconFileName, content: func() ([]byte, error) { return lexicon.DefaultYAML(), nil }},
	}
}

// ConfigYAML renders the default configuration, pointing at the
// scaffolded lexicon.
func ConfigYAML() ([]byte, error) {
	cfg := config.DefaultConfig()
	cfg.Lexicon = LexiconFileName
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("rendering default config: %w", err)
	}
	return out, nil
}

// Run writes .dri.yaml and lexicon.yaml into the target directory.
// Each file is prepended with a version marker comment:
//
//	# scaffolded by dri vX.Y.Z
//
// If a file already exists and opts.Force is false, the file is
// skipped. If opts.Force is true, the file is overwritten.
func Run(opts Options) (*Result, error) {
	if opts.TargetDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		opts.TargetDir = cwd
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if err := os.MkdirAll(opts.TargetDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", opts.TargetDir, err)
	}

	result := &Result{}
	marker := versionMarker(opts.Version)

	for _, f := range files() {
		outPath := filepath.Join(opts.TargetDir, f.name)

		_, statErr := os.Stat(outPath)
		exists := statErr == nil

		if exists && !opts.Force {
			result.Skipped = append(result.Skipped, f.name)
			continue
		}

		content, err := f.content()
		if err != nil {
			return nil, err
		}

		out := append([]byte(marker), content...)
		if err := os.WriteFile(outPath, out, 0o644); err != nil {
			return nil, fmt.Errorf("creating %s: %w", f.name, err)
		}

		if exists {
			result.Overwritten = append(result.Overwritten, f.name)
		} else {
			result.Created = append(result.Created, f.name)
		}
	}

	printSummary(opts.Stdout, result)
	return result, nil
}

// printSummary writes a human-readable summary of the scaffold
// operation to w.
func printSummary(w io.Writer, r *Result) {
	fmt.Fprintln(w, "DRI project initialized:")

	for _, f := range r.Created {
		fmt.Fprintf(w, "  created: %s\n", f)
	}
	for _, f := range r.Skipped {
		fmt.Fprintf(w, "  skipped: %s (already exists)\n", f)
	}
	for _, f := range r.Overwritten {
		fmt.Fprintf(w, "  overwritten: %s\n", f)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Edit %s to tune indicators, then run dri compare or dri batch.\n", LexiconFileName)

	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "%d file(s) skipped (use --force to overwrite).\n", len(r.Skipped))
	}
}
