// Package subjects discovers evaluation subjects from a manifest file
// or a directory of text and completion files.
package subjects

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/engine"
)

// File suffixes recognised by Scan. A subject is a text file plus at
// most one completion file sharing its id.
const (
	TextSuffix           = ".txt"
	CompletionJSONSuffix = ".completion.json"
	CompletionTextSuffix = ".completion.txt"
)

// ScanOptions configures a Scan invocation.
type ScanOptions struct {
	// Config provides include/exclude patterns and the scan timeout.
	Config config.ScanConfig

	// RequireCompletion rejects subjects without a completion file
	// instead of evaluating them with an empty completion.
	RequireCompletion bool
}

// DefaultScanOptions returns the scan options of the default config.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{Config: config.DefaultConfig().Batch.Scan}
}

// Scan walks dir and pairs every <id>.txt with <id>.completion.json
// or <id>.completion.txt. Ids are the path of the text file relative
// to dir without its suffix, using forward slashes. Subjects are
// returned sorted by id.
//
// If opts.Config.Timeout is non-zero, the walk is bounded by that
// deadline and a context.DeadlineExceeded error is returned when it
// is hit.
func Scan(dir string, opts ScanOptions) ([]engine.Subject, error) {
	return ScanContext(context.Background(), dir, opts)
}

// ScanContext is Scan bounded by ctx as well as the scan timeout.
func ScanContext(ctx context.Context, dir string, opts ScanOptions) ([]engine.Subject, error) {
	timeout := opts.Config.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	texts := make(map[string]string)
	completions := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return fmt.Errorf("subject scan timed out after %s: %w", timeout, ctxErr)
			}
			return fmt.Errorf("subject scan interrupted: %w", ctxErr)
		}
		if walkErr != nil {
			return walkErr
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && excluded(rel, opts.Config) {
				return filepath.SkipDir
			}
			return nil
		}
		if !Filter(rel, opts.Config) {
			return nil
		}

		switch {
		case strings.HasSuffix(rel, CompletionJSONSuffix):
			return addCompletion(completions, strings.TrimSuffix(rel, CompletionJSONSuffix), path)
		case strings.HasSuffix(rel, CompletionTextSuffix):
			return addCompletion(completions, strings.TrimSuffix(rel, CompletionTextSuffix), path)
		case strings.HasSuffix(rel, TextSuffix):
			texts[strings.TrimSuffix(rel, TextSuffix)] = path
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(texts))
	for id := range texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var orphans []string
	for id := range completions {
		if _, ok := texts[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		return nil, fmt.Errorf("completion without text file: %s", strings.Join(orphans, ", "))
	}

	out := make([]engine.Subject, 0, len(ids))
	for _, id := range ids {
		text, err := os.ReadFile(texts[id])
		if err != nil {
			return nil, fmt.Errorf("subject %q: %w", id, err)
		}

		s := engine.Subject{
			ID:       id,
			Sections: []engine.Section{{Source: filepath.Base(texts[id]), Text: string(text)}},
		}

		if path, ok := completions[id]; ok {
			completion, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("subject %q: %w", id, err)
			}
			s.Completion = string(completion)
		} else if opts.RequireCompletion {
			return nil, fmt.Errorf("subject %q: %w", id, ErrNoCompletion)
		}
		out = append(out, s)
	}
	return out, nil
}

// ErrNoCompletion is returned by Scan when RequireCompletion is set
// and a text file has no completion alongside it.
var ErrNoCompletion = errors.New("no completion file")

func addCompletion(completions map[string]string, id, path string) error {
	if prev, ok := completions[id]; ok {
		return fmt.Errorf("subject %q has two completion files: %s and %s", id, prev, path)
	}
	completions[id] = path
	return nil
}
