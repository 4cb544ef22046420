package subjects

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unbound-force/dri/internal/engine"
)

// manifestEntry is one subject as written in a manifest file. Exactly
// one of Sections, Text and TextFile supplies the clinical text; at
// most one of Completion and CompletionFile supplies the completion.
// Expected is optional ground truth.
type manifestEntry struct {
	ID             string           `yaml:"id"`
	Sections       []engine.Section `yaml:"sections"`
	Text           string           `yaml:"text"`
	TextFile       string           `yaml:"text_file"`
	Completion     string           `yaml:"completion"`
	CompletionFile string           `yaml:"completion_file"`

	// Expected lists the reviewer-confirmed indicator ids.
	Expected []string `yaml:"expected"`
}

// manifest accepts either a bare list or {subjects: [...]}.
type manifest struct {
	Subjects []manifestEntry `yaml:"subjects"`
}

// LoadManifest reads a YAML or JSON manifest. Relative text_file and
// completion_file paths are resolved against the manifest's directory.
// Subjects keep manifest order.
func LoadManifest(path string) ([]engine.Subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", path, err)
	}
	subjects, err := ParseManifest(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("manifest %q: %w", path, err)
	}
	return subjects, nil
}

// ParseManifest decodes manifest data. base resolves relative file
// references.
func ParseManifest(data []byte, base string) ([]engine.Subject, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	var entries []manifestEntry
	if len(node.Content) > 0 {
		root := node.Content[0]
		switch root.Kind {
		case yaml.SequenceNode:
			if err := root.Decode(&entries); err != nil {
				return nil, fmt.Errorf("parsing manifest: %w", err)
			}
		case yaml.MappingNode:
			var m manifest
			if err := root.Decode(&m); err != nil {
				return nil, fmt.Errorf("parsing manifest: %w", err)
			}
			entries = m.Subjects
		default:
			return nil, fmt.Errorf("parsing manifest: expected a list of subjects")
		}
	}

	seen := make(map[string]bool, len(entries))
	out := make([]engine.Subject, 0, len(entries))
	for i, e := range entries {
		s, err := e.subject(base)
		if err != nil {
			return nil, fmt.Errorf("subjects[%d]: %w", i, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("subjects[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out, nil
}

func (e manifestEntry) subject(base string) (engine.Subject, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return engine.Subject{}, fmt.Errorf("missing id")
	}
	s := engine.Subject{ID: id}

	sources := 0
	for _, set := range []bool{len(e.Sections) > 0, e.Text != "", e.TextFile != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return s, fmt.Errorf("%q: sections, text and text_file are mutually exclusive", id)
	}

	switch {
	case len(e.Sections) > 0:
		s.Sections = append([]engine.Section(nil), e.Sections...)
	case e.TextFile != "":
		text, err := readRelative(base, e.TextFile)
		if err != nil {
			return s, fmt.Errorf("%q: %w", id, err)
		}
		s.Sections = []engine.Section{{Source: filepath.Base(e.TextFile), Text: text}}
	default:
		s.Sections = []engine.Section{{Text: e.Text}}
	}

	if e.Completion != "" && e.CompletionFile != "" {
		return s, fmt.Errorf("%q: completion and completion_file are mutually exclusive", id)
	}
	for _, id := range e.Expected {
		if id = strings.TrimSpace(id); id != "" {
			s.Expected = append(s.Expected, id)
		}
	}

	s.Completion = e.Completion
	if e.CompletionFile != "" {
		completion, err := readRelative(base, e.CompletionFile)
		if err != nil {
			return s, fmt.Errorf("%q: %w", id, err)
		}
		s.Completion = completion
	}
	return s, nil
}

func readRelative(base, name string) (string, error) {
	if !filepath.IsAbs(name) {
		name = filepath.Join(base, name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
