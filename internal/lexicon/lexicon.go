// Package lexicon loads and validates the table of indicator
// definitions that drives both detection sources.
package lexicon

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unbound-force/dri/internal/taxonomy"
)

//go:embed default.yaml
var defaultLexicon []byte

// DefaultYAML returns the raw built-in lexicon file.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultLexicon...)
}

// Lexicon is a validated, read-only set of indicator definitions.
// It is safe for concurrent use.
type Lexicon struct {
	defs       []taxonomy.IndicatorDefinition
	index      map[string]int
	totalCount int
}

// Keywords is a keyword list that can be written in a lexicon file as
// a YAML sequence, a JSON array string, or a comma-separated string.
type Keywords []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *Keywords) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*k = list
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*k = nil
			return nil
		}
		*k = ParseKeywordString(value.Value)
	default:
		return fmt.Errorf("line %d: keywords must be a list or a string", value.Line)
	}
	return nil
}

// ParseKeywordString splits a stored keyword string. A value that
// starts with "[" is read as a JSON array, falling back to a loose
// bracketed list; anything else is comma-separated.
func ParseKeywordString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return list
		}
		s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// fileIndicator is the on-disk shape of one definition.
type fileIndicator struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Domain    string   `yaml:"domain"`
	Keywords  Keywords `yaml:"keywords"`
	Inclusion string   `yaml:"inclusion"`
	Exclusion string   `yaml:"exclusion"`
}

// file is the on-disk shape of a lexicon. JSON files parse too.
type file struct {
	TotalCount int             `yaml:"total_count"`
	Indicators []fileIndicator `yaml:"indicators"`
}

// New validates defs and builds a Lexicon. Ids are trimmed, blank
// keywords are dropped, and an empty keyword list is allowed. An
// empty or duplicate id is a *taxonomy.ConfigurationError.
func New(defs []taxonomy.IndicatorDefinition) (*Lexicon, error) {
	lex := &Lexicon{
		defs:  make([]taxonomy.IndicatorDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, &taxonomy.ConfigurationError{
				Field:  fmt.Sprintf("indicators[%d].id", i),
				Reason: "id is required",
			}
		}
		if _, dup := lex.index[d.ID]; dup {
			return nil, &taxonomy.ConfigurationError{
				Field:  fmt.Sprintf("indicators[%d].id", i),
				Reason: fmt.Sprintf("duplicate id %q", d.ID),
			}
		}
		d.Keywords = cleanKeywords(d.Keywords)
		lex.index[d.ID] = len(lex.defs)
		lex.defs = append(lex.defs, d)
	}
	return lex, nil
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// Parse reads a lexicon from YAML or JSON bytes.
func Parse(data []byte) (*Lexicon, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lexicon: %w", err)
	}
	if f.TotalCount < 0 {
		return nil, &taxonomy.ConfigurationError{
			Field:  "total_count",
			Reason: fmt.Sprintf("must be positive, got %d", f.TotalCount),
		}
	}

	defs := make([]taxonomy.IndicatorDefinition, len(f.Indicators))
	for i, fi := range f.Indicators {
		defs[i] = taxonomy.IndicatorDefinition{
			ID:        fi.ID,
			Name:      fi.Name,
			Domain:    fi.Domain,
			Keywords:  fi.Keywords,
			Inclusion: fi.Inclusion,
			Exclusion: fi.Exclusion,
		}
	}

	lex, err := New(defs)
	if err != nil {
		return nil, err
	}
	lex.totalCount = f.TotalCount
	return lex, nil
}

// Load reads and validates the lexicon file at path.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon %q: %w", path, err)
	}
	lex, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %q: %w", path, err)
	}
	return lex, nil
}

// Default returns the built-in lexicon.
func Default() *Lexicon {
	lex, err := Parse(defaultLexicon)
	if err != nil {
		panic(fmt.Sprintf("built-in lexicon is invalid: %v", err))
	}
	return lex
}

// Len returns the number of definitions.
func (l *Lexicon) Len() int { return len(l.defs) }

// TotalCount returns the score denominator declared by the lexicon
// file, or 0 when the file did not declare one.
func (l *Lexicon) TotalCount() int { return l.totalCount }

// Get returns the definition for id.
func (l *Lexicon) Get(id string) (taxonomy.IndicatorDefinition, bool) {
	i, ok := l.index[id]
	if !ok {
		return taxonomy.IndicatorDefinition{}, false
	}
	return l.defs[i], true
}

// Has reports whether id is defined.
func (l *Lexicon) Has(id string) bool {
	_, ok := l.index[id]
	return ok
}

// Name returns the display name for id, or "" when unknown.
func (l *Lexicon) Name(id string) string {
	if d, ok := l.Get(id); ok {
		return d.Name
	}
	return ""
}

// IDs returns all ids in lexicon order.
func (l *Lexicon) IDs() []string {
	ids := make([]string, len(l.defs))
	for i, d := range l.defs {
		ids[i] = d.ID
	}
	return ids
}

// Definitions returns a copy of all definitions in lexicon order.
func (l *Lexicon) Definitions() []taxonomy.IndicatorDefinition {
	out := make([]taxonomy.IndicatorDefinition, len(l.defs))
	copy(out, l.defs)
	return out
}
