package lexicon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/unbound-force/dri/internal/taxonomy"
)

func TestDefault_Has33Indicators(t *testing.T) {
	lex := Default()
	if lex.Len() != 33 {
		t.Fatalf("default lexicon size = %d, want 33", lex.Len())
	}
	if lex.TotalCount() != 33 {
		t.Errorf("default total_count = %d, want 33", lex.TotalCount())
	}
	for _, id := range []string{"CARD_01", "INF_01", "RESP_02", "SKIN_03"} {
		if !lex.Has(id) {
			t.Errorf("default lexicon missing %s", id)
		}
	}
}

func TestDefault_EveryIndicatorHasKeywords(t *testing.T) {
	for _, d := range Default().Definitions() {
		if d.Name == "" {
			t.Errorf("%s has no name", d.ID)
		}
		if len(d.Keywords) == 0 {
			t.Errorf("%s has no keywords", d.ID)
		}
		for _, kw := range d.Keywords {
			if kw != strings.TrimSpace(kw) {
				t.Errorf("%s keyword %q has surrounding space", d.ID, kw)
			}
		}
	}
}

func TestNew_DuplicateIDRejected(t *testing.T) {
	_, err := New([]taxonomy.IndicatorDefinition{
		{ID: "D001", Name: "A", Keywords: []string{"a1"}},
		{ID: "D002", Name: "B"},
		{ID: " D001 ", Name: "C"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
	if !taxonomy.IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
	if !strings.Contains(err.Error(), "indicators[2].id") {
		t.Errorf("error should name the offending entry, got: %s", err)
	}
}

func TestNew_EmptyIDRejected(t *testing.T) {
	_, err := New([]taxonomy.IndicatorDefinition{{ID: "  ", Name: "blank"}})
	if !taxonomy.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestNew_EmptyKeywordsAllowed(t *testing.T) {
	lex, err := New([]taxonomy.IndicatorDefinition{
		{ID: "D001", Name: "Empty", Keywords: []string{" ", ""}},
	})
	if err != nil {
		t.Fatalf("empty keyword list should be allowed: %v", err)
	}
	d, _ := lex.Get("D001")
	if len(d.Keywords) != 0 {
		t.Errorf("blank keywords should be dropped, got %q", d.Keywords)
	}
}

func TestParse_KeywordForms(t *testing.T) {
	data := []byte(`
total_count: 3
indicators:
  - id: A
    name: List
    keywords: [fever, chills]
  - id: B
    name: JSON string
    keywords: '["short of breath", "sob"]'
  - id: C
    name: Comma string
    keywords: "fall, falls , unsteady"
  - id: D
    name: Missing
`)
	lex, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := map[string][]string{
		"A": {"fever", "chills"},
		"B": {"short of breath", "sob"},
		"C": {"fall", "falls", "unsteady"},
		"D": {},
	}
	for id, kws := range want {
		d, ok := lex.Get(id)
		if !ok {
			t.Fatalf("missing %s", id)
		}
		if diff := cmp.Diff(kws, d.Keywords); diff != "" {
			t.Errorf("%s keywords mismatch (-want +got):\n%s", id, diff)
		}
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, lex.IDs()); diff != "" {
		t.Errorf("IDs order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKeywordString(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{`["a", "b c"]`, []string{"a", "b c"}},
		{`[a, 'b']`, []string{"a", "b"}},
		{"x,,y", []string{"x", "y"}},
	}
	for _, tt := range tests {
		got := ParseKeywordString(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseKeywordString(%q) (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestParse_JSONInput(t *testing.T) {
	lex, err := Parse([]byte(`{"indicators":[{"id":"X","name":"Ex","keywords":["x-ray"]}]}`))
	if err != nil {
		t.Fatalf("JSON lexicon should parse: %v", err)
	}
	if lex.Name("X") != "Ex" {
		t.Errorf("Name(X) = %q, want Ex", lex.Name("X"))
	}
	if lex.Name("missing") != "" {
		t.Error("Name of unknown id should be empty")
	}
}

func TestParse_NegativeTotalCount(t *testing.T) {
	_, err := Parse([]byte("total_count: -1\nindicators: []\n"))
	if !taxonomy.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestLoad_WrapsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("indicators:\n  - id: A\n  - id: A\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error should name the file, got: %s", err)
	}
	if !taxonomy.IsConfigurationError(err) {
		t.Errorf("wrapped error should still be a ConfigurationError")
	}
}

func TestDefinitions_ReturnsCopy(t *testing.T) {
	lex := Default()
	defs := lex.Definitions()
	defs[0].Name = "mutated"
	if lex.Definitions()[0].Name == "mutated" {
		t.Error("Definitions must not expose internal storage")
	}
}
