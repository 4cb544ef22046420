package matcher_test

import (
	"testing"
	"unicode/utf8"

	"github.com/unbound-force/dri/internal/matcher"
)

func TestNormalize_PreservesRuneCount(t *testing.T) {
	inputs := []string{
		"Patient's BP 140/90; denies pain.",
		"Résumé: İstanbul transfer",
		"tabs\tand\nnewlines",
		"",
	}
	for _, in := range inputs {
		got, _ := matcher.Normalize(in)
		if utf8.RuneCountInString(got) != utf8.RuneCountInString(in) {
			t.Errorf("Normalize(%q) = %q changes rune count", in, got)
		}
	}
}

func TestNormalize_FoldsCaseAndPunctuation(t *testing.T) {
	got, breaks := matcher.Normalize("No S/S of UTI, -ve.")
	if got != "no s s of uti   ve " {
		t.Errorf("Normalize = %q", got)
	}
	if len(breaks) != 2 {
		t.Errorf("want 2 clause breaks (comma, period), got %v", breaks)
	}
}

func TestPhrasePattern(t *testing.T) {
	tests := []struct {
		in, phrase, pattern string
	}{
		{"Heart  Failure", "heart failure", `heart\s+failure`},
		{"-ve", "ve", "ve"},
		{"n/a", "n a", `n\s+a`},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		phrase, pattern := matcher.PhrasePattern(tt.in)
		if phrase != tt.phrase || pattern != tt.pattern {
			t.Errorf("PhrasePattern(%q) = (%q, %q), want (%q, %q)",
				tt.in, phrase, pattern, tt.phrase, tt.pattern)
		}
	}
}
