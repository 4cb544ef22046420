package matcher

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/lexicon"
	"github.com/unbound-force/dri/internal/taxonomy"
)

func testLexicon(t *testing.T, defs ...taxonomy.IndicatorDefinition) *lexicon.Lexicon {
	t.Helper()
	lex, err := lexicon.New(defs)
	if err != nil {
		t.Fatalf("building lexicon: %v", err)
	}
	return lex
}

func defaultOpts() Options {
	return DefaultOptions(config.DefaultNegationBefore, config.DefaultNegationAfter)
}

func mustMatcher(t *testing.T, lex *lexicon.Lexicon, opts Options) *Matcher {
	t.Helper()
	m, err := New(lex, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestMatch_SonHasAsthmaExample(t *testing.T) {
	lex := testLexicon(t,
		taxonomy.IndicatorDefinition{ID: "RESP_02", Name: "Asthma", Keywords: []string{"asthma"}},
		taxonomy.IndicatorDefinition{ID: "INF_01", Name: "Infection Current",
			Keywords: []string{"infection", "antibiotic", "cellulitis"}},
	)
	m := mustMatcher(t, lex, defaultOpts())

	text := "patient's son has asthma, no signs of infection, started antibiotics for cellulitis"
	res := m.Match(text)

	if !res["RESP_02"].Detected {
		t.Error("RESP_02 should be detected (no family-relation disambiguation)")
	}
	inf := res["INF_01"]
	if !inf.Detected {
		t.Fatal("INF_01 should be detected")
	}
	if diff := cmp.Diff([]string{"antibiotics", "cellulitis"}, inf.MatchedKeywords); diff != "" {
		t.Errorf("INF_01 matched keywords (-want +got):\n%s", diff)
	}
	if inf.MatchCount != 2 {
		t.Errorf("INF_01 match count = %d, want 2", inf.MatchCount)
	}
	for _, s := range inf.Snippets {
		if strings.Contains(s, "patient s") {
			t.Errorf("snippet should come from original text, got %q", s)
		}
	}
}

func TestMatch_WholeWordOnly(t *testing.T) {
	lex := testLexicon(t, taxonomy.IndicatorDefinition{
		ID: "CARD_02", Name: "Atrial Fibrillation", Keywords: []string{"af"},
	})
	m := mustMatcher(t, lex, defaultOpts())

	if m.Match("reviewed after lunch, safe transfer")["CARD_02"].Detected {
		t.Error(`"af" must not match inside "after" or "safe"`)
	}
	if !m.Match("known AF on warfarin")["CARD_02"].Detected {
		t.Error(`"af" should match the whole word "AF"`)
	}
}

func TestMatch_ShortKeywordsSkipped(t *testing.T) {
	lex := testLexicon(t, taxonomy.IndicatorDefinition{
		ID: "X", Name: "Short", Keywords: []string{"a", "b", " c "},
	})
	m := mustMatcher(t, lex, defaultOpts())

	for _, text := range []string{"a b c", "a", "c. b, a!", strings.Repeat("a ", 100)} {
		if m.Match(text)["X"].Detected {
			t.Errorf("sub-2-character keywords must never match, text %q", text)
		}
	}
}

func TestMatch_Negation(t *testing.T) {
	lex := testLexicon(t, taxonomy.IndicatorDefinition{
		ID: "PAIN", Name: "Pain", Keywords: []string{"chest pain"},
	})
	m := mustMatcher(t, lex, defaultOpts())

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain", "complains of chest pain overnight", true},
		{"denies before", "denies chest pain", false},
		{"negative for", "ecg negative for chest pain changes", false},
		{"ruled out before", "ruled out chest pain of cardiac origin", false},
		{"absent after", "chest pain absent today", false},
		{"nad after", "chest pain nad", false},
		{"n/a after", "chest pain: n/a", false},
		{"cue outside window", "no " + strings.Repeat("x", 60) + " chest pain", true},
		{"cue inside larger word", "nobody noted chest pain", true},
		{"cue in previous clause", "no fever. chest pain on exertion", true},
		{"case insensitive negation", "DENIES CHEST PAIN", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.text)["PAIN"].Detected; got != tt.want {
				t.Errorf("Match(%q) detected = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatch_ClauseScopingDisabled(t *testing.T) {
	lex := testLexicon(t, taxonomy.IndicatorDefinition{
		ID: "INF", Name: "Infection", Keywords: []string{"antibiotic"},
	})
	opts := defaultOpts()
	opts.ClauseScoped = false
	m := mustMatcher(t, lex, opts)

	if m.Match("no fever, antibiotics started")["INF"].Detected {
		t.Error("without clause scoping a cue in the previous clause should negate")
	}
}

func TestMatch_EveryOccurrenceNegated(t *testing.T) {
	lex := testLexicon(t, taxonomy.IndicatorDefinition{
		ID: "FALL", Name: "Falls", Keywords: []string{"fall", "falls"},
	})
	m := mustMatcher(t, lex, defaultOpts())

	res := m.Match("no falls this month. denies fall. fall ruled out")
	if res["FALL"].Detected {
		t.Errorf("every occurrence is negated, got %+v", res["FALL"])
	}
}

func TestMatch_EmptyKeywordsNeverDetected(t *testing.T) {
	lex := testLexicon(t,
		taxonomy.IndicatorDefinition{ID: "EMPTY", Name: "Empty"},
		taxonomy.IndicatorDefinition{ID: "FULL", Name: "Full", Keywords: []string{"sepsis"}},
	)
	m := mustMatcher(t, lex, defaultOpts())

	res := m.Match("sepsis, sepsis and more sepsis")
	if res["EMPTY"].Detected {
		t.Error("indicator without keywords must not be detected")
	}
	if _, ok := res["EMPTY"]; !ok {
		t.Error("every lexicon indicator should have a result")
	}
	if got := res["FULL"].MatchCount; got != 3 {
		t.Errorf("match count = %d, want 3", got)
	}
	if diff := cmp.Diff([]string{"sepsis"}, res["FULL"].MatchedKeywords); diff != "" {
		t.Errorf("matched keywords should be deduplicated (-want +got):\n%s", diff)
	}
}

func TestMatch_KeywordOrderIndependent(t *testing.T) {
	text := "Cellulitis treated. Infection improving, antibiotic course ends Friday."
	a := mustMatcher(t, testLexicon(t, taxonomy.IndicatorDefinition{
		ID: "INF", Keywords: []string{"infection", "antibiotic", "cellulitis"},
	}), defaultOpts())
	b := mustMatcher(t, testLexicon(t, taxonomy.IndicatorDefinition{
		ID: "INF", Keywords: []string{"cellulitis", "antibiotic", "infection"},
	}), defaultOpts())

	if diff := cmp.Diff(a.Match(text), b.Match(text)); diff != "" {
		t.Errorf("keyword order changed the result (-a +b):\n%s", diff)
	}
}

func TestMatch_CapsKeywordsAndSnippets(t *testing.T) {
	kws := []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7"}
	lex := testLexicon(t, taxonomy.IndicatorDefinition{ID: "MANY", Keywords: kws})
	m := mustMatcher(t, lex, defaultOpts())

	res := m.Match(strings.Join(kws, " ; "))["MANY"]
	if res.MatchCount != 7 {
		t.Errorf("match count = %d, want 7", res.MatchCount)
	}
	if len(res.MatchedKeywords) != 5 || len(res.Snippets) != 5 {
		t.Errorf("caps not applied: %d keywords, %d snippets",
			len(res.MatchedKeywords), len(res.Snippets))
	}
	if diff := cmp.Diff(kws[:5], res.MatchedKeywords); diff != "" {
		t.Errorf("keywords should follow text order (-want +got):\n%s", diff)
	}
}

func TestMatch_PhraseAcrossWhitespaceAndPunctuation(t *testing.T) {
	lex := testLexicon(t,
		taxonomy.IndicatorDefinition{ID: "HF", Keywords: []string{"Heart Failure"}},
		taxonomy.IndicatorDefinition{ID: "XR", Keywords: []string{"x-ray"}},
	)
	m := mustMatcher(t, lex, defaultOpts())

	res := m.Match("Known heart\n  failure. X-Ray of hip booked.")
	if !res["HF"].Detected {
		t.Error("phrase should match across a line break")
	}
	if !res["XR"].Detected {
		t.Error("punctuated keyword should match its punctuated surface form")
	}
}

func TestMatch_SnippetFromOriginalText(t *testing.T) {
	lex := testLexicon(t, taxonomy.IndicatorDefinition{ID: "S", Keywords: []string{"sepsis"}})
	opts := defaultOpts()
	opts.SnippetRadius = 5
	m := mustMatcher(t, lex, opts)

	res := m.Match("Résumé: SEPSIS (Confirmed)")["S"]
	if len(res.Snippets) != 1 {
		t.Fatalf("want 1 snippet, got %v", res.Snippets)
	}
	if res.Snippets[0] != "umé: SEPSIS (Con" {
		t.Errorf("snippet = %q, want original casing and punctuation", res.Snippets[0])
	}
}

func TestMatch_ConcurrentUse(t *testing.T) {
	m := mustMatcher(t, lexicon.Default(), defaultOpts())
	text := "Resident had a fall last week; new walker. Type 2 diabetes, on metformin."
	want := m.Match(text)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if diff := cmp.Diff(want, m.Match(text)); diff != "" {
				t.Errorf("concurrent result differs:\n%s", diff)
			}
		}()
	}
	wg.Wait()
}

func TestDetectedIDs_Sorted(t *testing.T) {
	got := DetectedIDs(map[string]taxonomy.DetectionResult{
		"D003": {Detected: true},
		"D001": {Detected: true},
		"D002": {Detected: false},
	})
	if diff := cmp.Diff([]string{"D001", "D003"}, got); diff != "" {
		t.Errorf("DetectedIDs (-want +got):\n%s", diff)
	}
}

func TestNew_RejectsBadOptions(t *testing.T) {
	opts := defaultOpts()
	opts.MaxMatches = 0
	if _, err := New(lexicon.Default(), opts); !taxonomy.IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}
