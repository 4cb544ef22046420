// Package matcher implements the negation-aware keyword matcher that
// derives baseline indicator detections from clinical text.
package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/unbound-force/dri/internal/lexicon"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// Options configures the matcher.
type Options struct {
	// Window is the number of runes inspected on each side of a
	// match for negation cues. Default: 50.
	Window int

	// SnippetRadius is the number of runes of original text kept on
	// each side of a match in snippets. Default: 30.
	SnippetRadius int

	// MaxMatches caps matched keywords and snippets per indicator.
	// Default: 5.
	MaxMatches int

	// MinKeywordLength skips keywords shorter than this many runes
	// after normalization. Default: 2.
	MinKeywordLength int

	// ClauseScoped cuts negation windows at clause punctuation so a
	// cue in one clause does not negate the next.
	ClauseScoped bool

	// Before and After are the negation cue lists.
	Before []string
	After  []string
}

// DefaultOptions returns the observed defaults with the given cue
// lists.
func DefaultOptions(before, after []string) Options {
	return Options{
		Window:           50,
		SnippetRadius:    30,
		MaxMatches:       5,
		MinKeywordLength: 2,
		ClauseScoped:     true,
		Before:           before,
		After:            after,
	}
}

type keyword struct {
	phrase string
	re     *regexp.Regexp
}

type indicator struct {
	id       string
	name     string
	keywords []keyword
}

// Matcher scans text for every indicator of a lexicon. It is
// immutable after New and safe for concurrent use.
type Matcher struct {
	opts       Options
	indicators []indicator
	before     []*regexp.Regexp
	after      []*regexp.Regexp
}

// New compiles the keyword and cue patterns for lex.
func New(lex *lexicon.Lexicon, opts Options) (*Matcher, error) {
	if opts.MaxMatches < 1 {
		return nil, &taxonomy.ConfigurationError{
			Field:  "matcher.max_matches",
			Reason: fmt.Sprintf("must be >= 1, got %d", opts.MaxMatches),
		}
	}
	if opts.Window < 0 || opts.SnippetRadius < 0 {
		return nil, &taxonomy.ConfigurationError{
			Field:  "matcher.window",
			Reason: "window and snippet radius must be >= 0",
		}
	}

	m := &Matcher{opts: opts}
	for _, def := range lex.Definitions() {
		ind := indicator{id: def.ID, name: def.Name}
		seen := make(map[string]bool)
		for _, kw := range def.Keywords {
			phrase, src := phrasePattern(kw)
			if src == "" || len([]rune(phrase)) < opts.MinKeywordLength || seen[phrase] {
				continue
			}
			seen[phrase] = true
			re, err := regexp.Compile(src + `(?:es|s)?`)
			if err != nil {
				return nil, fmt.Errorf("compiling keyword %q of %s: %w", kw, def.ID, err)
			}
			ind.keywords = append(ind.keywords, keyword{phrase: phrase, re: re})
		}
		m.indicators = append(m.indicators, ind)
	}

	var err error
	if m.before, err = compileCues(opts.Before); err != nil {
		return nil, err
	}
	if m.after, err = compileCues(opts.After); err != nil {
		return nil, err
	}
	return m, nil
}

func compileCues(cues []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	seen := make(map[string]bool)
	for _, c := range cues {
		phrase, src := phrasePattern(c)
		if src == "" || seen[phrase] {
			continue
		}
		seen[phrase] = true
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("compiling negation cue %q: %w", c, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// span is one occurrence in the normalized text.
type span struct {
	start, end int
}

// occurrence is a surviving keyword match.
type occurrence struct {
	span
	surface string
}

// Match returns a DetectionResult for every indicator in the lexicon.
func (m *Matcher) Match(text string) map[string]taxonomy.DetectionResult {
	norm := normalize(text)
	before := cueSpans(m.before, norm.text)
	after := cueSpans(m.after, norm.text)

	results := make(map[string]taxonomy.DetectionResult, len(m.indicators))
	for _, ind := range m.indicators {
		var occs []occurrence
		seen := make(map[span]bool)
		for _, kw := range ind.keywords {
			for _, loc := range findWhole(kw.re, norm.text) {
				sp := span{loc[0], loc[1]}
				if seen[sp] || m.negated(norm, sp, before, after) {
					continue
				}
				seen[sp] = true
				occs = append(occs, occurrence{
					span:    sp,
					surface: strings.Join(strings.Fields(norm.text[sp.start:sp.end]), " "),
				})
			}
		}
		results[ind.id] = m.result(ind, occs, text, norm)
	}
	return results
}

func (m *Matcher) result(ind indicator, occs []occurrence, text string, norm normalized) taxonomy.DetectionResult {
	sort.Slice(occs, func(i, j int) bool {
		if occs[i].start != occs[j].start {
			return occs[i].start < occs[j].start
		}
		return occs[i].surface < occs[j].surface
	})

	res := taxonomy.DetectionResult{
		IndicatorID:     ind.id,
		IndicatorName:   ind.name,
		Detected:        len(occs) > 0,
		MatchCount:      len(occs),
		MatchedKeywords: []string{},
		Snippets:        []string{},
	}
	seen := make(map[string]bool)
	for _, o := range occs {
		if !seen[o.surface] && len(res.MatchedKeywords) < m.opts.MaxMatches {
			seen[o.surface] = true
			res.MatchedKeywords = append(res.MatchedKeywords, o.surface)
		}
		if len(res.Snippets) < m.opts.MaxMatches {
			res.Snippets = append(res.Snippets, m.snippet(text, norm, o.span))
		}
	}
	return res
}

// negated reports whether a cue lies wholly inside the window before
// or after sp.
func (m *Matcher) negated(norm normalized, sp span, before, after []span) bool {
	ws := back(norm.text, sp.start, m.opts.Window)
	we := forward(norm.text, sp.end, m.opts.Window)
	if m.opts.ClauseScoped {
		for _, b := range norm.breaks {
			if b >= ws && b < sp.start {
				ws = b + 1
			}
			if b >= sp.end && b < we {
				we = b
				break
			}
		}
	}
	for _, c := range before {
		if c.start >= ws && c.end <= sp.start {
			return true
		}
	}
	for _, c := range after {
		if c.start >= sp.end && c.end <= we {
			return true
		}
	}
	return false
}

func (m *Matcher) snippet(text string, norm normalized, sp span) string {
	from := norm.orig[back(norm.text, sp.start, m.opts.SnippetRadius)]
	to := norm.orig[forward(norm.text, sp.end, m.opts.SnippetRadius)]
	return strings.Join(strings.Fields(text[from:to]), " ")
}

func cueSpans(res []*regexp.Regexp, text string) []span {
	var out []span
	for _, re := range res {
		for _, loc := range findWhole(re, text) {
			out = append(out, span{loc[0], loc[1]})
		}
	}
	return out
}

// DetectedIDs returns the sorted ids whose result is detected.
func DetectedIDs(results map[string]taxonomy.DetectionResult) []string {
	var ids []string
	for id, r := range results {
		if r.Detected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
