// Package engine wires the matcher, response parser, comparison,
// scoring and budget components into one evaluation per subject.
package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/unbound-force/dri/internal/budget"
	"github.com/unbound-force/dri/internal/compare"
	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/lexicon"
	"github.com/unbound-force/dri/internal/matcher"
	"github.com/unbound-force/dri/internal/response"
	"github.com/unbound-force/dri/internal/score"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// Version is the engine version recorded in report metadata. Set by
// build flags.
var Version = "dev"

// Section is one source of clinical text for a subject.
type Section struct {
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	Text   string `json:"text" yaml:"text"`
}

// Subject is one unit of work: the aggregated clinical text and the
// raw completion a model returned for it.
type Subject struct {
	ID         string    `json:"id" yaml:"id"`
	Sections   []Section `json:"sections" yaml:"sections"`
	Completion string    `json:"completion" yaml:"completion"`

	// Expected holds the reviewer-confirmed indicator ids. Empty means
	// the subject has no ground truth.
	Expected []string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// Text joins the sections into the matcher input.
func (s Subject) Text() string {
	parts := make([]string, 0, len(s.Sections))
	for _, sec := range s.Sections {
		parts = append(parts, sec.Text)
	}
	return strings.Join(parts, "\n\n")
}

// SubjectResult is the full evaluation of one subject.
type SubjectResult struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`

	Context  taxonomy.ContextSizeDecision        `json:"context"`
	Baseline map[string]taxonomy.DetectionResult `json:"baseline"`
	Parse    response.Result                     `json:"parse"`

	Comparison    taxonomy.ComparisonReport `json:"comparison"`
	BaselineScore taxonomy.DRIScore         `json:"baseline_score"`

	// ModelScore is nil when the completion could not be parsed.
	ModelScore *taxonomy.DRIScore `json:"model_score,omitempty"`

	// BaselineTruth and ModelTruth are set only for subjects with
	// ground truth. ModelTruth stays nil when the completion could not
	// be parsed.
	BaselineTruth *taxonomy.GroundTruthCheck `json:"baseline_truth,omitempty"`
	ModelTruth    *taxonomy.GroundTruthCheck `json:"model_truth,omitempty"`

	Warnings []string `json:"warnings"`

	// Error is set when the subject failed outright (unparsable
	// completion, cancellation, or a recovered panic).
	Error string `json:"error,omitempty"`

	// Cancelled is set by the batch runner for subjects that never ran.
	Cancelled bool `json:"cancelled,omitempty"`

	Duration time.Duration `json:"-"`
}

// Failed reports whether the subject produced no model-side data.
func (r *SubjectResult) Failed() bool { return r.Error != "" }

// Unevaluated returns a well-formed failed result for a subject that
// never reached Evaluate, or whose evaluation was abandoned.
func Unevaluated(id, reason string) SubjectResult {
	return SubjectResult{
		ID:       id,
		Baseline: map[string]taxonomy.DetectionResult{},
		Parse: response.Result{
			Status:     response.StatusFailed,
			Method:     response.MethodNone,
			Indicators: []taxonomy.LLMIndicatorRecord{},
			Warnings:   []string{},
			Steps:      []string{},
			Error:      reason,
		},
		Comparison: taxonomy.ComparisonReport{
			Both:    []string{},
			OnlyA:   []string{},
			OnlyB:   []string{},
			Entries: []taxonomy.ComparisonEntry{},
		},
		Warnings: []string{},
		Error:    reason,
	}
}

// Engine evaluates subjects against one lexicon. It is immutable
// after New and safe for concurrent use.
type Engine struct {
	lex       *lexicon.Lexicon
	matcher   *matcher.Matcher
	calc      *score.Calculator
	estimator *budget.Estimator
}

// New builds an Engine from cfg and lex. A total count declared by
// the lexicon overrides the configured one.
func New(cfg *config.Config, lex *lexicon.Lexicon) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if lex == nil {
		lex = lexicon.Default()
	}

	mc := cfg.Matcher
	m, err := matcher.New(lex, matcher.Options{
		Window:           mc.Window,
		SnippetRadius:    mc.SnippetRadius,
		MaxMatches:       mc.MaxMatches,
		MinKeywordLength: mc.MinKeywordLength,
		ClauseScoped:     mc.ClauseScoped,
		Before:           mc.Negation.Before,
		After:            mc.Negation.After,
	})
	if err != nil {
		return nil, err
	}

	calc, err := score.FromConfig(cfg.Scoring, lex.TotalCount())
	if err != nil {
		return nil, err
	}
	if lex.Len() > calc.Total() {
		return nil, &taxonomy.ConfigurationError{
			Field:  "scoring.total_count",
			Reason: fmt.Sprintf("total count %d is smaller than the lexicon (%d indicators)", calc.Total(), lex.Len()),
		}
	}

	est, err := budget.New(budget.FromConfig(cfg.Context))
	if err != nil {
		return nil, err
	}

	return &Engine{lex: lex, matcher: m, calc: calc, estimator: est}, nil
}

// Lexicon returns the engine's lexicon.
func (e *Engine) Lexicon() *lexicon.Lexicon { return e.lex }

// Detect runs the keyword matcher over text.
func (e *Engine) Detect(text string) map[string]taxonomy.DetectionResult {
	return e.matcher.Match(text)
}

// Budget decides the processing mode for sections.
func (e *Engine) Budget(sections ...string) taxonomy.ContextSizeDecision {
	return e.estimator.Estimate(sections...)
}

// Score counts the distinct lexicon ids in ids and scores them. Ids
// the lexicon does not know are returned as warnings and not counted.
func (e *Engine) Score(ids []string) (taxonomy.DRIScore, []string) {
	seen := make(map[string]bool, len(ids))
	var unknown []string
	for _, id := range ids {
		switch {
		case seen[id]:
		case e.lex.Has(id):
			seen[id] = true
		default:
			seen[id] = true
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)

	var warnings []string
	for _, id := range unknown {
		warnings = append(warnings, fmt.Sprintf("indicator %q is not in the lexicon and was not scored", id))
	}

	active := len(seen) - len(unknown)
	s, err := e.calc.Compute(active)
	if err != nil {
		// New guarantees the lexicon fits within the total count.
		warnings = append(warnings, err.Error())
	}
	return s, warnings
}

// Evaluate runs every component over one subject. A completion that
// cannot be parsed is recorded on the result; the baseline side is
// still reported.
func (e *Engine) Evaluate(s Subject) SubjectResult {
	start := time.Now()

	sections := make([]string, len(s.Sections))
	for i, sec := range s.Sections {
		sections[i] = sec.Text
	}
	text := s.Text()

	res := SubjectResult{
		ID:          s.ID,
		Fingerprint: taxonomy.Fingerprint(s.ID, text, s.Completion),
		Context:     e.estimator.Estimate(sections...),
		Baseline:    e.matcher.Match(text),
		Parse:       response.Parse(s.Completion),
		Warnings:    []string{},
	}

	baselineIDs := matcher.DetectedIDs(res.Baseline)
	bs, warnings := e.Score(baselineIDs)
	res.BaselineScore = bs
	res.Warnings = append(res.Warnings, warnings...)

	res.Comparison = compare.Detections(res.Baseline, res.Parse.Indicators, e.lex)

	if len(s.Expected) > 0 {
		bt := compare.GroundTruth(s.Expected, baselineIDs)
		res.BaselineTruth = &bt
	}

	if res.Parse.OK() {
		ms, warnings := e.Score(res.Parse.IDs())
		res.ModelScore = &ms
		res.Warnings = append(res.Warnings, warnings...)
		if len(s.Expected) > 0 {
			mt := compare.GroundTruth(s.Expected, res.Parse.IDs())
			res.ModelTruth = &mt
		}
	} else {
		res.Error = res.Parse.Error
	}
	res.Warnings = append(res.Warnings, res.Parse.Warnings...)

	res.Duration = time.Since(start)
	return res
}
