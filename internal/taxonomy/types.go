// Package taxonomy defines the indicator type system, core data
// structures, and stable fingerprint generation shared by every DRI
// engine component.
package taxonomy

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Confidence is the confidence label a model attaches to an indicator.
type Confidence string

// Confidence labels. ConfidenceUnknown is the sentinel used when the
// model omitted the field or used a label outside the allowed set.
const (
	ConfidenceLow     Confidence = "low"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceHigh    Confidence = "high"
	ConfidenceUnknown Confidence = "unknown"
)

// SeverityBand is the discrete label derived from a DRI score.
type SeverityBand string

// Severity band constants, lowest to highest.
const (
	SeverityLow      SeverityBand = "Low"
	SeverityMedium   SeverityBand = "Medium"
	SeverityHigh     SeverityBand = "High"
	SeverityVeryHigh SeverityBand = "Very High"
)

// SeverityBands lists every band in ascending order.
var SeverityBands = []SeverityBand{
	SeverityLow, SeverityMedium, SeverityHigh, SeverityVeryHigh,
}

// ContextMode is the processing mode chosen for a subject's context.
type ContextMode string

// Context mode constants.
const (
	ModeStandard ContextMode = "standard"
	ModeLarge    ContextMode = "large"
)

// Partition names the comparison bucket an indicator landed in.
type Partition string

// Partition constants. PartitionOnlyA is "baseline only" and
// PartitionOnlyB is "model only".
const (
	PartitionBoth  Partition = "both"
	PartitionOnlyA Partition = "only_a"
	PartitionOnlyB Partition = "only_b"
)

// IndicatorDefinition is one entry of a lexicon.
type IndicatorDefinition struct {
	// ID is the stable identifier (e.g., "INF_01").
	ID string `json:"id" yaml:"id"`

	// Name is the display name.
	Name string `json:"name" yaml:"name"`

	// Domain is an optional grouping label (e.g., "Infection").
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`

	// Keywords are matched case-insensitively as whole words or
	// phrases.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Inclusion and Exclusion are documentation for reviewers and
	// prompt authors. They are never matched.
	Inclusion string `json:"inclusion,omitempty" yaml:"inclusion,omitempty"`
	Exclusion string `json:"exclusion,omitempty" yaml:"exclusion,omitempty"`
}

// DetectionResult is the keyword matcher's verdict for one indicator.
type DetectionResult struct {
	IndicatorID   string `json:"indicator_id"`
	IndicatorName string `json:"indicator_name"`
	Detected      bool   `json:"detected"`

	// MatchCount is the number of occurrences that survived negation.
	MatchCount int `json:"match_count"`

	// MatchedKeywords are the surface forms that matched, in order of
	// first occurrence, deduplicated and capped.
	MatchedKeywords []string `json:"matched_keywords"`

	// Snippets are excerpts of the original text around each
	// surviving occurrence, capped.
	Snippets []string `json:"snippets"`
}

// Evidence is one citation a model gives for an indicator.
type Evidence struct {
	Source   string `json:"source"`
	RecordID string `json:"record_id,omitempty"`
	Date     string `json:"date,omitempty"`
	Excerpt  string `json:"excerpt"`
}

// TemporalStatus describes how long an indicator persists. All
// fields are free text supplied by the model.
type TemporalStatus struct {
	Type            string `json:"type,omitempty"`
	OnsetDate       string `json:"onset_date,omitempty"`
	PersistenceRule string `json:"persistence_rule,omitempty"`
}

// LLMIndicatorRecord is one indicator a model claims to have found.
type LLMIndicatorRecord struct {
	IndicatorID    string         `json:"indicator_id"`
	IndicatorName  string         `json:"indicator_name"`
	Confidence     Confidence     `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	Evidence       []Evidence     `json:"evidence"`
	TemporalStatus TemporalStatus `json:"temporal_status"`
	RequiresReview bool           `json:"requires_review"`
}

// ComparisonEntry is the audit detail for one indicator id that
// appears on either side of a comparison.
type ComparisonEntry struct {
	IndicatorID   string    `json:"indicator_id"`
	IndicatorName string    `json:"indicator_name"`
	Partition     Partition `json:"partition"`

	// Baseline is the keyword matcher's result. Nil when the id
	// only appears on the model side.
	Baseline *DetectionResult `json:"baseline,omitempty"`

	// Model is the model's record. Nil when the id only appears on
	// the baseline side.
	Model *LLMIndicatorRecord `json:"model,omitempty"`
}

// ComparisonReport reconciles two detection sets. Both, OnlyA and
// OnlyB are sorted, pairwise disjoint, and together equal the union
// of the inputs.
type ComparisonReport struct {
	Both    []string          `json:"both"`
	OnlyA   []string          `json:"only_a"`
	OnlyB   []string          `json:"only_b"`
	Entries []ComparisonEntry `json:"entries"`

	// Agreement is |both| / |a ∪ b|, rounded to 4 digits.
	Agreement float64 `json:"agreement"`
}

// GroundTruthCheck scores one detection source against the indicator
// ids a reviewer confirmed for the subject. All id slices are sorted.
type GroundTruthCheck struct {
	Expected       []string `json:"expected"`
	TruePositives  []string `json:"true_positives"`
	FalsePositives []string `json:"false_positives"`
	Missed         []string `json:"missed"`

	// Match is true when the source found exactly the expected set.
	Match bool `json:"match"`
}

// DRIScore is the normalised active-indicator score for one
// detection source.
type DRIScore struct {
	ActiveCount  int          `json:"active_count"`
	TotalCount   int          `json:"total_count"`
	SeverityBand SeverityBand `json:"severity_band"`

	// Score is the exact ratio active/total. Banding decisions use
	// this value; only the JSON form is rounded.
	Score apd.Decimal `json:"-"`
}

// Display returns the score rounded to 4 decimal digits.
func (s DRIScore) Display() string {
	var d apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp
	if _, err := ctx.Quantize(&d, &s.Score, -4); err != nil {
		return s.Score.Text('f')
	}
	return d.Text('f')
}

// MarshalJSON adds the display score as a JSON number.
func (s DRIScore) MarshalJSON() ([]byte, error) {
	type Alias DRIScore
	return json.Marshal(&struct {
		Alias
		Score json.Number `json:"score"`
	}{
		Alias: Alias(s),
		Score: json.Number(s.Display()),
	})
}

// ContextSizeDecision records the processing budget selected for one
// subject.
type ContextSizeDecision struct {
	TotalContextLength int         `json:"total_context_length"`
	Threshold          int         `json:"threshold"`
	Mode               ContextMode `json:"mode"`
	OutputBudget       int         `json:"output_budget"`
}

// Metadata holds run metadata attached to reports.
type Metadata struct {
	EngineVersion string        `json:"engine_version"`
	LexiconSize   int           `json:"lexicon_size"`
	Timestamp     time.Time     `json:"-"`
	Duration      time.Duration `json:"-"`
	Warnings      []string      `json:"warnings"`
}

// MarshalJSON customizes JSON encoding to use duration_ms and
// ISO 8601 timestamp.
func (m Metadata) MarshalJSON() ([]byte, error) {
	type Alias Metadata
	ts := ""
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(&struct {
		Alias
		DurationMS int64  `json:"duration_ms"`
		Timestamp  string `json:"timestamp,omitempty"`
	}{
		Alias:      Alias(m),
		DurationMS: m.Duration.Milliseconds(),
		Timestamp:  ts,
	})
}

// Fingerprint produces a stable, deterministic id for one subject's
// inputs so results can be diffed across runs. The id is a sha256
// hash truncated to 8 hex characters, prefixed with "sr-".
func Fingerprint(subjectID, text, completion string) string {
	input := fmt.Sprintf("%s\x00%s\x00%s", subjectID, text, completion)
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("sr-%x", hash[:4])
}
