package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/unbound-force/dri/internal/taxonomy"
)

// flexString accepts a JSON string, number, boolean or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	case len(data) > 0 && (data[0] == '{' || data[0] == '['):
		return fmt.Errorf("expected a scalar, got %s", kindOf(data))
	default:
		*f = flexString(data)
	}
	return nil
}

// flexBool accepts a JSON boolean, a yes/no style string, or a number.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	switch strings.ToLower(string(s)) {
	case "true", "yes", "y", "1":
		*f = true
	case "", "false", "no", "n", "0":
		*f = false
	default:
		n, err := strconv.ParseFloat(string(s), 64)
		if err != nil {
			return fmt.Errorf("cannot read %q as a boolean", s)
		}
		*f = n != 0
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return fmt.Errorf("cannot read %q as a number", s)
	}
	*f = flexInt(n)
	return nil
}

func kindOf(data []byte) string {
	if len(data) > 0 && data[0] == '[' {
		return "an array"
	}
	return "an object"
}

// Summary is the optional summary block of a completion.
type Summary struct {
	IndicatorsDetected  int    `json:"indicators_detected"`
	IndicatorsCleared   int    `json:"indicators_cleared"`
	RequiresReviewCount int    `json:"requires_review_count"`
	AnalysisNotes       string `json:"analysis_notes,omitempty"`
}

type wireSummary struct {
	IndicatorsDetected  flexInt    `json:"indicators_detected"`
	DeficitsDetected    flexInt    `json:"deficits_detected"`
	IndicatorsCleared   flexInt    `json:"indicators_cleared"`
	RequiresReviewCount flexInt    `json:"requires_review_count"`
	AnalysisNotes       flexString `json:"analysis_notes"`
}

// document is the top-level completion object.
type document struct {
	Summary    json.RawMessage `json:"summary"`
	Indicators json.RawMessage `json:"indicators"`
	Deficits   json.RawMessage `json:"deficits"`
}

type wireRecord struct {
	DeficitID      flexString      `json:"deficit_id"`
	IndicatorID    flexString      `json:"indicator_id"`
	ID             flexString      `json:"id"`
	DeficitName    flexString      `json:"deficit_name"`
	IndicatorName  flexString      `json:"indicator_name"`
	Name           flexString      `json:"name"`
	Confidence     flexString      `json:"confidence"`
	Reasoning      flexString      `json:"reasoning"`
	Evidence       json.RawMessage `json:"evidence"`
	TemporalStatus json.RawMessage `json:"temporal_status"`
	RequiresReview flexBool        `json:"requires_review"`
	Detected       *flexBool       `json:"detected"`
}

type wireEvidence struct {
	SourceTable flexString `json:"source_table"`
	Source      flexString `json:"source"`
	RecordID    flexString `json:"record_id"`
	EventDate   flexString `json:"event_date"`
	Date        flexString `json:"date"`
	TextExcerpt flexString `json:"text_excerpt"`
	Excerpt     flexString `json:"excerpt"`
	Text        flexString `json:"text"`
}

type wireTemporal struct {
	Type            flexString `json:"type"`
	OnsetDate       flexString `json:"onset_date"`
	PersistenceRule flexString `json:"persistence_rule"`
}

func first(values ...flexString) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// decodeSummary reads the summary block. A missing or unreadable
// summary yields nil.
func decodeSummary(raw json.RawMessage) (*Summary, error) {
	if isNull(raw) {
		return nil, nil
	}
	var w wireSummary
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	detected := w.IndicatorsDetected
	if detected == 0 {
		detected = w.DeficitsDetected
	}
	return &Summary{
		IndicatorsDetected:  int(detected),
		IndicatorsCleared:   int(w.IndicatorsCleared),
		RequiresReviewCount: int(w.RequiresReviewCount),
		AnalysisNotes:       string(w.AnalysisNotes),
	}, nil
}

// errNotDetected marks an entry the model listed with detected false.
var errNotDetected = errors.New("reported as not detected")

// decodeRecords turns the indicators array into records. Each entry
// is decoded on its own; an entry that cannot be read, has no id or is
// marked not detected is skipped with a warning.
func decodeRecords(raw json.RawMessage) ([]taxonomy.LLMIndicatorRecord, []string) {
	records := []taxonomy.LLMIndicatorRecord{}
	if isNull(raw) {
		return records, []string{"completion has no indicators list"}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return records, []string{fmt.Sprintf("indicators is not a list: %v", err)}
	}

	var warnings []string
	for i, entry := range entries {
		rec, recWarnings, err := decodeRecord(entry)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("indicators[%d] skipped: %v", i, err))
			continue
		}
		for _, w := range recWarnings {
			warnings = append(warnings, fmt.Sprintf("indicators[%d] %s", i, w))
		}
		records = append(records, rec)
	}
	return records, warnings
}

// decodeRecord reads one entry. A malformed evidence or
// temporal_status value is replaced by its empty form and reported in
// the returned warnings; the record itself is kept.
func decodeRecord(entry json.RawMessage) (taxonomy.LLMIndicatorRecord, []string, error) {
	entry = bytes.TrimSpace(entry)
	if len(entry) > 0 && entry[0] == '"' {
		var id string
		if err := json.Unmarshal(entry, &id); err != nil {
			return taxonomy.LLMIndicatorRecord{}, nil, err
		}
		if id = strings.TrimSpace(id); id == "" {
			return taxonomy.LLMIndicatorRecord{}, nil, fmt.Errorf("empty id")
		}
		return taxonomy.LLMIndicatorRecord{
			IndicatorID: id,
			Confidence:  taxonomy.ConfidenceUnknown,
			Evidence:    []taxonomy.Evidence{},
		}, nil, nil
	}

	var w wireRecord
	if err := json.Unmarshal(entry, &w); err != nil {
		return taxonomy.LLMIndicatorRecord{}, nil, err
	}
	id := first(w.DeficitID, w.IndicatorID, w.ID)
	if id == "" {
		return taxonomy.LLMIndicatorRecord{}, nil, fmt.Errorf("no indicator id")
	}
	if w.Detected != nil && !bool(*w.Detected) {
		return taxonomy.LLMIndicatorRecord{}, nil, fmt.Errorf("%s %w", id, errNotDetected)
	}

	var warnings []string
	evidence, err := decodeEvidence(w.Evidence)
	if err != nil {
		evidence = []taxonomy.Evidence{}
		warnings = append(warnings, fmt.Sprintf("%s evidence ignored: %v", id, err))
	}
	temporal, err := decodeTemporal(w.TemporalStatus)
	if err != nil {
		temporal = taxonomy.TemporalStatus{}
		warnings = append(warnings, fmt.Sprintf("%s temporal_status ignored: %v", id, err))
	}

	return taxonomy.LLMIndicatorRecord{
		IndicatorID:    id,
		IndicatorName:  first(w.DeficitName, w.IndicatorName, w.Name),
		Confidence:     taxonomy.ParseConfidence(string(w.Confidence)),
		Reasoning:      string(w.Reasoning),
		Evidence:       evidence,
		TemporalStatus: temporal,
		RequiresReview: bool(w.RequiresReview),
	}, warnings, nil
}

// decodeEvidence accepts a list of evidence objects, a single object,
// or plain excerpt strings.
func decodeEvidence(raw json.RawMessage) ([]taxonomy.Evidence, error) {
	out := []taxonomy.Evidence{}
	if isNull(raw) {
		return out, nil
	}

	var items []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
	} else {
		items = []json.RawMessage{trimmed}
	}

	for _, item := range items {
		item = bytes.TrimSpace(item)
		if isNull(item) {
			continue
		}
		if item[0] != '{' {
			var s flexString
			if err := json.Unmarshal(item, &s); err != nil {
				return nil, err
			}
			if s != "" {
				out = append(out, taxonomy.Evidence{Excerpt: string(s)})
			}
			continue
		}
		var w wireEvidence
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, err
		}
		out = append(out, taxonomy.Evidence{
			Source:   first(w.SourceTable, w.Source),
			RecordID: string(w.RecordID),
			Date:     first(w.EventDate, w.Date),
			Excerpt:  first(w.TextExcerpt, w.Excerpt, w.Text),
		})
	}
	return out, nil
}

func decodeTemporal(raw json.RawMessage) (taxonomy.TemporalStatus, error) {
	if isNull(raw) {
		return taxonomy.TemporalStatus{}, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] != '{' {
		var s flexString
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return taxonomy.TemporalStatus{}, err
		}
		return taxonomy.TemporalStatus{Type: string(s)}, nil
	}
	var w wireTemporal
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return taxonomy.TemporalStatus{}, err
	}
	return taxonomy.TemporalStatus{
		Type:            string(w.Type),
		OnsetDate:       string(w.OnsetDate),
		PersistenceRule: string(w.PersistenceRule),
	}, nil
}
