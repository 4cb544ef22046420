// Package response recovers indicator records from raw model
// completions. Parsing runs an ordered fallback ladder: envelope
// unwrap, fence strip, boundary extraction, direct parse, syntax
// repair and truncation repair. Parse never panics; a completion that
// defeats every step yields a failed Result carrying the raw text.
package response

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/unbound-force/dri/internal/taxonomy"
)

// Status is the outcome of parsing one completion.
type Status string

// Parse outcomes. StatusRepaired is a success whose data may be
// incomplete because the completion was truncated.
const (
	StatusParsed   Status = "parsed"
	StatusRepaired Status = "repaired"
	StatusFailed   Status = "failed"
)

// Method names the ladder step that produced a parse.
type Method string

// Parse methods.
const (
	MethodDirect     Method = "direct"
	MethodSyntax     Method = "syntax_repair"
	MethodTruncation Method = "truncation_repair"
	MethodNone       Method = "none"
)

// IncompleteWarning is attached to every repaired result.
const IncompleteWarning = "response may be incomplete"

// DroppedStringWarning is attached when the completion ended inside a
// string and the partial value was discarded.
const DroppedStringWarning = "completion ended inside a string; the partial value was dropped"

// maxBackoffs bounds how many trailing elements truncation repair may
// drop before giving up.
const maxBackoffs = 8

// Result is the outcome of parsing one completion.
type Result struct {
	Status     Status                        `json:"status"`
	Method     Method                        `json:"method"`
	Summary    *Summary                      `json:"summary,omitempty"`
	Indicators []taxonomy.LLMIndicatorRecord `json:"indicators"`
	Warnings   []string                      `json:"warnings"`

	// Steps lists the ladder steps that changed the text, in order.
	Steps []string `json:"steps"`

	// Raw is the completion exactly as received.
	Raw string `json:"raw,omitempty"`

	// Candidate is the JSON candidate the last parse attempt saw.
	Candidate string `json:"candidate,omitempty"`

	// Err wraps taxonomy.ErrUnparsableResponse when Status is
	// StatusFailed.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the completion yielded data.
func (r *Result) OK() bool { return r.Status != StatusFailed }

// IDs returns the indicator ids in completion order.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Indicators))
	for i, rec := range r.Indicators {
		ids[i] = rec.IndicatorID
	}
	return ids
}

// Parse runs the fallback ladder over raw.
func Parse(raw string) Result {
	res := Result{
		Status:     StatusFailed,
		Method:     MethodNone,
		Indicators: []taxonomy.LLMIndicatorRecord{},
		Warnings:   []string{},
		Steps:      []string{},
		Raw:        raw,
	}

	text := raw
	for i := 0; i < 2; i++ {
		unwrapped, ok := Unwrap(text)
		if !ok {
			break
		}
		text = unwrapped
		res.Steps = append(res.Steps, "envelope_unwrap")
	}

	if stripped := StripFences(text); stripped != strings.TrimSpace(text) {
		res.Steps = append(res.Steps, "fence_strip")
		text = stripped
	}

	candidate, ok := ExtractCandidate(text)
	if !ok {
		return res.fail("", fmt.Errorf("no JSON object in completion"))
	}
	res.Candidate = candidate

	doc, err := decodeDocument(candidate)
	if err == nil {
		return res.succeed(doc, MethodDirect)
	}

	if fixed := RepairSyntax(candidate); fixed != candidate {
		res.Steps = append(res.Steps, "syntax_repair")
		res.Candidate = fixed
		var serr error
		if doc, serr = decodeDocument(fixed); serr == nil {
			return res.succeed(doc, MethodSyntax)
		}
		err = serr
	}

	// Truncation repair sees everything from the first "{" so a cut-off
	// final element is not lost to boundary extraction.
	tail := text[strings.IndexByte(text, '{'):]
	tail = RepairSyntax(tail)
	_, openQuote, _ := scan(tail)
	for attempt := 0; attempt <= maxBackoffs; attempt++ {
		closed, open := RepairTruncation(tail)
		if !open {
			break
		}
		if attempt == 0 {
			res.Steps = append(res.Steps, "truncation_repair")
		}
		res.Candidate = closed
		var terr error
		if doc, terr = decodeDocument(closed); terr == nil {
			res = res.succeed(doc, MethodTruncation)
			res.Status = StatusRepaired
			lead := []string{IncompleteWarning}
			if openQuote >= 0 {
				lead = append(lead, DroppedStringWarning)
			}
			res.Warnings = append(lead, res.Warnings...)
			return res
		}
		err = terr
		var cut bool
		if tail, cut = backOff(tail); !cut {
			break
		}
	}

	return res.fail(res.Candidate, err)
}

func (r Result) fail(candidate string, err error) Result {
	r.Status = StatusFailed
	r.Method = MethodNone
	if candidate != "" {
		r.Candidate = candidate
	}
	r.Err = fmt.Errorf("%w: %v", taxonomy.ErrUnparsableResponse, err)
	r.Error = r.Err.Error()
	return r
}

func (r Result) succeed(doc document, method Method) Result {
	r.Status = StatusParsed
	r.Method = method

	summary, err := decodeSummary(doc.Summary)
	if err != nil {
		r.Warnings = append(r.Warnings, fmt.Sprintf("summary ignored: %v", err))
	}
	r.Summary = summary

	list := doc.Indicators
	if isNull(list) {
		list = doc.Deficits
	}
	records, warnings := decodeRecords(list)
	r.Indicators = records
	r.Warnings = append(r.Warnings, warnings...)
	return r
}

func decodeDocument(candidate string) (document, error) {
	var doc document
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return document{}, err
	}
	return doc, nil
}
