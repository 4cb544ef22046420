package report

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/unbound-force/dri/internal/batch"
	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/engine"
	"github.com/unbound-force/dri/internal/lexicon"
	"github.com/unbound-force/dri/internal/response"
	"github.com/unbound-force/dri/internal/taxonomy"
)

const exampleText = "patient's son has asthma, no signs of infection, started antibiotics for cellulitis"

const exampleCompletion = `{"summary":{"indicators_detected":3},"indicators":[
	{"deficit_id":"INF_01","confidence":"high","evidence":[{"source_table":"progress_notes","text_excerpt":"cellulitis"}]},
	{"deficit_id":"CARD_02"},
	{"deficit_id":"X_99","requires_review":true}
]}`

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(config.DefaultConfig(), lexicon.Default())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func sampleResults(t *testing.T) []engine.SubjectResult {
	t.Helper()
	e := newEngine(t)
	return []engine.SubjectResult{
		e.Evaluate(engine.Subject{
			ID:         "871",
			Sections:   []engine.Section{{Source: "progress_notes", Text: exampleText}},
			Completion: exampleCompletion,
			Expected:   []string{"INF_01", "RESP_02"},
		}),
		e.Evaluate(engine.Subject{
			ID:         "872",
			Sections:   []engine.Section{{Text: "Resident had a fall."}},
			Completion: `{"indicators":[{"deficit_id":"FALL_01"},{"deficit_id":"INF_01"`,
		}),
		e.Evaluate(engine.Subject{
			ID:         "873",
			Sections:   []engine.Section{{Text: "Stable."}},
			Completion: "I could not complete the analysis.",
		}),
		engine.Unevaluated("874", "not evaluated: context canceled"),
	}
}

func sampleMetadata() taxonomy.Metadata {
	return taxonomy.Metadata{
		EngineVersion: "test",
		LexiconSize:   33,
		Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
	}
}

func compileSchema(t *testing.T, schema string) *jsonschema.Schema {
	t.Helper()
	sch, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		t.Fatalf("failed to parse schema JSON: %v", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", sch); err != nil {
		t.Fatalf("failed to add schema resource: %v", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		t.Fatalf("failed to compile schema: %v", err)
	}
	return compiled
}

func validate(t *testing.T, compiled *jsonschema.Schema, data []byte) {
	t.Helper()
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if err := compiled.Validate(inst); err != nil {
		t.Errorf("JSON output does not conform to schema:\n%v", err)
	}
}

func TestWriteJSON_ValidJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleResults(t), sampleMetadata()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var report JSONReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput:\n%s", err, buf.String())
	}
	if report.Version != SchemaVersion {
		t.Errorf("version = %q, want %q", report.Version, SchemaVersion)
	}
	if len(report.Results) != 4 {
		t.Errorf("expected 4 results, got %d", len(report.Results))
	}
}

func TestWriteJSON_ContainsAllFields(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleResults(t), sampleMetadata()); err != nil {
		t.Fatal(err)
	}

	output := buf.String()
	requiredFields := []string{
		`"version"`, `"metadata"`, `"engine_version"`, `"duration_ms": 1500`,
		`"timestamp": "2026-01-02T03:04:05Z"`, `"fingerprint"`, `"context"`,
		`"baseline"`, `"matched_keywords"`, `"parse"`, `"status": "repaired"`,
		`"comparison"`, `"only_a"`, `"only_b"`, `"agreement": 0.25`,
		`"baseline_score"`, `"model_score"`, `"score": 0.0606`,
		`"severity_band": "Low"`,
	}
	for _, field := range requiredFields {
		if !strings.Contains(output, field) {
			t.Errorf("JSON output missing %s", field)
		}
	}
}

func TestWriteJSON_ValidAgainstSchema(t *testing.T) {
	compiled := compileSchema(t, Schema)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleResults(t), sampleMetadata()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	validate(t, compiled, buf.Bytes())
}

func TestWriteJSON_EmptyResults_ValidAgainstSchema(t *testing.T) {
	compiled := compileSchema(t, Schema)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil, taxonomy.Metadata{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"results": []`) {
		t.Errorf("nil results should encode as an empty array:\n%s", buf.String())
	}
	validate(t, compiled, buf.Bytes())
}

func TestBatchSchema_ValidatesBatchOutput(t *testing.T) {
	compiled := compileSchema(t, BatchSchema)

	rpt, err := batch.Run(context.Background(), newEngine(t), []engine.Subject{
		{ID: "a", Sections: []engine.Section{{Text: exampleText}}, Completion: exampleCompletion, Expected: []string{"INF_01"}},
		{ID: "b", Sections: []engine.Section{{Text: "fall"}}, Completion: "garbage"},
	}, batch.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if rpt.Summary.ModelAccuracy == nil {
		t.Fatal("ground truth on subject a should produce model accuracy")
	}
	rpt.Results = append(rpt.Results, engine.Unevaluated("c", "not evaluated"))

	var buf bytes.Buffer
	if err := batch.WriteJSON(&buf, rpt); err != nil {
		t.Fatal(err)
	}
	validate(t, compiled, buf.Bytes())
}

func TestSchema_RejectsBadStatus(t *testing.T) {
	compiled := compileSchema(t, Schema)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleResults(t)[:1], sampleMetadata()); err != nil {
		t.Fatal(err)
	}
	bad := strings.Replace(buf.String(), `"status": "parsed"`, `"status": "maybe"`, 1)
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(bad))
	if err != nil {
		t.Fatal(err)
	}
	if err := compiled.Validate(inst); err == nil {
		t.Error("schema should reject an unknown parse status")
	}
}

func TestWriteText_HasSubjectsAndScores(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleResults(t)); err != nil {
		t.Fatal(err)
	}

	output := buf.String()
	for _, want := range []string{
		"=== 871 ===", "INF_01", "RESP_02", "CARD_02", "X_99",
		"both", "only_a", "only_b",
		"Baseline DRI:", "0.0606", "Agreement:", "0.2500",
		"repaired", "failed", "4 subject(s) evaluated, 2 failed",
		"Baseline vs truth:", "match (2 expected)",
		"Model vs truth:", "1 of 2 found; false positives: CARD_02",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("text output missing %q", want)
		}
	}
}

func TestWriteText_NoIndicators(t *testing.T) {
	e := newEngine(t)
	r := e.Evaluate(engine.Subject{
		ID:         "quiet",
		Sections:   []engine.Section{{Text: "Stable."}},
		Completion: `{"indicators":[]}`,
	})
	var buf bytes.Buffer
	if err := WriteText(&buf, []engine.SubjectResult{r}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No indicators detected on either side") {
		t.Errorf("expected empty comparison message:\n%s", buf.String())
	}
}

// stripANSI removes ANSI escape sequences from text for width measurement.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func assertFits(t *testing.T, out string) {
	t.Helper()
	const maxWidth = 80
	for i, line := range strings.Split(out, "\n") {
		plain := stripANSI(line)
		if width := utf8.RuneCountInString(plain); width > maxWidth {
			t.Errorf("line %d exceeds %d columns (%d runes): %q", i+1, maxWidth, width, plain)
		}
	}
}

func TestWriteText_FitsIn80Columns(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleResults(t)); err != nil {
		t.Fatal(err)
	}
	assertFits(t, buf.String())
}

func TestWriteDetectionsText(t *testing.T) {
	e := newEngine(t)
	detections := e.Detect(exampleText)

	var buf bytes.Buffer
	if err := WriteDetectionsText(&buf, detections, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"INF_01", "RESP_02", "2 of 33 indicator(s) detected"} {
		if !strings.Contains(out, want) {
			t.Errorf("detections output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "FALL_01") {
		t.Error("undetected indicators should be hidden unless all is set")
	}
	assertFits(t, out)

	buf.Reset()
	if err := WriteDetectionsText(&buf, detections, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "FALL_01") {
		t.Error("all should list every indicator")
	}
	assertFits(t, buf.String())
}

func TestWriteDetectionsText_None(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDetectionsText(&buf, newEngine(t).Detect("Stable."), false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No indicators detected.") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteParseText(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		want       []string
	}{
		{
			name:       "parsed",
			completion: exampleCompletion,
			want:       []string{"parsed", "direct", "INF_01", "high", "3 detected", "yes"},
		},
		{
			name:       "repaired",
			completion: "```json\n" + `{"indicators":[{"deficit_id":"FALL_01"},{"deficit_id":"INF_01"`,
			want:       []string{"repaired", "truncation_repair", "fence_strip", "FALL_01", response.IncompleteWarning},
		},
		{
			name:       "failed",
			completion: "no json here",
			want:       []string{"failed", "Error:", "unparsable response"},
		},
		{
			name:       "empty",
			completion: `{"indicators":[]}`,
			want:       []string{"No indicator records."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteParseText(&buf, response.Parse(tt.completion)); err != nil {
				t.Fatal(err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
			assertFits(t, buf.String())
		})
	}
}

func TestWriteBudgetText(t *testing.T) {
	e := newEngine(t)
	var buf bytes.Buffer
	if err := WriteBudgetText(&buf, e.Budget(strings.Repeat("a", 6001))); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"6001 runes", "6000 runes", "large", "16384 tokens"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("budget output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWriteLexiconText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLexiconText(&buf, lexicon.Default()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "INF_01") || !strings.Contains(out, "33 indicator(s), total count 33") {
		t.Errorf("lexicon output incomplete:\n%s", out)
	}
	assertFits(t, out)
}

func TestEncode_Indented(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"a\": 1\n}\n" {
		t.Errorf("Encode = %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"much longer text", 10, "much lo..."},
		{"ééééé", 4, "é..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestStyles(t *testing.T) {
	s := DefaultStyles()
	for _, b := range taxonomy.SeverityBands {
		if got := s.BandStyle(b).Render(string(b)); !strings.Contains(got, string(b)) {
			t.Errorf("BandStyle(%s) lost its text: %q", b, got)
		}
	}
	for _, p := range []string{"both", "only_a", "only_b", "other"} {
		if got := s.PartitionStyle(p).Render(p); !strings.Contains(got, p) {
			t.Errorf("PartitionStyle(%s) lost its text: %q", p, got)
		}
	}
}
