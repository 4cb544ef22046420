// Package report provides output formatters for DRI evaluation
// results in JSON and human-readable text formats.
package report

import (
	"encoding/json"
	"io"

	"github.com/unbound-force/dri/internal/engine"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// SchemaVersion is the version of the JSON report layout.
const SchemaVersion = "1.0.0"

// JSONReport is the top-level JSON output structure.
type JSONReport struct {
	Version  string                 `json:"version"`
	Metadata taxonomy.Metadata      `json:"metadata"`
	Results  []engine.SubjectResult `json:"results"`
}

// WriteJSON writes subject results as formatted JSON to the writer.
func WriteJSON(w io.Writer, results []engine.SubjectResult, meta taxonomy.Metadata) error {
	if results == nil {
		results = []engine.SubjectResult{}
	}
	if meta.Warnings == nil {
		meta.Warnings = []string{}
	}
	return Encode(w, JSONReport{
		Version:  SchemaVersion,
		Metadata: meta,
		Results:  results,
	})
}

// Encode writes any value as indented JSON. It backs the JSON form of
// the single-component commands (detect, parse, budget, lexicon).
func Encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
