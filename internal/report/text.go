package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/unbound-force/dri/internal/engine"
	"github.com/unbound-force/dri/internal/lexicon"
	"github.com/unbound-force/dri/internal/matcher"
	"github.com/unbound-force/dri/internal/response"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// Tables are capped at 76 columns so they fit an 80-column terminal
// with a 4-column indent to spare.
const tableWidth = 76

// WriteText writes subject results as human-readable styled text to
// the writer. Output uses lipgloss for color and formatting when the
// output is a TTY; degrades gracefully for pipes and CI.
func WriteText(w io.Writer, results []engine.SubjectResult) error {
	s := DefaultStyles()

	failed := 0
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeOneResult(w, r, s)
		if r.Failed() {
			failed++
		}
	}

	fmt.Fprintf(w, "\n%s\n",
		s.Header.Render(fmt.Sprintf(
			"%d subject(s) evaluated, %d failed", len(results), failed)))
	return nil
}

func writeOneResult(w io.Writer, r engine.SubjectResult, s Styles) {
	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s ===", r.ID)))
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    %s", r.Fingerprint)))
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    context: %d runes, %s mode, output budget %d",
		r.Context.TotalContextLength, r.Context.Mode, r.Context.OutputBudget)))
	fmt.Fprintf(w, "    parse: %s\n", parseLabel(r.Parse, s))

	if len(r.Comparison.Entries) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No indicators detected on either side."))
	} else {
		fmt.Fprintln(w)
		fmt.Fprintln(w, comparisonTable(r.Comparison, s))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render("Baseline DRI:"), scoreLine(&r.BaselineScore, s))
	if r.ModelScore != nil {
		fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render("Model DRI:"), scoreLine(r.ModelScore, s))
		fmt.Fprintf(w, "%s %.4f (%d both, %d baseline only, %d model only)\n",
			s.SummaryLabel.Render("Agreement:"), r.Comparison.Agreement,
			len(r.Comparison.Both), len(r.Comparison.OnlyA), len(r.Comparison.OnlyB))
	}
	writeTruth(w, "Baseline vs truth:", r.BaselineTruth, s)
	writeTruth(w, "Model vs truth:", r.ModelTruth, s)
	if r.Error != "" {
		fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render("Error:"), s.Fail.Render(truncate(r.Error, 56)))
	}
	writeWarnings(w, r.Warnings, s)
}

func writeTruth(w io.Writer, label string, c *taxonomy.GroundTruthCheck, s Styles) {
	if c == nil {
		return
	}
	if c.Match {
		fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render(label),
			s.Pass.Render(fmt.Sprintf("match (%d expected)", len(c.Expected))))
		return
	}
	var parts []string
	if len(c.FalsePositives) > 0 {
		parts = append(parts, "false positives: "+strings.Join(c.FalsePositives, ", "))
	}
	if len(c.Missed) > 0 {
		parts = append(parts, "missed: "+strings.Join(c.Missed, ", "))
	}
	fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render(label),
		s.Warn.Render(truncate(fmt.Sprintf("%d of %d found; %s",
			len(c.TruePositives), len(c.Expected), strings.Join(parts, "; ")), 56)))
}

func comparisonTable(c taxonomy.ComparisonReport, s Styles) *table.Table {
	rows := make([][]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		keywords, confidence := "-", "-"
		if e.Baseline != nil && len(e.Baseline.MatchedKeywords) > 0 {
			keywords = strings.Join(e.Baseline.MatchedKeywords, ", ")
		}
		if e.Model != nil {
			confidence = string(e.Model.Confidence)
		}
		rows = append(rows, []string{
			e.IndicatorID,
			truncate(e.IndicatorName, 22),
			string(e.Partition),
			truncate(keywords, 18),
			confidence,
		})
	}

	return table.New().
		Width(tableWidth).
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 2 && row >= 0 && row < len(rows) {
				return s.PartitionStyle(rows[row][2])
			}
			return s.TableCell
		}).
		Headers("ID", "NAME", "RESULT", "KEYWORDS", "CONFIDENCE").
		Rows(rows...)
}

// WriteDetectionsText writes the keyword matcher's verdicts. Only
// detected indicators are listed unless all is set.
func WriteDetectionsText(w io.Writer, results map[string]taxonomy.DetectionResult, all bool) error {
	s := DefaultStyles()

	ids := matcher.DetectedIDs(results)
	if all {
		ids = ids[:0]
		for id := range results {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	if len(ids) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No indicators detected."))
		return nil
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		r := results[id]
		rows = append(rows, []string{
			id,
			truncate(r.IndicatorName, 24),
			fmt.Sprintf("%d", r.MatchCount),
			truncate(strings.Join(r.MatchedKeywords, ", "), 26),
		})
	}

	t := table.New().
		Width(tableWidth).
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 2 && row >= 0 && row < len(rows) && rows[row][2] == "0" {
				return s.Muted
			}
			return s.TableCell
		}).
		Headers("ID", "NAME", "MATCHES", "KEYWORDS").
		Rows(rows...)
	fmt.Fprintln(w, t)

	fmt.Fprintf(w, "\n%s\n", s.Header.Render(fmt.Sprintf(
		"%d of %d indicator(s) detected", len(matcher.DetectedIDs(results)), len(results))))
	return nil
}

// WriteParseText writes the outcome of parsing one completion.
func WriteParseText(w io.Writer, res response.Result) error {
	s := DefaultStyles()

	fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render("Status:"), parseLabel(res, s))
	if len(res.Steps) > 0 {
		fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render("Steps:"), truncate(strings.Join(res.Steps, " -> "), 56))
	}
	if !res.OK() {
		fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render("Error:"), s.Fail.Render(truncate(res.Error, 56)))
		return nil
	}
	if res.Summary != nil {
		fmt.Fprintf(w, "%s %d detected, %d cleared, %d need review\n", s.SummaryLabel.Render("Model summary:"),
			res.Summary.IndicatorsDetected, res.Summary.IndicatorsCleared, res.Summary.RequiresReviewCount)
	}

	if len(res.Indicators) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No indicator records."))
	} else {
		rows := make([][]string, 0, len(res.Indicators))
		for _, rec := range res.Indicators {
			review := ""
			if rec.RequiresReview {
				review = "yes"
			}
			rows = append(rows, []string{
				rec.IndicatorID,
				truncate(rec.IndicatorName, 26),
				string(rec.Confidence),
				fmt.Sprintf("%d", len(rec.Evidence)),
				review,
			})
		}
		t := table.New().
			Width(tableWidth).
			Border(lipgloss.NormalBorder()).
			BorderStyle(s.Border).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return s.TableHeader
				}
				if col == 4 && row >= 0 && row < len(rows) && rows[row][4] != "" {
					return s.Warn
				}
				return s.TableCell
			}).
			Headers("ID", "NAME", "CONFIDENCE", "EVIDENCE", "REVIEW").
			Rows(rows...)
		fmt.Fprintln(w, t)
	}
	writeWarnings(w, res.Warnings, s)
	return nil
}

// WriteBudgetText writes a context-size decision.
func WriteBudgetText(w io.Writer, d taxonomy.ContextSizeDecision) error {
	s := DefaultStyles()
	mode := s.Pass.Render(string(d.Mode))
	if d.Mode == taxonomy.ModeLarge {
		mode = s.Warn.Render(string(d.Mode))
	}
	fmt.Fprintf(w, "%s %d runes\n", s.SummaryLabel.Render("Context length:"), d.TotalContextLength)
	fmt.Fprintf(w, "%s %d runes\n", s.SummaryLabel.Render("Threshold:"), d.Threshold)
	fmt.Fprintf(w, "%s %s\n", s.SummaryLabel.Render("Mode:"), mode)
	fmt.Fprintf(w, "%s %d tokens\n", s.SummaryLabel.Render("Output budget:"), d.OutputBudget)
	return nil
}

// WriteLexiconText lists the indicators of a lexicon.
func WriteLexiconText(w io.Writer, lex *lexicon.Lexicon) error {
	s := DefaultStyles()

	defs := lex.Definitions()
	rows := make([][]string, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, []string{
			d.ID,
			truncate(d.Name, 28),
			truncate(d.Domain, 16),
			fmt.Sprintf("%d", len(d.Keywords)),
		})
	}

	t := table.New().
		Width(tableWidth).
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 3 && row >= 0 && row < len(rows) && rows[row][3] == "0" {
				return s.Warn
			}
			return s.TableCell
		}).
		Headers("ID", "NAME", "DOMAIN", "KEYWORDS").
		Rows(rows...)
	fmt.Fprintln(w, t)

	fmt.Fprintf(w, "\n%s\n", s.Header.Render(fmt.Sprintf(
		"%d indicator(s), total count %d", lex.Len(), lex.TotalCount())))
	return nil
}

func parseLabel(res response.Result, s Styles) string {
	switch res.Status {
	case response.StatusParsed:
		return s.Pass.Render(string(res.Status)) + s.Muted.Render(fmt.Sprintf(" (%s)", res.Method))
	case response.StatusRepaired:
		return s.Warn.Render(string(res.Status)) + s.Muted.Render(fmt.Sprintf(" (%s)", res.Method))
	default:
		return s.Fail.Render(string(response.StatusFailed))
	}
}

func scoreLine(d *taxonomy.DRIScore, s Styles) string {
	return fmt.Sprintf("%s  %s  %s",
		d.Display(),
		s.BandStyle(d.SeverityBand).Render(string(d.SeverityBand)),
		s.Muted.Render(fmt.Sprintf("(%d of %d indicators)", d.ActiveCount, d.TotalCount)))
}

func writeWarnings(w io.Writer, warnings []string, s Styles) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "    %s %s\n", s.Warn.Render("warning:"), s.Muted.Render(truncate(msg, 62)))
	}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
