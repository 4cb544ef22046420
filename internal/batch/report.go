package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/unbound-force/dri/internal/engine"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// Report styles (package-level for consistent terminal output).
var (
	batchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	batchBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	batchBadStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	batchWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	batchGoodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("40"))
	batchLabelStyle  = lipgloss.NewStyle().Bold(true)
	batchMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// WriteJSON writes the batch report as formatted JSON.
func WriteJSON(w io.Writer, rpt *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*Report
		DurationMS int64 `json:"duration_ms"`
	}{rpt, rpt.Duration.Milliseconds()})
}

// WriteText writes the batch report as human-readable styled text.
func WriteText(w io.Writer, rpt *Report) error {
	if len(rpt.Results) == 0 {
		fmt.Fprintln(w, batchMutedStyle.Render("No subjects evaluated."))
		return nil
	}

	rows := make([][]string, 0, len(rpt.Results))
	for _, r := range rpt.Results {
		rows = append(rows, []string{
			r.ID,
			statusLabel(r),
			scoreLabel(&r.BaselineScore, r.Cancelled),
			scoreLabel(r.ModelScore, r.Cancelled),
			agreementLabel(r),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(batchBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return batchHeaderStyle
			}
			if col == 1 && row >= 0 && row < len(rows) {
				switch rows[row][1] {
				case "failed", "cancelled":
					return batchBadStyle
				case "repaired":
					return batchWarnStyle
				default:
					return batchGoodStyle
				}
			}
			return lipgloss.NewStyle()
		}).
		Headers("SUBJECT", "STATUS", "BASELINE", "MODEL", "AGREEMENT").
		Rows(rows...)

	fmt.Fprintln(w, t)

	s := rpt.Summary
	fmt.Fprintln(w)
	fmt.Fprintln(w, batchHeaderStyle.Render("--- Summary ---"))
	fmt.Fprintf(w, "%s  %s\n", batchLabelStyle.Render("Run:"), rpt.RunID)
	fmt.Fprintf(w, "%s  %d\n", batchLabelStyle.Render("Subjects:"), s.Subjects)
	fmt.Fprintf(w, "%s  %d parsed, %d repaired, %d failed, %d cancelled\n",
		batchLabelStyle.Render("Outcomes:"), s.Parsed, s.Repaired, s.Failed, s.Cancelled)
	fmt.Fprintf(w, "%s  %.4f\n", batchLabelStyle.Render("Mean agreement:"), s.MeanAgreement)

	fmt.Fprintln(w)
	fmt.Fprintln(w, batchHeaderStyle.Render("--- Severity Bands ---"))
	fmt.Fprintf(w, "  %-10s  %8s  %8s\n", "", "BASELINE", "MODEL")
	for _, b := range taxonomy.SeverityBands {
		fmt.Fprintf(w, "  %-10s  %8d  %8d\n", string(b), s.BaselineBands[b], s.ModelBands[b])
	}

	if s.BaselineAccuracy != nil || s.ModelAccuracy != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, batchHeaderStyle.Render("--- Ground Truth ---"))
		fmt.Fprintf(w, "  %-10s  %8s  %8s  %8s  %9s  %7s  %6s\n",
			"", "SUBJECTS", "MATCHES", "FP", "PRECISION", "FP RATE", "RECALL")
		writeAccuracy(w, "baseline", s.BaselineAccuracy)
		writeAccuracy(w, "model", s.ModelAccuracy)
	}

	if len(s.WorstAgreement) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, batchHeaderStyle.Render(
			fmt.Sprintf("--- Lowest Agreement (top %d) ---", len(s.WorstAgreement))))
		for i, d := range s.WorstAgreement {
			fmt.Fprintf(w, "  %d. %s  %s  %s\n",
				i+1, batchBadStyle.Render(fmt.Sprintf("%.4f", d.Agreement)), d.ID,
				batchMutedStyle.Render(fmt.Sprintf("(baseline only: %s; model only: %s)",
					idList(d.OnlyA), idList(d.OnlyB))))
		}
	}
	return nil
}

func writeAccuracy(w io.Writer, label string, a *Accuracy) {
	if a == nil {
		fmt.Fprintf(w, "  %-10s  %s\n", label, batchMutedStyle.Render("no checked subjects"))
		return
	}
	fmt.Fprintf(w, "  %-10s  %8d  %8d  %8d  %9.4f  %7.4f  %6.4f\n",
		label, a.Subjects, a.Matches, a.FalsePositives, a.Precision, a.FalsePositiveRate, a.Recall)
}

func statusLabel(r engine.SubjectResult) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Failed():
		return "failed"
	default:
		return string(r.Parse.Status)
	}
}

func scoreLabel(s *taxonomy.DRIScore, cancelled bool) string {
	if s == nil || cancelled {
		return "-"
	}
	return fmt.Sprintf("%s %s", s.Display(), s.SeverityBand)
}

func agreementLabel(r engine.SubjectResult) string {
	if r.ModelScore == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", r.Comparison.Agreement)
}

func idList(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
