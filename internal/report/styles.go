package report

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/unbound-force/dri/internal/taxonomy"
)

// Styles defines the visual theme for terminal report output.
// Lipgloss automatically degrades to no-color when output is not a TTY.
type Styles struct {
	// Header is used for section headers (e.g. "=== subject ===").
	Header lipgloss.Style

	// SubHeader is used for secondary information lines.
	SubHeader lipgloss.Style

	// Band styles color-code severity bands, lowest to highest.
	BandLow      lipgloss.Style
	BandMedium   lipgloss.Style
	BandHigh     lipgloss.Style
	BandVeryHigh lipgloss.Style

	// Partition styles color-code comparison partitions.
	Both  lipgloss.Style
	OnlyA lipgloss.Style
	OnlyB lipgloss.Style

	// TableHeader styles the header row of tables.
	TableHeader lipgloss.Style

	// TableCell styles regular table cells.
	TableCell lipgloss.Style

	// SummaryLabel styles summary line labels.
	SummaryLabel lipgloss.Style

	// Pass styles successful parse outcomes.
	Pass lipgloss.Style

	// Warn styles repaired parse outcomes and warnings.
	Warn lipgloss.Style

	// Fail styles failures.
	Fail lipgloss.Style

	// Border is used for table borders.
	Border lipgloss.Style

	// Muted is used for de-emphasized text.
	Muted lipgloss.Style
}

// DefaultStyles returns the default color scheme for terminal reports.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		SubHeader: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),

		BandLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("40")),
		BandMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		BandHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		BandVeryHigh: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),

		Both:  lipgloss.NewStyle().Foreground(lipgloss.Color("40")),
		OnlyA: lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		OnlyB: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),

		TableHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		TableCell:   lipgloss.NewStyle().PaddingRight(1),

		SummaryLabel: lipgloss.NewStyle().Bold(true).Width(20),

		Pass: lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true),
		Warn: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		Fail: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),

		Border: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),

		Muted: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// BandStyle returns the appropriate style for a severity band.
func (s Styles) BandStyle(b taxonomy.SeverityBand) lipgloss.Style {
	switch b {
	case taxonomy.SeverityLow:
		return s.BandLow
	case taxonomy.SeverityMedium:
		return s.BandMedium
	case taxonomy.SeverityHigh:
		return s.BandHigh
	case taxonomy.SeverityVeryHigh:
		return s.BandVeryHigh
	default:
		return s.Muted
	}
}

// PartitionStyle returns the appropriate style for a partition label.
func (s Styles) PartitionStyle(p string) lipgloss.Style {
	switch taxonomy.Partition(p) {
	case taxonomy.PartitionBoth:
		return s.Both
	case taxonomy.PartitionOnlyA:
		return s.OnlyA
	case taxonomy.PartitionOnlyB:
		return s.OnlyB
	default:
		return s.Muted
	}
}
