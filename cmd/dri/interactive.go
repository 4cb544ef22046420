package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/unbound-force/dri/internal/engine"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// keyMap defines keybindings for the interactive TUI.
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
	Help     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Quit, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Quit, k.Help},
	}
}

var defaultKeyMap = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("^/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("v/j", "down")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

// Styles for the TUI.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	tuiHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	tuiBorderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63"))

	bothStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("40"))
	onlyAStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	onlyBStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// compareModel is the Bubble Tea model for browsing subject results.
type compareModel struct {
	results  []engine.SubjectResult
	viewport viewport.Model
	help     help.Model
	keys     keyMap
	ready    bool
	content  string
}

func newCompareModel(results []engine.SubjectResult) compareModel {
	return compareModel{
		results: results,
		help:    help.New(),
		keys:    defaultKeyMap,
		content: renderCompareContent(results),
	}
}

func renderCompareContent(results []engine.SubjectResult) string {
	var sb strings.Builder

	failed := 0
	for i := range results {
		if results[i].Failed() {
			failed++
		}
	}

	sb.WriteString(titleStyle.Render(
		fmt.Sprintf("DRI Comparison: %d subject(s), %d failed", len(results), failed)))
	sb.WriteString("\n\n")

	for _, r := range results {
		sb.WriteString(tuiHeaderStyle.Render(fmt.Sprintf("=== %s ===", r.ID)))
		sb.WriteString("\n")

		if r.ModelScore == nil {
			msg := r.Error
			if msg == "" {
				msg = "no model result"
			}
			sb.WriteString(failStyle.Render(fmt.Sprintf("    %s", msg)))
			sb.WriteString("\n")
		} else {
			sb.WriteString(statusStyle.Render(fmt.Sprintf(
				"    parse %s | agreement %.4f | baseline %s %s | model %s %s",
				r.Parse.Status, r.Comparison.Agreement,
				r.BaselineScore.Display(), r.BaselineScore.SeverityBand,
				r.ModelScore.Display(), r.ModelScore.SeverityBand)))
			sb.WriteString("\n")
		}

		if len(r.Comparison.Entries) == 0 {
			sb.WriteString(statusStyle.Render("    No indicators detected on either side."))
			sb.WriteString("\n\n")
			continue
		}

		rows := make([][]string, 0, len(r.Comparison.Entries))
		for _, e := range r.Comparison.Entries {
			evidence := ""
			switch {
			case e.Baseline != nil && len(e.Baseline.Snippets) > 0:
				evidence = e.Baseline.Snippets[0]
			case e.Model != nil && len(e.Model.Evidence) > 0:
				evidence = e.Model.Evidence[0].Excerpt
			}
			if len([]rune(evidence)) > 50 {
				evidence = string([]rune(evidence)[:47]) + "..."
			}
			rows = append(rows, []string{
				e.IndicatorID,
				string(e.Partition),
				evidence,
			})
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(tuiBorderStyle).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return tuiHeaderStyle
				}
				if col == 1 && row >= 0 && row < len(rows) {
					switch taxonomy.Partition(rows[row][1]) {
					case taxonomy.PartitionBoth:
						return bothStyle
					case taxonomy.PartitionOnlyA:
						return onlyAStyle
					case taxonomy.PartitionOnlyB:
						return onlyBStyle
					}
				}
				return lipgloss.NewStyle()
			}).
			Headers("INDICATOR", "RESULT", "EVIDENCE").
			Rows(rows...)

		sb.WriteString(t.String())
		sb.WriteString("\n\n")
	}

	return sb.String()
}

func (m compareModel) Init() tea.Cmd {
	return nil
}

func (m compareModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		footerHeight := 2

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-footerHeight)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - footerHeight
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m compareModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	footer := statusStyle.Render(
		fmt.Sprintf(" %3.f%% ", m.viewport.ScrollPercent()*100)) +
		" " + m.help.View(m.keys)

	return m.viewport.View() + "\n" + footer
}

// runInteractiveCompare launches the Bubble Tea TUI for browsing
// subject results.
func runInteractiveCompare(results []engine.SubjectResult) error {
	model := newCompareModel(results)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
