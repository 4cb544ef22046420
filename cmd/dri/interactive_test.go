package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/engine"
	"github.com/unbound-force/dri/internal/lexicon"
)

func evaluate(t *testing.T, s engine.Subject) engine.SubjectResult {
	t.Helper()
	e, err := engine.New(config.DefaultConfig(), lexicon.Default())
	if err != nil {
		t.Fatal(err)
	}
	return e.Evaluate(s)
}

func TestRenderCompareContent_EmptyResults(t *testing.T) {
	output := renderCompareContent([]engine.SubjectResult{})
	if !strings.Contains(output, "0 subject(s), 0 failed") {
		t.Errorf("expected empty title, got:\n%s", output)
	}
}

func TestRenderCompareContent_WithEntries(t *testing.T) {
	r := evaluate(t, engine.Subject{
		ID:         "871",
		Sections:   []engine.Section{{Text: exampleText}},
		Completion: `{"indicators":[{"deficit_id":"INF_01"},{"deficit_id":"CARD_02","evidence":"chest pain on exertion"}]}`,
	})

	output := renderCompareContent([]engine.SubjectResult{r})
	for _, want := range []string{
		"=== 871 ===", "INF_01", "RESP_02", "CARD_02",
		"both", "only_a", "only_b",
		"agreement 0.3333", "chest pain on exertion",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestRenderCompareContent_Failed(t *testing.T) {
	r := evaluate(t, engine.Subject{
		ID:         "872",
		Sections:   []engine.Section{{Text: "Stable."}},
		Completion: "nothing useful",
	})
	output := renderCompareContent([]engine.SubjectResult{r, engine.Unevaluated("873", "")})
	if !strings.Contains(output, "2 subject(s), 1 failed") {
		t.Errorf("unexpected title:\n%s", output)
	}
	if !strings.Contains(output, "unparsable response") {
		t.Errorf("expected failure reason, got:\n%s", output)
	}
	if !strings.Contains(output, "no model result") {
		t.Errorf("expected placeholder for result without error, got:\n%s", output)
	}
	if !strings.Contains(output, "No indicators detected on either side.") {
		t.Errorf("expected empty comparison message, got:\n%s", output)
	}
}

func TestRenderCompareContent_EvidenceTruncation(t *testing.T) {
	long := strings.Repeat("x", 80)
	r := evaluate(t, engine.Subject{
		ID:         "874",
		Sections:   []engine.Section{{Text: "Stable."}},
		Completion: `{"indicators":[{"deficit_id":"INF_01","evidence":"` + long + `"}]}`,
	})
	output := renderCompareContent([]engine.SubjectResult{r})
	if strings.Contains(output, long) {
		t.Error("long evidence should be truncated")
	}
	if !strings.Contains(output, strings.Repeat("x", 47)+"...") {
		t.Errorf("expected truncated evidence, got:\n%s", output)
	}
}

func TestCompareModel_Update(t *testing.T) {
	m := newCompareModel(nil)
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View before sizing = %q", got)
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(compareModel)
	if !m.ready {
		t.Fatal("model should be ready after a window size message")
	}
	if !strings.Contains(m.View(), "DRI Comparison") {
		t.Errorf("view should show content, got:\n%s", m.View())
	}

	next, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(compareModel)
	if m.viewport.Width != 100 || m.viewport.Height != 28 {
		t.Errorf("viewport = %dx%d, want 100x28", m.viewport.Width, m.viewport.Height)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	m = next.(compareModel)
	if !m.help.ShowAll {
		t.Error("? should toggle full help")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
