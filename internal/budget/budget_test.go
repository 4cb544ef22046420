package budget

import (
	"strings"
	"testing"

	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/taxonomy"
)

func TestDecide_Threshold(t *testing.T) {
	e, err := New(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		length int
		mode   taxonomy.ContextMode
		budget int
	}{
		{0, taxonomy.ModeStandard, 4096},
		{5999, taxonomy.ModeStandard, 4096},
		{6000, taxonomy.ModeStandard, 4096},
		{6001, taxonomy.ModeLarge, 16384},
		{250000, taxonomy.ModeLarge, 16384},
	}
	for _, tt := range tests {
		d := e.Decide(tt.length)
		if d.Mode != tt.mode || d.OutputBudget != tt.budget {
			t.Errorf("Decide(%d) = %s/%d, want %s/%d", tt.length, d.Mode, d.OutputBudget, tt.mode, tt.budget)
		}
		if d.TotalContextLength != tt.length || d.Threshold != 6000 {
			t.Errorf("Decide(%d) echoed %+v", tt.length, d)
		}
	}
}

func TestEstimate_SumsSections(t *testing.T) {
	e, err := New(Options{Threshold: 10, StandardBudget: 1, LargeBudget: 2})
	if err != nil {
		t.Fatal(err)
	}
	if d := e.Estimate("abcde", "fghij"); d.Mode != taxonomy.ModeStandard {
		t.Errorf("10 characters should stay standard, got %s", d.Mode)
	}
	if d := e.Estimate("abcde", "fghij", "k"); d.Mode != taxonomy.ModeLarge {
		t.Errorf("11 characters should be large, got %s", d.Mode)
	}
}

func TestMeasure_CountsCharacters(t *testing.T) {
	if got := Measure("héllo", "", strings.Repeat("ü", 3)); got != 8 {
		t.Errorf("Measure = %d, want 8", got)
	}
}

func TestDecide_Stateless(t *testing.T) {
	e, _ := New(DefaultOptions())
	first := e.Decide(7000)
	e.Decide(10)
	if again := e.Decide(7000); again != first {
		t.Errorf("decision changed between calls: %+v vs %+v", first, again)
	}
}

func TestNew_Rejects(t *testing.T) {
	for _, opts := range []Options{
		{Threshold: -1, StandardBudget: 1, LargeBudget: 1},
		{Threshold: 1, StandardBudget: 0, LargeBudget: 1},
		{Threshold: 1, StandardBudget: 10, LargeBudget: 5},
	} {
		if _, err := New(opts); !taxonomy.IsConfigurationError(err) {
			t.Errorf("New(%+v) should be a ConfigurationError, got %v", opts, err)
		}
	}
}

func TestFromConfig_MatchesDefaults(t *testing.T) {
	if got := FromConfig(config.DefaultConfig().Context); got != DefaultOptions() {
		t.Errorf("FromConfig(defaults) = %+v, want %+v", got, DefaultOptions())
	}
}
