// Package budget selects the processing mode and output allowance for
// a subject from the size of its aggregated context.
package budget

import (
	"fmt"
	"unicode/utf8"

	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// Options configures the estimator.
type Options struct {
	// Threshold is the context length above which large mode is
	// selected. Default: 6000.
	Threshold int

	// StandardBudget and LargeBudget are the output allowances bound
	// to each mode. Defaults: 4096 and 16384.
	StandardBudget int
	LargeBudget    int
}

// DefaultOptions returns the observed defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:      6000,
		StandardBudget: 4096,
		LargeBudget:    16384,
	}
}

// FromConfig converts the context configuration.
func FromConfig(c config.ContextConfig) Options {
	return Options{
		Threshold:      c.Threshold,
		StandardBudget: c.StandardBudget,
		LargeBudget:    c.LargeBudget,
	}
}

// Estimator is a stateless two-mode policy.
type Estimator struct {
	opts Options
}

// New validates opts and returns an Estimator.
func New(opts Options) (*Estimator, error) {
	switch {
	case opts.Threshold < 0:
		return nil, &taxonomy.ConfigurationError{
			Field:  "context.threshold",
			Reason: fmt.Sprintf("must be >= 0, got %d", opts.Threshold),
		}
	case opts.StandardBudget <= 0 || opts.LargeBudget < opts.StandardBudget:
		return nil, &taxonomy.ConfigurationError{
			Field: "context.large_budget",
			Reason: fmt.Sprintf("budgets must satisfy 0 < standard (%d) <= large (%d)",
				opts.StandardBudget, opts.LargeBudget),
		}
	}
	return &Estimator{opts: opts}, nil
}

// Decide returns the decision for a context of length characters.
// Only a length strictly above the threshold selects large mode.
func (e *Estimator) Decide(length int) taxonomy.ContextSizeDecision {
	d := taxonomy.ContextSizeDecision{
		TotalContextLength: length,
		Threshold:          e.opts.Threshold,
		Mode:               taxonomy.ModeStandard,
		OutputBudget:       e.opts.StandardBudget,
	}
	if length > e.opts.Threshold {
		d.Mode = taxonomy.ModeLarge
		d.OutputBudget = e.opts.LargeBudget
	}
	return d
}

// Estimate measures sections and decides.
func (e *Estimator) Estimate(sections ...string) taxonomy.ContextSizeDecision {
	return e.Decide(Measure(sections...))
}

// Measure returns the total character count of sections.
func Measure(sections ...string) int {
	n := 0
	for _, s := range sections {
		n += utf8.RuneCountInString(s)
	}
	return n
}
