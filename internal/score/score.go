// Package score converts an active-indicator count into a DRI score
// and severity band. Arithmetic is exact decimal; rounding happens
// only when the score is displayed.
package score

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/unbound-force/dri/internal/config"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// precision is the number of significant digits used for the ratio.
const precision = 34

// Calculator computes DRI scores for one lexicon. It is immutable
// after New and safe for concurrent use.
type Calculator struct {
	total int

	// upper holds the inclusive upper bounds of Low, Medium and High.
	upper [3]apd.Decimal
}

// New builds a Calculator for total indicators with the given band
// bounds. total must be positive and the bounds strictly ascending.
func New(total int, bands config.BandConfig) (*Calculator, error) {
	if total <= 0 {
		return nil, &taxonomy.ConfigurationError{
			Field:  "scoring.total_count",
			Reason: fmt.Sprintf("missing or non-positive total count (%d)", total),
		}
	}

	c := &Calculator{total: total}
	fields := []struct {
		name  string
		value string
	}{
		{"scoring.bands.low", bands.Low},
		{"scoring.bands.medium", bands.Medium},
		{"scoring.bands.high", bands.High},
	}
	for i, f := range fields {
		d, _, err := apd.NewFromString(f.value)
		if err != nil {
			return nil, &taxonomy.ConfigurationError{
				Field:  f.name,
				Reason: fmt.Sprintf("not a decimal: %q", f.value),
			}
		}
		if d.Negative || d.Cmp(apd.New(1, 0)) > 0 {
			return nil, &taxonomy.ConfigurationError{
				Field:  f.name,
				Reason: fmt.Sprintf("must be within [0, 1], got %s", f.value),
			}
		}
		if i > 0 && d.Cmp(&c.upper[i-1]) <= 0 {
			return nil, &taxonomy.ConfigurationError{
				Field:  f.name,
				Reason: fmt.Sprintf("must be greater than %s", fields[i-1].value),
			}
		}
		c.upper[i].Set(d)
	}
	return c, nil
}

// FromConfig builds a Calculator from the scoring configuration. A
// positive lexiconTotal overrides the configured total count.
func FromConfig(cfg config.ScoringConfig, lexiconTotal int) (*Calculator, error) {
	total := cfg.TotalCount
	if lexiconTotal > 0 {
		total = lexiconTotal
	}
	return New(total, cfg.Bands)
}

// Total returns the score denominator.
func (c *Calculator) Total() int { return c.total }

// Compute returns the score for active indicators.
func (c *Calculator) Compute(active int) (taxonomy.DRIScore, error) {
	if active < 0 || active > c.total {
		return taxonomy.DRIScore{}, fmt.Errorf("active count %d outside [0, %d]", active, c.total)
	}

	ctx := apd.BaseContext.WithPrecision(precision)
	var ratio apd.Decimal
	if _, err := ctx.Quo(&ratio, apd.New(int64(active), 0), apd.New(int64(c.total), 0)); err != nil {
		return taxonomy.DRIScore{}, fmt.Errorf("computing score: %w", err)
	}

	return taxonomy.DRIScore{
		ActiveCount:  active,
		TotalCount:   c.total,
		SeverityBand: c.BandFor(&ratio),
		Score:        ratio,
	}, nil
}

// BandFor returns the severity band for score. Upper bounds are
// inclusive, so a score equal to the Low bound is Low.
func (c *Calculator) BandFor(score *apd.Decimal) taxonomy.SeverityBand {
	for i := range c.upper {
		if score.Cmp(&c.upper[i]) <= 0 {
			return taxonomy.SeverityBands[i]
		}
	}
	return taxonomy.SeverityVeryHigh
}
