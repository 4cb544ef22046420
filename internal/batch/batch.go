// Package batch evaluates many subjects in parallel with bounded
// concurrency. Each subject is isolated: an error or panic in one is
// recorded on its own result and never aborts the batch.
package batch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/unbound-force/dri/internal/engine"
)

// Evaluator evaluates one subject. *engine.Engine satisfies it.
type Evaluator interface {
	Evaluate(s engine.Subject) engine.SubjectResult
}

// Options configures a batch run.
type Options struct {
	// Concurrency bounds the number of subjects evaluated at once.
	// Default: 4.
	Concurrency int

	// Timeout bounds the whole run. Zero means no timeout.
	Timeout time.Duration

	// WorstCount is the number of lowest-agreement subjects kept in
	// the summary. Default: 5.
	WorstCount int

	// Logger receives progress. Nil discards it.
	Logger *log.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{Concurrency: 4, WorstCount: 5}
}

// Report is the complete output of a batch run.
type Report struct {
	RunID    string                 `json:"run_id"`
	Started  time.Time              `json:"started"`
	Duration time.Duration          `json:"-"`
	Results  []engine.SubjectResult `json:"results"`
	Summary  Summary                `json:"summary"`
}

// Run evaluates subjects and returns results in input order. When ctx
// is cancelled or the timeout expires, subjects that had not started
// are recorded as cancelled and the context error is returned along
// with the partial report.
func Run(ctx context.Context, ev Evaluator, subjects []engine.Subject, opts Options) (*Report, error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.WorstCount <= 0 {
		opts.WorstCount = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	rpt := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
		Results: make([]engine.SubjectResult, len(subjects)),
	}
	logger.Info("starting batch", "run_id", rpt.RunID, "subjects", len(subjects),
		"concurrency", opts.Concurrency)

	done := make([]bool, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, s := range subjects {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r := evaluate(ev, s)
			if r.Failed() {
				logger.Warn("subject failed", "id", s.ID, "error", r.Error)
			} else {
				logger.Debug("subject evaluated", "id", s.ID, "status", r.Parse.Status,
					"agreement", r.Comparison.Agreement)
			}
			rpt.Results[i] = r
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	err := ctx.Err()
	interrupted := false
	for i, s := range subjects {
		if !done[i] {
			rpt.Results[i] = cancelled(s, err)
			interrupted = true
		}
	}

	rpt.Duration = time.Since(rpt.Started)
	rpt.Summary = Summarize(rpt.Results, opts.WorstCount)
	logger.Info("batch complete", "run_id", rpt.RunID, "failed", rpt.Summary.Failed,
		"cancelled", rpt.Summary.Cancelled, "duration", rpt.Duration.Round(time.Millisecond))

	if interrupted && err != nil {
		return rpt, fmt.Errorf("batch %s interrupted: %w", rpt.RunID, err)
	}
	return rpt, nil
}

// evaluate runs one subject, turning a panic into a failed result.
func evaluate(ev Evaluator, s engine.Subject) (r engine.SubjectResult) {
	defer func() {
		if p := recover(); p != nil {
			r = engine.Unevaluated(s.ID, fmt.Sprintf("panic while evaluating subject: %v", p))
		}
	}()
	return ev.Evaluate(s)
}

func cancelled(s engine.Subject, err error) engine.SubjectResult {
	msg := "not evaluated"
	if err != nil {
		msg = fmt.Sprintf("not evaluated: %v", err)
	}
	r := engine.Unevaluated(s.ID, msg)
	r.Cancelled = true
	return r
}
