package batch

import (
	"math"
	"sort"

	"github.com/unbound-force/dri/internal/engine"
	"github.com/unbound-force/dri/internal/response"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// Summary holds aggregate statistics for a batch run.
type Summary struct {
	Subjects  int `json:"subjects"`
	Parsed    int `json:"parsed"`
	Repaired  int `json:"repaired"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`

	BaselineBands map[taxonomy.SeverityBand]int `json:"baseline_bands"`
	ModelBands    map[taxonomy.SeverityBand]int `json:"model_bands"`

	// MeanAgreement averages agreement over subjects whose completion
	// parsed. Zero when none did.
	MeanAgreement float64 `json:"mean_agreement"`

	// WorstAgreement lists the parsed subjects with the lowest
	// agreement, lowest first.
	WorstAgreement []Disagreement `json:"worst_agreement"`

	// BaselineAccuracy and ModelAccuracy measure each source against
	// ground truth. Nil when no subject in the run carried expected ids.
	BaselineAccuracy *Accuracy `json:"baseline_accuracy,omitempty"`
	ModelAccuracy    *Accuracy `json:"model_accuracy,omitempty"`
}

// Accuracy aggregates ground-truth checks for one detection source.
// Counts are per indicator id, summed over subjects.
type Accuracy struct {
	// Subjects is the number of subjects checked; Matches of those
	// found exactly the expected set.
	Subjects int `json:"subjects"`
	Matches  int `json:"matches"`

	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	Missed         int `json:"missed"`

	// Precision is TP/(TP+FP) and FalsePositiveRate FP/(TP+FP); both
	// are zero when nothing was detected. Recall is TP/(TP+missed).
	Precision         float64 `json:"precision"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	Recall            float64 `json:"recall"`
}

func (a *Accuracy) add(c *taxonomy.GroundTruthCheck) {
	a.Subjects++
	if c.Match {
		a.Matches++
	}
	a.TruePositives += len(c.TruePositives)
	a.FalsePositives += len(c.FalsePositives)
	a.Missed += len(c.Missed)
}

func (a *Accuracy) finish() {
	if detected := a.TruePositives + a.FalsePositives; detected > 0 {
		a.Precision = ratio(a.TruePositives, detected)
		a.FalsePositiveRate = ratio(a.FalsePositives, detected)
	}
	if expected := a.TruePositives + a.Missed; expected > 0 {
		a.Recall = ratio(a.TruePositives, expected)
	}
}

func ratio(n, d int) float64 {
	return math.Round(float64(n)/float64(d)*1e4) / 1e4
}

// Disagreement is one entry of the worst-agreement list.
type Disagreement struct {
	ID        string   `json:"id"`
	Agreement float64  `json:"agreement"`
	OnlyA     []string `json:"only_a"`
	OnlyB     []string `json:"only_b"`
}

// Summarize aggregates results, keeping the worst n subjects by
// agreement.
func Summarize(results []engine.SubjectResult, n int) Summary {
	s := Summary{
		Subjects:       len(results),
		BaselineBands:  emptyBands(),
		ModelBands:     emptyBands(),
		WorstAgreement: []Disagreement{},
	}

	var ranked []Disagreement
	var total float64
	for _, r := range results {
		switch {
		case r.Cancelled:
			s.Cancelled++
			continue
		case r.Failed():
			s.Failed++
		case r.Parse.Status == response.StatusRepaired:
			s.Repaired++
		default:
			s.Parsed++
		}

		if r.BaselineTruth != nil {
			if s.BaselineAccuracy == nil {
				s.BaselineAccuracy = &Accuracy{}
			}
			s.BaselineAccuracy.add(r.BaselineTruth)
		}
		if r.ModelTruth != nil {
			if s.ModelAccuracy == nil {
				s.ModelAccuracy = &Accuracy{}
			}
			s.ModelAccuracy.add(r.ModelTruth)
		}

		if r.BaselineScore.SeverityBand != "" {
			s.BaselineBands[r.BaselineScore.SeverityBand]++
		}
		if r.ModelScore == nil {
			continue
		}
		s.ModelBands[r.ModelScore.SeverityBand]++
		total += r.Comparison.Agreement
		ranked = append(ranked, Disagreement{
			ID:        r.ID,
			Agreement: r.Comparison.Agreement,
			OnlyA:     r.Comparison.OnlyA,
			OnlyB:     r.Comparison.OnlyB,
		})
	}

	for _, a := range []*Accuracy{s.BaselineAccuracy, s.ModelAccuracy} {
		if a != nil {
			a.finish()
		}
	}

	if len(ranked) > 0 {
		s.MeanAgreement = math.Round(total/float64(len(ranked))*1e4) / 1e4
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Agreement != ranked[j].Agreement {
			return ranked[i].Agreement < ranked[j].Agreement
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	s.WorstAgreement = append(s.WorstAgreement, ranked...)
	return s
}

func emptyBands() map[taxonomy.SeverityBand]int {
	m := make(map[taxonomy.SeverityBand]int, len(taxonomy.SeverityBands))
	for _, b := range taxonomy.SeverityBands {
		m[b] = 0
	}
	return m
}
