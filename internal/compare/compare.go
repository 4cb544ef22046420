// Package compare reconciles two indicator detection sets into a
// three-way partition with per-indicator audit detail.
package compare

import (
	"sort"

	"github.com/cockroachdb/apd/v3"

	"github.com/unbound-force/dri/internal/lexicon"
	"github.com/unbound-force/dri/internal/taxonomy"
)

// Partition is the set algebra over two id lists.
type Partition struct {
	Both  []string
	OnlyA []string
	OnlyB []string
}

// Union returns the number of distinct ids across both inputs.
func (p Partition) Union() int {
	return len(p.Both) + len(p.OnlyA) + len(p.OnlyB)
}

// Sets partitions a and b into a∩b, a−b and b−a. Duplicates collapse
// and every output slice is sorted and non-nil. Both inputs must use
// the same id scheme.
func Sets(a, b []string) Partition {
	inA := toSet(a)
	inB := toSet(b)

	p := Partition{Both: []string{}, OnlyA: []string{}, OnlyB: []string{}}
	for id := range inA {
		if inB[id] {
			p.Both = append(p.Both, id)
		} else {
			p.OnlyA = append(p.OnlyA, id)
		}
	}
	for id := range inB {
		if !inA[id] {
			p.OnlyB = append(p.OnlyB, id)
		}
	}
	sort.Strings(p.Both)
	sort.Strings(p.OnlyA)
	sort.Strings(p.OnlyB)
	return p
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}

// Agreement returns |both| / |union| rounded half-up to 4 digits. Two
// empty inputs agree fully.
func Agreement(p Partition) float64 {
	union := p.Union()
	if union == 0 {
		return 1
	}
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp

	var ratio, rounded apd.Decimal
	if _, err := ctx.Quo(&ratio, apd.New(int64(len(p.Both)), 0), apd.New(int64(union), 0)); err != nil {
		return float64(len(p.Both)) / float64(union)
	}
	if _, err := ctx.Quantize(&rounded, &ratio, -4); err != nil {
		return float64(len(p.Both)) / float64(union)
	}
	f, err := rounded.Float64()
	if err != nil {
		return float64(len(p.Both)) / float64(union)
	}
	return f
}

// Detections compares the matcher's baseline against the model's
// records. Baseline ids are those with Detected set; model ids are
// the record ids. Each entry carries whichever side's detail exists,
// and names come from the lexicon when it knows the id. When the
// model reports an id more than once the first record wins. lex may
// be nil.
func Detections(
	baseline map[string]taxonomy.DetectionResult,
	model []taxonomy.LLMIndicatorRecord,
	lex *lexicon.Lexicon,
) taxonomy.ComparisonReport {
	var aIDs []string
	for id, r := range baseline {
		if r.Detected {
			aIDs = append(aIDs, id)
		}
	}

	records := make(map[string]*taxonomy.LLMIndicatorRecord, len(model))
	var bIDs []string
	for i := range model {
		id := model[i].IndicatorID
		if _, dup := records[id]; dup {
			continue
		}
		records[id] = &model[i]
		bIDs = append(bIDs, id)
	}

	p := Sets(aIDs, bIDs)
	report := taxonomy.ComparisonReport{
		Both:      p.Both,
		OnlyA:     p.OnlyA,
		OnlyB:     p.OnlyB,
		Entries:   make([]taxonomy.ComparisonEntry, 0, p.Union()),
		Agreement: Agreement(p),
	}

	add := func(ids []string, part taxonomy.Partition) {
		for _, id := range ids {
			e := taxonomy.ComparisonEntry{IndicatorID: id, Partition: part}
			if part != taxonomy.PartitionOnlyB {
				r := baseline[id]
				e.Baseline = &r
			}
			if part != taxonomy.PartitionOnlyA {
				rec := *records[id]
				e.Model = &rec
			}
			e.IndicatorName = displayName(id, e, lex)
			report.Entries = append(report.Entries, e)
		}
	}
	add(p.Both, taxonomy.PartitionBoth)
	add(p.OnlyA, taxonomy.PartitionOnlyA)
	add(p.OnlyB, taxonomy.PartitionOnlyB)

	sort.SliceStable(report.Entries, func(i, j int) bool {
		return report.Entries[i].IndicatorID < report.Entries[j].IndicatorID
	})
	return report
}

// GroundTruth checks actual detections against expected ids. Ids in
// both are true positives, ids only detected are false positives and
// ids only expected were missed.
func GroundTruth(expected, actual []string) taxonomy.GroundTruthCheck {
	p := Sets(actual, expected)
	exp := Sets(expected, nil).OnlyA
	return taxonomy.GroundTruthCheck{
		Expected:       exp,
		TruePositives:  p.Both,
		FalsePositives: p.OnlyA,
		Missed:         p.OnlyB,
		Match:          len(p.OnlyA) == 0 && len(p.OnlyB) == 0,
	}
}

func displayName(id string, e taxonomy.ComparisonEntry, lex *lexicon.Lexicon) string {
	if lex != nil {
		if name := lex.Name(id); name != "" {
			return name
		}
	}
	if e.Baseline != nil && e.Baseline.IndicatorName != "" {
		return e.Baseline.IndicatorName
	}
	if e.Model != nil {
		return e.Model.IndicatorName
	}
	return ""
}
