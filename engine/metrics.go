/*
metrics.go - Guarded ratio and share metrics over rollup sums

PURPOSE:
  Every derived metric in the system is a ratio, and every ratio here is
  guarded: a zero, null, or missing denominator yields 0, never a
  division fault. Percentages are NOT clamped to [0,100] - an MP whose
  recorded allocation is smaller than recorded spend legitimately shows
  utilization above 100%.

RANKING DETERMINISM:
  Top-K rankings sort by amount descending and break ties on the
  entity's first-seen order within the aggregation pass. The upstream
  system left equal-amount ordering to chance; here it is pinned down
  and tested.
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SafePct returns num/den*100, or 0 when den is zero.
func SafePct(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	f, _ := num.Div(den).Mul(hundred).Float64()
	return f
}

// UtilizationRate is spent/allocated*100; 0 when the allocation is
// absent or zero.
func UtilizationRate(spent decimal.Decimal, allocated decimal.NullDecimal) float64 {
	if !allocated.Valid {
		return 0
	}
	return SafePct(spent, allocated.Decimal)
}

// CompletionRate is completed/recommended*100; 0 when nothing was
// recommended.
func CompletionRate(completed, recommended int) float64 {
	if recommended <= 0 {
		return 0
	}
	return float64(completed) / float64(recommended) * 100
}

// TransparencyScore is proofs/completed*100; 0 when nothing completed.
func TransparencyScore(proofs, completed int) float64 {
	if completed <= 0 {
		return 0
	}
	return float64(proofs) / float64(completed) * 100
}

// =============================================================================
// ENTITY TOTALS AND SHARES
// =============================================================================

// EntityTotal is one entity's accumulated amount within a dimension,
// plus its first-seen order for tie-breaking.
type EntityTotal struct {
	Name   string
	Amount decimal.Decimal
	Count  int
	order  int
}

// Totals flattens a single-dimension aggregation result into entity
// totals for a measure.
func Totals(res *AggResult, m Measure) []EntityTotal {
	out := make([]EntityTotal, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		name := Unknown
		if len(b.Key) > 0 {
			name = b.Key[0]
		}
		out = append(out, EntityTotal{Name: name, Amount: b.Sum(m), Count: b.Count, order: b.Order()})
	}
	return out
}

// RankByAmount sorts totals by amount descending, ties broken by
// first-seen order. The input slice is not modified.
func RankByAmount(totals []EntityTotal) []EntityTotal {
	ranked := make([]EntityTotal, len(totals))
	copy(ranked, totals)
	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].Amount.Equal(ranked[j].Amount) {
			return ranked[i].Amount.GreaterThan(ranked[j].Amount)
		}
		return ranked[i].order < ranked[j].order
	})
	return ranked
}

// TopKSharePct returns the share of the overall total captured by the
// top k entities by amount; 0 when the overall total is zero.
func TopKSharePct(totals []EntityTotal, k int) float64 {
	whole := decimal.Zero
	for _, t := range totals {
		whole = whole.Add(t.Amount)
	}
	ranked := RankByAmount(totals)
	if k < 0 {
		k = 0
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	top := decimal.Zero
	for _, t := range ranked[:k] {
		top = top.Add(t.Amount)
	}
	return SafePct(top, whole)
}

// SumTotals adds up all entity amounts.
func SumTotals(totals []EntityTotal) decimal.Decimal {
	whole := decimal.Zero
	for _, t := range totals {
		whole = whole.Add(t.Amount)
	}
	return whole
}
