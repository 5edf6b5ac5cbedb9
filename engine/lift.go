/*
lift.go - Baseline lift: scoped share vs national share

A category's lift within a state is the ratio of the category's spend
share inside the state to its share nationally. Lift above 1 means the
category is over-represented in that state. The metric is only
meaningful when the scope is a single narrowing along one axis; the
orchestrator enforces that precondition and simply omits lift for any
other scope rather than publish a misleading number.
*/
package engine

import "github.com/shopspring/decimal"

// Lift compares a scoped partition's share of a dimension against the
// national baseline. Returns ok=false when the national share is zero:
// the ratio is undefined there, not infinite and not zero.
func Lift(scopedTotal, scopedDim, nationalTotal, nationalDim decimal.Decimal) (float64, bool) {
	scopedShare := share(scopedDim, scopedTotal)
	nationalShare := share(nationalDim, nationalTotal)
	if nationalShare <= 0 {
		return 0, false
	}
	return scopedShare / nationalShare, true
}

func share(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	f, _ := part.Div(whole).Float64()
	return f
}
