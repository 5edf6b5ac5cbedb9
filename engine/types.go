/*
Package engine is the aggregation and anomaly-flagging core of the
MPLADS analytics dashboard.

PURPOSE:
  Turns heterogeneous, loosely-typed disclosure records (allocations,
  expenditures, work recommendations, work completions) into per-entity
  rollups, guarded ratio metrics, baseline lift comparisons, and
  rule-based anomaly flags.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: loosely-typed row access shared by all four record kinds
  - Dim/Measure: named dimensions and amount fields used for grouping
  - AllocationRecord et al: the four raw record kinds
  - RecordSource/Filter: the storage boundary consumed by the engine

DESIGN PRINCIPLES:
  1. Statelessness: every query is a cold re-aggregation; nothing is
     cached between calls and nothing mutates shared structures.
  2. Precision: decimal.Decimal for money, decimal.NullDecimal where the
     source value may be missing so "zero" and "absent" stay distinct.
  3. Conservation: records with missing dimension values aggregate under
     an explicit sentinel bucket, never silently dropped.

SEE ALSO:
  - aggregate.go: single-pass group-by rollups
  - metrics.go:   guarded ratio/share metrics
  - flags.go:     declarative anomaly rule tables
  - profile.go:   per-query orchestration
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIMENSIONS AND MEASURES
// =============================================================================

// Dim names a grouping dimension a record can be keyed by.
type Dim string

const (
	DimMP           Dim = "mp"
	DimState        Dim = "state"
	DimConstituency Dim = "constituency"
	DimVendor       Dim = "vendor"
	DimActivity     Dim = "activity"

	// DimMonth is virtual: derived from the record's raw date string via
	// NormalizeDate, formatted as YYYY-MM. Records whose date does not
	// normalize carry no month value.
	DimMonth Dim = "month"
)

// Unknown is the sentinel bucket for records missing a dimension value.
// Using an explicit bucket keeps per-dimension totals equal to the
// unpartitioned total.
const Unknown = "(unknown)"

// Measure names a summable amount field.
type Measure string

const (
	MeasureSpent       Measure = "spent"       // expenditure disbursed amount
	MeasureAllocated   Measure = "allocated"   // allocation limit
	MeasureRecommended Measure = "recommended" // recommended work amount
	MeasureActual      Measure = "actual"      // completed work actual amount
	MeasureProofs      Measure = "proofs"      // 1 per completion with a proof reference
)

// Record is the loosely-typed row view the aggregator operates on.
// Missing dimensions return "", missing amounts return an invalid
// NullDecimal; the aggregator applies sentinel/zero policy itself.
type Record interface {
	Dim(d Dim) string
	Amount(m Measure) decimal.NullDecimal
	RawDate() string
}

// =============================================================================
// RAW RECORD KINDS
// =============================================================================

// AllocationRecord is one row per MP: the total limit assigned to that
// legislator for the program period.
type AllocationRecord struct {
	MPName       string
	State        string
	Constituency string
	Allocated    decimal.NullDecimal
}

func (r AllocationRecord) Dim(d Dim) string {
	switch d {
	case DimMP:
		return r.MPName
	case DimState:
		return r.State
	case DimConstituency:
		return r.Constituency
	}
	return ""
}

func (r AllocationRecord) Amount(m Measure) decimal.NullDecimal {
	if m == MeasureAllocated {
		return r.Allocated
	}
	return decimal.NullDecimal{}
}

func (r AllocationRecord) RawDate() string { return "" }

// ExpenditureRecord is an actual disbursed payment to a vendor under an
// MP's allocation.
type ExpenditureRecord struct {
	MPName    string
	State     string
	Vendor    string
	Activity  string
	Disbursed decimal.NullDecimal
	DateRaw   string
	WorkID    string // optional link to a recommended work
}

func (r ExpenditureRecord) Dim(d Dim) string {
	switch d {
	case DimMP:
		return r.MPName
	case DimState:
		return r.State
	case DimVendor:
		return r.Vendor
	case DimActivity:
		return r.Activity
	}
	return ""
}

func (r ExpenditureRecord) Amount(m Measure) decimal.NullDecimal {
	if m == MeasureSpent {
		return r.Disbursed
	}
	return decimal.NullDecimal{}
}

func (r ExpenditureRecord) RawDate() string { return r.DateRaw }

// RecommendationRecord is a proposed work item an MP requested funding for.
type RecommendationRecord struct {
	MPName      string
	State       string
	Activity    string
	Description string
	Recommended decimal.NullDecimal
	DateRaw     string
	WorkID      string
}

func (r RecommendationRecord) Dim(d Dim) string {
	switch d {
	case DimMP:
		return r.MPName
	case DimState:
		return r.State
	case DimActivity:
		return r.Activity
	}
	return ""
}

func (r RecommendationRecord) Amount(m Measure) decimal.NullDecimal {
	if m == MeasureRecommended {
		return r.Recommended
	}
	return decimal.NullDecimal{}
}

func (r RecommendationRecord) RawDate() string { return r.DateRaw }

// CompletionRecord marks a recommended work finished. A non-empty
// ProofRef signals an uploaded proof document ("transparent").
type CompletionRecord struct {
	MPName       string
	State        string
	Activity     string
	WorkID       string
	EndDateRaw   string
	ProofRef     string // empty when no proof was attached
	ActualAmount decimal.NullDecimal
}

func (r CompletionRecord) Dim(d Dim) string {
	switch d {
	case DimMP:
		return r.MPName
	case DimState:
		return r.State
	case DimActivity:
		return r.Activity
	}
	return ""
}

func (r CompletionRecord) Amount(m Measure) decimal.NullDecimal {
	switch m {
	case MeasureActual:
		return r.ActualAmount
	case MeasureProofs:
		if r.HasProof() {
			return decimal.NewNullDecimal(decimal.NewFromInt(1))
		}
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{}
}

func (r CompletionRecord) RawDate() string { return r.EndDateRaw }

func (r CompletionRecord) HasProof() bool { return r.ProofRef != "" }

// =============================================================================
// STORAGE BOUNDARY
// =============================================================================

// Filter carries the equality predicates the storage collaborator can
// evaluate natively. An empty field means "no constraint". Fields that
// do not exist on a record set (e.g. Vendor on allocations) are ignored
// by the implementation for that set.
type Filter struct {
	MP       string
	State    string
	Vendor   string
	Activity string
}

// RecordSource is the engine's only view of storage: four named record
// sets behind simple equality predicates. Date-range filtering happens
// in-process because the source date encoding is not reliably parseable
// by the store.
type RecordSource interface {
	Allocations(ctx context.Context, f Filter) ([]AllocationRecord, error)
	Expenditures(ctx context.Context, f Filter) ([]ExpenditureRecord, error)
	Recommendations(ctx context.Context, f Filter) ([]RecommendationRecord, error)
	Completions(ctx context.Context, f Filter) ([]CompletionRecord, error)
}

// Dataset is a full replacement record set, produced by ingestion and
// handed to the store for an atomic swap.
type Dataset struct {
	Allocations     []AllocationRecord
	Expenditures    []ExpenditureRecord
	Recommendations []RecommendationRecord
	Completions     []CompletionRecord
}
