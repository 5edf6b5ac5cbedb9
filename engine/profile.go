/*
profile.go - Per-query orchestration of the aggregation pipeline

PURPOSE:
  Composes the pipeline stages into entity profiles: fetch the relevant
  raw record subsets through the storage boundary (equality filters
  only), run date-range filtering and bucketing in-process, derive
  metrics, compute lift where the scope allows it, evaluate the anomaly
  rule tables, and assemble the response.

QUERY MODEL:
  Every call is a self-contained cold computation: no cross-request
  cache, no shared mutable state. The injected clock fixes "now" for
  plausibility filtering and relative windows so results are
  deterministic under test.

ERROR CONTRACT:
  ErrNotFound when the primary entity is absent from its defining record
  set; every other fault is wrapped as a ComputationError.
*/
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCOPE
// =============================================================================

// Scope carries the optional query filters accepted at the boundary.
type Scope struct {
	State    string
	MP       string
	Vendor   string
	Activity string

	// Months is a relative window ending at now. Ignored when an
	// explicit From/To range is set.
	Months int
	From   *time.Time
	To     *time.Time

	// Limit caps ranked sub-entity lists. Zero means the default.
	Limit int
}

func (s Scope) filter() Filter {
	return Filter{MP: s.MP, State: s.State, Vendor: s.Vendor, Activity: s.Activity}
}

// window resolves the scope to a concrete date range. A Months window
// starts at the first day of the month Months months before now.
func (s Scope) window(now time.Time) (from, to *time.Time) {
	if s.From != nil || s.To != nil {
		return s.From, s.To
	}
	if s.Months > 0 {
		start := now.AddDate(0, -s.Months, 0)
		start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &start, nil
	}
	return nil, nil
}

func (s Scope) limitOr(def int) int {
	if s.Limit > 0 {
		return s.Limit
	}
	return def
}

// =============================================================================
// PROFILE TYPES
// =============================================================================

// Overview is the global (or scope-filtered) headline rollup.
type Overview struct {
	TotalAllocated   decimal.Decimal
	TotalSpent       decimal.Decimal
	WorksRecommended int
	WorksCompleted   int
	Utilization      float64
	Completion       float64
}

// MPSummary is one MP's rollup row.
type MPSummary struct {
	Name         string
	State        string
	Constituency string
	Allocated    decimal.NullDecimal
	Spent        decimal.Decimal

	RecommendedCount int
	CompletedCount   int
	ProofCount       int

	Utilization  float64
	Completion   float64
	Transparency float64
}

// Share is a ranked sub-entity with its portion of the parent total.
type Share struct {
	Name     string
	Amount   decimal.Decimal
	Count    int
	SharePct float64
}

// MonthPoint is one entry of an ascending YYYY-MM series.
type MonthPoint struct {
	Month  string
	Amount decimal.Decimal
	Count  int
}

// WorkItem is a recommended work joined with its completion, if any.
type WorkItem struct {
	WorkID        string
	Description   string
	Activity      string
	Recommended   decimal.NullDecimal
	DateRaw       string
	Completed     bool
	CompletedDate string
	HasProof      bool
	ActualAmount  decimal.NullDecimal
}

// MPProfile is the full per-MP response.
type MPProfile struct {
	Summary            MPSummary
	UnprovedSpendShare float64
	TopVendors         []Share
	TopActivities      []Share
	MonthlySpend       []MonthPoint
	RecentWorks        []WorkItem
	Flags              []Flag
}

// VendorWork is one payment row in a vendor's history.
type VendorWork struct {
	MPName   string
	State    string
	Activity string
	Amount   decimal.NullDecimal
	DateRaw  string
}

// VendorSummary is one vendor's rollup row.
type VendorSummary struct {
	Name          string
	TotalReceived decimal.Decimal
	PaymentCount  int
	MPCount       int
}

// VendorProfile is the full per-vendor response.
type VendorProfile struct {
	Summary         VendorSummary
	StateCount      int
	TopMPs          []Share
	TopActivities   []Share
	MonthlyReceived []MonthPoint
	RecentWorks     []VendorWork
}

// StateSummary is one state's rollup row.
type StateSummary struct {
	State     string
	Allocated decimal.Decimal
	Spent     decimal.Decimal
	MPCount   int

	RecommendedCount int
	CompletedCount   int
	ProofCount       int

	Utilization  float64
	Completion   float64
	Transparency float64
}

// StateProfile is the full per-state response.
type StateProfile struct {
	Summary      StateSummary
	TopMPs       []Share
	TopVendors   []Share
	MonthlySpend []MonthPoint
	Flags        []Flag
}

// CategoryProfile is the full per-category response, optionally scoped
// to one state.
type CategoryProfile struct {
	Activity string
	State    string // empty for the national view

	Spent            decimal.Decimal
	RecommendedCount int
	CompletedCount   int
	ProofCount       int
	Transparency     float64

	MPCount         int
	DistinctVendors int
	Top3VendorShare float64

	// Lift is only set when the scope narrows on exactly one state with
	// no secondary narrowing; otherwise it is omitted rather than
	// computed against a meaningless baseline.
	Lift *float64

	TopVendors   []Share
	TopStates    []Share // national view
	TopMPs       []Share // state-scoped view
	MonthlySpend []MonthPoint
	Flags        []Flag
}

// TrendPoint merges monthly spend with monthly completion counts.
type TrendPoint struct {
	Month     string
	Spent     decimal.Decimal
	Completed int
}

// TopBottom is the heroes-and-zeroes listing.
type TopBottom struct {
	TopSpenders    []MPSummary
	ZeroSpenders   []MPSummary
	TopTransparent []MPSummary
}

// NationalAverages are the unscoped per-MP metric means used by the
// above/below-average anomaly rules.
type NationalAverages struct {
	Utilization  float64
	Completion   float64
	Transparency float64
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder orchestrates profile computation over a RecordSource.
type Builder struct {
	source RecordSource
	now    func() time.Time
}

// NewBuilder wires a builder to its storage boundary.
func NewBuilder(source RecordSource) *Builder {
	return &Builder{source: source, now: time.Now}
}

// WithClock replaces the wall clock. Tests inject a fixed time so
// plausibility filtering and relative windows are deterministic.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.now = clock
	return b
}

func (b *Builder) spec(scope Scope, now time.Time) AggSpec {
	from, to := scope.window(now)
	return AggSpec{Now: now, From: from, To: to}
}

// -----------------------------------------------------------------------------
// Overview
// -----------------------------------------------------------------------------

// Overview returns headline totals for the whole dataset or a filtered
// slice of it.
func (b *Builder) Overview(ctx context.Context, scope Scope) (*Overview, error) {
	now := b.now()
	f := scope.filter()

	allocs, err := b.source.Allocations(ctx, f)
	if err != nil {
		return nil, computeErr("overview: allocations", err)
	}
	exp, err := b.source.Expenditures(ctx, f)
	if err != nil {
		return nil, computeErr("overview: expenditures", err)
	}
	recs, err := b.source.Recommendations(ctx, f)
	if err != nil {
		return nil, computeErr("overview: recommendations", err)
	}
	comps, err := b.source.Completions(ctx, f)
	if err != nil {
		return nil, computeErr("overview: completions", err)
	}

	spec := b.spec(scope, now)
	spentSpec := spec
	spentSpec.Sum = []Measure{MeasureSpent}

	allocated := Aggregate(allocs, AggSpec{Sum: []Measure{MeasureAllocated}, Now: now}).Total(MeasureAllocated)
	spent := Aggregate(exp, spentSpec).Total(MeasureSpent)
	recommended := Aggregate(recs, spec).TotalCount()
	completed := Aggregate(comps, spec).TotalCount()

	return &Overview{
		TotalAllocated:   allocated,
		TotalSpent:       spent,
		WorksRecommended: recommended,
		WorksCompleted:   completed,
		Utilization:      SafePct(spent, allocated),
		Completion:       CompletionRate(completed, recommended),
	}, nil
}

// -----------------------------------------------------------------------------
// MP profiles
// -----------------------------------------------------------------------------

// MPSort selects the ordering of ListMPs.
type MPSort string

const (
	SortBySpent        MPSort = "expenditure"
	SortByCompletion   MPSort = "completion"
	SortByTransparency MPSort = "transparency"
)

// ListMPs returns per-MP rollups across the whole dataset, sorted and
// truncated.
func (b *Builder) ListMPs(ctx context.Context, sortBy MPSort, limit int) ([]MPSummary, error) {
	summaries, err := b.mpSummaries(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	less := func(i, j int) bool { return summaries[i].Spent.GreaterThan(summaries[j].Spent) }
	switch sortBy {
	case SortByCompletion:
		less = func(i, j int) bool { return summaries[i].Completion > summaries[j].Completion }
	case SortByTransparency:
		less = func(i, j int) bool { return summaries[i].Transparency > summaries[j].Transparency }
	}
	sort.SliceStable(summaries, less)

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// MPProfile assembles the full profile for one MP.
func (b *Builder) MPProfile(ctx context.Context, name string, scope Scope) (*MPProfile, error) {
	now := b.now()

	allocs, err := b.source.Allocations(ctx, Filter{MP: name})
	if err != nil {
		return nil, computeErr("mp profile: allocations", err)
	}
	if len(allocs) == 0 {
		return nil, &NotFoundError{Kind: "mp", Name: name}
	}
	alloc := allocs[0]

	f := Filter{MP: name}
	exp, err := b.source.Expenditures(ctx, f)
	if err != nil {
		return nil, computeErr("mp profile: expenditures", err)
	}
	recs, err := b.source.Recommendations(ctx, f)
	if err != nil {
		return nil, computeErr("mp profile: recommendations", err)
	}
	comps, err := b.source.Completions(ctx, f)
	if err != nil {
		return nil, computeErr("mp profile: completions", err)
	}

	spec := b.spec(scope, now)

	spentSpec := spec
	spentSpec.Sum = []Measure{MeasureSpent}
	spent := Aggregate(exp, spentSpec).Total(MeasureSpent)

	vendorSpec := spentSpec
	vendorSpec.GroupBy = []Dim{DimVendor}
	vendorTotals := Totals(Aggregate(exp, vendorSpec), MeasureSpent)

	activitySpec := spentSpec
	activitySpec.GroupBy = []Dim{DimActivity}
	activityTotals := Totals(Aggregate(exp, activitySpec), MeasureSpent)

	monthSpec := spentSpec
	monthSpec.GroupBy = []Dim{DimMonth}
	monthly := monthPoints(Aggregate(exp, monthSpec), MeasureSpent)

	recommended := Aggregate(recs, spec).TotalCount()

	compSpec := spec
	compSpec.Sum = []Measure{MeasureProofs}
	compRes := Aggregate(comps, compSpec)
	completed := compRes.TotalCount()
	proofs := int(compRes.Total(MeasureProofs).IntPart())

	unproved := unprovedSpendShare(exp, comps, spec, spent)

	summary := MPSummary{
		Name:             alloc.MPName,
		State:            alloc.State,
		Constituency:     alloc.Constituency,
		Allocated:        alloc.Allocated,
		Spent:            spent,
		RecommendedCount: recommended,
		CompletedCount:   completed,
		ProofCount:       proofs,
		Utilization:      UtilizationRate(spent, alloc.Allocated),
		Completion:       CompletionRate(completed, recommended),
		Transparency:     TransparencyScore(proofs, completed),
	}

	national, err := b.nationalAverages(ctx)
	if err != nil {
		return nil, err
	}

	flags := EvaluateRules(EntityRules, RuleInput{
		Subject:              summary.Name,
		TotalSpent:           spent,
		Utilization:          summary.Utilization,
		Completion:           summary.Completion,
		Transparency:         summary.Transparency,
		RecommendedCount:     recommended,
		CompletedCount:       completed,
		Top3VendorShare:      TopKSharePct(vendorTotals, 3),
		DistinctVendors:      knownCount(vendorTotals),
		UnprovedSpendShare:   unproved,
		NationalUtilization:  national.Utilization,
		NationalCompletion:   national.Completion,
		NationalTransparency: national.Transparency,
	})

	limit := scope.limitOr(5)
	return &MPProfile{
		Summary:            summary,
		UnprovedSpendShare: unproved,
		TopVendors:         topShares(vendorTotals, spent, limit),
		TopActivities:      topShares(activityTotals, spent, limit),
		MonthlySpend:       monthly,
		RecentWorks:        recentWorks(recs, comps, spec, 50),
		Flags:              flags,
	}, nil
}

// mpSummaries builds one summary per MP present in the allocation set.
// MPs appearing only in other record sets are excluded, mirroring how
// the allocation table defines the program's roster.
func (b *Builder) mpSummaries(ctx context.Context, f Filter) ([]MPSummary, error) {
	now := b.now()

	allocs, err := b.source.Allocations(ctx, f)
	if err != nil {
		return nil, computeErr("mp summaries: allocations", err)
	}
	exp, err := b.source.Expenditures(ctx, f)
	if err != nil {
		return nil, computeErr("mp summaries: expenditures", err)
	}
	recs, err := b.source.Recommendations(ctx, f)
	if err != nil {
		return nil, computeErr("mp summaries: recommendations", err)
	}
	comps, err := b.source.Completions(ctx, f)
	if err != nil {
		return nil, computeErr("mp summaries: completions", err)
	}

	byMP := AggSpec{GroupBy: []Dim{DimMP}, Now: now}

	spentSpec := byMP
	spentSpec.Sum = []Measure{MeasureSpent}
	spentRes := Aggregate(exp, spentSpec)

	recRes := Aggregate(recs, byMP)

	compSpec := byMP
	compSpec.Sum = []Measure{MeasureProofs}
	compRes := Aggregate(comps, compSpec)

	summaries := make([]MPSummary, 0, len(allocs))
	for _, a := range allocs {
		s := MPSummary{
			Name:         a.MPName,
			State:        a.State,
			Constituency: a.Constituency,
			Allocated:    a.Allocated,
		}
		if bkt := spentRes.Get(a.MPName); bkt != nil {
			s.Spent = bkt.Sum(MeasureSpent)
		}
		if bkt := recRes.Get(a.MPName); bkt != nil {
			s.RecommendedCount = bkt.Count
		}
		if bkt := compRes.Get(a.MPName); bkt != nil {
			s.CompletedCount = bkt.Count
			s.ProofCount = int(bkt.Sum(MeasureProofs).IntPart())
		}
		s.Utilization = UtilizationRate(s.Spent, s.Allocated)
		s.Completion = CompletionRate(s.CompletedCount, s.RecommendedCount)
		s.Transparency = TransparencyScore(s.ProofCount, s.CompletedCount)
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// nationalAverages computes the unscoped per-MP metric means.
func (b *Builder) nationalAverages(ctx context.Context) (NationalAverages, error) {
	summaries, err := b.mpSummaries(ctx, Filter{})
	if err != nil {
		return NationalAverages{}, err
	}
	if len(summaries) == 0 {
		return NationalAverages{}, nil
	}
	var avg NationalAverages
	for _, s := range summaries {
		avg.Utilization += s.Utilization
		avg.Completion += s.Completion
		avg.Transparency += s.Transparency
	}
	n := float64(len(summaries))
	avg.Utilization /= n
	avg.Completion /= n
	avg.Transparency /= n
	return avg, nil
}

// TopBottom returns the heroes-and-zeroes lists.
func (b *Builder) TopBottom(ctx context.Context) (*TopBottom, error) {
	summaries, err := b.mpSummaries(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	bySpent := make([]MPSummary, len(summaries))
	copy(bySpent, summaries)
	sort.SliceStable(bySpent, func(i, j int) bool {
		return bySpent[i].Spent.GreaterThan(bySpent[j].Spent)
	})

	// Zero spenders: least spend among MPs that do have an allocation.
	funded := make([]MPSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.Allocated.Valid && s.Allocated.Decimal.IsPositive() {
			funded = append(funded, s)
		}
	}
	sort.SliceStable(funded, func(i, j int) bool {
		return funded[i].Spent.LessThan(funded[j].Spent)
	})

	byProofs := make([]MPSummary, len(summaries))
	copy(byProofs, summaries)
	sort.SliceStable(byProofs, func(i, j int) bool {
		return byProofs[i].ProofCount > byProofs[j].ProofCount
	})

	return &TopBottom{
		TopSpenders:    capLen(bySpent, 10),
		ZeroSpenders:   capLen(funded, 10),
		TopTransparent: capLen(byProofs, 10),
	}, nil
}

// -----------------------------------------------------------------------------
// Vendor profiles
// -----------------------------------------------------------------------------

// TopVendors ranks vendors by total amount received.
func (b *Builder) TopVendors(ctx context.Context, limit int) ([]VendorSummary, error) {
	exp, err := b.source.Expenditures(ctx, Filter{})
	if err != nil {
		return nil, computeErr("top vendors: expenditures", err)
	}

	res := Aggregate(exp, AggSpec{
		GroupBy:  []Dim{DimVendor},
		Sum:      []Measure{MeasureSpent},
		Distinct: []Dim{DimMP},
		Now:      b.now(),
	})

	type row struct {
		t       EntityTotal
		mpCount int
	}
	rows := make([]row, 0, len(res.Buckets))
	for _, bkt := range res.Buckets {
		rows = append(rows, row{
			t:       EntityTotal{Name: bkt.Key[0], Amount: bkt.Sum(MeasureSpent), Count: bkt.Count, order: bkt.Order()},
			mpCount: bkt.DistinctCount(DimMP),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].t.Amount.Equal(rows[j].t.Amount) {
			return rows[i].t.Amount.GreaterThan(rows[j].t.Amount)
		}
		return rows[i].t.order < rows[j].t.order
	})

	if limit <= 0 {
		limit = 50
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]VendorSummary, len(rows))
	for i, r := range rows {
		out[i] = VendorSummary{
			Name:          r.t.Name,
			TotalReceived: r.t.Amount,
			PaymentCount:  r.t.Count,
			MPCount:       r.mpCount,
		}
	}
	return out, nil
}

// VendorProfile assembles the full profile for one vendor.
func (b *Builder) VendorProfile(ctx context.Context, name string, scope Scope) (*VendorProfile, error) {
	now := b.now()

	exp, err := b.source.Expenditures(ctx, Filter{Vendor: name, State: scope.State})
	if err != nil {
		return nil, computeErr("vendor profile: expenditures", err)
	}
	if len(exp) == 0 {
		return nil, &NotFoundError{Kind: "vendor", Name: name}
	}

	spec := b.spec(scope, now)

	totalSpec := spec
	totalSpec.Sum = []Measure{MeasureSpent}
	totalSpec.Distinct = []Dim{DimMP, DimState}
	res := Aggregate(exp, totalSpec)
	total := res.Total(MeasureSpent)

	// Ungrouped pass: coverage counts live in the single global bucket,
	// absent only when every record fell to the range filter.
	var mpCount, stateCount int
	if bkt := res.Get(); bkt != nil {
		mpCount = bkt.DistinctCount(DimMP)
		stateCount = bkt.DistinctCount(DimState)
	}

	mpSpec := totalSpec
	mpSpec.Distinct = nil
	mpSpec.GroupBy = []Dim{DimMP}
	mpTotals := Totals(Aggregate(exp, mpSpec), MeasureSpent)

	actSpec := mpSpec
	actSpec.GroupBy = []Dim{DimActivity}
	activityTotals := Totals(Aggregate(exp, actSpec), MeasureSpent)

	monthSpec := mpSpec
	monthSpec.GroupBy = []Dim{DimMonth}
	monthly := monthPoints(Aggregate(exp, monthSpec), MeasureSpent)

	limit := scope.limitOr(5)
	return &VendorProfile{
		Summary: VendorSummary{
			Name:          name,
			TotalReceived: total,
			PaymentCount:  res.TotalCount(),
			MPCount:       mpCount,
		},
		StateCount:      stateCount,
		TopMPs:          topShares(mpTotals, total, limit),
		TopActivities:   topShares(activityTotals, total, limit),
		MonthlyReceived: monthly,
		RecentWorks:     vendorWorks(exp, spec, 100),
	}, nil
}

// -----------------------------------------------------------------------------
// State profiles
// -----------------------------------------------------------------------------

// StateProfiles returns one summary per state, ordered by allocation
// descending.
func (b *Builder) StateProfiles(ctx context.Context) ([]StateSummary, error) {
	summaries, err := b.stateSummaries(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Allocated.GreaterThan(summaries[j].Allocated)
	})
	return summaries, nil
}

// StateProfile assembles the full profile for one state, including the
// entity anomaly rules evaluated at state granularity.
func (b *Builder) StateProfile(ctx context.Context, name string, scope Scope) (*StateProfile, error) {
	now := b.now()

	allocs, err := b.source.Allocations(ctx, Filter{State: name})
	if err != nil {
		return nil, computeErr("state profile: allocations", err)
	}
	if len(allocs) == 0 {
		return nil, &NotFoundError{Kind: "state", Name: name}
	}

	f := Filter{State: name}
	exp, err := b.source.Expenditures(ctx, f)
	if err != nil {
		return nil, computeErr("state profile: expenditures", err)
	}
	recs, err := b.source.Recommendations(ctx, f)
	if err != nil {
		return nil, computeErr("state profile: recommendations", err)
	}
	comps, err := b.source.Completions(ctx, f)
	if err != nil {
		return nil, computeErr("state profile: completions", err)
	}

	spec := b.spec(scope, now)

	allocated := Aggregate(allocs, AggSpec{Sum: []Measure{MeasureAllocated}, Now: now}).Total(MeasureAllocated)

	spentSpec := spec
	spentSpec.Sum = []Measure{MeasureSpent}
	spent := Aggregate(exp, spentSpec).Total(MeasureSpent)

	recommended := Aggregate(recs, spec).TotalCount()

	compSpec := spec
	compSpec.Sum = []Measure{MeasureProofs}
	compRes := Aggregate(comps, compSpec)
	completed := compRes.TotalCount()
	proofs := int(compRes.Total(MeasureProofs).IntPart())

	mpSpec := spentSpec
	mpSpec.GroupBy = []Dim{DimMP}
	mpTotals := Totals(Aggregate(exp, mpSpec), MeasureSpent)

	vendorSpec := spentSpec
	vendorSpec.GroupBy = []Dim{DimVendor}
	vendorTotals := Totals(Aggregate(exp, vendorSpec), MeasureSpent)

	monthSpec := spentSpec
	monthSpec.GroupBy = []Dim{DimMonth}
	monthly := monthPoints(Aggregate(exp, monthSpec), MeasureSpent)

	summary := StateSummary{
		State:            name,
		Allocated:        allocated,
		Spent:            spent,
		MPCount:          len(allocs),
		RecommendedCount: recommended,
		CompletedCount:   completed,
		ProofCount:       proofs,
		Utilization:      SafePct(spent, allocated),
		Completion:       CompletionRate(completed, recommended),
		Transparency:     TransparencyScore(proofs, completed),
	}

	national, err := b.nationalAverages(ctx)
	if err != nil {
		return nil, err
	}

	flags := EvaluateRules(EntityRules, RuleInput{
		Subject:              name,
		TotalSpent:           spent,
		Utilization:          summary.Utilization,
		Completion:           summary.Completion,
		Transparency:         summary.Transparency,
		RecommendedCount:     recommended,
		CompletedCount:       completed,
		Top3VendorShare:      TopKSharePct(vendorTotals, 3),
		DistinctVendors:      knownCount(vendorTotals),
		UnprovedSpendShare:   unprovedSpendShare(exp, comps, spec, spent),
		NationalUtilization:  national.Utilization,
		NationalCompletion:   national.Completion,
		NationalTransparency: national.Transparency,
	})

	limit := scope.limitOr(10)
	return &StateProfile{
		Summary:      summary,
		TopMPs:       topShares(mpTotals, spent, limit),
		TopVendors:   topShares(vendorTotals, spent, limit),
		MonthlySpend: monthly,
		Flags:        flags,
	}, nil
}

func (b *Builder) stateSummaries(ctx context.Context) ([]StateSummary, error) {
	now := b.now()

	allocs, err := b.source.Allocations(ctx, Filter{})
	if err != nil {
		return nil, computeErr("state summaries: allocations", err)
	}
	exp, err := b.source.Expenditures(ctx, Filter{})
	if err != nil {
		return nil, computeErr("state summaries: expenditures", err)
	}
	recs, err := b.source.Recommendations(ctx, Filter{})
	if err != nil {
		return nil, computeErr("state summaries: recommendations", err)
	}
	comps, err := b.source.Completions(ctx, Filter{})
	if err != nil {
		return nil, computeErr("state summaries: completions", err)
	}

	byState := AggSpec{GroupBy: []Dim{DimState}, Now: now}

	allocSpec := byState
	allocSpec.Sum = []Measure{MeasureAllocated}
	allocRes := Aggregate(allocs, allocSpec)

	spentSpec := byState
	spentSpec.Sum = []Measure{MeasureSpent}
	spentRes := Aggregate(exp, spentSpec)

	recRes := Aggregate(recs, byState)

	compSpec := byState
	compSpec.Sum = []Measure{MeasureProofs}
	compRes := Aggregate(comps, compSpec)

	summaries := make([]StateSummary, 0, len(allocRes.Buckets))
	for _, bkt := range allocRes.Sorted() {
		name := bkt.Key[0]
		s := StateSummary{
			State:     name,
			Allocated: bkt.Sum(MeasureAllocated),
			MPCount:   bkt.Count,
		}
		if sb := spentRes.Get(name); sb != nil {
			s.Spent = sb.Sum(MeasureSpent)
		}
		if rb := recRes.Get(name); rb != nil {
			s.RecommendedCount = rb.Count
		}
		if cb := compRes.Get(name); cb != nil {
			s.CompletedCount = cb.Count
			s.ProofCount = int(cb.Sum(MeasureProofs).IntPart())
		}
		s.Utilization = SafePct(s.Spent, s.Allocated)
		s.Completion = CompletionRate(s.CompletedCount, s.RecommendedCount)
		s.Transparency = TransparencyScore(s.ProofCount, s.CompletedCount)
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// -----------------------------------------------------------------------------
// Category profiles
// -----------------------------------------------------------------------------

// CategoryProfile assembles the rollup for one activity category,
// nationally or narrowed to a single state.
func (b *Builder) CategoryProfile(ctx context.Context, activity string, scope Scope) (*CategoryProfile, error) {
	now := b.now()

	f := Filter{Activity: activity, State: scope.State}
	exp, err := b.source.Expenditures(ctx, f)
	if err != nil {
		return nil, computeErr("category profile: expenditures", err)
	}
	recs, err := b.source.Recommendations(ctx, f)
	if err != nil {
		return nil, computeErr("category profile: recommendations", err)
	}
	comps, err := b.source.Completions(ctx, f)
	if err != nil {
		return nil, computeErr("category profile: completions", err)
	}
	if len(exp) == 0 && len(recs) == 0 {
		return nil, &NotFoundError{Kind: "category", Name: activity}
	}

	spec := b.spec(scope, now)

	totalSpec := spec
	totalSpec.Sum = []Measure{MeasureSpent}
	totalSpec.Distinct = []Dim{DimMP}
	res := Aggregate(exp, totalSpec)
	spent := res.Total(MeasureSpent)
	mpCount := 0
	if bkt := res.Get(); bkt != nil {
		mpCount = bkt.DistinctCount(DimMP)
	}

	recommended := Aggregate(recs, spec).TotalCount()

	compSpec := spec
	compSpec.Sum = []Measure{MeasureProofs}
	compRes := Aggregate(comps, compSpec)
	completed := compRes.TotalCount()
	proofs := int(compRes.Total(MeasureProofs).IntPart())

	vendorSpec := spec
	vendorSpec.Sum = []Measure{MeasureSpent}
	vendorSpec.GroupBy = []Dim{DimVendor}
	vendorTotals := Totals(Aggregate(exp, vendorSpec), MeasureSpent)

	monthSpec := vendorSpec
	monthSpec.GroupBy = []Dim{DimMonth}
	monthly := monthPoints(Aggregate(exp, monthSpec), MeasureSpent)

	profile := &CategoryProfile{
		Activity:         activity,
		State:            scope.State,
		Spent:            spent,
		RecommendedCount: recommended,
		CompletedCount:   completed,
		ProofCount:       proofs,
		Transparency:     TransparencyScore(proofs, completed),
		MPCount:          mpCount,
		DistinctVendors:  knownCount(vendorTotals),
		Top3VendorShare:  TopKSharePct(vendorTotals, 3),
		MonthlySpend:     monthly,
	}

	limit := scope.limitOr(5)
	profile.TopVendors = topShares(vendorTotals, spent, limit)

	if scope.State == "" {
		stateSpec := vendorSpec
		stateSpec.GroupBy = []Dim{DimState}
		profile.TopStates = topShares(Totals(Aggregate(exp, stateSpec), MeasureSpent), spent, limit)
	} else {
		mpSpec := vendorSpec
		mpSpec.GroupBy = []Dim{DimMP}
		profile.TopMPs = topShares(Totals(Aggregate(exp, mpSpec), MeasureSpent), spent, limit)
	}

	// Lift only for a pure single-state narrowing: any secondary filter
	// would make the baseline comparison misleading, so it is omitted.
	if scope.State != "" && scope.MP == "" && scope.Vendor == "" {
		if err := b.attachLift(ctx, profile, activity, scope.State, spec); err != nil {
			return nil, err
		}
	}

	profile.Flags = EvaluateRules(CategoryRules, RuleInput{
		Subject:         activity,
		TotalSpent:      spent,
		Transparency:    profile.Transparency,
		CompletedCount:  completed,
		Top3VendorShare: profile.Top3VendorShare,
		DistinctVendors: profile.DistinctVendors,
		Lift:            profile.Lift,
		MPCount:         mpCount,
	})

	return profile, nil
}

// attachLift computes the state-vs-national lift from one unscoped
// expenditure fetch. The baselines carry the same date window as the
// scoped numerator so both shares cover the same record set.
func (b *Builder) attachLift(ctx context.Context, profile *CategoryProfile, activity, state string, spec AggSpec) error {
	all, err := b.source.Expenditures(ctx, Filter{})
	if err != nil {
		return computeErr("category lift: expenditures", err)
	}

	spentSpec := AggSpec{Sum: []Measure{MeasureSpent}, Now: spec.Now, From: spec.From, To: spec.To}
	nationalTotal := Aggregate(all, spentSpec).Total(MeasureSpent)

	byActivity := spentSpec
	byActivity.GroupBy = []Dim{DimActivity}
	nationalDim := decimal.Zero
	if bkt := Aggregate(all, byActivity).Get(activity); bkt != nil {
		nationalDim = bkt.Sum(MeasureSpent)
	}

	byState := spentSpec
	byState.GroupBy = []Dim{DimState}
	scopedTotal := decimal.Zero
	if bkt := Aggregate(all, byState).Get(state); bkt != nil {
		scopedTotal = bkt.Sum(MeasureSpent)
	}

	if lift, ok := Lift(scopedTotal, profile.Spent, nationalTotal, nationalDim); ok {
		profile.Lift = &lift
	}
	return nil
}

// -----------------------------------------------------------------------------
// Trends
// -----------------------------------------------------------------------------

// Trends merges monthly spend with monthly completion counts across the
// scope. Months are ascending; malformed dates contribute to no bucket.
func (b *Builder) Trends(ctx context.Context, scope Scope) ([]TrendPoint, error) {
	now := b.now()
	f := scope.filter()

	exp, err := b.source.Expenditures(ctx, f)
	if err != nil {
		return nil, computeErr("trends: expenditures", err)
	}
	comps, err := b.source.Completions(ctx, f)
	if err != nil {
		return nil, computeErr("trends: completions", err)
	}

	spec := b.spec(scope, now)
	spec.GroupBy = []Dim{DimMonth}

	spentSpec := spec
	spentSpec.Sum = []Measure{MeasureSpent}
	spendRes := Aggregate(exp, spentSpec)
	compRes := Aggregate(comps, spec)

	months := make(map[string]*TrendPoint)
	for key, bkt := range spendRes.Buckets {
		months[key] = &TrendPoint{Month: key, Spent: bkt.Sum(MeasureSpent)}
	}
	for key, bkt := range compRes.Buckets {
		p := months[key]
		if p == nil {
			p = &TrendPoint{Month: key}
			months[key] = p
		}
		p.Completed = bkt.Count
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TrendPoint, len(keys))
	for i, k := range keys {
		out[i] = *months[k]
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// topShares ranks entity totals and annotates each with its share of
// the whole.
func topShares(totals []EntityTotal, whole decimal.Decimal, limit int) []Share {
	ranked := RankByAmount(totals)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Share, len(ranked))
	for i, t := range ranked {
		out[i] = Share{
			Name:     t.Name,
			Amount:   t.Amount,
			Count:    t.Count,
			SharePct: SafePct(t.Amount, whole),
		}
	}
	return out
}

func capLen(s []MPSummary, n int) []MPSummary {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// knownCount counts entities excluding the Unknown sentinel bucket.
func knownCount(totals []EntityTotal) int {
	n := 0
	for _, t := range totals {
		if t.Name != Unknown {
			n++
		}
	}
	return n
}

// monthPoints converts a month-bucketed result into an ascending series.
func monthPoints(res *AggResult, m Measure) []MonthPoint {
	buckets := res.Sorted()
	out := make([]MonthPoint, len(buckets))
	for i, bkt := range buckets {
		out[i] = MonthPoint{Month: bkt.Key[0], Amount: bkt.Sum(m), Count: bkt.Count}
	}
	return out
}

// unprovedSpendShare computes the percentage of spend linked to
// completed-but-unproved works.
func unprovedSpendShare(exp []ExpenditureRecord, comps []CompletionRecord, spec AggSpec, totalSpent decimal.Decimal) float64 {
	unproved := make(map[string]struct{})
	for _, c := range comps {
		if c.WorkID != "" && !c.HasProof() {
			unproved[c.WorkID] = struct{}{}
		}
	}
	if len(unproved) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, e := range exp {
		if e.WorkID == "" {
			continue
		}
		if _, ok := unproved[e.WorkID]; !ok {
			continue
		}
		if !spec.admits(e.DateRaw) {
			continue
		}
		if e.Disbursed.Valid {
			sum = sum.Add(e.Disbursed.Decimal)
		}
	}
	return SafePct(sum, totalSpent)
}

// recentWorks joins recommendations with completions by work id and
// returns the most recent items first.
func recentWorks(recs []RecommendationRecord, comps []CompletionRecord, spec AggSpec, limit int) []WorkItem {
	compByWork := make(map[string]CompletionRecord, len(comps))
	for _, c := range comps {
		if c.WorkID != "" {
			compByWork[c.WorkID] = c
		}
	}

	type dated struct {
		item WorkItem
		at   time.Time
		ok   bool
	}
	items := make([]dated, 0, len(recs))
	for _, r := range recs {
		if !spec.admits(r.DateRaw) {
			continue
		}
		item := WorkItem{
			WorkID:      r.WorkID,
			Description: r.Description,
			Activity:    r.Activity,
			Recommended: r.Recommended,
			DateRaw:     r.DateRaw,
		}
		if c, ok := compByWork[r.WorkID]; ok && r.WorkID != "" {
			item.Completed = true
			item.CompletedDate = c.EndDateRaw
			item.HasProof = c.HasProof()
			item.ActualAmount = c.ActualAmount
		}
		d, ok := NormalizeDate(r.DateRaw)
		items = append(items, dated{item: item, at: d, ok: ok})
	}

	// Most recent first; undatable items sink to the end in input order.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ok != items[j].ok {
			return items[i].ok
		}
		return items[i].at.After(items[j].at)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]WorkItem, len(items))
	for i, d := range items {
		out[i] = d.item
	}
	return out
}

// vendorWorks lists a vendor's payment rows, most recent first.
func vendorWorks(exp []ExpenditureRecord, spec AggSpec, limit int) []VendorWork {
	type dated struct {
		work VendorWork
		at   time.Time
		ok   bool
	}
	items := make([]dated, 0, len(exp))
	for _, e := range exp {
		if !spec.admits(e.DateRaw) {
			continue
		}
		d, ok := NormalizeDate(e.DateRaw)
		items = append(items, dated{
			work: VendorWork{MPName: e.MPName, State: e.State, Activity: e.Activity, Amount: e.Disbursed, DateRaw: e.DateRaw},
			at:   d,
			ok:   ok,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ok != items[j].ok {
			return items[i].ok
		}
		return items[i].at.After(items[j].at)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]VendorWork, len(items))
	for i, d := range items {
		out[i] = d.work
	}
	return out
}
