/*
aggregate.go - Single-pass group-by rollups over raw records

PURPOSE:
  One generic aggregation pass serves every profile: group records by a
  list of dimensions (possibly including the virtual month dimension),
  sum the requested measures, count records, and track distinct values
  for coverage dimensions.

GUARANTEES:
  - O(n) in record count, O(distinct key tuples) memory, single pass.
  - Re-entrant: no state survives between calls.
  - Conservation: a missing dimension value lands in the Unknown bucket;
    a record only leaves the pass entirely when an active date-range
    filter excludes it (including when the range is active and no date
    parses at all).
  - Month bucketing: records without a plausible date join no month
    bucket; their mass is kept visible in the Undated pool.

The row-view style of grouping (records behind a narrow accessor
interface, keys joined from extracted dimension strings) follows the
same shape as a chart-engine group-by: extract key per row, append to
bucket, aggregate per bucket.
*/
package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// keySep joins composite key parts. Unit separator: never appears in
// source dimension values.
const keySep = "\x1f"

// =============================================================================
// SPEC AND RESULT TYPES
// =============================================================================

// AggSpec describes one aggregation pass.
type AggSpec struct {
	GroupBy  []Dim     // key dimensions; empty means one global bucket
	Sum      []Measure // measures to sum per bucket
	Distinct []Dim     // dimensions to track distinct values for
	Now      time.Time // plausibility horizon for date normalization

	// Optional date-range filter. When either bound is set the filter is
	// active: records outside the range, or without a parseable plausible
	// date, are excluded from the pass entirely.
	From *time.Time
	To   *time.Time
}

func (s AggSpec) rangeActive() bool { return s.From != nil || s.To != nil }

// admits reports whether a record with the given raw date survives the
// spec's range filter. With no active range every record is admitted.
func (s AggSpec) admits(raw string) bool {
	if !s.rangeActive() {
		return true
	}
	d, ok := NormalizeDate(raw)
	if !ok || !Plausible(d, s.Now) {
		return false
	}
	if s.From != nil && d.Before(*s.From) {
		return false
	}
	if s.To != nil && d.After(*s.To) {
		return false
	}
	return true
}

func (s AggSpec) groupsByMonth() bool {
	for _, d := range s.GroupBy {
		if d == DimMonth {
			return true
		}
	}
	return false
}

// Rollup accumulates sums, counts, and coverage for one key tuple.
type Rollup struct {
	Key      []string // dimension values in GroupBy order; nil for the undated pool
	Count    int
	sums     map[Measure]decimal.Decimal
	distinct map[Dim]map[string]struct{}
	order    int // first-seen insertion order, used for deterministic tie-breaks
}

// Sum returns the accumulated total for a measure (zero if never seen).
func (r *Rollup) Sum(m Measure) decimal.Decimal { return r.sums[m] }

// DistinctCount returns how many distinct non-missing values were
// observed for a coverage dimension.
func (r *Rollup) DistinctCount(d Dim) int { return len(r.distinct[d]) }

// Order returns the bucket's first-seen position within the pass.
func (r *Rollup) Order() int { return r.order }

// AggResult is the outcome of one pass.
type AggResult struct {
	Buckets map[string]*Rollup

	// Undated pools the records excluded from month bucketing for lack
	// of a plausible date. Nil unless month grouping was requested and
	// at least one record fell through.
	Undated *Rollup
}

// Get looks up the rollup for an exact key tuple.
func (res *AggResult) Get(parts ...string) *Rollup {
	return res.Buckets[strings.Join(parts, keySep)]
}

// Total sums a measure across every bucket, undated pool included.
// This is the scalar total that conserves record mass.
func (res *AggResult) Total(m Measure) decimal.Decimal {
	total := decimal.Zero
	for _, b := range res.Buckets {
		total = total.Add(b.Sum(m))
	}
	if res.Undated != nil {
		total = total.Add(res.Undated.Sum(m))
	}
	return total
}

// TotalCount counts records across every bucket, undated pool included.
func (res *AggResult) TotalCount() int {
	n := 0
	for _, b := range res.Buckets {
		n += b.Count
	}
	if res.Undated != nil {
		n += res.Undated.Count
	}
	return n
}

// Sorted returns buckets ordered lexicographically by key. For month
// keys this is chronological ascending.
func (res *AggResult) Sorted() []*Rollup {
	keys := make([]string, 0, len(res.Buckets))
	for k := range res.Buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Rollup, len(keys))
	for i, k := range keys {
		out[i] = res.Buckets[k]
	}
	return out
}

// =============================================================================
// THE PASS
// =============================================================================

// Aggregate runs one single-pass rollup. recs may be any mix of record
// kinds as long as they answer the requested dimensions and measures.
func Aggregate[R Record](recs []R, spec AggSpec) *AggResult {
	res := &AggResult{Buckets: make(map[string]*Rollup)}
	byMonth := spec.groupsByMonth()
	needDate := byMonth || spec.rangeActive()

	for _, rec := range recs {
		var date time.Time
		dated := false
		if needDate {
			if d, ok := NormalizeDate(rec.RawDate()); ok && Plausible(d, spec.Now) {
				date, dated = d, true
			}
		}

		if spec.rangeActive() {
			if !dated {
				continue // range filter active and no usable date
			}
			if spec.From != nil && date.Before(*spec.From) {
				continue
			}
			if spec.To != nil && date.After(*spec.To) {
				continue
			}
		}

		if byMonth && !dated {
			if res.Undated == nil {
				res.Undated = newRollup(nil, -1)
			}
			res.Undated.absorb(rec, spec)
			continue
		}

		parts := make([]string, len(spec.GroupBy))
		for i, d := range spec.GroupBy {
			if d == DimMonth {
				parts[i] = MonthKey(date)
				continue
			}
			v := rec.Dim(d)
			if v == "" {
				v = Unknown
			}
			parts[i] = v
		}

		key := strings.Join(parts, keySep)
		bucket := res.Buckets[key]
		if bucket == nil {
			bucket = newRollup(parts, len(res.Buckets))
			res.Buckets[key] = bucket
		}
		bucket.absorb(rec, spec)
	}
	return res
}

func newRollup(key []string, order int) *Rollup {
	return &Rollup{
		Key:      key,
		sums:     make(map[Measure]decimal.Decimal),
		distinct: make(map[Dim]map[string]struct{}),
		order:    order,
	}
}

func (r *Rollup) absorb(rec Record, spec AggSpec) {
	r.Count++
	for _, m := range spec.Sum {
		// Null amounts contribute zero to the sum but the record still
		// counts toward Count.
		if v := rec.Amount(m); v.Valid {
			r.sums[m] = r.sums[m].Add(v.Decimal)
		}
	}
	for _, d := range spec.Distinct {
		v := rec.Dim(d)
		if v == "" {
			continue
		}
		set := r.distinct[d]
		if set == nil {
			set = make(map[string]struct{})
			r.distinct[d] = set
		}
		set[v] = struct{}{}
	}
}
