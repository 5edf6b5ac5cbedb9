package sqlite_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
	"github.com/skjhavit/mpladsanalyticsdashboard/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func amt(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func seedDataset() engine.Dataset {
	return engine.Dataset{
		Allocations: []engine.AllocationRecord{
			{MPName: "Asha Rao", State: "Kerala", Constituency: "Ernakulam", Allocated: amt("50000000")},
			{MPName: "Vikram Singh", State: "Bihar", Constituency: "Patna"},
		},
		Expenditures: []engine.ExpenditureRecord{
			{MPName: "Asha Rao", State: "Kerala", Vendor: "Acme", Activity: "ROADS",
				Disbursed: amt("125000.75"), DateRaw: "06-Oct-2025", WorkID: "w1"},
			{MPName: "Vikram Singh", State: "Bihar", Vendor: "Bharat Works", Activity: "WATER",
				DateRaw: "nan"},
		},
		Recommendations: []engine.RecommendationRecord{
			{MPName: "Asha Rao", State: "Kerala", Activity: "ROADS",
				Description: "Road repair", Recommended: amt("200000"), DateRaw: "01-Jun-2025", WorkID: "w1"},
		},
		Completions: []engine.CompletionRecord{
			{MPName: "Asha Rao", State: "Kerala", Activity: "ROADS",
				WorkID: "w1", EndDateRaw: "06-Oct-2025", ProofRef: "att-1", ActualAmount: amt("190000")},
		},
	}
}

// =============================================================================
// ROUND-TRIP TESTS
// =============================================================================

func TestReplaceDataset_RoundTrip(t *testing.T) {
	// GIVEN: A full dataset installed via the atomic swap
	// WHEN: Reading each record set back
	// THEN: Values survive exactly, with absent amounts staying absent

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceDataset(ctx, seedDataset()))

	allocs, err := store.Allocations(ctx, engine.Filter{})
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	byName := map[string]engine.AllocationRecord{}
	for _, a := range allocs {
		byName[a.MPName] = a
	}
	asha := byName["Asha Rao"]
	require.True(t, asha.Allocated.Valid)
	assert.Equal(t, "50000000", asha.Allocated.Decimal.String())
	assert.False(t, byName["Vikram Singh"].Allocated.Valid, "missing allocation stays absent, never zero")

	exp, err := store.Expenditures(ctx, engine.Filter{MP: "Asha Rao"})
	require.NoError(t, err)
	require.Len(t, exp, 1)
	assert.Equal(t, "Acme", exp[0].Vendor)
	assert.Equal(t, "125000.75", exp[0].Disbursed.Decimal.String())
	assert.Equal(t, "06-Oct-2025", exp[0].DateRaw, "dates stay raw text")

	recs, err := store.Recommendations(ctx, engine.Filter{Activity: "ROADS"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Road repair", recs[0].Description)

	comps, err := store.Completions(ctx, engine.Filter{State: "Kerala"})
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.True(t, comps[0].HasProof())
	assert.Equal(t, "190000", comps[0].ActualAmount.Decimal.String())
}

func TestReplaceDataset_SecondSwapReplacesEverything(t *testing.T) {
	// GIVEN: An installed dataset
	// WHEN: Swapping in a smaller replacement
	// THEN: Old rows are gone, not merged

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceDataset(ctx, seedDataset()))

	replacement := engine.Dataset{
		Allocations: []engine.AllocationRecord{
			{MPName: "New MP", State: "Goa", Allocated: amt("100")},
		},
	}
	require.NoError(t, store.ReplaceDataset(ctx, replacement))

	allocs, err := store.Allocations(ctx, engine.Filter{})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, "New MP", allocs[0].MPName)

	exp, err := store.Expenditures(ctx, engine.Filter{})
	require.NoError(t, err)
	assert.Empty(t, exp)
}

// =============================================================================
// FILTER TESTS
// =============================================================================

func TestFilters_EqualityOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceDataset(ctx, seedDataset()))

	exp, err := store.Expenditures(ctx, engine.Filter{Vendor: "Bharat Works"})
	require.NoError(t, err)
	require.Len(t, exp, 1)
	assert.Equal(t, "Vikram Singh", exp[0].MPName)

	exp, err = store.Expenditures(ctx, engine.Filter{State: "Kerala", Vendor: "Bharat Works"})
	require.NoError(t, err)
	assert.Empty(t, exp, "predicates AND together")
}

// =============================================================================
// SEARCH TESTS
// =============================================================================

func TestSearchMPs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceDataset(ctx, seedDataset()))

	// By MP name substring.
	hits, err := store.SearchMPs(ctx, "asha", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Asha Rao", hits[0].MPName)

	// By constituency substring.
	hits, err = store.SearchMPs(ctx, "patna", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Vikram Singh", hits[0].MPName)

	hits, err = store.SearchMPs(ctx, "zzz", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
