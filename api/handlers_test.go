/*
handlers_test.go - HTTP-level tests for the analytics API

Exercises routing, scope parsing, the bounded error taxonomy, and the
admin refresh flow against an in-memory dataset.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
	"github.com/skjhavit/mpladsanalyticsdashboard/engine/store"
	"github.com/skjhavit/mpladsanalyticsdashboard/ingest"
	"github.com/skjhavit/mpladsanalyticsdashboard/jobs"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var handlersTestNow = time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

func namt(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func testDataset() engine.Dataset {
	return engine.Dataset{
		Allocations: []engine.AllocationRecord{
			{MPName: "Asha Rao", State: "Kerala", Constituency: "Ernakulam", Allocated: namt("2000")},
			{MPName: "Vikram Singh", State: "Bihar", Constituency: "Patna", Allocated: namt("3000")},
		},
		Expenditures: []engine.ExpenditureRecord{
			{MPName: "Asha Rao", State: "Kerala", Vendor: "Acme", Activity: "ROADS",
				Disbursed: namt("1000"), DateRaw: "06-Oct-2025"},
			{MPName: "Vikram Singh", State: "Bihar", Vendor: "Bharat Works", Activity: "WATER",
				Disbursed: namt("500"), DateRaw: "15-Sep-2025"},
		},
		Recommendations: []engine.RecommendationRecord{
			{MPName: "Asha Rao", State: "Kerala", Activity: "ROADS", WorkID: "w1", DateRaw: "01-Jun-2025"},
			{MPName: "Asha Rao", State: "Kerala", Activity: "ROADS", WorkID: "w2", DateRaw: "02-Jun-2025"},
		},
		Completions: []engine.CompletionRecord{
			{MPName: "Asha Rao", State: "Kerala", Activity: "ROADS", WorkID: "w1",
				ProofRef: "att-1", EndDateRaw: "01-Sep-2025"},
		},
	}
}

// memorySearcher answers the search boundary over the in-memory roster.
type memorySearcher struct {
	source engine.RecordSource
}

func (s *memorySearcher) SearchMPs(ctx context.Context, q string, limit int) ([]engine.AllocationRecord, error) {
	allocs, err := s.source.Allocations(ctx, engine.Filter{})
	if err != nil {
		return nil, err
	}
	var out []engine.AllocationRecord
	for _, a := range allocs {
		if strings.Contains(strings.ToLower(a.MPName), strings.ToLower(q)) ||
			strings.Contains(strings.ToLower(a.Constituency), strings.ToLower(q)) {
			out = append(out, a)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// stubFetcher serves canned tile payloads for the refresh flow.
type stubFetcher struct{}

func (stubFetcher) FetchTile(_ context.Context, t ingest.Tile) ([]byte, error) {
	inner, _ := json.Marshal([]map[string]any{})
	outer, _ := json.Marshal(map[string]string{t.Key: string(inner)})
	return outer, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.ReplaceDataset(context.Background(), testDataset()))

	builder := engine.NewBuilder(mem).WithClock(func() time.Time { return handlersTestNow })
	registry := jobs.NewMemory()
	refresher := ingest.NewRefresher(stubFetcher{}, mem, registry)

	return NewRouter(NewHandler(builder, &memorySearcher{source: mem}, refresher, registry))
}

func doGet(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

// =============================================================================
// ANALYTICS ENDPOINT TESTS
// =============================================================================

func TestGetStats(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body OverviewDTO
	decodeInto(t, rec, &body)
	assert.Equal(t, 5000.0, body.TotalAllocated)
	assert.Equal(t, 1500.0, body.TotalSpent)
	assert.Equal(t, 2, body.WorksRecommended)
	assert.Equal(t, 1, body.WorksCompleted)
	assert.InDelta(t, 30.0, body.Utilization, 1e-9)
	assert.InDelta(t, 50.0, body.Completion, 1e-9)
}

func TestListMPs_SortedBySpend(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/mps?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []MPSummaryDTO
	decodeInto(t, rec, &body)
	require.Len(t, body, 2)
	assert.Equal(t, "Asha Rao", body[0].Name, "highest spend first")
}

func TestGetMP_Profile(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/mps/Asha%20Rao")
	require.Equal(t, http.StatusOK, rec.Code)

	var body MPProfileDTO
	decodeInto(t, rec, &body)
	assert.Equal(t, "Asha Rao", body.Info.Name)
	assert.Equal(t, "Ernakulam", body.Info.Constituency)
	require.NotNil(t, body.Info.Allocated)
	assert.Equal(t, 2000.0, *body.Info.Allocated)
	assert.Equal(t, 1000.0, body.Stats.Spent)
	assert.InDelta(t, 50.0, body.Stats.Utilization, 1e-9)
	assert.Equal(t, 2, body.Stats.RecommendedCount)
	assert.Equal(t, 1, body.Stats.CompletedCount)
}

func TestGetMP_UnknownReturns404WithBoundedKind(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/mps/Nobody")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	decodeInto(t, rec, &body)
	assert.Equal(t, "not_found", body.Error, "clients see the kind, never internal text")
}

func TestGetMP_BadDateParamRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/mps/Asha%20Rao?from_date=06-Oct-2025")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "query dates are ISO only")

	rec = doGet(t, router, "/api/mps/Asha%20Rao?months=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	router := newTestRouter(t)

	// Sub-two-character queries short-circuit to an empty list.
	rec := doGet(t, router, "/api/search?q=a")
	require.Equal(t, http.StatusOK, rec.Code)
	var empty []SearchResultDTO
	decodeInto(t, rec, &empty)
	assert.Empty(t, empty)

	rec = doGet(t, router, "/api/search?q=patna")
	require.Equal(t, http.StatusOK, rec.Code)
	var hits []SearchResultDTO
	decodeInto(t, rec, &hits)
	require.Len(t, hits, 1)
	assert.Equal(t, "Vikram Singh", hits[0].Name)
}

func TestListVendors(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/vendors")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []VendorSummaryDTO
	decodeInto(t, rec, &body)
	require.Len(t, body, 2)
	assert.Equal(t, "Acme", body[0].Name)
	assert.Equal(t, 1000.0, body[0].TotalReceived)
}

func TestGetVendor_UnknownReturns404(t *testing.T) {
	router := newTestRouter(t)
	rec := doGet(t, router, "/api/vendors/Ghost%20Corp")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListStates(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/states")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []StateSummaryDTO
	decodeInto(t, rec, &body)
	require.Len(t, body, 2)
	assert.Equal(t, "Bihar", body[0].State, "largest allocation first")
}

func TestGetCategory_StateScopeCarriesLift(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/categories/ROADS?state=Kerala")
	require.Equal(t, http.StatusOK, rec.Code)

	var body CategoryProfileDTO
	decodeInto(t, rec, &body)
	assert.Equal(t, "ROADS", body.Activity)
	assert.Equal(t, "Kerala", body.State)
	require.NotNil(t, body.Lift)
	// Kerala spends only on ROADS (share 1.0) vs 2/3 nationally.
	assert.InDelta(t, 1.5, *body.Lift, 1e-9)
}

func TestGetTrends(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/analytics/trends")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []TrendPointDTO
	decodeInto(t, rec, &body)
	require.Len(t, body, 2)
	assert.Equal(t, "2025-09", body[0].Month)
	assert.Equal(t, "2025-10", body[1].Month)
	assert.Equal(t, 1000.0, body[1].Spent)
}

func TestGetTopBottom(t *testing.T) {
	router := newTestRouter(t)

	rec := doGet(t, router, "/api/analytics/top-bottom")
	require.Equal(t, http.StatusOK, rec.Code)

	var body TopBottomDTO
	decodeInto(t, rec, &body)
	require.NotEmpty(t, body.TopSpenders)
	assert.Equal(t, "Asha Rao", body.TopSpenders[0].Name)
}

// =============================================================================
// ADMIN ENDPOINT TESTS
// =============================================================================

func TestRefreshFlow(t *testing.T) {
	// GIVEN: A refresh triggered over HTTP
	// WHEN: Polling the returned job id
	// THEN: 202 on trigger, then the job reaches succeeded

	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job jobs.Job
	decodeInto(t, rec, &job)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, "dataset_refresh", job.Kind)

	require.Eventually(t, func() bool {
		poll := doGet(t, router, fmt.Sprintf("/api/admin/jobs/%s", job.ID))
		if poll.Code != http.StatusOK {
			return false
		}
		var got jobs.Job
		if err := json.NewDecoder(poll.Body).Decode(&got); err != nil {
			return false
		}
		return got.State == jobs.StateSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	list := doGet(t, router, "/api/admin/jobs")
	require.Equal(t, http.StatusOK, list.Code)
	var all []jobs.Job
	decodeInto(t, list, &all)
	assert.Len(t, all, 1)
}

func TestGetJob_Unknown404(t *testing.T) {
	router := newTestRouter(t)
	rec := doGet(t, router, "/api/admin/jobs/no-such-id")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// wrappedNotFoundRegistry wraps lookup misses with extra context, the
// way a future registry implementation might.
type wrappedNotFoundRegistry struct {
	jobs.Registry
}

func (r wrappedNotFoundRegistry) Get(_ context.Context, id string) (*jobs.Job, error) {
	return nil, fmt.Errorf("registry lookup %q: %w", id, jobs.ErrJobNotFound)
}

func TestGetJob_WrappedNotFoundStill404(t *testing.T) {
	// GIVEN: A registry that wraps the not-found sentinel
	// WHEN: Polling any job id
	// THEN: The boundary still maps it to 404 via errors.Is

	mem := store.NewMemory()
	builder := engine.NewBuilder(mem)
	registry := wrappedNotFoundRegistry{jobs.NewMemory()}
	refresher := ingest.NewRefresher(stubFetcher{}, mem, registry)
	router := NewRouter(NewHandler(builder, &memorySearcher{source: mem}, refresher, registry))

	rec := doGet(t, router, "/api/admin/jobs/any-id")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	decodeInto(t, rec, &body)
	assert.Equal(t, "not_found", body.Error)
}
