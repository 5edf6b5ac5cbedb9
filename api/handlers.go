/*
handlers.go - HTTP handlers for the analytics API

PURPOSE:
  Exposes the aggregation engine over REST. Handlers parse query scope
  parameters, delegate to the engine, and serialize DTOs. No business
  logic lives here.

ENDPOINTS:
  GET  /api/stats                     Global headline rollup
  GET  /api/mps                       MP listing (sortable)
  GET  /api/mps/{name}                Full MP profile
  GET  /api/search                    MP/constituency search
  GET  /api/vendors                   Vendor listing
  GET  /api/vendors/{name}            Full vendor profile
  GET  /api/states                    State listing
  GET  /api/states/{name}             Full state profile
  GET  /api/categories/{name}         Category profile (?state= for lift)
  GET  /api/analytics/top-bottom      Heroes and zeroes
  GET  /api/analytics/trends          Monthly spend/completion series
  POST /api/admin/refresh             Trigger dataset refresh (202 + job)
  GET  /api/admin/jobs                List refresh jobs
  GET  /api/admin/jobs/{id}           Poll one job

ERROR HANDLING:
  - 404: primary entity absent (engine.ErrNotFound)
  - 400: malformed scope parameters
  - 500: any other computation fault. The cause is logged; clients only
    receive a bounded error kind, never internal error text.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
	"github.com/skjhavit/mpladsanalyticsdashboard/ingest"
	"github.com/skjhavit/mpladsanalyticsdashboard/jobs"
)

// Searcher is the slice of the store the search endpoint needs beyond
// the engine's record source.
type Searcher interface {
	SearchMPs(ctx context.Context, q string, limit int) ([]engine.AllocationRecord, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Builder   *engine.Builder
	Searcher  Searcher
	Refresher *ingest.Refresher
	Jobs      jobs.Registry
}

// NewHandler wires a handler to its collaborators.
func NewHandler(builder *engine.Builder, searcher Searcher, refresher *ingest.Refresher, registry jobs.Registry) *Handler {
	return &Handler{Builder: builder, Searcher: searcher, Refresher: refresher, Jobs: registry}
}

// =============================================================================
// SCOPE PARSING
// =============================================================================

// parseScope reads the shared query-scope parameters.
func parseScope(r *http.Request) (engine.Scope, error) {
	q := r.URL.Query()
	scope := engine.Scope{
		State:    q.Get("state"),
		MP:       q.Get("mp"),
		Vendor:   q.Get("vendor"),
		Activity: q.Get("activity"),
	}

	if v := q.Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return scope, errBadParam
		}
		scope.Months = n
	}
	if v := q.Get("from_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return scope, errBadParam
		}
		scope.From = &t
	}
	if v := q.Get("to_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return scope, errBadParam
		}
		scope.To = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return scope, errBadParam
		}
		scope.Limit = n
	}
	return scope, nil
}

// =============================================================================
// ANALYTICS HANDLERS
// =============================================================================

// GetStats returns the global headline rollup.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r)
	if err != nil {
		writeBadRequest(w)
		return
	}
	overview, err := h.Builder.Overview(r.Context(), scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OverviewDTO{
		TotalAllocated:   toFloat(overview.TotalAllocated),
		TotalSpent:       toFloat(overview.TotalSpent),
		WorksRecommended: overview.WorksRecommended,
		WorksCompleted:   overview.WorksCompleted,
		Utilization:      overview.Utilization,
		Completion:       overview.Completion,
	})
}

// ListMPs returns the sortable MP listing.
func (h *Handler) ListMPs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w)
			return
		}
		limit = n
	}

	sortBy := engine.SortBySpent
	switch r.URL.Query().Get("sort_by") {
	case "completion":
		sortBy = engine.SortByCompletion
	case "transparency":
		sortBy = engine.SortByTransparency
	}

	summaries, err := h.Builder.ListMPs(r.Context(), sortBy, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMPSummaryDTOs(summaries))
}

// GetMP returns the full profile for one MP.
func (h *Handler) GetMP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	scope, err := parseScope(r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	profile, err := h.Builder.MPProfile(r.Context(), name, scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var dto MPProfileDTO
	dto.Info.Name = profile.Summary.Name
	dto.Info.State = profile.Summary.State
	dto.Info.Constituency = profile.Summary.Constituency
	dto.Info.Allocated = toFloatPtr(profile.Summary.Allocated)
	dto.Stats.Spent = toFloat(profile.Summary.Spent)
	dto.Stats.Utilization = profile.Summary.Utilization
	dto.Stats.RecommendedCount = profile.Summary.RecommendedCount
	dto.Stats.CompletedCount = profile.Summary.CompletedCount
	dto.Stats.ProofCount = profile.Summary.ProofCount
	dto.Stats.Completion = profile.Summary.Completion
	dto.Stats.Transparency = profile.Summary.Transparency
	dto.Stats.UnprovedSpendShare = profile.UnprovedSpendShare
	dto.TopVendors = toShareDTOs(profile.TopVendors)
	dto.TopActivities = toShareDTOs(profile.TopActivities)
	dto.MonthlySpend = toMonthPointDTOs(profile.MonthlySpend)
	dto.RecentWorks = toWorkItemDTOs(profile.RecentWorks)
	dto.Flags = toFlagDTOs(profile.Flags)

	writeJSON(w, http.StatusOK, dto)
}

// Search matches MPs and constituencies by substring.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if len(q) < 2 {
		writeJSON(w, http.StatusOK, []SearchResultDTO{})
		return
	}

	hits, err := h.Searcher.SearchMPs(r.Context(), q, 20)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]SearchResultDTO, len(hits))
	for i, hit := range hits {
		out[i] = SearchResultDTO{
			Name:         hit.MPName,
			State:        hit.State,
			Constituency: hit.Constituency,
			Type:         "MP",
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListVendors returns vendors ranked by amount received.
func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w)
			return
		}
		limit = n
	}

	vendors, err := h.Builder.TopVendors(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]VendorSummaryDTO, len(vendors))
	for i, v := range vendors {
		out[i] = VendorSummaryDTO{
			Name:          v.Name,
			MPCount:       v.MPCount,
			PaymentCount:  v.PaymentCount,
			TotalReceived: toFloat(v.TotalReceived),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetVendor returns the full profile for one vendor.
func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	scope, err := parseScope(r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	profile, err := h.Builder.VendorProfile(r.Context(), name, scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	works := make([]VendorWorkDTO, len(profile.RecentWorks))
	for i, wk := range profile.RecentWorks {
		works[i] = VendorWorkDTO{
			MPName:   wk.MPName,
			Activity: wk.Activity,
			Amount:   toFloatPtr(wk.Amount),
			Date:     wk.DateRaw,
			State:    wk.State,
		}
	}
	writeJSON(w, http.StatusOK, VendorProfileDTO{
		Name:            profile.Summary.Name,
		TotalReceived:   toFloat(profile.Summary.TotalReceived),
		PaymentCount:    profile.Summary.PaymentCount,
		MPCount:         profile.Summary.MPCount,
		StateCount:      profile.StateCount,
		TopMPs:          toShareDTOs(profile.TopMPs),
		TopActivities:   toShareDTOs(profile.TopActivities),
		MonthlyReceived: toMonthPointDTOs(profile.MonthlyReceived),
		Works:           works,
	})
}

// ListStates returns per-state rollups.
func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Builder.StateProfiles(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]StateSummaryDTO, len(summaries))
	for i, s := range summaries {
		out[i] = toStateSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetState returns the full profile for one state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	scope, err := parseScope(r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	profile, err := h.Builder.StateProfile(r.Context(), name, scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateProfileDTO{
		Summary:      toStateSummaryDTO(profile.Summary),
		TopMPs:       toShareDTOs(profile.TopMPs),
		TopVendors:   toShareDTOs(profile.TopVendors),
		MonthlySpend: toMonthPointDTOs(profile.MonthlySpend),
		Flags:        toFlagDTOs(profile.Flags),
	})
}

// GetCategory returns the profile for one activity category. With
// ?state= and no other narrowing, the response includes baseline lift.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	scope, err := parseScope(r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	profile, err := h.Builder.CategoryProfile(r.Context(), name, scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoryProfileDTO{
		Activity:         profile.Activity,
		State:            profile.State,
		Spent:            toFloat(profile.Spent),
		RecommendedCount: profile.RecommendedCount,
		CompletedCount:   profile.CompletedCount,
		ProofCount:       profile.ProofCount,
		Transparency:     profile.Transparency,
		MPCount:          profile.MPCount,
		DistinctVendors:  profile.DistinctVendors,
		Top3VendorShare:  profile.Top3VendorShare,
		Lift:             profile.Lift,
		TopVendors:       toShareDTOs(profile.TopVendors),
		TopStates:        toShareDTOs(profile.TopStates),
		TopMPs:           toShareDTOs(profile.TopMPs),
		MonthlySpend:     toMonthPointDTOs(profile.MonthlySpend),
		Flags:            toFlagDTOs(profile.Flags),
	})
}

// GetTopBottom returns the heroes-and-zeroes listing.
func (h *Handler) GetTopBottom(w http.ResponseWriter, r *http.Request) {
	tb, err := h.Builder.TopBottom(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TopBottomDTO{
		TopSpenders:    toMPSummaryDTOs(tb.TopSpenders),
		ZeroSpenders:   toMPSummaryDTOs(tb.ZeroSpenders),
		TopTransparent: toMPSummaryDTOs(tb.TopTransparent),
	})
}

// GetTrends returns the merged monthly spend/completion series.
func (h *Handler) GetTrends(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	trends, err := h.Builder.Trends(r.Context(), scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]TrendPointDTO, len(trends))
	for i, p := range trends {
		out[i] = TrendPointDTO{Month: p.Month, Spent: toFloat(p.Spent), Completed: p.Completed}
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRefresh starts a background dataset refresh.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	job, err := h.Refresher.Start(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// ListJobs returns all tracked refresh jobs, newest first.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.Jobs.List(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetJob polls one refresh job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found"})
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// =============================================================================
// HELPERS
// =============================================================================

var errBadParam = &badParamError{}

type badParamError struct{}

func (*badParamError) Error() string { return "bad query parameter" }

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeBadRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request"})
}

// writeEngineError maps engine failures onto the bounded wire taxonomy.
// The underlying cause is logged, never forwarded.
func writeEngineError(w http.ResponseWriter, err error) {
	if engine.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found"})
		return
	}
	log.Printf("api: internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
}
