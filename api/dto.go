/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  JSON structures for the public API, decoupled from the engine's
  internal types. Amounts serialize as plain numbers (the frontend
  charts them directly); absent amounts serialize as null rather
  than zero.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Response: wrappers around lists and composites
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// OverviewDTO mirrors the landing-page stat tiles.
type OverviewDTO struct {
	TotalAllocated   float64 `json:"total_allocated"`
	TotalSpent       float64 `json:"total_spent"`
	WorksRecommended int     `json:"total_works_recommended"`
	WorksCompleted   int     `json:"total_works_completed"`
	Utilization      float64 `json:"utilization_percentage"`
	Completion       float64 `json:"completion_percentage"`
}

// MPSummaryDTO is one row of the MP listing.
type MPSummaryDTO struct {
	Name             string   `json:"name"`
	State            string   `json:"state"`
	Constituency     string   `json:"constituency"`
	Allocated        *float64 `json:"allocated"`
	Spent            float64  `json:"spent"`
	RecommendedCount int      `json:"recommended_count"`
	CompletedCount   int      `json:"completed_count"`
	ProofCount       int      `json:"proofs_count"`
	Utilization      float64  `json:"utilization_rate"`
	Completion       float64  `json:"completion_rate"`
	Transparency     float64  `json:"transparency_score"`
}

// ShareDTO is a ranked sub-entity with its share of the parent total.
type ShareDTO struct {
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Count    int     `json:"count"`
	SharePct float64 `json:"share_pct"`
}

// MonthPointDTO is one entry of an ascending YYYY-MM series.
type MonthPointDTO struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

// FlagDTO is one fired anomaly signal.
type FlagDTO struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Subject  string `json:"subject"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
}

// WorkItemDTO is a recommended work joined with its completion.
type WorkItemDTO struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Activity      string   `json:"activity"`
	Amount        *float64 `json:"recommended_amount"`
	Date          string   `json:"date"`
	Status        string   `json:"status"`
	CompletedDate string   `json:"completed_date,omitempty"`
	HasProof      bool     `json:"has_proof"`
	ActualAmount  *float64 `json:"actual_amount"`
}

// MPProfileDTO is the full MP detail response.
type MPProfileDTO struct {
	Info struct {
		Name         string   `json:"name"`
		State        string   `json:"state"`
		Constituency string   `json:"constituency"`
		Allocated    *float64 `json:"allocated"`
	} `json:"info"`
	Stats struct {
		Spent              float64 `json:"spent"`
		Utilization        float64 `json:"utilization"`
		RecommendedCount   int     `json:"works_recommended"`
		CompletedCount     int     `json:"works_completed"`
		ProofCount         int     `json:"proofs_uploaded"`
		Completion         float64 `json:"completion_rate"`
		Transparency       float64 `json:"transparency_score"`
		UnprovedSpendShare float64 `json:"unproved_spend_pct"`
	} `json:"stats"`
	TopVendors    []ShareDTO      `json:"top_vendors"`
	TopActivities []ShareDTO      `json:"top_activities"`
	MonthlySpend  []MonthPointDTO `json:"monthly_spend"`
	RecentWorks   []WorkItemDTO   `json:"recent_works"`
	Flags         []FlagDTO       `json:"flags"`
}

// VendorSummaryDTO is one row of the vendor listing.
type VendorSummaryDTO struct {
	Name          string  `json:"name"`
	MPCount       int     `json:"mp_count"`
	PaymentCount  int     `json:"payment_count"`
	TotalReceived float64 `json:"total_received"`
}

// VendorWorkDTO is one payment row of a vendor's history.
type VendorWorkDTO struct {
	MPName   string   `json:"mp_name"`
	Activity string   `json:"activity"`
	Amount   *float64 `json:"amount"`
	Date     string   `json:"date"`
	State    string   `json:"state"`
}

// VendorProfileDTO is the full vendor detail response.
type VendorProfileDTO struct {
	Name            string          `json:"name"`
	TotalReceived   float64         `json:"total_received"`
	PaymentCount    int             `json:"payment_count"`
	MPCount         int             `json:"mp_count"`
	StateCount      int             `json:"state_count"`
	TopMPs          []ShareDTO      `json:"top_mps"`
	TopActivities   []ShareDTO      `json:"top_activities"`
	MonthlyReceived []MonthPointDTO `json:"monthly_received"`
	Works           []VendorWorkDTO `json:"works"`
}

// StateSummaryDTO is one row of the state listing.
type StateSummaryDTO struct {
	State            string  `json:"state"`
	Allocated        float64 `json:"allocated"`
	Spent            float64 `json:"spent"`
	MPCount          int     `json:"mp_count"`
	RecommendedCount int     `json:"works_recommended"`
	CompletedCount   int     `json:"works_completed"`
	ProofCount       int     `json:"proofs_count"`
	Utilization      float64 `json:"utilization"`
	Completion       float64 `json:"completion_rate"`
	Transparency     float64 `json:"transparency_score"`
}

// StateProfileDTO is the full state detail response.
type StateProfileDTO struct {
	Summary      StateSummaryDTO `json:"summary"`
	TopMPs       []ShareDTO      `json:"top_mps"`
	TopVendors   []ShareDTO      `json:"top_vendors"`
	MonthlySpend []MonthPointDTO `json:"monthly_spend"`
	Flags        []FlagDTO       `json:"flags"`
}

// CategoryProfileDTO is the full category detail response.
type CategoryProfileDTO struct {
	Activity         string          `json:"activity"`
	State            string          `json:"state,omitempty"`
	Spent            float64         `json:"spent"`
	RecommendedCount int             `json:"works_recommended"`
	CompletedCount   int             `json:"works_completed"`
	ProofCount       int             `json:"proofs_count"`
	Transparency     float64         `json:"transparency_score"`
	MPCount          int             `json:"mp_count"`
	DistinctVendors  int             `json:"distinct_vendors"`
	Top3VendorShare  float64         `json:"top3_vendor_share"`
	Lift             *float64        `json:"lift,omitempty"`
	TopVendors       []ShareDTO      `json:"top_vendors"`
	TopStates        []ShareDTO      `json:"top_states,omitempty"`
	TopMPs           []ShareDTO      `json:"top_mps,omitempty"`
	MonthlySpend     []MonthPointDTO `json:"monthly_spend"`
	Flags            []FlagDTO       `json:"flags"`
}

// TrendPointDTO is one merged month of the trends series.
type TrendPointDTO struct {
	Month     string  `json:"month"`
	Spent     float64 `json:"spent"`
	Completed int     `json:"completed"`
}

// TopBottomDTO is the heroes-and-zeroes listing.
type TopBottomDTO struct {
	TopSpenders    []MPSummaryDTO `json:"top_spenders"`
	ZeroSpenders   []MPSummaryDTO `json:"zero_spenders"`
	TopTransparent []MPSummaryDTO `json:"top_transparent"`
}

// SearchResultDTO is one search hit.
type SearchResultDTO struct {
	Name         string `json:"name"`
	State        string `json:"state"`
	Constituency string `json:"constituency"`
	Type         string `json:"type"`
}

// ErrorResponse is the uniform error body. Kind is a bounded
// identifier; internal error text never reaches clients.
type ErrorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toFloatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f, _ := d.Decimal.Float64()
	return &f
}

func toMPSummaryDTO(s engine.MPSummary) MPSummaryDTO {
	return MPSummaryDTO{
		Name:             s.Name,
		State:            s.State,
		Constituency:     s.Constituency,
		Allocated:        toFloatPtr(s.Allocated),
		Spent:            toFloat(s.Spent),
		RecommendedCount: s.RecommendedCount,
		CompletedCount:   s.CompletedCount,
		ProofCount:       s.ProofCount,
		Utilization:      s.Utilization,
		Completion:       s.Completion,
		Transparency:     s.Transparency,
	}
}

func toMPSummaryDTOs(in []engine.MPSummary) []MPSummaryDTO {
	out := make([]MPSummaryDTO, len(in))
	for i, s := range in {
		out[i] = toMPSummaryDTO(s)
	}
	return out
}

func toShareDTOs(in []engine.Share) []ShareDTO {
	out := make([]ShareDTO, len(in))
	for i, s := range in {
		out[i] = ShareDTO{Name: s.Name, Amount: toFloat(s.Amount), Count: s.Count, SharePct: s.SharePct}
	}
	return out
}

func toMonthPointDTOs(in []engine.MonthPoint) []MonthPointDTO {
	out := make([]MonthPointDTO, len(in))
	for i, p := range in {
		out[i] = MonthPointDTO{Month: p.Month, Amount: toFloat(p.Amount), Count: p.Count}
	}
	return out
}

func toFlagDTOs(in []engine.Flag) []FlagDTO {
	out := make([]FlagDTO, 0, len(in))
	for _, f := range in {
		out = append(out, FlagDTO{
			Code:     f.Code,
			Severity: string(f.Severity),
			Subject:  f.Subject,
			Title:    f.Title,
			Detail:   f.Detail,
		})
	}
	return out
}

func toWorkItemDTOs(in []engine.WorkItem) []WorkItemDTO {
	out := make([]WorkItemDTO, len(in))
	for i, w := range in {
		status := "In Progress"
		if w.Completed {
			status = "Completed"
		}
		out[i] = WorkItemDTO{
			ID:            w.WorkID,
			Description:   w.Description,
			Activity:      w.Activity,
			Amount:        toFloatPtr(w.Recommended),
			Date:          w.DateRaw,
			Status:        status,
			CompletedDate: w.CompletedDate,
			HasProof:      w.HasProof,
			ActualAmount:  toFloatPtr(w.ActualAmount),
		}
	}
	return out
}

func toStateSummaryDTO(s engine.StateSummary) StateSummaryDTO {
	return StateSummaryDTO{
		State:            s.State,
		Allocated:        toFloat(s.Allocated),
		Spent:            toFloat(s.Spent),
		MPCount:          s.MPCount,
		RecommendedCount: s.RecommendedCount,
		CompletedCount:   s.CompletedCount,
		ProofCount:       s.ProofCount,
		Utilization:      s.Utilization,
		Completion:       s.Completion,
		Transparency:     s.Transparency,
	}
}
