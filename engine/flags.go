/*
flags.go - Declarative anomaly rule tables

PURPOSE:
  Integrity heuristics evaluated against a computed profile. Rules are
  an enumerable table of (predicate, severity function, detail template)
  entries, evaluated generically in insertion order, so each rule can be
  unit-tested in isolation and new rules slot in without touching the
  orchestrator.

POLICY CONSTANTS:
  Thresholds are fixed at this boundary. A caller that wants different
  thresholds instantiates a different rule table; the shipped tables are
  the published heuristic set.

TABLES:
  EntityRules   - MP and state profiles
  CategoryRules - category profiles (incl. the state-lift rule)
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Severity tiers for a fired flag.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityHigh    Severity = "high"
)

// Flag is one fired anomaly. Immutable, produced fresh per query.
type Flag struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject"`
	Title    string   `json:"title"`
	Detail   string   `json:"detail"`
}

// RuleInput is the metric snapshot a rule table is evaluated against.
// Fields that do not apply to a scope stay at their zero values.
type RuleInput struct {
	Subject string

	TotalSpent       decimal.Decimal
	Utilization      float64
	Completion       float64
	Transparency     float64
	RecommendedCount int
	CompletedCount   int

	Top3VendorShare    float64
	DistinctVendors    int
	UnprovedSpendShare float64 // pct of spend on completed works lacking proof

	// National baselines for above/below-average comparisons.
	NationalUtilization  float64
	NationalCompletion   float64
	NationalTransparency float64

	// Category-scope extras.
	Lift    *float64 // nil when lift is undefined or out of scope
	MPCount int
}

// Rule is one table entry: fire when When holds, at Severity, with a
// human-readable Detail.
type Rule struct {
	Code     string
	Title    string
	When     func(in RuleInput) bool
	Severity func(in RuleInput) Severity
	Detail   func(in RuleInput) string
}

// EvaluateRules runs a table against one input in insertion order.
func EvaluateRules(rules []Rule, in RuleInput) []Flag {
	var flags []Flag
	for _, r := range rules {
		if !r.When(in) {
			continue
		}
		flags = append(flags, Flag{
			Code:     r.Code,
			Severity: r.Severity(in),
			Subject:  in.Subject,
			Title:    r.Title,
			Detail:   r.Detail(in),
		})
	}
	return flags
}

// =============================================================================
// THRESHOLDS
// =============================================================================

const (
	concentrationWarnPct = 70
	concentrationHighPct = 85

	lowTransparencyHighPct = 20
	minCompletedForSample  = 10

	unprovedSpendWarnPct = 10
	unprovedSpendHighPct = 30

	liftWarn = 2.0
	liftHigh = 3.0

	categoryTransparencyWarnPct = 30
	categoryTransparencyHighPct = 15

	minCategoryMPs = 5
)

// bigCategorySpend is the spend floor (2*10^7) below which category
// rules stay silent regardless of shape.
var bigCategorySpend = decimal.NewFromInt(20_000_000)

func tiered(cond bool) Severity {
	if cond {
		return SeverityHigh
	}
	return SeverityWarning
}

// =============================================================================
// RULE TABLES
// =============================================================================

// EntityRules is the heuristic set for MP and state profiles.
var EntityRules = []Rule{
	{
		Code:  "vendor_concentration",
		Title: "Spend concentrated in few vendors",
		When: func(in RuleInput) bool {
			return in.Top3VendorShare >= concentrationWarnPct && in.TotalSpent.IsPositive()
		},
		Severity: func(in RuleInput) Severity {
			return tiered(in.Top3VendorShare >= concentrationHighPct)
		},
		Detail: func(in RuleInput) string {
			return fmt.Sprintf("top 3 vendors receive %.1f%% of total spend", in.Top3VendorShare)
		},
	},
	{
		Code:  "spend_vs_completion",
		Title: "High spending, low completion",
		When: func(in RuleInput) bool {
			return in.Utilization >= in.NationalUtilization &&
				in.Completion <= in.NationalCompletion &&
				in.TotalSpent.IsPositive()
		},
		Severity: func(RuleInput) Severity { return SeverityWarning },
		Detail: func(in RuleInput) string {
			return fmt.Sprintf("utilization %.1f%% is at or above the national average while completion %.1f%% is at or below it",
				in.Utilization, in.Completion)
		},
	},
	{
		Code:  "low_transparency",
		Title: "Below-average proof uploads",
		When: func(in RuleInput) bool {
			return in.Transparency <= in.NationalTransparency &&
				in.CompletedCount > minCompletedForSample
		},
		Severity: func(in RuleInput) Severity {
			return tiered(in.Transparency <= lowTransparencyHighPct)
		},
		Detail: func(in RuleInput) string {
			return fmt.Sprintf("only %.1f%% of %d completed works carry a proof reference",
				in.Transparency, in.CompletedCount)
		},
	},
	{
		Code:  "spend_without_proof",
		Title: "Spend on completed works without proof",
		When: func(in RuleInput) bool {
			return in.UnprovedSpendShare >= unprovedSpendWarnPct
		},
		Severity: func(in RuleInput) Severity {
			return tiered(in.UnprovedSpendShare >= unprovedSpendHighPct)
		},
		Detail: func(in RuleInput) string {
			return fmt.Sprintf("%.1f%% of spend went to completed works with no proof attached", in.UnprovedSpendShare)
		},
	},
}

// CategoryRules is the heuristic set for category profiles. The lift
// rule only sees a non-nil Lift when the query scope narrows on exactly
// one state and nothing else.
var CategoryRules = []Rule{
	{
		Code:  "state_lift",
		Title: "Category over-represented in state",
		When: func(in RuleInput) bool {
			return in.Lift != nil && *in.Lift >= liftWarn &&
				in.TotalSpent.GreaterThanOrEqual(bigCategorySpend) &&
				in.MPCount >= minCategoryMPs
		},
		Severity: func(in RuleInput) Severity {
			return tiered(*in.Lift >= liftHigh)
		},
		Detail: func(in RuleInput) string {
			return fmt.Sprintf("spend share is %.1fx the national share for this category", *in.Lift)
		},
	},
	{
		Code:  "high_spend_low_transparency",
		Title: "Large category with weak proof trail",
		When: func(in RuleInput) bool {
			return in.TotalSpent.GreaterThanOrEqual(bigCategorySpend) &&
				in.CompletedCount >= minCompletedForSample &&
				in.Transparency <= categoryTransparencyWarnPct
		},
		Severity: func(in RuleInput) Severity {
			return tiered(in.Transparency <= categoryTransparencyHighPct)
		},
		Detail: func(in RuleInput) string {
			return fmt.Sprintf("%.1f%% transparency across %d completed works", in.Transparency, in.CompletedCount)
		},
	},
	{
		Code:  "category_vendor_concentration",
		Title: "Category spend concentrated in few vendors",
		When: func(in RuleInput) bool {
			return in.TotalSpent.GreaterThanOrEqual(bigCategorySpend) &&
				in.Top3VendorShare >= concentrationWarnPct &&
				in.DistinctVendors >= 3
		},
		Severity: func(in RuleInput) Severity {
			return tiered(in.Top3VendorShare >= concentrationHighPct)
		},
		Detail: func(in RuleInput) string {
			return fmt.Sprintf("top 3 of %d vendors receive %.1f%% of category spend",
				in.DistinctVendors, in.Top3VendorShare)
		},
	},
}
