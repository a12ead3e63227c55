// Deterministic rule-based invoice risk scoring.
package service

import (
	"fmt"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

// LowComplianceThreshold is the vendor compliance score below which the
// chronic-offender penalty applies.
const LowComplianceThreshold = 0.5

// ScoreInput is the full input domain of the scorer. Identical inputs
// always yield identical output.
type ScoreInput struct {
	HopVector      [models.NumHops]bool
	AmountMismatch bool
	VendorScore    float64
}

type scoreRule struct {
	name    string
	points  int
	reason  string
	applies func(ScoreInput) bool
}

// Scoring weights reflect real GST audit risk: vendor non-filing and
// unsettled tax land directly on the buyer, a dead IRN breaks the
// e-invoice mandate outright.
var scoreRules = []scoreRule{
	{
		name:   "irn_invalid",
		points: 40,
		reason: "IRN missing, invalid, or cancelled — e-invoice mandate violation",
		applies: func(in ScoreInput) bool {
			return !in.HopVector[models.HopIRN-1]
		},
	},
	{
		name:   "not_in_gstr2b",
		points: 30,
		reason: "invoice not reflected in GSTR-2B — ITC disallowance risk",
		applies: func(in ScoreInput) bool {
			return !in.HopVector[models.HopGSTR2B-1]
		},
	},
	{
		name:   "vendor_non_filer",
		points: 35,
		reason: "vendor has not filed GSTR-1 — GST not deposited upstream",
		applies: func(in ScoreInput) bool {
			return !in.HopVector[models.HopFiling-1]
		},
	},
	{
		name:   "tax_unsettled",
		points: 35,
		reason: "tax payment not confirmed — ITC chain broken",
		applies: func(in ScoreInput) bool {
			return !in.HopVector[models.HopSettlement-1]
		},
	},
	{
		name:   "amount_mismatch",
		points: 20,
		reason: "invoice amount mismatch between declared and GSTR-2B values",
		applies: func(in ScoreInput) bool {
			return in.AmountMismatch
		},
	},
	{
		name:   "low_vendor_score",
		points: 10,
		reason: "", // reason is formatted with the actual score
		applies: func(in ScoreInput) bool {
			return in.VendorScore < LowComplianceThreshold
		},
	},
}

// RiskScorer converts a hop vector plus vendor attributes into a score in
// [0,100] and a category. It is stateless; Score is a pure function.
type RiskScorer struct{}

func NewRiskScorer() *RiskScorer { return &RiskScorer{} }

// Score applies every rule independently (rules are not mutually
// exclusive), clamps to [0,100], and buckets the result.
func (s *RiskScorer) Score(in ScoreInput) (int, models.RiskCategory, []string) {
	score := 0
	var reasons []string
	for _, rule := range scoreRules {
		if !rule.applies(in) {
			continue
		}
		score += rule.points
		reason := rule.reason
		if rule.name == "low_vendor_score" {
			reason = fmt.Sprintf("vendor compliance score critically low (%.2f)", in.VendorScore)
		}
		reasons = append(reasons, reason)
	}
	if score > 100 {
		score = 100
	}
	return score, CategoryForScore(score), reasons
}

// CategoryForScore buckets a score. Thresholds are inclusive on the low
// end, so ties resolve to the higher category.
func CategoryForScore(score int) models.RiskCategory {
	switch {
	case score >= 80:
		return models.RiskCritical
	case score >= 60:
		return models.RiskHigh
	case score >= 40:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
