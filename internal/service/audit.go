// Explainable audit reports for reconciled invoices.
package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

type regulatoryRef struct {
	rule   string
	action string
}

// Condensed regulatory references backing each finding code.
var regulatoryRefs = map[string]regulatoryRef{
	"IRN_INVALID": {
		rule:   "Section 68 CGST Act + Rule 48(4) CGST Rules",
		action: "Contact vendor to regenerate IRN via the IRP portal before filing GSTR-3B.",
	},
	"NOT_IN_2B": {
		rule:   "Section 16(2)(aa) CGST Act",
		action: "Do not claim this ITC until the invoice appears in GSTR-2B; follow up with the vendor.",
	},
	"VENDOR_NON_FILER": {
		rule:   "Section 16(2)(c) CGST Act",
		action: "Issue notice to vendor; reverse provisionally claimed ITC.",
	},
	"TAX_UNPAID": {
		rule:   "Section 41 CGST Act",
		action: "Reverse ITC in GSTR-3B to avoid a Section 73/74 demand notice.",
	},
	"AMOUNT_MISMATCH": {
		rule:   "Rule 36(1) CGST Rules",
		action: "Cross-verify the physical invoice against the vendor's GSTR-1 filing.",
	},
	"LOW_VENDOR_SCORE": {
		rule:   "Vendor risk management (internal control)",
		action: "Add vendor to watchlist; require a pre-payment compliance certificate.",
	},
}

var recommendedActions = map[models.RiskCategory]string{
	models.RiskCritical: "BLOCK ITC + escalate to compliance team",
	models.RiskHigh:     "DEFER ITC claim + vendor follow-up",
	models.RiskMedium:   "Monitor and reconcile before filing",
	models.RiskLow:      "Clear for ITC claim",
}

// AuditReporter turns a scored invoice result into an explainable report.
type AuditReporter struct{}

func NewAuditReporter() *AuditReporter { return &AuditReporter{} }

// Report builds the findings list for one scored invoice. vendorScore is
// the issuing vendor's compliance score at snapshot time.
func (r *AuditReporter) Report(res *models.InvoiceResult, vendorScore float64) *models.AuditReport {
	var findings []models.AuditFinding
	add := func(code, severity, finding string) {
		ref := regulatoryRefs[code]
		findings = append(findings, models.AuditFinding{
			Code:     code,
			Severity: severity,
			Finding:  finding,
			GSTRule:  ref.rule,
			Action:   ref.action,
		})
	}

	if !res.HopVector[models.HopIRN-1] {
		add("IRN_INVALID", "HIGH", "IRN validation failed — e-invoice mandate violation")
	}
	if !res.HopVector[models.HopGSTR2B-1] {
		add("NOT_IN_2B", "HIGH", "invoice not reflected in GSTR-2B")
	}
	if !res.HopVector[models.HopFiling-1] {
		add("VENDOR_NON_FILER", "CRITICAL", "vendor has not filed GSTR-1 for the period")
	}
	if !res.HopVector[models.HopSettlement-1] {
		add("TAX_UNPAID", "CRITICAL", "tax payment not confirmed — ITC chain broken")
	}
	if res.AmountMismatch {
		add("AMOUNT_MISMATCH", "MEDIUM", "invoice amount mismatch between declared and GSTR-2B values")
	}
	if vendorScore < LowComplianceThreshold {
		add("LOW_VENDOR_SCORE", "HIGH",
			fmt.Sprintf("vendor compliance score critically low (%.2f)", vendorScore))
	}

	atRisk := decimal.Zero
	if res.RiskCategory == models.RiskHigh || res.RiskCategory == models.RiskCritical {
		atRisk = res.TotalTax
	}

	return &models.AuditReport{
		InvoiceID:         res.InvoiceID,
		RiskScore:         res.RiskScore,
		RiskCategory:      res.RiskCategory,
		Findings:          findings,
		FindingCount:      len(findings),
		AtRiskITC:         atRisk,
		ITCSafeToClaim:    res.RiskCategory == models.RiskLow,
		RecommendedAction: recommendedActions[res.RiskCategory],
	}
}
