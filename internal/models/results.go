// Immutable result records produced by a reconciliation run.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NumHops is the length of the ITC validation chain.
const NumHops = 6

// Hop indexes (1-based, matching GST practitioner terminology).
const (
	HopPurchase   = 1 // Taxpayer -PURCHASED-> Invoice
	HopIssuer     = 2 // Invoice -ISSUED_BY-> Vendor
	HopIRN        = 3 // Invoice -HAS_IRN-> IRN
	HopGSTR2B     = 4 // Invoice -REFLECTED_IN-> GSTR2B
	HopFiling     = 5 // Vendor -FILED-> GSTR1
	HopSettlement = 6 // GSTR3B -SETTLED_BY-> Payment
)

// HopResult is the outcome of a single traversal hop. RecordFound
// distinguishes an absent upstream record from one that exists but fails
// the check; both score as failures.
type HopResult struct {
	Hop         int    `json:"hop"`
	Traversal   string `json:"traversal"`
	Passed      bool   `json:"passed"`
	RecordFound bool   `json:"record_found"`
	Detail      string `json:"detail"`
}

// InvoiceResult is the per-invoice output of chain validation and scoring.
type InvoiceResult struct {
	InvoiceID       string          `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	VendorGSTIN     string          `json:"vendor_gstin"`
	Period          string          `json:"period"`
	HopVector       [NumHops]bool   `json:"hop_vector"`
	Hops            []HopResult     `json:"hops"`
	FirstFailingHop int             `json:"first_failing_hop"` // 0 = all passed
	AmountMismatch  bool            `json:"amount_mismatch"`
	Status          InvoiceStatus   `json:"status"`
	RiskScore       int             `json:"risk_score"`
	RiskCategory    RiskCategory    `json:"risk_category"`
	MismatchReason  *string         `json:"mismatch_reason,omitempty"`
	RiskReasons     []string        `json:"risk_reasons"`
	TotalTax        decimal.Decimal `json:"total_tax"`
}

// StructuralError marks an invoice whose graph shape violates a data-model
// invariant. These are data-integrity errors, not risk findings, and are
// reported apart from the scored results.
type StructuralError struct {
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
}

// VendorRollup is the per-vendor fold over scored invoices, recomputed in
// full every run.
type VendorRollup struct {
	VendorGSTIN         string          `json:"vendor_gstin"`
	VendorName          string          `json:"vendor_name"`
	TotalInvoices       int             `json:"total_invoices"`
	TotalTaxValue       decimal.Decimal `json:"total_tax_value"`
	IRNValidityPct      float64         `json:"irn_validity_pct"`
	GSTR2BReflectionPct float64         `json:"gstr2b_reflection_pct"`
	FilingCompliancePct float64         `json:"filing_compliance_pct"`
	PaymentPct          float64         `json:"payment_pct"`
	AtRiskExposure      decimal.Decimal `json:"at_risk_exposure"`
	HighRiskInvoices    int             `json:"high_risk_invoices"`
	ComplianceScore     float64         `json:"compliance_score"`
	RiskCategory        RiskCategory    `json:"risk_category"`
	RiskFlags           []string        `json:"risk_flags"`
}

// FraudRing is a circular-trading cycle. GSTINs start at the
// lexicographically smallest member (canonical rotation).
type FraudRing struct {
	RingID       string          `json:"ring_id"`
	GSTINs       []string        `json:"cycle_gstins"`
	Length       int             `json:"cycle_length"`
	TotalValue   decimal.Decimal `json:"total_circular_value"`
	ITCAtRisk    decimal.Decimal `json:"itc_at_risk"`
	InvoiceCount int             `json:"invoice_count"`
}

// SuspiciousHub is a vendor whose transaction-graph degree crosses the
// shell-network threshold.
type SuspiciousHub struct {
	VendorGSTIN     string  `json:"vendor_gstin"`
	ConnectionCount int     `json:"connection_count"`
	InvoiceCount    int     `json:"invoice_count"`
	AvgInvoiceRisk  float64 `json:"avg_invoice_risk"`
}

// AuditFinding is one fired rule with its regulatory context.
type AuditFinding struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Finding  string `json:"finding"`
	GSTRule  string `json:"gst_rule"`
	Action   string `json:"action"`
}

// AuditReport is the explainable per-invoice report consumed by
// reporting layers.
type AuditReport struct {
	InvoiceID         string          `json:"invoice_id"`
	RiskScore         int             `json:"risk_score"`
	RiskCategory      RiskCategory    `json:"risk_category"`
	Findings          []AuditFinding  `json:"findings"`
	FindingCount      int             `json:"finding_count"`
	AtRiskITC         decimal.Decimal `json:"at_risk_itc"`
	ITCSafeToClaim    bool            `json:"itc_safe_to_claim"`
	RecommendedAction string          `json:"recommended_action"`
}

// PeriodTrend is one period bucket of the dashboard trend.
type PeriodTrend struct {
	Period      string          `json:"period"`
	Invoices    int             `json:"invoices"`
	Mismatched  int             `json:"mismatched"`
	ITC         decimal.Decimal `json:"itc"`
	MismatchPct float64         `json:"mismatch_pct"`
}

// RunSummary holds run-level KPIs for dashboards.
type RunSummary struct {
	TotalInvoices      int                  `json:"total_invoices"`
	TotalVendors       int                  `json:"total_vendors"`
	Matched            int                  `json:"matched_invoices"`
	Mismatched         int                  `json:"mismatched_invoices"`
	Missing            int                  `json:"missing_invoices"`
	TotalITC           decimal.Decimal      `json:"total_itc_pool"`
	AtRiskITC          decimal.Decimal      `json:"at_risk_itc"`
	RiskDistribution   map[RiskCategory]int `json:"risk_distribution"`
	PeriodTrend        []PeriodTrend        `json:"period_trend"`
	CircularRings      int                  `json:"circular_trade_rings"`
	SuspiciousVendors  int                  `json:"suspicious_vendors"`
	CircularITCExposed decimal.Decimal      `json:"circular_itc_exposed"`
}

// ReconciliationReport is the full output of one run over one snapshot.
type ReconciliationReport struct {
	RunID           string             `json:"run_id"`
	SnapshotVersion string             `json:"snapshot_version"`
	Period          string             `json:"period,omitempty"` // empty = all periods
	StartedAt       time.Time          `json:"started_at"`
	DurationMS      int64              `json:"duration_ms"`
	Results         []*InvoiceResult   `json:"results"`
	Unprocessable   []StructuralError  `json:"unprocessable"`
	Rollups         []*VendorRollup    `json:"rollups"`
	Rings           []*FraudRing       `json:"rings"`
	Hubs            []*SuspiciousHub   `json:"hubs"`
	Summary         RunSummary         `json:"summary"`
}
