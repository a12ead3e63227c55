// Graph node and edge types for the GST knowledge graph.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string
type RiskCategory string
type PaymentStatus string
type FilingFrequency string

const (
	StatusMatched    InvoiceStatus = "MATCHED"
	StatusMismatched InvoiceStatus = "MISMATCHED"
	StatusMissing    InvoiceStatus = "MISSING"
	StatusPending    InvoiceStatus = "PENDING"

	RiskLow      RiskCategory = "LOW"
	RiskMedium   RiskCategory = "MEDIUM"
	RiskHigh     RiskCategory = "HIGH"
	RiskCritical RiskCategory = "CRITICAL"

	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentPending PaymentStatus = "PENDING"
	PaymentFailed  PaymentStatus = "FAILED"

	FilingMonthly   FilingFrequency = "MONTHLY"
	FilingQuarterly FilingFrequency = "QUARTERLY"
)

// Edge types. TRANSACTS_WITH is the only relationship permitted to form
// cycles; every other type must trace a DAG from Taxpayer.
const (
	EdgePurchased     = "PURCHASED"
	EdgeIssuedBy      = "ISSUED_BY"
	EdgeFiled         = "FILED"
	EdgeReflectedIn   = "REFLECTED_IN"
	EdgeClaimedIn     = "CLAIMED_IN"
	EdgeHasIRN        = "HAS_IRN"
	EdgePaidTax       = "PAID_TAX"
	EdgeSettledBy     = "SETTLED_BY"
	EdgeTransactsWith = "TRANSACTS_WITH"
)

// Taxpayer is the buyer claiming Input Tax Credit.
type Taxpayer struct {
	GSTIN            string          `json:"gstin"`
	Name             string          `json:"name"`
	StateCode        string          `json:"state_code"`
	RegistrationDate time.Time       `json:"registration_date"`
	AnnualTurnover   decimal.Decimal `json:"annual_turnover"`
}

// Vendor is a supplier. ComplianceScore and RiskCategory are overwritten
// atomically by the vendor aggregator after each reconciliation run.
type Vendor struct {
	GSTIN           string          `json:"gstin"`
	Name            string          `json:"name"`
	StateCode       string          `json:"state_code"`
	FilingFrequency FilingFrequency `json:"filing_frequency"`
	ComplianceScore float64         `json:"compliance_score"`
	RiskCategory    RiskCategory    `json:"risk_category"`
	InvoiceCount    int             `json:"invoice_count"`
	ValidInvoicePct float64         `json:"valid_invoice_pct"`
}

// Invoice is a purchase record. Status, RiskScore, RiskCategory and
// MismatchReason are write-once-per-run outputs of the chain validator
// and risk scorer.
type Invoice struct {
	ID             string          `json:"invoice_id"`
	Number         string          `json:"invoice_number"`
	Date           time.Time       `json:"invoice_date"`
	Period         string          `json:"period"` // YYYY-MM
	TaxableAmount  decimal.Decimal `json:"taxable_amount"`
	CGST           decimal.Decimal `json:"cgst"`
	SGST           decimal.Decimal `json:"sgst"`
	IGST           decimal.Decimal `json:"igst"`
	TotalTax       decimal.Decimal `json:"total_tax"`
	Status         InvoiceStatus   `json:"status"`
	RiskScore      int             `json:"risk_score"`
	RiskCategory   RiskCategory    `json:"risk_category"`
	MismatchReason *string         `json:"mismatch_reason,omitempty"`
}

// IRN is an e-invoice reference issued by the registration portal.
// The engine only reads it.
type IRN struct {
	Hash        string     `json:"irn"` // 64-char SHA-256
	GeneratedAt time.Time  `json:"generated_at"`
	Valid       bool       `json:"valid"`
	Cancelled   bool       `json:"cancelled"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// GSTR1 is the vendor-filed sales return, unique per (vendor, period).
type GSTR1 struct {
	ID            string          `json:"gstr1_id"`
	VendorGSTIN   string          `json:"vendor_gstin"`
	Period        string          `json:"period"`
	Filed         bool            `json:"filed"`
	FilingDate    *time.Time      `json:"filing_date,omitempty"`
	InvoiceCount  int             `json:"invoice_count"`
	TotalTaxValue decimal.Decimal `json:"total_tax_value"`
}

// GSTR2B is the system-generated purchase statement for the buyer.
type GSTR2B struct {
	ID            string          `json:"gstr2b_id"`
	OwnerGSTIN    string          `json:"owner_gstin"`
	Period        string          `json:"period"`
	GeneratedDate time.Time       `json:"generated_date"`
	InvoiceCount  int             `json:"invoice_count"`
	TotalITC      decimal.Decimal `json:"total_itc_available"`
}

// GSTR3B is the buyer-filed summary return carrying the ITC claim.
type GSTR3B struct {
	ID         string          `json:"gstr3b_id"`
	OwnerGSTIN string          `json:"owner_gstin"`
	Period     string          `json:"period"`
	Filed      bool            `json:"filed"`
	FilingDate *time.Time      `json:"filing_date,omitempty"`
	ITCClaimed decimal.Decimal `json:"itc_claimed"`
	TaxPaid    decimal.Decimal `json:"tax_paid"`
}

// Payment is a tax-deposit challan record.
type Payment struct {
	ChallanID string          `json:"challan_id"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Status    PaymentStatus   `json:"status"`
}

// ReflectionEdge carries the tax value recorded against an invoice in
// GSTR-2B; the declared-vs-recorded delta drives the mismatch rule.
type ReflectionEdge struct {
	InvoiceID string          `json:"invoice_id"`
	GSTR2BID  string          `json:"gstr2b_id"`
	TaxValue  decimal.Decimal `json:"tax_value"`
}

// ClaimEdge links an invoice to the GSTR-3B in which its ITC is claimed.
type ClaimEdge struct {
	InvoiceID  string          `json:"invoice_id"`
	GSTR3BID   string          `json:"gstr3b_id"`
	ClaimedITC decimal.Decimal `json:"claimed_itc"`
}

// TransactionEdge is a vendor-to-vendor trading relationship. This is the
// only edge type that may cycle.
type TransactionEdge struct {
	FromGSTIN        string          `json:"from_gstin"`
	ToGSTIN          string          `json:"to_gstin"`
	TransactionCount int             `json:"transaction_count"`
	TotalValue       decimal.Decimal `json:"total_value"`
	Suspicious       bool            `json:"suspicious"`
}
