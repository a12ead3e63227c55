// Multi-hop ITC chain validation.
//
// Each invoice is validated by walking the fixed dependency chain:
//
//	Hop 1: Taxpayer -PURCHASED->   Invoice   (is this our purchase?)
//	Hop 2: Invoice  -ISSUED_BY->   Vendor    (who is the seller?)
//	Hop 3: Invoice  -HAS_IRN->     IRN       (is the e-invoice valid?)
//	Hop 4: Invoice  -REFLECTED_IN->GSTR-2B   (is it in our purchase register?)
//	Hop 5: Vendor   -FILED->       GSTR-1    (did the vendor file sales return?)
//	Hop 6: GSTR-3B  -SETTLED_BY->  Payment   (was the tax deposited?)
package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/graph"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

var hopMismatchReasons = map[int]string{
	models.HopPurchase:   "purchase record not found for taxpayer",
	models.HopIssuer:     "issuing vendor missing or ambiguous",
	models.HopIRN:        "IRN missing, invalid, or cancelled",
	models.HopGSTR2B:     "invoice not reflected in GSTR-2B for the period",
	models.HopFiling:     "vendor did not file GSTR-1 for the period",
	models.HopSettlement: "tax not settled by a successful payment",
}

const reasonAmountMismatch = "declared tax differs from GSTR-2B recorded value"

// ChainValidator walks the 6-hop chain against a graph snapshot. It is a
// pure read pass: the snapshot is never mutated.
type ChainValidator struct {
	logger *zap.Logger
}

func NewChainValidator(logger *zap.Logger) *ChainValidator {
	return &ChainValidator{logger: logger}
}

// Validate produces the hop vector and status for one invoice. A non-nil
// StructuralError means the invoice's graph shape violates a data-model
// invariant (hop 1 or 2); such invoices are excluded from risk scoring and
// reported on the unprocessable list instead.
func (v *ChainValidator) Validate(snap graph.Snapshot, inv *models.Invoice) (*models.InvoiceResult, *models.StructuralError) {
	res := &models.InvoiceResult{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		Period:        inv.Period,
		Status:        models.StatusPending,
		TotalTax:      inv.TotalTax,
		Hops:          make([]models.HopResult, 0, models.NumHops),
	}

	record := func(hop int, traversal string, passed, found bool, detail string) {
		res.HopVector[hop-1] = passed
		res.Hops = append(res.Hops, models.HopResult{
			Hop:         hop,
			Traversal:   traversal,
			Passed:      passed,
			RecordFound: found,
			Detail:      detail,
		})
		if !passed && res.FirstFailingHop == 0 {
			res.FirstFailingHop = hop
		}
	}

	// Hop 1: purchase existence. Fatal on failure.
	buyer, hasBuyer := snap.PurchaserOf(inv.ID)
	if hasBuyer {
		record(models.HopPurchase, "Taxpayer → Invoice", true, true,
			fmt.Sprintf("invoice %s is a purchase record of %s", inv.ID, buyer.GSTIN))
	} else {
		record(models.HopPurchase, "Taxpayer → Invoice", false, false,
			"no PURCHASED edge from any taxpayer")
		return v.structural(res, "invoice has no PURCHASED edge")
	}

	// Hop 2: issuer identity. Exactly one ISSUED_BY edge required.
	issuers := snap.IssuersOf(inv.ID)
	switch len(issuers) {
	case 1:
		res.VendorGSTIN = issuers[0].GSTIN
		record(models.HopIssuer, "Invoice → Vendor", true, true,
			fmt.Sprintf("issued by %s (%s)", issuers[0].Name, issuers[0].GSTIN))
	case 0:
		record(models.HopIssuer, "Invoice → Vendor", false, false,
			"no ISSUED_BY edge")
		return v.structural(res, "invoice has no ISSUED_BY edge")
	default:
		record(models.HopIssuer, "Invoice → Vendor", false, true,
			fmt.Sprintf("%d ISSUED_BY edges, expected exactly one", len(issuers)))
		return v.structural(res, fmt.Sprintf("invoice has %d ISSUED_BY edges", len(issuers)))
	}
	vendor := issuers[0]

	// Hop 3: IRN validity. Absence fails closed — e-invoicing is mandated
	// above the turnover threshold, so "no IRN" is a violation, not N/A.
	irn, irnFound := snap.IRNFor(inv.ID)
	irnOK := irnFound && irn.Valid && !irn.Cancelled
	irnDetail := "IRN not found — e-invoice mandate violated"
	if irnFound {
		if irnOK {
			irnDetail = fmt.Sprintf("IRN %s... valid", irn.Hash[:min(16, len(irn.Hash))])
		} else {
			irnDetail = "IRN present but invalid or cancelled"
		}
	}
	record(models.HopIRN, "Invoice → IRN", irnOK, irnFound, irnDetail)

	// Hop 4: GSTR-2B reflection for the invoice's period. The recorded tax
	// value feeds the amount-mismatch rule.
	refl, reflFound := snap.ReflectionFor(inv.ID, inv.Period)
	if reflFound {
		record(models.HopGSTR2B, "Invoice → GSTR-2B", true, true,
			fmt.Sprintf("reflected in GSTR-2B for period %s", inv.Period))
		res.AmountMismatch = !graph.WithinTolerance(refl.TaxValue, inv.TotalTax)
	} else {
		record(models.HopGSTR2B, "Invoice → GSTR-2B", false, false,
			fmt.Sprintf("not in GSTR-2B for period %s — ITC at risk", inv.Period))
	}

	// Hop 5: vendor filing for the period.
	g1, g1Found := snap.GSTR1For(vendor.GSTIN, inv.Period)
	filedOK := g1Found && g1.Filed
	filingDetail := fmt.Sprintf("no GSTR-1 for period %s — non-filer", inv.Period)
	if g1Found {
		if filedOK {
			filingDetail = fmt.Sprintf("vendor filed GSTR-1 for period %s", inv.Period)
		} else {
			filingDetail = fmt.Sprintf("GSTR-1 for period %s exists but is not filed", inv.Period)
		}
	}
	record(models.HopFiling, "Vendor → GSTR-1", filedOK, g1Found, filingDetail)

	// Hop 6: tax settlement via the buyer's GSTR-3B.
	g3b, g3bFound := snap.GSTR3BFor(buyer.GSTIN, inv.Period)
	var payment *models.Payment
	payFound := false
	if g3bFound {
		payment, payFound = snap.SettlementFor(g3b.ID)
	}
	settled := payFound && payment.Status == models.PaymentSuccess
	settleDetail := "tax payment not confirmed — ITC chain broken at payment"
	if settled {
		settleDetail = fmt.Sprintf("settled by challan %s", payment.ChallanID)
	}
	record(models.HopSettlement, "GSTR-3B → Payment", settled, g3bFound && payFound, settleDetail)

	v.resolveStatus(res)
	return res, nil
}

// resolveStatus maps the hop outcomes to an invoice status. An absent
// upstream record yields MISSING; records that exist but disagree yield
// MISMATCHED.
func (v *ChainValidator) resolveStatus(res *models.InvoiceResult) {
	if res.FirstFailingHop == 0 && !res.AmountMismatch {
		res.Status = models.StatusMatched
		return
	}
	if res.FirstFailingHop != 0 {
		reason := hopMismatchReasons[res.FirstFailingHop]
		res.MismatchReason = &reason
	} else {
		reason := reasonAmountMismatch
		res.MismatchReason = &reason
	}

	anyAbsent := false
	for _, h := range res.Hops {
		if !h.Passed && !h.RecordFound {
			anyAbsent = true
			break
		}
	}
	if anyAbsent {
		res.Status = models.StatusMissing
	} else {
		res.Status = models.StatusMismatched
	}
}

func (v *ChainValidator) structural(res *models.InvoiceResult, reason string) (*models.InvoiceResult, *models.StructuralError) {
	res.Status = models.StatusMissing
	r := hopMismatchReasons[res.FirstFailingHop]
	res.MismatchReason = &r
	v.logger.Warn("structural error, invoice excluded from scoring",
		zap.String("invoice_id", res.InvoiceID),
		zap.String("reason", reason))
	return res, &models.StructuralError{InvoiceID: res.InvoiceID, Reason: reason}
}
