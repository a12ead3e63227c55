// Vendor-level compliance rollups.
package service

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/graph"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

// Composite compliance score weights. GSTR-1 filing is the primary
// regulatory requirement for the buyer's ITC, so it carries the most.
const (
	weightFiling  = 0.40
	weightIRN     = 0.30
	weightGSTR2B  = 0.20
	weightPayment = 0.10
)

// Vendor risk flags raised by the rollup.
const (
	FlagChronicNonFiler = "CHRONIC_NON_FILER"
	FlagIRNNonCompliant = "IRN_NON_COMPLIANT"
	FlagGSTR2BMismatch  = "GSTR2B_MISMATCH_PATTERN"
	FlagTaxPaymentGaps  = "TAX_PAYMENT_GAPS"
	FlagCircularTrade   = "CIRCULAR_TRADE_SUSPECTED"
)

// VendorAggregator folds scored invoice results into per-vendor compliance
// metrics. Rollups are recomputed in full every run, never incrementally.
type VendorAggregator struct {
	logger *zap.Logger
}

func NewVendorAggregator(logger *zap.Logger) *VendorAggregator {
	return &VendorAggregator{logger: logger}
}

// Aggregate folds all scored results by issuing vendor. ringMembers marks
// vendors that appear in a detected circular-trading ring; pass nil when
// the fraud pass has not run. Vendors with no scored invoices in the run
// produce no rollup. Output is sorted by ascending compliance score.
func (a *VendorAggregator) Aggregate(snap graph.Snapshot, results []*models.InvoiceResult, ringMembers map[string]bool) []*models.VendorRollup {
	type fold struct {
		total    int
		irnOK    int
		in2B     int
		filed    int
		paid     int
		highRisk int
		taxValue decimal.Decimal
		atRisk   decimal.Decimal
	}
	folds := make(map[string]*fold)

	for _, res := range results {
		if res.VendorGSTIN == "" {
			continue
		}
		f := folds[res.VendorGSTIN]
		if f == nil {
			f = &fold{}
			folds[res.VendorGSTIN] = f
		}
		f.total++
		f.taxValue = f.taxValue.Add(res.TotalTax)
		if res.HopVector[models.HopIRN-1] {
			f.irnOK++
		}
		if res.HopVector[models.HopGSTR2B-1] {
			f.in2B++
		}
		if res.HopVector[models.HopFiling-1] {
			f.filed++
		}
		if res.HopVector[models.HopSettlement-1] {
			f.paid++
		}
		if res.RiskCategory == models.RiskHigh || res.RiskCategory == models.RiskCritical {
			f.highRisk++
			f.atRisk = f.atRisk.Add(res.TotalTax)
		}
	}

	rollups := make([]*models.VendorRollup, 0, len(folds))
	for gstin, f := range folds {
		vendor, ok := snap.Vendor(gstin)
		if !ok {
			a.logger.Warn("scored invoice references unknown vendor", zap.String("vendor_gstin", gstin))
			continue
		}
		n := float64(f.total)
		irnRate := float64(f.irnOK) / n
		in2BRate := float64(f.in2B) / n
		filingRate := float64(f.filed) / n
		paymentRate := float64(f.paid) / n

		composite := weightFiling*filingRate +
			weightIRN*irnRate +
			weightGSTR2B*in2BRate +
			weightPayment*paymentRate

		var flags []string
		if filingRate < 0.5 {
			flags = append(flags, FlagChronicNonFiler)
		}
		if irnRate < 0.6 {
			flags = append(flags, FlagIRNNonCompliant)
		}
		if in2BRate < 0.5 {
			flags = append(flags, FlagGSTR2BMismatch)
		}
		if paymentRate < 0.5 {
			flags = append(flags, FlagTaxPaymentGaps)
		}
		if ringMembers[gstin] {
			flags = append(flags, FlagCircularTrade)
		}

		rollups = append(rollups, &models.VendorRollup{
			VendorGSTIN:         gstin,
			VendorName:          vendor.Name,
			TotalInvoices:       f.total,
			TotalTaxValue:       f.taxValue,
			IRNValidityPct:      irnRate * 100,
			GSTR2BReflectionPct: in2BRate * 100,
			FilingCompliancePct: filingRate * 100,
			PaymentPct:          paymentRate * 100,
			AtRiskExposure:      f.atRisk,
			HighRiskInvoices:    f.highRisk,
			ComplianceScore:     composite,
			RiskCategory:        VendorCategoryForScore(composite),
			RiskFlags:           flags,
		})
	}

	sort.Slice(rollups, func(i, j int) bool {
		if rollups[i].ComplianceScore != rollups[j].ComplianceScore {
			return rollups[i].ComplianceScore < rollups[j].ComplianceScore
		}
		return rollups[i].VendorGSTIN < rollups[j].VendorGSTIN
	})
	return rollups
}

// VendorCategoryForScore buckets a composite compliance score (0.0–1.0).
// Note the scale is independent of the invoice score thresholds.
func VendorCategoryForScore(score float64) models.RiskCategory {
	switch {
	case score >= 0.75:
		return models.RiskLow
	case score >= 0.50:
		return models.RiskMedium
	case score >= 0.25:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}
