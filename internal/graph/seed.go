package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

// Demo dataset. Deterministic by construction so that every run over the
// seed produces identical results: a clean tier, a non-filer tier, an
// e-invoice violator tier, and a three-vendor circular trading ring.

const SeedBuyerGSTIN = "27AABCM1234A1Z5"

var seedPeriods = []string{"2024-09", "2024-10"}

type seedVendor struct {
	gstin    string
	name     string
	state    string
	irnValid bool
	in2B     bool
	files    bool
	mismatch bool
	ring     bool
}

var seedVendors = []seedVendor{
	{gstin: "27AABCT1001A1Z3", name: "Tata Components Ltd", state: "27", irnValid: true, in2B: true, files: true},
	{gstin: "29AABCI1002A1Z7", name: "Infosys BPO Services", state: "29", irnValid: true, in2B: true, files: true},
	{gstin: "24AABCR1003A1Z1", name: "Reliance Industries Sup", state: "24", irnValid: true, in2B: false, files: true},
	{gstin: "06AABCH1004A1Z9", name: "Havells Electrical", state: "06", irnValid: true, in2B: true, files: false},
	{gstin: "19AABCE1005A1Z2", name: "Exide Industries Sup", state: "19", irnValid: false, in2B: true, files: false, mismatch: true},
	{gstin: "07AABCS1018A1Z4", name: "ShellCo Trading Hub", state: "07", ring: true},
	{gstin: "07AABCP1019A1Z6", name: "Phantom Supplies Pvt", state: "07", ring: true},
	{gstin: "07AABCM1020A1Z8", name: "Mirage Enterprises", state: "07", ring: true},
}

func seedIRN(vendorGSTIN, invoiceID string) string {
	sum := sha256.Sum256([]byte(vendorGSTIN + "INV" + invoiceID))
	return hex.EncodeToString(sum[:])
}

// Seed populates the store with the demo graph. The invoice mix covers
// every hop failure mode plus the circular ring.
func Seed(s *MemoryStore) error {
	taxpayer := &models.Taxpayer{
		GSTIN:            SeedBuyerGSTIN,
		Name:             "Mahindra Auto Parts Manufacturing Ltd",
		StateCode:        "27",
		RegistrationDate: time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC),
		AnnualTurnover:   decimal.NewFromInt(150_000_000),
	}
	if err := s.AddTaxpayer(taxpayer); err != nil {
		return err
	}

	for _, sv := range seedVendors {
		if err := s.AddVendor(&models.Vendor{
			GSTIN:           sv.gstin,
			Name:            sv.name,
			StateCode:       sv.state,
			FilingFrequency: models.FilingMonthly,
			ComplianceScore: 1.0,
			RiskCategory:    models.RiskLow,
		}); err != nil {
			return err
		}
	}

	// Buyer-side returns: one GSTR-2B and one settled GSTR-3B per period.
	for _, period := range seedPeriods {
		g2bID := "GSTR2B-BUYER-" + period
		if err := s.AddGSTR2B(&models.GSTR2B{
			ID:            g2bID,
			OwnerGSTIN:    SeedBuyerGSTIN,
			Period:        period,
			GeneratedDate: time.Now().UTC(),
		}); err != nil {
			return err
		}
		g3bID := "GSTR3B-BUYER-" + period
		if err := s.AddGSTR3B(&models.GSTR3B{
			ID:         g3bID,
			OwnerGSTIN: SeedBuyerGSTIN,
			Period:     period,
			Filed:      true,
		}); err != nil {
			return err
		}
		if err := s.LinkSettledBy(g3bID, &models.Payment{
			ChallanID: "CHLN-" + period,
			Amount:    decimal.NewFromInt(1_000_000),
			Date:      time.Now().UTC(),
			Status:    models.PaymentSuccess,
		}); err != nil {
			return err
		}
	}

	// Vendor filings, only for the vendors that file.
	for _, sv := range seedVendors {
		if !sv.files {
			continue
		}
		for _, period := range seedPeriods {
			filed := time.Now().UTC()
			if err := s.AddGSTR1(&models.GSTR1{
				ID:          fmt.Sprintf("GSTR1-%s-%s", sv.gstin, period),
				VendorGSTIN: sv.gstin,
				Period:      period,
				Filed:       true,
				FilingDate:  &filed,
			}); err != nil {
				return err
			}
		}
	}

	// Invoices: three per vendor, spread over the two periods.
	idx := 0
	for _, sv := range seedVendors {
		for i := 0; i < 3; i++ {
			idx++
			period := seedPeriods[i%len(seedPeriods)]
			taxable := decimal.NewFromInt(int64(50_000 + 25_000*idx))
			tax := taxable.Mul(decimal.NewFromFloat(0.18)).Round(2)
			interstate := sv.state != "27"
			inv := &models.Invoice{
				ID:            fmt.Sprintf("INV-%03d", idx),
				Number:        fmt.Sprintf("%s/2024/%04d", sv.gstin[:6], idx),
				Date:          time.Date(2024, time.Month(9+i%2), 10, 0, 0, 0, 0, time.UTC),
				Period:        period,
				TaxableAmount: taxable,
				TotalTax:      tax,
				Status:        models.StatusPending,
			}
			if interstate {
				inv.IGST = tax
			} else {
				half := tax.Div(decimal.NewFromInt(2)).Round(2)
				inv.CGST = half
				inv.SGST = tax.Sub(half)
			}
			if err := s.AddInvoice(inv); err != nil {
				return err
			}
			if err := s.LinkPurchased(SeedBuyerGSTIN, inv.ID); err != nil {
				return err
			}
			if err := s.LinkIssuedBy(inv.ID, sv.gstin); err != nil {
				return err
			}
			if sv.irnValid {
				if err := s.LinkIRN(inv.ID, &models.IRN{
					Hash:        seedIRN(sv.gstin, inv.ID),
					GeneratedAt: inv.Date,
					Valid:       true,
				}); err != nil {
					return err
				}
			}
			if sv.in2B {
				recorded := tax
				if sv.mismatch {
					recorded = tax.Sub(decimal.NewFromInt(500))
				}
				if err := s.LinkReflectedIn(&models.ReflectionEdge{
					InvoiceID: inv.ID,
					GSTR2BID:  "GSTR2B-BUYER-" + period,
					TaxValue:  recorded,
				}); err != nil {
					return err
				}
			}
			if err := s.LinkClaimedIn(&models.ClaimEdge{
				InvoiceID:  inv.ID,
				GSTR3BID:   "GSTR3B-BUYER-" + period,
				ClaimedITC: tax,
			}); err != nil {
				return err
			}
		}
	}

	// The circular trading ring: ShellCo -> Phantom -> Mirage -> ShellCo,
	// every edge suspicious.
	ring := []string{"07AABCS1018A1Z4", "07AABCP1019A1Z6", "07AABCM1020A1Z8"}
	values := []int64{220_000, 210_000, 215_000}
	for i, from := range ring {
		to := ring[(i+1)%len(ring)]
		if err := s.LinkTransactsWith(&models.TransactionEdge{
			FromGSTIN:        from,
			ToGSTIN:          to,
			TransactionCount: 4 + i,
			TotalValue:       decimal.NewFromInt(values[i]),
			Suspicious:       true,
		}); err != nil {
			return err
		}
	}

	// Legitimate trading edges that make ShellCo a high-degree hub.
	for _, peer := range []string{
		"27AABCT1001A1Z3", "29AABCI1002A1Z7", "24AABCR1003A1Z1", "06AABCH1004A1Z9",
	} {
		if err := s.LinkTransactsWith(&models.TransactionEdge{
			FromGSTIN:        "07AABCS1018A1Z4",
			ToGSTIN:          peer,
			TransactionCount: 2,
			TotalValue:       decimal.NewFromInt(80_000),
			Suspicious:       false,
		}); err != nil {
			return err
		}
	}

	return s.Validate()
}
