package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/graph"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

const (
	testBuyer  = "27AABCB0001A1Z1"
	testVendor = "29AABCV0002A1Z2"
	testPeriod = "2024-09"
)

// chainFixture builds a store holding one invoice with a fully intact
// 6-hop chain. Tests break individual hops by skipping setup steps.
type chainFixture struct {
	store *graph.MemoryStore
	inv   *models.Invoice

	skipPurchased bool
	skipIssuer    bool
	extraIssuer   bool
	skipIRN       bool
	cancelledIRN  bool
	skipReflect   bool
	reflectedTax  decimal.Decimal
	skipGSTR1     bool
	skipPayment   bool
}

func newChainFixture() *chainFixture {
	tax := decimal.NewFromInt(1800)
	return &chainFixture{
		store: graph.NewMemoryStore(),
		inv: &models.Invoice{
			ID:            "INV-T-001",
			Number:        "29AABC/2024/0001",
			Date:          time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC),
			Period:        testPeriod,
			TaxableAmount: decimal.NewFromInt(10000),
			CGST:          decimal.NewFromInt(900),
			SGST:          decimal.NewFromInt(900),
			TotalTax:      tax,
			Status:        models.StatusPending,
		},
		reflectedTax: tax,
	}
}

func (f *chainFixture) build(t *testing.T) graph.Snapshot {
	t.Helper()
	s := f.store

	require.NoError(t, s.AddTaxpayer(&models.Taxpayer{GSTIN: testBuyer, Name: "Test Buyer", StateCode: "27"}))
	require.NoError(t, s.AddVendor(&models.Vendor{GSTIN: testVendor, Name: "Test Vendor", StateCode: "29", ComplianceScore: 1.0}))
	require.NoError(t, s.AddInvoice(f.inv))

	if !f.skipPurchased {
		require.NoError(t, s.LinkPurchased(testBuyer, f.inv.ID))
	}
	if !f.skipIssuer {
		require.NoError(t, s.LinkIssuedBy(f.inv.ID, testVendor))
	}
	if f.extraIssuer {
		require.NoError(t, s.AddVendor(&models.Vendor{GSTIN: "33AABCX0003A1Z3", Name: "Second Issuer", StateCode: "33"}))
		require.NoError(t, s.LinkIssuedBy(f.inv.ID, "33AABCX0003A1Z3"))
	}
	if !f.skipIRN {
		require.NoError(t, s.LinkIRN(f.inv.ID, &models.IRN{
			Hash:      "a3f1c2d4e5b60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90",
			Valid:     true,
			Cancelled: f.cancelledIRN,
		}))
	}

	require.NoError(t, s.AddGSTR2B(&models.GSTR2B{ID: "G2B-T", OwnerGSTIN: testBuyer, Period: testPeriod}))
	if !f.skipReflect {
		require.NoError(t, s.LinkReflectedIn(&models.ReflectionEdge{
			InvoiceID: f.inv.ID, GSTR2BID: "G2B-T", TaxValue: f.reflectedTax,
		}))
	}
	if !f.skipGSTR1 {
		require.NoError(t, s.AddGSTR1(&models.GSTR1{
			ID: "G1-T", VendorGSTIN: testVendor, Period: testPeriod, Filed: true,
		}))
	}
	require.NoError(t, s.AddGSTR3B(&models.GSTR3B{ID: "G3B-T", OwnerGSTIN: testBuyer, Period: testPeriod, Filed: true}))
	if !f.skipPayment {
		require.NoError(t, s.LinkSettledBy("G3B-T", &models.Payment{
			ChallanID: "CHLN-T", Amount: decimal.NewFromInt(1800), Status: models.PaymentSuccess,
		}))
	}

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestValidateCleanChain(t *testing.T) {
	f := newChainFixture()
	snap := f.build(t)

	res, structErr := NewChainValidator(zap.NewNop()).Validate(snap, f.inv)
	require.Nil(t, structErr)

	if res.Status != models.StatusMatched {
		t.Errorf("Status = %s, want %s", res.Status, models.StatusMatched)
	}
	if res.FirstFailingHop != 0 {
		t.Errorf("FirstFailingHop = %d, want 0", res.FirstFailingHop)
	}
	if res.VendorGSTIN != testVendor {
		t.Errorf("VendorGSTIN = %s, want %s", res.VendorGSTIN, testVendor)
	}
	if len(res.Hops) != models.NumHops {
		t.Errorf("hop count = %d, want %d", len(res.Hops), models.NumHops)
	}
	for i, passed := range res.HopVector {
		if !passed {
			t.Errorf("hop %d failed, want pass", i+1)
		}
	}
	if res.AmountMismatch {
		t.Error("AmountMismatch = true, want false")
	}
	if res.MismatchReason != nil {
		t.Errorf("MismatchReason = %q, want nil", *res.MismatchReason)
	}
}

func TestValidateVendorNotFiled(t *testing.T) {
	f := newChainFixture()
	f.skipGSTR1 = true
	snap := f.build(t)

	res, structErr := NewChainValidator(zap.NewNop()).Validate(snap, f.inv)
	require.Nil(t, structErr)

	if res.FirstFailingHop != models.HopFiling {
		t.Errorf("FirstFailingHop = %d, want %d", res.FirstFailingHop, models.HopFiling)
	}
	// GSTR-1 record is absent entirely, so the invoice is MISSING.
	if res.Status != models.StatusMissing {
		t.Errorf("Status = %s, want %s", res.Status, models.StatusMissing)
	}
	if res.MismatchReason == nil {
		t.Fatal("MismatchReason is nil, want filing reason")
	}
}

func TestValidateCancelledIRN(t *testing.T) {
	f := newChainFixture()
	f.cancelledIRN = true
	snap := f.build(t)

	res, structErr := NewChainValidator(zap.NewNop()).Validate(snap, f.inv)
	require.Nil(t, structErr)

	if res.FirstFailingHop != models.HopIRN {
		t.Errorf("FirstFailingHop = %d, want %d", res.FirstFailingHop, models.HopIRN)
	}
	// The IRN exists but is cancelled: present-but-inconsistent, so the
	// invoice is MISMATCHED rather than MISSING.
	if res.Status != models.StatusMismatched {
		t.Errorf("Status = %s, want %s", res.Status, models.StatusMismatched)
	}
	if res.Hops[models.HopIRN-1].RecordFound != true {
		t.Error("RecordFound = false for cancelled IRN, want true")
	}
}

func TestValidateAbsentIRN(t *testing.T) {
	f := newChainFixture()
	f.skipIRN = true
	snap := f.build(t)

	res, structErr := NewChainValidator(zap.NewNop()).Validate(snap, f.inv)
	require.Nil(t, structErr)

	if res.FirstFailingHop != models.HopIRN {
		t.Errorf("FirstFailingHop = %d, want %d", res.FirstFailingHop, models.HopIRN)
	}
	if res.Status != models.StatusMissing {
		t.Errorf("Status = %s, want %s", res.Status, models.StatusMissing)
	}
}

func TestValidateAmountMismatch(t *testing.T) {
	f := newChainFixture()
	f.reflectedTax = decimal.NewFromInt(1500)
	snap := f.build(t)

	res, structErr := NewChainValidator(zap.NewNop()).Validate(snap, f.inv)
	require.Nil(t, structErr)

	if !res.AmountMismatch {
		t.Fatal("AmountMismatch = false, want true")
	}
	// All hops pass; the disagreement is in the recorded value.
	if res.FirstFailingHop != 0 {
		t.Errorf("FirstFailingHop = %d, want 0", res.FirstFailingHop)
	}
	if res.Status != models.StatusMismatched {
		t.Errorf("Status = %s, want %s", res.Status, models.StatusMismatched)
	}
	if res.MismatchReason == nil || *res.MismatchReason != reasonAmountMismatch {
		t.Errorf("MismatchReason = %v, want %q", res.MismatchReason, reasonAmountMismatch)
	}
}

func TestValidateWithinToleranceIsNotMismatch(t *testing.T) {
	f := newChainFixture()
	f.reflectedTax = decimal.NewFromFloat(1800.01)
	snap := f.build(t)

	res, structErr := NewChainValidator(zap.NewNop()).Validate(snap, f.inv)
	require.Nil(t, structErr)

	if res.AmountMismatch {
		t.Error("AmountMismatch = true for delta at tolerance, want false")
	}
	if res.Status != models.StatusMatched {
		t.Errorf("Status = %s, want %s", res.Status, models.StatusMatched)
	}
}

func TestValidateNotReflected(t *testing.T) {
	f := newChainFixture()
	f.skipReflect = true
	snap := f.build(t)

	res, structErr := NewChainValidator(zap.NewNop()).Validate(snap, f.inv)
	require.Nil(t, structErr)

	if res.FirstFailingHop != models.HopGSTR2B {
		t.Errorf("FirstFailingHop = %d, want %d", res.FirstFailingHop, models.HopGSTR2B)
	}
	if res.Status != models.StatusMissing {
		t.Errorf("Status = %s, want %s", res.Status, models.StatusMissing)
	}
	if res.AmountMismatch {
		t.Error("AmountMismatch should not fire without a reflection edge")
	}
}

func TestValidateStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*chainFixture)
		wantHop int
	}{
		{
			name:    "no purchase edge",
			mutate:  func(f *chainFixture) { f.skipPurchased = true },
			wantHop: models.HopPurchase,
		},
		{
			name:    "no issuer edge",
			mutate:  func(f *chainFixture) { f.skipIssuer = true },
			wantHop: models.HopIssuer,
		},
		{
			name:    "ambiguous issuer",
			mutate:  func(f *chainFixture) { f.extraIssuer = true },
			wantHop: models.HopIssuer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChainFixture()
			tt.mutate(f)
			snap := f.build(t)

			res, structErr := NewChainValidator(zap.NewNop()).Validate(snap, f.inv)
			require.NotNil(t, structErr)
			if structErr.InvoiceID != f.inv.ID {
				t.Errorf("StructuralError.InvoiceID = %s, want %s", structErr.InvoiceID, f.inv.ID)
			}
			if res.FirstFailingHop != tt.wantHop {
				t.Errorf("FirstFailingHop = %d, want %d", res.FirstFailingHop, tt.wantHop)
			}
			if res.Status != models.StatusMissing {
				t.Errorf("Status = %s, want %s", res.Status, models.StatusMissing)
			}
		})
	}
}
