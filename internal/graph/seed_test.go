package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, Seed(s))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	if _, ok := snap.Taxpayer(SeedBuyerGSTIN); !ok {
		t.Fatalf("buyer %s missing from seed", SeedBuyerGSTIN)
	}
	if got := len(snap.Vendors()); got != len(seedVendors) {
		t.Errorf("vendors = %d, want %d", got, len(seedVendors))
	}
	if got := len(snap.Invoices()); got != 3*len(seedVendors) {
		t.Errorf("invoices = %d, want %d", got, 3*len(seedVendors))
	}

	// Every invoice belongs to the buyer and has exactly one issuer.
	for _, inv := range snap.Invoices() {
		buyer, ok := snap.PurchaserOf(inv.ID)
		require.True(t, ok, "invoice %s has no purchaser", inv.ID)
		require.Equal(t, SeedBuyerGSTIN, buyer.GSTIN)
		require.Len(t, snap.IssuersOf(inv.ID), 1, "invoice %s issuer count", inv.ID)
	}

	// The ring: exactly three suspicious edges, forming one directed cycle.
	suspicious := 0
	for _, e := range snap.TransactionEdges() {
		if e.Suspicious {
			suspicious++
		}
	}
	if suspicious != 3 {
		t.Errorf("suspicious edges = %d, want 3", suspicious)
	}
}

func TestSeedFilingTiers(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, Seed(s))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	for _, sv := range seedVendors {
		for _, period := range seedPeriods {
			_, found := snap.GSTR1For(sv.gstin, period)
			if found != sv.files {
				t.Errorf("vendor %s period %s: GSTR-1 found = %v, want %v",
					sv.gstin, period, found, sv.files)
			}
		}
	}
}

func TestSeedIRNDeterministic(t *testing.T) {
	a := seedIRN("07AABCS1018A1Z4", "INV-001")
	b := seedIRN("07AABCS1018A1Z4", "INV-001")
	require.Equal(t, a, b)
	require.Len(t, a, 64)
	require.NotEqual(t, a, seedIRN("07AABCS1018A1Z4", "INV-002"))
}
