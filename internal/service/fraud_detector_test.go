package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/graph"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

// tradingGraph builds a store holding only vendors and TRANSACTS_WITH
// edges, the minimum the fraud passes need.
func tradingGraph(t *testing.T, gstins []string, edges []*models.TransactionEdge) graph.Snapshot {
	t.Helper()
	s := graph.NewMemoryStore()
	for _, gstin := range gstins {
		require.NoError(t, s.AddVendor(&models.Vendor{GSTIN: gstin, Name: "V " + gstin, StateCode: "07"}))
	}
	for _, e := range edges {
		require.NoError(t, s.LinkTransactsWith(e))
	}
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func susEdge(from, to string, value int64) *models.TransactionEdge {
	return &models.TransactionEdge{
		FromGSTIN: from, ToGSTIN: to,
		TransactionCount: 1,
		TotalValue:       decimal.NewFromInt(value),
		Suspicious:       true,
	}
}

func cleanEdge(from, to string, value int64) *models.TransactionEdge {
	e := susEdge(from, to, value)
	e.Suspicious = false
	return e
}

func TestDetectRingsTriangle(t *testing.T) {
	snap := tradingGraph(t,
		[]string{"AAA", "BBB", "CCC"},
		[]*models.TransactionEdge{
			susEdge("AAA", "BBB", 220000),
			susEdge("BBB", "CCC", 210000),
			susEdge("CCC", "AAA", 215000),
		})

	d := NewFraudDetector(DefaultFraudConfig(), zap.NewNop())
	rings, err := d.DetectRings(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, rings, 1)

	ring := rings[0]
	if ring.RingID != "RING-001" {
		t.Errorf("RingID = %s, want RING-001", ring.RingID)
	}
	if ring.Length != 3 {
		t.Errorf("Length = %d, want 3", ring.Length)
	}
	// Canonical rotation starts at the smallest GSTIN.
	want := []string{"AAA", "BBB", "CCC"}
	require.Equal(t, want, ring.GSTINs)
	if !ring.TotalValue.Equal(decimal.NewFromInt(645000)) {
		t.Errorf("TotalValue = %s, want 645000", ring.TotalValue)
	}
}

func TestDetectRingsIgnoresCleanEdges(t *testing.T) {
	// Same triangle, but one leg is not flagged suspicious.
	snap := tradingGraph(t,
		[]string{"AAA", "BBB", "CCC"},
		[]*models.TransactionEdge{
			susEdge("AAA", "BBB", 220000),
			cleanEdge("BBB", "CCC", 210000),
			susEdge("CCC", "AAA", 215000),
		})

	d := NewFraudDetector(DefaultFraudConfig(), zap.NewNop())
	rings, err := d.DetectRings(context.Background(), snap)
	require.NoError(t, err)
	require.Empty(t, rings)
}

func TestDetectRingsLengthBounds(t *testing.T) {
	ringOf := func(gstins ...string) []*models.TransactionEdge {
		var edges []*models.TransactionEdge
		for i := range gstins {
			edges = append(edges, susEdge(gstins[i], gstins[(i+1)%len(gstins)], 1000))
		}
		return edges
	}

	tests := []struct {
		name      string
		gstins    []string
		wantRings int
	}{
		{"two-node loop is below minimum", []string{"AAA", "BBB"}, 0},
		{"triangle is detected", []string{"AAA", "BBB", "CCC"}, 1},
		{"five-node ring is detected", []string{"AAA", "BBB", "CCC", "DDD", "EEE"}, 1},
		{"six-node ring exceeds maximum", []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}, 0},
	}

	d := NewFraudDetector(DefaultFraudConfig(), zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tradingGraph(t, tt.gstins, ringOf(tt.gstins...))
			rings, err := d.DetectRings(context.Background(), snap)
			require.NoError(t, err)
			if len(rings) != tt.wantRings {
				t.Errorf("rings = %d, want %d", len(rings), tt.wantRings)
			}
		})
	}
}

func TestDetectRingsDeduplicatesRotations(t *testing.T) {
	// Two triangles sharing the vertex BBB. Each must be reported exactly
	// once regardless of which start node finds it first.
	snap := tradingGraph(t,
		[]string{"AAA", "BBB", "CCC", "DDD", "EEE"},
		[]*models.TransactionEdge{
			susEdge("AAA", "BBB", 100),
			susEdge("BBB", "CCC", 100),
			susEdge("CCC", "AAA", 100),
			susEdge("BBB", "DDD", 200),
			susEdge("DDD", "EEE", 200),
			susEdge("EEE", "BBB", 200),
		})

	d := NewFraudDetector(DefaultFraudConfig(), zap.NewNop())
	rings, err := d.DetectRings(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, rings, 2)

	seen := map[string]bool{}
	for _, ring := range rings {
		require.Len(t, ring.GSTINs, 3)
		// Canonical form: first member is the smallest.
		for _, g := range ring.GSTINs[1:] {
			if g < ring.GSTINs[0] {
				t.Errorf("ring %v not canonically rotated", ring.GSTINs)
			}
		}
		seen[ring.GSTINs[0]] = true
	}
	require.True(t, seen["AAA"] && seen["BBB"], "expected rings anchored at AAA and BBB, got %v", seen)
}

func TestDetectRingsDeterministicOrder(t *testing.T) {
	edges := []*models.TransactionEdge{
		susEdge("AAA", "BBB", 100),
		susEdge("BBB", "CCC", 100),
		susEdge("CCC", "AAA", 100),
		susEdge("DDD", "EEE", 900),
		susEdge("EEE", "FFF", 900),
		susEdge("FFF", "DDD", 900),
	}
	gstins := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}

	d := NewFraudDetector(DefaultFraudConfig(), zap.NewNop())
	for i := 0; i < 5; i++ {
		snap := tradingGraph(t, gstins, edges)
		rings, err := d.DetectRings(context.Background(), snap)
		require.NoError(t, err)
		require.Len(t, rings, 2)
		// Higher circular value first.
		if rings[0].GSTINs[0] != "DDD" || rings[1].GSTINs[0] != "AAA" {
			t.Fatalf("run %d: unexpected order %v, %v", i, rings[0].GSTINs, rings[1].GSTINs)
		}
		if rings[0].RingID != "RING-001" || rings[1].RingID != "RING-002" {
			t.Fatalf("run %d: ids %s, %s", i, rings[0].RingID, rings[1].RingID)
		}
	}
}

func TestDetectHubs(t *testing.T) {
	// HUB trades with 5 distinct peers (mixed directions); SML with 4.
	gstins := []string{"HUB", "SML", "P01", "P02", "P03", "P04", "P05"}
	edges := []*models.TransactionEdge{
		cleanEdge("HUB", "P01", 10),
		cleanEdge("HUB", "P02", 10),
		cleanEdge("P03", "HUB", 10),
		cleanEdge("P04", "HUB", 10),
		cleanEdge("HUB", "P05", 10),
		cleanEdge("SML", "P01", 10),
		cleanEdge("SML", "P02", 10),
		cleanEdge("SML", "P03", 10),
		cleanEdge("P04", "SML", 10),
	}
	snap := tradingGraph(t, gstins, edges)

	results := []*models.InvoiceResult{
		{InvoiceID: "I1", VendorGSTIN: "HUB", RiskScore: 80},
		{InvoiceID: "I2", VendorGSTIN: "HUB", RiskScore: 40},
	}

	d := NewFraudDetector(DefaultFraudConfig(), zap.NewNop())
	hubs := d.DetectHubs(snap, results)
	require.Len(t, hubs, 1)

	hub := hubs[0]
	if hub.VendorGSTIN != "HUB" {
		t.Errorf("VendorGSTIN = %s, want HUB", hub.VendorGSTIN)
	}
	if hub.ConnectionCount != 5 {
		t.Errorf("ConnectionCount = %d, want 5", hub.ConnectionCount)
	}
	if hub.InvoiceCount != 2 {
		t.Errorf("InvoiceCount = %d, want 2", hub.InvoiceCount)
	}
	if hub.AvgInvoiceRisk != 60 {
		t.Errorf("AvgInvoiceRisk = %.1f, want 60", hub.AvgInvoiceRisk)
	}
}

func TestDetectHubsCountsDistinctNeighbors(t *testing.T) {
	// Parallel edges in both directions to the same peer count once.
	gstins := []string{"HUB", "P01", "P02", "P03", "P04"}
	var edges []*models.TransactionEdge
	for i, p := range []string{"P01", "P02", "P03", "P04"} {
		edges = append(edges, cleanEdge("HUB", p, int64(i+1)))
		edges = append(edges, cleanEdge(p, "HUB", int64(i+1)))
	}
	snap := tradingGraph(t, gstins, edges)

	d := NewFraudDetector(DefaultFraudConfig(), zap.NewNop())
	hubs := d.DetectHubs(snap, nil)
	for _, hub := range hubs {
		if hub.VendorGSTIN == "HUB" {
			t.Fatalf("HUB flagged with 4 distinct neighbors: %+v", hub)
		}
	}
}

func TestCanonicalRotation(t *testing.T) {
	tests := []struct {
		cycle []string
		want  []string
	}{
		{[]string{"BBB", "CCC", "AAA"}, []string{"AAA", "BBB", "CCC"}},
		{[]string{"AAA", "BBB", "CCC"}, []string{"AAA", "BBB", "CCC"}},
		{[]string{"CCC", "AAA", "BBB"}, []string{"AAA", "BBB", "CCC"}},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			require.Equal(t, tt.want, canonicalRotation(tt.cycle))
		})
	}
}
