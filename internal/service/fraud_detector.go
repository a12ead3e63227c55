// Graph-intelligence fraud passes over the vendor transaction subgraph:
// circular-trading ring enumeration and shell-network hub detection.
// Both read TRANSACTS_WITH edges only and can run concurrently with the
// invoice pipeline.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/graph"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

// FraudConfig bounds the cycle search and the hub threshold.
type FraudConfig struct {
	MinCycleLength int
	MaxCycleLength int
	HubThreshold   int
	Workers        int
}

// DefaultFraudConfig matches the engine contract: simple cycles of length
// 3 to 5, hub degree threshold 5.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		MinCycleLength: 3,
		MaxCycleLength: 5,
		HubThreshold:   5,
		Workers:        4,
	}
}

// FraudDetector enumerates circular-trading rings and suspicious hubs.
type FraudDetector struct {
	cfg    FraudConfig
	logger *zap.Logger
}

func NewFraudDetector(cfg FraudConfig, logger *zap.Logger) *FraudDetector {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &FraudDetector{cfg: cfg, logger: logger}
}

// DetectRings enumerates simple directed cycles whose every edge is
// flagged suspicious. Candidate edges are pre-filtered before the search,
// keeping the branching factor small; each start-node DFS is independent
// and runs under an errgroup, with one mutex guarding the dedup set.
func (d *FraudDetector) DetectRings(ctx context.Context, snap graph.Snapshot) ([]*models.FraudRing, error) {
	adj := make(map[string][]string)
	edgeValue := make(map[string]decimal.Decimal)
	for _, e := range snap.TransactionEdges() {
		if !e.Suspicious {
			continue
		}
		adj[e.FromGSTIN] = append(adj[e.FromGSTIN], e.ToGSTIN)
		edgeValue[e.FromGSTIN+">"+e.ToGSTIN] = e.TotalValue
	}
	starts := make([]string, 0, len(adj))
	for gstin := range adj {
		starts = append(starts, gstin)
	}
	sort.Strings(starts)
	for _, neighbors := range adj {
		sort.Strings(neighbors)
	}

	var (
		mu    sync.Mutex
		seen  = map[string]bool{}
		rings []*models.FraudRing
	)
	report := func(cycle []string) {
		canonical := canonicalRotation(cycle)
		key := ringKey(canonical)
		mu.Lock()
		defer mu.Unlock()
		if seen[key] {
			return
		}
		seen[key] = true
		total := decimal.Zero
		for i, from := range canonical {
			to := canonical[(i+1)%len(canonical)]
			total = total.Add(edgeValue[from+">"+to])
		}
		rings = append(rings, &models.FraudRing{
			GSTINs:     canonical,
			Length:     len(canonical),
			TotalValue: total,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for _, start := range starts {
		start := start
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d.searchFrom(start, adj, report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cycle search aborted: %w", err)
	}

	d.annotate(snap, rings)
	sort.Slice(rings, func(i, j int) bool {
		if c := rings[i].TotalValue.Cmp(rings[j].TotalValue); c != 0 {
			return c > 0
		}
		return rings[i].GSTINs[0] < rings[j].GSTINs[0]
	})
	for i, ring := range rings {
		ring.RingID = fmt.Sprintf("RING-%03d", i+1)
	}
	if len(rings) > 0 {
		d.logger.Warn("circular trading rings detected", zap.Int("ring_count", len(rings)))
	}
	return rings, nil
}

// searchFrom runs a bounded-depth DFS from one start vendor, reporting a
// cycle whenever an edge returns to the start within the depth bound.
func (d *FraudDetector) searchFrom(start string, adj map[string][]string, report func([]string)) {
	stack := []string{start}
	onStack := map[string]bool{start: true}

	var dfs func()
	dfs = func() {
		current := stack[len(stack)-1]
		for _, next := range adj[current] {
			if next == start {
				if len(stack) >= d.cfg.MinCycleLength && len(stack) <= d.cfg.MaxCycleLength {
					report(append([]string(nil), stack...))
				}
				continue
			}
			if onStack[next] || len(stack) >= d.cfg.MaxCycleLength {
				continue
			}
			stack = append(stack, next)
			onStack[next] = true
			dfs()
			stack = stack[:len(stack)-1]
			delete(onStack, next)
		}
	}
	dfs()
}

// annotate attaches invoice exposure to each ring: the count and total tax
// of invoices issued by ring members.
func (d *FraudDetector) annotate(snap graph.Snapshot, rings []*models.FraudRing) {
	for _, ring := range rings {
		itc := decimal.Zero
		count := 0
		for _, gstin := range ring.GSTINs {
			for _, inv := range snap.InvoicesByVendor(gstin) {
				itc = itc.Add(inv.TotalTax)
				count++
			}
		}
		ring.ITCAtRisk = itc
		ring.InvoiceCount = count
	}
}

// DetectHubs flags vendors whose undirected transaction degree (distinct
// neighbors, either direction) reaches the threshold. A plain O(V+E)
// degree count over the full TRANSACTS_WITH subgraph, suspicious or not.
func (d *FraudDetector) DetectHubs(snap graph.Snapshot, results []*models.InvoiceResult) []*models.SuspiciousHub {
	neighbors := make(map[string]map[string]bool)
	link := func(a, b string) {
		if neighbors[a] == nil {
			neighbors[a] = make(map[string]bool)
		}
		neighbors[a][b] = true
	}
	for _, e := range snap.TransactionEdges() {
		link(e.FromGSTIN, e.ToGSTIN)
		link(e.ToGSTIN, e.FromGSTIN)
	}

	type stats struct {
		count int
		total int
	}
	riskByVendor := make(map[string]*stats)
	for _, res := range results {
		if res.VendorGSTIN == "" {
			continue
		}
		st := riskByVendor[res.VendorGSTIN]
		if st == nil {
			st = &stats{}
			riskByVendor[res.VendorGSTIN] = st
		}
		st.count++
		st.total += res.RiskScore
	}

	var hubs []*models.SuspiciousHub
	for gstin, set := range neighbors {
		if len(set) < d.cfg.HubThreshold {
			continue
		}
		hub := &models.SuspiciousHub{
			VendorGSTIN:     gstin,
			ConnectionCount: len(set),
		}
		if st := riskByVendor[gstin]; st != nil && st.count > 0 {
			hub.InvoiceCount = st.count
			hub.AvgInvoiceRisk = float64(st.total) / float64(st.count)
		}
		hubs = append(hubs, hub)
	}
	sort.Slice(hubs, func(i, j int) bool {
		if hubs[i].ConnectionCount != hubs[j].ConnectionCount {
			return hubs[i].ConnectionCount > hubs[j].ConnectionCount
		}
		return hubs[i].VendorGSTIN < hubs[j].VendorGSTIN
	})
	return hubs
}

// canonicalRotation rotates a cycle so it starts at the lexicographically
// smallest GSTIN; [A,B,C] and [B,C,A] are the same ring.
func canonicalRotation(cycle []string) []string {
	smallest := 0
	for i, g := range cycle {
		if g < cycle[smallest] {
			smallest = i
		}
	}
	out := make([]string, len(cycle))
	for i := range cycle {
		out[i] = cycle[(smallest+i)%len(cycle)]
	}
	return out
}

func ringKey(canonical []string) string {
	key := ""
	for _, g := range canonical {
		key += g + "|"
	}
	return key
}
