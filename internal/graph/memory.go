package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

// MemoryStore is an in-memory Store. It is the demo and test backend; the
// graph layout mirrors exactly what a production graph database would hold,
// so swapping backends is a repository-layer change only.
type MemoryStore struct {
	mu      sync.RWMutex
	version int

	taxpayers map[string]*models.Taxpayer
	vendors   map[string]*models.Vendor
	invoices  map[string]*models.Invoice

	// Edge indexes, keyed for O(1) hop lookups.
	purchased   map[string]string                    // invoice id -> taxpayer gstin
	issuedBy    map[string][]string                  // invoice id -> vendor gstins
	irns        map[string]*models.IRN               // invoice id -> IRN
	gstr1       map[string]*models.GSTR1             // vendor|period -> GSTR1
	gstr2b      map[string]*models.GSTR2B            // gstr2b id -> GSTR2B
	gstr3b      map[string]*models.GSTR3B            // owner|period -> GSTR3B
	settlements map[string]*models.Payment           // gstr3b id -> Payment
	reflections map[string][]*models.ReflectionEdge  // invoice id -> edges
	claims      map[string]*models.ClaimEdge         // invoice id -> edge
	txEdges     []*models.TransactionEdge
}

// NewMemoryStore returns an empty store ready for ingestion.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		taxpayers:   make(map[string]*models.Taxpayer),
		vendors:     make(map[string]*models.Vendor),
		invoices:    make(map[string]*models.Invoice),
		purchased:   make(map[string]string),
		issuedBy:    make(map[string][]string),
		irns:        make(map[string]*models.IRN),
		gstr1:       make(map[string]*models.GSTR1),
		gstr2b:      make(map[string]*models.GSTR2B),
		gstr3b:      make(map[string]*models.GSTR3B),
		settlements: make(map[string]*models.Payment),
		reflections: make(map[string][]*models.ReflectionEdge),
		claims:      make(map[string]*models.ClaimEdge),
	}
}

func periodKey(owner, period string) string { return owner + "|" + period }

// ── Ingestion ────────────────────────────────────────────────

func (s *MemoryStore) AddTaxpayer(t *models.Taxpayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxpayers[t.GSTIN]; ok {
		return fmt.Errorf("%w: taxpayer %s", ErrDuplicateKey, t.GSTIN)
	}
	s.taxpayers[t.GSTIN] = t
	return nil
}

func (s *MemoryStore) AddVendor(v *models.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[v.GSTIN]; ok {
		return fmt.Errorf("%w: vendor %s", ErrDuplicateKey, v.GSTIN)
	}
	s.vendors[v.GSTIN] = v
	return nil
}

// AddInvoice checks the tax-component invariant: CGST+SGST+IGST must equal
// the total tax within currency rounding tolerance.
func (s *MemoryStore) AddInvoice(inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; ok {
		return fmt.Errorf("%w: invoice %s", ErrDuplicateKey, inv.ID)
	}
	sum := inv.CGST.Add(inv.SGST).Add(inv.IGST)
	if !WithinTolerance(sum, inv.TotalTax) {
		return fmt.Errorf("%w: invoice %s tax components sum %s != total %s",
			ErrInvariant, inv.ID, sum, inv.TotalTax)
	}
	s.invoices[inv.ID] = inv
	return nil
}

func (s *MemoryStore) AddGSTR1(r *models.GSTR1) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := periodKey(r.VendorGSTIN, r.Period)
	if _, ok := s.gstr1[key]; ok {
		return fmt.Errorf("%w: GSTR-1 for %s period %s", ErrDuplicateKey, r.VendorGSTIN, r.Period)
	}
	s.gstr1[key] = r
	return nil
}

func (s *MemoryStore) AddGSTR2B(r *models.GSTR2B) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gstr2b[r.ID]; ok {
		return fmt.Errorf("%w: GSTR-2B %s", ErrDuplicateKey, r.ID)
	}
	s.gstr2b[r.ID] = r
	return nil
}

func (s *MemoryStore) AddGSTR3B(r *models.GSTR3B) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := periodKey(r.OwnerGSTIN, r.Period)
	if _, ok := s.gstr3b[key]; ok {
		return fmt.Errorf("%w: GSTR-3B for %s period %s", ErrDuplicateKey, r.OwnerGSTIN, r.Period)
	}
	s.gstr3b[key] = r
	return nil
}

func (s *MemoryStore) LinkPurchased(taxpayerGSTIN, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxpayers[taxpayerGSTIN]; !ok {
		return fmt.Errorf("%w: taxpayer %s", ErrNotFound, taxpayerGSTIN)
	}
	s.purchased[invoiceID] = taxpayerGSTIN
	return nil
}

// LinkIssuedBy records an ISSUED_BY edge. Multiplicity is not rejected
// here; an ambiguous issuer surfaces as a structural error at validation.
func (s *MemoryStore) LinkIssuedBy(invoiceID, vendorGSTIN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[vendorGSTIN]; !ok {
		return fmt.Errorf("%w: vendor %s", ErrNotFound, vendorGSTIN)
	}
	s.issuedBy[invoiceID] = append(s.issuedBy[invoiceID], vendorGSTIN)
	return nil
}

// LinkIRN attaches an IRN; at most one per invoice.
func (s *MemoryStore) LinkIRN(invoiceID string, irn *models.IRN) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.irns[invoiceID]; ok {
		return fmt.Errorf("%w: invoice %s already has an IRN", ErrDuplicateKey, invoiceID)
	}
	s.irns[invoiceID] = irn
	return nil
}

func (s *MemoryStore) LinkReflectedIn(e *models.ReflectionEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gstr2b[e.GSTR2BID]; !ok {
		return fmt.Errorf("%w: GSTR-2B %s", ErrNotFound, e.GSTR2BID)
	}
	s.reflections[e.InvoiceID] = append(s.reflections[e.InvoiceID], e)
	return nil
}

func (s *MemoryStore) LinkClaimedIn(e *models.ClaimEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[e.InvoiceID] = e
	return nil
}

func (s *MemoryStore) LinkSettledBy(gstr3bID string, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[gstr3bID] = p
	return nil
}

func (s *MemoryStore) LinkTransactsWith(e *models.TransactionEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[e.FromGSTIN]; !ok {
		return fmt.Errorf("%w: vendor %s", ErrNotFound, e.FromGSTIN)
	}
	if _, ok := s.vendors[e.ToGSTIN]; !ok {
		return fmt.Errorf("%w: vendor %s", ErrNotFound, e.ToGSTIN)
	}
	s.txEdges = append(s.txEdges, e)
	return nil
}

// Validate enforces the typed-edge acyclicity invariant: every edge type
// except TRANSACTS_WITH must trace a DAG from Taxpayer. The check runs
// over the union adjacency of all non-transactional edges so that future
// edge additions cannot silently introduce loops, even though the current
// typed endpoints make most loops structurally impossible.
func (s *MemoryStore) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adj := make(map[string][]string)
	add := func(from, to string) { adj[from] = append(adj[from], to) }
	for inv, tp := range s.purchased {
		add("tp:"+tp, "inv:"+inv)
	}
	for inv, vendors := range s.issuedBy {
		for _, v := range vendors {
			add("inv:"+inv, "v:"+v)
		}
	}
	for key, r := range s.gstr1 {
		add("v:"+r.VendorGSTIN, "g1:"+key)
	}
	for inv, edges := range s.reflections {
		for _, e := range edges {
			add("inv:"+inv, "g2b:"+e.GSTR2BID)
		}
	}
	for inv, e := range s.claims {
		add("inv:"+inv, "g3b:"+e.GSTR3BID)
	}
	for inv := range s.irns {
		add("inv:"+inv, "irn:"+inv)
	}
	for g3b, p := range s.settlements {
		add("g3b:"+g3b, "pay:"+p.ChallanID)
	}

	return checkAcyclic(adj)
}

// checkAcyclic runs a three-color DFS over the given adjacency and returns
// ErrCycleForbidden on the first back edge.
func checkAcyclic(adj map[string][]string) error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(adj))
	var visit func(node string) error
	visit = func(node string) error {
		color[node] = grey
		for _, next := range adj[node] {
			switch color[next] {
			case grey:
				return fmt.Errorf("%w: via %s -> %s", ErrCycleForbidden, node, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[node] = black
		return nil
	}
	for node := range adj {
		if color[node] == white {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// ── Store interface ──────────────────────────────────────────

// Snapshot materializes an immutable view. Node pointers are shared with
// the live store; rollup commits replace vendor structs wholesale rather
// than mutating them, so a snapshot never observes a half-written vendor.
func (s *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &memorySnapshot{
		version:     fmt.Sprintf("mem-v%d", s.version),
		taxpayers:   make(map[string]*models.Taxpayer, len(s.taxpayers)),
		vendors:     make(map[string]*models.Vendor, len(s.vendors)),
		invoices:    make(map[string]*models.Invoice, len(s.invoices)),
		purchased:   make(map[string]string, len(s.purchased)),
		issuedBy:    make(map[string][]string, len(s.issuedBy)),
		irns:        make(map[string]*models.IRN, len(s.irns)),
		gstr1:       make(map[string]*models.GSTR1, len(s.gstr1)),
		gstr3b:      make(map[string]*models.GSTR3B, len(s.gstr3b)),
		gstr2b:      make(map[string]*models.GSTR2B, len(s.gstr2b)),
		settlements: make(map[string]*models.Payment, len(s.settlements)),
		reflections: make(map[string][]*models.ReflectionEdge, len(s.reflections)),
		claims:      make(map[string]*models.ClaimEdge, len(s.claims)),
		txEdges:     append([]*models.TransactionEdge(nil), s.txEdges...),
	}
	for k, v := range s.taxpayers {
		snap.taxpayers[k] = v
	}
	for k, v := range s.vendors {
		snap.vendors[k] = v
	}
	for k, v := range s.invoices {
		snap.invoices[k] = v
	}
	for k, v := range s.purchased {
		snap.purchased[k] = v
	}
	for k, v := range s.issuedBy {
		snap.issuedBy[k] = append([]string(nil), v...)
	}
	for k, v := range s.irns {
		snap.irns[k] = v
	}
	for k, v := range s.gstr1 {
		snap.gstr1[k] = v
	}
	for k, v := range s.gstr2b {
		snap.gstr2b[k] = v
	}
	for k, v := range s.gstr3b {
		snap.gstr3b[k] = v
	}
	for k, v := range s.settlements {
		snap.settlements[k] = v
	}
	for k, v := range s.reflections {
		snap.reflections[k] = append([]*models.ReflectionEdge(nil), v...)
	}
	for k, v := range s.claims {
		snap.claims[k] = v
	}
	return snap, nil
}

// CommitVendorRollups applies all rollups under one lock; each vendor is
// replaced by a freshly built struct, the compare-and-swap equivalent for
// an in-memory map.
func (s *MemoryStore) CommitVendorRollups(ctx context.Context, rollups []*models.VendorRollup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rollups {
		old, ok := s.vendors[r.VendorGSTIN]
		if !ok {
			return fmt.Errorf("%w: vendor %s", ErrNotFound, r.VendorGSTIN)
		}
		updated := *old
		updated.ComplianceScore = r.ComplianceScore
		updated.RiskCategory = r.RiskCategory
		updated.InvoiceCount = r.TotalInvoices
		updated.ValidInvoicePct = r.IRNValidityPct
		s.vendors[r.VendorGSTIN] = &updated
	}
	s.version++
	return nil
}

// ── Snapshot implementation ──────────────────────────────────

type memorySnapshot struct {
	version     string
	taxpayers   map[string]*models.Taxpayer
	vendors     map[string]*models.Vendor
	invoices    map[string]*models.Invoice
	purchased   map[string]string
	issuedBy    map[string][]string
	irns        map[string]*models.IRN
	gstr1       map[string]*models.GSTR1
	gstr2b      map[string]*models.GSTR2B
	gstr3b      map[string]*models.GSTR3B
	settlements map[string]*models.Payment
	reflections map[string][]*models.ReflectionEdge
	claims      map[string]*models.ClaimEdge
	txEdges     []*models.TransactionEdge
}

func (m *memorySnapshot) Version() string { return m.version }

func (m *memorySnapshot) Taxpayer(gstin string) (*models.Taxpayer, bool) {
	t, ok := m.taxpayers[gstin]
	return t, ok
}

func (m *memorySnapshot) Vendor(gstin string) (*models.Vendor, bool) {
	v, ok := m.vendors[gstin]
	return v, ok
}

func (m *memorySnapshot) Vendors() []*models.Vendor {
	out := make([]*models.Vendor, 0, len(m.vendors))
	for _, v := range m.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GSTIN < out[j].GSTIN })
	return out
}

func (m *memorySnapshot) Invoice(id string) (*models.Invoice, bool) {
	inv, ok := m.invoices[id]
	return inv, ok
}

func (m *memorySnapshot) Invoices() []*models.Invoice {
	out := make([]*models.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memorySnapshot) InvoicesForPeriod(period string) []*models.Invoice {
	var out []*models.Invoice
	for _, inv := range m.Invoices() {
		if inv.Period == period {
			out = append(out, inv)
		}
	}
	return out
}

func (m *memorySnapshot) InvoicesByVendor(gstin string) []*models.Invoice {
	var out []*models.Invoice
	for _, inv := range m.Invoices() {
		for _, issuer := range m.issuedBy[inv.ID] {
			if issuer == gstin {
				out = append(out, inv)
				break
			}
		}
	}
	return out
}

func (m *memorySnapshot) PurchaserOf(invoiceID string) (*models.Taxpayer, bool) {
	gstin, ok := m.purchased[invoiceID]
	if !ok {
		return nil, false
	}
	return m.Taxpayer(gstin)
}

func (m *memorySnapshot) IssuersOf(invoiceID string) []*models.Vendor {
	var out []*models.Vendor
	for _, gstin := range m.issuedBy[invoiceID] {
		if v, ok := m.vendors[gstin]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (m *memorySnapshot) IRNFor(invoiceID string) (*models.IRN, bool) {
	irn, ok := m.irns[invoiceID]
	return irn, ok
}

func (m *memorySnapshot) ReflectionFor(invoiceID, period string) (*models.ReflectionEdge, bool) {
	for _, e := range m.reflections[invoiceID] {
		if g2b, ok := m.gstr2b[e.GSTR2BID]; ok && g2b.Period == period {
			return e, true
		}
	}
	return nil, false
}

func (m *memorySnapshot) GSTR1For(vendorGSTIN, period string) (*models.GSTR1, bool) {
	r, ok := m.gstr1[periodKey(vendorGSTIN, period)]
	return r, ok
}

func (m *memorySnapshot) GSTR3BFor(ownerGSTIN, period string) (*models.GSTR3B, bool) {
	r, ok := m.gstr3b[periodKey(ownerGSTIN, period)]
	return r, ok
}

func (m *memorySnapshot) SettlementFor(gstr3bID string) (*models.Payment, bool) {
	p, ok := m.settlements[gstr3bID]
	return p, ok
}

func (m *memorySnapshot) ClaimFor(invoiceID string) (*models.ClaimEdge, bool) {
	e, ok := m.claims[invoiceID]
	return e, ok
}

func (m *memorySnapshot) TransactionEdges() []*models.TransactionEdge {
	return m.txEdges
}
