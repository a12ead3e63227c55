// Package graph provides storage-agnostic access to the GST knowledge
// graph. The reconciliation engine reads a consistent Snapshot and never
// mutates graph data; the only writes are the per-vendor rollup commits
// after a run completes.
package graph

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

var (
	ErrNotFound       = errors.New("graph: record not found")
	ErrDuplicateKey   = errors.New("graph: duplicate key")
	ErrCycleForbidden = errors.New("graph: cycle through non-transactional edge type")
	ErrInvariant      = errors.New("graph: data-model invariant violated")
)

// Store is the engine's collaborator boundary. Implementations must hand
// out snapshots with a stable version token and apply rollup commits
// atomically per vendor.
type Store interface {
	// Snapshot returns a consistent read set for the duration of one run.
	Snapshot(ctx context.Context) (Snapshot, error)

	// CommitVendorRollups overwrites each vendor's compliance score and
	// risk category. A concurrent reader must never observe a vendor with
	// one field updated and the other stale.
	CommitVendorRollups(ctx context.Context, rollups []*models.VendorRollup) error
}

// Snapshot is an immutable view of the graph. All lookups are O(1) or
// O(result) against prebuilt indexes.
type Snapshot interface {
	// Version is the snapshot token identifying this read set.
	Version() string

	Taxpayer(gstin string) (*models.Taxpayer, bool)
	Vendor(gstin string) (*models.Vendor, bool)
	Vendors() []*models.Vendor
	Invoice(id string) (*models.Invoice, bool)
	Invoices() []*models.Invoice
	InvoicesForPeriod(period string) []*models.Invoice
	InvoicesByVendor(gstin string) []*models.Invoice

	// PurchaserOf resolves the PURCHASED edge (hop 1).
	PurchaserOf(invoiceID string) (*models.Taxpayer, bool)
	// IssuersOf resolves ISSUED_BY edges (hop 2). The data-model invariant
	// requires exactly one; callers see the raw edge set so that zero or
	// ambiguous issuers surface as structural errors.
	IssuersOf(invoiceID string) []*models.Vendor
	// IRNFor resolves the HAS_IRN edge (hop 3). At most one per invoice.
	IRNFor(invoiceID string) (*models.IRN, bool)
	// ReflectionFor resolves the REFLECTED_IN edge into the GSTR-2B for
	// the given period (hop 4), with the tax value recorded there.
	ReflectionFor(invoiceID, period string) (*models.ReflectionEdge, bool)
	// GSTR1For resolves the FILED edge, unique on (vendor, period) (hop 5).
	GSTR1For(vendorGSTIN, period string) (*models.GSTR1, bool)
	// GSTR3BFor finds the buyer's summary return for a period (hop 6).
	GSTR3BFor(ownerGSTIN, period string) (*models.GSTR3B, bool)
	// SettlementFor resolves the SETTLED_BY edge from a GSTR-3B (hop 6).
	SettlementFor(gstr3bID string) (*models.Payment, bool)
	// ClaimFor resolves the CLAIMED_IN edge carrying the claimed ITC.
	ClaimFor(invoiceID string) (*models.ClaimEdge, bool)

	// TransactionEdges returns the TRANSACTS_WITH subgraph used by the
	// fraud detectors.
	TransactionEdges() []*models.TransactionEdge
}

// MoneyTolerance is the currency rounding tolerance used when comparing
// declared and recorded tax values.
var MoneyTolerance = decimal.NewFromFloat(0.01)

// WithinTolerance reports whether two amounts agree within MoneyTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(MoneyTolerance) <= 0
}
