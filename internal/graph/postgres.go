package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

// NewPostgresDB creates a new PostgreSQL connection
func NewPostgresDB(connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS taxpayers (
	gstin             VARCHAR(15) PRIMARY KEY,
	name              TEXT NOT NULL,
	state_code        VARCHAR(2) NOT NULL,
	registration_date TIMESTAMPTZ NOT NULL,
	annual_turnover   NUMERIC(18,2) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS vendors (
	gstin             VARCHAR(15) PRIMARY KEY,
	name              TEXT NOT NULL,
	state_code        VARCHAR(2) NOT NULL,
	filing_frequency  VARCHAR(10) NOT NULL DEFAULT 'MONTHLY',
	compliance_score  DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	risk_category     VARCHAR(10) NOT NULL DEFAULT 'LOW',
	invoice_count     INTEGER NOT NULL DEFAULT 0,
	valid_invoice_pct DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS invoices (
	id             VARCHAR(40) PRIMARY KEY,
	number         TEXT NOT NULL,
	invoice_date   TIMESTAMPTZ NOT NULL,
	period         VARCHAR(7) NOT NULL,
	buyer_gstin    VARCHAR(15) REFERENCES taxpayers(gstin),
	vendor_gstin   VARCHAR(15) REFERENCES vendors(gstin),
	taxable_amount NUMERIC(18,2) NOT NULL,
	cgst           NUMERIC(18,2) NOT NULL DEFAULT 0,
	sgst           NUMERIC(18,2) NOT NULL DEFAULT 0,
	igst           NUMERIC(18,2) NOT NULL DEFAULT 0,
	total_tax      NUMERIC(18,2) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_period ON invoices(period);
CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(vendor_gstin);

CREATE TABLE IF NOT EXISTS irns (
	invoice_id   VARCHAR(40) PRIMARY KEY REFERENCES invoices(id),
	hash         CHAR(64) NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	valid        BOOLEAN NOT NULL,
	cancelled    BOOLEAN NOT NULL DEFAULT FALSE,
	cancelled_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS gstr1_returns (
	id           VARCHAR(60) PRIMARY KEY,
	vendor_gstin VARCHAR(15) NOT NULL REFERENCES vendors(gstin),
	period       VARCHAR(7) NOT NULL,
	filed        BOOLEAN NOT NULL,
	filing_date  TIMESTAMPTZ,
	UNIQUE (vendor_gstin, period)
);

CREATE TABLE IF NOT EXISTS gstr2b_statements (
	id             VARCHAR(60) PRIMARY KEY,
	owner_gstin    VARCHAR(15) NOT NULL,
	period         VARCHAR(7) NOT NULL,
	generated_date TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS gstr3b_returns (
	id          VARCHAR(60) PRIMARY KEY,
	owner_gstin VARCHAR(15) NOT NULL,
	period      VARCHAR(7) NOT NULL,
	filed       BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	challan_id VARCHAR(40) PRIMARY KEY,
	gstr3b_id  VARCHAR(60) NOT NULL REFERENCES gstr3b_returns(id),
	amount     NUMERIC(18,2) NOT NULL,
	paid_at    TIMESTAMPTZ NOT NULL,
	status     VARCHAR(10) NOT NULL
);

CREATE TABLE IF NOT EXISTS reflection_edges (
	invoice_id VARCHAR(40) PRIMARY KEY REFERENCES invoices(id),
	gstr2b_id  VARCHAR(60) NOT NULL REFERENCES gstr2b_statements(id),
	tax_value  NUMERIC(18,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS claim_edges (
	invoice_id  VARCHAR(40) PRIMARY KEY REFERENCES invoices(id),
	gstr3b_id   VARCHAR(60) NOT NULL REFERENCES gstr3b_returns(id),
	claimed_itc NUMERIC(18,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_edges (
	from_gstin        VARCHAR(15) NOT NULL,
	to_gstin          VARCHAR(15) NOT NULL,
	transaction_count INTEGER NOT NULL DEFAULT 1,
	total_value       NUMERIC(18,2) NOT NULL DEFAULT 0,
	suspicious        BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (from_gstin, to_gstin)
);

CREATE TABLE IF NOT EXISTS reconciliation_runs (
	run_id           VARCHAR(40) PRIMARY KEY,
	snapshot_version VARCHAR(40) NOT NULL,
	period           VARCHAR(7),
	started_at       TIMESTAMPTZ NOT NULL,
	duration_ms      BIGINT NOT NULL,
	total_invoices   INTEGER NOT NULL,
	matched          INTEGER NOT NULL,
	mismatched       INTEGER NOT NULL,
	missing          INTEGER NOT NULL,
	ring_ids         TEXT[],
	summary          JSONB NOT NULL
);
`

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// PostgresStore keeps the authoritative graph in PostgreSQL and serves
// snapshots from an in-memory replica loaded at startup. Rollup commits
// write through to the database first, then to the replica, so a crashed
// run never leaves the replica ahead of the database.
type PostgresStore struct {
	db     *sql.DB
	mem    *MemoryStore
	logger *zap.Logger
}

func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, mem: NewMemoryStore(), logger: logger}
}

// Load reads the whole graph into the in-memory replica and validates the
// acyclicity invariant before serving anything.
func (s *PostgresStore) Load(ctx context.Context) error {
	if err := s.loadTaxpayers(ctx); err != nil {
		return err
	}
	if err := s.loadVendors(ctx); err != nil {
		return err
	}
	if err := s.loadReturns(ctx); err != nil {
		return err
	}
	if err := s.loadInvoices(ctx); err != nil {
		return err
	}
	if err := s.loadEdges(ctx); err != nil {
		return err
	}
	if err := s.mem.Validate(); err != nil {
		return fmt.Errorf("loaded graph violates invariants: %w", err)
	}
	snap, err := s.mem.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("graph loaded from postgres",
		zap.Int("vendors", len(snap.Vendors())),
		zap.Int("invoices", len(snap.Invoices())))
	return nil
}

func (s *PostgresStore) loadTaxpayers(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gstin, name, state_code, registration_date, annual_turnover
		FROM taxpayers
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		tp := &models.Taxpayer{}
		if err := rows.Scan(&tp.GSTIN, &tp.Name, &tp.StateCode, &tp.RegistrationDate, &tp.AnnualTurnover); err != nil {
			return err
		}
		if err := s.mem.AddTaxpayer(tp); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) loadVendors(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gstin, name, state_code, filing_frequency, compliance_score, risk_category, invoice_count, valid_invoice_pct
		FROM vendors
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		v := &models.Vendor{}
		if err := rows.Scan(&v.GSTIN, &v.Name, &v.StateCode, &v.FilingFrequency,
			&v.ComplianceScore, &v.RiskCategory, &v.InvoiceCount, &v.ValidInvoicePct); err != nil {
			return err
		}
		if err := s.mem.AddVendor(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) loadReturns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vendor_gstin, period, filed, filing_date FROM gstr1_returns
	`)
	if err != nil {
		return err
	}
	for rows.Next() {
		g := &models.GSTR1{}
		if err := rows.Scan(&g.ID, &g.VendorGSTIN, &g.Period, &g.Filed, &g.FilingDate); err != nil {
			rows.Close()
			return err
		}
		if err := s.mem.AddGSTR1(g); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, owner_gstin, period, generated_date FROM gstr2b_statements
	`)
	if err != nil {
		return err
	}
	for rows.Next() {
		g := &models.GSTR2B{}
		if err := rows.Scan(&g.ID, &g.OwnerGSTIN, &g.Period, &g.GeneratedDate); err != nil {
			rows.Close()
			return err
		}
		if err := s.mem.AddGSTR2B(g); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, owner_gstin, period, filed FROM gstr3b_returns
	`)
	if err != nil {
		return err
	}
	for rows.Next() {
		g := &models.GSTR3B{}
		if err := rows.Scan(&g.ID, &g.OwnerGSTIN, &g.Period, &g.Filed); err != nil {
			rows.Close()
			return err
		}
		if err := s.mem.AddGSTR3B(g); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT challan_id, gstr3b_id, amount, paid_at, status FROM payments
	`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		p := &models.Payment{}
		var gstr3bID string
		if err := rows.Scan(&p.ChallanID, &gstr3bID, &p.Amount, &p.Date, &p.Status); err != nil {
			return err
		}
		if err := s.mem.LinkSettledBy(gstr3bID, p); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) loadInvoices(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, invoice_date, period, buyer_gstin, vendor_gstin,
		       taxable_amount, cgst, sgst, igst, total_tax
		FROM invoices
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		inv := &models.Invoice{Status: models.StatusPending}
		var buyer, vendor sql.NullString
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.Date, &inv.Period, &buyer, &vendor,
			&inv.TaxableAmount, &inv.CGST, &inv.SGST, &inv.IGST, &inv.TotalTax); err != nil {
			return err
		}
		if err := s.mem.AddInvoice(inv); err != nil {
			return err
		}
		if buyer.Valid {
			if err := s.mem.LinkPurchased(buyer.String, inv.ID); err != nil {
				return err
			}
		}
		if vendor.Valid {
			if err := s.mem.LinkIssuedBy(inv.ID, vendor.String); err != nil {
				return err
			}
		}
	}
	return rows.Err()
}

func (s *PostgresStore) loadEdges(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, hash, generated_at, valid, cancelled, cancelled_at FROM irns
	`)
	if err != nil {
		return err
	}
	for rows.Next() {
		irn := &models.IRN{}
		var invoiceID string
		if err := rows.Scan(&invoiceID, &irn.Hash, &irn.GeneratedAt, &irn.Valid, &irn.Cancelled, &irn.CancelledAt); err != nil {
			rows.Close()
			return err
		}
		if err := s.mem.LinkIRN(invoiceID, irn); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT invoice_id, gstr2b_id, tax_value FROM reflection_edges
	`)
	if err != nil {
		return err
	}
	for rows.Next() {
		e := &models.ReflectionEdge{}
		if err := rows.Scan(&e.InvoiceID, &e.GSTR2BID, &e.TaxValue); err != nil {
			rows.Close()
			return err
		}
		if err := s.mem.LinkReflectedIn(e); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT invoice_id, gstr3b_id, claimed_itc FROM claim_edges
	`)
	if err != nil {
		return err
	}
	for rows.Next() {
		e := &models.ClaimEdge{}
		if err := rows.Scan(&e.InvoiceID, &e.GSTR3BID, &e.ClaimedITC); err != nil {
			rows.Close()
			return err
		}
		if err := s.mem.LinkClaimedIn(e); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT from_gstin, to_gstin, transaction_count, total_value, suspicious FROM transaction_edges
	`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		e := &models.TransactionEdge{}
		if err := rows.Scan(&e.FromGSTIN, &e.ToGSTIN, &e.TransactionCount, &e.TotalValue, &e.Suspicious); err != nil {
			return err
		}
		if err := s.mem.LinkTransactsWith(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Snapshot serves from the in-memory replica.
func (s *PostgresStore) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.mem.Snapshot(ctx)
}

// CommitVendorRollups persists every rollup in one transaction, then
// applies the same batch to the replica. The database transaction is the
// atomicity boundary.
func (s *PostgresStore) CommitVendorRollups(ctx context.Context, rollups []*models.VendorRollup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE vendors
		SET compliance_score = $1, risk_category = $2, invoice_count = $3, valid_invoice_pct = $4
		WHERE gstin = $5
	`
	for _, r := range rollups {
		validPct := 0.0
		if r.TotalInvoices > 0 {
			validPct = float64(r.TotalInvoices-r.HighRiskInvoices) / float64(r.TotalInvoices) * 100
		}
		if _, err := tx.ExecContext(ctx, query,
			r.ComplianceScore, r.RiskCategory, r.TotalInvoices, validPct, r.VendorGSTIN); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.mem.CommitVendorRollups(ctx, rollups)
}

// SaveRunReport archives the run outcome for audit trails.
func (s *PostgresStore) SaveRunReport(ctx context.Context, report *models.ReconciliationReport) error {
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return err
	}
	ringIDs := make([]string, 0, len(report.Rings))
	for _, ring := range report.Rings {
		ringIDs = append(ringIDs, ring.RingID)
	}
	query := `
		INSERT INTO reconciliation_runs
		(run_id, snapshot_version, period, started_at, duration_ms, total_invoices, matched, mismatched, missing, ring_ids, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		report.RunID,
		report.SnapshotVersion,
		report.Period,
		report.StartedAt,
		report.DurationMS,
		report.Summary.TotalInvoices,
		report.Summary.Matched,
		report.Summary.Mismatched,
		report.Summary.Missing,
		pq.Array(ringIDs),
		summary,
	)
	return err
}
