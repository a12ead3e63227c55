// Reconciliation run orchestration.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/graph"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/metrics"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
)

// RunConfig bounds one reconciliation run. A zero RunBudget disables the
// wall-clock limit.
type RunConfig struct {
	Workers   int
	RunBudget time.Duration
}

// DefaultRunConfig sizes the validation pool conservatively; invoice
// validation is CPU-light and snapshot-bound.
func DefaultRunConfig() RunConfig {
	return RunConfig{Workers: 8, RunBudget: 2 * time.Minute}
}

// ReconciliationService drives a full run: snapshot, parallel chain
// validation and scoring, vendor aggregation, fraud passes, and the
// atomic rollup commit. A run either commits completely or not at all.
type ReconciliationService struct {
	store      graph.Store
	validator  *ChainValidator
	scorer     *RiskScorer
	aggregator *VendorAggregator
	fraud      *FraudDetector
	cfg        RunConfig
	logger     *zap.Logger
}

func NewReconciliationService(store graph.Store, fraudCfg FraudConfig, cfg RunConfig, logger *zap.Logger) *ReconciliationService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &ReconciliationService{
		store:      store,
		validator:  NewChainValidator(logger),
		scorer:     NewRiskScorer(),
		aggregator: NewVendorAggregator(logger),
		fraud:      NewFraudDetector(fraudCfg, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// Run reconciles every invoice in the snapshot for the given period
// (empty period = all periods). Validation and scoring are pure reads and
// run in parallel over disjoint invoice subsets; the fraud passes touch
// disjoint edge types and run concurrently with them. Vendor rollups are
// committed only after the whole run completes within budget.
func (s *ReconciliationService) Run(ctx context.Context, period string) (*models.ReconciliationReport, error) {
	started := time.Now()
	if s.cfg.RunBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunBudget)
		defer cancel()
	}

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to acquire snapshot: %w", err)
	}

	var invoices []*models.Invoice
	if period == "" {
		invoices = snap.Invoices()
	} else {
		invoices = snap.InvoicesForPeriod(period)
	}

	s.logger.Info("starting reconciliation run",
		zap.String("snapshot", snap.Version()),
		zap.String("period", period),
		zap.Int("invoices", len(invoices)))

	// Validation phase. Each worker owns a disjoint slot; no shared
	// mutable state until the barrier.
	resSlots := make([]*models.InvoiceResult, len(invoices))
	errSlots := make([]*models.StructuralError, len(invoices))
	var rings []*models.FraudRing

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers + 1)
	g.Go(func() error {
		var ringErr error
		rings, ringErr = s.fraud.DetectRings(gctx, snap)
		return ringErr
	})
	for i, inv := range invoices {
		i, inv := i, inv
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, structErr := s.validator.Validate(snap, inv)
			if structErr == nil {
				vendorScore := 1.0
				if vendor, ok := snap.Vendor(res.VendorGSTIN); ok {
					vendorScore = vendor.ComplianceScore
				}
				score, category, reasons := s.scorer.Score(ScoreInput{
					HopVector:      res.HopVector,
					AmountMismatch: res.AmountMismatch,
					VendorScore:    vendorScore,
				})
				res.RiskScore = score
				res.RiskCategory = category
				res.RiskReasons = reasons
			}
			resSlots[i] = res
			errSlots[i] = structErr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("reconciliation run aborted, no vendor writes applied: %w", err)
	}

	// Barrier passed: partition scored results from unprocessable ones.
	var (
		scored        []*models.InvoiceResult
		unprocessable []models.StructuralError
	)
	for i := range resSlots {
		if errSlots[i] != nil {
			unprocessable = append(unprocessable, *errSlots[i])
			continue
		}
		scored = append(scored, resSlots[i])
	}

	ringMembers := make(map[string]bool)
	for _, ring := range rings {
		for _, gstin := range ring.GSTINs {
			ringMembers[gstin] = true
		}
	}

	rollups := s.aggregator.Aggregate(snap, scored, ringMembers)
	hubs := s.fraud.DetectHubs(snap, scored)

	// The budget check gates the commit: partial vendor updates must
	// never become visible, so an expired context fails the whole run.
	if err := ctx.Err(); err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("run budget exceeded, no vendor writes applied: %w", err)
	}
	if err := s.store.CommitVendorRollups(ctx, rollups); err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to commit vendor rollups: %w", err)
	}

	report := &models.ReconciliationReport{
		RunID:           uuid.New().String(),
		SnapshotVersion: snap.Version(),
		Period:          period,
		StartedAt:       started,
		DurationMS:      time.Since(started).Milliseconds(),
		Results:         scored,
		Unprocessable:   unprocessable,
		Rollups:         rollups,
		Rings:           rings,
		Hubs:            hubs,
	}
	report.Summary = s.summarize(snap, report)

	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.InvoicesProcessed.Add(float64(len(scored)))
	metrics.StructuralErrors.Add(float64(len(unprocessable)))
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	metrics.RingsDetected.Set(float64(len(rings)))

	s.logger.Info("reconciliation run complete",
		zap.String("run_id", report.RunID),
		zap.Int("scored", len(scored)),
		zap.Int("unprocessable", len(unprocessable)),
		zap.Int("vendors", len(rollups)),
		zap.Int("rings", len(rings)),
		zap.Int("hubs", len(hubs)),
		zap.Int64("duration_ms", report.DurationMS))

	return report, nil
}

func (s *ReconciliationService) summarize(snap graph.Snapshot, report *models.ReconciliationReport) models.RunSummary {
	summary := models.RunSummary{
		TotalInvoices: len(report.Results) + len(report.Unprocessable),
		TotalVendors:  len(snap.Vendors()),
		RiskDistribution: map[models.RiskCategory]int{
			models.RiskLow: 0, models.RiskMedium: 0, models.RiskHigh: 0, models.RiskCritical: 0,
		},
		CircularRings:     len(report.Rings),
		SuspiciousVendors: len(report.Hubs),
	}
	summary.Missing = len(report.Unprocessable)

	trend := make(map[string]*models.PeriodTrend)
	for _, res := range report.Results {
		summary.TotalITC = summary.TotalITC.Add(res.TotalTax)
		summary.RiskDistribution[res.RiskCategory]++
		switch res.Status {
		case models.StatusMatched:
			summary.Matched++
		case models.StatusMismatched:
			summary.Mismatched++
		case models.StatusMissing:
			summary.Missing++
		}
		if res.RiskCategory == models.RiskHigh || res.RiskCategory == models.RiskCritical {
			summary.AtRiskITC = summary.AtRiskITC.Add(res.TotalTax)
		}

		t := trend[res.Period]
		if t == nil {
			t = &models.PeriodTrend{Period: res.Period}
			trend[res.Period] = t
		}
		t.Invoices++
		t.ITC = t.ITC.Add(res.TotalTax)
		if res.Status == models.StatusMismatched {
			t.Mismatched++
		}
	}

	periods := make([]string, 0, len(trend))
	for p := range trend {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	for _, p := range periods {
		t := trend[p]
		if t.Invoices > 0 {
			t.MismatchPct = float64(t.Mismatched) / float64(t.Invoices) * 100
		}
		summary.PeriodTrend = append(summary.PeriodTrend, *t)
	}

	// Circular ITC exposure over the union of ring members, so vendors
	// shared by two rings are not double counted.
	members := make(map[string]bool)
	for _, ring := range report.Rings {
		for _, gstin := range ring.GSTINs {
			members[gstin] = true
		}
	}
	exposed := decimal.Zero
	for gstin := range members {
		for _, inv := range snap.InvoicesByVendor(gstin) {
			exposed = exposed.Add(inv.TotalTax)
		}
	}
	summary.CircularITCExposed = exposed

	return summary
}
