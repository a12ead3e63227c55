package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/models"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/service"
)

// reportArchiver is implemented by backends that persist run reports.
type reportArchiver interface {
	SaveRunReport(ctx context.Context, report *models.ReconciliationReport) error
}

// APIHandler serves reconciliation results over HTTP. Read endpoints
// serve the most recent completed run; POST /reconcile produces a new one.
type APIHandler struct {
	engine   *service.ReconciliationService
	audit    *service.AuditReporter
	archiver reportArchiver
	logger   *zap.Logger

	mu     sync.RWMutex
	latest *models.ReconciliationReport
}

func NewAPIHandler(engine *service.ReconciliationService, archiver reportArchiver, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		engine:   engine,
		audit:    service.NewAuditReporter(),
		archiver: archiver,
		logger:   logger,
	}
}

func (h *APIHandler) report() (*models.ReconciliationReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.latest != nil
}

type reconcileRequest struct {
	Period string `json:"period"`
}

// Reconcile runs the engine and publishes the report to the read endpoints.
func (h *APIHandler) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	report, err := h.engine.Run(c.Request.Context(), req.Period)
	if err != nil {
		h.logger.Error("reconciliation run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation run failed"})
		return
	}

	if h.archiver != nil {
		if err := h.archiver.SaveRunReport(c.Request.Context(), report); err != nil {
			h.logger.Error("failed to archive run report",
				zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	h.mu.Lock()
	h.latest = report
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"run_id":        report.RunID,
		"snapshot":      report.SnapshotVersion,
		"period":        report.Period,
		"duration_ms":   report.DurationMS,
		"scored":        len(report.Results),
		"unprocessable": len(report.Unprocessable),
		"summary":       report.Summary,
	})
}

// ListInvoices returns scored invoice results, filterable by status, risk
// category and period.
func (h *APIHandler) ListInvoices(c *gin.Context) {
	report, ok := h.report()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no reconciliation run completed yet"})
		return
	}

	status := c.Query("status")
	category := c.Query("risk_category")
	period := c.Query("period")

	out := make([]*models.InvoiceResult, 0, len(report.Results))
	for _, res := range report.Results {
		if status != "" && string(res.Status) != status {
			continue
		}
		if category != "" && string(res.RiskCategory) != category {
			continue
		}
		if period != "" && res.Period != period {
			continue
		}
		out = append(out, res)
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":   report.RunID,
		"count":    len(out),
		"invoices": out,
	})
}

// GetInvoice returns one invoice's full hop trace plus its audit report.
func (h *APIHandler) GetInvoice(c *gin.Context) {
	report, ok := h.report()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no reconciliation run completed yet"})
		return
	}

	id := c.Param("id")
	for _, res := range report.Results {
		if res.InvoiceID != id {
			continue
		}
		vendorScore := 1.0
		for _, rollup := range report.Rollups {
			if rollup.VendorGSTIN == res.VendorGSTIN {
				vendorScore = rollup.ComplianceScore
				break
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"result": res,
			"audit":  h.audit.Report(res, vendorScore),
		})
		return
	}
	for _, se := range report.Unprocessable {
		if se.InvoiceID == id {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"invoice_id": se.InvoiceID,
				"error":      se.Reason,
			})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found in latest run"})
}

// ListVendors returns the per-vendor rollups, worst compliance first.
func (h *APIHandler) ListVendors(c *gin.Context) {
	report, ok := h.report()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no reconciliation run completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":  report.RunID,
		"count":   len(report.Rollups),
		"vendors": report.Rollups,
	})
}

// GetVendor returns one vendor's rollup and its invoice results.
func (h *APIHandler) GetVendor(c *gin.Context) {
	report, ok := h.report()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no reconciliation run completed yet"})
		return
	}

	gstin := c.Param("gstin")
	for _, rollup := range report.Rollups {
		if rollup.VendorGSTIN != gstin {
			continue
		}
		var invoices []*models.InvoiceResult
		for _, res := range report.Results {
			if res.VendorGSTIN == gstin {
				invoices = append(invoices, res)
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"vendor":   rollup,
			"invoices": invoices,
		})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "vendor not found in latest run"})
}

// FraudSummary aggregates both fraud passes.
func (h *APIHandler) FraudSummary(c *gin.Context) {
	report, ok := h.report()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no reconciliation run completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":               report.RunID,
		"circular_rings":       len(report.Rings),
		"suspicious_hubs":      len(report.Hubs),
		"circular_itc_exposed": report.Summary.CircularITCExposed,
		"rings":                report.Rings,
		"hubs":                 report.Hubs,
	})
}

// CircularTrading returns detected rings, highest value first.
func (h *APIHandler) CircularTrading(c *gin.Context) {
	report, ok := h.report()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no reconciliation run completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id": report.RunID,
		"count":  len(report.Rings),
		"rings":  report.Rings,
	})
}

// SuspiciousClusters returns high-degree hub vendors.
func (h *APIHandler) SuspiciousClusters(c *gin.Context) {
	report, ok := h.report()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no reconciliation run completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id": report.RunID,
		"count":  len(report.Hubs),
		"hubs":   report.Hubs,
	})
}

// DashboardSummary returns the run-level KPIs.
func (h *APIHandler) DashboardSummary(c *gin.Context) {
	report, ok := h.report()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no reconciliation run completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":      report.RunID,
		"snapshot":    report.SnapshotVersion,
		"started_at":  report.StartedAt,
		"duration_ms": report.DurationMS,
		"summary":     report.Summary,
	})
}
