// Prometheus instrumentation for the reconciliation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts reconciliation runs by outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gst_reconciliation_runs_total",
		Help: "Reconciliation runs by outcome.",
	}, []string{"status"})

	// InvoicesProcessed counts invoices validated across all runs.
	InvoicesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gst_invoices_processed_total",
		Help: "Invoices validated across all reconciliation runs.",
	})

	// StructuralErrors counts invoices rejected as unprocessable.
	StructuralErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gst_structural_errors_total",
		Help: "Invoices excluded from scoring due to data-integrity errors.",
	})

	// RunDuration observes wall-clock run time.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gst_reconciliation_run_seconds",
		Help:    "Wall-clock duration of reconciliation runs.",
		Buckets: prometheus.DefBuckets,
	})

	// RingsDetected reports rings found in the most recent run.
	RingsDetected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gst_circular_trading_rings",
		Help: "Circular trading rings detected in the most recent run.",
	})
)
