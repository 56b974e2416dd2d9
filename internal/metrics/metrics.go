// Package metrics provides Prometheus instrumentation for the moderation
// engine. It exposes counters for ingest and dispatch throughput, a gauge
// for the open backlog, and histograms for bulk-action latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsIngested counts normalized items persisted, labeled by kind:
	// "flag" or "report".
	ItemsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_items_ingested_total",
		Help: "Total number of normalized moderation items persisted",
	}, []string{"kind"})

	// ActionsTotal counts dispatch actions, labeled by action name and
	// outcome: "ok" or "error".
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_actions_total",
		Help: "Total number of control-surface actions dispatched",
	}, []string{"action", "outcome"})

	// BulkLatency records end-to-end bulk action latency in seconds.
	BulkLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderation_bulk_latency_seconds",
		Help:    "Bulk action latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// BulkSubjectsUpdated counts distinct subjects updated by bulk actions.
	BulkSubjectsUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_bulk_subjects_updated_total",
		Help: "Total number of distinct subjects updated by bulk actions",
	})

	// OpenBacklog tracks the number of items in a non-terminal state as of
	// the last statistics read.
	OpenBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "moderation_open_backlog",
		Help: "Open (pending or in_review) moderation items at last read",
	})

	// ScanRuns counts report rescan job executions, labeled by result:
	// "completed" or "failed".
	ScanRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_scan_runs_total",
		Help: "Total number of report rescan job runs",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		ItemsIngested,
		ActionsTotal,
		BulkLatency,
		BulkSubjectsUpdated,
		OpenBacklog,
		ScanRuns,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
