// Package metrics defines the Prometheus collectors exported by archivist.
//
// Labels are bounded enumerations (stage, outcome, tool, error kind); no
// recording titles or item IDs ever become label values.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts finished pipeline runs by outcome and error kind.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivist_runs_total",
		Help: "Total number of archive runs, by outcome (completed/failed/cancelled) and error kind.",
	}, []string{"outcome", "kind"})

	// StageSeconds observes how long each pipeline stage took.
	StageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archivist_stage_duration_seconds",
		Help:    "Wall-clock duration of pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	}, []string{"stage"})

	// DownloadBytes counts bytes received from the device.
	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivist_download_bytes_total",
		Help: "Total bytes received from the recording device.",
	})

	// DownloadRetries counts download attempts rejected by the device.
	DownloadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivist_download_retries_total",
		Help: "Total number of download attempts answered with a non-success status.",
	})

	// ToolRuns counts external tool invocations by tool and result.
	ToolRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivist_tool_runs_total",
		Help: "Total external tool invocations, by tool and result (ok/failed/cancelled/start_failed).",
	}, []string{"tool", "result"})

	// SlotWaiters tracks runs currently blocked on a shared slot.
	SlotWaiters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "archivist_slot_waiters",
		Help: "Runs currently waiting for a shared slot, by slot.",
	}, []string{"slot"})

	// ActiveRuns tracks pipeline runs in progress.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archivist_active_runs",
		Help: "Archive runs currently in progress.",
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
