// Package boxmetrics holds the Prometheus instrumentation for box
// operations, trimmed to the storage-layer concerns a boxctl diagnostics
// server exposes at /metrics.
package boxmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds every Prometheus metric a box's storage layer reports.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	liveKeysTotal *prometheus.GaugeVec
	dataSizeBytes *prometheus.GaugeVec

	compactionsTotal     *prometheus.CounterVec
	compactionBytesFreed *prometheus.CounterVec

	watchersInFlight *prometheus.GaugeVec
}

// NewMetrics creates and registers every box metric against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		operationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boxdb_operations_total",
				Help: "Total number of box operations.",
			},
			[]string{"box", "operation", "status"},
		),
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "boxdb_operation_duration_seconds",
				Help:    "Box operation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"box", "operation"},
		),
		liveKeysTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "boxdb_live_keys_total",
				Help: "Number of live keys currently held by a box.",
			},
			[]string{"box"},
		),
		dataSizeBytes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "boxdb_data_size_bytes",
				Help: "Size of a box's log file on disk, in bytes.",
			},
			[]string{"box"},
		),
		compactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boxdb_compactions_total",
				Help: "Total number of compactions run against a box.",
			},
			[]string{"box"},
		),
		compactionBytesFreed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boxdb_compaction_bytes_freed_total",
				Help: "Total bytes reclaimed by compaction.",
			},
			[]string{"box"},
		),
		watchersInFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "boxdb_watchers_in_flight",
				Help: "Number of active change-notifier subscriptions on a box.",
			},
			[]string{"box"},
		),
	}
}

// RecordOperation records one Get/Put/Delete/Compact call against box.
func (m *Metrics) RecordOperation(box, operation string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.operationsTotal.WithLabelValues(box, operation, status).Inc()
	m.operationDuration.WithLabelValues(box, operation).Observe(duration.Seconds())
}

// UpdateBoxStats refreshes the live-key and data-size gauges for box.
func (m *Metrics) UpdateBoxStats(box string, liveKeys int, dataSizeBytes int64) {
	m.liveKeysTotal.WithLabelValues(box).Set(float64(liveKeys))
	m.dataSizeBytes.WithLabelValues(box).Set(float64(dataSizeBytes))
}

// RecordCompaction records one compaction run reclaiming bytesFreed.
func (m *Metrics) RecordCompaction(box string, bytesFreed int64) {
	m.compactionsTotal.WithLabelValues(box).Inc()
	if bytesFreed > 0 {
		m.compactionBytesFreed.WithLabelValues(box).Add(float64(bytesFreed))
	}
}

// SetWatchersInFlight reports the current subscriber count for box.
func (m *Metrics) SetWatchersInFlight(box string, count int) {
	m.watchersInFlight.WithLabelValues(box).Set(float64(count))
}

// Timer returns a function that, when called, records the elapsed time
// as one operation's duration and its outcome — a thin helper so callers
// can `stop := metrics.Timer(box, "put")` and later call `stop(err == nil)`.
func (m *Metrics) Timer(box, operation string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		m.RecordOperation(box, operation, success, time.Since(start))
	}
}
