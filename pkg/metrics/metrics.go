// Package metrics provides Prometheus instrumentation for metadata
// accessor operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the collectors for metadata operations. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	RecordsRead       prometheus.Counter
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default registry, or a
// fresh prometheus.NewRegistry() to keep instances apart.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitymeta_operations_total",
				Help: "Total number of metadata operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "entitymeta_operation_duration_seconds",
				Help:    "Duration of metadata operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RecordsRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "entitymeta_records_read_total",
				Help: "Total number of metadata records returned by reads",
			},
		),
	}
}

// Observe records one completed operation.
func (m *Metrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddRecordsRead counts records returned to a caller.
func (m *Metrics) AddRecordsRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsRead.Add(float64(n))
}
