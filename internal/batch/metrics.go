package batch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts executed batches and commands per database.
type Metrics struct {
	commands *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the batch collectors on reg.
//
// Returns nil when reg is nil; a nil *Metrics records nothing.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	return &Metrics{
		commands: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphorm_batch_commands_total",
				Help: "Total number of SQL commands executed by database and kind",
			},
			[]string{"database", "kind"},
		),
		failures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphorm_batch_failures_total",
				Help: "Total number of failed batches by database",
			},
			[]string{"database"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graphorm_batch_duration_seconds",
				Help:    "Batch execution latency by database",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"database"},
		),
	}
}

// Observe records one finished batch.
func (m *Metrics) Observe(database string, cmds []Command, start time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(database).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(database).Inc()
		return
	}
	for _, c := range cmds {
		m.commands.WithLabelValues(database, c.Kind.String()).Inc()
	}
}
