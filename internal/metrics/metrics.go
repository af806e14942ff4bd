// Package metrics exposes Prometheus instrumentation for collector runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logicaldelete"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	affected *prometheus.CounterVec
	runs     *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		affected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_affected_total",
			Help:      "Records whose state was changed by a collector run.",
		}, []string{"model", "action"}),
		runs: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of the apply step of collector runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Collector runs rolled back because of an error.",
		}, []string{"action"}),
	}
}

func (m *Metrics) Affected(model, action string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.affected.WithLabelValues(model, action).Add(float64(n))
}

func (m *Metrics) Observe(action string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(action).Observe(time.Since(started).Seconds())
	if err != nil {
		m.failures.WithLabelValues(action).Inc()
	}
}
