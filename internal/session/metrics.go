package session

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *metrics
	metricsOnce   sync.Once
)

// metrics are the Prometheus collectors of the session handler, registered
// once on the default registry and scraped from /metrics.
type metrics struct {
	turns        *prometheus.CounterVec
	turnDuration prometheus.Histogram
	lockWait     prometheus.Histogram
	instructions *prometheus.CounterVec
	finished     *prometheus.CounterVec
	created      prometheus.Counter
}

func newMetrics() *metrics {
	metricsOnce.Do(func() {
		globalMetrics = &metrics{
			turns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "fixdesk",
					Subsystem: "session",
					Name:      "turns_total",
					Help:      "Session turns by operation and result",
				},
				[]string{"operation", "result"},
			),
			turnDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "fixdesk",
					Subsystem: "session",
					Name:      "turn_duration_seconds",
					Help:      "Duration of a session turn including AI calls and the commit",
					Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
				},
			),
			lockWait: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "fixdesk",
					Subsystem: "session",
					Name:      "lock_wait_seconds",
					Help:      "Time a turn waited behind another turn of the same session",
					Buckets:   prometheus.DefBuckets,
				},
			),
			instructions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "fixdesk",
					Subsystem: "session",
					Name:      "instructions_total",
					Help:      "Instructions executed by kind",
				},
				[]string{"kind"},
			),
			finished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "fixdesk",
					Subsystem: "session",
					Name:      "completed_total",
					Help:      "Completed sessions by how they ended (resolved, escalated)",
				},
				[]string{"outcome"},
			),
			created: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "fixdesk",
					Subsystem: "session",
					Name:      "created_total",
					Help:      "Sessions created",
				},
			),
		}
	})
	return globalMetrics
}
