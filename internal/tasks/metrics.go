package tasks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type runnerMetrics struct {
	// queueDepth is the number of accepted tasks waiting for a worker.
	queueDepth prometheus.Gauge
	// duration observes task run time by job type and outcome.
	duration *prometheus.HistogramVec
	// rejected counts submissions refused because the queue was full.
	rejected *prometheus.CounterVec
}

func newRunnerMetrics(reg prometheus.Registerer) *runnerMetrics {
	factory := promauto.With(reg)

	return &runnerMetrics{
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentrag",
			Subsystem: "tasks",
			Name:      "queue_depth",
			Help:      "Number of background tasks waiting for a worker.",
		}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentrag",
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Background task run time in seconds, partitioned by job type and outcome.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"type", "outcome"}),

		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrag",
			Subsystem: "tasks",
			Name:      "rejected_total",
			Help:      "Background tasks rejected because the queue was full.",
		}, []string{"type"}),
	}
}
