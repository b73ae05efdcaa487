package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// registryMetrics holds the Prometheus metrics owned by a Registry.
type registryMetrics struct {
	// created counts jobs created, partitioned by job type.
	created *prometheus.CounterVec
	// finished counts jobs reaching a terminal state, by type and status.
	finished *prometheus.CounterVec
	// dropped counts snapshots discarded because a subscriber queue was full.
	dropped prometheus.Counter
	// subscriptions is the number of live subscriptions across all jobs.
	subscriptions prometheus.Gauge
}

// newRegistryMetrics registers the job metrics against reg.
func newRegistryMetrics(reg prometheus.Registerer) *registryMetrics {
	factory := promauto.With(reg)

	return &registryMetrics{
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrag",
			Subsystem: "jobs",
			Name:      "created_total",
			Help:      "Total number of jobs created, partitioned by job type.",
		}, []string{"type"}),

		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrag",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total number of jobs that reached a terminal state, partitioned by job type and status.",
		}, []string{"type", "status"}),

		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agentrag",
			Subsystem: "jobs",
			Name:      "notifications_dropped_total",
			Help:      "Job snapshots dropped because a subscriber queue was full.",
		}),

		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentrag",
			Subsystem: "jobs",
			Name:      "subscriptions",
			Help:      "Number of job subscriptions currently registered.",
		}),
	}
}
