package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"

	modeOneShot = "oneshot"
	modeStream  = "stream"

	streamAgent = "agent"
	streamJob   = "job"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// executionsTotal counts agent executions, partitioned by mode
	// ("oneshot" or "stream") and outcome ("ok" or "error").
	executionsTotal *prometheus.CounterVec

	// executionDurationSeconds records agent execution wall-clock time.
	executionDurationSeconds *prometheus.HistogramVec

	// activeStreams is the number of SSE streams currently open, by kind.
	activeStreams *prometheus.GaugeVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrag",
			Subsystem: "agent",
			Name:      "executions_total",
			Help:      "Total number of agent executions, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),

		executionDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentrag",
			Subsystem: "agent",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of agent executions from receipt to the last byte.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),

		activeStreams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentrag",
			Subsystem: "sse",
			Name:      "active_streams",
			Help:      "Number of SSE streams currently open, partitioned by kind.",
		}, []string{"kind"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
