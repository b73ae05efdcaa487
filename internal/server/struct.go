package server

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/agentrag-go/internal/agent"
	"github.com/54b3r/agentrag-go/internal/document"
	"github.com/54b3r/agentrag-go/internal/index"
	"github.com/54b3r/agentrag-go/internal/job"
	"github.com/54b3r/agentrag-go/internal/jobstream"
	"github.com/54b3r/agentrag-go/internal/store"
	"github.com/54b3r/agentrag-go/internal/tasks"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing a non-streaming
	// response. SSE handlers clear the deadline for their own connection.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the execute
	// and upload endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// Stream paces GET /api/v1/jobs/{id}/stream.
	Stream jobstream.Config
	// Version is reported by GET /health.
	Version string
	// MetricsRegistry is where server metrics are registered. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Deps are the components the handlers call.
type Deps struct {
	Documents documentStore
	Indexes   indexService
	Agents    store.AgentStore
	Executor  executor
	Jobs      jobSource
	Tasks     taskSubmitter
}

// documentStore is satisfied by *document.FSStore.
type documentStore interface {
	Upload(ctx context.Context, filename string, r io.Reader) (document.Document, error)
	List(ctx context.Context) ([]document.Document, error)
	Delete(ctx context.Context, filename string) error
}

// indexService is satisfied by *index.Service.
type indexService interface {
	List(ctx context.Context) ([]index.Info, error)
	Get(ctx context.Context, name string) (index.Info, error)
	Create(ctx context.Context, req index.CreateRequest) (index.Info, error)
	Delete(ctx context.Context, name string) error
	UpdateWithDocuments(ctx context.Context, name string, filenames []string, progress index.ProgressFunc) (index.Info, error)
	UpdateFromStore(ctx context.Context, name string, progress index.ProgressFunc) (index.Info, error)
}

// executor is satisfied by *agent.Executor.
type executor interface {
	Execute(ctx context.Context, agentID, query string) (*agent.Result, error)
	ExecuteStream(ctx context.Context, agentID, query string) iter.Seq[agent.Event]
}

// jobSource is satisfied by *job.Registry.
type jobSource interface {
	jobstream.Source
	Get(id string) (job.Job, bool)
}

// taskSubmitter is satisfied by *tasks.Runner.
type taskSubmitter interface {
	Submit(jobType string, params map[string]any, task tasks.Task) (string, error)
}

// Server is the HTTP server exposing documents, indexes, jobs and agents.
type Server struct {
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped mux, exposed to tests via Handler.
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// streamer adapts job subscriptions to SSE.
	streamer *jobstream.Streamer
	// metrics holds the Prometheus metrics owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Detail string `json:"detail"`
}

// messageResponse acknowledges deletes.
type messageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// documentList is the JSON response for GET /api/v1/documents.
type documentList struct {
	Documents []document.Document `json:"documents"`
	Total     int                 `json:"total"`
}

// indexList is the JSON response for GET /api/v1/indexes.
type indexList struct {
	Indexes []index.Info `json:"indexes"`
	Total   int          `json:"total"`
}

// agentList is the JSON response for GET /api/v1/agents.
type agentList struct {
	Agents []store.Agent `json:"agents"`
	Total  int           `json:"total"`
}

// createIndexRequest is the JSON body for POST /api/v1/indexes.
type createIndexRequest struct {
	IndexName string `json:"index_name"`
	Dimension *int   `json:"dimension,omitempty"`
	Metric    string `json:"metric,omitempty"`
}

// updateIndexRequest is the JSON body for POST /api/v1/indexes/{name}/update.
type updateIndexRequest struct {
	DocumentPaths []string `json:"document_paths"`
}

// jobAccepted is the 202 response for async index builds.
type jobAccepted struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// executeRequest is the JSON body for both execute endpoints.
type executeRequest struct {
	AgentID string `json:"agent_id"`
	Query   string `json:"query"`
}
