// Package server implements the HTTP API: document upload, vector index
// management with synchronous and background builds, job polling and SSE
// job streams, and agent CRUD with one-shot and SSE execution.
// The server is started by the `agentrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/jobstream"
	"github.com/54b3r/agentrag-go/internal/logging"
)

// maxJSONBody caps request bodies on JSON endpoints.
const maxJSONBody = 1 << 20

// New constructs a Server from deps and cfg.
func New(deps Deps, cfg *Config) (*Server, error) {
	switch {
	case deps.Documents == nil:
		return nil, errors.New("server: document store must not be nil")
	case deps.Indexes == nil:
		return nil, errors.New("server: index service must not be nil")
	case deps.Agents == nil:
		return nil, errors.New("server: agent store must not be nil")
	case deps.Executor == nil:
		return nil, errors.New("server: executor must not be nil")
	case deps.Jobs == nil:
		return nil, errors.New("server: job registry must not be nil")
	case deps.Tasks == nil:
		return nil, errors.New("server: task runner must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	log := logging.OrDefault(cfg.Logger)
	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)

	s := &Server{
		deps:     deps,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		streamer: jobstream.New(deps.Jobs, &cfg.Stream),
		metrics:  newServerMetrics(cfg.MetricsRegistry),
		stopRL:   stopRL,
	}

	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(name, h))
	}
	limited := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, rl.middleware(s.instrument(name, h)))
	}

	route("GET /health", "health", s.handleHealth)
	route("GET /api/ready", "ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	limited("POST /api/v1/documents/upload", "documents_upload", s.handleDocumentUpload)
	route("GET /api/v1/documents", "documents_list", s.handleDocumentList)
	route("DELETE /api/v1/documents/{filename}", "documents_delete", s.handleDocumentDelete)

	route("GET /api/v1/indexes", "indexes_list", s.handleIndexList)
	route("POST /api/v1/indexes", "indexes_create", s.handleIndexCreate)
	route("GET /api/v1/indexes/{name}", "indexes_get", s.handleIndexGet)
	route("DELETE /api/v1/indexes/{name}", "indexes_delete", s.handleIndexDelete)
	route("POST /api/v1/indexes/{name}/update", "indexes_update", s.handleIndexUpdate)
	route("POST /api/v1/indexes/{name}/update-from-directory", "indexes_update_all", s.handleIndexUpdateFromStore)
	route("POST /api/v1/indexes/{name}/update/async", "indexes_update_async", s.handleIndexUpdateAsync)
	route("POST /api/v1/indexes/{name}/update-from-directory/async", "indexes_update_all_async", s.handleIndexUpdateFromStoreAsync)

	route("GET /api/v1/jobs/{id}", "jobs_get", s.handleJobGet)
	route("GET /api/v1/jobs/{id}/stream", "jobs_stream", s.handleJobStream)

	route("POST /api/v1/agents", "agents_create", s.handleAgentCreate)
	route("GET /api/v1/agents", "agents_list", s.handleAgentList)
	route("GET /api/v1/agents/{id}", "agents_get", s.handleAgentGet)
	route("PUT /api/v1/agents/{id}", "agents_update", s.handleAgentUpdate)
	route("DELETE /api/v1/agents/{id}", "agents_delete", s.handleAgentDelete)
	limited("POST /api/v1/agents/execute", "agents_execute", s.handleAgentExecute)
	limited("POST /api/v1/agents/execute/stream", "agents_execute_stream", s.handleAgentExecuteStream)

	s.handler = requestLogger(log, cors(mux))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	defer s.stopRL()

	go func() {
		s.log.Info("agentrag server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError maps err to a status code and a {"detail": ...} body. Server
// faults are logged at error level; client faults at warn.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, r, status, errorResponse{Detail: apperr.Message(err)})
}

// decodeJSON reads a JSON body into v, reporting malformed input as a
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("server.decode", "invalid request body: %v", err)
	}
	return nil
}
