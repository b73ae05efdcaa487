package server

import (
	"log/slog"
	"net/http"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/logging"
)

// handleJobGet handles GET /api/v1/jobs/{id}.
func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, ok := s.deps.Jobs.Get(id)
	if !ok {
		writeError(w, r, apperr.NotFound("jobs.get", "Job %s not found", id))
		return
	}
	writeJSON(w, r, http.StatusOK, j)
}

// handleJobStream handles GET /api/v1/jobs/{id}/stream. Unknown ids are
// reported inside the stream, not with a status code.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	gauge := s.metrics.activeStreams.WithLabelValues(streamJob)
	gauge.Inc()
	defer gauge.Dec()

	sink := startSSE(w)
	if err := s.streamer.Stream(r.Context(), r.PathValue("id"), sink); err != nil {
		logging.FromContext(r.Context()).Warn("job stream ended with error", slog.Any("error", err))
	}
}
