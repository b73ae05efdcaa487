package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/agentrag-go/internal/agent"
	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/logging"
	"github.com/54b3r/agentrag-go/internal/store"
)

// handleAgentCreate handles POST /api/v1/agents.
func (s *Server) handleAgentCreate(w http.ResponseWriter, r *http.Request) {
	var in store.AgentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.deps.Agents.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("agent created", slog.String("agent_id", a.ID), slog.String("name", a.Name))
	writeJSON(w, r, http.StatusCreated, a)
}

// handleAgentList handles GET /api/v1/agents.
func (s *Server) handleAgentList(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Agents.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, agentList{Agents: agents, Total: len(agents)})
}

// handleAgentGet handles GET /api/v1/agents/{id}.
func (s *Server) handleAgentGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

// handleAgentUpdate handles PUT /api/v1/agents/{id} as a partial update.
func (s *Server) handleAgentUpdate(w http.ResponseWriter, r *http.Request) {
	var patch store.AgentPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.deps.Agents.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

// handleAgentDelete handles DELETE /api/v1/agents/{id}.
func (s *Server) handleAgentDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Agents.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Agent %s deleted successfully", id),
		Success: true,
	})
}

// handleAgentExecute handles POST /api/v1/agents/execute.
func (s *Server) handleAgentExecute(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExecute(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	res, err := s.deps.Executor.Execute(r.Context(), req.AgentID, req.Query)
	s.metrics.executionsTotal.WithLabelValues(modeOneShot, outcome(err)).Inc()
	s.metrics.executionDurationSeconds.WithLabelValues(modeOneShot).Observe(time.Since(start).Seconds())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleAgentExecuteStream handles POST /api/v1/agents/execute/stream. The
// request is validated and the agent resolved before the stream opens, so
// those failures get a status code; later failures arrive as an error event.
func (s *Server) handleAgentExecuteStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExecute(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.deps.Agents.Get(r.Context(), req.AgentID); err != nil {
		writeError(w, r, err)
		return
	}

	gauge := s.metrics.activeStreams.WithLabelValues(streamAgent)
	gauge.Inc()
	defer gauge.Dec()

	log := logging.FromContext(r.Context())
	start := time.Now()
	result := "ok"
	defer func() {
		s.metrics.executionsTotal.WithLabelValues(modeStream, result).Inc()
		s.metrics.executionDurationSeconds.WithLabelValues(modeStream).Observe(time.Since(start).Seconds())
	}()

	sink := startSSE(w)
	for ev := range s.deps.Executor.ExecuteStream(r.Context(), req.AgentID, req.Query) {
		if ev.Type == agent.EventError {
			result = "error"
		}
		if err := sink.Data(ev); err != nil {
			log.Debug("agent stream: client went away", slog.Any("error", err))
			result = "aborted"
			return
		}
	}
}

func decodeExecute(w http.ResponseWriter, r *http.Request) (executeRequest, error) {
	const op = "agents.execute"
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return req, apperr.Validation(op, "agent_id is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return req, apperr.Validation(op, "query is required")
	}
	return req, nil
}
