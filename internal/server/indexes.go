package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/index"
)

// Job types for background index builds.
const (
	jobIndexUpdate          = "index_update"
	jobIndexUpdateFromStore = "index_update_from_directory"
)

// handleIndexList handles GET /api/v1/indexes.
func (s *Server) handleIndexList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.deps.Indexes.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, indexList{Indexes: infos, Total: len(infos)})
}

// handleIndexGet handles GET /api/v1/indexes/{name}.
func (s *Server) handleIndexGet(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Indexes.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}

// handleIndexCreate handles POST /api/v1/indexes.
func (s *Server) handleIndexCreate(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.deps.Indexes.Create(r.Context(), index.CreateRequest{
		Name:      req.IndexName,
		Dimension: req.Dimension,
		Metric:    req.Metric,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, info)
}

// handleIndexDelete handles DELETE /api/v1/indexes/{name}.
func (s *Server) handleIndexDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.deps.Indexes.Delete(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Index %s deleted successfully", name),
		Success: true,
	})
}

// handleIndexUpdate handles POST /api/v1/indexes/{name}/update. The build
// runs inside the request.
func (s *Server) handleIndexUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req updateIndexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.deps.Indexes.UpdateWithDocuments(r.Context(), name, req.DocumentPaths, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}

// handleIndexUpdateFromStore handles
// POST /api/v1/indexes/{name}/update-from-directory.
func (s *Server) handleIndexUpdateFromStore(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Indexes.UpdateFromStore(r.Context(), r.PathValue("name"), nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}

// handleIndexUpdateAsync handles POST /api/v1/indexes/{name}/update/async.
func (s *Server) handleIndexUpdateAsync(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req updateIndexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := index.ValidateName(name); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.DocumentPaths) == 0 {
		writeError(w, r, apperr.Validation("indexes.update_async", "document_paths must not be empty"))
		return
	}

	paths := req.DocumentPaths
	params := map[string]any{"index_name": name, "document_paths": paths}
	s.submitBuild(w, r, jobIndexUpdate, params, func(ctx context.Context, progress index.ProgressFunc) (index.Info, error) {
		return s.deps.Indexes.UpdateWithDocuments(ctx, name, paths, progress)
	})
}

// handleIndexUpdateFromStoreAsync handles
// POST /api/v1/indexes/{name}/update-from-directory/async.
func (s *Server) handleIndexUpdateFromStoreAsync(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := index.ValidateName(name); err != nil {
		writeError(w, r, err)
		return
	}
	params := map[string]any{"index_name": name}
	s.submitBuild(w, r, jobIndexUpdateFromStore, params, func(ctx context.Context, progress index.ProgressFunc) (index.Info, error) {
		return s.deps.Indexes.UpdateFromStore(ctx, name, progress)
	})
}

// submitBuild queues build on the task runner and answers 202 with the job
// id. The job result is the resulting index description.
func (s *Server) submitBuild(w http.ResponseWriter, r *http.Request, jobType string, params map[string]any,
	build func(context.Context, index.ProgressFunc) (index.Info, error)) {
	id, err := s.deps.Tasks.Submit(jobType, params, func(ctx context.Context, report func(int)) (map[string]any, error) {
		info, err := build(ctx, report)
		if err != nil {
			return nil, err
		}
		return infoResult(info), nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, jobAccepted{
		JobID:   id,
		Status:  "accepted",
		Message: fmt.Sprintf("Index update started. Track progress at /api/v1/jobs/%s", id),
	})
}

// infoResult renders info as an opaque job result.
func infoResult(info index.Info) map[string]any {
	return map[string]any{
		"name":               info.Name,
		"dimension":          info.Dimension,
		"metric":             info.Metric,
		"total_vector_count": info.TotalVectorCount,
		"status":             info.Status,
	}
}
