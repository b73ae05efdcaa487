package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/document"
	"github.com/54b3r/agentrag-go/internal/logging"
)

// multipartMemory is the in-memory part of a parsed upload; the rest spills
// to temporary files.
const multipartMemory = 8 << 20

// handleDocumentUpload handles POST /api/v1/documents/upload with a
// multipart "file" field.
func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, document.MaxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, apperr.Validation("documents.upload", "file exceeds the %d MiB limit", document.MaxFileSize>>20))
			return
		}
		writeError(w, r, apperr.Validation("documents.upload", "expected multipart form with a file field: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.Validation("documents.upload", "missing file field"))
		return
	}
	defer file.Close()

	doc, err := s.deps.Documents.Upload(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("document uploaded",
		slog.String("filename", doc.Filename),
		slog.Int64("size_bytes", doc.SizeBytes),
	)
	writeJSON(w, r, http.StatusCreated, doc)
}

// handleDocumentList handles GET /api/v1/documents.
func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, documentList{Documents: docs, Total: len(docs)})
}

// handleDocumentDelete handles DELETE /api/v1/documents/{filename}.
func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if err := s.deps.Documents.Delete(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Document %s deleted successfully", name),
		Success: true,
	})
}
