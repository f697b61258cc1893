// Package httpx provides the HTTP API for submitting documents and polling analysis results.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/domain/model"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/storage"
)

const (
	// multipartMemory is how much of a multipart body is kept in memory before
	// spilling to temporary files.
	multipartMemory = 8 << 20
	// multipartOverhead allows for boundaries and the query field on top of the file.
	multipartOverhead = 1 << 20
)

// AnalysisHandlers serves the submission and query endpoints.
type AnalysisHandlers struct {
	Svc            *service.AnalysisService
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Submit handles POST /analyze with a multipart "file" and optional "query".
func (h *AnalysisHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "Expected a multipart form with a file field")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger().WarnContext(r.Context(), "failed to remove multipart temp files", "error", err)
		}
	}()

	file, _, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "A file field is required")
		return
	}
	defer file.Close()

	res, err := h.Svc.Submit(r.Context(), service.SubmitRequest{
		Document: file,
		Query:    r.FormValue("query"),
	})
	if err != nil {
		// The form fits the body limit but the file alone can still exceed it.
		if errors.Is(err, storage.ErrDocumentTooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
			return
		}
		h.logger().ErrorContext(r.Context(), "submit failed", "error", err)
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, res)
}

// Results handles GET /results/{task_id}. A FAILURE job answers 500 with the
// error text as its result.
func (h *AnalysisHandlers) Results(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Status(r.Context(), r.PathValue("task_id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	code := http.StatusOK
	if res.Status == model.JobStatusFailure {
		code = http.StatusInternalServerError
	}
	WriteJSON(w, code, res)
}

func (h *AnalysisHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
