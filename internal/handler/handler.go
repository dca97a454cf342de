// Package handler exposes the marking service over HTTP as a JSON API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/marker/internal/progress"
	"github.com/pavelanni/marker/internal/service"
)

// maxUploadBytes caps guide and answer-sheet uploads.
const maxUploadBytes = 10 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc *service.Service
}

// New creates a new Handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/guides", h.handleUploadGuide)
		r.Get("/guides", h.handleListGuides)
		r.Get("/guides/{guideID}", h.handleGetGuide)
		r.Post("/guides/{guideID}/mark", h.handleMark)
		r.Get("/reports", h.handleListReports)
		r.Get("/reports/{reportID}", h.handleGetReport)
		r.Get("/jobs/{jobID}/events", h.handleJobEvents)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if u, ok := h.svc.Usage(); ok {
		resp["usage"] = u
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUploadGuide(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUpload(w, r)
	if !ok {
		return
	}

	jobID := uuid.NewString()
	h.svc.Tracker().Create(jobID, 0)

	id, guide, cached, err := h.svc.UploadGuide(r.Context(), data, filename, jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if cached {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"guide_id":    id,
		"title":       guide.Title,
		"questions":   len(guide.Questions),
		"total_marks": guide.TotalMarks,
		"cached":      cached,
	})
}

func (h *Handler) handleListGuides(w http.ResponseWriter, r *http.Request) {
	guides, err := h.svc.ListGuides()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guides": guides})
}

func (h *Handler) handleGetGuide(w http.ResponseWriter, r *http.Request) {
	guide, err := h.svc.GetGuide(chi.URLParam(r, "guideID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guide)
}

func (h *Handler) handleMark(w http.ResponseWriter, r *http.Request) {
	guideID := chi.URLParam(r, "guideID")
	data, _, ok := readUpload(w, r)
	if !ok {
		return
	}
	studentID := r.FormValue("student_id")
	if studentID == "" {
		writeError(w, http.StatusBadRequest, service.CodeInvalidInput, "missing student_id form field")
		return
	}

	jobID := uuid.NewString()
	h.svc.Tracker().Create(jobID, 5)

	if r.URL.Query().Get("async") == "1" {
		// The request context dies with the response; the background run
		// gets its own.
		ctx := context.WithoutCancel(r.Context())
		go func() {
			// Cache hits complete the job inside the service.
			if _, _, _, err := h.svc.MarkAnswerSheet(ctx, guideID, studentID, data, jobID); err != nil {
				h.svc.Tracker().Fail(jobID, err)
				slog.Error("background marking failed", "job", jobID, "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
		return
	}

	id, report, cached, err := h.svc.MarkAnswerSheet(r.Context(), guideID, studentID, data, jobID)
	if err != nil {
		h.svc.Tracker().Fail(jobID, err)
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if cached {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"report_id": id,
		"job_id":    jobID,
		"cached":    cached,
		"report":    report,
	})
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.ListReports()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetReport(chi.URLParam(r, "reportID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleJobEvents streams progress updates for one job as server-sent
// events. The stream closes when the job completes or fails.
func (h *Handler) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	events, ok := h.svc.Tracker().Subscribe(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, service.CodeNotFound, fmt.Sprintf("job %q not found", jobID))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, ev progress.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
	return err
}

// readUpload pulls the uploaded document from a multipart "file" field,
// falling back to the raw request body for plain clients.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err == nil {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, service.CodeInvalidInput, "missing file field")
			return nil, "", false
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, service.CodeUploadFailed, "could not read upload")
			return nil, "", false
		}
		return data, header.Filename, true
	}

	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, service.CodeInvalidInput, "empty request body")
		return nil, "", false
	}
	return data, "upload", true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		writeError(w, http.StatusInternalServerError, service.CodeProcessing, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch svcErr.Code {
	case service.CodeNotFound:
		status = http.StatusNotFound
	case service.CodeInvalidInput:
		status = http.StatusBadRequest
	case service.CodeUploadFailed, service.CodeProcessing:
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, svcErr.Code, svcErr.Message)
}
