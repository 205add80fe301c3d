// Package handlers provides HTTP handlers for the docworker API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/ingest"
	"github.com/Dropicx/docworker/internal/observability"
	"github.com/Dropicx/docworker/internal/pipeline"
	"github.com/Dropicx/docworker/internal/quality"
	"github.com/Dropicx/docworker/internal/storage"
)

// DocumentHandler handles document submission and status queries.
type DocumentHandler struct {
	logger         *observability.Logger
	repos          *storage.Repositories
	assessor       *quality.Assessor
	submit         func(pipeline.RunRequest)
	maxUploadBytes int64
}

// NewDocumentHandler creates a document handler. submit hands an admitted
// document to the worker pool.
func NewDocumentHandler(
	logger *observability.Logger,
	repos *storage.Repositories,
	assessor *quality.Assessor,
	submit func(pipeline.RunRequest),
	maxUploadBytes int64,
) *DocumentHandler {
	return &DocumentHandler{
		logger:         logger,
		repos:          repos,
		assessor:       assessor,
		submit:         submit,
		maxUploadBytes: maxUploadBytes,
	}
}

// QualityRejectionDTO is the remediation payload for a rejected upload.
type QualityRejectionDTO struct {
	DocumentID      string   `json:"document_id"`
	ConfidenceScore float64  `json:"confidence_score"`
	MinThreshold    float64  `json:"min_threshold"`
	Band            string   `json:"band"`
	Issues          []string `json:"issues"`
	Suggestions     []string `json:"suggestions"`
}

// UploadResponseDTO is the accepted-upload response.
type UploadResponseDTO struct {
	DocumentID   string  `json:"document_id"`
	Status       string  `json:"status"`
	QualityScore float64 `json:"quality_score"`
	Band         string  `json:"band"`
	Pages        int     `json:"pages"`
}

// DocumentDTO is the document status response.
type DocumentDTO struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	Status        string    `json:"status"`
	DocumentType  string    `json:"document_type,omitempty"`
	QualityScore  *float64  `json:"quality_score,omitempty"`
	FailureStep   string    `json:"failure_step,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ArtifactDTO is one step output.
type ArtifactDTO struct {
	Step      string    `json:"step"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// InteractionLogDTO is one audit trail entry.
type InteractionLogDTO struct {
	Step         string    `json:"step"`
	Model        string    `json:"model"`
	Input        string    `json:"input"`
	Output       string    `json:"output"`
	DurationMs   int64     `json:"duration_ms"`
	Confidence   *float64  `json:"confidence,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Upload accepts a multipart document, runs the quality gate, and
// schedules the pipeline for admitted files. Rejections return 422 with
// the remediation payload.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	adm, err := ingest.Prepare(r.Context(), data, h.assessor)
	if err != nil {
		if domain.TypeOf(err) == domain.ErrorTypeDecoding {
			writeError(w, http.StatusBadRequest, "unreadable document", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "admission failed", err.Error())
		return
	}

	doc := &storage.Document{Filename: header.Filename, Status: domain.StatusPending}
	if err := h.repos.Documents.Create(r.Context(), doc); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create document", err.Error())
		return
	}
	if err := h.repos.Documents.SetQuality(r.Context(), doc.ID, adm.Assessment.QualityScore); err != nil {
		h.logger.Error().Err(err).Str("document_id", doc.ID.String()).Msg("failed to persist quality score")
	}

	if !adm.Assessment.Admitted {
		if err := h.repos.Documents.Transition(r.Context(), doc.ID, domain.StatusPending, domain.StatusQualityRejected); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to reject document", err.Error())
			return
		}
		h.logger.Info().
			Str("document_id", doc.ID.String()).
			Float64("quality_score", adm.Assessment.QualityScore).
			Msg("upload rejected by quality gate")

		writeJSON(w, http.StatusUnprocessableEntity, QualityRejectionDTO{
			DocumentID:      doc.ID.String(),
			ConfidenceScore: adm.Assessment.QualityScore,
			MinThreshold:    adm.Assessment.MinThreshold,
			Band:            adm.Assessment.Band,
			Issues:          adm.Assessment.Issues,
			Suggestions:     adm.Assessment.Suggestions,
		})
		return
	}

	req := pipeline.RunRequest{
		DocumentID: doc.ID,
		Filename:   header.Filename,
		Pages:      adm.Pages,
	}
	go h.submit(req)

	h.logger.Info().
		Str("document_id", doc.ID.String()).
		Float64("quality_score", adm.Assessment.QualityScore).
		Int("pages", len(adm.Pages)).
		Msg("upload admitted")

	writeJSON(w, http.StatusAccepted, UploadResponseDTO{
		DocumentID:   doc.ID.String(),
		Status:       string(domain.StatusPending),
		QualityScore: adm.Assessment.QualityScore,
		Band:         adm.Assessment.Band,
		Pages:        len(adm.Pages),
	})
}

// Get returns the document's lifecycle state.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "documentID")
	if !ok {
		return
	}

	doc, err := h.repos.Documents.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load document", err.Error())
		return
	}

	dto := DocumentDTO{
		ID:           doc.ID.String(),
		Filename:     doc.Filename,
		Status:       string(doc.Status),
		QualityScore: doc.QualityScore,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if doc.DocumentType != nil {
		dto.DocumentType = string(*doc.DocumentType)
	}
	if doc.FailureStep != nil {
		dto.FailureStep = *doc.FailureStep
	}
	if doc.FailureReason != nil {
		dto.FailureReason = *doc.FailureReason
	}
	if doc.SessionID != nil {
		dto.SessionID = doc.SessionID.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

// Artifacts returns every step output for a document in creation order.
func (h *DocumentHandler) Artifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "documentID")
	if !ok {
		return
	}

	artifacts, err := h.repos.Artifacts.ByDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load artifacts", err.Error())
		return
	}

	dtos := make([]ArtifactDTO, 0, len(artifacts))
	for _, a := range artifacts {
		dtos = append(dtos, ArtifactDTO{
			Step:      string(a.Step),
			Content:   a.Content,
			CreatedAt: a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": dtos})
}

// SessionLogs returns the audit trail of one pipeline run.
func (h *DocumentHandler) SessionLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "sessionID")
	if !ok {
		return
	}

	logs, err := h.repos.Logs.BySession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load logs", err.Error())
		return
	}

	dtos := make([]InteractionLogDTO, 0, len(logs))
	for _, entry := range logs {
		dto := InteractionLogDTO{
			Step:       string(entry.Step),
			Model:      entry.Model,
			Input:      entry.Input,
			Output:     entry.Output,
			DurationMs: entry.DurationMs,
			Confidence: entry.Confidence,
			CreatedAt:  entry.CreatedAt,
		}
		if entry.ErrorMessage != nil {
			dto.ErrorMessage = *entry.ErrorMessage
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": dtos})
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
