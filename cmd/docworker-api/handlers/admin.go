package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/observability"
	"github.com/Dropicx/docworker/internal/quality"
	"github.com/Dropicx/docworker/internal/storage"
)

// ThresholdWriter stores a shared quality-threshold override. Nil when
// no cache backend is configured.
type ThresholdWriter interface {
	SetMinThreshold(ctx context.Context, value float64) error
}

// AdminHandler manages step configuration, prompt templates, and the
// quality threshold.
type AdminHandler struct {
	logger    *observability.Logger
	repos     *storage.Repositories
	threshold quality.ThresholdSource
	writer    ThresholdWriter
}

// NewAdminHandler creates an admin handler. writer may be nil; the
// threshold is then read-only at runtime.
func NewAdminHandler(logger *observability.Logger, repos *storage.Repositories, threshold quality.ThresholdSource, writer ThresholdWriter) *AdminHandler {
	return &AdminHandler{logger: logger, repos: repos, threshold: threshold, writer: writer}
}

// StepConfigDTO mirrors one step configuration row.
type StepConfigDTO struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	Enabled      bool   `json:"enabled"`
	Order        int    `json:"order"`
}

// ListSteps returns the configured steps for one scope, disabled ones
// included. The document_type query parameter selects the scope; empty
// means universal.
func (h *AdminHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	docType := domain.DocumentType(r.URL.Query().Get("document_type"))
	if docType != "" && !docType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown document type", string(docType))
		return
	}

	configs, err := h.repos.StepConfigs.ListByScope(r.Context(), docType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list steps", err.Error())
		return
	}

	dtos := make([]StepConfigDTO, 0, len(configs))
	for _, c := range configs {
		dtos = append(dtos, StepConfigDTO{
			Name:         string(c.Name),
			DisplayName:  c.DisplayName,
			Description:  c.Description,
			DocumentType: string(c.DocumentType),
			Enabled:      c.Enabled,
			Order:        c.ExecOrder,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": dtos})
}

// UpsertStep creates or updates one step configuration. The merged scope
// is validated before the change is committed; a duplicate enabled order
// or unknown step name is rejected.
func (h *AdminHandler) UpsertStep(w http.ResponseWriter, r *http.Request) {
	var dto StepConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	name := domain.StepName(dto.Name)
	if !name.Valid() {
		writeError(w, http.StatusBadRequest, "unknown step name", dto.Name)
		return
	}
	docType := domain.DocumentType(dto.DocumentType)
	if docType != "" && !docType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown document type", dto.DocumentType)
		return
	}
	if dto.Order <= 0 {
		writeError(w, http.StatusBadRequest, "order must be positive", "")
		return
	}

	if dto.Enabled {
		if err := h.checkOrderConflict(r, name, docType, dto.Order); err != nil {
			writeError(w, http.StatusConflict, "step order conflict", err.Error())
			return
		}
	}

	cfg := &storage.StepConfig{
		Name:         name,
		DisplayName:  dto.DisplayName,
		Description:  dto.Description,
		DocumentType: docType,
		Enabled:      dto.Enabled,
		ExecOrder:    dto.Order,
	}
	if err := h.repos.StepConfigs.Upsert(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save step", err.Error())
		return
	}

	h.logger.Info().
		Str("step", dto.Name).
		Str("document_type", dto.DocumentType).
		Bool("enabled", dto.Enabled).
		Int("order", dto.Order).
		Msg("step configuration updated")
	writeJSON(w, http.StatusOK, dto)
}

// checkOrderConflict rejects an enabled step whose order collides with
// another enabled step visible in the same merged scope.
func (h *AdminHandler) checkOrderConflict(r *http.Request, name domain.StepName, docType domain.DocumentType, order int) error {
	scopes := []domain.DocumentType{""}
	if docType != "" {
		scopes = append(scopes, docType)
	}
	for _, scope := range scopes {
		configs, err := h.repos.StepConfigs.ListByScope(r.Context(), scope)
		if err != nil {
			return err
		}
		for _, c := range configs {
			if c.Enabled && c.ExecOrder == order && c.Name != name {
				return domain.ConfigError(
					fmt.Sprintf("step %s already uses order %d", c.Name, order), nil)
			}
		}
	}
	return nil
}

// PromptDTO mirrors one prompt template.
type PromptDTO struct {
	Step         string `json:"step"`
	DocumentType string `json:"document_type,omitempty"`
	Body         string `json:"body"`
	Version      int    `json:"version"`
	UpdatedBy    string `json:"updated_by,omitempty"`
}

// ListPrompts returns the active template per (step, scope) pair.
func (h *AdminHandler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	templates, err := h.repos.Prompts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list prompts", err.Error())
		return
	}

	dtos := make([]PromptDTO, 0, len(templates))
	for _, tpl := range templates {
		dtos = append(dtos, PromptDTO{
			Step:         string(tpl.Step),
			DocumentType: string(tpl.DocumentType),
			Body:         tpl.Body,
			Version:      tpl.Version,
			UpdatedBy:    tpl.UpdatedBy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": dtos})
}

// PublishPrompt stores a new template version. Prior versions stay
// immutable; in-flight runs keep the version they resolved.
func (h *AdminHandler) PublishPrompt(w http.ResponseWriter, r *http.Request) {
	var dto PromptDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	step := domain.StepName(dto.Step)
	if !step.Valid() {
		writeError(w, http.StatusBadRequest, "unknown step name", dto.Step)
		return
	}
	docType := domain.DocumentType(dto.DocumentType)
	if docType != "" && !docType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown document type", dto.DocumentType)
		return
	}
	if dto.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required", "")
		return
	}

	tpl, err := h.repos.Prompts.Publish(r.Context(), step, docType, dto.Body, dto.UpdatedBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to publish prompt", err.Error())
		return
	}

	h.logger.Info().
		Str("step", dto.Step).
		Str("document_type", dto.DocumentType).
		Int("version", tpl.Version).
		Msg("prompt template published")
	writeJSON(w, http.StatusCreated, PromptDTO{
		Step:         string(tpl.Step),
		DocumentType: string(tpl.DocumentType),
		Body:         tpl.Body,
		Version:      tpl.Version,
		UpdatedBy:    tpl.UpdatedBy,
	})
}

// ThresholdDTO carries the quality admission threshold.
type ThresholdDTO struct {
	MinThreshold float64 `json:"min_threshold"`
}

// GetThreshold returns the current admission threshold.
func (h *AdminHandler) GetThreshold(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ThresholdDTO{MinThreshold: h.threshold.MinThreshold()})
}

// SetThreshold stores a new shared threshold. Unavailable without a
// cache backend.
func (h *AdminHandler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		writeError(w, http.StatusConflict, "threshold is fixed by configuration", "no cache backend configured")
		return
	}

	var dto ThresholdDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if dto.MinThreshold < 0 || dto.MinThreshold > 1 {
		writeError(w, http.StatusBadRequest, "min_threshold must be in [0,1]", "")
		return
	}

	if err := h.writer.SetMinThreshold(r.Context(), dto.MinThreshold); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store threshold", err.Error())
		return
	}

	h.logger.Info().Float64("min_threshold", dto.MinThreshold).Msg("quality threshold updated")
	writeJSON(w, http.StatusOK, dto)
}
