// Package storage provides database models and repositories for docworker.
package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Dropicx/docworker/internal/domain"
)

// Document represents one submitted file under processing.
type Document struct {
	ID            uuid.UUID             `json:"id" db:"id"`
	Filename      string                `json:"filename" db:"filename"`
	Status        domain.DocumentStatus `json:"status" db:"status"`
	DocumentType  *domain.DocumentType  `json:"document_type,omitempty" db:"document_type"`
	QualityScore  *float64              `json:"quality_score,omitempty" db:"quality_score"`
	FailureStep   *string               `json:"failure_step,omitempty" db:"failure_step"`
	FailureReason *string               `json:"failure_reason,omitempty" db:"failure_reason"`
	SessionID     *uuid.UUID            `json:"session_id,omitempty" db:"session_id"`
	CreatedAt     time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at" db:"updated_at"`
}

// Artifact is the output one step produced for one document.
type Artifact struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	DocumentID uuid.UUID       `json:"document_id" db:"document_id"`
	SessionID  uuid.UUID       `json:"session_id" db:"session_id"`
	Step       domain.StepName `json:"step" db:"step"`
	Content    string          `json:"content" db:"content"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// StepConfig is one configurable pipeline step. An empty DocumentType
// means universal scope.
type StepConfig struct {
	ID           uuid.UUID           `json:"id" db:"id"`
	Name         domain.StepName     `json:"name" db:"name"`
	DisplayName  string              `json:"display_name" db:"display_name"`
	Description  string              `json:"description" db:"description"`
	DocumentType domain.DocumentType `json:"document_type" db:"document_type"`
	Enabled      bool                `json:"enabled" db:"enabled"`
	ExecOrder    int                 `json:"exec_order" db:"exec_order"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" db:"updated_at"`
}

// Universal reports whether the step applies to all document types.
func (s StepConfig) Universal() bool { return s.DocumentType == "" }

// PromptTemplate is versioned instruction text for one step. An empty
// DocumentType means universal scope; the active template for a
// (scope, step) pair is the one with the highest version.
type PromptTemplate struct {
	ID           uuid.UUID           `json:"id" db:"id"`
	Step         domain.StepName     `json:"step" db:"step"`
	DocumentType domain.DocumentType `json:"document_type" db:"document_type"`
	Body         string              `json:"body" db:"body"`
	Version      int                 `json:"version" db:"version"`
	UpdatedBy    string              `json:"updated_by" db:"updated_by"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}

// Universal reports whether the template applies to all document types.
func (p PromptTemplate) Universal() bool { return p.DocumentType == "" }

// InteractionLog is the immutable record of one model call. Input and
// output are stored truncated; the log is append-only.
type InteractionLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	SessionID    uuid.UUID       `json:"session_id" db:"session_id"`
	DocumentID   uuid.UUID       `json:"document_id" db:"document_id"`
	Step         domain.StepName `json:"step" db:"step"`
	Model        string          `json:"model" db:"model"`
	Input        string          `json:"input" db:"input"`
	Output       string          `json:"output" db:"output"`
	Prompt       string          `json:"prompt" db:"prompt"`
	DurationMs   int64           `json:"duration_ms" db:"duration_ms"`
	Confidence   *float64        `json:"confidence,omitempty" db:"confidence"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	Metadata     json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
