package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dropicx/docworker/internal/domain"
)

// Common errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DocumentRepository handles document lifecycle persistence.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document in PENDING state.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = domain.StatusPending
	}
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt

	query := `
		INSERT INTO documents (id, filename, status, document_type, quality_score,
			failure_step, failure_reason, session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.Filename, doc.Status, doc.DocumentType, doc.QualityScore,
		doc.FailureStep, doc.FailureReason, doc.SessionID, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetByID retrieves a document by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `
		SELECT id, filename, status, document_type, quality_score,
			failure_step, failure_reason, session_id, created_at, updated_at
		FROM documents WHERE id = $1
	`
	doc := &Document{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Filename, &doc.Status, &doc.DocumentType, &doc.QualityScore,
		&doc.FailureStep, &doc.FailureReason, &doc.SessionID, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// Transition moves a document to the next lifecycle state. The update is
// conditional on the current state so concurrent writers cannot skip the
// monotonic-forward invariant.
func (r *DocumentRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.DocumentStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	query := `
		UPDATE documents SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: document %s is no longer %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// SetType records the classified document type.
func (r *DocumentRepository) SetType(ctx context.Context, id uuid.UUID, docType domain.DocumentType) error {
	query := `UPDATE documents SET document_type = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, docType, time.Now(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetQuality records the admission quality score.
func (r *DocumentRepository) SetQuality(ctx context.Context, id uuid.UUID, score float64) error {
	query := `UPDATE documents SET quality_score = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, score, time.Now(), id)
	return err
}

// SetSession records the pipeline run session for a document.
func (r *DocumentRepository) SetSession(ctx context.Context, id, sessionID uuid.UUID) error {
	query := `UPDATE documents SET session_id = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, sessionID, time.Now(), id)
	return err
}

// SetFailure records the failing step and reason alongside the FAILED state.
func (r *DocumentRepository) SetFailure(ctx context.Context, id uuid.UUID, step, reason string) error {
	query := `UPDATE documents SET failure_step = $1, failure_reason = $2, updated_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, step, reason, time.Now(), id)
	return err
}

// ArtifactRepository stores per-step outputs.
type ArtifactRepository struct {
	db DB
}

// NewArtifactRepository creates a new artifact repository.
func NewArtifactRepository(db DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Append stores one step's output for a document.
func (r *ArtifactRepository) Append(ctx context.Context, a *Artifact) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()

	query := `
		INSERT INTO artifacts (id, document_id, session_id, step, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.DocumentID, a.SessionID, a.Step, a.Content, a.CreatedAt,
	)
	return err
}

// ByDocument returns all artifacts for a document in creation order.
func (r *ArtifactRepository) ByDocument(ctx context.Context, documentID uuid.UUID) ([]*Artifact, error) {
	query := `
		SELECT id, document_id, session_id, step, content, created_at
		FROM artifacts
		WHERE document_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		a := &Artifact{}
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.SessionID, &a.Step, &a.Content, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// StepConfigRepository handles pipeline step configuration.
type StepConfigRepository struct {
	db DB
}

// NewStepConfigRepository creates a new step config repository.
func NewStepConfigRepository(db DB) *StepConfigRepository {
	return &StepConfigRepository{db: db}
}

// ListByScope returns every step config for one scope, enabled or not,
// ordered by exec_order. The empty document type is the universal scope.
func (r *StepConfigRepository) ListByScope(ctx context.Context, docType domain.DocumentType) ([]*StepConfig, error) {
	query := `
		SELECT id, name, display_name, description, document_type, enabled, exec_order, created_at, updated_at
		FROM step_configs
		WHERE document_type = $1
		ORDER BY exec_order
	`
	rows, err := r.db.QueryContext(ctx, query, string(docType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*StepConfig
	for rows.Next() {
		c := &StepConfig{}
		if err := rows.Scan(
			&c.ID, &c.Name, &c.DisplayName, &c.Description, &c.DocumentType,
			&c.Enabled, &c.ExecOrder, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// Upsert creates or replaces the config for (name, document_type).
func (r *StepConfigRepository) Upsert(ctx context.Context, c *StepConfig) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.UpdatedAt = now

	query := `
		INSERT INTO step_configs (id, name, display_name, description, document_type, enabled, exec_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name, document_type) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			enabled = EXCLUDED.enabled,
			exec_order = EXCLUDED.exec_order,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Name, c.DisplayName, c.Description, string(c.DocumentType),
		c.Enabled, c.ExecOrder, now, now,
	)
	return err
}

// PromptRepository handles versioned prompt templates.
type PromptRepository struct {
	db DB
}

// NewPromptRepository creates a new prompt repository.
func NewPromptRepository(db DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// Active returns the highest-version template for (step, docType), or
// ErrNotFound. The empty document type queries the universal scope.
func (r *PromptRepository) Active(ctx context.Context, step domain.StepName, docType domain.DocumentType) (*PromptTemplate, error) {
	query := `
		SELECT id, step, document_type, body, version, updated_by, created_at
		FROM prompt_templates
		WHERE step = $1 AND document_type = $2
		ORDER BY version DESC
		LIMIT 1
	`
	tpl := &PromptTemplate{}
	err := r.db.QueryRowContext(ctx, query, step, string(docType)).Scan(
		&tpl.ID, &tpl.Step, &tpl.DocumentType, &tpl.Body, &tpl.Version, &tpl.UpdatedBy, &tpl.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tpl, err
}

// Publish inserts a new template version, one higher than the current
// active version for the (step, docType) pair. Prior versions are never
// mutated.
func (r *PromptRepository) Publish(ctx context.Context, step domain.StepName, docType domain.DocumentType, body, updatedBy string) (*PromptTemplate, error) {
	version := 1
	if current, err := r.Active(ctx, step, docType); err == nil {
		version = current.Version + 1
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	tpl := &PromptTemplate{
		ID:           uuid.New(),
		Step:         step,
		DocumentType: docType,
		Body:         body,
		Version:      version,
		UpdatedBy:    updatedBy,
		CreatedAt:    time.Now(),
	}

	query := `
		INSERT INTO prompt_templates (id, step, document_type, body, version, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		tpl.ID, tpl.Step, string(tpl.DocumentType), tpl.Body, tpl.Version, tpl.UpdatedBy, tpl.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// List returns the active template per (step, document_type) pair.
func (r *PromptRepository) List(ctx context.Context) ([]*PromptTemplate, error) {
	query := `
		SELECT t.id, t.step, t.document_type, t.body, t.version, t.updated_by, t.created_at
		FROM prompt_templates t
		JOIN (
			SELECT step, document_type, MAX(version) AS version
			FROM prompt_templates
			GROUP BY step, document_type
		) latest
		ON t.step = latest.step AND t.document_type = latest.document_type AND t.version = latest.version
		ORDER BY t.document_type, t.step
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*PromptTemplate
	for rows.Next() {
		tpl := &PromptTemplate{}
		if err := rows.Scan(
			&tpl.ID, &tpl.Step, &tpl.DocumentType, &tpl.Body, &tpl.Version, &tpl.UpdatedBy, &tpl.CreatedAt,
		); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// InteractionLogRepository handles the append-only model call audit trail.
type InteractionLogRepository struct {
	db DB
}

// NewInteractionLogRepository creates a new interaction log repository.
func NewInteractionLogRepository(db DB) *InteractionLogRepository {
	return &InteractionLogRepository{db: db}
}

// Append inserts one log entry. Entries are never updated or deleted.
func (r *InteractionLogRepository) Append(ctx context.Context, entry *InteractionLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO interaction_logs (id, session_id, document_id, step, model, input, output,
			prompt, duration_ms, confidence, error_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SessionID, entry.DocumentID, entry.Step, entry.Model,
		entry.Input, entry.Output, entry.Prompt, entry.DurationMs,
		entry.Confidence, entry.ErrorMessage, entry.Metadata, entry.CreatedAt,
	)
	return err
}

// BySession returns all entries for a run in insertion order.
func (r *InteractionLogRepository) BySession(ctx context.Context, sessionID uuid.UUID) ([]*InteractionLog, error) {
	query := `
		SELECT id, session_id, document_id, step, model, input, output,
			prompt, duration_ms, confidence, error_message, metadata, created_at
		FROM interaction_logs
		WHERE session_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*InteractionLog
	for rows.Next() {
		entry := &InteractionLog{}
		if err := rows.Scan(
			&entry.ID, &entry.SessionID, &entry.DocumentID, &entry.Step, &entry.Model,
			&entry.Input, &entry.Output, &entry.Prompt, &entry.DurationMs,
			&entry.Confidence, &entry.ErrorMessage, &entry.Metadata, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Repositories bundles all repositories together.
type Repositories struct {
	Documents   *DocumentRepository
	Artifacts   *ArtifactRepository
	StepConfigs *StepConfigRepository
	Prompts     *PromptRepository
	Logs        *InteractionLogRepository
}

// NewRepositories creates all repositories with the given database connection.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Documents:   NewDocumentRepository(db),
		Artifacts:   NewArtifactRepository(db),
		StepConfigs: NewStepConfigRepository(db),
		Prompts:     NewPromptRepository(db),
		Logs:        NewInteractionLogRepository(db),
	}
}
