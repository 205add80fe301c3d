// Package monitoring records the audit trail of model interactions. The
// trail is best effort: a failed write never fails the pipeline run it
// describes.
package monitoring

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/observability"
	"github.com/Dropicx/docworker/internal/storage"
)

// LogStore is the persistence surface for interaction records.
type LogStore interface {
	Append(ctx context.Context, log *storage.InteractionLog) error
	BySession(ctx context.Context, sessionID uuid.UUID) ([]*storage.InteractionLog, error)
}

// EventPublisher broadcasts step events to live observers. May be nil.
type EventPublisher interface {
	PublishStepEvent(ctx context.Context, documentID uuid.UUID, step domain.StepName, status string)
}

// Interaction describes one model call to be recorded.
type Interaction struct {
	SessionID  uuid.UUID
	DocumentID uuid.UUID
	Step       domain.StepName
	Model      string
	Input      string
	Output     string
	Prompt     string
	Duration   time.Duration
	Confidence *float64
	Err        error
}

// InteractionLogger truncates and persists interaction records.
type InteractionLogger struct {
	store         LogStore
	publisher     EventPublisher
	truncateRunes int
	logger        *observability.Logger
	lost          atomic.Int64
}

// NewInteractionLogger creates a logger that truncates input and output
// to truncateRunes runes before persisting.
func NewInteractionLogger(store LogStore, publisher EventPublisher, truncateRunes int, logger *observability.Logger) *InteractionLogger {
	return &InteractionLogger{
		store:         store,
		publisher:     publisher,
		truncateRunes: truncateRunes,
		logger:        logger.WithComponent("interaction_logger"),
	}
}

// Record persists one interaction. Write failures are counted and logged
// but never propagated; the audit trail must not take down the run.
func (l *InteractionLogger) Record(ctx context.Context, in Interaction) {
	rec := &storage.InteractionLog{
		ID:         uuid.New(),
		SessionID:  in.SessionID,
		DocumentID: in.DocumentID,
		Step:       in.Step,
		Model:      in.Model,
		Input:      truncate(in.Input, l.truncateRunes),
		Output:     truncate(in.Output, l.truncateRunes),
		Prompt:     in.Prompt,
		DurationMs: in.Duration.Milliseconds(),
		Confidence: in.Confidence,
		CreatedAt:  time.Now().UTC(),
	}
	if in.Err != nil {
		msg := in.Err.Error()
		rec.ErrorMessage = &msg
	}

	if err := l.store.Append(ctx, rec); err != nil {
		l.lost.Add(1)
		l.logger.Error().
			Err(err).
			Str("document_id", in.DocumentID.String()).
			Str("step", string(in.Step)).
			Int64("lost_total", l.lost.Load()).
			Msg("failed to persist interaction log")
	}

	if l.publisher != nil {
		status := "completed"
		if in.Err != nil {
			status = "failed"
		}
		l.publisher.PublishStepEvent(ctx, in.DocumentID, in.Step, status)
	}
}

// BySession returns all records for one pipeline session in insertion order.
func (l *InteractionLogger) BySession(ctx context.Context, sessionID uuid.UUID) ([]*storage.InteractionLog, error) {
	return l.store.BySession(ctx, sessionID)
}

// Lost returns the count of records dropped due to write failures.
func (l *InteractionLogger) Lost() int64 {
	return l.lost.Load()
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…[truncated]"
}
