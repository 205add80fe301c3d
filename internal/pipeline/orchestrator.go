package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/monitoring"
	"github.com/Dropicx/docworker/internal/observability"
	"github.com/Dropicx/docworker/internal/storage"
)

// DocumentStore is the document lifecycle surface the orchestrator needs.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Document, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.DocumentStatus) error
	SetType(ctx context.Context, id uuid.UUID, docType domain.DocumentType) error
	SetSession(ctx context.Context, id, sessionID uuid.UUID) error
	SetFailure(ctx context.Context, id uuid.UUID, step, reason string) error
}

// ArtifactStore persists per-step outputs.
type ArtifactStore interface {
	Append(ctx context.Context, a *storage.Artifact) error
}

// StepSource supplies the ordered, enabled step plan for a scope.
type StepSource interface {
	OrderedSteps(ctx context.Context, docType domain.DocumentType) ([]storage.StepConfig, error)
}

// PromptSource resolves the active prompt for a step.
type PromptSource interface {
	Resolve(ctx context.Context, step domain.StepName, docType domain.DocumentType) (*storage.PromptTemplate, error)
}

// Recorder appends to the interaction audit trail.
type Recorder interface {
	Record(ctx context.Context, in monitoring.Interaction)
}

// RunRequest identifies the document to process and carries its
// rasterized pages for the extraction step.
type RunRequest struct {
	DocumentID uuid.UUID
	Filename   string
	Pages      [][]byte
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	DocumentID    uuid.UUID
	SessionID     uuid.UUID
	Status        domain.DocumentStatus
	DocumentType  domain.DocumentType
	Output        string
	ExecutedSteps []domain.StepName
	FailedStep    domain.StepName
	FailureReason string
}

// Orchestrator executes the configured steps for one document at a time.
// Steps within a run are strictly sequential; concurrency happens across
// documents in the worker pool.
type Orchestrator struct {
	documents DocumentStore
	artifacts ArtifactStore
	registry  StepSource
	prompts   PromptSource
	recorder  Recorder
	handlers  map[domain.StepName]Handler
	modelName string
	logger    *observability.Logger
}

// NewOrchestrator wires the orchestrator. handlers must cover every step
// name that can appear in configuration; modelName is recorded in
// interaction logs.
func NewOrchestrator(
	documents DocumentStore,
	artifacts ArtifactStore,
	registry StepSource,
	prompts PromptSource,
	recorder Recorder,
	handlers map[domain.StepName]Handler,
	modelName string,
	logger *observability.Logger,
) *Orchestrator {
	return &Orchestrator{
		documents: documents,
		artifacts: artifacts,
		registry:  registry,
		prompts:   prompts,
		recorder:  recorder,
		handlers:  handlers,
		modelName: modelName,
		logger:    logger.WithComponent("pipeline"),
	}
}

// Run processes one admitted document from PENDING to a terminal state.
// The universal step prefix is resolved up front; once classification
// determines the document type, the remaining plan is re-resolved so
// type-scoped steps join the run. The returned result is non-nil even
// when the run errors.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	result := &RunResult{DocumentID: req.DocumentID}

	doc, err := o.documents.GetByID(ctx, req.DocumentID)
	if err != nil {
		return abort(result, domain.StorageError("load document", err))
	}
	if doc.Status != domain.StatusPending {
		return abort(result, fmt.Errorf("document %s is %s, expected %s", doc.ID, doc.Status, domain.StatusPending))
	}

	sessionID := uuid.New()
	result.SessionID = sessionID
	if err := o.documents.SetSession(ctx, doc.ID, sessionID); err != nil {
		return abort(result, domain.StorageError("assign session", err))
	}
	if err := o.documents.Transition(ctx, doc.ID, domain.StatusPending, domain.StatusInProgress); err != nil {
		return abort(result, domain.StorageError("start run", err))
	}

	logger := o.logger.WithDocument(doc.ID.String()).WithSession(sessionID.String())

	sc := &StepContext{
		DocumentID: doc.ID,
		SessionID:  sessionID,
		Filename:   req.Filename,
		Artifacts:  make(map[domain.StepName]string),
		Pages:      req.Pages,
	}

	plan, err := o.registry.OrderedSteps(ctx, "")
	if err != nil {
		return o.fail(ctx, result, "", err)
	}
	if err := o.validatePlan(plan, nil); err != nil {
		return o.fail(ctx, result, "", err)
	}

	for i := 0; i < len(plan); i++ {
		step := plan[i]

		if ctx.Err() != nil {
			return o.fail(ctx, result, step.Name, domain.CancelledError(step.Name))
		}

		logger.Info().Str("step", string(step.Name)).Int("order", step.ExecOrder).Msg("executing step")

		output, execErr := o.executeStep(ctx, sc, step.Name)
		if execErr != nil {
			return o.fail(ctx, result, step.Name, execErr)
		}

		artifact := &storage.Artifact{
			DocumentID: doc.ID,
			SessionID:  sessionID,
			Step:       step.Name,
			Content:    output,
		}
		if err := o.artifacts.Append(ctx, artifact); err != nil {
			return o.fail(ctx, result, step.Name, domain.StorageError("persist artifact", err))
		}

		sc.Artifacts[step.Name] = output
		result.ExecutedSteps = append(result.ExecutedSteps, step.Name)
		result.Output = output

		if step.Name == domain.StepClassification && sc.DocumentType == "" {
			docType := ParseDocumentType(output)
			sc.DocumentType = docType
			result.DocumentType = docType
			if err := o.documents.SetType(ctx, doc.ID, docType); err != nil {
				return o.fail(ctx, result, step.Name, domain.StorageError("persist document type", err))
			}
			logger.Info().Str("document_type", string(docType)).Msg("document classified")

			plan, err = o.replan(ctx, docType, step.ExecOrder, result.ExecutedSteps)
			if err != nil {
				return o.fail(ctx, result, step.Name, err)
			}
			i = -1
		}
	}

	if err := o.documents.Transition(ctx, doc.ID, domain.StatusInProgress, domain.StatusCompleted); err != nil {
		return o.fail(ctx, result, "", domain.StorageError("complete run", err))
	}
	result.Status = domain.StatusCompleted
	logger.Info().Int("steps", len(result.ExecutedSteps)).Msg("run completed")
	return result, nil
}

// executeStep resolves the prompt, runs the handler, and records the
// interaction. The audit entry is committed before the caller advances.
func (o *Orchestrator) executeStep(ctx context.Context, sc *StepContext, name domain.StepName) (string, error) {
	handler, ok := o.handlers[name]
	if !ok {
		return "", domain.ConfigError(fmt.Sprintf("no handler registered for step %s", name), nil)
	}

	tpl, err := o.prompts.Resolve(ctx, name, sc.DocumentType)
	if err != nil {
		return "", err
	}
	sc.Prompt = tpl.Body
	sc.Confidence = nil

	input := ""
	if in, err := primaryInput(handler, sc); err == nil {
		input = in
	}

	started := time.Now()
	output, execErr := handler.Execute(ctx, sc)

	o.recorder.Record(ctx, monitoring.Interaction{
		SessionID:  sc.SessionID,
		DocumentID: sc.DocumentID,
		Step:       name,
		Model:      o.modelName,
		Input:      input,
		Output:     output,
		Prompt:     tpl.Body,
		Duration:   time.Since(started),
		Confidence: sc.Confidence,
		Err:        execErr,
	})

	return output, execErr
}

// replan resolves the full plan for the classified type and returns the
// steps that still have to run, ordered after the classification step.
func (o *Orchestrator) replan(ctx context.Context, docType domain.DocumentType, afterOrder int, executed []domain.StepName) ([]storage.StepConfig, error) {
	full, err := o.registry.OrderedSteps(ctx, docType)
	if err != nil {
		return nil, err
	}

	done := make(map[domain.StepName]bool, len(executed))
	for _, name := range executed {
		done[name] = true
	}

	var remaining []storage.StepConfig
	for _, step := range full {
		if step.ExecOrder > afterOrder && !done[step.Name] {
			remaining = append(remaining, step)
		}
	}

	if err := o.validatePlan(remaining, executed); err != nil {
		return nil, err
	}
	return remaining, nil
}

// validatePlan rejects configurations before any step runs: unknown
// handlers and consumers whose inputs cannot exist by the time they
// execute.
func (o *Orchestrator) validatePlan(plan []storage.StepConfig, executed []domain.StepName) error {
	available := make(map[domain.StepName]bool, len(executed))
	for _, name := range executed {
		available[name] = true
	}

	for _, step := range plan {
		handler, ok := o.handlers[step.Name]
		if !ok {
			return domain.ConfigError(fmt.Sprintf("no handler registered for step %s", step.Name), nil)
		}

		consumes := handler.Consumes()
		if len(consumes) > 0 {
			satisfied := false
			for _, dep := range consumes {
				if available[dep] {
					satisfied = true
					break
				}
			}
			if !satisfied {
				return domain.ConfigError(
					fmt.Sprintf("step %s runs before any of its inputs %v", step.Name, consumes), nil)
			}
		}

		available[step.Name] = true
	}
	return nil
}

// abort returns the populated result for failures before the document
// entered IN_PROGRESS. The stored status is left untouched.
func abort(result *RunResult, cause error) (*RunResult, error) {
	result.FailureReason = cause.Error()
	return result, cause
}

// fail moves the document to FAILED, records the failing step and
// reason, and returns the terminal result. Cancellation surfaces as the
// distinct "cancelled" reason.
func (o *Orchestrator) fail(ctx context.Context, result *RunResult, step domain.StepName, cause error) (*RunResult, error) {
	reason := cause.Error()
	if domain.TypeOf(cause) == domain.ErrorTypeCancelled {
		reason = "cancelled"
	}

	// The run context may already be cancelled; persistence of the
	// terminal state must still go through.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := o.documents.Transition(persistCtx, result.DocumentID, domain.StatusInProgress, domain.StatusFailed); err != nil {
		o.logger.Error().Err(err).Str("document_id", result.DocumentID.String()).Msg("failed to persist FAILED state")
	}
	if err := o.documents.SetFailure(persistCtx, result.DocumentID, string(step), reason); err != nil {
		o.logger.Error().Err(err).Str("document_id", result.DocumentID.String()).Msg("failed to persist failure detail")
	}

	result.Status = domain.StatusFailed
	result.FailedStep = step
	result.FailureReason = reason
	return result, cause
}
