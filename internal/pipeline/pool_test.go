package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/observability"
	"github.com/Dropicx/docworker/internal/storage"
)

// gatedInvoker tracks how many invocations run at the same time.
type gatedInvoker struct {
	fakeInvoker
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gatedInvoker) Invoke(ctx context.Context, prompt, input string) (string, error) {
	current := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		peak := g.peak.Load()
		if current <= peak || g.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	return g.fakeInvoker.Invoke(ctx, prompt, input)
}

func TestPoolProcessesAllDocumentsWithinLimit(t *testing.T) {
	docs := newFakeDocStore()
	artifacts := &fakeArtifactStore{}
	stepsrc := &fakeStepSource{plans: map[domain.DocumentType][]storage.StepConfig{
		"":                      universalPlan(),
		domain.DocTypeLabReport: universalPlan(),
	}}
	invoker := &gatedInvoker{fakeInvoker: fakeInvoker{
		responses: map[domain.StepName]string{
			domain.StepMedicalValidation: "MEDICAL",
			domain.StepClassification:    "lab_report",
			domain.StepTranslation:       "plain text",
			domain.StepFormatting:        "final",
		},
		errs: map[domain.StepName]error{},
	}}

	orch := NewOrchestrator(
		docs, artifacts, stepsrc, &fakePromptSource{}, &fakeRecorder{},
		DefaultHandlers(invoker, &fakeOCR{text: "extracted"}),
		"fake/model", observability.Nop(),
	)

	const limit = 2
	pool := NewPool(context.Background(), orch, limit, observability.Nop())

	var ids []uuid.UUID
	for i := 0; i < 6; i++ {
		id := uuid.New()
		ids = append(ids, id)
		docs.add(&storage.Document{ID: id, Filename: "scan.pdf", Status: domain.StatusPending})
		pool.Submit(RunRequest{DocumentID: id, Pages: [][]byte{[]byte("page")}})
	}
	require.NoError(t, pool.Wait())

	for _, id := range ids {
		doc, err := docs.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, doc.Status)
	}
	assert.LessOrEqual(t, invoker.peak.Load(), int32(limit))
}

func TestPoolSurvivesFailingRuns(t *testing.T) {
	docs := newFakeDocStore()
	stepsrc := &fakeStepSource{plans: map[domain.DocumentType][]storage.StepConfig{
		"":                      universalPlan(),
		domain.DocTypeLabReport: universalPlan(),
	}}
	invoker := &fakeInvoker{
		responses: map[domain.StepName]string{
			domain.StepClassification: "lab_report",
			domain.StepTranslation:    "plain text",
			domain.StepFormatting:     "final",
		},
		errs: map[domain.StepName]error{
			domain.StepMedicalValidation: domain.PermanentModelError("boom", nil),
		},
	}

	orch := NewOrchestrator(
		docs, &fakeArtifactStore{}, stepsrc, &fakePromptSource{}, &fakeRecorder{},
		DefaultHandlers(invoker, &fakeOCR{text: "extracted"}),
		"fake/model", observability.Nop(),
	)
	pool := NewPool(context.Background(), orch, 2, observability.Nop())

	failing := uuid.New()
	docs.add(&storage.Document{ID: failing, Status: domain.StatusPending})
	pool.Submit(RunRequest{DocumentID: failing, Pages: [][]byte{[]byte("page")}})

	require.NoError(t, pool.Wait(), "a failed run does not poison the pool")

	doc, err := docs.GetByID(context.Background(), failing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, doc.Status)
}
