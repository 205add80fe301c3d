package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to DocumentStatus
		ok       bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusQualityRejected, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusPending, false},
		{StatusQualityRejected, StatusInProgress, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusInProgress, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusQualityRejected.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestDocumentTypeValid(t *testing.T) {
	for _, dt := range KnownDocumentTypes {
		assert.True(t, dt.Valid(), dt)
	}
	assert.False(t, DocumentType("invoice").Valid())
	assert.False(t, DocumentType("").Valid(), "universal scope is not a classifiable type")
}

func TestStepNameValid(t *testing.T) {
	for _, step := range KnownSteps {
		assert.True(t, step.Valid(), step)
	}
	assert.False(t, StepName("SUMMARIZATION").Valid())
}

func TestPipelineErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")

	plain := NewError(ErrorTypeStorage, "insert document", cause)
	assert.Equal(t, "[storage] insert document: connection refused", plain.Error())

	stepped := StepValidationError(StepFactCheck, "dosage mismatch")
	assert.Equal(t, "[step_validation] step FACT_CHECK: dosage mismatch", stepped.Error())
}

func TestTypeOfClassifiesWrappedErrors(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("run 42: %w", TransientModelError("model unavailable", cause))

	assert.Equal(t, ErrorTypeModelTransient, TypeOf(err))
	assert.True(t, IsTransient(err))
	assert.True(t, errors.Is(err, cause))

	assert.Equal(t, ErrorType(""), TypeOf(errors.New("opaque")))
	assert.False(t, IsTransient(nil))
}

func TestMissingPromptErrorMentionsScope(t *testing.T) {
	err := MissingPromptError(StepTranslation, DocTypeLabReport)
	assert.Equal(t, ErrorTypeMissingPrompt, TypeOf(err))
	assert.Equal(t, StepTranslation, err.Step)
	assert.Contains(t, err.Error(), "lab_report")
}
