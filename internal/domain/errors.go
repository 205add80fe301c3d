package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies pipeline failures.
type ErrorType string

const (
	ErrorTypeDecoding       ErrorType = "decoding"
	ErrorTypeQuality        ErrorType = "quality_rejected"
	ErrorTypeMissingPrompt  ErrorType = "missing_prompt"
	ErrorTypeModelTransient ErrorType = "model_transient"
	ErrorTypeModelPermanent ErrorType = "model_permanent"
	ErrorTypeValidation     ErrorType = "step_validation"
	ErrorTypeCancelled      ErrorType = "cancelled"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeStorage        ErrorType = "storage"
)

// PipelineError is a classified error with optional step context.
type PipelineError struct {
	Type    ErrorType
	Step    StepName
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Step != "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] step %s: %s: %v", e.Type, e.Step, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] step %s: %s", e.Type, e.Step, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewError creates a classified pipeline error.
func NewError(errType ErrorType, message string, err error) *PipelineError {
	return &PipelineError{Type: errType, Message: message, Err: err}
}

// DecodingError signals an image that could not be decoded. Fatal to
// admission, never retried, and distinct from a low-quality verdict.
func DecodingError(message string, err error) *PipelineError {
	return NewError(ErrorTypeDecoding, message, err)
}

// MissingPromptError signals a configuration defect: an enabled step has
// neither a type-scoped nor a universal active template.
func MissingPromptError(step StepName, docType DocumentType) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeMissingPrompt,
		Step:    step,
		Message: fmt.Sprintf("no active prompt template for document type %q", docType),
	}
}

// TransientModelError marks a model invocation failure the invoker may retry.
func TransientModelError(message string, err error) *PipelineError {
	return NewError(ErrorTypeModelTransient, message, err)
}

// PermanentModelError marks a model invocation failure that fails the run.
func PermanentModelError(message string, err error) *PipelineError {
	return NewError(ErrorTypeModelPermanent, message, err)
}

// StepValidationError marks a step-level content failure, such as the fact
// check flagging an irreconcilable medical inconsistency.
func StepValidationError(step StepName, message string) *PipelineError {
	return &PipelineError{Type: ErrorTypeValidation, Step: step, Message: message}
}

// CancelledError marks a run cancelled at a step boundary.
func CancelledError(step StepName) *PipelineError {
	return &PipelineError{Type: ErrorTypeCancelled, Step: step, Message: "run cancelled"}
}

// ConfigError marks invalid step or prompt configuration.
func ConfigError(message string, err error) *PipelineError {
	return NewError(ErrorTypeConfig, message, err)
}

// StorageError wraps persistence failures.
func StorageError(message string, err error) *PipelineError {
	return NewError(ErrorTypeStorage, message, err)
}

// TypeOf extracts the ErrorType from err, or "" when err carries none.
func TypeOf(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ""
}

// IsTransient reports whether err is a retryable model invocation failure.
func IsTransient(err error) bool {
	return TypeOf(err) == ErrorTypeModelTransient
}
