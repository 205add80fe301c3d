// Package domain holds the core vocabulary of the document pipeline:
// document types, lifecycle states, step names, and the error taxonomy.
package domain

// DocumentType is the closed set of medical document categories.
type DocumentType string

const (
	DocTypeLabReport        DocumentType = "lab_report"
	DocTypeDoctorLetter     DocumentType = "doctor_letter"
	DocTypeDischargeSummary DocumentType = "discharge_summary"
	DocTypePrescription     DocumentType = "prescription"
	DocTypeRadiologyReport  DocumentType = "radiology_report"
	DocTypeOther            DocumentType = "other"
)

// KnownDocumentTypes lists every classifiable document type.
var KnownDocumentTypes = []DocumentType{
	DocTypeLabReport,
	DocTypeDoctorLetter,
	DocTypeDischargeSummary,
	DocTypePrescription,
	DocTypeRadiologyReport,
	DocTypeOther,
}

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	for _, known := range KnownDocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DocumentStatus is the lifecycle state of a submitted document.
// Transitions are monotonic forward; QUALITY_REJECTED and the two run
// outcomes are terminal.
type DocumentStatus string

const (
	StatusPending         DocumentStatus = "PENDING"
	StatusQualityRejected DocumentStatus = "QUALITY_REJECTED"
	StatusInProgress      DocumentStatus = "IN_PROGRESS"
	StatusCompleted       DocumentStatus = "COMPLETED"
	StatusFailed          DocumentStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusQualityRejected || s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether s -> next is a legal lifecycle move.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusQualityRejected || next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// StepName is the closed enumeration of pipeline steps.
type StepName string

const (
	StepMedicalValidation StepName = "MEDICAL_VALIDATION"
	StepClassification    StepName = "CLASSIFICATION"
	StepTextExtraction    StepName = "TEXT_EXTRACTION"
	StepPreprocessing     StepName = "PREPROCESSING"
	StepTranslation       StepName = "TRANSLATION"
	StepFactCheck         StepName = "FACT_CHECK"
	StepFinalCheck        StepName = "FINAL_CHECK"
	StepFormatting        StepName = "FORMATTING"
)

// KnownSteps lists every step the orchestrator can dispatch.
var KnownSteps = []StepName{
	StepMedicalValidation,
	StepClassification,
	StepTextExtraction,
	StepPreprocessing,
	StepTranslation,
	StepFactCheck,
	StepFinalCheck,
	StepFormatting,
}

// Valid reports whether n is a dispatchable step name.
func (n StepName) Valid() bool {
	for _, known := range KnownSteps {
		if n == known {
			return true
		}
	}
	return false
}

// PromptScope distinguishes universal templates from type-scoped ones.
// The universal scope is stored as the empty document type.
type PromptScope string

const (
	ScopeUniversal    PromptScope = "universal"
	ScopeDocumentType PromptScope = "document_type"
)
