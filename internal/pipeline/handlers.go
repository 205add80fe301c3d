// Package pipeline runs configured processing steps against a document,
// producing one artifact per step and a full interaction audit trail.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/llm"
	"github.com/Dropicx/docworker/internal/ocr"
)

// StepContext carries everything a handler may consume: the resolved
// prompt, outputs of previously completed steps, and the rasterized pages
// for extraction. Handlers that parse a model verdict set Confidence;
// it is recorded with the step's audit entry and reset between steps.
type StepContext struct {
	DocumentID   uuid.UUID
	SessionID    uuid.UUID
	Filename     string
	DocumentType domain.DocumentType
	Prompt       string
	Artifacts    map[domain.StepName]string
	Pages        [][]byte
	Confidence   *float64
}

// Handler executes one pipeline step. Consumes lists prior steps whose
// output the handler reads, in preference order; the first one present
// in the run is used. An empty list means the handler needs no prior
// artifact.
type Handler interface {
	Name() domain.StepName
	Consumes() []domain.StepName
	Execute(ctx context.Context, sc *StepContext) (string, error)
}

// primaryInput returns the output of the first consumed step that has
// already produced an artifact.
func primaryInput(h Handler, sc *StepContext) (string, error) {
	for _, dep := range h.Consumes() {
		if out, ok := sc.Artifacts[dep]; ok {
			return out, nil
		}
	}
	return "", domain.ConfigError(
		fmt.Sprintf("step %s has no available input artifact", h.Name()), nil)
}

// extractionHandler recognizes text on the rasterized pages.
type extractionHandler struct {
	engine ocr.Engine
}

func (h *extractionHandler) Name() domain.StepName       { return domain.StepTextExtraction }
func (h *extractionHandler) Consumes() []domain.StepName { return nil }

func (h *extractionHandler) Execute(ctx context.Context, sc *StepContext) (string, error) {
	if len(sc.Pages) == 0 {
		return "", domain.ConfigError("no pages available for extraction", nil)
	}

	var parts []string
	for i, page := range sc.Pages {
		text, err := h.engine.ExtractText(ctx, page, fmt.Sprintf("%s-page-%d.png", sc.DocumentID, i+1))
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}

// modelHandler is the generic prompt-in, text-out step.
type modelHandler struct {
	name     domain.StepName
	consumes []domain.StepName
	invoker  llm.Invoker
}

func (h *modelHandler) Name() domain.StepName       { return h.name }
func (h *modelHandler) Consumes() []domain.StepName { return h.consumes }

func (h *modelHandler) Execute(ctx context.Context, sc *StepContext) (string, error) {
	input, err := primaryInput(h, sc)
	if err != nil {
		return "", err
	}
	return h.invoker.Invoke(ctx, sc.Prompt, input)
}

// medicalValidationHandler rejects documents the model deems non-medical.
type medicalValidationHandler struct {
	invoker llm.Invoker
}

func (h *medicalValidationHandler) Name() domain.StepName { return domain.StepMedicalValidation }
func (h *medicalValidationHandler) Consumes() []domain.StepName {
	return []domain.StepName{domain.StepTextExtraction}
}

func (h *medicalValidationHandler) Execute(ctx context.Context, sc *StepContext) (string, error) {
	input, err := primaryInput(h, sc)
	if err != nil {
		return "", err
	}
	out, err := h.invoker.Invoke(ctx, sc.Prompt, input)
	if err != nil {
		return "", err
	}
	sc.Confidence = confPtr(verdictConfidence(out, "MEDICAL", "NOT_MEDICAL"))
	if !parseMedicalVerdict(out) {
		return "", domain.StepValidationError(h.Name(), "document is not a medical document")
	}
	return out, nil
}

// classificationHandler asks the model for the document category. The
// raw model output is the artifact; the orchestrator parses the type.
type classificationHandler struct {
	invoker llm.Invoker
}

func (h *classificationHandler) Name() domain.StepName { return domain.StepClassification }
func (h *classificationHandler) Consumes() []domain.StepName {
	return []domain.StepName{domain.StepTextExtraction}
}

func (h *classificationHandler) Execute(ctx context.Context, sc *StepContext) (string, error) {
	input, err := primaryInput(h, sc)
	if err != nil {
		return "", err
	}
	out, err := h.invoker.Invoke(ctx, sc.Prompt, input)
	if err != nil {
		return "", err
	}
	sc.Confidence = confPtr(classificationConfidence(out))
	return out, nil
}

// factCheckHandler compares the translation against the extracted source
// and fails the run on an irreconcilable medical inconsistency.
type factCheckHandler struct {
	invoker llm.Invoker
}

func (h *factCheckHandler) Name() domain.StepName { return domain.StepFactCheck }
func (h *factCheckHandler) Consumes() []domain.StepName {
	return []domain.StepName{domain.StepTranslation}
}

func (h *factCheckHandler) Execute(ctx context.Context, sc *StepContext) (string, error) {
	translated, err := primaryInput(h, sc)
	if err != nil {
		return "", err
	}

	input := translated
	if source, ok := sc.Artifacts[domain.StepTextExtraction]; ok {
		input = "ORIGINAL DOCUMENT:\n" + source + "\n\nPATIENT VERSION:\n" + translated
	}

	out, err := h.invoker.Invoke(ctx, sc.Prompt, input)
	if err != nil {
		return "", err
	}
	sc.Confidence = confPtr(verdictConfidence(out, "CONSISTENT", "INCONSISTENT"))
	if consistent, detail := parseFactCheckVerdict(out); !consistent {
		return "", domain.StepValidationError(h.Name(), "fact check found inconsistencies: "+detail)
	}
	return out, nil
}

// DefaultHandlers builds the full handler set for the closed step
// enumeration.
func DefaultHandlers(invoker llm.Invoker, engine ocr.Engine) map[domain.StepName]Handler {
	return map[domain.StepName]Handler{
		domain.StepTextExtraction:    &extractionHandler{engine: engine},
		domain.StepMedicalValidation: &medicalValidationHandler{invoker: invoker},
		domain.StepClassification:    &classificationHandler{invoker: invoker},
		domain.StepPreprocessing: &modelHandler{
			name:     domain.StepPreprocessing,
			consumes: []domain.StepName{domain.StepTextExtraction},
			invoker:  invoker,
		},
		domain.StepTranslation: &modelHandler{
			name:     domain.StepTranslation,
			consumes: []domain.StepName{domain.StepPreprocessing, domain.StepTextExtraction},
			invoker:  invoker,
		},
		domain.StepFactCheck: &factCheckHandler{invoker: invoker},
		domain.StepFinalCheck: &modelHandler{
			name:     domain.StepFinalCheck,
			consumes: []domain.StepName{domain.StepTranslation},
			invoker:  invoker,
		},
		domain.StepFormatting: &modelHandler{
			name: domain.StepFormatting,
			consumes: []domain.StepName{
				domain.StepFinalCheck, domain.StepTranslation, domain.StepTextExtraction,
			},
			invoker: invoker,
		},
	}
}

// ParseDocumentType extracts a document type from free-form model output.
// Matching is case-insensitive and tolerates surrounding prose; anything
// unrecognized falls back to "other".
func ParseDocumentType(output string) domain.DocumentType {
	normalized := strings.ToLower(strings.TrimSpace(output))
	if t := domain.DocumentType(normalized); t.Valid() {
		return t
	}

	for _, known := range domain.KnownDocumentTypes {
		if known == domain.DocTypeOther {
			continue
		}
		token := string(known)
		spaced := strings.ReplaceAll(token, "_", " ")
		if strings.Contains(normalized, token) || strings.Contains(normalized, spaced) {
			return known
		}
	}
	return domain.DocTypeOther
}

// parseMedicalVerdict reads a MEDICAL / NOT_MEDICAL verdict. Ambiguous
// output counts as medical so borderline documents are not dropped.
func parseMedicalVerdict(output string) bool {
	upper := strings.ToUpper(output)
	if strings.Contains(upper, "NOT_MEDICAL") || strings.Contains(upper, "NOT MEDICAL") {
		return false
	}
	return true
}

// parseFactCheckVerdict reads the CONSISTENT / INCONSISTENT first-line
// protocol. The remainder of the output is the inconsistency detail.
func parseFactCheckVerdict(output string) (bool, string) {
	trimmed := strings.TrimSpace(output)
	firstLine := trimmed
	rest := ""
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine = trimmed[:idx]
		rest = strings.TrimSpace(trimmed[idx+1:])
	}

	if strings.Contains(strings.ToUpper(firstLine), "INCONSISTENT") {
		if rest == "" {
			rest = "no detail provided"
		}
		return false, rest
	}
	return true, ""
}

// classificationConfidence grades how directly the model output named a
// type: a bare identifier scores highest, a type found inside prose
// lower, and the fallback to "other" lowest.
func classificationConfidence(output string) float64 {
	normalized := strings.ToLower(strings.TrimSpace(output))
	if domain.DocumentType(normalized).Valid() {
		return 1.0
	}
	if ParseDocumentType(output) != domain.DocTypeOther {
		return 0.7
	}
	return 0.3
}

// verdictConfidence scores a first-line verdict protocol: an exact
// verdict token scores 1.0, anything needing tolerant parsing 0.5.
func verdictConfidence(output string, verdicts ...string) float64 {
	line := strings.TrimSpace(output)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	line = strings.ToUpper(line)
	for _, v := range verdicts {
		if line == v {
			return 1.0
		}
	}
	return 0.5
}

func confPtr(v float64) *float64 { return &v }
