// Package prompt resolves the active instruction template for a pipeline
// step, preferring a document-type-specific template over the universal
// one.
package prompt

import (
	"context"
	"errors"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/storage"
)

// TemplateSource reads the active (highest-version) template for one
// (step, scope) pair. The empty document type is the universal scope.
type TemplateSource interface {
	Active(ctx context.Context, step domain.StepName, docType domain.DocumentType) (*storage.PromptTemplate, error)
}

// Resolver performs prompt lookups. Pure read against the template store;
// each call sees the configuration snapshot current at that moment.
type Resolver struct {
	source TemplateSource
}

// NewResolver creates a resolver over the given template source.
func NewResolver(source TemplateSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the active template for step: the type-specific one
// when docType is set and such a template exists, the universal template
// otherwise. A step with neither is a configuration defect surfaced as
// MissingPromptError, never silently skipped.
func (r *Resolver) Resolve(ctx context.Context, step domain.StepName, docType domain.DocumentType) (*storage.PromptTemplate, error) {
	if docType != "" {
		tpl, err := r.source.Active(ctx, step, docType)
		if err == nil {
			return tpl, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	tpl, err := r.source.Active(ctx, step, "")
	if err == nil {
		return tpl, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.MissingPromptError(step, docType)
	}
	return nil, err
}
