package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/storage"
)

type scopeKey struct {
	step    domain.StepName
	docType domain.DocumentType
}

type fakeTemplateSource struct {
	templates map[scopeKey]*storage.PromptTemplate
	calls     int
}

func (f *fakeTemplateSource) Active(_ context.Context, step domain.StepName, docType domain.DocumentType) (*storage.PromptTemplate, error) {
	f.calls++
	tpl, ok := f.templates[scopeKey{step, docType}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return tpl, nil
}

func TestResolvePrefersTypeSpecificTemplate(t *testing.T) {
	src := &fakeTemplateSource{templates: map[scopeKey]*storage.PromptTemplate{
		{domain.StepTranslation, ""}:                      {Step: domain.StepTranslation, Body: "universal", Version: 3},
		{domain.StepTranslation, domain.DocTypeLabReport}: {Step: domain.StepTranslation, DocumentType: domain.DocTypeLabReport, Body: "lab-specific", Version: 1},
	}}
	r := NewResolver(src)

	tpl, err := r.Resolve(context.Background(), domain.StepTranslation, domain.DocTypeLabReport)
	require.NoError(t, err)
	assert.Equal(t, "lab-specific", tpl.Body)
	assert.Equal(t, domain.DocTypeLabReport, tpl.DocumentType)
}

func TestResolveFallsBackToUniversal(t *testing.T) {
	src := &fakeTemplateSource{templates: map[scopeKey]*storage.PromptTemplate{
		{domain.StepTranslation, ""}: {Step: domain.StepTranslation, Body: "universal", Version: 2},
	}}
	r := NewResolver(src)

	tpl, err := r.Resolve(context.Background(), domain.StepTranslation, domain.DocTypeDoctorLetter)
	require.NoError(t, err)
	assert.Equal(t, "universal", tpl.Body)
	assert.Equal(t, 2, tpl.Version)
}

func TestResolveUniversalScopeSkipsTypeLookup(t *testing.T) {
	src := &fakeTemplateSource{templates: map[scopeKey]*storage.PromptTemplate{
		{domain.StepFormatting, ""}: {Step: domain.StepFormatting, Body: "format", Version: 1},
	}}
	r := NewResolver(src)

	tpl, err := r.Resolve(context.Background(), domain.StepFormatting, "")
	require.NoError(t, err)
	assert.Equal(t, "format", tpl.Body)
	assert.Equal(t, 1, src.calls)
}

func TestResolveMissingBothScopes(t *testing.T) {
	src := &fakeTemplateSource{templates: map[scopeKey]*storage.PromptTemplate{}}
	r := NewResolver(src)

	tpl, err := r.Resolve(context.Background(), domain.StepFactCheck, domain.DocTypePrescription)
	require.Error(t, err)
	assert.Nil(t, tpl)
	assert.Equal(t, domain.ErrorTypeMissingPrompt, domain.TypeOf(err))
}

func TestResolveIsIdempotent(t *testing.T) {
	src := &fakeTemplateSource{templates: map[scopeKey]*storage.PromptTemplate{
		{domain.StepTranslation, ""}: {Step: domain.StepTranslation, Body: "universal", Version: 5},
	}}
	r := NewResolver(src)

	first, err := r.Resolve(context.Background(), domain.StepTranslation, domain.DocTypeLabReport)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), domain.StepTranslation, domain.DocTypeLabReport)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Body, second.Body)
}
