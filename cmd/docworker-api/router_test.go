package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dropicx/docworker/cmd/docworker-api/handlers"
	"github.com/Dropicx/docworker/internal/config"
	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/observability"
	"github.com/Dropicx/docworker/internal/pipeline"
	"github.com/Dropicx/docworker/internal/quality"
	"github.com/Dropicx/docworker/internal/storage"
)

type apiHarness struct {
	router    http.Handler
	repos     *storage.Repositories
	submitted chan pipeline.RunRequest
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "api.db")
	cfg.Database.SQLite.JournalMode = "DELETE"

	db, err := storage.Open(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db))

	repos := storage.NewRepositories(db)
	require.NoError(t, storage.Seed(ctx, repos))

	logger := observability.Nop()
	assessor := quality.NewAssessor(quality.StaticThreshold(cfg.Quality.MinThreshold))

	submitted := make(chan pipeline.RunRequest, 4)
	documents := handlers.NewDocumentHandler(logger, repos, assessor,
		func(req pipeline.RunRequest) { submitted <- req },
		cfg.Server.MaxUploadBytes)
	admin := handlers.NewAdminHandler(logger, repos,
		quality.StaticThreshold(cfg.Quality.MinThreshold), nil)

	return &apiHarness{
		router:    NewRouter(cfg, documents, admin),
		repos:     repos,
		submitted: submitted,
	}
}

func (h *apiHarness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// uploadRequest builds a multipart upload with a synthetic PNG. A fine
// checkerboard scores well on both blur and contrast; a flat gray image
// scores zero on both.
func uploadRequest(t *testing.T, filename string, flat bool) *http.Request {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if flat {
				img.SetGray(x, y, color.Gray{Y: 128})
			} else if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, img))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestUploadAdmittedSchedulesRun(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, uploadRequest(t, "laborwerte.png", false))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var dto handlers.UploadResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, string(domain.StatusPending), dto.Status)
	assert.GreaterOrEqual(t, dto.QualityScore, 0.5)
	assert.Equal(t, 1, dto.Pages)

	select {
	case req := <-h.submitted:
		assert.Equal(t, dto.DocumentID, req.DocumentID.String())
		assert.Equal(t, "laborwerte.png", req.Filename)
		require.Len(t, req.Pages, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("admitted upload was never handed to the pool")
	}
}

func TestUploadRejectedByQualityGate(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, uploadRequest(t, "blurry.png", true))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var dto handlers.QualityRejectionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Less(t, dto.ConfidenceScore, dto.MinThreshold)
	assert.Contains(t, dto.Issues, "poor_image_quality")
	assert.NotEmpty(t, dto.Suggestions)

	// The rejection is persisted as a terminal state.
	id, err := uuid.Parse(dto.DocumentID)
	require.NoError(t, err)
	doc, err := h.repos.Documents.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQualityRejected, doc.Status)

	// Nothing was scheduled.
	select {
	case <-h.submitted:
		t.Fatal("rejected upload must not reach the pool")
	default:
	}
}

func TestUploadRejectsUndecodableFile(t *testing.T) {
	h := newAPIHarness(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text, not an image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := h.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocumentAndArtifacts(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()

	doc := &storage.Document{Filename: "befund.pdf"}
	require.NoError(t, h.repos.Documents.Create(ctx, doc))
	sessionID := uuid.New()
	require.NoError(t, h.repos.Artifacts.Append(ctx, &storage.Artifact{
		DocumentID: doc.ID,
		SessionID:  sessionID,
		Step:       domain.StepTextExtraction,
		Content:    "Hb 13.5 g/dl",
	}))

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var dto handlers.DocumentDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "befund.pdf", dto.Filename)
	assert.Equal(t, string(domain.StatusPending), dto.Status)

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/artifacts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var wrapper struct {
		Artifacts []handlers.ArtifactDTO `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wrapper))
	require.Len(t, wrapper.Artifacts, 1)
	assert.Equal(t, string(domain.StepTextExtraction), wrapper.Artifacts[0].Step)

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListSteps(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/admin/steps", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var wrapper struct {
		Steps []handlers.StepConfigDTO `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wrapper))
	require.Len(t, wrapper.Steps, 8)
	assert.Equal(t, string(domain.StepTextExtraction), wrapper.Steps[0].Name)
}

func TestAdminUpsertStepOrderConflict(t *testing.T) {
	h := newAPIHarness(t)

	// Order 50 already belongs to the seeded TRANSLATION step.
	body := `{"name":"FACT_CHECK","display_name":"Fact Check","document_type":"lab_report","enabled":true,"order":50}`
	rec := h.do(t, httptest.NewRequest(http.MethodPut, "/api/v1/admin/steps", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	body = `{"name":"FACT_CHECK","display_name":"Fact Check","document_type":"lab_report","enabled":true,"order":60}`
	rec = h.do(t, httptest.NewRequest(http.MethodPut, "/api/v1/admin/steps", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	body = `{"name":"SUMMARIZATION","display_name":"x","enabled":true,"order":90}`
	rec = h.do(t, httptest.NewRequest(http.MethodPut, "/api/v1/admin/steps", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminPublishPrompt(t *testing.T) {
	h := newAPIHarness(t)

	body := `{"step":"TRANSLATION","document_type":"lab_report","body":"explain the lab values","updated_by":"ops"}`
	rec := h.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/admin/prompts", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var dto handlers.PromptDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, 1, dto.Version)

	rec = h.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/admin/prompts", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, 2, dto.Version)
}

func TestAdminThreshold(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/admin/quality/threshold", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var dto handlers.ThresholdDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.InDelta(t, 0.50, dto.MinThreshold, 1e-9)

	// Without a shared cache the threshold is read-only.
	rec = h.do(t, httptest.NewRequest(http.MethodPut, "/api/v1/admin/quality/threshold",
		strings.NewReader(`{"min_threshold":0.6}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
