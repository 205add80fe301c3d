// Package ocr extracts text from scanned page images through an external
// OCR service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Dropicx/docworker/internal/config"
	"github.com/Dropicx/docworker/internal/domain"
)

// Engine extracts raw text from a page image.
type Engine interface {
	ExtractText(ctx context.Context, image []byte, filename string) (string, error)
}

// HTTPEngine calls a remote OCR service over HTTP. The service accepts a
// multipart upload and returns {"text": "..."}.
type HTTPEngine struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPEngine creates an engine from OCR configuration.
func NewHTTPEngine(cfg config.OCRConfig) *HTTPEngine {
	return &HTTPEngine{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type ocrResponse struct {
	Text string `json:"text"`
}

// ExtractText uploads the image and returns the recognized text. Service
// failures surface as transient model errors so the pipeline retries the
// extraction step instead of failing the run outright.
func (e *HTTPEngine) ExtractText(ctx context.Context, image []byte, filename string) (string, error) {
	if e.endpoint == "" {
		return "", domain.ConfigError("ocr endpoint not configured", nil)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create multipart form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("write image part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", domain.TransientModelError("ocr request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := fmt.Sprintf("ocr service returned status %d: %s", resp.StatusCode, string(detail))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", domain.TransientModelError(msg, nil)
		}
		return "", domain.PermanentModelError(msg, nil)
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	return parsed.Text, nil
}
