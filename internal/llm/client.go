// Package llm invokes the configured language model through an
// OpenRouter-compatible chat completions endpoint. Errors are classified
// as transient or permanent so the pipeline can decide whether a step
// failure terminates the run.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Dropicx/docworker/internal/config"
	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/observability"
)

// Invoker is the model invocation surface the pipeline depends on.
type Invoker interface {
	Invoke(ctx context.Context, prompt, input string) (string, error)
	ModelName() string
}

// Client talks to an OpenRouter-style chat completions API.
type Client struct {
	cfg        config.ModelConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the chat completions request body.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Response is the chat completions response body.
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Error   *APIErr  `json:"error,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// APIErr is the error object some providers embed in a 200 response.
type APIErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewClient creates a model client from configuration.
func NewClient(cfg config.ModelConfig, logger *observability.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
	}
}

// ModelName returns the configured model identifier, recorded verbatim
// in interaction logs.
func (c *Client) ModelName() string {
	return c.cfg.Model
}

// Invoke sends the prompt as the system message and input as the user
// message, retrying transient failures with exponential backoff. The
// returned error, when non-nil, carries a transient or permanent
// classification.
func (c *Client) Invoke(ctx context.Context, prompt, input string) (string, error) {
	body, err := json.Marshal(Request{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: input},
		},
	})
	if err != nil {
		return "", domain.PermanentModelError("marshal request", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus(resp.StatusCode, string(respBody))
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", domain.PermanentModelError("decode response", err)
	}
	if parsed.Error != nil {
		return "", classifyStatus(parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", domain.PermanentModelError("response contained no choices", nil)
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// classifyStatus maps an HTTP status to the error taxonomy. Rate limits
// and server errors are transient; everything else is permanent.
func classifyStatus(statusCode int, detail string) error {
	msg := fmt.Sprintf("model API returned status %d: %s", statusCode, detail)
	if shouldRetry(statusCode) {
		return domain.TransientModelError(msg, nil)
	}
	return domain.PermanentModelError(msg, nil)
}
