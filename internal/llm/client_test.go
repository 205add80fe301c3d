package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dropicx/docworker/internal/config"
	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/observability"
)

func testModelConfig(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		BaseURL:        baseURL,
		Model:          "test/model",
		APIKey:         "test-key",
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func completionBody(content string) []byte {
	body, _ := json.Marshal(Response{
		ID: "gen-1",
		Choices: []Choice{
			{Message: Message{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
	})
	return body
}

func TestInvokeReturnsTrimmedOutput(t *testing.T) {
	var gotReq Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write(completionBody("  translated text \n"))
	}))
	defer server.Close()

	client := NewClient(testModelConfig(server.URL), observability.Nop())
	out, err := client.Invoke(context.Background(), "system prompt", "user input")
	require.NoError(t, err)
	assert.Equal(t, "translated text", out)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "system prompt", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.Equal(t, "user input", gotReq.Messages[1].Content)
	assert.Equal(t, "test/model", gotReq.Model)
}

func TestInvokeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(completionBody("ok"))
	}))
	defer server.Close()

	client := NewClient(testModelConfig(server.URL), observability.Nop())
	out, err := client.Invoke(context.Background(), "p", "i")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvokeClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request"}}`))
	}))
	defer server.Close()

	client := NewClient(testModelConfig(server.URL), observability.Nop())
	_, err := client.Invoke(context.Background(), "p", "i")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeModelPermanent, domain.TypeOf(err))
	assert.False(t, domain.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestInvokeExhaustedRetriesIsTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(testModelConfig(server.URL), observability.Nop())
	_, err := client.Invoke(context.Background(), "p", "i")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestInvokeEmbeddedErrorObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"gen-2","error":{"code":404,"message":"model not found"}}`))
	}))
	defer server.Close()

	client := NewClient(testModelConfig(server.URL), observability.Nop())
	_, err := client.Invoke(context.Background(), "p", "i")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeModelPermanent, domain.TypeOf(err))
}

func TestInvokeHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testModelConfig(server.URL)
	cfg.InitialBackoff = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(cfg, observability.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := client.Invoke(ctx, "p", "i")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("invoke did not return after cancellation")
	}
}

func TestBackoffDoublingAndCap(t *testing.T) {
	initial := 1 * time.Second
	max := 30 * time.Second

	assert.Equal(t, 1*time.Second, calculateBackoff(0, initial, max))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, initial, max))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, initial, max))
	assert.Equal(t, 30*time.Second, calculateBackoff(10, initial, max))
}
