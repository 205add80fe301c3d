package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/Dropicx/docworker/internal/domain"
)

// shouldRetry reports whether a status code is worth another attempt.
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError:
		return true
	case http.StatusBadGateway:
		return true
	case http.StatusServiceUnavailable:
		return true
	case http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff returns the wait before the given attempt, doubling
// from the initial backoff and capped at the configured maximum.
func calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	return time.Duration(backoff)
}

// retryWithBackoff executes reqFunc until it succeeds, returns a
// non-retryable status, or the retry budget is exhausted. Cancellation is
// honored both before each attempt and during the backoff wait.
func (c *Client) retryWithBackoff(ctx context.Context, reqFunc func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, domain.TransientModelError("request aborted", ctx.Err())
		default:
		}

		resp, err := reqFunc()
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.TransientModelError("request aborted", ctx.Err())
			}
			lastErr = err
		} else {
			if !shouldRetry(resp.StatusCode) {
				return resp, nil
			}
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			if resp.Body != nil {
				resp.Body.Close()
			}
		}

		if attempt == c.cfg.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, c.cfg.InitialBackoff, c.cfg.MaxBackoff)
		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", c.cfg.MaxRetries).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("model request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, domain.TransientModelError("request aborted", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return nil, domain.TransientModelError(
		fmt.Sprintf("request failed after %d retries", c.cfg.MaxRetries), lastErr)
}
