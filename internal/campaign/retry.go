package campaign

// retry.go wraps the HTTP transport with retry logic for the campaign API.
//
// Retries use exponential backoff with full jitter. Only transient
// failures are retried (429, 5xx, network errors); client errors return
// immediately so the caller can surface the API's message.

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// Doer executes a single HTTP request. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryDoer wraps a Doer with bounded retries.
type RetryDoer struct {
	inner      Doer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryDoer wraps inner with up to maxRetries retry attempts after the
// initial request. A nil inner defaults to an http.Client with a 60s
// timeout.
func NewRetryDoer(inner Doer, maxRetries int) *RetryDoer {
	if inner == nil {
		inner = &http.Client{Timeout: 60 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryDoer{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Do executes req, retrying transient failures. The final attempt's
// response is returned as-is so callers can inspect status and body.
func (d *RetryDoer) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("reset request body: %w", err)
				}
				req.Body = body
			}

			delay := d.backoff(attempt)
			slog.Warn("retrying campaign API request",
				"attempt", attempt,
				"max_retries", d.maxRetries,
				"method", req.Method,
				"path", req.URL.Path,
				"delay", delay,
			)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := d.inner.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt == d.maxRetries {
			return resp, nil
		}

		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("campaign API returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// backoff returns the delay before retry attempt n, with full jitter.
func (d *RetryDoer) backoff(attempt int) time.Duration {
	exp := float64(d.baseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(d.maxDelay) {
		exp = float64(d.maxDelay)
	}
	jittered := time.Duration(rand.Float64() * exp)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
