// Package httpx is the shared bounded-retry HTTP helper used by the
// Forecast Client (C3) and Market Client (C4): exponential backoff with
// jitter on transient failures (network error, 5xx, 429 honoring
// Retry-After), no retry on 4xx, per spec.md §4.3.
package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// TransientError marks an error as eligible for retry.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Retrier performs GET requests with bounded retry/backoff/jitter and a
// token-bucket rate limit.
type Retrier struct {
	HTTPClient  *http.Client
	Limiter     *rate.Limiter
	MaxRetries  int
	BackoffBase time.Duration
	Now         func() time.Time
	Rand        *rand.Rand
}

// NewRetrier builds a Retrier with sane production defaults.
func NewRetrier(hc *http.Client, limiter *rate.Limiter, maxRetries int) *Retrier {
	return &Retrier{
		HTTPClient:  hc,
		Limiter:     limiter,
		MaxRetries:  maxRetries,
		BackoffBase: 200 * time.Millisecond,
		Now:         time.Now,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Get performs the bounded-retry GET against url with the given headers.
func (r *Retrier) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			var te *TransientError
			if errors.As(lastErr, &te) && te.RetryAfter > 0 {
				delay = te.RetryAfter
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := r.doGet(ctx, url, headers)
		if err == nil {
			return body, nil
		}

		var te *TransientError
		if !errors.As(err, &te) {
			return nil, err // 4xx / schema error: no retry
		}
		lastErr = err
	}

	return nil, fmt.Errorf("httpx: exhausted %d retries: %w", r.MaxRetries, lastErr)
}

func (r *Retrier) doGet(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if readErr != nil {
		return nil, &TransientError{Err: readErr}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &TransientError{
			Err:        fmt.Errorf("httpx: 429 rate limited"),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("httpx: server error %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("httpx: client error %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return body, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func (r *Retrier) backoff(attempt int) time.Duration {
	base := r.BackoffBase << uint(attempt-1)
	jitter := time.Duration(r.Rand.Int63n(int64(base) + 1))
	return base + jitter
}
