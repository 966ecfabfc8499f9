// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
executor.go - Rate-Limited Request Executor

Every outbound HTTP call made by the source adapters and the destination
client goes through an Executor. The executor enforces proactive pacing
(a shared token-bucket limiter per host, so concurrency never multiplies the
request rate) and reactive retry with exponential backoff.

Retry policy:
  - HTTP 429: retried, honoring the Retry-After header (RFC 6585) if present
  - HTTP 5xx: retried with exponential backoff
  - Connection-level failures (DNS, TLS, connect/read timeout): retried
  - Other 4xx (400/401/404/...): surfaced immediately, never retried
  - Retry budget exhausted: terminal RequestError with Retriable=true

Backoff delays double per attempt from the configured base, capped at the
configured maximum. Waits are cancellable through the request context.
*/
package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/westisland-it/assetsync/internal/config"
	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/metrics"
)

// maxErrorBodySize limits how much of a response body is read for error
// reporting, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// readBodyForError reads the response body for error reporting (max 64KB).
// Returns the body content or a placeholder message if reading fails.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}

// RequestBuilder constructs a fresh *http.Request for one attempt. Requests
// with bodies cannot be replayed, so the executor rebuilds the request before
// every retry instead of reusing one.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Executor wraps outbound HTTP calls with pacing, retry, and backoff shared
// by the source adapters and the destination reconciler. One Executor serves
// one host; its limiter is shared by all workers talking to that host.
//
// Thread Safety: safe for concurrent use.
type Executor struct {
	client     *http.Client
	limiter    *rate.Limiter
	host       string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	retries  atomic.Int64
	apiCalls atomic.Int64
}

// NewExecutor creates an executor for the named host using the run's pacing
// configuration. The limiter admits one request per RateLimitDelay with no
// burst, which keeps the request rate flat even under a worker pool.
func NewExecutor(client *http.Client, cfg *config.SyncConfig, host string) *Executor {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	interval := cfg.RateLimitDelay
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Executor{
		client:     client,
		limiter:    limiter,
		host:       host,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryDelay,
		maxDelay:   cfg.RetryMaxDelay,
	}
}

// Do executes the request with pacing and retry. On success the response is
// returned with its body open; the caller must close it. Any non-2xx terminal
// outcome is converted into a *RequestError and the body is consumed.
func (e *Executor) Do(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	var lastErr error
	var lastStatus int

	attempts := e.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Host: e.host, Attempts: attempt, Err: err}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, &RequestError{Host: e.host, Attempts: attempt + 1, Err: fmt.Errorf("build request: %w", err)}
		}

		start := time.Now()
		e.apiCalls.Add(1)
		resp, err := e.client.Do(req)
		metrics.APIRequestDuration.WithLabelValues(e.host).Observe(time.Since(start).Seconds())

		if err != nil {
			// Connection-level failure: retried like a 5xx unless the
			// context itself is done.
			if ctx.Err() != nil {
				return nil, &RequestError{Host: e.host, Attempts: attempt + 1, Err: ctx.Err()}
			}
			lastErr = err
			lastStatus = 0
			metrics.APIRetries.WithLabelValues(e.host, "connection").Inc()
			if !e.backoff(ctx, attempt, "") {
				break
			}
			continue
		}

		if resp.StatusCode < 400 {
			metrics.APIRequests.WithLabelValues(e.host, "success").Inc()
			return resp, nil
		}

		if !retriableStatus(resp.StatusCode) {
			body := readBodyForError(resp.Body)
			resp.Body.Close()
			metrics.APIRequests.WithLabelValues(e.host, "failed").Inc()
			return nil, &RequestError{
				Host:     e.host,
				Status:   resp.StatusCode,
				Attempts: attempt + 1,
				Err:      fmt.Errorf("%s: %s", resp.Status, body),
			}
		}

		retryAfter := resp.Header.Get("Retry-After")
		lastStatus = resp.StatusCode
		lastErr = fmt.Errorf("server returned %s", resp.Status)
		resp.Body.Close()

		trigger := "server_error"
		if resp.StatusCode == http.StatusTooManyRequests {
			trigger = "rate_limited"
		}
		metrics.APIRetries.WithLabelValues(e.host, trigger).Inc()

		if !e.backoff(ctx, attempt, retryAfter) {
			break
		}
	}

	metrics.APIRequests.WithLabelValues(e.host, "failed").Inc()
	return nil, &RequestError{
		Host:      e.host,
		Status:    lastStatus,
		Attempts:  attempts,
		Retriable: true,
		Err:       fmt.Errorf("retry budget exhausted: %w", lastErr),
	}
}

// backoff sleeps before the next attempt and returns false when the budget is
// spent or the context is cancelled. retryAfter, when non-empty, overrides
// the computed delay (server-provided seconds, RFC 6585).
func (e *Executor) backoff(ctx context.Context, attempt int, retryAfter string) bool {
	if attempt >= e.maxRetries-1 {
		return false
	}

	delay := e.baseDelay * time.Duration(1<<uint(attempt))
	if e.maxDelay > 0 && delay > e.maxDelay {
		delay = e.maxDelay
	}
	if retryAfter != "" {
		if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
			delay = seconds
		}
	}

	e.retries.Add(1)
	logging.Warn().
		Str("host", e.host).
		Dur("retry_delay", delay).
		Int("attempt", attempt+1).
		Int("max_retries", e.maxRetries).
		Msg("transient request failure, retrying")

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// Retries returns the number of retry waits performed since creation.
func (e *Executor) Retries() int {
	return int(e.retries.Load())
}

// APICalls returns the number of HTTP requests issued since creation.
func (e *Executor) APICalls() int {
	return int(e.apiCalls.Load())
}
