// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package sync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/westisland-it/assetsync/internal/config"
)

// testSyncConfig returns pacing config with near-zero delays so retry tests
// finish quickly.
func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		RateLimitDelay: 0,
		RetryDelay:     time.Millisecond,
		RetryMaxDelay:  10 * time.Millisecond,
		MaxRetries:     5,
		PageSize:       200,
		Workers:        2,
		HTTPTimeout:    5 * time.Second,
	}
}

func getBuilder(url string) RequestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	}
}

func TestExecutorSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	exec := NewExecutor(server.Client(), testSyncConfig(), "test")
	resp, err := exec.Do(context.Background(), getBuilder(server.URL))
	checkNoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	checkNoError(t, err)
	checkStringEqual(t, "body", string(body), "ok")
	checkIntEqual(t, "api calls", exec.APICalls(), 1)
	checkIntEqual(t, "retries", exec.Retries(), 0)
}

func TestExecutorPersistentRateLimitExhaustsBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testSyncConfig()
	cfg.MaxRetries = 3

	exec := NewExecutor(server.Client(), cfg, "test")
	_, err := exec.Do(context.Background(), getBuilder(server.URL))
	checkError(t, err)

	// A persistently rate-limited endpoint is attempted exactly MaxRetries
	// times, then surfaced as a terminal retriable error.
	checkIntEqual(t, "attempts", int(calls.Load()), 3)
	checkBoolEqual(t, "retriable", IsRetriable(err), true)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %T", err)
	}
	checkIntEqual(t, "status", reqErr.Status, http.StatusTooManyRequests)
	checkIntEqual(t, "reported attempts", reqErr.Attempts, 3)
}

func TestExecutorClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"unauthorized", http.StatusUnauthorized},
		{"bad request", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int64
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			exec := NewExecutor(server.Client(), testSyncConfig(), "test")
			_, err := exec.Do(context.Background(), getBuilder(server.URL))
			checkError(t, err)

			// Client errors other than 429 are surfaced on the first call.
			checkIntEqual(t, "attempts", int(calls.Load()), 1)
			checkBoolEqual(t, "retriable", IsRetriable(err), false)
			checkErrorContains(t, err, "nope")
		})
	}
}

func TestExecutorRecoversAfterServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := NewExecutor(server.Client(), testSyncConfig(), "test")
	resp, err := exec.Do(context.Background(), getBuilder(server.URL))
	checkNoError(t, err)
	resp.Body.Close()

	checkIntEqual(t, "attempts", int(calls.Load()), 3)
	checkIntEqual(t, "retries", exec.Retries(), 2)
}

func TestExecutorHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Retry-After of zero seconds; the point is that the header
			// parses and overrides the computed delay, not the wait itself.
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testSyncConfig()
	cfg.RetryDelay = time.Hour // would hang the test if Retry-After were ignored

	exec := NewExecutor(server.Client(), cfg, "test")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := exec.Do(ctx, getBuilder(server.URL))
	checkNoError(t, err)
	resp.Body.Close()
	checkIntEqual(t, "attempts", int(calls.Load()), 2)
}

func TestExecutorContextCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testSyncConfig()
	cfg.RetryDelay = time.Hour

	exec := NewExecutor(server.Client(), cfg, "test")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := exec.Do(ctx, getBuilder(server.URL))
	checkError(t, err)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, backoff wait is not honoring the context", elapsed)
	}
}

func TestExecutorSharedLimiterPacesConcurrentCallers(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testSyncConfig()
	cfg.RateLimitDelay = 30 * time.Millisecond

	exec := NewExecutor(server.Client(), cfg, "test")

	const callers = 4
	start := time.Now()
	done := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			resp, err := exec.Do(context.Background(), getBuilder(server.URL))
			if resp != nil {
				resp.Body.Close()
			}
			done <- err
		}()
	}
	for i := 0; i < callers; i++ {
		checkNoError(t, <-done)
	}

	// Four callers through one limiter at 30ms intervals cannot finish in
	// under ~90ms; generous lower bound to avoid flake.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("four concurrent calls finished in %v, limiter is not shared", elapsed)
	}
}

func TestReadBodyForError(t *testing.T) {
	t.Parallel()

	t.Run("normal body", func(t *testing.T) {
		got := readBodyForError(strings.NewReader("error detail"))
		checkStringEqual(t, "body", string(got), "error detail")
	})

	t.Run("oversized body truncated", func(t *testing.T) {
		got := readBodyForError(strings.NewReader(strings.Repeat("x", maxErrorBodySize+100)))
		if !strings.HasSuffix(string(got), "(truncated)") {
			t.Errorf("expected truncation marker, got tail %q", string(got[len(got)-20:]))
		}
	})
}
