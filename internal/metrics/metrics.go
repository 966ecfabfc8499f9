// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

// Package metrics provides Prometheus instrumentation for the sync engine:
// outbound API call volume and retries, circuit breaker state, per-outcome
// device counts, and end-to-end run duration. Metrics are exposed on demand
// by the CLI via the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Request Metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_api_requests_total",
			Help: "Total outbound API requests by host and result",
		},
		[]string{"host", "result"}, // result: "success", "retried", "failed"
	)

	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_api_retries_total",
			Help: "Total retry attempts by host and trigger",
		},
		[]string{"host", "trigger"}, // trigger: "rate_limited", "server_error", "timeout", "connection"
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetsync_api_request_duration_seconds",
			Help:    "Duration of outbound API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker by outcome",
		},
		[]string{"name", "outcome"}, // outcome: "success", "failure", "rejected"
	)

	// Sync Run Metrics
	DevicesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_devices_processed_total",
			Help: "Devices processed by source and outcome",
		},
		[]string{"source", "outcome"}, // outcome: "created", "updated", "unchanged", "failed", "skipped"
	)

	UsersMapped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_users_mapped_total",
			Help: "Destination user lookups by result",
		},
		[]string{"result"}, // result: "mapped", "not_found"
	)

	SyncAccuracy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetsync_verify_accuracy_percent",
			Help: "Verifier-reported sync accuracy percentage per source",
		},
		[]string{"source"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetsync_run_duration_seconds",
			Help:    "Duration of complete sync runs in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
		[]string{"source", "mode"}, // mode: "sync", "dry_run", "verify", "wipe"
	)

	ModelCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetsync_model_cache_hits_total",
			Help: "Model lookups served from the run-scoped cache",
		},
	)

	ModelCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetsync_model_cache_misses_total",
			Help: "Model lookups that required a destination round trip",
		},
	)
)
