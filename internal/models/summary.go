// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeviceFailure records one device that could not be fetched or reconciled.
// Failures never abort a run; they accumulate here for the final report.
type DeviceFailure struct {
	SerialNumber string `json:"serial_number"`
	Source       string `json:"source"`
	Stage        string `json:"stage"` // "fetch", "detail", "reconcile", "checkout"
	Reason       string `json:"reason"`
}

// RunSummary accumulates counters across one sync run. All mutating methods
// are safe for concurrent use by the orchestrator's workers. A summary is
// scoped to a single run and never persisted beyond logs.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	DryRun    bool      `json:"dry_run"`
	StartedAt time.Time `json:"started_at"`
	Duration  time.Duration

	TotalDevices  int `json:"total_devices"`
	Computers     int `json:"computers"`
	MobileDevices int `json:"mobile_devices"`

	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	UsersMapped   int `json:"users_mapped"`
	UsersNotFound int `json:"users_not_found"`
	Degraded      int `json:"degraded"` // detail fetch failed, synced from list data

	APICalls int `json:"api_calls"`
	Retries  int `json:"retries"`

	Failures []DeviceFailure `json:"failures,omitempty"`

	mu sync.Mutex
}

// NewRunSummary creates a summary for one run against the named source.
func NewRunSummary(source string, dryRun bool) *RunSummary {
	return &RunSummary{
		RunID:     uuid.NewString(),
		Source:    source,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
}

// Record tallies one reconcile outcome.
func (s *RunSummary) Record(outcome ReconcileOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch outcome {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// RecordFailure tallies a per-device failure with its reason.
func (s *RunSummary) RecordFailure(f DeviceFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	s.Failures = append(s.Failures, f)
}

// UserMapped increments the users-mapped counter.
func (s *RunSummary) UserMapped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UsersMapped++
}

// UserNotFound increments the users-not-found counter. A missing destination
// user is not a reconcile failure.
func (s *RunSummary) UserNotFound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UsersNotFound++
}

// DegradedDevice tallies a device synced from list data after its detail
// fetch failed.
func (s *RunSummary) DegradedDevice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Degraded++
}

// AddRetries folds retry counts reported by the request executor into the
// summary.
func (s *RunSummary) AddRetries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Retries += n
}

// SuccessRate returns the percentage of devices that ended created, updated,
// or unchanged. Returns 100 for an empty run.
func (s *RunSummary) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TotalDevices == 0 {
		return 100.0
	}
	ok := s.Created + s.Updated + s.Unchanged + s.Skipped
	return float64(ok) / float64(s.TotalDevices) * 100.0
}

// Clean reports whether the run finished with zero failures.
func (s *RunSummary) Clean() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Failed == 0
}

// VerifyReport is the verifier's output: the set difference between source
// and destination serials, computed both ways, plus the derived accuracy.
type VerifyReport struct {
	SourceTotal      int      `json:"source_total"`
	DestinationTotal int      `json:"destination_total"`
	Synced           int      `json:"synced"`
	MissingSerials   []string `json:"missing_from_destination,omitempty"`
	ExtraSerials     []string `json:"extra_in_destination,omitempty"`
	AssignedCount    int      `json:"assigned_count"`
}

// Accuracy returns the synced percentage relative to the source inventory.
// An empty source counts as fully synced.
func (r *VerifyReport) Accuracy() float64 {
	if r.SourceTotal == 0 {
		return 100.0
	}
	return float64(r.Synced) / float64(r.SourceTotal) * 100.0
}

// InSync reports whether every source serial exists in the destination.
func (r *VerifyReport) InSync() bool {
	return len(r.MissingSerials) == 0
}
