// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package models

import (
	"math"
	"sync"
	"testing"
)

func TestRunSummaryRecord(t *testing.T) {
	t.Parallel()

	s := NewRunSummary("jamf", false)
	if s.RunID == "" {
		t.Error("run id should be generated")
	}

	s.Record(OutcomeCreated)
	s.Record(OutcomeCreated)
	s.Record(OutcomeUpdated)
	s.Record(OutcomeUnchanged)
	s.Record(OutcomeSkipped)

	if s.Created != 2 || s.Updated != 1 || s.Unchanged != 1 || s.Skipped != 1 {
		t.Errorf("counters wrong: %+v", s)
	}
	if !s.Clean() {
		t.Error("run with no failures should be clean")
	}
}

func TestRunSummaryRecordFailure(t *testing.T) {
	t.Parallel()

	s := NewRunSummary("all", false)
	s.RecordFailure(DeviceFailure{SerialNumber: "X1", Source: "kandji", Stage: "fetch", Reason: "no serial"})

	if s.Failed != 1 {
		t.Errorf("failed = %d, want 1", s.Failed)
	}
	if len(s.Failures) != 1 || s.Failures[0].SerialNumber != "X1" {
		t.Errorf("failures = %+v", s.Failures)
	}
	if s.Clean() {
		t.Error("run with a failure is not clean")
	}
}

func TestRunSummarySuccessRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		total int
		fill  func(*RunSummary)
		want  float64
	}{
		{"empty run", 0, func(s *RunSummary) {}, 100},
		{
			"all succeeded", 4,
			func(s *RunSummary) {
				s.Record(OutcomeCreated)
				s.Record(OutcomeUpdated)
				s.Record(OutcomeUnchanged)
				s.Record(OutcomeSkipped)
			},
			100,
		},
		{
			"one of four failed", 4,
			func(s *RunSummary) {
				s.Record(OutcomeCreated)
				s.Record(OutcomeCreated)
				s.Record(OutcomeUnchanged)
				s.RecordFailure(DeviceFailure{SerialNumber: "X"})
			},
			75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewRunSummary("all", false)
			s.TotalDevices = tt.total
			tt.fill(s)
			if got := s.SuccessRate(); math.Abs(got-tt.want) > 0.001 {
				t.Errorf("success rate = %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

// Workers record outcomes concurrently; the counters must not lose updates.
func TestRunSummaryConcurrentRecording(t *testing.T) {
	t.Parallel()

	s := NewRunSummary("all", false)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Record(OutcomeCreated)
				s.UserMapped()
				s.AddRetries(1)
			}
		}()
	}
	wg.Wait()

	if s.Created != 800 || s.UsersMapped != 800 || s.Retries != 800 {
		t.Errorf("lost updates: created=%d mapped=%d retries=%d", s.Created, s.UsersMapped, s.Retries)
	}
}

func TestVerifyReportAccuracy(t *testing.T) {
	t.Parallel()

	empty := &VerifyReport{}
	if got := empty.Accuracy(); got != 100 {
		t.Errorf("empty source accuracy = %.2f, want 100", got)
	}
	if !empty.InSync() {
		t.Error("empty report should be in sync")
	}

	partial := &VerifyReport{SourceTotal: 3, Synced: 2, MissingSerials: []string{"C"}}
	if got := partial.Accuracy(); math.Abs(got-66.6667) > 0.001 {
		t.Errorf("accuracy = %.4f, want 66.6667", got)
	}
	if partial.InSync() {
		t.Error("report with missing serials is not in sync")
	}

	extraOnly := &VerifyReport{SourceTotal: 2, Synced: 2, ExtraSerials: []string{"Z"}}
	if !extraOnly.InSync() {
		t.Error("extra destination records do not break sync")
	}
}
