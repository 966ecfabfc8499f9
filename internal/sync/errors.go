// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package sync

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError is the terminal error surfaced by the request executor.
// Retriable reports whether the failure was transient (rate limit, 5xx,
// timeout, connection error) and exhausted its retry budget, as opposed to a
// client error (4xx other than 429) that retrying cannot fix.
type RequestError struct {
	Host      string
	Status    int // HTTP status; 0 for connection-level failures
	Attempts  int
	Retriable bool
	Err       error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: request failed with status %d after %d attempt(s): %v", e.Host, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: request failed after %d attempt(s): %v", e.Host, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsRetriable reports whether err is a RequestError of the transient class.
func IsRetriable(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Retriable
}

// IsNotFound reports whether err is a RequestError carrying HTTP 404.
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// IsAuthError reports whether err is a RequestError carrying HTTP 401/403.
func IsAuthError(err error) bool {
	var re *RequestError
	if !errors.As(err, &re) {
		return false
	}
	return re.Status == http.StatusUnauthorized || re.Status == http.StatusForbidden
}

// retriableStatus reports whether an HTTP status should be retried:
// 429 and all 5xx. Other 4xx statuses indicate a data or auth problem that
// retrying will not fix.
func retriableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// ReconcileError wraps a failure to reconcile one device, carrying the serial
// for traceability. The orchestrator converts these into summary counters;
// they never propagate past the run boundary.
type ReconcileError struct {
	SerialNumber string
	Stage        string // "model", "lookup", "create", "update", "checkout"
	Err          error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s failed at %s: %v", e.SerialNumber, e.Stage, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }
