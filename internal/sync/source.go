// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package sync

import (
	"context"

	"github.com/westisland-it/assetsync/internal/models"
)

// SourceAdapter is the capability set every MDM source implements. The
// orchestrator and verifier are written against this interface, so adding a
// vendor means adding one client, not another sync engine.
//
// FetchAllDevices returns the full inventory snapshot. It must paginate from
// page zero (restartable, not resumable) and must not abort the fetch when a
// single device's detail call fails: such devices are returned in the failure
// slice instead, so the run can report them without losing the rest.
type SourceAdapter interface {
	// Name identifies the source in logs and summaries ("jamf", "kandji",
	// "intune").
	Name() string

	// Ping verifies connectivity and credentials without mutating anything.
	Ping(ctx context.Context) error

	// FetchAllDevices returns every device the source knows about, plus
	// per-device failures for records that could not be fully fetched.
	// The returned error is reserved for total failures (auth, first page
	// unreachable); partial trouble goes in the failure slice.
	FetchAllDevices(ctx context.Context) ([]models.SourceDevice, []models.DeviceFailure, error)
}
