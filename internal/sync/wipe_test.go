// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/westisland-it/assetsync/internal/models"
)

func TestWipeRefusesWithoutConfirmation(t *testing.T) {
	t.Parallel()

	dest := newFakeDestination()
	dest.addAsset(models.DestinationAsset{ID: 1, SerialNumber: "A"})

	_, err := NewWiper(dest).Wipe(context.Background(), WipeOptions{})
	checkErrorContains(t, err, "confirmation")
	checkIntEqual(t, "assets untouched", len(dest.assets), 1)
}

func TestWipeDeletesAllAssets(t *testing.T) {
	t.Parallel()

	dest := newFakeDestination()
	dest.addAsset(models.DestinationAsset{ID: 1, SerialNumber: "A"})
	dest.addAsset(models.DestinationAsset{ID: 2, SerialNumber: "B"})
	dest.addAsset(models.DestinationAsset{ID: 3, SerialNumber: "C"})

	result, err := NewWiper(dest).Wipe(context.Background(), WipeOptions{Confirmed: true})
	checkNoError(t, err)
	checkIntEqual(t, "deleted", result.AssetsDeleted, 3)
	checkIntEqual(t, "failed", result.AssetsFailed, 0)
	checkIntEqual(t, "remaining", result.Remaining, 0)
	checkIntEqual(t, "store emptied", len(dest.assets), 0)
}

func TestWipeChecksInAssignedAssetsFirst(t *testing.T) {
	t.Parallel()

	dest := newFakeDestination()
	dest.addAsset(models.DestinationAsset{ID: 1, SerialNumber: "A", AssignedTo: "Jane Smith"})
	dest.addAsset(models.DestinationAsset{ID: 2, SerialNumber: "B"})

	result, err := NewWiper(dest).Wipe(context.Background(), WipeOptions{Confirmed: true})
	checkNoError(t, err)
	checkIntEqual(t, "deleted", result.AssetsDeleted, 2)

	// Only the assigned asset needs a checkin before its delete.
	checkIntEqual(t, "checkins", len(dest.checkinCalls), 1)
	checkIntEqual(t, "checked-in asset", dest.checkinCalls[0], 1)
}

func TestWipeIsolatesPerAssetFailures(t *testing.T) {
	t.Parallel()

	dest := newFakeDestination()
	dest.addAsset(models.DestinationAsset{ID: 1, SerialNumber: "A"})
	dest.addAsset(models.DestinationAsset{ID: 2, SerialNumber: "B"})
	dest.addAsset(models.DestinationAsset{ID: 3, SerialNumber: "C"})
	dest.failAssetDelete[2] = errors.New("asset is locked")

	result, err := NewWiper(dest).Wipe(context.Background(), WipeOptions{Confirmed: true})
	checkErrorContains(t, err, "incomplete")
	checkIntEqual(t, "deleted", result.AssetsDeleted, 2)
	checkIntEqual(t, "failed", result.AssetsFailed, 1)
	checkIntEqual(t, "failures recorded", len(result.Failures), 1)
	checkStringEqual(t, "failed serial", result.Failures[0].SerialNumber, "B")
	checkIntEqual(t, "remaining after wipe", result.Remaining, 1)
}

func TestWipeModelsOnlyOnRequest(t *testing.T) {
	t.Parallel()

	dest := newFakeDestination()
	dest.addAsset(models.DestinationAsset{ID: 1, SerialNumber: "A"})
	_, _ = dest.CreateModel(context.Background(), "Staff MacBookPro16,2", 16)

	result, err := NewWiper(dest).Wipe(context.Background(), WipeOptions{Confirmed: true})
	checkNoError(t, err)
	checkIntEqual(t, "models deleted", result.ModelsDeleted, 0)
	checkIntEqual(t, "models remaining", len(dest.ms), 1)

	result, err = NewWiper(dest).Wipe(context.Background(), WipeOptions{Confirmed: true, DeleteModels: true})
	checkNoError(t, err)
	checkIntEqual(t, "models deleted", result.ModelsDeleted, 1)
	checkIntEqual(t, "models remaining", len(dest.ms), 0)
}

func TestWipeRestrictedToCategory(t *testing.T) {
	t.Parallel()

	dest := newFakeDestination()
	dest.addAsset(models.DestinationAsset{ID: 1, SerialNumber: "A", CategoryID: 15})
	dest.addAsset(models.DestinationAsset{ID: 2, SerialNumber: "B", CategoryID: 16})

	result, err := NewWiper(dest).Wipe(context.Background(), WipeOptions{Confirmed: true, CategoryID: 15})
	checkNoError(t, err)
	checkIntEqual(t, "deleted", result.AssetsDeleted, 1)
	if _, ok := dest.assets["B"]; !ok {
		t.Error("asset outside the wiped category must survive")
	}
}
