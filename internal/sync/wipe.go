// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
wipe.go - Destructive Destination Reset

Removes every hardware record from the destination, checking assigned assets
in first because the API refuses to delete a checked-out asset. Model records
are only purged on explicit request; orphaned models are harmless and the
next sync recreates any it needs.

This path is never reachable without the caller passing Confirmed. The CLI
additionally demands a typed confirmation phrase before setting it.
*/
package sync

import (
	"context"
	"fmt"

	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/models"
)

// WipeOptions controls the wipe scope.
type WipeOptions struct {
	// Confirmed must be true or the wipe refuses to start.
	Confirmed bool

	// CategoryID restricts the wipe to one asset category. Zero wipes all.
	CategoryID int

	// DeleteModels purges model records after the assets are gone.
	DeleteModels bool
}

// WipeResult reports what a wipe run removed.
type WipeResult struct {
	AssetsDeleted int
	AssetsFailed  int
	ModelsDeleted int
	ModelsFailed  int

	// Remaining is the asset count found by the post-wipe verification
	// listing. Nonzero with zero failures means records appeared mid-wipe.
	Remaining int

	Failures []models.DeviceFailure
}

// Wiper deletes destination records.
type Wiper struct {
	dest Destination
}

// NewWiper creates a wiper over an existing destination client.
func NewWiper(dest Destination) *Wiper {
	return &Wiper{dest: dest}
}

// Wipe removes assets (and optionally models) from the destination. One
// failing record never stops the run; it is counted and reported.
func (w *Wiper) Wipe(ctx context.Context, opts WipeOptions) (*WipeResult, error) {
	if !opts.Confirmed {
		return nil, fmt.Errorf("wipe requires explicit confirmation")
	}

	assets, err := w.dest.ListAssets(ctx, opts.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("list assets for wipe: %w", err)
	}

	logging.Warn().Int("assets", len(assets)).Int("category_id", opts.CategoryID).Bool("delete_models", opts.DeleteModels).Msg("starting destructive wipe")

	result := &WipeResult{}
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := w.deleteAsset(ctx, asset); err != nil {
			result.AssetsFailed++
			result.Failures = append(result.Failures, models.DeviceFailure{
				SerialNumber: asset.SerialNumber,
				Stage:        "wipe",
				Reason:       err.Error(),
			})
			logging.Error().Str("serial", asset.SerialNumber).Int("asset_id", asset.ID).Err(err).Msg("failed to delete asset")
			continue
		}
		result.AssetsDeleted++
	}

	if opts.DeleteModels {
		w.deleteModels(ctx, result)
	}

	remaining, err := w.dest.ListAssets(ctx, opts.CategoryID)
	if err != nil {
		logging.Error().Err(err).Msg("post-wipe verification listing failed")
	} else {
		result.Remaining = len(remaining)
	}

	logging.Warn().
		Int("assets_deleted", result.AssetsDeleted).
		Int("assets_failed", result.AssetsFailed).
		Int("models_deleted", result.ModelsDeleted).
		Int("models_failed", result.ModelsFailed).
		Int("remaining", result.Remaining).
		Msg("wipe complete")

	if result.AssetsFailed > 0 || result.ModelsFailed > 0 {
		return result, fmt.Errorf("wipe incomplete: %d assets and %d models failed", result.AssetsFailed, result.ModelsFailed)
	}
	return result, nil
}

// deleteAsset checks an assigned asset in first, then deletes it.
func (w *Wiper) deleteAsset(ctx context.Context, asset models.DestinationAsset) error {
	if asset.AssignedTo != "" {
		if err := w.dest.CheckinAsset(ctx, asset.ID, true); err != nil {
			return fmt.Errorf("checkin before delete: %w", err)
		}
	}
	if err := w.dest.DeleteAsset(ctx, asset.ID); err != nil {
		return err
	}
	logging.Debug().Str("serial", asset.SerialNumber).Int("asset_id", asset.ID).Msg("deleted asset")
	return nil
}

// deleteModels purges model records. Failures are counted, not fatal; a
// model still referenced by an asset outside the wipe scope is refused by
// the API and lands here.
func (w *Wiper) deleteModels(ctx context.Context, result *WipeResult) {
	ms, err := w.dest.ListModels(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("failed to list models for wipe")
		result.ModelsFailed++
		return
	}
	for _, m := range ms {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := w.dest.DeleteModel(ctx, m.ID); err != nil {
			result.ModelsFailed++
			logging.Error().Str("model", m.Name).Int("model_id", m.ID).Err(err).Msg("failed to delete model")
			continue
		}
		result.ModelsDeleted++
		logging.Debug().Str("model", m.Name).Int("model_id", m.ID).Msg("deleted model")
	}
}
