// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
reconciler.go - Asset Reconciliation

Takes one normalized asset descriptor and makes the destination match it:
resolve the category-qualified model (create on first sight), look the asset
up by serial, then create it or patch only the fields that differ. A device
whose asset already matches produces no write at all, so repeated runs over
an unchanged fleet are no-ops.

Model and user lookups are cached for the life of one run. The caches are
never carried across runs; renames and deletions in the destination are
picked up by the next run's first lookup.
*/
package sync

import (
	"context"
	"strings"
	"sync"

	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/metrics"
	"github.com/westisland-it/assetsync/internal/models"
)

// Destination is the destination-side API surface the reconciler needs.
// Satisfied by both SnipeITClient and BreakerClient.
type Destination interface {
	Ping(ctx context.Context) error
	GetAssetBySerial(ctx context.Context, serial string) (*models.DestinationAsset, error)
	CreateAsset(ctx context.Context, desc *models.AssetDescriptor, modelID int) (int, error)
	UpdateAsset(ctx context.Context, assetID int, patch map[string]any) error
	CheckoutAsset(ctx context.Context, assetID, userID int) error
	CheckinAsset(ctx context.Context, assetID int, ignoreAlreadyIn bool) error
	DeleteAsset(ctx context.Context, assetID int) error
	FindModel(ctx context.Context, name string) (*models.Model, error)
	CreateModel(ctx context.Context, name string, categoryID int) (*models.Model, error)
	DeleteModel(ctx context.Context, modelID int) error
	FindUser(ctx context.Context, email string) (*models.User, error)
	ListAssets(ctx context.Context, categoryID int) ([]models.DestinationAsset, error)
	ListModels(ctx context.Context) ([]models.Model, error)
}

// Reconciler converges one destination asset per descriptor.
//
// Thread Safety: safe for concurrent use; the run-scoped caches are
// mutex-guarded so worker goroutines share model and user resolutions.
type Reconciler struct {
	dest    Destination
	summary *models.RunSummary
	dryRun  bool

	mu         sync.Mutex
	modelCache map[string]int          // qualified model name -> model ID
	userCache  map[string]*models.User // lowercased email -> user, nil entry = known absent
}

// NewReconciler creates a reconciler bound to one run's summary.
func NewReconciler(dest Destination, summary *models.RunSummary, dryRun bool) *Reconciler {
	return &Reconciler{
		dest:       dest,
		summary:    summary,
		dryRun:     dryRun,
		modelCache: make(map[string]int),
		userCache:  make(map[string]*models.User),
	}
}

// Reconcile converges the destination for one descriptor. The returned error
// is non-nil only for outcome Failed; it never aborts the surrounding run.
func (r *Reconciler) Reconcile(ctx context.Context, desc *models.AssetDescriptor) (models.ReconcileOutcome, error) {
	modelID, err := r.resolveModel(ctx, desc.ModelName, desc.Category.ID)
	if err != nil {
		return models.OutcomeFailed, &ReconcileError{SerialNumber: desc.SerialNumber, Stage: "model", Err: err}
	}

	asset, err := r.dest.GetAssetBySerial(ctx, desc.SerialNumber)
	if err != nil {
		return models.OutcomeFailed, &ReconcileError{SerialNumber: desc.SerialNumber, Stage: "lookup", Err: err}
	}

	if asset == nil {
		return r.createAsset(ctx, desc, modelID)
	}
	return r.updateAsset(ctx, desc, asset, modelID)
}

// createAsset creates a new record and checks it out when an assignee is
// known.
func (r *Reconciler) createAsset(ctx context.Context, desc *models.AssetDescriptor, modelID int) (models.ReconcileOutcome, error) {
	if r.dryRun {
		logging.Info().Str("serial", desc.SerialNumber).Str("model", desc.ModelName).Str("category", desc.Category.Name).Msg("[DRY RUN] would create asset")
		return models.OutcomeSkipped, nil
	}

	assetID, err := r.dest.CreateAsset(ctx, desc, modelID)
	if err != nil {
		return models.OutcomeFailed, &ReconcileError{SerialNumber: desc.SerialNumber, Stage: "create", Err: err}
	}
	logging.Info().Str("serial", desc.SerialNumber).Int("asset_id", assetID).Str("category", desc.Category.Name).Msg("created asset")

	if desc.AssigneeEmail != "" {
		if err := r.checkout(ctx, desc, assetID); err != nil {
			// The asset exists; a failed checkout downgrades to a warning and
			// the next run retries it.
			logging.Warn().Str("serial", desc.SerialNumber).Err(err).Msg("created asset but checkout failed")
		}
	}
	return models.OutcomeCreated, nil
}

// updateAsset patches only the fields that differ from the descriptor and
// checks out unassigned assets to their known user. An already-assigned asset
// keeps its assignee; reassignment is an operator decision, not a sync one.
func (r *Reconciler) updateAsset(ctx context.Context, desc *models.AssetDescriptor, asset *models.DestinationAsset, modelID int) (models.ReconcileOutcome, error) {
	patch := make(map[string]any)
	if desc.Name != "" && asset.Name != desc.Name {
		patch["name"] = desc.Name
	}
	if modelID != 0 && asset.ModelID != modelID {
		patch["model_id"] = modelID
	}

	needsCheckout := desc.AssigneeEmail != "" && asset.AssignedTo == ""

	if len(patch) == 0 && !needsCheckout {
		return models.OutcomeUnchanged, nil
	}

	if r.dryRun {
		logging.Info().Str("serial", desc.SerialNumber).Int("asset_id", asset.ID).Int("fields", len(patch)).Bool("checkout", needsCheckout).Msg("[DRY RUN] would update asset")
		return models.OutcomeSkipped, nil
	}

	if len(patch) > 0 {
		if err := r.dest.UpdateAsset(ctx, asset.ID, patch); err != nil {
			return models.OutcomeFailed, &ReconcileError{SerialNumber: desc.SerialNumber, Stage: "update", Err: err}
		}
		logging.Info().Str("serial", desc.SerialNumber).Int("asset_id", asset.ID).Int("fields", len(patch)).Msg("updated asset")
	}

	if needsCheckout {
		if err := r.checkout(ctx, desc, asset.ID); err != nil {
			if len(patch) == 0 {
				return models.OutcomeFailed, &ReconcileError{SerialNumber: desc.SerialNumber, Stage: "checkout", Err: err}
			}
			logging.Warn().Str("serial", desc.SerialNumber).Err(err).Msg("updated asset but checkout failed")
		}
	}
	return models.OutcomeUpdated, nil
}

// checkout resolves the assignee and assigns the asset. An unknown user is
// not an error; the asset stays in inventory and the summary records the
// miss.
func (r *Reconciler) checkout(ctx context.Context, desc *models.AssetDescriptor, assetID int) error {
	user, err := r.resolveUser(ctx, desc.AssigneeEmail)
	if err != nil {
		return err
	}
	if user == nil {
		logging.Debug().Str("serial", desc.SerialNumber).Str("email", desc.AssigneeEmail).Msg("assignee not found in destination")
		r.summary.UserNotFound()
		metrics.UsersMapped.WithLabelValues("not_found").Inc()
		return nil
	}

	if err := r.dest.CheckoutAsset(ctx, assetID, user.ID); err != nil {
		return err
	}
	r.summary.UserMapped()
	metrics.UsersMapped.WithLabelValues("mapped").Inc()
	logging.Info().Str("serial", desc.SerialNumber).Str("user", user.Email).Msg("checked out asset")
	return nil
}

// resolveModel returns the destination model ID for a qualified model name,
// creating the model on first sight. Results are cached for the run so a
// fleet of identical devices costs one round trip.
func (r *Reconciler) resolveModel(ctx context.Context, name string, categoryID int) (int, error) {
	r.mu.Lock()
	if id, ok := r.modelCache[name]; ok {
		r.mu.Unlock()
		metrics.ModelCacheHits.Inc()
		return id, nil
	}
	r.mu.Unlock()
	metrics.ModelCacheMisses.Inc()

	model, err := r.dest.FindModel(ctx, name)
	if err != nil {
		return 0, err
	}
	if model == nil {
		if r.dryRun {
			logging.Info().Str("model", name).Msg("[DRY RUN] would create model")
			return 0, nil
		}
		model, err = r.dest.CreateModel(ctx, name, categoryID)
		if err != nil {
			return 0, err
		}
		logging.Info().Str("model", name).Int("model_id", model.ID).Msg("created model")
	}

	r.mu.Lock()
	r.modelCache[name] = model.ID
	r.mu.Unlock()
	return model.ID, nil
}

// resolveUser finds a destination user by email, trying known spelling
// variants before giving up. Misses are cached too so one unknown user does
// not cost a lookup per device.
func (r *Reconciler) resolveUser(ctx context.Context, email string) (*models.User, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	r.mu.Lock()
	if user, ok := r.userCache[key]; ok {
		r.mu.Unlock()
		return user, nil
	}
	r.mu.Unlock()

	var found *models.User
	for _, candidate := range emailVariants(key) {
		user, err := r.dest.FindUser(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if user != nil {
			if candidate != key {
				logging.Debug().Str("email", key).Str("matched", candidate).Msg("user matched under variant spelling")
			}
			found = user
			break
		}
	}

	r.mu.Lock()
	r.userCache[key] = found
	r.mu.Unlock()
	return found, nil
}

// emailVariants returns the candidate spellings for a user lookup, starting
// with the exact address. Directory imports have historically disagreed on
// the mackenzie/mckenzie spelling, so both forms are tried.
func emailVariants(email string) []string {
	variants := []string{email}
	switch {
	case strings.Contains(email, "mackenzie"):
		variants = append(variants, strings.Replace(email, "mackenzie", "mckenzie", 1))
	case strings.Contains(email, "mckenzie"):
		variants = append(variants, strings.Replace(email, "mckenzie", "mackenzie", 1))
	}
	return variants
}
