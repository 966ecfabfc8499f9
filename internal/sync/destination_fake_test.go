// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/westisland-it/assetsync/internal/models"
)

// fakeDestination is an in-memory Destination for reconciler, manager, and
// wipe tests. Call counters let tests assert cache behavior; failSerials
// injects per-device write failures.
type fakeDestination struct {
	mu stdsync.Mutex

	assets map[string]*models.DestinationAsset // keyed by serial
	ms     map[string]*models.Model            // keyed by name
	users  map[string]*models.User             // keyed by lowercase email

	nextAssetID int
	nextModelID int

	findModelCalls  int
	findUserCalls   int
	checkinCalls    []int
	deleteCalls     []int
	checkoutCalls   map[int]int // asset ID -> user ID
	failSerials     map[string]error
	failAssetDelete map[int]error
}

var _ Destination = (*fakeDestination)(nil)

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		assets:          make(map[string]*models.DestinationAsset),
		ms:              make(map[string]*models.Model),
		users:           make(map[string]*models.User),
		nextAssetID:     100,
		nextModelID:     10,
		checkoutCalls:   make(map[int]int),
		failSerials:     make(map[string]error),
		failAssetDelete: make(map[int]error),
	}
}

func (f *fakeDestination) addUser(id int, name, email string) {
	f.users[email] = &models.User{ID: id, Name: name, Email: email}
}

func (f *fakeDestination) addAsset(a models.DestinationAsset) {
	f.assets[a.SerialNumber] = &a
}

func (f *fakeDestination) Ping(ctx context.Context) error { return nil }

func (f *fakeDestination) GetAssetBySerial(ctx context.Context, serial string) (*models.DestinationAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[serial]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (f *fakeDestination) CreateAsset(ctx context.Context, desc *models.AssetDescriptor, modelID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSerials[desc.SerialNumber]; err != nil {
		return 0, err
	}
	f.nextAssetID++
	f.assets[desc.SerialNumber] = &models.DestinationAsset{
		ID:           f.nextAssetID,
		AssetTag:     desc.SerialNumber,
		SerialNumber: desc.SerialNumber,
		Name:         desc.Name,
		ModelID:      modelID,
	}
	return f.nextAssetID, nil
}

func (f *fakeDestination) UpdateAsset(ctx context.Context, assetID int, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.ID != assetID {
			continue
		}
		if err := f.failSerials[a.SerialNumber]; err != nil {
			return err
		}
		if name, ok := patch["name"].(string); ok {
			a.Name = name
		}
		if modelID, ok := patch["model_id"].(int); ok {
			a.ModelID = modelID
		}
		return nil
	}
	return fmt.Errorf("asset %d not found", assetID)
}

func (f *fakeDestination) CheckoutAsset(ctx context.Context, assetID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutCalls[assetID] = userID
	for _, a := range f.assets {
		if a.ID == assetID {
			for _, u := range f.users {
				if u.ID == userID {
					a.AssignedTo = u.Name
				}
			}
		}
	}
	return nil
}

func (f *fakeDestination) CheckinAsset(ctx context.Context, assetID int, ignoreAlreadyIn bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkinCalls = append(f.checkinCalls, assetID)
	for _, a := range f.assets {
		if a.ID == assetID {
			a.AssignedTo = ""
		}
	}
	return nil
}

func (f *fakeDestination) DeleteAsset(ctx context.Context, assetID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failAssetDelete[assetID]; err != nil {
		return err
	}
	f.deleteCalls = append(f.deleteCalls, assetID)
	for serial, a := range f.assets {
		if a.ID == assetID {
			delete(f.assets, serial)
			return nil
		}
	}
	return fmt.Errorf("asset %d not found", assetID)
}

func (f *fakeDestination) FindModel(ctx context.Context, name string) (*models.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findModelCalls++
	m, ok := f.ms[name]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (f *fakeDestination) CreateModel(ctx context.Context, name string, categoryID int) (*models.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextModelID++
	m := &models.Model{ID: f.nextModelID, Name: name, CategoryID: categoryID}
	f.ms[name] = m
	copied := *m
	return &copied, nil
}

func (f *fakeDestination) DeleteModel(ctx context.Context, modelID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, m := range f.ms {
		if m.ID == modelID {
			delete(f.ms, name)
			return nil
		}
	}
	return fmt.Errorf("model %d not found", modelID)
}

func (f *fakeDestination) FindUser(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findUserCalls++
	u, ok := f.users[email]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeDestination) ListAssets(ctx context.Context, categoryID int) ([]models.DestinationAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DestinationAsset
	for _, a := range f.assets {
		if categoryID > 0 && a.CategoryID != categoryID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeDestination) ListModels(ctx context.Context) ([]models.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Model
	for _, m := range f.ms {
		out = append(out, *m)
	}
	return out, nil
}
