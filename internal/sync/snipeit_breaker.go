// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
snipeit_breaker.go - Destination Circuit Breaker

Wraps the Snipe-IT client with a circuit breaker so a misbehaving destination
fails fast instead of burning every device's retry budget one at a time. The
sources are not wrapped: a dead source fails the whole run at fetch time
anyway, while a dead destination would otherwise drag the run through
thousands of doomed per-device retry cycles.

The breaker uses real time for its interval and timeout windows. Tests
exercise the wrapped client directly or drive the breaker through failures.
*/
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/metrics"
	"github.com/westisland-it/assetsync/internal/models"
)

// BreakerClient wraps SnipeITClient with circuit breaker protection.
//
// Opens after a 60% failure rate across at least 10 requests in a one-minute
// window; waits two minutes before probing with up to 3 half-open requests.
type BreakerClient struct {
	client *SnipeITClient
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient wraps an existing destination client.
func NewBreakerClient(client *SnipeITClient) *BreakerClient {
	cbName := "snipeit-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// execute wraps one destination call with circuit breaker accounting.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result, nil
}

// castResult type-casts the breaker's interface{} result with error checking.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Ping verifies destination connectivity with circuit breaker protection.
func (bc *BreakerClient) Ping(ctx context.Context) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.Ping(ctx)
	})
	return err
}

// GetAssetBySerial looks up one asset with circuit breaker protection.
// Preserves the (nil, nil) not-found contract of the wrapped client.
func (bc *BreakerClient) GetAssetBySerial(ctx context.Context, serial string) (*models.DestinationAsset, error) {
	return castResult[models.DestinationAsset](bc.execute(func() (interface{}, error) {
		asset, err := bc.client.GetAssetBySerial(ctx, serial)
		if asset == nil {
			return nil, err
		}
		return asset, err
	}))
}

// CreateAsset creates an asset with circuit breaker protection.
func (bc *BreakerClient) CreateAsset(ctx context.Context, desc *models.AssetDescriptor, modelID int) (int, error) {
	result, err := bc.execute(func() (interface{}, error) {
		id, err := bc.client.CreateAsset(ctx, desc, modelID)
		return id, err
	})
	if err != nil {
		return 0, err
	}
	id, ok := result.(int)
	if !ok {
		return 0, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return id, nil
}

// UpdateAsset patches an asset with circuit breaker protection.
func (bc *BreakerClient) UpdateAsset(ctx context.Context, assetID int, patch map[string]any) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.UpdateAsset(ctx, assetID, patch)
	})
	return err
}

// CheckoutAsset assigns an asset with circuit breaker protection.
func (bc *BreakerClient) CheckoutAsset(ctx context.Context, assetID, userID int) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.CheckoutAsset(ctx, assetID, userID)
	})
	return err
}

// CheckinAsset returns an asset to inventory with circuit breaker protection.
func (bc *BreakerClient) CheckinAsset(ctx context.Context, assetID int, ignoreAlreadyIn bool) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.CheckinAsset(ctx, assetID, ignoreAlreadyIn)
	})
	return err
}

// DeleteAsset removes an asset with circuit breaker protection.
func (bc *BreakerClient) DeleteAsset(ctx context.Context, assetID int) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.DeleteAsset(ctx, assetID)
	})
	return err
}

// FindModel searches models with circuit breaker protection.
func (bc *BreakerClient) FindModel(ctx context.Context, name string) (*models.Model, error) {
	return castResult[models.Model](bc.execute(func() (interface{}, error) {
		m, err := bc.client.FindModel(ctx, name)
		if m == nil {
			return nil, err
		}
		return m, err
	}))
}

// CreateModel creates a model with circuit breaker protection.
func (bc *BreakerClient) CreateModel(ctx context.Context, name string, categoryID int) (*models.Model, error) {
	return castResult[models.Model](bc.execute(func() (interface{}, error) {
		return bc.client.CreateModel(ctx, name, categoryID)
	}))
}

// DeleteModel removes a model with circuit breaker protection.
func (bc *BreakerClient) DeleteModel(ctx context.Context, modelID int) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.DeleteModel(ctx, modelID)
	})
	return err
}

// FindUser searches users with circuit breaker protection.
func (bc *BreakerClient) FindUser(ctx context.Context, email string) (*models.User, error) {
	return castResult[models.User](bc.execute(func() (interface{}, error) {
		u, err := bc.client.FindUser(ctx, email)
		if u == nil {
			return nil, err
		}
		return u, err
	}))
}

// ListAssets pages through hardware with circuit breaker protection.
func (bc *BreakerClient) ListAssets(ctx context.Context, categoryID int) ([]models.DestinationAsset, error) {
	result, err := bc.execute(func() (interface{}, error) {
		assets, err := bc.client.ListAssets(ctx, categoryID)
		return assets, err
	})
	if err != nil {
		return nil, err
	}
	assets, ok := result.([]models.DestinationAsset)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return assets, nil
}

// ListModels pages through models with circuit breaker protection.
func (bc *BreakerClient) ListModels(ctx context.Context) ([]models.Model, error) {
	result, err := bc.execute(func() (interface{}, error) {
		ms, err := bc.client.ListModels(ctx)
		return ms, err
	})
	if err != nil {
		return nil, err
	}
	ms, ok := result.([]models.Model)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return ms, nil
}
