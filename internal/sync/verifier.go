// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
verifier.go - Sync Verification

Read-only comparison of source inventory against destination assets. Computes
the set difference in both directions: serials the sources know that the
destination lacks (missing), and destination serials no source reports
(extra). Accuracy is the fraction of source devices present in the
destination.

Comparison is by serial number only; field-level drift is the reconciler's
job, not the verifier's.
*/
package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/metrics"
	"github.com/westisland-it/assetsync/internal/models"
)

// Verifier compares source and destination inventories without writing.
type Verifier struct {
	manager *Manager
}

// NewVerifier creates a verifier over an existing manager's adapters.
func NewVerifier(manager *Manager) *Verifier {
	return &Verifier{manager: manager}
}

// Verify fetches both sides and reports the difference. sourceName empty
// means all enabled sources.
func (v *Verifier) Verify(ctx context.Context, sourceName string) (*models.VerifyReport, error) {
	sources, err := v.manager.selectSources(sourceName)
	if err != nil {
		return nil, err
	}

	label := sourceName
	if label == "" {
		label = "all"
	}

	summary := models.NewRunSummary(label, true)
	devices, err := v.manager.FetchDevices(ctx, sources, summary)
	if err != nil {
		return nil, fmt.Errorf("fetch source inventory: %w", err)
	}

	assets, err := v.manager.Destination().ListAssets(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch destination inventory: %w", err)
	}

	report := buildReport(devices, assets)
	metrics.SyncAccuracy.WithLabelValues(label).Set(report.Accuracy())

	logging.Info().
		Int("source_total", report.SourceTotal).
		Int("destination_total", report.DestinationTotal).
		Int("synced", report.Synced).
		Int("missing", len(report.MissingSerials)).
		Int("extra", len(report.ExtraSerials)).
		Float64("accuracy", report.Accuracy()).
		Msg("verification complete")

	return report, nil
}

// buildReport computes the two-way set difference. Serials are compared
// case-insensitively; Apple serials are uppercase but operators typing them
// into the destination by hand are not.
func buildReport(devices []models.SourceDevice, assets []models.DestinationAsset) *models.VerifyReport {
	sourceSerials := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		sourceSerials[normalizeSerial(d.SerialNumber)] = struct{}{}
	}

	destSerials := make(map[string]struct{}, len(assets))
	assigned := 0
	for _, a := range assets {
		if a.SerialNumber == "" {
			continue
		}
		destSerials[normalizeSerial(a.SerialNumber)] = struct{}{}
		if a.AssignedTo != "" {
			assigned++
		}
	}

	report := &models.VerifyReport{
		SourceTotal:      len(sourceSerials),
		DestinationTotal: len(destSerials),
		AssignedCount:    assigned,
	}

	for serial := range sourceSerials {
		if _, ok := destSerials[serial]; ok {
			report.Synced++
		} else {
			report.MissingSerials = append(report.MissingSerials, serial)
		}
	}
	for serial := range destSerials {
		if _, ok := sourceSerials[serial]; !ok {
			report.ExtraSerials = append(report.ExtraSerials, serial)
		}
	}

	sort.Strings(report.MissingSerials)
	sort.Strings(report.ExtraSerials)
	return report
}

func normalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}
