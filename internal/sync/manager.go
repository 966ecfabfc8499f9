// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
manager.go - Sync Orchestration

Builds the adapters from configuration and drives one run end to end: fetch
from every enabled source, categorize, then converge assets through a bounded
worker pool. One failing device never aborts the run; it becomes a failure
record in the summary and the pool moves on.

All workers share the per-host executors, so concurrency never multiplies the
request rate against any one API.
*/
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/westisland-it/assetsync/internal/config"
	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/metrics"
	"github.com/westisland-it/assetsync/internal/models"
)

// Manager wires sources, categorizer and destination into runnable
// operations.
type Manager struct {
	cfg         *config.Config
	sources     []SourceAdapter
	dest        Destination
	categorizer *Categorizer
	executors   []*Executor
}

// RunOptions selects what one invocation does.
type RunOptions struct {
	// Source restricts the run to one adapter by name. Empty means all
	// enabled sources.
	Source string

	// DryRun logs intended writes without issuing them.
	DryRun bool

	// Workers overrides the configured pool size when positive.
	Workers int
}

// NewManager builds the full pipeline from configuration. Each external host
// gets its own executor so rate limits and retry accounting stay per-host.
func NewManager(cfg *config.Config) (*Manager, error) {
	httpClient := &http.Client{Timeout: cfg.Sync.HTTPTimeout}

	m := &Manager{
		cfg:         cfg,
		categorizer: NewCategorizer(cfg.Categories),
	}

	if cfg.Jamf.Enabled {
		exec := NewExecutor(httpClient, &cfg.Sync, "jamf")
		m.executors = append(m.executors, exec)
		m.sources = append(m.sources, NewJamfClient(&cfg.Jamf, &cfg.Sync, exec))
	}
	if cfg.Kandji.Enabled {
		exec := NewExecutor(httpClient, &cfg.Sync, "kandji")
		m.executors = append(m.executors, exec)
		m.sources = append(m.sources, NewKandjiClient(&cfg.Kandji, &cfg.Sync, exec))
	}
	if cfg.Intune.Enabled {
		exec := NewExecutor(httpClient, &cfg.Sync, "intune")
		m.executors = append(m.executors, exec)
		m.sources = append(m.sources, NewIntuneClient(&cfg.Intune, &cfg.Sync, exec))
	}
	if len(m.sources) == 0 {
		return nil, fmt.Errorf("no device sources enabled")
	}

	destExec := NewExecutor(httpClient, &cfg.Sync, "snipeit")
	m.executors = append(m.executors, destExec)
	m.dest = NewBreakerClient(NewSnipeITClient(&cfg.SnipeIT, &cfg.Sync, destExec))

	return m, nil
}

// Destination exposes the destination client for the verify and wipe paths.
func (m *Manager) Destination() Destination { return m.dest }

// Categorizer exposes the categorizer for the verify path.
func (m *Manager) Categorizer() *Categorizer { return m.categorizer }

// selectSources resolves the adapters a run should use.
func (m *Manager) selectSources(name string) ([]SourceAdapter, error) {
	if name == "" {
		return m.sources, nil
	}
	for _, src := range m.sources {
		if src.Name() == name {
			return []SourceAdapter{src}, nil
		}
	}
	return nil, fmt.Errorf("source %q is not enabled", name)
}

// Ping checks connectivity to every enabled source and the destination.
// Failures are joined so one report covers all unreachable endpoints.
func (m *Manager) Ping(ctx context.Context) error {
	var errs []error
	for _, src := range m.sources {
		if err := src.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		} else {
			logging.Info().Str("source", src.Name()).Msg("source reachable")
		}
	}
	if err := m.dest.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("snipeit: %w", err))
	} else {
		logging.Info().Msg("destination reachable")
	}
	return errors.Join(errs...)
}

// FetchDevices pulls the full inventory from the selected sources. Per-device
// failures land in the summary; a source that cannot be fetched at all is an
// error for the run.
func (m *Manager) FetchDevices(ctx context.Context, sources []SourceAdapter, summary *models.RunSummary) ([]models.SourceDevice, error) {
	var devices []models.SourceDevice
	var errs []error

	for _, src := range sources {
		fetched, failures, err := src.FetchAllDevices(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch from %s: %w", src.Name(), err))
			continue
		}
		for _, f := range failures {
			summary.RecordFailure(f)
		}
		for _, d := range fetched {
			switch d.Class {
			case models.ClassComputer:
				summary.Computers++
			default:
				summary.MobileDevices++
			}
			if d.Degraded {
				summary.DegradedDevice()
			}
		}
		devices = append(devices, fetched...)
	}

	summary.TotalDevices = len(devices)
	return devices, errors.Join(errs...)
}

// Run executes one sync: fetch, categorize, reconcile. The returned summary
// is always populated, even when the run-level error is non-nil.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error) {
	sources, err := m.selectSources(opts.Source)
	if err != nil {
		return nil, err
	}

	label := opts.Source
	if label == "" {
		label = "all"
	}
	mode := "sync"
	if opts.DryRun {
		mode = "dry_run"
	}

	summary := models.NewRunSummary(label, opts.DryRun)
	start := time.Now()
	defer func() {
		metrics.SyncRunDuration.WithLabelValues(label, mode).Observe(time.Since(start).Seconds())
	}()

	logging.Info().Str("run_id", summary.RunID).Str("source", label).Bool("dry_run", opts.DryRun).Msg("starting sync run")

	devices, fetchErr := m.FetchDevices(ctx, sources, summary)
	if fetchErr != nil && len(devices) == 0 {
		return summary, fetchErr
	}
	if fetchErr != nil {
		logging.Error().Err(fetchErr).Msg("continuing with partial inventory")
	}

	reconciler := NewReconciler(m.dest, summary, opts.DryRun)
	m.reconcileAll(ctx, devices, reconciler, summary, opts)

	m.accountExecutors(summary)
	logging.Info().
		Str("run_id", summary.RunID).
		Int("total", summary.TotalDevices).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed).
		Float64("success_rate", summary.SuccessRate()).
		Dur("elapsed", time.Since(start)).
		Msg("sync run complete")

	if fetchErr != nil {
		return summary, fetchErr
	}
	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d devices failed", summary.Failed, summary.TotalDevices)
	}
	return summary, nil
}

// reconcileAll drains the device list through a bounded worker pool. Workers
// stop picking up new jobs once the context is cancelled; in-flight requests
// are cancelled by their own context checks.
func (m *Manager) reconcileAll(ctx context.Context, devices []models.SourceDevice, reconciler *Reconciler, summary *models.RunSummary, opts RunOptions) {
	workers := m.cfg.Sync.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan models.SourceDevice)

	var wg stdsync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dev := range jobs {
				m.reconcileOne(ctx, dev, reconciler, summary)
			}
		}()
	}

	for _, dev := range devices {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- dev:
		}
	}
	close(jobs)
	wg.Wait()
}

// reconcileOne processes a single device, isolating any failure into the
// summary.
func (m *Manager) reconcileOne(ctx context.Context, dev models.SourceDevice, reconciler *Reconciler, summary *models.RunSummary) {
	desc := m.categorizer.Map(dev)

	outcome, err := reconciler.Reconcile(ctx, &desc)
	metrics.DevicesProcessed.WithLabelValues(dev.Source, string(outcome)).Inc()

	if err == nil {
		summary.Record(outcome)
		return
	}

	// RecordFailure counts toward Failed, so Record is skipped here to keep
	// each device counted exactly once.
	stage := "reconcile"
	var rerr *ReconcileError
	if errors.As(err, &rerr) {
		stage = rerr.Stage
	}
	summary.RecordFailure(models.DeviceFailure{
		SerialNumber: dev.SerialNumber,
		Source:       dev.Source,
		Stage:        stage,
		Reason:       err.Error(),
	})
	logging.Error().Str("serial", dev.SerialNumber).Str("stage", stage).Err(err).Msg("device failed")
}

// accountExecutors folds per-host request and retry counters into the run
// summary.
func (m *Manager) accountExecutors(summary *models.RunSummary) {
	for _, exec := range m.executors {
		summary.APICalls += exec.APICalls()
		summary.AddRetries(exec.Retries())
	}
}
