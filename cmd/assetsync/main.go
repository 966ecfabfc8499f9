// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
main.go - Command Line Interface

Subcommands:

	sync   - converge destination assets against MDM inventory
	verify - read-only two-way comparison with accuracy report
	wipe   - destructive destination reset, gated behind a typed phrase
	ping   - connectivity and credential check for every endpoint

Configuration comes from config.yaml and environment variables; flags only
select per-invocation behavior. The process exits non-zero whenever any
device failed, so cron and CI pick incomplete runs up for free.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/westisland-it/assetsync/internal/config"
	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/models"
	"github.com/westisland-it/assetsync/internal/sync"
)

// version is set at build time via -ldflags.
var version = "dev"

const wipePhrase = "WIPE"

func main() {
	app := &cli.App{
		Name:    "assetsync",
		Usage:   "Synchronize MDM device inventory into Snipe-IT",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address for the run's duration (e.g. :9090)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "Fetch devices from enabled sources and converge destination assets",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Restrict the run to one source (jamf, kandji, intune)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Log intended changes without writing anything",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Override the configured worker pool size",
					},
				},
				Action: runSync,
			},
			{
				Name:  "verify",
				Usage: "Compare source and destination inventories without writing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Restrict the comparison to one source",
					},
				},
				Action: runVerify,
			},
			{
				Name:  "wipe",
				Usage: "Delete destination assets (DESTRUCTIVE, requires --confirm WIPE)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "confirm",
						Usage: fmt.Sprintf("Must be the literal phrase %q", wipePhrase),
					},
					&cli.IntFlag{
						Name:  "category-id",
						Usage: "Restrict the wipe to one asset category",
					},
					&cli.BoolFlag{
						Name:  "delete-models",
						Usage: "Also purge model records after assets are deleted",
					},
				},
				Action: runWipe,
			},
			{
				Name:   "ping",
				Usage:  "Check connectivity and credentials for every configured endpoint",
				Action: runPing,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, initializes logging, and builds the manager. Shared by
// every subcommand.
func setup(c *cli.Context) (*sync.Manager, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	manager, err := sync.NewManager(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)

	if addr := c.String("metrics-addr"); addr != "" {
		go serveMetrics(addr)
	}

	return manager, ctx, cancel, nil
}

// serveMetrics exposes the default Prometheus registry for the life of the
// process. Scrape-on-demand for long runs; short runs just skip the flag.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Warn().Err(err).Str("addr", addr).Msg("metrics listener stopped")
	}
}

func runSync(c *cli.Context) error {
	manager, ctx, cancel, err := setup(c)
	if err != nil {
		return err
	}
	defer cancel()

	summary, err := manager.Run(ctx, sync.RunOptions{
		Source:  c.String("source"),
		DryRun:  c.Bool("dry-run"),
		Workers: c.Int("workers"),
	})
	if summary != nil {
		printSummary(summary)
	}
	return err
}

func runVerify(c *cli.Context) error {
	manager, ctx, cancel, err := setup(c)
	if err != nil {
		return err
	}
	defer cancel()

	report, err := sync.NewVerifier(manager).Verify(ctx, c.String("source"))
	if err != nil {
		return err
	}

	fmt.Printf("Source devices:      %d\n", report.SourceTotal)
	fmt.Printf("Destination assets:  %d\n", report.DestinationTotal)
	fmt.Printf("Synced:              %d\n", report.Synced)
	fmt.Printf("Assigned:            %d\n", report.AssignedCount)
	fmt.Printf("Accuracy:            %.2f%%\n", report.Accuracy())
	if len(report.MissingSerials) > 0 {
		fmt.Printf("\nMissing from destination (%d):\n", len(report.MissingSerials))
		for _, serial := range report.MissingSerials {
			fmt.Printf("  %s\n", serial)
		}
	}
	if len(report.ExtraSerials) > 0 {
		fmt.Printf("\nIn destination but not reported by any source (%d):\n", len(report.ExtraSerials))
		for _, serial := range report.ExtraSerials {
			fmt.Printf("  %s\n", serial)
		}
	}

	if len(report.MissingSerials) == 0 && len(report.ExtraSerials) == 0 {
		fmt.Println("\nInventories are in sync.")
		return nil
	}
	if report.Accuracy() >= 95 {
		fmt.Println("\nInventories are nearly in sync; review the serials above.")
	} else {
		fmt.Println("\nInventories have drifted significantly; run a full sync.")
	}
	return fmt.Errorf("inventories differ: %d missing, %d extra",
		len(report.MissingSerials), len(report.ExtraSerials))
}

func runWipe(c *cli.Context) error {
	if c.String("confirm") != wipePhrase {
		return fmt.Errorf("refusing to wipe: pass --confirm %s to proceed", wipePhrase)
	}

	manager, ctx, cancel, err := setup(c)
	if err != nil {
		return err
	}
	defer cancel()

	result, err := sync.NewWiper(manager.Destination()).Wipe(ctx, sync.WipeOptions{
		Confirmed:    true,
		CategoryID:   c.Int("category-id"),
		DeleteModels: c.Bool("delete-models"),
	})
	if result != nil {
		fmt.Printf("Assets deleted: %d (failed: %d)\n", result.AssetsDeleted, result.AssetsFailed)
		if c.Bool("delete-models") {
			fmt.Printf("Models deleted: %d (failed: %d)\n", result.ModelsDeleted, result.ModelsFailed)
		}
		fmt.Printf("Assets remaining after wipe: %d\n", result.Remaining)
	}
	return err
}

func runPing(c *cli.Context) error {
	manager, ctx, cancel, err := setup(c)
	if err != nil {
		return err
	}
	defer cancel()

	if err := manager.Ping(ctx); err != nil {
		return fmt.Errorf("connectivity check failed:\n%w", err)
	}
	fmt.Println("All configured endpoints reachable.")
	return nil
}

// printSummary renders the run summary for operators reading cron mail.
func printSummary(s *models.RunSummary) {
	mode := "sync"
	if s.DryRun {
		mode = "dry run"
	}
	fmt.Printf("\nRun %s (%s, source: %s)\n", s.RunID, mode, s.Source)
	fmt.Printf("  Devices:    %d (%d computers, %d mobile)\n", s.TotalDevices, s.Computers, s.MobileDevices)
	fmt.Printf("  Created:    %d\n", s.Created)
	fmt.Printf("  Updated:    %d\n", s.Updated)
	fmt.Printf("  Unchanged:  %d\n", s.Unchanged)
	if s.DryRun {
		fmt.Printf("  Skipped:    %d\n", s.Skipped)
	}
	fmt.Printf("  Failed:     %d\n", s.Failed)
	if s.Degraded > 0 {
		fmt.Printf("  Degraded:   %d (synced from list data only)\n", s.Degraded)
	}
	fmt.Printf("  Users:      %d mapped, %d not found\n", s.UsersMapped, s.UsersNotFound)
	fmt.Printf("  API calls:  %d (%d retries)\n", s.APICalls, s.Retries)
	fmt.Printf("  Success:    %.2f%%\n", s.SuccessRate())

	if len(s.Failures) > 0 {
		fmt.Printf("\nFailures (%d):\n", len(s.Failures))
		for _, f := range s.Failures {
			serial := f.SerialNumber
			if serial == "" {
				serial = "(no serial)"
			}
			fmt.Printf("  [%s/%s] %s: %s\n", f.Source, f.Stage, serial, f.Reason)
		}
	}
}
