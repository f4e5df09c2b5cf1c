package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/crimelens-lab/crimelens/internal/aggregation"
	corecfg "github.com/crimelens-lab/crimelens/internal/core/config"
	"github.com/crimelens-lab/crimelens/internal/core/incident"
	"github.com/crimelens-lab/crimelens/internal/core/storage"
	"github.com/crimelens-lab/crimelens/internal/core/storage/postgres"
	"github.com/crimelens-lab/crimelens/internal/migrations"
	"github.com/crimelens-lab/crimelens/internal/query"
	"github.com/crimelens-lab/crimelens/internal/server"
)

func main() {
	configPath := flag.String("config", "crimelens.yaml", "Path to configuration file")
	aggregateOnce := flag.Bool("aggregate", false, "Run a single aggregation pass and exit")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	if !cfg.Database.AutoMigrate {
		if err := dbAdapter.ValidateSchema(); err != nil {
			slog.Error("Artifact schema validation failed", "error", err)
			os.Exit(1)
		}
	}

	// 3. Category normalization
	normalizer, err := incident.NewNormalizer(cfg.Categories.AliasFile)
	if err != nil {
		slog.Error("Failed to load category aliases", "path", cfg.Categories.AliasFile, "error", err)
		os.Exit(1)
	}

	// 4. Stores over raw partitions and derived artifacts
	rawStore := postgres.NewRawStore(dbAdapter.DB(), cfg.Aggregation.PartitionPrefix)
	artifactStore := postgres.NewArtifactAdapter(dbAdapter.DB())

	aggOpts := aggregation.Options{
		SamplePerYear: cfg.Aggregation.SamplePerYear,
		SampleSeed:    cfg.Aggregation.SampleSeed,
		WorkerCount:   cfg.Aggregation.WorkerCount,
	}

	// One-shot batch mode: compress raw partitions into artifacts and exit.
	if *aggregateOnce {
		summary, err := aggregation.Run(context.Background(), rawStore, artifactStore, normalizer, aggOpts)
		if err != nil {
			slog.Error("Aggregation failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Aggregation finished",
			"run_id", summary.RunID,
			"years", summary.Years,
			"rows_read", summary.RowsRead,
			"rows_skipped", summary.RowsSkipped,
			"elapsed", summary.Elapsed,
		)
		return
	}

	// 5. Query layer over the artifact snapshot
	handle := query.NewHandle(artifactStore)
	if _, err := handle.Reload(context.Background()); err != nil {
		if errors.Is(err, storage.ErrNoArtifacts) {
			slog.Warn("No aggregation run published yet, serving empty views until the first refresh")
		} else {
			slog.Error("Failed to load artifacts", "error", err)
			os.Exit(1)
		}
	}

	refresh := func(ctx context.Context) error {
		if _, err := aggregation.Run(ctx, rawStore, artifactStore, normalizer, aggOpts); err != nil {
			return err
		}
		_, err := handle.Reload(ctx)
		return err
	}

	querySvc := query.NewService(handle, query.ServiceOptions{
		RenderCap:     cfg.Query.RenderCap,
		RenderSeed:    cfg.Query.RenderSeed,
		TopTypesLimit: cfg.Query.TopTypesLimit,
	}, refresh)

	// 6. HTTP server
	srv := server.New(
		fmtAddr(cfg.Server.Host, cfg.Server.Port),
		dbAdapter.DB(),
		cfg.Server.Mode,
		func() server.SnapshotInfo {
			snap := handle.Current()
			return server.SnapshotInfo{RunID: snap.RunID, LoadedAt: snap.LoadedAt}
		},
	)
	querySvc.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Aggregation.Enabled {
		scheduler := aggregation.NewScheduler(cfg.Aggregation.Interval(), refresh)
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Periodic aggregation disabled by config")
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
