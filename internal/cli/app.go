package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tiercycle/tiercycle/internal/compress"
	"github.com/tiercycle/tiercycle/internal/config"
	"github.com/tiercycle/tiercycle/internal/lifecycle"
	"github.com/tiercycle/tiercycle/internal/lock"
	"github.com/tiercycle/tiercycle/internal/metrics"
	"github.com/tiercycle/tiercycle/internal/storage"
	"github.com/tiercycle/tiercycle/internal/storage/resilient"
	"github.com/tiercycle/tiercycle/pkg/logging"
)

// openStore is replaced in tests to serve a seeded in-memory store.
var openStore = storage.Open

// app holds everything a command needs, built once from the merged configuration.
type app struct {
	cfg         *config.Configuration
	logger      *slog.Logger
	collector   *metrics.Collector
	store       *resilient.Store
	locker      lock.Locker
	coordinator *lifecycle.Coordinator

	syncLogs func()
}

// loadConfig merges defaults, the YAML file, TIERCYCLE_* variables and the global flags,
// then validates the result.
func loadConfig(opts *globalOptions, override func(*config.Configuration)) (*config.Configuration, error) {
	cfg := config.NewDefault()
	if opts.configPath != "" {
		if err := cfg.LoadFromFile(opts.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Configuration) (*app, error) {
	logger, syncLogs, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, syncLogs: syncLogs}

	a.collector, err = metrics.NewCollector(&cfg.Metrics, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	a.store, err = openStore(ctx, cfg.Store, cfg.Containers(), logger, a.collector)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.locker, err = lock.New(ctx, cfg.Lock, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	processor := lifecycle.NewProcessor(a.store, compress.New(cfg.Compression.Level), logger, cfg.Lifecycle.DryRun)
	a.coordinator = lifecycle.NewCoordinator(a.store,
		lifecycle.WithLogger(logger),
		lifecycle.WithRecorder(a.collector),
		lifecycle.WithProcessor(processor),
	)
	return a, nil
}

// run executes one pipeline pass with the configured request.
func (a *app) run(ctx context.Context) (lifecycle.BatchSummary, error) {
	summary, err := a.coordinator.Run(ctx, a.cfg.RunRequest())
	if err != nil {
		return summary, err
	}
	a.logger.Info("run complete", "summary", summary)
	return summary, nil
}

func (a *app) close(ctx context.Context) {
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			a.logger.Warn("closing lock failed", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store failed", "error", err)
		}
	}
	if a.collector != nil {
		if err := a.collector.Stop(ctx); err != nil {
			a.logger.Warn("stopping metrics server failed", "error", err)
		}
	}
	if a.syncLogs != nil {
		a.syncLogs()
	}
}
