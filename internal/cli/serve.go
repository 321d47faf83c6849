package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiercycle/tiercycle/internal/config"
	"github.com/tiercycle/tiercycle/internal/health"
	"github.com/tiercycle/tiercycle/internal/trigger"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(global *globalOptions) *cobra.Command {
	var runAtStartup bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on a cron schedule and on NATS notifications",
		Long: "Start the metrics endpoint and run the pipeline whenever the cron schedule fires or " +
			"an object arrival notification is received. Runs never overlap; a Redis lock keeps " +
			"replicas from running at the same time.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global, nil)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, runAtStartup)
		},
	}
	cmd.Flags().BoolVar(&runAtStartup, "run-at-startup", false, "run once immediately after starting")
	return cmd
}

func serve(ctx context.Context, cfg *config.Configuration, runAtStartup bool) error {
	if !cfg.Trigger.Enabled() && !runAtStartup {
		return errors.New("nothing to serve: set trigger.schedule or trigger.nats.url, or pass --run-at-startup")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.close(shutdownCtx)
	}()

	checker := health.NewChecker(cfg.Health, a.logger)
	for _, container := range cfg.Containers() {
		if err := checker.RegisterCheck(container, health.StorageCheck(a.store.Ping, container)); err != nil {
			return err
		}
	}
	if err := checker.Start(ctx); err != nil {
		return err
	}
	defer checker.Stop()
	a.collector.Mount("/ready", checker.Handler())

	if err := a.collector.Start(ctx); err != nil {
		return err
	}

	runner := trigger.NewRunner(func(ctx context.Context) error {
		_, err := a.run(ctx)
		return err
	}, a.locker, a.collector, a.logger)

	scheduler, err := trigger.Start(cfg.Trigger, runner, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		scheduler.Stop(stopCtx)
	}()

	if runAtStartup {
		runner.Trigger(trigger.SourceStartup)
	}
	a.logger.Info("serving", "schedule", cfg.Trigger.Schedule, "nats_subject", cfg.Trigger.NATS.Subject)

	if err := runner.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("shutting down")
	return nil
}
