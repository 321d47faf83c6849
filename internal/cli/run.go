package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiercycle/tiercycle/internal/config"
	"github.com/tiercycle/tiercycle/internal/lifecycle"
	"github.com/tiercycle/tiercycle/internal/trigger"
	"github.com/tiercycle/tiercycle/pkg/errors"
)

type runOptions struct {
	dryRun      bool
	prefix      string
	concurrency int
	retention   int
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pass over the intake container",
		Long: "Replicate every intake object to the backup container and archive backup copies " +
			"older than the retention window. Exits non-zero when any object failed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global, func(c *config.Configuration) {
				if cmd.Flags().Changed("dry-run") {
					c.Lifecycle.DryRun = opts.dryRun
				}
				if cmd.Flags().Changed("prefix") {
					c.Lifecycle.Prefix = opts.prefix
				}
				if cmd.Flags().Changed("concurrency") {
					c.Lifecycle.Concurrency = opts.concurrency
				}
				if cmd.Flags().Changed("retention-days") {
					c.Lifecycle.RetentionDays = opts.retention
				}
			})
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report what would happen without writing anything")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "only process intake keys with this prefix")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "number of objects processed in parallel")
	cmd.Flags().IntVar(&opts.retention, "retention-days", 0, "archive backup copies older than this many days")
	return cmd
}

func runOnce(ctx context.Context, cfg *config.Configuration, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	var summary lifecycle.BatchSummary
	runner := trigger.NewRunner(func(ctx context.Context) error {
		var runErr error
		summary, runErr = a.run(ctx)
		return runErr
	}, a.locker, a.collector, a.logger)

	runErr := runner.RunOnce(ctx, trigger.SourceStartup)
	if summary.RunID != "" {
		printSummary(out, summary, cfg.Lifecycle.DryRun)
	}
	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d objects failed", summary.Failed, summary.Total)
	}
	return nil
}

func printSummary(out io.Writer, s lifecycle.BatchSummary, dryRun bool) {
	mode := ""
	if dryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(out, "run %s%s: %d objects, %d succeeded (%d archived), %d failed in %s\n",
		s.RunID, mode, s.Total, s.Succeeded, s.Archived, s.Failed, s.Duration.Round(time.Millisecond))
	for _, f := range s.Failures {
		fmt.Fprintf(out, "  failed  %s at %s: %v\n", f.Ref, f.Stage, f.Cause)
		printHint(out, f.Cause)
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(out, "  warning %s at %s: %v\n", w.Ref, w.Stage, w.Cause)
		printHint(out, w.Cause)
	}
}

// printHint writes the operator recommendation for tiercycle errors.
func printHint(out io.Writer, err error) {
	var te *errors.TierError
	if stderrors.As(err, &te) {
		fmt.Fprintf(out, "          hint: %s\n", te.GetRecommendation())
	}
}
