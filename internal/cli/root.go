// Package cli implements the tiercycle command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "tiercycle",
		Short: "Move objects from intake to backup to compressed archive",
		Long: "tiercycle replicates every object in an intake container to a backup container and, " +
			"once a backup copy is older than the retention window, stores a gzip copy in an archive " +
			"container and removes the backup copy.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("TIERCYCLE_CONFIG"), "path to YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log format (json, console)")

	root.AddCommand(newRunCommand(opts), newServeCommand(opts), newValidateCommand(opts), newInitCommand())
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
