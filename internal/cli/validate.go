package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(global *globalOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and that all three containers are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration ok (backend %s)\n", cfg.Store.Backend)
			if offline {
				return nil
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			var failed int
			for _, container := range cfg.Containers() {
				if err := a.store.Ping(ctx, container); err != nil {
					failed++
					fmt.Fprintf(out, "  %-8s %s: %v\n", "FAIL", container, err)
					printHint(out, err)
					continue
				}
				fmt.Fprintf(out, "  %-8s %s\n", "ok", container)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d containers unreachable", failed, len(cfg.Containers()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "only validate the configuration")
	return cmd
}
