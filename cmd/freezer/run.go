package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one scan-and-apply pass over the namespace",
		Long: `Scans the mounted namespace for freeze directives, applies each top-level
directive to its subtree, removes it and reports the outcome. The command
exits 0 once the pass completes, even when individual directories failed;
failures are reported through the notification channel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, logger, f)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.RunPass(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return unavailable(fmt.Errorf("pass interrupted: %w", context.Cause(ctx)))
				}
				return unavailable(err)
			}
			logger.Info("pass complete",
				"run_id", report.RunID,
				"roots", len(report.Outcomes),
				"failed", report.Failed(),
			)
			return nil
		},
	}
}
