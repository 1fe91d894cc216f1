package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/processor"
)

func newRunCmd(o *rootOptions) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every stored account once and send the batched reports",
		Long: `Modes:
  daily    check-in, streak, profile, member-day draws, coupons
  coupons  unused coupons, with a push per account that holds any
  points   one points line per account

Failures are reported through notifications; the exit status is non-zero
only when the run could not be started.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := processor.ParseMode(mode)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			e, err := openEnv(ctx, o.log)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.newRunner(ctx, m, o.log).Execute(ctx); err != nil {
				o.log.Warn("run ended with an error", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(processor.ModeDaily), "daily, coupons or points")
	return cmd
}
