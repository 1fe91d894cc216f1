package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/auth"
	"github.com/example/aove-scheduler/internal/processor"
	"github.com/example/aove-scheduler/internal/runner"
	"github.com/example/aove-scheduler/internal/runs"
	"github.com/example/aove-scheduler/internal/scheduler"
	"github.com/example/aove-scheduler/internal/web"
)

func newServerCmd(o *rootOptions) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the web UI and the daily scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			e, err := openEnv(ctx, o.log)
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.cfg.RequireWeb(); err != nil {
				return err
			}

			authStore := auth.NewStore(e.db, e.cfg.CookieHashKey, e.cfg.CookieBlockKey)
			runRepo := runs.NewRepo(e.db)

			wait := func() error { return nil }
			if !noScheduler {
				s := &scheduler.Scheduler{
					Job: func(ctx context.Context) error {
						return e.newRunner(ctx, processor.ModeDaily, o.log).Execute(ctx)
					},
					At:       e.cfg.ScheduleAt,
					Location: e.cfg.Location,
					Interval: e.cfg.PollInterval,
					LastRun: func(ctx context.Context) (time.Time, bool, error) {
						return runRepo.LastStart(ctx, string(processor.ModeDaily))
					},
					Log: o.log.Named("scheduler"),
				}
				wait = s.Start(ctx)
			}

			if e.cfg.CaptureToken == "" {
				o.log.Info("CAPTURE_TOKEN not set, capture hook disabled")
			}
			ws := &web.Server{
				Auth:         authStore,
				Runs:         runRepo,
				Store:        e.store,
				Notify:       runner.Sink(ctx, e.store, o.log),
				Log:          o.log.Named("web"),
				BaseURL:      e.cfg.BaseURL,
				CaptureToken: e.cfg.CaptureToken,
			}
			err = web.Start(ctx, e.cfg.ListenAddr, ws.Routes(), o.log.Named("web"))

			// an in-flight run records its end before the pool closes
			cancel()
			if serr := wait(); serr != nil && !errors.Is(serr, context.Canceled) {
				o.log.Error("scheduler stopped", zap.Error(serr))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the UI without the daily run")
	return cmd
}
