package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/clock"
	"github.com/example/aove-scheduler/internal/config"
	"github.com/example/aove-scheduler/internal/db"
	"github.com/example/aove-scheduler/internal/kv"
	"github.com/example/aove-scheduler/internal/migrate"
	"github.com/example/aove-scheduler/internal/processor"
	"github.com/example/aove-scheduler/internal/runner"
	"github.com/example/aove-scheduler/internal/runs"
	"github.com/example/aove-scheduler/internal/weaiove"
)

// openDB connects and migrates when DATABASE_URL is set; it returns nil otherwise.
func openDB(ctx context.Context, cfg config.Config) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// env is everything a command needs to talk to storage.
type env struct {
	cfg   config.Config
	db    *db.DB
	store kv.Store
	close func()
}

func openEnv(ctx context.Context, log *zap.Logger) (*env, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	d, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := kv.Open(ctx, cfg, d)
	if err != nil {
		if d != nil {
			d.Close()
		}
		return nil, err
	}
	log.Debug("storage ready", zap.String("kv_backend", cfg.KVBackend), zap.Bool("database", d != nil))
	return &env{cfg: cfg, db: d, store: store, close: func() {
		closeStore()
		if d != nil {
			d.Close()
		}
	}}, nil
}

func (e *env) recorder() runs.Recorder {
	if e.db == nil {
		return runs.Nop{}
	}
	return runs.NewRepo(e.db)
}

// newRunner resolves the notification sink from the store on every call so
// push settings edited between runs take effect.
func (e *env) newRunner(ctx context.Context, mode processor.Mode, log *zap.Logger) *runner.Runner {
	sink := runner.Sink(ctx, e.store, log)
	return &runner.Runner{
		Store: e.store,
		Processor: &processor.Processor{
			Client:      weaiove.New(weaiove.Options{Logger: log.Named("weaiove")}),
			Alerts:      sink,
			Mode:        mode,
			Location:    e.cfg.Location,
			DrawWeekday: e.cfg.DrawWeekday,
			Sleep:       clock.Sleep,
			Log:         log.Named("processor"),
		},
		Sink:     sink,
		Recorder: e.recorder(),
		Delay:    e.cfg.AccountDelay,
		Sleep:    clock.Sleep,
		Log:      log.Named("runner"),
	}
}
