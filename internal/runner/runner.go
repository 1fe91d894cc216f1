// Package runner drives one pass over every stored account.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/account"
	"github.com/example/aove-scheduler/internal/clock"
	"github.com/example/aove-scheduler/internal/internaltypes"
	"github.com/example/aove-scheduler/internal/kv"
	"github.com/example/aove-scheduler/internal/notify"
	"github.com/example/aove-scheduler/internal/processor"
	"github.com/example/aove-scheduler/internal/runs"
)

// DefaultDelay is the pause between two accounts.
const DefaultDelay = 500 * time.Millisecond

// pointsChunkSize is the default batch for ModePoints, whose lines are short.
const pointsChunkSize = 30

type Runner struct {
	Store     kv.Store
	Processor *processor.Processor
	// Sink receives batch reports and run-level errors.
	Sink     notify.Notifier
	Recorder runs.Recorder
	Delay    time.Duration
	Sleep    clock.SleepFunc
	Log      *zap.Logger
}

func (r *Runner) init() {
	if r.Log == nil {
		r.Log = zap.NewNop()
	}
	if r.Sleep == nil {
		r.Sleep = clock.Sleep
	}
	if r.Recorder == nil {
		r.Recorder = runs.Nop{}
	}
}

func (r *Runner) mode() processor.Mode {
	if r.Processor.Mode == "" {
		return processor.ModeDaily
	}
	return r.Processor.Mode
}

// pass is the state of one Execute call, kept outside run so the deferred
// cleanup still sees it after a panic.
type pass struct {
	id       uuid.UUID
	log      *zap.Logger
	batch    *notify.Batcher
	accounts int
}

// Execute runs once and never panics. Errors other than configuration
// errors (already reported by Run) produce one error notification, and the
// run record is always closed.
func (r *Runner) Execute(ctx context.Context) (err error) {
	r.init()
	mode := r.mode()
	started := time.Now()

	runID, serr := r.Recorder.Start(ctx, string(mode))
	if serr != nil {
		r.Log.Warn("run history unavailable", zap.Error(serr))
		runID = uuid.New()
	}
	p := &pass{id: runID, log: r.Log.With(zap.String("run", runID.String()), zap.String("mode", string(mode)))}

	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
		cleanup := context.WithoutCancel(ctx)
		if err != nil && p.batch != nil {
			if ferr := p.batch.FlushIfDue(cleanup, true); ferr != nil {
				p.log.Warn("batch notification failed", zap.Error(ferr))
			}
		}
		if err != nil && !errors.Is(err, internaltypes.ErrConfig) {
			p.log.Error("run failed", zap.Error(err))
			r.notify(cleanup, notify.Message{
				Title:    "❌ Weaiove script error",
				Subtitle: string(mode),
				Body:     err.Error(),
			})
		}
		if ferr := r.Recorder.Finish(cleanup, runID, p.accounts, err); ferr != nil {
			p.log.Warn("closing run record failed", zap.Error(ferr))
		}
		p.log.Info("run finished", zap.Int("accounts", p.accounts), zap.Duration("took", time.Since(started)), zap.Error(err))
	}()

	return r.run(ctx, p)
}

func (r *Runner) run(ctx context.Context, p *pass) error {
	log := p.log
	raw, ok, err := r.Store.Read(ctx, kv.KeyAccounts)
	if err != nil {
		return fmt.Errorf("read %s: %w", kv.KeyAccounts, err)
	}
	var accounts []account.Account
	if ok {
		accounts, err = account.Parse(raw, log)
	} else {
		err = fmt.Errorf("%w: %s is not set", internaltypes.ErrConfig, kv.KeyAccounts)
	}
	if err != nil {
		r.notify(ctx, notify.Message{
			Title:    "❌ Weaiove configuration error",
			Subtitle: "no valid accounts",
			Body:     fmt.Sprintf("Check that %s looks like token1|label1@token2|label2", kv.KeyAccounts),
		})
		return err
	}

	p.batch = r.newBatcher(ctx, log)
	log.Info("run started", zap.Int("accounts", len(accounts)), zap.Int("chunk", p.batch.Size()))

	for i, acct := range accounts {
		index := i + 1
		alog := log.With(zap.Int("index", index), zap.String("account", acct.Label))
		alog.Info("processing account")

		rep := r.Processor.Process(ctx, index, acct)
		p.batch.Add(rep.String())
		p.accounts = index
		if err := r.Recorder.AddReport(ctx, p.id, runs.Report{Index: index, Label: acct.Label, Failed: rep.Failed, Body: rep.String()}); err != nil {
			alog.Warn("storing report failed", zap.Error(err))
		}

		// a cancelled sleep returns err; the deferred cleanup flushes the rest
		if err := r.Sleep(ctx, r.delay()); err != nil {
			return err
		}
		if err := p.batch.FlushIfDue(ctx, index == len(accounts)); err != nil {
			alog.Warn("batch notification failed", zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) delay() time.Duration {
	if r.Delay > 0 {
		return r.Delay
	}
	return DefaultDelay
}

func (r *Runner) newBatcher(ctx context.Context, log *zap.Logger) *notify.Batcher {
	def := notify.DefaultChunkSize
	title := "💖 Weaiove report (accounts %d-%d)"
	opts := notify.Options{Group: "weaiove"}
	switch r.mode() {
	case processor.ModePoints:
		def = pointsChunkSize
		title = "Weaiove points (accounts %d-%d)"
		opts.IsArchive = true
	case processor.ModeCoupons:
		title = "Weaiove coupons (accounts %d-%d)"
	}

	size, replaced, err := kv.ReadInt(ctx, r.Store, kv.KeyChunkSize, def)
	if err != nil {
		log.Warn("reading chunk size failed, using default", zap.Int("default", def), zap.Error(err))
	}
	if replaced {
		log.Warn("invalid "+kv.KeyChunkSize+", using default", zap.Int("default", def))
	}
	return notify.NewBatcher(r.Sink, size, title, opts)
}

func (r *Runner) notify(ctx context.Context, msg notify.Message) {
	if err := r.Sink.Notify(ctx, msg); err != nil {
		r.Log.Warn("notification failed", zap.String("title", msg.Title), zap.Error(err))
	}
}

// Sink picks Bark when BARK_KEY is configured, falling back to the log
// sink for undeliverable pushes, and the log sink alone otherwise.
func Sink(ctx context.Context, store kv.Store, log *zap.Logger) notify.Notifier {
	local := notify.NewLogNotifier(log.Named("notify"))
	key, ok, err := store.Read(ctx, kv.KeyBarkKey)
	if err != nil {
		log.Warn("reading "+kv.KeyBarkKey+" failed", zap.Error(err))
	}
	if !ok {
		return local
	}
	server, _, err := store.Read(ctx, kv.KeyBarkServer)
	if err != nil {
		log.Warn("reading "+kv.KeyBarkServer+" failed", zap.Error(err))
	}
	bark, err := notify.NewBark(key, server, log.Named("bark"))
	if err != nil {
		log.Warn("bark disabled", zap.Error(err))
		return local
	}
	bark.Fallback = local
	return bark
}
