package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler polls the clock and starts Job once per local day, at or after
// the configured time of day. A day missed while the process was down is
// caught up on the first poll after startup.
type Scheduler struct {
	Job      func(ctx context.Context) error
	At       string // HH:MM
	Location *time.Location
	Interval time.Duration
	Now      func() time.Time
	// LastRun seeds the once-per-day guard, typically from run history.
	LastRun func(ctx context.Context) (time.Time, bool, error)
	Log     *zap.Logger

	mu      sync.Mutex
	lastDay string
	running bool
	wg      sync.WaitGroup
	hour    int
	minute  int
}

func (s *Scheduler) init(ctx context.Context) error {
	at, err := time.Parse("15:04", s.At)
	if err != nil {
		return fmt.Errorf("schedule time %q: %w", s.At, err)
	}
	s.hour, s.minute = at.Hour(), at.Minute()
	if s.Location == nil {
		s.Location = time.Local
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	if s.Interval <= 0 {
		s.Interval = 30 * time.Second
	}
	if s.LastRun != nil {
		last, ok, err := s.LastRun(ctx)
		if err != nil {
			s.Log.Warn("last run unknown", zap.Error(err))
		} else if ok {
			s.lastDay = day(last.In(s.Location))
		}
	}
	return nil
}

func day(t time.Time) string { return t.Format("2006-01-02") }

func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		return err
	}
	s.Log.Info("scheduler started", zap.String("at", s.At), zap.String("tz", s.Location.String()), zap.String("last_day", s.lastDay))

	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

// Start runs the scheduler in the background. The returned wait blocks until
// Run has returned, including any job still finishing after ctx is done.
func (s *Scheduler) Start(ctx context.Context) (wait func() error) {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return sync.OnceValue(func() error { return <-done })
}

// due reports whether now is past today's slot and today has not run yet.
func (s *Scheduler) due(now time.Time) bool {
	now = now.In(s.Location)
	slot := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.Location)
	return !now.Before(slot) && day(now) != s.lastDay
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if s.running || !s.due(now) {
		return
	}
	s.lastDay = day(now.In(s.Location))
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		s.Log.Info("scheduled run starting", zap.String("day", s.lastDay))
		if err := s.Job(ctx); err != nil {
			s.Log.Warn("scheduled run reported an error", zap.Error(err))
		}
	}()
}
