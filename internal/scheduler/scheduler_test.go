package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var cst = time.FixedZone("CST", 8*3600)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_RunsOncePerDay(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 18, 8, 30, 0, 0, cst)}
	var runs atomic.Int32
	s := &Scheduler{
		Job:      func(context.Context) error { runs.Add(1); return nil },
		At:       "08:00",
		Location: cst,
		Interval: 5 * time.Millisecond,
		Now:      clk.Now,
	}

	runFor(t, s, 60*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_WaitsForSlot(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 18, 7, 59, 0, 0, cst)}
	var runs atomic.Int32
	s := &Scheduler{
		Job:      func(context.Context) error { runs.Add(1); return nil },
		At:       "08:00",
		Location: cst,
		Interval: 5 * time.Millisecond,
		Now:      clk.Now,
	}

	runFor(t, s, 40*time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestScheduler_NextDayRunsAgain(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, cst)}
	var runs atomic.Int32
	s := &Scheduler{
		Job: func(context.Context) error {
			if runs.Add(1) == 1 {
				clk.Set(time.Date(2026, 10, 19, 8, 0, 0, 0, cst))
			}
			return errors.New("reported")
		},
		At:       "08:00",
		Location: cst,
		Interval: 5 * time.Millisecond,
		Now:      clk.Now,
	}

	runFor(t, s, 80*time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduler_LastRunSeedsGuard(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, cst)}
	var runs atomic.Int32
	s := &Scheduler{
		Job:      func(context.Context) error { runs.Add(1); return nil },
		At:       "08:00",
		Location: cst,
		Interval: 5 * time.Millisecond,
		Now:      clk.Now,
		LastRun: func(context.Context) (time.Time, bool, error) {
			// 08:05 CST on the same day, expressed in UTC
			return time.Date(2026, 10, 18, 0, 5, 0, 0, time.UTC), true, nil
		},
	}

	runFor(t, s, 40*time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestScheduler_NoOverlap(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, cst)}
	var runs atomic.Int32
	release := make(chan struct{})
	s := &Scheduler{
		Job: func(ctx context.Context) error {
			runs.Add(1)
			// the day rolls over while this run is still going
			clk.Set(time.Date(2026, 10, 19, 9, 0, 0, 0, cst))
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
		At:       "08:00",
		Location: cst,
		Interval: 5 * time.Millisecond,
		Now:      clk.Now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	close(release)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScheduler_BadTime(t *testing.T) {
	s := &Scheduler{Job: func(context.Context) error { return nil }, At: "8am"}
	assert.Error(t, s.Run(context.Background()))
}

func TestScheduler_StartWaitsForRunningJob(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 18, 8, 30, 0, 0, cst)}
	started := make(chan struct{})
	var finished atomic.Bool
	s := &Scheduler{
		Job: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return ctx.Err()
		},
		At:       "08:00",
		Location: cst,
		Interval: 5 * time.Millisecond,
		Now:      clk.Now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	wait := s.Start(ctx)
	<-started
	cancel()

	require.ErrorIs(t, wait(), context.Canceled)
	assert.True(t, finished.Load())
	require.ErrorIs(t, wait(), context.Canceled)
}
