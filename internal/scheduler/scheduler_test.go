package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_tracker/internal/domain"
)

type fakeFlusher struct {
	mu      sync.Mutex
	calls   int
	errs    []error
	block   chan struct{}
	started chan struct{}
	ctxErr  atomic.Value
}

func (f *fakeFlusher) Flush(ctx context.Context) (*domain.SyncStats, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			f.ctxErr.Store(ctx.Err())
			return nil, ctx.Err()
		}
	}
	return &domain.SyncStats{}, err
}

func (f *fakeFlusher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newScheduler(f Flusher, debounce time.Duration) *Scheduler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewScheduler(f, debounce, time.Minute, logger)
}

func TestScheduler_DebouncesBursts(t *testing.T) {
	f := &fakeFlusher{}
	s := newScheduler(f, 50*time.Millisecond)
	defer s.Stop()

	for i := 0; i < 5; i++ {
		s.ScheduleFlush()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, StateScheduled, s.State())
	assert.Equal(t, 0, f.Calls())

	require.Eventually(t, func() bool { return f.Calls() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, f.Calls())
}

func TestScheduler_FlushNowCancelsTimer(t *testing.T) {
	f := &fakeFlusher{}
	s := newScheduler(f, 30*time.Millisecond)
	defer s.Stop()

	s.ScheduleFlush()
	_, err := s.FlushNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, f.Calls())
}

func TestScheduler_ErrorRearmsDebounce(t *testing.T) {
	f := &fakeFlusher{errs: []error{errors.New("down")}}
	s := newScheduler(f, 20*time.Millisecond)
	defer s.Stop()

	_, err := s.FlushNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, s.State())

	require.Eventually(t, func() bool { return f.Calls() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)
}

func TestScheduler_RequestDuringFlushRunsAgain(t *testing.T) {
	block := make(chan struct{})
	f := &fakeFlusher{block: block, started: make(chan struct{}, 1)}
	s := newScheduler(f, 10*time.Millisecond)
	defer s.Stop()

	s.ScheduleFlush()
	<-f.started
	assert.Equal(t, StateFlushing, s.State())

	s.ScheduleFlush()
	f.mu.Lock()
	f.block = nil
	f.started = nil
	f.mu.Unlock()
	close(block)

	require.Eventually(t, func() bool { return f.Calls() == 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_StopCancelsEverything(t *testing.T) {
	f := &fakeFlusher{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newScheduler(f, 10*time.Millisecond)

	s.ScheduleFlush()
	<-f.started

	s.Stop()
	assert.Equal(t, StateStopped, s.State())
	assert.ErrorIs(t, f.ctxErr.Load().(error), context.Canceled)

	s.ScheduleFlush()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, f.Calls())

	_, err := s.FlushNow(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestScheduler_StopsWithContext(t *testing.T) {
	s := newScheduler(&fakeFlusher{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	s.ScheduleFlush()
	cancel()

	require.Eventually(t, func() bool { return s.State() == StateStopped }, time.Second, 5*time.Millisecond)
}
