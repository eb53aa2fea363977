package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"media_tracker/internal/domain"
	"media_tracker/internal/service"
)

// Flusher defines the interface for flush operations.
type Flusher interface {
	Flush(ctx context.Context) (*domain.SyncStats, error)
}

type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateFlushing  State = "flushing"
	StateError     State = "error"
	StateStopped   State = "stopped"
)

// Scheduler debounces flush requests: every ScheduleFlush restarts the
// quiet period, and a flush runs only once no request arrived for the
// whole period. A failed flush re-arms the timer and the scheduler stays in
// StateError until a flush succeeds.
type Scheduler struct {
	flusher  Flusher
	debounce time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	timer  *time.Timer
	gen    uint64
	rerun  bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(flusher Flusher, debounce, timeout time.Duration, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		flusher:  flusher,
		debounce: debounce,
		timeout:  timeout,
		logger:   logger,
		state:    StateIdle,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start ties the scheduler to ctx: once ctx is done the scheduler stops.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "debounce", s.debounce)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

func (s *Scheduler) ScheduleFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arm()
}

// arm must be called with mu held.
func (s *Scheduler) arm() {
	switch s.state {
	case StateStopped:
		return
	case StateFlushing:
		s.rerun = true
		return
	}

	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(gen) })
	if s.state != StateError {
		s.state = StateScheduled
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.state == StateStopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateFlushing
	s.timer = nil
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	_, err := s.runFlush()
	s.finish(err)
}

// FlushNow cancels any pending timer and flushes immediately.
func (s *Scheduler) FlushNow(ctx context.Context) (*domain.SyncStats, error) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = StateFlushing
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	flushCtx, cancel := mergeCancel(ctx, s.ctx)
	defer cancel()

	stats, err := s.flusher.Flush(flushCtx)
	s.finish(err)
	return stats, err
}

func (s *Scheduler) runFlush() (*domain.SyncStats, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	stats, err := s.flusher.Flush(ctx)
	if err != nil && !service.IsClosed(err) {
		s.logger.Error("flush failed", "error", err)
	}
	return stats, err
}

func (s *Scheduler) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}

	rerun := s.rerun
	s.rerun = false
	switch {
	case err != nil:
		s.state = StateError
		s.arm()
	case rerun:
		s.state = StateIdle
		s.arm()
	default:
		s.state = StateIdle
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop cancels the pending timer and any in-flight flush, then waits for
// the flush to return. Nothing is flushed on the way out.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// mergeCancel returns a context that is done when either parent is.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
