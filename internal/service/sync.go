package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"media_tracker/internal/config"
	"media_tracker/internal/domain"
)

// SyncService flushes the mutation queue to the remote store.
type SyncService struct {
	writer BatchWriter
	queue  ChangeQueue
	status *StatusBoard
	logger *slog.Logger
	config config.SyncConfig

	// flushMu serializes flushes.
	flushMu sync.Mutex

	mu       sync.Mutex
	inflight []domain.PendingChange
	closed   bool
}

func NewSyncService(
	writer BatchWriter,
	queue ChangeQueue,
	status *StatusBoard,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		writer: writer,
		queue:  queue,
		status: status,
		logger: logger,
		config: cfg,
	}
}

// Flush drains the queue and commits it in chunks of at most
// MaxBatchSize, retrying each chunk with linear backoff. Changes that still
// fail are put back into the queue and the error status reports how many
// are pending.
func (s *SyncService) Flush(ctx context.Context) (*domain.SyncStats, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if s.isClosed() {
		return nil, domain.ErrSessionClosed
	}

	startTime := time.Now()
	changes := s.queue.Drain()
	stats := &domain.SyncStats{Drained: len(changes)}

	if len(changes) == 0 {
		if s.status.State().Status != domain.SyncIdle {
			s.status.Set(domain.SyncState{Status: domain.SyncSuccess, Message: "up to date"})
		}
		return stats, nil
	}

	s.setInflight(changes)
	s.status.Set(domain.SyncState{
		Status:  domain.SyncSyncing,
		Message: fmt.Sprintf("syncing %d changes", len(changes)),
		Pending: len(changes),
	})
	s.logger.Info("starting flush", "changes", len(changes), "max_batch_size", s.config.MaxBatchSize)

	var (
		failed  []domain.PendingChange
		lastErr error
	)
	for _, chunk := range Chunk(DeletesLast(changes), s.config.MaxBatchSize) {
		stats.Batches++
		if ctx.Err() != nil {
			failed = append(failed, chunk...)
			lastErr = ctx.Err()
			continue
		}

		attempts, err := s.commit(ctx, chunk)
		stats.Attempts += attempts
		if err != nil {
			s.logger.Error("chunk failed", "size", len(chunk), "attempts", attempts, "error", err)
			failed = append(failed, chunk...)
			lastErr = err
			continue
		}
		stats.Written += len(chunk)
	}

	stats.Failed = len(failed)
	stats.Duration = time.Since(startTime)

	if s.isClosed() {
		s.setInflight(nil)
		return stats, domain.ErrSessionClosed
	}

	if len(failed) > 0 {
		s.queue.Restore(failed)
		s.setInflight(nil)
		pending := s.queue.Len()
		s.status.Set(domain.SyncState{
			Status:  domain.SyncError,
			Message: fmt.Sprintf("%d changes pending: %v", pending, lastErr),
			Pending: pending,
		})
		s.logger.Warn("flush incomplete",
			"written", stats.Written,
			"failed", stats.Failed,
			"pending", pending,
			"duration", stats.Duration,
		)
		return stats, fmt.Errorf("flush: %d of %d changes failed: %w", stats.Failed, stats.Drained, lastErr)
	}

	s.setInflight(nil)
	s.status.Set(domain.SyncState{
		Status:  domain.SyncSuccess,
		Message: fmt.Sprintf("synced %d changes", stats.Written),
		Pending: s.queue.Len(),
	})
	s.logger.Info("flush completed",
		"written", stats.Written,
		"batches", stats.Batches,
		"attempts", stats.Attempts,
		"duration", stats.Duration,
	)
	return stats, nil
}

// commit writes one chunk, retrying up to MaxRetries attempts in total.
// Validation failures are not retried.
func (s *SyncService) commit(ctx context.Context, chunk []domain.PendingChange) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		err := s.writer.BatchWrite(ctx, chunk)
		if err != nil && domain.IsValidation(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	retries := s.config.MaxRetries - 1
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&LinearBackOff{Step: s.config.RetryBackoff}, uint64(retries)),
		ctx,
	)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		s.logger.Warn("chunk commit failed, retrying", "attempt", attempts, "backoff", wait, "error", err)
	})
	return attempts, err
}

// Pending lists every unacknowledged change: the batch currently being
// written followed by whatever was queued since.
func (s *SyncService) Pending() []domain.PendingChange {
	s.mu.Lock()
	inflight := append([]domain.PendingChange(nil), s.inflight...)
	s.mu.Unlock()
	return append(inflight, s.queue.Pending()...)
}

// Close stops results of an in-flight flush from touching the queue or the
// status board.
func (s *SyncService) Close() {
	s.mu.Lock()
	s.closed = true
	s.inflight = nil
	s.mu.Unlock()
}

func (s *SyncService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SyncService) setInflight(changes []domain.PendingChange) {
	s.mu.Lock()
	s.inflight = changes
	s.mu.Unlock()
}

// Chunk splits changes into slices of at most size entries.
func Chunk(changes []domain.PendingChange, size int) [][]domain.PendingChange {
	if size <= 0 {
		size = len(changes)
	}
	var chunks [][]domain.PendingChange
	for len(changes) > 0 {
		n := min(size, len(changes))
		chunks = append(chunks, changes[:n:n])
		changes = changes[n:]
	}
	return chunks
}

// DeletesLast returns a copy of changes with deletes moved behind every
// create and update, keeping relative order otherwise.
func DeletesLast(changes []domain.PendingChange) []domain.PendingChange {
	out := make([]domain.PendingChange, 0, len(changes))
	var deletes []domain.PendingChange
	for _, c := range changes {
		if c.Type == domain.ChangeDelete {
			deletes = append(deletes, c)
			continue
		}
		out = append(out, c)
	}
	return append(out, deletes...)
}

// LinearBackOff waits Step, 2*Step, 3*Step and so on between attempts.
type LinearBackOff struct {
	Step time.Duration
	n    int
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.Step
}

func (b *LinearBackOff) Reset() {
	b.n = 0
}

var _ backoff.BackOff = (*LinearBackOff)(nil)

// IsClosed reports whether err comes from a flush on a closed session.
func IsClosed(err error) bool {
	return errors.Is(err, domain.ErrSessionClosed)
}
