// Package session owns everything a signed-in user's collection needs:
// the local collection, the mutation queue, the flush scheduler and the
// change-feed reconciler. Login builds it and Logout tears it down.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"media_tracker/internal/collection"
	"media_tracker/internal/config"
	"media_tracker/internal/domain"
	"media_tracker/internal/queue"
	"media_tracker/internal/reconcile"
	"media_tracker/internal/remote"
	"media_tracker/internal/scheduler"
	"media_tracker/internal/schema"
	"media_tracker/internal/service"
)

type Deps struct {
	Store  remote.Store
	Config config.Config
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type User struct {
	ID    string
	Email string
}

type Session struct {
	user      User
	mediaType domain.MediaType
	store     remote.Store
	adapter   schema.Adapter
	baseLog   *slog.Logger
	logger    *slog.Logger
	now       func() time.Time
	guard     *rateGuard

	coll       *collection.Collection
	queue      *queue.Queue
	status     *service.StatusBoard
	sync       *service.SyncService
	scheduler  *scheduler.Scheduler
	reconciler *reconcile.Reconciler

	// catMu serializes category writes.
	catMu sync.Mutex

	mu         sync.Mutex
	categories []domain.Category
	closed     bool
}

// Login resolves the account's storage layout, loads its categories and
// items for mediaType and subscribes to remote changes.
func Login(ctx context.Context, deps Deps, user User, mediaType domain.MediaType) (*Session, error) {
	if strings.TrimSpace(user.ID) == "" {
		return nil, &domain.ValidationError{Field: domain.FieldUserID, Reason: "must not be empty"}
	}
	if !mediaType.Valid() {
		return nil, &domain.ValidationError{Field: "mediaType", Reason: fmt.Sprintf("unknown media type %q", mediaType)}
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger.With("user_id", user.ID, "media_type", mediaType)

	adapter := schema.Open(ctx, deps.Store, user.ID, mediaType, deps.Logger)

	categories, err := loadCategories(ctx, deps.Store, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	items, err := adapter.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	coll := collection.New(mediaType)
	coll.Replace(items)

	q := queue.New()
	status := service.NewStatusBoard()
	syncService := service.NewSyncService(adapter, q, status, logger, deps.Config.Sync)
	sched := scheduler.NewScheduler(syncService, deps.Config.Sync.Debounce, deps.Config.Sync.FlushTimeout, logger)
	q.OnEnqueue(sched.ScheduleFlush)

	s := &Session{
		user:       user,
		mediaType:  mediaType,
		store:      deps.Store,
		adapter:    adapter,
		baseLog:    deps.Logger,
		logger:     logger,
		now:        now,
		guard:      newRateGuard(deps.Config.RateLimit.HourlyQuota),
		coll:       coll,
		queue:      q,
		status:     status,
		sync:       syncService,
		scheduler:  sched,
		reconciler: reconcile.New(coll, syncService, logger),
		categories: categories[mediaType.CategoryCollection()],
	}

	if err := s.reconciler.Start(ctx, adapter, s.onFeedError); err != nil {
		sched.Stop()
		return nil, err
	}

	logger.Info("session started", "schema", adapter.Kind(), "items", coll.Len())
	return s, nil
}

func (s *Session) User() User {
	return s.user
}

func (s *Session) MediaType() domain.MediaType {
	return s.mediaType
}

func (s *Session) Schema() schema.Kind {
	return s.adapter.Kind()
}

func (s *Session) SyncState() domain.SyncState {
	return s.status.State()
}

// OnStatus registers fn for every sync status change and returns a
// function that unregisters it.
func (s *Session) OnStatus(fn func(domain.SyncState)) func() {
	return s.status.Observe(fn)
}

// FlushNow writes pending changes without waiting for the debounce period.
func (s *Session) FlushNow(ctx context.Context) (*domain.SyncStats, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	return s.scheduler.FlushNow(ctx)
}

// Logout discards unsent changes, stops the scheduler and the change feed
// and resets the sync status. Callers that want pending changes saved must
// call FlushNow first.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.sync.Close()
	s.scheduler.Stop()
	s.reconciler.Close()
	discarded := s.queue.Len()
	s.queue.Reset()
	s.status.Reset()

	s.logger.Info("session closed", "discarded_changes", discarded)
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return nil
}

func (s *Session) onFeedError(err error) {
	if s.begin() != nil {
		return
	}
	s.status.Set(domain.SyncState{
		Status:  domain.SyncError,
		Message: fmt.Sprintf("change feed: %v", err),
		Pending: s.queue.Len(),
	})
}
