package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Backend is a document store without live notifications. Writes return
// the changes they committed so a FeedStore can broadcast them.
type Backend interface {
	Get(ctx context.Context, ref DocRef) (*Document, error)
	Set(ctx context.Context, ref DocRef, data Data, opts SetOptions) (Change, error)
	Commit(ctx context.Context, writes []Write) ([]Change, error)
	Query(ctx context.Context, q Query) ([]Document, error)
}

// ChangeFeed fans committed changes out to every subscriber.
type ChangeFeed interface {
	Publish(ctx context.Context, changes []Change) error
	Subscribe(ctx context.Context, fn func([]Change), onError func(error)) (Unsubscribe, error)
}

// FeedStore implements Store on top of a Backend and a ChangeFeed.
type FeedStore struct {
	backend Backend
	feed    ChangeFeed
	logger  *slog.Logger
}

func NewFeedStore(backend Backend, feed ChangeFeed, logger *slog.Logger) *FeedStore {
	return &FeedStore{backend: backend, feed: feed, logger: logger}
}

func (s *FeedStore) Get(ctx context.Context, ref DocRef) (*Document, error) {
	return s.backend.Get(ctx, ref)
}

func (s *FeedStore) Query(ctx context.Context, q Query) ([]Document, error) {
	return s.backend.Query(ctx, q)
}

func (s *FeedStore) Set(ctx context.Context, ref DocRef, data Data, opts SetOptions) error {
	change, err := s.backend.Set(ctx, ref, data, opts)
	if err != nil {
		return err
	}
	s.publish(ctx, []Change{change})
	return nil
}

func (s *FeedStore) BatchCommit(ctx context.Context, writes []Write) error {
	if err := ValidateBatch(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	changes, err := s.backend.Commit(ctx, writes)
	if err != nil {
		return err
	}
	s.publish(ctx, changes)
	return nil
}

// publish never fails the write: the data is committed and listeners will
// converge on their next snapshot.
func (s *FeedStore) publish(ctx context.Context, changes []Change) {
	if len(changes) == 0 {
		return
	}
	if err := s.feed.Publish(ctx, changes); err != nil {
		s.logger.Warn("failed to publish changes", "count", len(changes), "error", err)
	}
}

func (s *FeedStore) OnSnapshot(ctx context.Context, q Query, onNext func(Snapshot), onError func(error)) (Unsubscribe, error) {
	l := &listener{query: q, onNext: onNext}

	// Deliveries wait until the initial snapshot has been handed over.
	l.mu.Lock()
	defer l.mu.Unlock()

	unsub, err := s.feed.Subscribe(ctx, l.deliver, onError)
	if err != nil {
		return nil, fmt.Errorf("subscribe to change feed: %w", err)
	}

	docs, err := s.backend.Query(ctx, q)
	if err != nil {
		unsub()
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}

	initial := Snapshot{Initial: true, Changes: make([]Change, 0, len(docs))}
	for _, d := range docs {
		initial.Changes = append(initial.Changes, Change{Type: ChangeAdded, Doc: d})
	}
	onNext(initial)

	return func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		unsub()
	}, nil
}

type listener struct {
	mu     sync.Mutex
	query  Query
	onNext func(Snapshot)
	closed bool
}

func (l *listener) deliver(changes []Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	var matched []Change
	for _, c := range changes {
		if l.query.Matches(c.Doc) {
			matched = append(matched, c)
		}
	}
	if len(matched) > 0 {
		l.onNext(Snapshot{Changes: matched})
	}
}
