// Package reconcile merges change-feed deltas into the local collection.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"media_tracker/internal/collection"
	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
)

// PendingSource lists local changes the remote store has not acknowledged
// yet, oldest first.
type PendingSource interface {
	Pending() []domain.PendingChange
}

type Subscriber interface {
	Subscribe(ctx context.Context, onChange func(domain.DeltaBatch), onError func(error)) (remote.Unsubscribe, error)
}

// Reconciler keeps the last known remote state and rebuilds the local
// collection from it after every delta batch, with pending local edits
// applied on top. The result does not depend on the order deltas arrive in.
type Reconciler struct {
	coll    *collection.Collection
	pending PendingSource
	logger  *slog.Logger

	mu      sync.Mutex
	remote  map[string]domain.Item
	synced  bool
	closed  bool
	unsub   remote.Unsubscribe
	batches int
}

func New(coll *collection.Collection, pending PendingSource, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		coll:    coll,
		pending: pending,
		logger:  logger,
		remote:  make(map[string]domain.Item),
	}
}

// Start subscribes to the change feed. The first batch delivered is taken
// as the full remote state.
func (r *Reconciler) Start(ctx context.Context, sub Subscriber, onError func(error)) error {
	unsub, err := sub.Subscribe(ctx, r.Apply, func(err error) {
		r.logger.Error("change feed failed", "error", err)
		if onError != nil && !r.isClosed() {
			onError(err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to changes: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		unsub()
		return domain.ErrSessionClosed
	}
	r.unsub = unsub
	return nil
}

func (r *Reconciler) Apply(batch domain.DeltaBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if batch.Initial || !r.synced {
		r.remote = make(map[string]domain.Item, len(batch.Deltas))
		r.synced = true
	}
	for _, d := range batch.Deltas {
		switch d.Type {
		case domain.DeltaAdded, domain.DeltaModified:
			r.remote[d.Item.ID] = d.Item
		case domain.DeltaRemoved:
			delete(r.remote, d.Item.ID)
		}
	}
	r.batches++

	r.rebuild()
	r.logger.Debug("applied change batch", "initial", batch.Initial, "deltas", len(batch.Deltas), "items", r.coll.Len())
}

// Local runs an optimistic edit so that it never interleaves with a delta
// batch being applied.
func (r *Reconciler) Local(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// Refresh rebuilds the collection from the known remote state, for example
// after a failed flush put changes back into the queue.
func (r *Reconciler) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.synced {
		return
	}
	r.rebuild()
}

func (r *Reconciler) Synced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced
}

func (r *Reconciler) Close() {
	r.mu.Lock()
	unsub := r.unsub
	r.closed = true
	r.unsub = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (r *Reconciler) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reconciler) rebuild() {
	items := make(map[string]domain.Item, len(r.remote))
	for id, it := range r.remote {
		items[id] = it
	}

	for _, pc := range r.pending.Pending() {
		switch pc.Type {
		case domain.ChangeDelete:
			delete(items, pc.ID)
		case domain.ChangeCreate:
			it, err := domain.ItemFromFields(pc.Data)
			if err != nil {
				r.logger.Warn("skipping undecodable pending create", "item_id", pc.ID, "error", err)
				continue
			}
			it.ID = pc.ID
			items[pc.ID] = it
		case domain.ChangeUpdate:
			cur, ok := items[pc.ID]
			if !ok {
				continue
			}
			next, err := cur.Apply(pc.Data)
			if err != nil {
				r.logger.Warn("skipping unappliable pending update", "item_id", pc.ID, "error", err)
				continue
			}
			next.ID = pc.ID
			items[pc.ID] = next
		}
	}

	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	r.coll.Replace(out)
}
