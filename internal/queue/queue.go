// Package queue holds coalesced local edits until the sync service flushes
// them to the remote store.
package queue

import (
	"sync"

	"media_tracker/internal/domain"
)

// Queue keeps at most one pending change per item id, in first-enqueued
// order.
type Queue struct {
	mu       sync.Mutex
	entries  map[string]*domain.PendingChange
	order    []string
	onChange []func()
}

func New() *Queue {
	return &Queue{entries: make(map[string]*domain.PendingChange)}
}

// OnEnqueue registers fn to run after every enqueue and restore. The sync
// scheduler uses it to re-arm its debounce timer.
func (q *Queue) OnEnqueue(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = append(q.onChange, fn)
}

// Enqueue records a local edit, folding it into any pending entry for the
// same id.
func (q *Queue) Enqueue(typ domain.ChangeType, id string, data domain.Fields) {
	q.mu.Lock()
	next := domain.PendingChange{Type: typ, ID: id, Data: data.Clone()}
	if prev, ok := q.entries[id]; ok {
		merged := copyChange(Coalesce(*prev, next))
		q.entries[id] = &merged
	} else {
		q.put(next)
	}
	hooks := q.hooks()
	q.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Coalesce folds next onto prev for the same id. Delete wins over anything
// before it, an update can never resurrect a pending delete, a create always
// starts fresh, and an update merges onto a pending create or update while
// keeping the earlier type.
func Coalesce(prev, next domain.PendingChange) domain.PendingChange {
	switch next.Type {
	case domain.ChangeDelete:
		return domain.PendingChange{Type: domain.ChangeDelete, ID: next.ID}
	case domain.ChangeCreate:
		return next
	}

	switch prev.Type {
	case domain.ChangeDelete:
		return prev
	case domain.ChangeCreate, domain.ChangeUpdate:
		return domain.PendingChange{
			Type: prev.Type,
			ID:   prev.ID,
			Data: prev.Data.Merge(next.Data),
		}
	}
	return next
}

// Drain snapshots every pending change and empties the queue in one step.
// Edits enqueued afterwards land in a fresh, independent batch.
func (q *Queue) Drain() []domain.PendingChange {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.snapshot()
	q.entries = make(map[string]*domain.PendingChange)
	q.order = nil
	return out
}

// Restore merges changes that failed to flush back into the live queue.
// Anything enqueued since the drain is newer and is folded on top.
func (q *Queue) Restore(failed []domain.PendingChange) {
	if len(failed) == 0 {
		return
	}

	q.mu.Lock()
	for _, old := range failed {
		live, ok := q.entries[old.ID]
		if !ok {
			q.put(old)
			continue
		}
		merged := copyChange(Coalesce(old, *live))
		q.entries[old.ID] = &merged
	}
	hooks := q.hooks()
	q.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func (q *Queue) Get(id string) (domain.PendingChange, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pc, ok := q.entries[id]
	if !ok {
		return domain.PendingChange{}, false
	}
	return copyChange(*pc), true
}

func (q *Queue) Pending() []domain.PendingChange {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Reset discards every pending change without flushing.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]*domain.PendingChange)
	q.order = nil
}

func (q *Queue) put(pc domain.PendingChange) {
	c := copyChange(pc)
	q.entries[pc.ID] = &c
	q.order = append(q.order, pc.ID)
}

func (q *Queue) snapshot() []domain.PendingChange {
	out := make([]domain.PendingChange, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, copyChange(*q.entries[id]))
	}
	return out
}

func (q *Queue) hooks() []func() {
	out := make([]func(), len(q.onChange))
	copy(out, q.onChange)
	return out
}

func copyChange(pc domain.PendingChange) domain.PendingChange {
	pc.Data = pc.Data.Clone()
	return pc
}
