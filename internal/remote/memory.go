package remote

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryBackend keeps documents in process. Commits are atomic: a failing
// write leaves the store untouched.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]Document
	now  func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]Document), now: time.Now}
}

func (b *MemoryBackend) Get(ctx context.Context, ref DocRef) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc, ok := b.docs[ref.Path()]
	if !ok {
		return nil, ErrNotFound
	}
	doc.Data = doc.Data.clone()
	return &doc, nil
}

func (b *MemoryBackend) Set(ctx context.Context, ref DocRef, data Data, opts SetOptions) (Change, error) {
	changes, err := b.Commit(ctx, []Write{{Type: WriteSet, Ref: ref, Data: data, Merge: opts.Merge}})
	if err != nil {
		return Change{}, err
	}
	return changes[0], nil
}

func (b *MemoryBackend) Commit(ctx context.Context, writes []Write) ([]Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make(map[string]*Document)
	lookup := func(path string) (Document, bool) {
		if d, ok := staged[path]; ok {
			if d == nil {
				return Document{}, false
			}
			return *d, true
		}
		d, ok := b.docs[path]
		return d, ok
	}

	now := b.now().UTC()
	changes := make([]Change, 0, len(writes))
	for i, w := range writes {
		path := w.Ref.Path()
		prev, exists := lookup(path)

		var data Data
		if w.Type != WriteDelete {
			normalized, err := NormalizeData(w.Data)
			if err != nil {
				return nil, &BatchError{Index: i, Ref: w.Ref, Err: err}
			}
			data = normalized
		}

		switch w.Type {
		case WriteDelete:
			if !exists {
				continue
			}
			staged[path] = nil
			changes = append(changes, Change{Type: ChangeRemoved, Doc: prev})
		case WriteUpdate:
			if !exists {
				return nil, &BatchError{Index: i, Ref: w.Ref, Err: ErrNotFound}
			}
			next := Document{Ref: w.Ref, Data: MergeData(prev.Data, data), UpdatedAt: now}
			staged[path] = &next
			changes = append(changes, Change{Type: ChangeModified, Doc: next})
		case WriteSet:
			if w.Merge && exists {
				data = MergeData(prev.Data, data)
			}
			next := Document{Ref: w.Ref, Data: data, UpdatedAt: now}
			staged[path] = &next
			typ := ChangeAdded
			if exists {
				typ = ChangeModified
			}
			changes = append(changes, Change{Type: typ, Doc: next})
		}
	}

	for path, d := range staged {
		if d == nil {
			delete(b.docs, path)
			continue
		}
		b.docs[path] = *d
	}
	return changes, nil
}

func (b *MemoryBackend) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Document
	for _, d := range b.docs {
		if q.Matches(d) {
			d.Data = d.Data.clone()
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Path() < out[j].Ref.Path() })
	return out, nil
}

// MemoryFeed delivers published changes synchronously to every subscriber.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func([]Change)
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]func([]Change))}
}

func (f *MemoryFeed) Publish(_ context.Context, changes []Change) error {
	f.mu.Lock()
	ids := make([]int, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func([]Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.subs[id])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(changes)
	}
	return nil
}

func (f *MemoryFeed) Subscribe(_ context.Context, fn func([]Change), _ func(error)) (Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}, nil
}

// NewMemoryStore returns a complete in-process Store.
func NewMemoryStore(logger *slog.Logger) *FeedStore {
	return NewFeedStore(NewMemoryBackend(), NewMemoryFeed(), logger)
}
