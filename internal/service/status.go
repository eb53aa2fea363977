package service

import (
	"sort"
	"sync"

	"media_tracker/internal/domain"
)

// StatusBoard holds the latest SyncState and notifies observers on every
// change. Observers are called outside the lock, in registration order.
type StatusBoard struct {
	mu        sync.Mutex
	state     domain.SyncState
	nextID    int
	observers map[int]func(domain.SyncState)
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		state:     domain.SyncState{Status: domain.SyncIdle},
		observers: make(map[int]func(domain.SyncState)),
	}
}

func (b *StatusBoard) State() domain.SyncState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *StatusBoard) Set(state domain.SyncState) {
	b.mu.Lock()
	b.state = state
	fns := b.snapshot()
	b.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Observe registers fn and returns a function that removes it.
func (b *StatusBoard) Observe(fn func(domain.SyncState)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// Reset drops every observer and returns the state to idle without
// notifying anyone.
func (b *StatusBoard) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = domain.SyncState{Status: domain.SyncIdle}
	b.observers = make(map[int]func(domain.SyncState))
}

func (b *StatusBoard) snapshot() []func(domain.SyncState) {
	ids := make([]int, 0, len(b.observers))
	for id := range b.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(domain.SyncState), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.observers[id])
	}
	return fns
}
