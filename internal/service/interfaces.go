package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"media_tracker/internal/domain"
)

// BatchWriter commits one chunk of coalesced changes to the remote store.
type BatchWriter interface {
	BatchWrite(ctx context.Context, changes []domain.PendingChange) error
}

type ChangeQueue interface {
	Drain() []domain.PendingChange
	Restore(failed []domain.PendingChange)
	Pending() []domain.PendingChange
	Len() int
}
