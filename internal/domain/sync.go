package domain

import "time"

type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

type SyncState struct {
	Status  SyncStatus
	Message string
	Pending int
}

// SyncStats holds statistics about a flush.
type SyncStats struct {
	Drained  int
	Batches  int
	Written  int
	Failed   int
	Attempts int
	Duration time.Duration
}
