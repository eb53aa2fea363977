package schema

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
)

type MigrationResult struct {
	AlreadyCurrent bool
	Items          map[domain.MediaType]int
}

// Migrate copies an account's legacy item documents into grouped list
// documents and writes the marker that switches later sessions to the
// current layout. Legacy documents are left in place. The lists and the
// marker are committed in one batch so a failure leaves the account legacy.
func Migrate(ctx context.Context, store remote.Store, userID string, logger *slog.Logger) (MigrationResult, error) {
	res := MigrationResult{Items: make(map[domain.MediaType]int)}

	kind, err := Probe(ctx, store, userID)
	if err != nil {
		return res, err
	}
	if kind == KindCurrent {
		res.AlreadyCurrent = true
		return res, nil
	}

	writes := make([]remote.Write, 0, len(domain.MediaTypes())+1)
	for _, mt := range domain.MediaTypes() {
		legacy := New(KindLegacy, store, userID, mt, logger)
		items, err := legacy.GetAll(ctx)
		if err != nil {
			return res, fmt.Errorf("read legacy %s: %w", mt, err)
		}

		byID := make(map[string]domain.Item, len(items))
		for _, it := range items {
			if !mt.HasStatus(it.Status) {
				logger.Warn("migrating item with unknown status", "item_id", it.ID, "status", it.Status)
				it.Status = mt.Statuses()[0]
			}
			byID[it.ID] = it
		}
		data, err := encodeLists(userID, mt, byID)
		if err != nil {
			return res, err
		}
		writes = append(writes, remote.Write{Type: remote.WriteSet, Ref: ListsRef(userID, mt), Data: data})
		res.Items[mt] = len(byID)
	}

	writes = append(writes, remote.Write{
		Type: remote.WriteSet,
		Ref:  MarkerRef(userID),
		Data: remote.Data{"layout": string(KindCurrent), "migratedAt": time.Now().UTC().Format(time.RFC3339)},
	})
	if err := store.BatchCommit(ctx, writes); err != nil {
		return res, fmt.Errorf("commit migration: %w", err)
	}

	logger.Info("account migrated to grouped layout", "user_id", userID, "items", res.Items)
	return res, nil
}
