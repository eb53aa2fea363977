// Package schema hides which physical layout an account's items are stored
// in behind one Adapter. The layout is probed once per session.
package schema

import (
	"context"
	"errors"
	"log/slog"

	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
)

type Kind string

const (
	// KindLegacy stores one document per item, queried by owner id.
	KindLegacy Kind = "legacy"
	// KindCurrent stores one document per user and media type holding all
	// items grouped by status.
	KindCurrent Kind = "current"
)

const (
	itemsCollection  = "items"
	listsCollection  = "lists"
	markerCollection = "schemaMarkers"
	ownerField       = "userId"
	mediaTypeField   = "mediaType"
)

type Adapter interface {
	Kind() Kind
	GetAll(ctx context.Context) ([]domain.Item, error)
	GetOne(ctx context.Context, id string) (*domain.Item, error)
	Add(ctx context.Context, item domain.Item) error
	Update(ctx context.Context, id string, fields domain.Fields) error
	Delete(ctx context.Context, id string) error
	BatchWrite(ctx context.Context, changes []domain.PendingChange) error
	Subscribe(ctx context.Context, onChange func(domain.DeltaBatch), onError func(error)) (remote.Unsubscribe, error)
}

func MarkerRef(userID string) remote.DocRef {
	return remote.DocRef{Collection: markerCollection, ID: userID}
}

// Probe reads the account's marker document. Its presence selects the
// current layout, its absence the legacy one. When the store cannot answer,
// Probe falls back to legacy and reports a SchemaProbeError.
func Probe(ctx context.Context, store remote.Store, userID string) (Kind, error) {
	_, err := store.Get(ctx, MarkerRef(userID))
	switch {
	case err == nil:
		return KindCurrent, nil
	case errors.Is(err, domain.ErrNotFound):
		return KindLegacy, nil
	default:
		return KindLegacy, &domain.SchemaProbeError{UserID: userID, Err: err}
	}
}

// Open probes the account and returns the adapter for whatever layout it
// uses. A failed probe is logged and treated as legacy.
func Open(ctx context.Context, store remote.Store, userID string, mediaType domain.MediaType, logger *slog.Logger) Adapter {
	kind, err := Probe(ctx, store, userID)
	if err != nil {
		logger.Warn("schema probe failed, assuming legacy layout", "user_id", userID, "error", err)
	}
	logger.Debug("schema resolved", "user_id", userID, "kind", kind)
	return New(kind, store, userID, mediaType, logger)
}

func New(kind Kind, store remote.Store, userID string, mediaType domain.MediaType, logger *slog.Logger) Adapter {
	logger = logger.With("user_id", userID, "media_type", mediaType, "schema", kind)
	if kind == KindCurrent {
		return &currentAdapter{store: store, userID: userID, mediaType: mediaType, logger: logger}
	}
	return &legacyAdapter{store: store, userID: userID, mediaType: mediaType, logger: logger}
}

func itemData(it domain.Item) (remote.Data, error) {
	f, err := it.ToFields()
	if err != nil {
		return nil, err
	}
	return remote.Data(f), nil
}

func decodeItem(id string, data remote.Data) (domain.Item, error) {
	it, err := domain.ItemFromFields(domain.Fields(data))
	if err != nil {
		return domain.Item{}, err
	}
	if id != "" {
		it.ID = id
	}
	return it, nil
}
