package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
)

type legacyAdapter struct {
	store     remote.Store
	userID    string
	mediaType domain.MediaType
	logger    *slog.Logger
}

func (a *legacyAdapter) Kind() Kind {
	return KindLegacy
}

func (a *legacyAdapter) ref(id string) remote.DocRef {
	return remote.DocRef{Collection: itemsCollection, ID: id}
}

func (a *legacyAdapter) query() remote.Query {
	return remote.ByOwner(itemsCollection, ownerField, a.userID,
		remote.Filter{Field: mediaTypeField, Value: string(a.mediaType)})
}

func (a *legacyAdapter) GetAll(ctx context.Context) ([]domain.Item, error) {
	docs, err := a.store.Query(ctx, a.query())
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}

	items := make([]domain.Item, 0, len(docs))
	for _, d := range docs {
		it, err := decodeItem(d.Ref.ID, d.Data)
		if err != nil {
			a.logger.Warn("skipping undecodable item", "item_id", d.Ref.ID, "error", err)
			continue
		}
		items = append(items, it)
	}
	domain.SortItems(items, a.mediaType)
	return items, nil
}

func (a *legacyAdapter) GetOne(ctx context.Context, id string) (*domain.Item, error) {
	doc, err := a.store.Get(ctx, a.ref(id))
	if err != nil {
		return nil, err
	}
	if !a.query().Matches(*doc) {
		return nil, domain.ErrNotFound
	}
	it, err := decodeItem(id, doc.Data)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (a *legacyAdapter) Add(ctx context.Context, item domain.Item) error {
	data, err := a.createData(item.ID, nil, item)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, a.ref(item.ID), data, remote.SetOptions{})
}

func (a *legacyAdapter) Update(ctx context.Context, id string, fields domain.Fields) error {
	return a.BatchWrite(ctx, []domain.PendingChange{{Type: domain.ChangeUpdate, ID: id, Data: fields}})
}

func (a *legacyAdapter) Delete(ctx context.Context, id string) error {
	return a.BatchWrite(ctx, []domain.PendingChange{{Type: domain.ChangeDelete, ID: id}})
}

// BatchWrite commits changes as one remote batch with deletes applied last.
// Updates that hit a missing document are dropped and the rest of the batch
// is committed again, since the item is already gone.
func (a *legacyAdapter) BatchWrite(ctx context.Context, changes []domain.PendingChange) error {
	writes, err := a.writes(changes)
	if err != nil {
		return err
	}

	for len(writes) > 0 {
		err := a.store.BatchCommit(ctx, writes)
		if err == nil {
			return nil
		}

		var be *remote.BatchError
		if !errors.As(err, &be) || !errors.Is(err, domain.ErrNotFound) || be.Index >= len(writes) {
			return err
		}
		a.logger.Debug("dropping write for missing item", "item_id", be.Ref.ID)
		writes = append(writes[:be.Index], writes[be.Index+1:]...)
	}
	return nil
}

func (a *legacyAdapter) writes(changes []domain.PendingChange) ([]remote.Write, error) {
	writes := make([]remote.Write, 0, len(changes))
	var deletes []remote.Write

	for _, c := range changes {
		switch c.Type {
		case domain.ChangeCreate:
			data, err := a.createData(c.ID, c.Data, domain.Item{})
			if err != nil {
				return nil, err
			}
			writes = append(writes, remote.Write{Type: remote.WriteSet, Ref: a.ref(c.ID), Data: data})
		case domain.ChangeUpdate:
			data := remote.Data(c.Data.Clone())
			if data == nil {
				data = remote.Data{}
			}
			delete(data, "id")
			data[ownerField] = a.userID
			writes = append(writes, remote.Write{Type: remote.WriteUpdate, Ref: a.ref(c.ID), Data: data})
		case domain.ChangeDelete:
			deletes = append(deletes, remote.Write{Type: remote.WriteDelete, Ref: a.ref(c.ID)})
		default:
			return nil, fmt.Errorf("unknown change type %q for item %s", c.Type, c.ID)
		}
	}
	return append(writes, deletes...), nil
}

// createData builds the full document for a new item, either from a whole
// item or from the field map a queued create carries.
func (a *legacyAdapter) createData(id string, fields domain.Fields, item domain.Item) (remote.Data, error) {
	if fields != nil {
		decoded, err := domain.ItemFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("decode created item %s: %w", id, err)
		}
		item = decoded
	}
	item.ID = id
	item.UserID = a.userID
	item.MediaType = a.mediaType
	return itemData(item)
}

func (a *legacyAdapter) Subscribe(ctx context.Context, onChange func(domain.DeltaBatch), onError func(error)) (remote.Unsubscribe, error) {
	return a.store.OnSnapshot(ctx, a.query(), func(snap remote.Snapshot) {
		batch := domain.DeltaBatch{Initial: snap.Initial, Deltas: make([]domain.ItemDelta, 0, len(snap.Changes))}
		for _, c := range snap.Changes {
			it, err := decodeItem(c.Doc.Ref.ID, c.Doc.Data)
			if err != nil {
				a.logger.Warn("skipping undecodable change", "item_id", c.Doc.Ref.ID, "error", err)
				continue
			}
			batch.Deltas = append(batch.Deltas, domain.ItemDelta{Type: deltaType(c.Type), Item: it})
		}
		onChange(batch)
	}, onError)
}

func deltaType(t remote.ChangeType) domain.DeltaType {
	switch t {
	case remote.ChangeRemoved:
		return domain.DeltaRemoved
	case remote.ChangeModified:
		return domain.DeltaModified
	default:
		return domain.DeltaAdded
	}
}
