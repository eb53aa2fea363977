package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
)

// listsDoc is the grouped document of the current layout. Each status maps
// to the items in that list.
type listsDoc struct {
	UserID    string                          `json:"userId"`
	MediaType domain.MediaType                `json:"mediaType"`
	Lists     map[domain.Status][]domain.Item `json:"lists"`
	UpdatedAt time.Time                       `json:"updatedAt"`
}

func ListsRef(userID string, mediaType domain.MediaType) remote.DocRef {
	return remote.DocRef{Collection: listsCollection, ID: userID + "_" + string(mediaType)}
}

// currentAdapter rewrites the whole grouped document on every write. Writes
// are read-modify-write and the last writer wins.
type currentAdapter struct {
	store     remote.Store
	userID    string
	mediaType domain.MediaType
	logger    *slog.Logger

	// mu serializes this session's read-modify-write cycles.
	mu sync.Mutex
}

func (a *currentAdapter) Kind() Kind {
	return KindCurrent
}

func (a *currentAdapter) ref() remote.DocRef {
	return ListsRef(a.userID, a.mediaType)
}

func (a *currentAdapter) load(ctx context.Context) (map[string]domain.Item, error) {
	doc, err := a.store.Get(ctx, a.ref())
	if errors.Is(err, domain.ErrNotFound) {
		return map[string]domain.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load lists: %w", err)
	}
	return decodeLists(doc.Data)
}

func decodeLists(data remote.Data) (map[string]domain.Item, error) {
	var doc listsDoc
	if err := decodeData(data, &doc); err != nil {
		return nil, fmt.Errorf("decode lists: %w", err)
	}
	items := make(map[string]domain.Item)
	for status, list := range doc.Lists {
		for _, it := range list {
			if it.Status == "" {
				it.Status = status
			}
			items[it.ID] = it
		}
	}
	return items, nil
}

func (a *currentAdapter) save(ctx context.Context, items map[string]domain.Item) error {
	data, err := encodeLists(a.userID, a.mediaType, items)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, a.ref(), data, remote.SetOptions{})
}

func encodeLists(userID string, mediaType domain.MediaType, items map[string]domain.Item) (remote.Data, error) {
	doc := listsDoc{
		UserID:    userID,
		MediaType: mediaType,
		Lists:     make(map[domain.Status][]domain.Item, len(mediaType.Statuses())),
		UpdatedAt: time.Now().UTC(),
	}
	for _, s := range mediaType.Statuses() {
		doc.Lists[s] = []domain.Item{}
	}
	for _, it := range sortedValues(items, mediaType) {
		doc.Lists[it.Status] = append(doc.Lists[it.Status], it)
	}
	return encodeData(doc)
}

func sortedValues(items map[string]domain.Item, mediaType domain.MediaType) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	domain.SortItems(out, mediaType)
	return out
}

func (a *currentAdapter) GetAll(ctx context.Context) ([]domain.Item, error) {
	items, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return sortedValues(items, a.mediaType), nil
}

func (a *currentAdapter) GetOne(ctx context.Context, id string) (*domain.Item, error) {
	items, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	it, ok := items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it, nil
}

func (a *currentAdapter) Add(ctx context.Context, item domain.Item) error {
	f, err := item.ToFields()
	if err != nil {
		return err
	}
	return a.BatchWrite(ctx, []domain.PendingChange{{Type: domain.ChangeCreate, ID: item.ID, Data: f}})
}

func (a *currentAdapter) Update(ctx context.Context, id string, fields domain.Fields) error {
	return a.BatchWrite(ctx, []domain.PendingChange{{Type: domain.ChangeUpdate, ID: id, Data: fields}})
}

func (a *currentAdapter) Delete(ctx context.Context, id string) error {
	return a.BatchWrite(ctx, []domain.PendingChange{{Type: domain.ChangeDelete, ID: id}})
}

// BatchWrite applies every change to the loaded lists and writes the
// document back once. An update whose item is gone is skipped.
func (a *currentAdapter) BatchWrite(ctx context.Context, changes []domain.PendingChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	items, err := a.load(ctx)
	if err != nil {
		return err
	}

	for _, c := range changes {
		switch c.Type {
		case domain.ChangeCreate:
			it, err := domain.ItemFromFields(c.Data)
			if err != nil {
				return fmt.Errorf("decode created item %s: %w", c.ID, err)
			}
			it.ID = c.ID
			it.UserID = a.userID
			it.MediaType = a.mediaType
			items[c.ID] = it
		case domain.ChangeUpdate:
			cur, ok := items[c.ID]
			if !ok {
				a.logger.Debug("skipping update for missing item", "item_id", c.ID)
				continue
			}
			next, err := cur.Apply(c.Data)
			if err != nil {
				return fmt.Errorf("apply update to %s: %w", c.ID, err)
			}
			next.ID = c.ID
			items[c.ID] = next
		case domain.ChangeDelete:
			delete(items, c.ID)
		default:
			return fmt.Errorf("unknown change type %q for item %s", c.Type, c.ID)
		}
	}
	return a.save(ctx, items)
}

// Subscribe listens to the grouped document and turns each new version of
// it into item deltas by diffing against the previous version.
func (a *currentAdapter) Subscribe(ctx context.Context, onChange func(domain.DeltaBatch), onError func(error)) (remote.Unsubscribe, error) {
	var (
		mu   sync.Mutex
		prev = map[string]domain.Item{}
	)
	return a.store.OnSnapshot(ctx, remote.ByDoc(a.ref()), func(snap remote.Snapshot) {
		mu.Lock()
		defer mu.Unlock()

		next := prev
		for _, c := range snap.Changes {
			if c.Type == remote.ChangeRemoved {
				next = map[string]domain.Item{}
				continue
			}
			decoded, err := decodeLists(c.Doc.Data)
			if err != nil {
				a.logger.Warn("skipping undecodable lists snapshot", "error", err)
				continue
			}
			next = decoded
		}

		batch := diffItems(prev, next, a.mediaType)
		batch.Initial = snap.Initial
		prev = next
		if batch.Initial || len(batch.Deltas) > 0 {
			onChange(batch)
		}
	}, onError)
}

func diffItems(prev, next map[string]domain.Item, mediaType domain.MediaType) domain.DeltaBatch {
	var batch domain.DeltaBatch
	for _, it := range sortedValues(next, mediaType) {
		old, ok := prev[it.ID]
		switch {
		case !ok:
			batch.Deltas = append(batch.Deltas, domain.ItemDelta{Type: domain.DeltaAdded, Item: it})
		case !reflect.DeepEqual(old, it):
			batch.Deltas = append(batch.Deltas, domain.ItemDelta{Type: domain.DeltaModified, Item: it})
		}
	}
	for _, it := range sortedValues(prev, mediaType) {
		if _, ok := next[it.ID]; !ok {
			batch.Deltas = append(batch.Deltas, domain.ItemDelta{Type: domain.DeltaRemoved, Item: it})
		}
	}
	return batch
}
