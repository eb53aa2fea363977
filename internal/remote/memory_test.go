package remote

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_tracker/internal/domain"
)

func newTestStore() *FeedStore {
	return NewMemoryStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	ref := DocRef{Collection: "items", ID: "a"}

	require.NoError(t, s.Set(ctx, ref, Data{"title": "A", "order": 1}, SetOptions{}))
	require.NoError(t, s.Set(ctx, ref, Data{"order": 2}, SetOptions{Merge: true}))

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Data["title"])
	assert.Equal(t, 2.0, doc.Data["order"])

	require.NoError(t, s.Set(ctx, ref, Data{"order": 3}, SetOptions{}))
	doc, err = s.Get(ctx, ref)
	require.NoError(t, err)
	assert.NotContains(t, doc.Data, "title")
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := newTestStore().Get(context.Background(), DocRef{Collection: "items", ID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	err := s.BatchCommit(ctx, []Write{
		{Type: WriteSet, Ref: DocRef{Collection: "items", ID: "a"}, Data: Data{"title": "A"}},
		{Type: WriteUpdate, Ref: DocRef{Collection: "items", ID: "missing"}, Data: Data{"title": "X"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)

	_, err = s.Get(ctx, DocRef{Collection: "items", ID: "a"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteMissingIsNoop(t *testing.T) {
	err := newTestStore().BatchCommit(context.Background(), []Write{
		{Type: WriteDelete, Ref: DocRef{Collection: "items", ID: "ghost"}},
	})
	assert.NoError(t, err)
}

func TestMemoryStore_RejectsOversizedBatch(t *testing.T) {
	writes := make([]Write, MaxBatchWrites+1)
	for i := range writes {
		writes[i] = Write{Type: WriteDelete, Ref: DocRef{Collection: "items", ID: "x"}}
	}
	assert.Error(t, newTestStore().BatchCommit(context.Background(), writes))
}

func TestMemoryStore_QueryByOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.BatchCommit(ctx, []Write{
		{Type: WriteSet, Ref: DocRef{Collection: "items", ID: "a"}, Data: Data{"userId": "u1", "mediaType": "games"}},
		{Type: WriteSet, Ref: DocRef{Collection: "items", ID: "b"}, Data: Data{"userId": "u2", "mediaType": "games"}},
		{Type: WriteSet, Ref: DocRef{Collection: "items", ID: "c"}, Data: Data{"userId": "u1", "mediaType": "books"}},
	}))

	docs, err := s.Query(ctx, ByOwner("items", "userId", "u1", Filter{Field: "mediaType", Value: "games"}))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].Ref.ID)
}

func TestMemoryStore_OnSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Set(ctx, DocRef{Collection: "items", ID: "a"}, Data{"userId": "u1"}, SetOptions{}))

	var snaps []Snapshot
	unsub, err := s.OnSnapshot(ctx, ByOwner("items", "userId", "u1"), func(snap Snapshot) {
		snaps = append(snaps, snap)
	}, nil)
	require.NoError(t, err)

	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Initial)
	require.Len(t, snaps[0].Changes, 1)
	assert.Equal(t, ChangeAdded, snaps[0].Changes[0].Type)

	require.NoError(t, s.BatchCommit(ctx, []Write{
		{Type: WriteUpdate, Ref: DocRef{Collection: "items", ID: "a"}, Data: Data{"title": "A"}},
		{Type: WriteSet, Ref: DocRef{Collection: "items", ID: "other"}, Data: Data{"userId": "u2"}},
	}))
	require.Len(t, snaps, 2)
	assert.False(t, snaps[1].Initial)
	require.Len(t, snaps[1].Changes, 1)
	assert.Equal(t, ChangeModified, snaps[1].Changes[0].Type)

	require.NoError(t, s.BatchCommit(ctx, []Write{{Type: WriteDelete, Ref: DocRef{Collection: "items", ID: "a"}}}))
	require.Len(t, snaps, 3)
	assert.Equal(t, ChangeRemoved, snaps[2].Changes[0].Type)

	unsub()
	require.NoError(t, s.Set(ctx, DocRef{Collection: "items", ID: "b"}, Data{"userId": "u1"}, SetOptions{}))
	assert.Len(t, snaps, 3)
}
