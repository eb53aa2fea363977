package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_tracker/internal/domain"
)

func TestEnqueue_UpdatesCoalesceFieldwise(t *testing.T) {
	q := New()

	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"title": "one", "order": 1.0})
	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"order": 2.0})
	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"favorite": true, "title": "three"})

	require.Equal(t, 1, q.Len())
	pc, ok := q.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.ChangeUpdate, pc.Type)
	assert.Equal(t, domain.Fields{"title": "three", "order": 2.0, "favorite": true}, pc.Data)
}

func TestEnqueue_DeleteWins(t *testing.T) {
	histories := map[string][]domain.ChangeType{
		"after create":        {domain.ChangeCreate},
		"after update":        {domain.ChangeUpdate},
		"after create+update": {domain.ChangeCreate, domain.ChangeUpdate},
		"after delete":        {domain.ChangeDelete},
		"nothing before":      nil,
	}

	for name, history := range histories {
		t.Run(name, func(t *testing.T) {
			q := New()
			for _, typ := range history {
				q.Enqueue(typ, "a", domain.Fields{"title": "x"})
			}
			q.Enqueue(domain.ChangeDelete, "a", nil)

			require.Equal(t, 1, q.Len())
			pc, _ := q.Get("a")
			assert.Equal(t, domain.ChangeDelete, pc.Type)
			assert.Nil(t, pc.Data)
		})
	}
}

func TestEnqueue_UpdateAfterDeleteIsDropped(t *testing.T) {
	q := New()
	q.Enqueue(domain.ChangeDelete, "a", nil)
	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"title": "zombie"})

	pc, _ := q.Get("a")
	assert.Equal(t, domain.ChangeDelete, pc.Type)
	assert.Nil(t, pc.Data)
}

func TestEnqueue_UpdateAfterCreateKeepsCreate(t *testing.T) {
	q := New()
	q.Enqueue(domain.ChangeCreate, "a", domain.Fields{"title": "new", "order": 0.0})
	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"order": 3.0})

	pc, _ := q.Get("a")
	assert.Equal(t, domain.ChangeCreate, pc.Type)
	assert.Equal(t, domain.Fields{"title": "new", "order": 3.0}, pc.Data)
}

func TestEnqueue_CreateStartsFresh(t *testing.T) {
	q := New()
	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"title": "old"})
	q.Enqueue(domain.ChangeCreate, "a", domain.Fields{"order": 1.0})

	pc, _ := q.Get("a")
	assert.Equal(t, domain.ChangeCreate, pc.Type)
	assert.Equal(t, domain.Fields{"order": 1.0}, pc.Data)
}

func TestEnqueue_DoesNotAliasCallerData(t *testing.T) {
	q := New()
	data := domain.Fields{"title": "a"}
	q.Enqueue(domain.ChangeUpdate, "a", data)
	data["title"] = "mutated"

	pc, _ := q.Get("a")
	assert.Equal(t, "a", pc.Data["title"])
}

func TestEnqueue_FiresHooks(t *testing.T) {
	q := New()
	calls := 0
	q.OnEnqueue(func() { calls++ })

	q.Enqueue(domain.ChangeCreate, "a", nil)
	q.Enqueue(domain.ChangeUpdate, "a", nil)
	q.Restore([]domain.PendingChange{{Type: domain.ChangeDelete, ID: "b"}})

	assert.Equal(t, 3, calls)
}

func TestDrain_EmptiesAndKeepsOrder(t *testing.T) {
	q := New()
	q.Enqueue(domain.ChangeCreate, "a", nil)
	q.Enqueue(domain.ChangeCreate, "b", nil)
	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"order": 1.0})

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].ID)
	assert.Equal(t, "b", drained[1].ID)
	assert.Equal(t, 0, q.Len())

	q.Enqueue(domain.ChangeUpdate, "c", nil)
	assert.Equal(t, 1, q.Len())
	assert.Len(t, drained, 2)
}

func TestRestore_NewerEditsWin(t *testing.T) {
	q := New()
	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"title": "old", "order": 1.0})
	q.Enqueue(domain.ChangeCreate, "b", domain.Fields{"title": "b"})
	q.Enqueue(domain.ChangeUpdate, "c", domain.Fields{"title": "c"})
	failed := q.Drain()

	q.Enqueue(domain.ChangeUpdate, "a", domain.Fields{"title": "new"})
	q.Enqueue(domain.ChangeDelete, "c", nil)

	q.Restore(failed)

	require.Equal(t, 3, q.Len())

	a, _ := q.Get("a")
	assert.Equal(t, domain.ChangeUpdate, a.Type)
	assert.Equal(t, domain.Fields{"title": "new", "order": 1.0}, a.Data)

	b, _ := q.Get("b")
	assert.Equal(t, domain.ChangeCreate, b.Type)

	c, _ := q.Get("c")
	assert.Equal(t, domain.ChangeDelete, c.Type)
}

func TestReset(t *testing.T) {
	q := New()
	q.Enqueue(domain.ChangeCreate, "a", nil)
	q.Reset()
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Pending())
}
