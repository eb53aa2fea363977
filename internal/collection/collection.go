// Package collection holds the in-memory copy of one user's items for the
// active media type. Optimistic edits and change-feed deltas both land here.
package collection

import (
	"sync"

	"media_tracker/internal/domain"
)

type Collection struct {
	mu        sync.RWMutex
	mediaType domain.MediaType
	items     []domain.Item
}

func New(mediaType domain.MediaType) *Collection {
	return &Collection{mediaType: mediaType}
}

func (c *Collection) MediaType() domain.MediaType {
	return c.mediaType
}

// Replace swaps in a full set of items and sorts them.
func (c *Collection) Replace(items []domain.Item) {
	next := append([]domain.Item(nil), items...)
	domain.SortItems(next, c.mediaType)

	c.mu.Lock()
	c.items = next
	c.mu.Unlock()
}

// Upsert replaces the item with the same id or appends it. The collection
// is not re-sorted; call Sort once a batch of edits is done.
func (c *Collection) Upsert(it domain.Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(it.ID); i >= 0 {
		c.items[i] = it
		return false
	}
	c.items = append(c.items, it)
	return true
}

// Patch applies fields to the item with the given id and re-sorts.
func (c *Collection) Patch(id string, fields domain.Fields) (domain.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(id)
	if i < 0 {
		return domain.Item{}, domain.ErrNotFound
	}
	next, err := c.items[i].Apply(fields)
	if err != nil {
		return domain.Item{}, err
	}
	next.ID = id
	c.items[i] = next
	domain.SortItems(c.items, c.mediaType)
	return next, nil
}

func (c *Collection) Remove(id string) (domain.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(id)
	if i < 0 {
		return domain.Item{}, false
	}
	removed := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	return removed, true
}

func (c *Collection) Get(id string) (domain.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	return domain.Item{}, false
}

func (c *Collection) Sort() {
	c.mu.Lock()
	domain.SortItems(c.items, c.mediaType)
	c.mu.Unlock()
}

// Partition returns the items of one status list in display order.
func (c *Collection) Partition(status domain.Status) []domain.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Item
	for _, it := range c.items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	domain.SortItems(out, c.mediaType)
	return out
}

func (c *Collection) Items() []domain.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Item(nil), c.items...)
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Mutate runs fn with exclusive access to the items and sorts the result.
func (c *Collection) Mutate(fn func(items []domain.Item) []domain.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = fn(c.items)
	domain.SortItems(c.items, c.mediaType)
}

func (c *Collection) index(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}
