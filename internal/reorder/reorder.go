// Package reorder computes order values for manual reordering of the items
// in a status list.
//
// A move prefers writing only the moved item by giving it an order strictly
// between its new neighbours. When no such value exists (duplicate orders,
// float exhaustion or the [0, MaxOrder] bounds) the whole list is
// renormalized in its final order instead.
package reorder

import (
	"fmt"

	"media_tracker/internal/domain"
)

// Anchor places a moved item next to another item of the target list. At
// most one of the ids is set; an empty anchor appends to the list.
type Anchor struct {
	BeforeID string
	AfterID  string
}

func (a Anchor) empty() bool {
	return a.BeforeID == "" && a.AfterID == ""
}

// Update is the set of fields to write for one item.
type Update struct {
	ID     string
	Fields domain.Fields
}

type Plan struct {
	Updates []Update
	// Renormalized is set when the list had no room for a fractional order
	// and every item was renumbered.
	Renormalized bool
}

// MoveWithinStatus moves the item with the given id inside its own list.
// partition holds every item of that list, the moved one included.
func MoveWithinStatus(partition []domain.Item, id string, anchor Anchor) (Plan, error) {
	if anchor.BeforeID == id || anchor.AfterID == id {
		return Plan{}, nil
	}

	sorted := sortedCopy(partition)
	var (
		moved domain.Item
		found bool
		rest  = make([]domain.Item, 0, len(sorted))
	)
	for _, it := range sorted {
		if it.ID == id {
			moved, found = it, true
			continue
		}
		rest = append(rest, it)
	}
	if !found {
		return Plan{}, fmt.Errorf("move %s: %w", id, domain.ErrNotFound)
	}

	return plan(rest, moved, moved.Status, anchor, false)
}

// MoveToStatus moves an item into another status list. target holds the
// items currently in that list. The source list keeps its gap until it is
// next renormalized.
func MoveToStatus(target []domain.Item, moved domain.Item, status domain.Status, anchor Anchor) (Plan, error) {
	rest := make([]domain.Item, 0, len(target))
	for _, it := range sortedCopy(target) {
		if it.ID != moved.ID {
			rest = append(rest, it)
		}
	}
	return plan(rest, moved, status, anchor, moved.Status != status)
}

func plan(rest []domain.Item, moved domain.Item, status domain.Status, anchor Anchor, statusChanged bool) (Plan, error) {
	pos, err := position(rest, anchor)
	if err != nil {
		return Plan{}, err
	}

	if order, ok := fractional(rest, pos, anchor); ok {
		if order == moved.Order && !statusChanged {
			return Plan{}, nil
		}
		return Plan{Updates: []Update{movedUpdate(moved.ID, order, status, statusChanged)}}, nil
	}

	final := make([]domain.Item, 0, len(rest)+1)
	final = append(final, rest[:pos]...)
	final = append(final, moved)
	final = append(final, rest[pos:]...)

	p := Plan{Renormalized: true}
	for i, it := range final {
		order := float64(i)
		switch {
		case it.ID == moved.ID:
			if order != moved.Order || statusChanged {
				p.Updates = append(p.Updates, movedUpdate(it.ID, order, status, statusChanged))
			}
		case it.Order != order:
			p.Updates = append(p.Updates, Update{ID: it.ID, Fields: domain.Fields{domain.FieldOrder: order}})
		}
	}
	return p, nil
}

// position is the index the moved item takes in rest.
func position(rest []domain.Item, anchor Anchor) (int, error) {
	if anchor.empty() {
		return len(rest), nil
	}
	ref := anchor.BeforeID
	if ref == "" {
		ref = anchor.AfterID
	}
	idx := indexOf(rest, ref)
	if idx < 0 {
		return 0, &domain.ValidationError{Field: "anchor", Reason: fmt.Sprintf("item %s is not in the target list", ref)}
	}
	if anchor.BeforeID != "" {
		return idx, nil
	}
	return idx + 1, nil
}

// fractional returns an order for an item inserted at pos without touching
// any other item, or false when there is no room.
func fractional(rest []domain.Item, pos int, anchor Anchor) (float64, bool) {
	if len(rest) == 0 {
		return 0, true
	}

	var order float64
	switch {
	case anchor.empty():
		order = rest[len(rest)-1].Order + 1
	case pos > 0 && pos < len(rest):
		lo, hi := rest[pos-1].Order, rest[pos].Order
		order = lo + (hi-lo)/2
		if !(lo < order && order < hi) {
			return 0, false
		}
	case pos == 0:
		next := rest[0].Order
		order = next - 0.5
		if order < 0 && next > 0 {
			order = next / 2
		}
		if !(order < next) {
			return 0, false
		}
	default:
		order = rest[len(rest)-1].Order + 0.5
	}

	if order < 0 || order > domain.MaxOrder {
		return 0, false
	}
	return order, true
}

// Renormalize renumbers one status list to 0..n-1 in its current order and
// returns updates only for items whose order changes.
func Renormalize(partition []domain.Item) []Update {
	var updates []Update
	for i, it := range sortedCopy(partition) {
		if order := float64(i); it.Order != order {
			updates = append(updates, Update{ID: it.ID, Fields: domain.Fields{domain.FieldOrder: order}})
		}
	}
	return updates
}

func movedUpdate(id string, order float64, status domain.Status, statusChanged bool) Update {
	f := domain.Fields{domain.FieldOrder: order}
	if statusChanged {
		f[domain.FieldStatus] = string(status)
	}
	return Update{ID: id, Fields: f}
}

func sortedCopy(items []domain.Item) []domain.Item {
	out := append([]domain.Item(nil), items...)
	if len(out) > 0 {
		domain.SortItems(out, out[0].MediaType)
	}
	return out
}

func indexOf(items []domain.Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
