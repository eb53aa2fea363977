package session

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"media_tracker/internal/domain"
	"media_tracker/internal/reorder"
)

// ItemPatch lists the fields an update changes. Nil fields are left alone.
type ItemPatch struct {
	Title          *string
	Category       *domain.Category
	Status         *domain.Status
	Order          *float64
	Favorite       *bool
	CompletionDate *string
}

func (p ItemPatch) apply(it domain.Item) domain.Item {
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Category != nil {
		it.Category = *p.Category
	}
	if p.Status != nil {
		it.Status = *p.Status
	}
	if p.Order != nil {
		it.Order = *p.Order
	}
	if p.Favorite != nil {
		it.Favorite = *p.Favorite
	}
	if p.CompletionDate != nil {
		it.CompletionDate = *p.CompletionDate
	}
	return it
}

// changedFields returns the fields in which next differs from prev.
func changedFields(prev, next domain.Item) domain.Fields {
	f := domain.Fields{}
	if next.Title != prev.Title {
		f[domain.FieldTitle] = next.Title
	}
	if next.Category != prev.Category {
		f[domain.FieldCategory] = next.Category
	}
	if next.Status != prev.Status {
		f[domain.FieldStatus] = string(next.Status)
	}
	if next.Order != prev.Order {
		f[domain.FieldOrder] = next.Order
	}
	if next.Favorite != prev.Favorite {
		f[domain.FieldFavorite] = next.Favorite
	}
	if next.CompletionDate != prev.CompletionDate {
		f[domain.FieldCompletionDate] = next.CompletionDate
	}
	return f
}

// nextOrder appends to a status list.
func nextOrder(partition []domain.Item) float64 {
	if len(partition) == 0 {
		return 0
	}
	highest := partition[0].Order
	for _, it := range partition[1:] {
		highest = math.Max(highest, it.Order)
	}
	return domain.NormalizeOrder(math.Floor(highest) + 1)
}

// AddItem validates a new item, appends it to its status list and queues
// it for creation. The item is visible locally before anything is written.
func (s *Session) AddItem(in domain.Item) (domain.Item, error) {
	if err := s.begin(); err != nil {
		return domain.Item{}, err
	}

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.MediaType == "" {
		in.MediaType = s.mediaType
	}
	in.UserID = s.user.ID
	in.CreatedAt = s.now()

	it, err := domain.Validate(in, s.rules())
	if err != nil {
		return domain.Item{}, err
	}

	var opErr error
	s.reconciler.Local(func() {
		if _, exists := s.coll.Get(it.ID); exists {
			opErr = &domain.ValidationError{Field: "id", Reason: fmt.Sprintf("item %s already exists", it.ID)}
			return
		}
		if opErr = s.guard.allow(s.now()); opErr != nil {
			return
		}

		it.Order = nextOrder(s.coll.Partition(it.Status))
		fields, err := it.ToFields()
		if err != nil {
			opErr = err
			return
		}
		s.queue.Enqueue(domain.ChangeCreate, it.ID, fields)
		s.coll.Upsert(it)
	})
	if opErr != nil {
		return domain.Item{}, opErr
	}

	s.logger.Debug("item added", "item_id", it.ID, "status", it.Status)
	return it, nil
}

// UpdateItem applies patch to an item. Moving it to another status without
// an explicit order appends it there.
func (s *Session) UpdateItem(id string, patch ItemPatch) (domain.Item, error) {
	if err := s.begin(); err != nil {
		return domain.Item{}, err
	}

	var (
		updated domain.Item
		opErr   error
	)
	s.reconciler.Local(func() {
		current, ok := s.coll.Get(id)
		if !ok {
			opErr = fmt.Errorf("update %s: %w", id, domain.ErrNotFound)
			return
		}

		candidate := patch.apply(current)
		valid, err := domain.Validate(candidate, s.rules())
		if err != nil {
			opErr = err
			return
		}
		if valid.Status != current.Status && patch.Order == nil {
			valid.Order = nextOrder(s.coll.Partition(valid.Status))
		}

		fields := changedFields(current, valid)
		if len(fields) == 0 {
			updated = current
			return
		}
		if opErr = s.guard.allow(s.now()); opErr != nil {
			return
		}
		fields[domain.FieldUpdatedAt] = valid.UpdatedAt

		s.queue.Enqueue(domain.ChangeUpdate, id, fields)
		updated, opErr = s.coll.Patch(id, fields)
	})
	if opErr != nil {
		return domain.Item{}, opErr
	}
	return updated, nil
}

func (s *Session) ToggleFavorite(id string) (domain.Item, error) {
	if err := s.begin(); err != nil {
		return domain.Item{}, err
	}
	current, ok := s.coll.Get(id)
	if !ok {
		return domain.Item{}, fmt.Errorf("toggle favorite %s: %w", id, domain.ErrNotFound)
	}
	favorite := !current.Favorite
	return s.UpdateItem(id, ItemPatch{Favorite: &favorite})
}

func (s *Session) DeleteItem(id string) error {
	if err := s.begin(); err != nil {
		return err
	}

	var opErr error
	s.reconciler.Local(func() {
		if _, ok := s.coll.Get(id); !ok {
			opErr = fmt.Errorf("delete %s: %w", id, domain.ErrNotFound)
			return
		}
		if opErr = s.guard.allow(s.now()); opErr != nil {
			return
		}
		s.queue.Enqueue(domain.ChangeDelete, id, nil)
		s.coll.Remove(id)
	})
	return opErr
}

// MoveWithinStatus places an item before or after another item of its own
// status list.
func (s *Session) MoveWithinStatus(id string, anchor reorder.Anchor) (reorder.Plan, error) {
	if err := s.begin(); err != nil {
		return reorder.Plan{}, err
	}

	var (
		plan  reorder.Plan
		opErr error
	)
	s.reconciler.Local(func() {
		it, ok := s.coll.Get(id)
		if !ok {
			opErr = fmt.Errorf("move %s: %w", id, domain.ErrNotFound)
			return
		}
		plan, opErr = reorder.MoveWithinStatus(s.coll.Partition(it.Status), id, anchor)
		if opErr != nil || len(plan.Updates) == 0 {
			return
		}
		if opErr = s.guard.allow(s.now()); opErr != nil {
			return
		}
		opErr = s.applyUpdates(plan.Updates)
	})
	if opErr != nil {
		return reorder.Plan{}, opErr
	}
	return plan, nil
}

// MoveToStatus moves an item into another status list, next to anchor or
// at the end when anchor is empty.
func (s *Session) MoveToStatus(id string, status domain.Status, anchor reorder.Anchor) (reorder.Plan, error) {
	if err := s.begin(); err != nil {
		return reorder.Plan{}, err
	}
	if !s.mediaType.HasStatus(status) {
		return reorder.Plan{}, &domain.ValidationError{Field: domain.FieldStatus, Reason: fmt.Sprintf("unknown status %q", status)}
	}

	var (
		plan  reorder.Plan
		opErr error
	)
	s.reconciler.Local(func() {
		it, ok := s.coll.Get(id)
		if !ok {
			opErr = fmt.Errorf("move %s: %w", id, domain.ErrNotFound)
			return
		}
		plan, opErr = reorder.MoveToStatus(s.coll.Partition(status), it, status, anchor)
		if opErr != nil || len(plan.Updates) == 0 {
			return
		}
		if opErr = s.guard.allow(s.now()); opErr != nil {
			return
		}
		opErr = s.applyUpdates(plan.Updates)
	})
	if opErr != nil {
		return reorder.Plan{}, opErr
	}
	return plan, nil
}

// Renormalize rewrites the order values of the given status lists, or of
// every list when none is given, to consecutive integers. It returns how
// many items changed.
func (s *Session) Renormalize(statuses ...domain.Status) (int, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	if len(statuses) == 0 {
		statuses = s.mediaType.Statuses()
	}

	var (
		changed int
		opErr   error
	)
	s.reconciler.Local(func() {
		for _, st := range statuses {
			updates := reorder.Renormalize(s.coll.Partition(st))
			if err := s.applyUpdates(updates); err != nil {
				opErr = err
				return
			}
			changed += len(updates)
		}
	})
	if changed > 0 {
		s.logger.Debug("lists renormalized", "changed", changed)
	}
	return changed, opErr
}

// applyUpdates queues and applies reorder updates. Callers hold the
// reconciler's local lock.
func (s *Session) applyUpdates(updates []reorder.Update) error {
	now := s.now().UTC()
	for _, u := range updates {
		fields := u.Fields.Merge(domain.Fields{domain.FieldUpdatedAt: now})
		s.queue.Enqueue(domain.ChangeUpdate, u.ID, fields)
		if _, err := s.coll.Patch(u.ID, fields); err != nil {
			return err
		}
	}
	return nil
}

type List struct {
	Status domain.Status
	Items  []domain.Item
}

type ViewOptions struct {
	FavoritesFirst bool
}

// View renormalizes every list and returns them in status order.
func (s *Session) View(opts ViewOptions) ([]List, error) {
	if _, err := s.Renormalize(); err != nil {
		return nil, err
	}

	statuses := s.mediaType.Statuses()
	lists := make([]List, 0, len(statuses))
	for _, st := range statuses {
		items := s.coll.Partition(st)
		if opts.FavoritesFirst {
			sort.SliceStable(items, func(i, j int) bool {
				return items[i].Favorite && !items[j].Favorite
			})
		}
		lists = append(lists, List{Status: st, Items: items})
	}
	return lists, nil
}

// Item returns the local copy of one item.
func (s *Session) Item(id string) (domain.Item, bool) {
	return s.coll.Get(id)
}
