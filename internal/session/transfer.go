package session

import (
	"context"
	"fmt"

	"media_tracker/internal/archive"
	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
	"media_tracker/internal/schema"
	"media_tracker/internal/service"
)

// Export builds a current-version export of every media type. The active
// list comes from the local collection, pending edits included; the others
// are read from the remote store.
func (s *Session) Export(ctx context.Context, settings map[string]any) (*archive.File, error) {
	if _, err := s.Renormalize(); err != nil {
		return nil, err
	}

	categories, err := loadCategories(ctx, s.store, s.user.ID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if local := s.Categories(); local != nil {
		categories[s.mediaType.CategoryCollection()] = local
	}

	lists := make(map[domain.MediaType][]domain.Item, len(domain.MediaTypes()))
	for _, mt := range domain.MediaTypes() {
		if mt == s.mediaType {
			lists[mt] = s.coll.Items()
			continue
		}
		items, err := s.adapterFor(mt).GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", mt, err)
		}
		lists[mt] = items
	}

	f, err := archive.Build(s.user.Email, s.now(), categories, lists, settings)
	if err != nil {
		return nil, err
	}
	s.logger.Info("collection exported", "items", f.Counts().Items)
	return f, nil
}

type ImportResult struct {
	Items      map[domain.MediaType]int
	Categories int
}

// Import adds the content of an export file to the account. Items of the
// active media type go through the mutation queue like any local edit;
// other media types are written directly. Nothing is written unless every
// item in the file is valid.
func (s *Session) Import(ctx context.Context, f *archive.File) (*ImportResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	im, err := archive.PrepareImport(f, s.user.ID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.guard.allow(s.now()); err != nil {
		return nil, err
	}

	result := &ImportResult{Items: make(map[domain.MediaType]int, len(im.Items))}

	if len(im.Categories) > 0 {
		merged, added, err := s.importCategories(ctx, im.Categories)
		if err != nil {
			return nil, err
		}
		result.Categories = added
		if cats, ok := merged[s.mediaType.CategoryCollection()]; ok {
			s.mu.Lock()
			s.categories = cats
			s.mu.Unlock()
		}
	}

	for mt, items := range im.Items {
		if mt == s.mediaType {
			continue
		}
		changes := make([]domain.PendingChange, 0, len(items))
		for _, it := range items {
			fields, err := it.ToFields()
			if err != nil {
				return nil, err
			}
			changes = append(changes, domain.PendingChange{Type: domain.ChangeCreate, ID: it.ID, Data: fields})
		}
		adapter := s.adapterFor(mt)
		for _, chunk := range service.Chunk(changes, remote.MaxBatchWrites) {
			if err := adapter.BatchWrite(ctx, chunk); err != nil {
				return nil, fmt.Errorf("import %s: %w", mt, err)
			}
		}
		result.Items[mt] = len(items)
	}

	if items := im.Items[s.mediaType]; len(items) > 0 {
		var opErr error
		s.reconciler.Local(func() {
			for _, it := range items {
				fields, err := it.ToFields()
				if err != nil {
					opErr = err
					return
				}
				s.queue.Enqueue(domain.ChangeCreate, it.ID, fields)
				s.coll.Upsert(it)
			}
		})
		if opErr != nil {
			return nil, opErr
		}
		result.Items[s.mediaType] = len(items)
	}

	s.logger.Info("collection imported", "items", result.Items, "categories", result.Categories)
	return result, nil
}

func (s *Session) importCategories(ctx context.Context, imported map[string][]domain.Category) (map[string][]domain.Category, int, error) {
	s.catMu.Lock()
	defer s.catMu.Unlock()

	existing, err := loadCategories(ctx, s.store, s.user.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("load categories: %w", err)
	}

	merged := make(map[string][]domain.Category, len(imported))
	added := 0
	for name, cats := range imported {
		merged[name] = mergeCategories(existing[name], cats)
		added += len(merged[name]) - len(existing[name])
	}
	if err := saveCategories(ctx, s.store, s.user.ID, merged); err != nil {
		return nil, 0, fmt.Errorf("save categories: %w", err)
	}
	return merged, added, nil
}

func (s *Session) adapterFor(mt domain.MediaType) schema.Adapter {
	return schema.New(s.adapter.Kind(), s.store, s.user.ID, mt, s.baseLog)
}
