package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
)

const metadataCollection = "metadata"

// MetadataRef is the document holding a user's categories, one array per
// category collection.
func MetadataRef(userID string) remote.DocRef {
	return remote.DocRef{Collection: metadataCollection, ID: userID}
}

func loadCategories(ctx context.Context, store remote.Store, userID string) (map[string][]domain.Category, error) {
	doc, err := store.Get(ctx, MetadataRef(userID))
	if errors.Is(err, domain.ErrNotFound) {
		return map[string][]domain.Category{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string][]domain.Category)
	for _, mt := range domain.MediaTypes() {
		name := mt.CategoryCollection()
		raw, ok := doc.Data[name]
		if !ok {
			continue
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		var cats []domain.Category
		if err := json.Unmarshal(encoded, &cats); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		out[name] = cats
	}
	return out, nil
}

func saveCategories(ctx context.Context, store remote.Store, userID string, lists map[string][]domain.Category) error {
	data := make(remote.Data, len(lists))
	for name, cats := range lists {
		data[name] = cats
	}
	return store.Set(ctx, MetadataRef(userID), data, remote.SetOptions{Merge: true})
}

// mergeCategories adds the categories of next that base lacks, matching
// by name.
func mergeCategories(base, next []domain.Category) []domain.Category {
	out := append([]domain.Category{}, base...)
	for _, c := range next {
		if indexCategory(out, c.Name) < 0 {
			out = append(out, c)
		}
	}
	return out
}

func indexCategory(cats []domain.Category, name string) int {
	for i, c := range cats {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Categories lists the categories items of the active media type may use.
// Nil means the account never defined any and items are not restricted.
func (s *Session) Categories() []domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categories == nil {
		return nil
	}
	return append([]domain.Category{}, s.categories...)
}

// DefineCategory adds a category for the active media type and writes it
// to the remote store straight away.
func (s *Session) DefineCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if err := s.begin(); err != nil {
		return domain.Category{}, err
	}

	c.Name = strings.TrimSpace(c.Name)
	c.Color = strings.TrimSpace(c.Color)
	if c.Name == "" {
		return domain.Category{}, &domain.ValidationError{Field: domain.FieldCategory, Reason: "name is required"}
	}
	if c.Color == "" {
		return domain.Category{}, &domain.ValidationError{Field: domain.FieldCategory, Reason: "color is required"}
	}

	s.catMu.Lock()
	defer s.catMu.Unlock()

	current := s.Categories()
	if indexCategory(current, c.Name) >= 0 {
		return domain.Category{}, &domain.ValidationError{Field: domain.FieldCategory, Reason: fmt.Sprintf("%q already exists", c.Name)}
	}
	if err := s.guard.allow(s.now()); err != nil {
		return domain.Category{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	next := append(current, c)
	name := s.mediaType.CategoryCollection()
	if err := saveCategories(ctx, s.store, s.user.ID, map[string][]domain.Category{name: next}); err != nil {
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}

	s.mu.Lock()
	s.categories = next
	s.mu.Unlock()

	s.logger.Info("category defined", "collection", name, "name", c.Name)
	return c, nil
}

func (s *Session) rules() domain.Rules {
	return domain.Rules{MediaType: s.mediaType, Categories: s.Categories(), Now: s.now()}
}
