package archive

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"media_tracker/internal/domain"
)

// Import is the validated content of an export file, re-owned by the
// importing account.
type Import struct {
	Categories map[string][]domain.Category
	Items      map[domain.MediaType][]domain.Item
	Settings   map[string]any
}

func (im *Import) Total() int {
	n := 0
	for _, items := range im.Items {
		n += len(items)
	}
	return n
}

// PrepareImport turns a decoded file into items ready to be written for
// userID. Items without an id or creation time get fresh ones, every item
// is validated, and loosely typed order and favorite values are coerced.
// Any invalid item fails the whole import.
func PrepareImport(f *File, userID string, now time.Time) (*Import, error) {
	if f.Version != VersionCurrent {
		return nil, fmt.Errorf("%w: file has version %q, import expects %q", domain.ErrUnsupportedVersion, f.Version, VersionCurrent)
	}

	im := &Import{
		Categories: make(map[string][]domain.Category, len(f.Data.Metadata)),
		Items:      make(map[domain.MediaType][]domain.Item, len(f.Data.Lists)),
		Settings:   f.Settings,
	}
	for name, cats := range f.Data.Metadata {
		out := make([]domain.Category, 0, len(cats))
		for _, c := range cats {
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			out = append(out, c)
		}
		im.Categories[name] = out
	}

	mediaTypes := make([]domain.MediaType, 0, len(f.Data.Lists))
	for mt := range f.Data.Lists {
		mediaTypes = append(mediaTypes, mt)
	}
	sort.Slice(mediaTypes, func(i, j int) bool { return mediaTypes[i] < mediaTypes[j] })

	for _, mt := range mediaTypes {
		if !mt.Valid() {
			return nil, &domain.ValidationError{Field: "mediaType", Reason: fmt.Sprintf("unknown media type %q in import", mt)}
		}
		rules := domain.Rules{MediaType: mt, Now: now}
		if cats, ok := im.Categories[mt.CategoryCollection()]; ok {
			rules.Categories = cats
		}

		for st, recs := range f.Data.Lists[mt] {
			if !mt.HasStatus(st) && len(recs) > 0 {
				return nil, &domain.ValidationError{Field: domain.FieldStatus, Reason: fmt.Sprintf("unknown status %q for %s", st, mt)}
			}
		}

		seen := make(map[string]bool)
		for _, st := range mt.Statuses() {
			for i, rec := range f.Data.Lists[mt][st] {
				it, err := recordItem(rec, st, userID, now)
				if err != nil {
					return nil, fmt.Errorf("import %s/%s item %d: %w", mt, st, i, err)
				}
				it.Category = resolveCategory(it.Category, rules.Categories)
				if seen[it.ID] {
					it.ID = uuid.NewString()
				}
				valid, err := domain.Validate(it, rules)
				if err != nil {
					return nil, fmt.Errorf("import %s/%s item %d: %w", mt, st, i, err)
				}
				seen[valid.ID] = true
				im.Items[mt] = append(im.Items[mt], valid)
			}
		}
	}
	return im, nil
}

func recordItem(rec Record, status domain.Status, userID string, now time.Time) (domain.Item, error) {
	it := domain.Item{
		ID:             stringField(rec, "id"),
		Title:          stringField(rec, domain.FieldTitle),
		Status:         status,
		Order:          domain.CoerceOrder(rec[domain.FieldOrder]),
		Favorite:       domain.CoerceBool(rec[domain.FieldFavorite]),
		CompletionDate: stringField(rec, domain.FieldCompletionDate),
		UserID:         userID,
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}

	switch c := rec[domain.FieldCategory].(type) {
	case map[string]any:
		it.Category = domain.Category{
			ID:    stringField(c, "id"),
			Name:  stringField(c, "name"),
			Color: stringField(c, "color"),
		}
	case string:
		it.Category = domain.Category{Name: c}
	}

	it.CreatedAt = now.UTC()
	if s := stringField(rec, "createdAt"); s != "" {
		created, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return domain.Item{}, &domain.ValidationError{Field: "createdAt", Reason: "not an RFC 3339 timestamp"}
		}
		it.CreatedAt = created.UTC()
	}
	return it, nil
}

// resolveCategory fills in the id and color of a category referenced only
// by name.
func resolveCategory(c domain.Category, defined []domain.Category) domain.Category {
	for _, d := range defined {
		if strings.EqualFold(d.Name, c.Name) {
			if c.ID == "" {
				c.ID = d.ID
			}
			if c.Color == "" {
				c.Color = d.Color
			}
			return c
		}
	}
	return c
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
