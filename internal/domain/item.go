package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type MediaType string

const (
	MediaGames  MediaType = "games"
	MediaMovies MediaType = "movies"
	MediaBooks  MediaType = "books"
)

type Category struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Item struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Category       Category  `json:"category"`
	Status         Status    `json:"status"`
	Order          float64   `json:"order"`
	Favorite       bool      `json:"favorite"`
	CompletionDate string    `json:"completionDate,omitempty"`
	MediaType      MediaType `json:"mediaType"`
	UserID         string    `json:"userId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Fields is a partial item keyed by JSON field name. Pending updates carry
// only the fields that changed so that coalescing can merge them.
type Fields map[string]any

const (
	FieldTitle          = "title"
	FieldCategory       = "category"
	FieldStatus         = "status"
	FieldOrder          = "order"
	FieldFavorite       = "favorite"
	FieldCompletionDate = "completionDate"
	FieldUpdatedAt      = "updatedAt"
	FieldUserID         = "userId"
)

// Merge returns a copy of f with every key of other written over it.
func (f Fields) Merge(other Fields) Fields {
	out := make(Fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return f.Merge(nil)
}

// ToFields flattens an item into its JSON field map.
func (it Item) ToFields() (Fields, error) {
	raw, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal item fields: %w", err)
	}
	return f, nil
}

// Apply overlays fields onto a copy of the item. Unknown keys are ignored.
func (it Item) Apply(f Fields) (Item, error) {
	if len(f) == 0 {
		return it, nil
	}
	base, err := it.ToFields()
	if err != nil {
		return Item{}, err
	}
	return ItemFromFields(base.Merge(f))
}

func ItemFromFields(f Fields) (Item, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return Item{}, fmt.Errorf("marshal fields: %w", err)
	}
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return Item{}, fmt.Errorf("decode item: %w", err)
	}
	return it, nil
}
