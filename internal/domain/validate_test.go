package domain

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func validItem() Item {
	return Item{
		Title:    "  Hollow Knight ",
		Category: Category{Name: "Switch", Color: "#e60012"},
		Status:   StatusUpcoming,
	}
}

func gameRules() Rules {
	return Rules{
		MediaType:  MediaGames,
		Categories: []Category{{ID: "cat-1", Name: "Switch", Color: "#e60012"}},
		Now:        testNow,
	}
}

func TestValidate_NormalizesCandidate(t *testing.T) {
	it, err := Validate(validItem(), gameRules())
	require.NoError(t, err)

	assert.Equal(t, "Hollow Knight", it.Title)
	assert.Equal(t, MediaGames, it.MediaType)
	assert.Equal(t, "cat-1", it.Category.ID)
	assert.Equal(t, testNow, it.CreatedAt)
	assert.Equal(t, testNow, it.UpdatedAt)
}

func TestValidate_KeepsCreatedAt(t *testing.T) {
	in := validItem()
	in.CreatedAt = testNow.Add(-time.Hour)

	it, err := Validate(in, gameRules())
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-time.Hour), it.CreatedAt)
	assert.Equal(t, testNow, it.UpdatedAt)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Item)
		field  string
	}{
		{"empty title", func(i *Item) { i.Title = "   " }, FieldTitle},
		{"long title", func(i *Item) { i.Title = strings.Repeat("a", MaxTitleLength+1) }, FieldTitle},
		{"unknown status", func(i *Item) { i.Status = "watching" }, FieldStatus},
		{"missing category name", func(i *Item) { i.Category.Name = "" }, FieldCategory},
		{"missing category color", func(i *Item) { i.Category.Color = " " }, FieldCategory},
		{"undefined category", func(i *Item) { i.Category.Name = "Dreamcast" }, FieldCategory},
		{"impossible date", func(i *Item) { i.CompletionDate = "31/02/2023" }, FieldCompletionDate},
		{"malformed date", func(i *Item) { i.CompletionDate = "2023-02-01" }, FieldCompletionDate},
		{"short date", func(i *Item) { i.CompletionDate = "1/2/2023" }, FieldCompletionDate},
		{"wrong media type", func(i *Item) { i.MediaType = MediaBooks }, "mediaType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validItem()
			tt.mutate(&in)

			_, err := Validate(in, gameRules())
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_AcceptsLeapDay(t *testing.T) {
	in := validItem()
	in.CompletionDate = "29/02/2024"

	it, err := Validate(in, gameRules())
	require.NoError(t, err)
	assert.Equal(t, "29/02/2024", it.CompletionDate)
}

func TestValidate_ClampsOrder(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-3, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{2.5, 2.5},
		{MaxOrder + 10, MaxOrder},
	}
	for _, tt := range tests {
		in := validItem()
		in.Order = tt.in
		it, err := Validate(in, gameRules())
		require.NoError(t, err)
		assert.Equal(t, tt.want, it.Order)
	}
}

func TestValidate_NilCategoriesSkipsMembership(t *testing.T) {
	rules := gameRules()
	rules.Categories = nil
	in := validItem()
	in.Category.Name = "Anything"

	_, err := Validate(in, rules)
	require.NoError(t, err)
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, 3.0, CoerceOrder("3"))
	assert.Equal(t, 0.0, CoerceOrder("abc"))
	assert.Equal(t, 7.0, CoerceOrder(7))
	assert.Equal(t, 0.0, CoerceOrder(nil))

	assert.True(t, CoerceBool("true"))
	assert.True(t, CoerceBool(1.0))
	assert.False(t, CoerceBool("nope"))
	assert.False(t, CoerceBool(nil))
}

func TestItemApply(t *testing.T) {
	it := Item{ID: "a", Title: "Old", Status: StatusUpcoming, Order: 1, CreatedAt: testNow}

	got, err := it.Apply(Fields{FieldTitle: "New", FieldOrder: 1.5, "unknown": true})
	require.NoError(t, err)

	assert.Equal(t, "New", got.Title)
	assert.Equal(t, 1.5, got.Order)
	assert.Equal(t, StatusUpcoming, got.Status)
	assert.True(t, got.CreatedAt.Equal(testNow))
	assert.Equal(t, "Old", it.Title)
}

func TestFieldsMerge(t *testing.T) {
	a := Fields{FieldTitle: "a", FieldOrder: 1.0}
	b := Fields{FieldOrder: 2.0, FieldFavorite: true}

	merged := a.Merge(b)
	assert.Equal(t, Fields{FieldTitle: "a", FieldOrder: 2.0, FieldFavorite: true}, merged)
	assert.Equal(t, 1.0, a[FieldOrder])
}
