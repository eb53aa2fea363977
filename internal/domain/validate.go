package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 200
	MaxOrder             = 999999
	CompletionDateLayout = "02/01/2006"
)

var completionDatePattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// Rules is the context an item is validated against.
type Rules struct {
	MediaType MediaType
	// Categories the user has defined. Nil skips the membership check.
	Categories []Category
	Now        time.Time
}

// Validate normalizes a candidate item and rejects it if it breaks any rule.
// It never touches the network and has no side effects.
func Validate(candidate Item, rules Rules) (Item, error) {
	it := candidate

	it.ID = strings.TrimSpace(it.ID)
	it.Title = strings.TrimSpace(it.Title)
	if it.Title == "" {
		return Item{}, &ValidationError{Field: FieldTitle, Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(it.Title) > MaxTitleLength {
		return Item{}, &ValidationError{Field: FieldTitle, Reason: "exceeds " + strconv.Itoa(MaxTitleLength) + " characters"}
	}

	if it.MediaType == "" {
		it.MediaType = rules.MediaType
	}
	if !it.MediaType.Valid() {
		return Item{}, &ValidationError{Field: "mediaType", Reason: "unknown media type " + strconv.Quote(string(it.MediaType))}
	}
	if rules.MediaType != "" && it.MediaType != rules.MediaType {
		return Item{}, &ValidationError{Field: "mediaType", Reason: "does not match active list " + string(rules.MediaType)}
	}

	it.Status = Status(strings.ToLower(strings.TrimSpace(string(it.Status))))
	if !it.MediaType.HasStatus(it.Status) {
		return Item{}, &ValidationError{Field: FieldStatus, Reason: "unknown status " + strconv.Quote(string(it.Status))}
	}

	cat, err := validateCategory(it.Category, rules.Categories)
	if err != nil {
		return Item{}, err
	}
	it.Category = cat

	it.CompletionDate = strings.TrimSpace(it.CompletionDate)
	if it.CompletionDate != "" && !ValidCompletionDate(it.CompletionDate) {
		return Item{}, &ValidationError{Field: FieldCompletionDate, Reason: "must be a real date in DD/MM/YYYY form"}
	}

	it.Order = NormalizeOrder(it.Order)

	now := rules.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	return it, nil
}

func validateCategory(c Category, defined []Category) (Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Color = strings.TrimSpace(c.Color)
	if c.Name == "" {
		return Category{}, &ValidationError{Field: FieldCategory, Reason: "name is required"}
	}
	if c.Color == "" {
		return Category{}, &ValidationError{Field: FieldCategory, Reason: "color is required"}
	}
	if defined == nil {
		return c, nil
	}
	for _, d := range defined {
		if strings.EqualFold(d.Name, c.Name) {
			if c.ID == "" {
				c.ID = d.ID
			}
			return c, nil
		}
	}
	return Category{}, &ValidationError{Field: FieldCategory, Reason: "unknown category " + strconv.Quote(c.Name)}
}

// ValidCompletionDate reports whether s is a calendar-correct DD/MM/YYYY date.
func ValidCompletionDate(s string) bool {
	if !completionDatePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(CompletionDateLayout, s)
	return err == nil
}

// NormalizeOrder forces an order value to a finite number in [0, MaxOrder].
func NormalizeOrder(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Min(math.Max(v, 0), MaxOrder)
}

// CoerceOrder converts a loosely typed order value, as found in imported
// files, into a normalized order.
func CoerceOrder(v any) float64 {
	switch n := v.(type) {
	case float64:
		return NormalizeOrder(n)
	case float32:
		return NormalizeOrder(float64(n))
	case int:
		return NormalizeOrder(float64(n))
	case int64:
		return NormalizeOrder(float64(n))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return NormalizeOrder(f)
	default:
		return 0
	}
}

// CoerceBool converts a loosely typed flag into a bool.
func CoerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}
