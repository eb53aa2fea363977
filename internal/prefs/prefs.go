// Package prefs persists per-device display preferences in a TOML file.
// A missing or unreadable file yields the defaults.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"media_tracker/internal/domain"
)

type Prefs struct {
	Theme              string           `toml:"theme"`
	ActiveMediaType    domain.MediaType `toml:"active_media_type"`
	SortFavoritesFirst bool             `toml:"sort_favorites_first"`
}

const (
	defaultTheme     = "dark"
	defaultMediaType = domain.MediaGames
)

func Defaults() Prefs {
	return Prefs{Theme: defaultTheme, ActiveMediaType: defaultMediaType}
}

func Load(path string) (Prefs, error) {
	resolved, err := expandPath(path)
	if err != nil {
		return Defaults(), nil
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return Defaults(), nil
	}

	p := Defaults()
	if err := toml.Unmarshal(raw, &p); err != nil {
		return Defaults(), nil
	}
	return p.normalized(), nil
}

func Save(path string, p Prefs) error {
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	raw, err := toml.Marshal(p.normalized())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, raw, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

// Settings is the form preferences take inside an export file.
func (p Prefs) Settings() map[string]any {
	return map[string]any{
		"theme":              p.Theme,
		"activeMediaType":    string(p.ActiveMediaType),
		"sortFavoritesFirst": p.SortFavoritesFirst,
	}
}

// FromSettings reads preferences back out of an export file, keeping the
// defaults for anything missing or malformed.
func FromSettings(settings map[string]any) Prefs {
	p := Defaults()
	if v, ok := settings["theme"].(string); ok {
		p.Theme = v
	}
	if v, ok := settings["activeMediaType"].(string); ok {
		p.ActiveMediaType = domain.MediaType(v)
	}
	if v, ok := settings["sortFavoritesFirst"]; ok {
		p.SortFavoritesFirst = domain.CoerceBool(v)
	}
	return p.normalized()
}

func (p Prefs) normalized() Prefs {
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = defaultTheme
	}
	if !p.ActiveMediaType.Valid() {
		p.ActiveMediaType = defaultMediaType
	}
	return p
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
