package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_tracker/internal/domain"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "prefs.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestLoad_CorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("theme = [unterminated"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	body := "theme = \"light\"\nactive_media_type = \"books\"\nsort_favorites_first = true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Prefs{Theme: "light", ActiveMediaType: domain.MediaBooks, SortFavoritesFirst: true}, p)
}

func TestLoad_UnknownMediaTypeFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("active_media_type = \"vinyl\"\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, domain.MediaGames, p.ActiveMediaType)
}

func TestSave_CreatesDirectories(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	want := Prefs{Theme: "light", ActiveMediaType: domain.MediaMovies}
	require.NoError(t, Save("~/.config/media-tracker/prefs.toml", want))

	got, err := Load(filepath.Join(home, ".config", "media-tracker", "prefs.toml"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSettings(t *testing.T) {
	p := Prefs{Theme: "light", ActiveMediaType: domain.MediaBooks, SortFavoritesFirst: true}
	assert.Equal(t, p, FromSettings(p.Settings()))

	assert.Equal(t, Defaults(), FromSettings(map[string]any{"theme": 42, "activeMediaType": "vinyl"}))
	assert.True(t, FromSettings(map[string]any{"sortFavoritesFirst": "true"}).SortFavoritesFirst)
}
