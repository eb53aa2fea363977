// Package archive reads and writes collection export files.
//
// Version 3.0 groups items by media type and status:
//
//	{version, exportDate, userEmail,
//	 data: {metadata: {platforms: [...]}, lists: {games: {playing: [...]}}},
//	 settings: {...}}
//
// Version 2.0 held one flat item array per media type with the status on
// each item. Migrate converts it to 3.0.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"media_tracker/internal/domain"
)

const (
	VersionLegacy  = "2.0"
	VersionCurrent = "3.0"
)

// Record is an item as it appears in a file. Imported files are not
// trusted to carry well-typed values, so records stay loosely typed until
// PrepareImport.
type Record map[string]any

// Lists holds the items of one media type grouped by status.
type Lists map[domain.Status][]Record

type Data struct {
	// Metadata maps a category collection name (platforms, genres,
	// authors) to the categories defined in it.
	Metadata map[string][]domain.Category `json:"metadata"`
	Lists    map[domain.MediaType]Lists   `json:"lists"`
}

type File struct {
	Version    string         `json:"version"`
	ExportDate time.Time      `json:"exportDate"`
	UserEmail  string         `json:"userEmail"`
	Data       Data           `json:"data"`
	Settings   map[string]any `json:"settings"`
}

// Build assembles a current-version export. Every status of every media
// type in lists gets an entry, empty or not.
func Build(
	email string,
	now time.Time,
	categories map[string][]domain.Category,
	lists map[domain.MediaType][]domain.Item,
	settings map[string]any,
) (*File, error) {
	f := &File{
		Version:    VersionCurrent,
		ExportDate: now.UTC(),
		UserEmail:  email,
		Data: Data{
			Metadata: make(map[string][]domain.Category, len(categories)),
			Lists:    make(map[domain.MediaType]Lists, len(lists)),
		},
		Settings: settings,
	}
	if f.Settings == nil {
		f.Settings = map[string]any{}
	}

	for name, cats := range categories {
		f.Data.Metadata[name] = append([]domain.Category{}, cats...)
	}

	for mt, items := range lists {
		sorted := append([]domain.Item(nil), items...)
		domain.SortItems(sorted, mt)

		grouped := make(Lists)
		for _, st := range mt.Statuses() {
			grouped[st] = []Record{}
		}
		for _, it := range sorted {
			fields, err := it.ToFields()
			if err != nil {
				return nil, fmt.Errorf("export item %s: %w", it.ID, err)
			}
			grouped[it.Status] = append(grouped[it.Status], Record(fields))
		}
		f.Data.Lists[mt] = grouped
	}
	return f, nil
}

func Encode(w io.Writer, f *File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Decode parses an export file for import. Only the current version is
// accepted.
func Decode(r io.Reader) (*File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	version, err := peekVersion(raw)
	if err != nil {
		return nil, err
	}
	if version != VersionCurrent {
		return nil, fmt.Errorf("%w: file has version %q, import expects %q", domain.ErrUnsupportedVersion, version, VersionCurrent)
	}

	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return &f, nil
}

func peekVersion(raw []byte) (string, error) {
	var head struct {
		Version json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("decode export header: %w", err)
	}
	if len(head.Version) == 0 {
		return "", fmt.Errorf("%w: version is missing", domain.ErrUnsupportedVersion)
	}

	// Some writers stored the version as a bare number.
	var s string
	if err := json.Unmarshal(head.Version, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(head.Version))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if f, err := n.Float64(); err == nil {
			return fmt.Sprintf("%.1f", f), nil
		}
	}
	return "", fmt.Errorf("%w: unreadable version %s", domain.ErrUnsupportedVersion, head.Version)
}
