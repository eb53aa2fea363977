package archive

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"media_tracker/internal/domain"
)

type legacyFile struct {
	Version    string         `json:"version"`
	ExportDate time.Time      `json:"exportDate"`
	UserEmail  string         `json:"userEmail"`
	Data       legacyData     `json:"data"`
	Settings   map[string]any `json:"settings"`
}

type legacyData struct {
	Metadata map[string][]domain.Category   `json:"metadata"`
	Lists    map[domain.MediaType][]Record `json:"lists"`
}

// Counts is what a migration must preserve.
type Counts struct {
	Items      map[domain.MediaType]int
	Categories map[string]int
}

func (f *File) Counts() Counts {
	c := Counts{Items: map[domain.MediaType]int{}, Categories: map[string]int{}}
	for mt, lists := range f.Data.Lists {
		for _, recs := range lists {
			c.Items[mt] += len(recs)
		}
	}
	for name, cats := range f.Data.Metadata {
		c.Categories[name] = len(cats)
	}
	return c
}

func (f *legacyFile) counts() Counts {
	c := Counts{Items: map[domain.MediaType]int{}, Categories: map[string]int{}}
	for mt, recs := range f.Data.Lists {
		c.Items[mt] = len(recs)
	}
	for name, cats := range f.Data.Metadata {
		c.Categories[name] = len(cats)
	}
	return c
}

// Migrate converts an export of any known version to the current one.
// Current files pass through unchanged. The result is checked with
// VerifyMigration before it is returned.
func Migrate(raw []byte) (*File, error) {
	version, err := peekVersion(raw)
	if err != nil {
		return nil, err
	}

	switch version {
	case VersionCurrent:
		var f File
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode export: %w", err)
		}
		return &f, nil
	case VersionLegacy:
	default:
		return nil, fmt.Errorf("%w: cannot migrate version %q", domain.ErrUnsupportedVersion, version)
	}

	var old legacyFile
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, fmt.Errorf("decode %s export: %w", VersionLegacy, err)
	}

	migrated := migrateLegacy(&old)
	if err := VerifyMigration(old.counts(), migrated); err != nil {
		return nil, err
	}
	return migrated, nil
}

func migrateLegacy(old *legacyFile) *File {
	f := &File{
		Version:    VersionCurrent,
		ExportDate: old.ExportDate,
		UserEmail:  old.UserEmail,
		Data: Data{
			Metadata: old.Data.Metadata,
			Lists:    make(map[domain.MediaType]Lists, len(old.Data.Lists)),
		},
		Settings: old.Settings,
	}
	if f.Data.Metadata == nil {
		f.Data.Metadata = map[string][]domain.Category{}
	}
	if f.Settings == nil {
		f.Settings = map[string]any{}
	}

	for mt, recs := range old.Data.Lists {
		grouped := make(Lists)
		for _, st := range mt.Statuses() {
			grouped[st] = []Record{}
		}
		for _, rec := range recs {
			st := recordStatus(rec, mt)
			out := make(Record, len(rec))
			for k, v := range rec {
				out[k] = v
			}
			out[domain.FieldStatus] = string(st)
			grouped[st] = append(grouped[st], out)
		}
		for st := range grouped {
			sortRecords(grouped[st])
		}
		f.Data.Lists[mt] = grouped
	}
	return f
}

// recordStatus reads the status a 2.0 item carried. Items without a
// readable status land in the first list of their media type.
func recordStatus(rec Record, mt domain.MediaType) domain.Status {
	if s, ok := rec[domain.FieldStatus].(string); ok {
		if st := domain.Status(strings.ToLower(strings.TrimSpace(s))); st != "" {
			return st
		}
	}
	if statuses := mt.Statuses(); len(statuses) > 0 {
		return statuses[0]
	}
	return domain.StatusUpcoming
}

// sortRecords orders a list by its order field, keeping file order for
// ties so the migration is deterministic.
func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return domain.CoerceOrder(recs[i][domain.FieldOrder]) < domain.CoerceOrder(recs[j][domain.FieldOrder])
	})
}

// VerifyMigration checks that a migrated file holds as many items per media
// type and categories per collection as the source did.
func VerifyMigration(before Counts, after *File) error {
	got := after.Counts()
	for mt, n := range before.Items {
		if got.Items[mt] != n {
			return fmt.Errorf("verify migration: %s has %d items, expected %d", mt, got.Items[mt], n)
		}
	}
	for mt, n := range got.Items {
		if _, ok := before.Items[mt]; !ok && n > 0 {
			return fmt.Errorf("verify migration: unexpected %d items for %s", n, mt)
		}
	}
	for name, n := range before.Categories {
		if got.Categories[name] != n {
			return fmt.Errorf("verify migration: %s has %d categories, expected %d", name, got.Categories[name], n)
		}
	}
	return nil
}
