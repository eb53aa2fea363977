// Package remote defines the document store primitives the sync engine
// depends on: get, set, batch commit, query by owner and live snapshots.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"media_tracker/internal/domain"
)

// MaxBatchWrites is the most writes a single BatchCommit accepts.
const MaxBatchWrites = 500

var ErrNotFound = domain.ErrNotFound

type DocRef struct {
	Collection string
	ID         string
}

func (r DocRef) Path() string {
	return r.Collection + "/" + r.ID
}

type Data map[string]any

func (d Data) clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

type Document struct {
	Ref       DocRef
	Data      Data
	UpdatedAt time.Time
}

type SetOptions struct {
	// Merge writes the given top-level fields over the stored document
	// instead of replacing it.
	Merge bool
}

type WriteType string

const (
	WriteSet    WriteType = "set"
	WriteUpdate WriteType = "update"
	WriteDelete WriteType = "delete"
)

type Write struct {
	Type  WriteType
	Ref   DocRef
	Data  Data
	Merge bool
}

type Filter struct {
	Field string
	Value string
}

// Query selects documents of one collection, optionally a single document
// id, filtered by top-level field equality.
type Query struct {
	Collection string
	DocID      string
	Where      []Filter
}

func ByOwner(collection, ownerField, owner string, extra ...Filter) Query {
	return Query{
		Collection: collection,
		Where:      append([]Filter{{Field: ownerField, Value: owner}}, extra...),
	}
}

func ByDoc(ref DocRef) Query {
	return Query{Collection: ref.Collection, DocID: ref.ID}
}

func (q Query) Matches(doc Document) bool {
	if doc.Ref.Collection != q.Collection {
		return false
	}
	if q.DocID != "" && doc.Ref.ID != q.DocID {
		return false
	}
	for _, f := range q.Where {
		v, ok := doc.Data[f.Field]
		if !ok || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change describes one committed document write. Removed changes carry the
// document as it was before deletion.
type Change struct {
	Type ChangeType
	Doc  Document
}

type Snapshot struct {
	// Initial is set on the first snapshot of a listener; it lists every
	// matching document as added.
	Initial bool
	Changes []Change
}

type Unsubscribe func()

type Store interface {
	Get(ctx context.Context, ref DocRef) (*Document, error)
	Set(ctx context.Context, ref DocRef, data Data, opts SetOptions) error
	BatchCommit(ctx context.Context, writes []Write) error
	Query(ctx context.Context, q Query) ([]Document, error)
	OnSnapshot(ctx context.Context, q Query, onNext func(Snapshot), onError func(error)) (Unsubscribe, error)
}

// BatchError reports the write that aborted a batch. The batch is rolled
// back as a whole.
type BatchError struct {
	Index int
	Ref   DocRef
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch write %d (%s): %v", e.Index, e.Ref.Path(), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func ValidateBatch(writes []Write) error {
	if len(writes) > MaxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds limit of %d", len(writes), MaxBatchWrites)
	}
	for i, w := range writes {
		switch w.Type {
		case WriteSet, WriteUpdate, WriteDelete:
		default:
			return &BatchError{Index: i, Ref: w.Ref, Err: fmt.Errorf("unknown write type %q", w.Type)}
		}
		if w.Ref.Collection == "" || w.Ref.ID == "" {
			return &BatchError{Index: i, Ref: w.Ref, Err: fmt.Errorf("incomplete document reference")}
		}
	}
	return nil
}

// MergeData applies a merge write of patch over base.
func MergeData(base, patch Data) Data {
	out := base.clone()
	if out == nil {
		out = make(Data, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// NormalizeData round-trips d through JSON so stored documents only hold
// plain JSON values, whatever Go types the caller used.
func NormalizeData(d Data) (Data, error) {
	if d == nil {
		return Data{}, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out Data
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
