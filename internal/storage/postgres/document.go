package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"media_tracker/internal/remote"
)

// DocumentStore keeps remote documents as JSONB rows keyed by collection
// and id. It implements remote.Backend; live snapshots come from the change
// feed it is paired with.
type DocumentStore struct {
	db *sqlx.DB
	tx *TransactionManager
}

func NewDocumentStore(db *sqlx.DB) *DocumentStore {
	return &DocumentStore{db: db, tx: NewTransactionManager(db)}
}

type documentRow struct {
	Collection string    `db:"collection"`
	ID         string    `db:"id"`
	Data       []byte    `db:"data"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r documentRow) document() (remote.Document, error) {
	var data remote.Data
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return remote.Document{}, fmt.Errorf("decode %s/%s: %w", r.Collection, r.ID, err)
	}
	return remote.Document{
		Ref:       remote.DocRef{Collection: r.Collection, ID: r.ID},
		Data:      data,
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

func (s *DocumentStore) Get(ctx context.Context, ref remote.DocRef) (*remote.Document, error) {
	var row documentRow
	query := `
		SELECT collection, id, data, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, ref.Collection, ref.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remote.ErrNotFound
	}
	if err != nil {
		return nil, classify("get document", err)
	}

	doc, err := row.document()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentStore) Set(ctx context.Context, ref remote.DocRef, data remote.Data, opts remote.SetOptions) (remote.Change, error) {
	changes, err := s.Commit(ctx, []remote.Write{{Type: remote.WriteSet, Ref: ref, Data: data, Merge: opts.Merge}})
	if err != nil {
		return remote.Change{}, err
	}
	return changes[0], nil
}

// Commit applies writes in one transaction. The affected rows are locked
// up front in a fixed order so concurrent batches cannot deadlock.
func (s *DocumentStore) Commit(ctx context.Context, writes []remote.Write) ([]remote.Change, error) {
	if err := remote.ValidateBatch(writes); err != nil {
		return nil, err
	}

	var changes []remote.Change
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		if err := s.lock(txCtx, exec, writes); err != nil {
			return err
		}

		changes = make([]remote.Change, 0, len(writes))
		for i, w := range writes {
			change, ok, err := s.apply(txCtx, exec, w)
			if err != nil {
				return &remote.BatchError{Index: i, Ref: w.Ref, Err: err}
			}
			if ok {
				changes = append(changes, change)
			}
		}
		return nil
	})
	if err != nil {
		var be *remote.BatchError
		if errors.As(err, &be) {
			be.Err = classify("commit batch", be.Err)
			return nil, be
		}
		return nil, classify("commit batch", err)
	}
	return changes, nil
}

func (s *DocumentStore) lock(ctx context.Context, exec sqlx.ExtContext, writes []remote.Write) error {
	byCollection := make(map[string][]string)
	for _, w := range writes {
		byCollection[w.Ref.Collection] = append(byCollection[w.Ref.Collection], w.Ref.ID)
	}
	collections := make([]string, 0, len(byCollection))
	for c := range byCollection {
		collections = append(collections, c)
	}
	sort.Strings(collections)

	for _, c := range collections {
		query := `
			SELECT id FROM documents
			WHERE collection = $1 AND id = ANY($2)
			ORDER BY id
			FOR UPDATE`
		rows, err := exec.QueryContext(ctx, query, c, pq.Array(byCollection[c]))
		if err != nil {
			return fmt.Errorf("lock %s: %w", c, err)
		}
		rows.Close()
	}
	return nil
}

// apply runs one write. ok is false for a delete of a missing document,
// which changes nothing.
func (s *DocumentStore) apply(ctx context.Context, exec sqlx.ExtContext, w remote.Write) (remote.Change, bool, error) {
	var row documentRow

	switch w.Type {
	case remote.WriteDelete:
		query := `
			DELETE FROM documents
			WHERE collection = $1 AND id = $2
			RETURNING collection, id, data, updated_at`
		err := sqlx.GetContext(ctx, exec, &row, query, w.Ref.Collection, w.Ref.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return remote.Change{}, false, nil
		}
		if err != nil {
			return remote.Change{}, false, err
		}
		doc, err := row.document()
		return remote.Change{Type: remote.ChangeRemoved, Doc: doc}, err == nil, err

	case remote.WriteUpdate:
		body, err := json.Marshal(w.Data)
		if err != nil {
			return remote.Change{}, false, fmt.Errorf("encode document: %w", err)
		}
		query := `
			UPDATE documents
			SET data = data || $3::jsonb, updated_at = NOW()
			WHERE collection = $1 AND id = $2
			RETURNING collection, id, data, updated_at`
		err = sqlx.GetContext(ctx, exec, &row, query, w.Ref.Collection, w.Ref.ID, string(body))
		if errors.Is(err, sql.ErrNoRows) {
			return remote.Change{}, false, remote.ErrNotFound
		}
		if err != nil {
			return remote.Change{}, false, err
		}
		doc, err := row.document()
		return remote.Change{Type: remote.ChangeModified, Doc: doc}, err == nil, err

	default:
		body, err := json.Marshal(nonNil(w.Data))
		if err != nil {
			return remote.Change{}, false, fmt.Errorf("encode document: %w", err)
		}
		onConflict := "EXCLUDED.data"
		if w.Merge {
			onConflict = "documents.data || EXCLUDED.data"
		}
		query := fmt.Sprintf(`
			INSERT INTO documents (collection, id, data, updated_at)
			VALUES ($1, $2, $3::jsonb, NOW())
			ON CONFLICT (collection, id) DO UPDATE SET
				data = %s,
				updated_at = EXCLUDED.updated_at
			RETURNING collection, id, data, updated_at, (xmax = 0) AS inserted`, onConflict)

		var res struct {
			documentRow
			Inserted bool `db:"inserted"`
		}
		if err := sqlx.GetContext(ctx, exec, &res, query, w.Ref.Collection, w.Ref.ID, string(body)); err != nil {
			return remote.Change{}, false, err
		}
		doc, err := res.document()
		typ := remote.ChangeModified
		if res.Inserted {
			typ = remote.ChangeAdded
		}
		return remote.Change{Type: typ, Doc: doc}, err == nil, err
	}
}

func (s *DocumentStore) Query(ctx context.Context, q remote.Query) ([]remote.Document, error) {
	var (
		where = []string{"collection = $1"}
		args  = []any{q.Collection}
	)
	if q.DocID != "" {
		args = append(args, q.DocID)
		where = append(where, fmt.Sprintf("id = $%d", len(args)))
	}
	for _, f := range q.Where {
		args = append(args, f.Field, f.Value)
		where = append(where, fmt.Sprintf("data ->> $%d = $%d", len(args)-1, len(args)))
	}

	query := `
		SELECT collection, id, data, updated_at
		FROM documents
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id`

	var rows []documentRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, classify("query documents", err)
	}

	docs := make([]remote.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func nonNil(d remote.Data) remote.Data {
	if d == nil {
		return remote.Data{}
	}
	return d
}

var _ remote.Backend = (*DocumentStore)(nil)
