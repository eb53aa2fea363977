//go:build integration

package postgres

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
	"media_tracker/internal/schema"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
	logger    *slog.Logger
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_documents.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM documents")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestDocumentStore_SetAndGet() {
	store := NewDocumentStore(s.db)
	ref := remote.DocRef{Collection: "items", ID: "a"}

	change, err := store.Set(s.ctx, ref, remote.Data{"title": "A", "order": 1}, remote.SetOptions{})
	s.Require().NoError(err)
	s.Equal(remote.ChangeAdded, change.Type)

	change, err = store.Set(s.ctx, ref, remote.Data{"order": 2}, remote.SetOptions{Merge: true})
	s.Require().NoError(err)
	s.Equal(remote.ChangeModified, change.Type)

	doc, err := store.Get(s.ctx, ref)
	s.Require().NoError(err)
	s.Equal("A", doc.Data["title"])
	s.Equal(2.0, doc.Data["order"])
	s.False(doc.UpdatedAt.IsZero())

	_, err = store.Set(s.ctx, ref, remote.Data{"order": 3}, remote.SetOptions{})
	s.Require().NoError(err)
	doc, err = store.Get(s.ctx, ref)
	s.Require().NoError(err)
	s.NotContains(doc.Data, "title")
}

func (s *PostgresIntegrationSuite) TestDocumentStore_GetMissing() {
	_, err := NewDocumentStore(s.db).Get(s.ctx, remote.DocRef{Collection: "items", ID: "nope"})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestDocumentStore_CommitRollsBackOnMissingUpdate() {
	store := NewDocumentStore(s.db)

	_, err := store.Commit(s.ctx, []remote.Write{
		{Type: remote.WriteSet, Ref: remote.DocRef{Collection: "items", ID: "a"}, Data: remote.Data{"title": "A"}},
		{Type: remote.WriteUpdate, Ref: remote.DocRef{Collection: "items", ID: "missing"}, Data: remote.Data{"title": "X"}},
	})
	s.Require().Error(err)
	s.ErrorIs(err, domain.ErrNotFound)

	var be *remote.BatchError
	s.Require().ErrorAs(err, &be)
	s.Equal(1, be.Index)

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM documents"))
	s.Equal(0, count)
}

func (s *PostgresIntegrationSuite) TestDocumentStore_DeleteMissingIsNoop() {
	changes, err := NewDocumentStore(s.db).Commit(s.ctx, []remote.Write{
		{Type: remote.WriteDelete, Ref: remote.DocRef{Collection: "items", ID: "ghost"}},
	})
	s.NoError(err)
	s.Empty(changes)
}

func (s *PostgresIntegrationSuite) TestDocumentStore_QueryByOwner() {
	store := NewDocumentStore(s.db)
	_, err := store.Commit(s.ctx, []remote.Write{
		{Type: remote.WriteSet, Ref: remote.DocRef{Collection: "items", ID: "a"}, Data: remote.Data{"userId": "u1", "mediaType": "games"}},
		{Type: remote.WriteSet, Ref: remote.DocRef{Collection: "items", ID: "b"}, Data: remote.Data{"userId": "u1", "mediaType": "books"}},
		{Type: remote.WriteSet, Ref: remote.DocRef{Collection: "items", ID: "c"}, Data: remote.Data{"userId": "u2", "mediaType": "games"}},
		{Type: remote.WriteSet, Ref: remote.DocRef{Collection: "other", ID: "d"}, Data: remote.Data{"userId": "u1", "mediaType": "games"}},
	})
	s.Require().NoError(err)

	docs, err := store.Query(s.ctx, remote.ByOwner("items", "userId", "u1", remote.Filter{Field: "mediaType", Value: "games"}))
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal("a", docs[0].Ref.ID)

	docs, err = store.Query(s.ctx, remote.ByDoc(remote.DocRef{Collection: "items", ID: "c"}))
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal("u2", docs[0].Data["userId"])
}

func (s *PostgresIntegrationSuite) TestTransactionManager_RollsBack() {
	tm := NewTransactionManager(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
			"INSERT INTO documents (collection, id, data) VALUES ('items', 'tx', '{}')")
		s.Require().NoError(err)
		return context.Canceled
	})
	s.ErrorIs(err, context.Canceled)

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM documents"))
	s.Equal(0, count)
}

// Both layouts must behave the same on a real database.
func (s *PostgresIntegrationSuite) TestSchemaAdapters_OverPostgres() {
	for _, kind := range []schema.Kind{schema.KindLegacy, schema.KindCurrent} {
		s.Run(string(kind), func() {
			_, _ = s.db.ExecContext(s.ctx, "DELETE FROM documents")
			store := remote.NewFeedStore(NewDocumentStore(s.db), remote.NewMemoryFeed(), s.logger)
			a := schema.New(kind, store, "u1", domain.MediaGames, s.logger)

			created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			item := domain.Item{
				ID:             "a",
				Title:          "Alpha",
				Category:       domain.Category{Name: "PC", Color: "#000"},
				Status:         domain.StatusPlaying,
				CompletionDate: "01/02/2024",
				CreatedAt:      created,
				UpdatedAt:      created,
			}
			s.Require().NoError(a.Add(s.ctx, item))
			s.Require().NoError(a.Update(s.ctx, "a", domain.Fields{domain.FieldFavorite: true}))
			s.Require().NoError(a.Update(s.ctx, "missing", domain.Fields{domain.FieldFavorite: true}))

			got, err := a.GetOne(s.ctx, "a")
			s.Require().NoError(err)
			s.True(got.Favorite)
			s.Equal("01/02/2024", got.CompletionDate)
			s.Equal("u1", got.UserID)

			s.Require().NoError(a.Delete(s.ctx, "a"))
			items, err := a.GetAll(s.ctx)
			s.Require().NoError(err)
			s.Empty(items)
		})
	}
}
