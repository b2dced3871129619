package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

func TestChunkStore_ReplaceForPage(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewChunkStore(db)

	chunks := []*domain.Chunk{
		{ID: "c0", Index: 0, Content: "first", Embedding: []float32{1, 0}},
		{ID: "c1", Index: 1, Content: "second", Embedding: []float32{0, 1}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM page_chunks WHERE page_id = \$1`).
		WithArgs("page-1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	prep := mock.ExpectPrepare(`INSERT INTO page_chunks`)
	prep.ExpectExec().
		WithArgs("c0", "page-1", 0, "first", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("c1", "page-1", 1, "second", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.ReplaceForPage(context.Background(), "page-1", chunks))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.False(t, chunks[0].CreatedAt.IsZero())
}

func TestChunkStore_ReplaceForPage_EmptyClears(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewChunkStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM page_chunks`).WithArgs("page-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.ReplaceForPage(context.Background(), "page-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkStore_ReplaceForPage_RollsBackOnInsertError(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewChunkStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM page_chunks`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(`INSERT INTO page_chunks`).
		ExpectExec().
		WillReturnError(errors.New("expected 1024 dimensions, not 2"))
	mock.ExpectRollback()

	err := store.ReplaceForPage(context.Background(), "page-1", []*domain.Chunk{
		{ID: "c0", Index: 0, Content: "first", Embedding: []float32{1, 0}},
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkStore_GetByPage(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewChunkStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM page_chunks\s+WHERE page_id = \$1\s+ORDER BY chunk_index ASC`).
		WithArgs("page-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "page_id", "chunk_index", "content", "embedding", "created_at", "updated_at"}).
			AddRow("c0", "page-1", 0, "first", "[1,0.5,0]", now, now))

	chunks, err := store.GetByPage(context.Background(), "page-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []float32{1, 0.5, 0}, chunks[0].Embedding)
}

func TestChunkStore_SearchSimilar(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewChunkStore(db)

	mock.ExpectQuery(`1 - \(c.embedding <=> \$1\) > \$3\s+ORDER BY c.embedding <=> \$1 ASC\s+LIMIT \$4`).
		WithArgs(sqlmock.AnyArg(), "site-1", 0.5, 10).
		WillReturnRows(sqlmock.NewRows([]string{"title", "url", "content", "similarity"}).
			AddRow("Intro", "https://docs.test/intro", "hello", 0.91).
			AddRow("Guide", "https://docs.test/guide", "world", 0.64))

	results, err := store.SearchSimilar(context.Background(), domain.RetrievalQuery{
		SiteID:    "site-1",
		Embedding: []float32{1, 0, 0},
		Threshold: 0.5,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://docs.test/intro", results[0].URL)
	assert.InDelta(t, 0.91, results[0].Similarity, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkStore_CountByPage(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewChunkStore(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM page_chunks`).
		WithArgs("page-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := store.CountByPage(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
