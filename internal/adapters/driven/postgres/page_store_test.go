package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

var pageRowColumns = []string{"id", "site_id", "title", "url", "metadata", "created_at", "updated_at"}

func TestPageStore_CreateBatch_SkipsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPageStore(db)

	fresh := domain.NewPage("site-1", "https://docs.test/a", "A")
	fresh.Metadata = map[string]string{"instance_id": "inst-1"}
	existing := domain.NewPage("site-1", "https://docs.test/b", "B")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pages .* ON CONFLICT \(site_id, url\) DO NOTHING`).
		WithArgs(fresh.ID, "site-1", "A", fresh.URL, []byte(`{"instance_id":"inst-1"}`), fresh.CreatedAt, fresh.UpdatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(fresh.ID))
	mock.ExpectQuery(`INSERT INTO pages`).
		WithArgs(existing.ID, "site-1", "B", existing.URL, []byte(`{}`), existing.CreatedAt, existing.UpdatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	created, err := store.CreateBatch(context.Background(), []*domain.Page{fresh, existing})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, fresh.ID, created[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageStore_CreateBatch_RollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPageStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pages`).WillReturnError(errors.New("site_id violates foreign key"))
	mock.ExpectRollback()

	_, err := store.CreateBatch(context.Background(), []*domain.Page{domain.NewPage("gone", "https://docs.test", "")})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageStore_CreateBatch_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPageStore(db)

	created, err := store.CreateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPageStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM pages WHERE id = \$1`).
		WithArgs("page-1").
		WillReturnRows(sqlmock.NewRows(pageRowColumns).
			AddRow("page-1", "site-1", "Intro", "https://docs.test/intro", []byte(`{"instance_id":"inst-1"}`), now, now))

	page, err := store.Get(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, "Intro", page.Title)
	assert.Equal(t, "inst-1", page.Metadata["instance_id"])
}

func TestPageStore_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPageStore(db)

	mock.ExpectQuery(`SELECT .* FROM pages`).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPageStore_ListBySite(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPageStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM pages WHERE site_id = \$1 ORDER BY url ASC`).
		WithArgs("site-1").
		WillReturnRows(sqlmock.NewRows(pageRowColumns).
			AddRow("p1", "site-1", "A", "https://docs.test/a", []byte(`{}`), now, now).
			AddRow("p2", "site-1", "B", "https://docs.test/b", []byte(`{}`), now, now))

	pages, err := store.ListBySite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestPageStore_CountBySite(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPageStore(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM pages WHERE site_id = \$1`).
		WithArgs("site-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.CountBySite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPageStore_Delete_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPageStore(db)

	mock.ExpectExec(`DELETE FROM pages WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Delete(context.Background(), "missing"), domain.ErrNotFound)
}
