package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDB(db), mock
}

var siteRowColumns = []string{"id", "url", "total_pages", "created_at", "updated_at"}

func TestSiteStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)
	site := domain.NewSite("https://docs.test")

	mock.ExpectExec(`INSERT INTO sites`).
		WithArgs(site.ID, site.URL, 0, site.CreatedAt, site.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, store.Create(context.Background(), site))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteStore_Create_DuplicateURL(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)

	mock.ExpectExec(`INSERT INTO sites`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := store.Create(context.Background(), domain.NewSite("https://docs.test"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestSiteStore_Create_OtherError(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)

	mock.ExpectExec(`INSERT INTO sites`).WillReturnError(errors.New("connection reset"))

	err := store.Create(context.Background(), domain.NewSite("https://docs.test"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestSiteStore_GetByURL(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM sites WHERE url = \$1`).
		WithArgs("https://docs.test").
		WillReturnRows(sqlmock.NewRows(siteRowColumns).AddRow("site-1", "https://docs.test", 7, now, now))

	site, err := store.GetByURL(context.Background(), "https://docs.test")
	require.NoError(t, err)
	assert.Equal(t, "site-1", site.ID)
	assert.Equal(t, 7, site.TotalPages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteStore_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)

	mock.ExpectQuery(`SELECT .* FROM sites WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSiteStore_List_EmptyIsNonNil(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)

	mock.ExpectQuery(`SELECT .* FROM sites ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows(siteRowColumns))

	sites, err := store.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sites)
	assert.Empty(t, sites)
}

func TestSiteStore_UpdateTotalPages(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)

	mock.ExpectQuery(`UPDATE sites\s+SET total_pages = \(SELECT COUNT\(\*\) FROM pages WHERE site_id = \$1\)`).
		WithArgs("site-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"total_pages"}).AddRow(12))

	total, err := store.UpdateTotalPages(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteStore_UpdateTotalPages_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)

	mock.ExpectQuery(`UPDATE sites`).WillReturnError(sql.ErrNoRows)

	_, err := store.UpdateTotalPages(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSiteStore_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSiteStore(db)

	mock.ExpectExec(`DELETE FROM sites WHERE id = \$1`).
		WithArgs("site-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM sites WHERE id = \$1`).
		WithArgs("site-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.Delete(context.Background(), "site-1"))
	assert.ErrorIs(t, store.Delete(context.Background(), "site-1"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
