package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

var instanceRowColumns = []string{"id", "params", "status", "step", "error", "output", "attempts", "created_at", "updated_at"}

func TestInstanceStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)
	inst := domain.NewInstance(domain.IngestParams{URL: "https://docs.test", Mode: domain.CrawlModeFetch})

	mock.ExpectExec(`INSERT INTO ingestion_instances`).
		WithArgs(inst.ID, sqlmock.AnyArg(), "queued", "lookup-or-create-site", "", nil, 0, inst.CreatedAt, inst.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, store.Create(context.Background(), inst))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM ingestion_instances WHERE id = \$1`).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows(instanceRowColumns).AddRow(
			"inst-1",
			[]byte(`{"url":"https://docs.test","strict":true,"mode":"render"}`),
			"complete", "done", "",
			[]byte(`{"site_id":"site-1","pages_crawled":3,"chunks_created":9}`),
			1, now, now,
		))

	inst, err := store.Get(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceStatusComplete, inst.Status)
	assert.Equal(t, domain.StepDone, inst.Step)
	assert.True(t, inst.Params.Strict)
	assert.Equal(t, domain.CrawlModeRender, inst.Params.Mode)
	require.NotNil(t, inst.Output)
	assert.Equal(t, 9, inst.Output.ChunksCreated)
}

func TestInstanceStore_Get_UnknownStatus(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM ingestion_instances`).
		WillReturnRows(sqlmock.NewRows(instanceRowColumns).AddRow(
			"inst-1", []byte(`{"url":"https://docs.test"}`), "exploded", "crawl", "", nil, 0, now, now,
		))

	inst, err := store.Get(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceStatusUnknown, inst.Status)
	assert.Nil(t, inst.Output)
}

func TestInstanceStore_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)

	mock.ExpectQuery(`SELECT .* FROM ingestion_instances`).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInstanceStore_Update_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)
	inst := domain.NewInstance(domain.IngestParams{URL: "https://docs.test"})
	inst.MarkWaiting("timeout")

	mock.ExpectExec(`UPDATE ingestion_instances`).
		WithArgs("waiting", "lookup-or-create-site", "timeout", nil, 0, inst.UpdatedAt, inst.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Update(context.Background(), inst), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceStore_ListStale(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)
	cutoff := time.Now().Add(-15 * time.Minute)
	old := cutoff.Add(-time.Hour)

	mock.ExpectQuery(`WHERE status = ANY\(\$1\) AND updated_at < \$2`).
		WithArgs(sqlmock.AnyArg(), cutoff).
		WillReturnRows(sqlmock.NewRows(instanceRowColumns).
			AddRow("inst-1", []byte(`{"url":"https://a.test"}`), "running", "crawl", "", nil, 1, old, old).
			AddRow("inst-2", []byte(`{"url":"https://b.test"}`), "waiting", "persist-pages", "boom", nil, 2, old, old))

	stale, err := store.ListStale(context.Background(),
		[]domain.InstanceStatus{domain.InstanceStatusRunning, domain.InstanceStatusWaiting}, cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, domain.StepPersistPages, stale[1].Step)
}

func TestInstanceStore_SaveCheckpoint_IsInsertIfAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)

	mock.ExpectExec(`INSERT INTO ingestion_checkpoints .* ON CONFLICT \(instance_id, name\) DO NOTHING`).
		WithArgs("inst-1", "crawl", []byte(`{"results":[]}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SaveCheckpoint(context.Background(), &domain.Checkpoint{
		InstanceID: "inst-1",
		Name:       "crawl",
		Output:     json.RawMessage(`{"results":[]}`),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceStore_GetCheckpoint(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)

	mock.ExpectQuery(`SELECT .* FROM ingestion_checkpoints`).
		WithArgs("inst-1", "embed-page:p1").
		WillReturnRows(sqlmock.NewRows([]string{"instance_id", "name", "output", "created_at"}).
			AddRow("inst-1", "embed-page:p1", []byte(`{"page_id":"p1","outcome":"skipped"}`), time.Now()))

	cp, err := store.GetCheckpoint(context.Background(), "inst-1", domain.PageCheckpointName("p1"))
	require.NoError(t, err)

	var out domain.PageEmbedOutput
	require.NoError(t, json.Unmarshal(cp.Output, &out))
	assert.Equal(t, domain.PageSkipped, out.Outcome)
}

func TestInstanceStore_GetCheckpoint_Missing(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewInstanceStore(db)

	mock.ExpectQuery(`SELECT .* FROM ingestion_checkpoints`).WillReturnError(sql.ErrNoRows)

	_, err := store.GetCheckpoint(context.Background(), "inst-1", "crawl")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
