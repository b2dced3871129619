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
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

var taskRowColumns = []string{
	"id", "type", "payload", "status", "priority",
	"attempts", "max_attempts", "error", "created_at", "updated_at",
	"started_at", "completed_at", "scheduled_for",
}

func newMockQueue(t *testing.T) (*Queue, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewQueue(db), mock
}

func taskRow(id string, attempts, maxAttempts int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(taskRowColumns).AddRow(
		id, string(domain.TaskTypeAdvanceInstance), []byte(`{"instance_id":"inst-1"}`),
		string(domain.TaskStatusPending), 0, attempts, maxAttempts, "", now, now,
		nil, nil, now,
	)
}

func TestQueue_Enqueue(t *testing.T) {
	q, mock := newMockQueue(t)
	task := domain.NewAdvanceInstanceTask("inst-1")

	mock.ExpectExec(`INSERT INTO tasks`).
		WithArgs(task.ID, task.Type, []byte(`{"instance_id":"inst-1"}`), task.Status, 0, 0, 3, "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := q.Enqueue(context.Background(), task)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_EnqueueBatch_RollsBackOnError(t *testing.T) {
	q, mock := newMockQueue(t)
	tasks := []*domain.Task{
		domain.NewAdvanceInstanceTask("inst-1"),
		domain.NewAdvanceInstanceTask("inst-2"),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tasks`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO tasks`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := q.EnqueueBatch(context.Background(), tasks)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), tasks[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_EnqueueBatch_Empty(t *testing.T) {
	q, mock := newMockQueue(t)

	assert.NoError(t, q.EnqueueBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_Dequeue(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM tasks\s+WHERE status = \$1\s+AND scheduled_for <= NOW\(\).*FOR UPDATE SKIP LOCKED`).
		WithArgs(domain.TaskStatusPending).
		WillReturnRows(taskRow("task-1", 0, 3))
	mock.ExpectExec(`UPDATE tasks\s+SET status = \$1`).
		WithArgs(domain.TaskStatusProcessing, sqlmock.AnyArg(), sqlmock.AnyArg(), "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, "inst-1", task.InstanceID())
	assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.NotNil(t, task.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_Dequeue_Empty(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM tasks`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	task, err := q.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, task)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_Ack(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec(`UPDATE tasks\s+SET status = \$1, completed_at`).
		WithArgs(domain.TaskStatusCompleted, sqlmock.AnyArg(), sqlmock.AnyArg(), "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, q.Ack(context.Background(), "task-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_Ack_NotFound(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec(`UPDATE tasks`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.Ack(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueue_Nack_Reschedules(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectQuery(`SELECT .* FROM tasks WHERE id = \$1`).
		WithArgs("task-1").
		WillReturnRows(taskRow("task-1", 1, 3))
	mock.ExpectExec(`UPDATE tasks\s+SET status = \$1, error = \$2, updated_at = \$3, scheduled_for = \$4`).
		WithArgs(domain.TaskStatusPending, "timeout", sqlmock.AnyArg(), sqlmock.AnyArg(), "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, q.Nack(context.Background(), "task-1", "timeout"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_Nack_FailsWhenExhausted(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectQuery(`SELECT .* FROM tasks WHERE id = \$1`).
		WithArgs("task-1").
		WillReturnRows(taskRow("task-1", 3, 3))
	mock.ExpectExec(`UPDATE tasks\s+SET status = \$1, error = \$2, updated_at = \$3\s+WHERE id = \$4`).
		WithArgs(domain.TaskStatusFailed, "gave up", sqlmock.AnyArg(), "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, q.Nack(context.Background(), "task-1", "gave up"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_GetTask_NotFound(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectQuery(`SELECT .* FROM tasks WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

	_, err := q.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueue_ListTasks_BuildsFilter(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectQuery(`SELECT .* FROM tasks WHERE status = \$1 AND type = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs(domain.TaskStatusPending, domain.TaskTypeAdvanceInstance, 10).
		WillReturnRows(taskRow("task-1", 0, 3))

	tasks, err := q.ListTasks(context.Background(), driven.TaskFilter{
		Status: domain.TaskStatusPending,
		Type:   domain.TaskTypeAdvanceInstance,
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_Stats(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM tasks GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("failed", 1))
	mock.ExpectQuery(`SELECT EXTRACT`).
		WithArgs(domain.TaskStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"age"}).AddRow(42))

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.PendingCount)
	assert.Equal(t, int64(1), stats.FailedCount)
	assert.Equal(t, int64(42), stats.OldestPendingAge)
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{9, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := retryBackoff(tt.attempts); got != tt.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
