package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

func setupQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	q, err := NewQueue(context.Background(), client, Config{ConsumerName: "test-worker"})
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	return q, mr
}

func TestNewQueue_RequiresClient(t *testing.T) {
	if _, err := NewQueue(context.Background(), nil, Config{}); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestNewQueue_GroupAlreadyExists(t *testing.T) {
	q, _ := setupQueue(t)

	// A second worker on the same keyspace reuses the group
	if _, err := NewQueue(context.Background(), q.client, Config{ConsumerName: "other"}); err != nil {
		t.Errorf("expected existing group to be tolerated, got %v", err)
	}
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	task := domain.NewAdvanceInstanceTask("inst-1")
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got, err := q.DequeueWithTimeout(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a task")
	}
	if got.ID != task.ID || got.InstanceID() != "inst-1" {
		t.Errorf("unexpected task %+v", got)
	}
	if got.Status != domain.TaskStatusProcessing || got.Attempts != 1 {
		t.Errorf("expected processing with 1 attempt, got %s/%d", got.Status, got.Attempts)
	}

	stored, _ := q.GetTask(ctx, task.ID)
	if stored.Status != domain.TaskStatusProcessing {
		t.Errorf("expected stored status processing, got %s", stored.Status)
	}
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := setupQueue(t)

	got, err := q.DequeueWithTimeout(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no task, got %+v", got)
	}
}

func TestQueue_DelayedTaskNotDeliveredEarly(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	task := domain.NewRecoverInstancesTask()
	task.ScheduledFor = time.Now().Add(time.Hour)
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	members, _ := mr.ZMembers(DefaultPrefix + "scheduled")
	if len(members) != 1 || members[0] != task.ID {
		t.Fatalf("expected task in delayed set, got %v", members)
	}

	got, _ := q.DequeueWithTimeout(ctx, 0)
	if got != nil {
		t.Errorf("expected delayed task to wait, got %+v", got)
	}
}

func TestQueue_PromotesDueTasks(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	task := domain.NewRecoverInstancesTask()
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	// Move it to the delayed set with a due time in the past
	first, _ := q.DequeueWithTimeout(ctx, 0)
	if first == nil {
		t.Fatal("expected first delivery")
	}
	if err := q.Nack(ctx, task.ID, "transient"); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}
	mr.ZAdd(DefaultPrefix+"scheduled", float64(time.Now().Add(-time.Second).Unix()), task.ID)

	got, err := q.DequeueWithTimeout(ctx, 0)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got == nil || got.ID != task.ID {
		t.Fatalf("expected promoted task, got %+v", got)
	}
	if got.Attempts != 2 {
		t.Errorf("expected second attempt, got %d", got.Attempts)
	}
}

func TestQueue_Ack(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	task := domain.NewAdvanceInstanceTask("inst-1")
	q.Enqueue(ctx, task)
	q.DequeueWithTimeout(ctx, 1)

	if err := q.Ack(ctx, task.ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	stored, _ := q.GetTask(ctx, task.ID)
	if stored.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", stored.Status)
	}
	if mr.Exists(DefaultPrefix + "task:" + task.ID + ":msg") {
		t.Error("expected delivery marker removed")
	}
}

func TestQueue_Ack_Unknown(t *testing.T) {
	q, _ := setupQueue(t)

	err := q.Ack(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueue_Nack_Retries(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	task := domain.NewAdvanceInstanceTask("inst-1")
	q.Enqueue(ctx, task)
	q.DequeueWithTimeout(ctx, 1)

	if err := q.Nack(ctx, task.ID, "embedding timeout"); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	stored, _ := q.GetTask(ctx, task.ID)
	if stored.Status != domain.TaskStatusPending {
		t.Errorf("expected pending, got %s", stored.Status)
	}
	if stored.Error != "embedding timeout" {
		t.Errorf("expected error recorded, got %q", stored.Error)
	}
	if !stored.ScheduledFor.After(time.Now()) {
		t.Error("expected retry scheduled in the future")
	}
	members, _ := mr.ZMembers(DefaultPrefix + "scheduled")
	if len(members) != 1 {
		t.Errorf("expected task in delayed set, got %v", members)
	}
}

func TestQueue_Nack_ExhaustedFails(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	task := domain.NewAdvanceInstanceTask("inst-1")
	task.MaxAttempts = 1
	q.Enqueue(ctx, task)
	q.DequeueWithTimeout(ctx, 1)

	if err := q.Nack(ctx, task.ID, "gave up"); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	stored, _ := q.GetTask(ctx, task.ID)
	if stored.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", stored.Status)
	}
	if mr.Exists(DefaultPrefix + "scheduled") {
		t.Error("exhausted task must not be rescheduled")
	}
}

func TestQueue_EnqueueBatch(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	tasks := []*domain.Task{
		domain.NewAdvanceInstanceTask("inst-1"),
		nil,
		domain.NewAdvanceInstanceTask("inst-2"),
	}
	if err := q.EnqueueBatch(ctx, tasks); err != nil {
		t.Fatalf("EnqueueBatch failed: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		got, err := q.DequeueWithTimeout(ctx, 1)
		if err != nil || got == nil {
			t.Fatalf("expected delivery %d, got %v / %v", i, got, err)
		}
		seen[got.InstanceID()] = true
	}
	if !seen["inst-1"] || !seen["inst-2"] {
		t.Errorf("expected both instances, got %v", seen)
	}
}

func TestQueue_ListTasks(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, domain.NewAdvanceInstanceTask("inst-1"))
	q.Enqueue(ctx, domain.NewAdvanceInstanceTask("inst-2"))
	q.Enqueue(ctx, domain.NewRecoverInstancesTask())

	advance, err := q.ListTasks(ctx, driven.TaskFilter{Type: domain.TaskTypeAdvanceInstance})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(advance) != 2 {
		t.Errorf("expected 2 advance tasks, got %d", len(advance))
	}

	limited, _ := q.ListTasks(ctx, driven.TaskFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}

	offset, _ := q.ListTasks(ctx, driven.TaskFilter{Offset: 5})
	if len(offset) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(offset))
	}
}

func TestQueue_CancelTask(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	delayed := domain.NewRecoverInstancesTask()
	delayed.ScheduledFor = time.Now().Add(time.Hour)
	q.Enqueue(ctx, delayed)

	if err := q.CancelTask(ctx, delayed.ID); err != nil {
		t.Fatalf("CancelTask failed: %v", err)
	}
	stored, _ := q.GetTask(ctx, delayed.ID)
	if stored.Status != domain.TaskStatusFailed || stored.Error != "cancelled" {
		t.Errorf("expected cancelled, got %s/%q", stored.Status, stored.Error)
	}

	running := domain.NewAdvanceInstanceTask("inst-1")
	q.Enqueue(ctx, running)
	q.DequeueWithTimeout(ctx, 1)
	if err := q.CancelTask(ctx, running.ID); err == nil {
		t.Error("expected processing task to refuse cancellation")
	}
}

func TestQueue_PurgeTasks(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	task := domain.NewAdvanceInstanceTask("inst-1")
	q.Enqueue(ctx, task)
	q.DequeueWithTimeout(ctx, 1)
	q.Ack(ctx, task.ID)

	q.Enqueue(ctx, domain.NewAdvanceInstanceTask("inst-2"))

	purged, err := q.PurgeTasks(ctx, -60)
	if err != nil {
		t.Fatalf("PurgeTasks failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}
	if _, err := q.GetTask(ctx, task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected purged task gone, got %v", err)
	}
}

func TestQueue_Stats(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	done := domain.NewAdvanceInstanceTask("inst-1")
	q.Enqueue(ctx, done)
	q.DequeueWithTimeout(ctx, 1)
	q.Ack(ctx, done.ID)

	q.Enqueue(ctx, domain.NewAdvanceInstanceTask("inst-2"))
	q.Enqueue(ctx, domain.NewAdvanceInstanceTask("inst-3"))

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.PendingCount != 2 {
		t.Errorf("expected 2 pending, got %d", stats.PendingCount)
	}
	if stats.CompletedCount != 1 {
		t.Errorf("expected 1 completed, got %d", stats.CompletedCount)
	}
}

func TestQueue_Ping(t *testing.T) {
	q, mr := setupQueue(t)

	if err := q.Ping(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	mr.Close()
	if err := q.Ping(context.Background()); err == nil {
		t.Error("expected error after server shutdown")
	}
}
