package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

const (
	// DefaultPrefix namespaces every key the queue writes
	DefaultPrefix = "sitechat:"

	// DefaultClaimTimeout is how long a delivered task may stay unacked
	// before another worker claims it
	DefaultClaimTimeout = 5 * time.Minute

	// DefaultTaskTTL bounds how long task records are kept
	DefaultTaskTTL = 24 * time.Hour

	msgSuffix = ":msg"
)

// Config holds configuration for the Redis queue
type Config struct {
	Prefix       string        // Key prefix (default: DefaultPrefix)
	ConsumerName string        // Unique per worker process (default: generated)
	ClaimTimeout time.Duration // Idle time before abandoned tasks are reclaimed
	TaskTTL      time.Duration // Expiry of task records
	Logger       *slog.Logger
}

// Queue implements TaskQueue using Redis Streams.
//
// Layout under the prefix:
//   - tasks          stream of ready task ids, read through a consumer group
//   - workers        the consumer group
//   - scheduled      sorted set of delayed task ids scored by due time
//   - task:<id>      JSON task record
//   - task:<id>:msg  stream message id of the current delivery
type Queue struct {
	client       *redis.Client
	consumerName string
	claimTimeout time.Duration
	taskTTL      time.Duration
	logger       *slog.Logger

	stream    string
	group     string
	scheduled string
	taskKey   string
}

// NewQueue creates a new Redis-backed task queue and its consumer group.
func NewQueue(ctx context.Context, client *redis.Client, cfg Config) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-" + domain.GenerateID()
	}
	claimTimeout := cfg.ClaimTimeout
	if claimTimeout == 0 {
		claimTimeout = DefaultClaimTimeout
	}
	taskTTL := cfg.TaskTTL
	if taskTTL == 0 {
		taskTTL = DefaultTaskTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		client:       client,
		consumerName: consumer,
		claimTimeout: claimTimeout,
		taskTTL:      taskTTL,
		logger:       logger.With("component", "redis_queue"),
		stream:       prefix + "tasks",
		group:        prefix + "workers",
		scheduled:    prefix + "scheduled",
		taskKey:      prefix + "task:",
	}

	err := client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return q, nil
}

func (q *Queue) recordKey(taskID string) string {
	return q.taskKey + taskID
}

func (q *Queue) msgKey(taskID string) string {
	return q.taskKey + taskID + msgSuffix
}

// stage writes the task record and routes it to the stream or the delayed set
func (q *Queue) stage(ctx context.Context, pipe redis.Pipeliner, task *domain.Task, now time.Time) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	pipe.Set(ctx, q.recordKey(task.ID), data, q.taskTTL)

	if task.ScheduledFor.After(now) {
		pipe.ZAdd(ctx, q.scheduled, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
		return nil
	}
	q.publish(ctx, pipe, task)
	return nil
}

func (q *Queue) publish(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) {
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"task_id": task.ID,
			"type":    string(task.Type),
		},
	})
}

func (q *Queue) save(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) {
	data, err := json.Marshal(task)
	if err != nil {
		q.logger.Error("failed to marshal task", "task_id", task.ID, "error", err)
		return
	}
	pipe.Set(ctx, q.recordKey(task.ID), data, q.taskTTL)
}

// Enqueue adds a task to the queue for processing.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}

	pipe := q.client.TxPipeline()
	if err := q.stage(ctx, pipe, task, time.Now()); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// EnqueueBatch adds multiple tasks in one MULTI/EXEC block.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	pipe := q.client.TxPipeline()
	now := time.Now()
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := q.stage(ctx, pipe, task, now); err != nil {
			return err
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue batch: %w", err)
	}
	return nil
}

// Dequeue retrieves the next available task, blocking until one arrives or
// the context is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.read(ctx, 0)
}

// DequeueWithTimeout retrieves the next available task, waiting up to timeout seconds.
// A non-positive timeout polls without blocking.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if timeout <= 0 {
		return q.read(ctx, -1)
	}
	return q.read(ctx, time.Duration(timeout)*time.Second)
}

// read delivers one task. block follows XREADGROUP: 0 waits forever,
// negative does not wait.
func (q *Queue) read(ctx context.Context, block time.Duration) (*domain.Task, error) {
	if err := q.promoteScheduledTasks(ctx); err != nil {
		q.logger.Warn("failed to promote scheduled tasks", "error", err)
	}

	task, err := q.claimAbandonedTask(ctx)
	if err != nil {
		q.logger.Debug("abandoned task claim skipped", "error", err)
	}
	if task != nil {
		return task, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumerName,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read from stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver marks the task behind a stream message as processing.
// Messages pointing at missing records are dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) || taskID == "" {
		q.logger.Warn("dropping stream message without task", "message_id", msg.ID, "task_id", taskID)
		q.client.XAck(ctx, q.stream, q.group, msg.ID)
		q.client.XDel(ctx, q.stream, msg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task data: %w", err)
	}

	task.MarkProcessing()

	pipe := q.client.TxPipeline()
	q.save(ctx, pipe, task)
	pipe.Set(ctx, q.msgKey(task.ID), msg.ID, q.taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mark task processing: %w", err)
	}
	return task, nil
}

// settle removes the current delivery of a task from the stream
func (q *Queue) settle(ctx context.Context, pipe redis.Pipeliner, taskID string) error {
	msgID, err := q.client.Get(ctx, q.msgKey(taskID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get message id: %w", err)
	}
	if msgID != "" {
		pipe.XAck(ctx, q.stream, q.group, msgID)
		pipe.XDel(ctx, q.stream, msgID)
	}
	pipe.Del(ctx, q.msgKey(taskID))
	return nil
}

// Ack acknowledges successful completion of a task.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	if err := q.settle(ctx, pipe, taskID); err != nil {
		return err
	}
	task.MarkCompleted()
	q.save(ctx, pipe, task)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	return nil
}

// Nack records a failure. The task returns to the delayed set with
// exponential backoff while it has attempts left and is failed otherwise.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	if err := q.settle(ctx, pipe, taskID); err != nil {
		return err
	}

	if task.CanRetry() {
		task.Retry(reason)
		pipe.ZAdd(ctx, q.scheduled, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	} else {
		task.MarkFailed(reason)
	}
	q.save(ctx, pipe, task)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns domain.ErrNotFound for unknown ids.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, q.recordKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// scanTasks walks every task record. Stops early when fn returns false.
// This is O(N) in the number of records.
func (q *Queue) scanTasks(ctx context.Context, fn func(key string, task *domain.Task) bool) error {
	var cursor uint64
	for {
		keys, next, err := q.client.Scan(ctx, cursor, q.taskKey+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan tasks: %w", err)
		}

		for _, key := range keys {
			if strings.HasSuffix(key, msgSuffix) {
				continue
			}
			data, err := q.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var task domain.Task
			if err := json.Unmarshal(data, &task); err != nil {
				continue
			}
			if !fn(key, &task) {
				return nil
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// ListTasks retrieves tasks matching the filter criteria.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	var tasks []*domain.Task
	skipped := 0

	err := q.scanTasks(ctx, func(_ string, task *domain.Task) bool {
		if filter.Status != "" && task.Status != filter.Status {
			return true
		}
		if filter.Type != "" && task.Type != filter.Type {
			return true
		}
		if skipped < filter.Offset {
			skipped++
			return true
		}
		tasks = append(tasks, task)
		return filter.Limit <= 0 || len(tasks) < filter.Limit
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// CancelTask marks a pending task as cancelled.
func (q *Queue) CancelTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	switch task.Status {
	case domain.TaskStatusProcessing:
		return errors.New("cannot cancel task that is processing")
	case domain.TaskStatusCompleted, domain.TaskStatusFailed:
		return errors.New("cannot cancel completed or failed task")
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.scheduled, taskID)
	task.MarkFailed("cancelled")
	q.save(ctx, pipe, task)

	_, err = pipe.Exec(ctx)
	return err
}

// PurgeTasks removes completed/failed tasks older than the specified age.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var keys []string

	err := q.scanTasks(ctx, func(key string, task *domain.Task) bool {
		finished := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if finished && task.UpdatedAt.Before(cutoff) {
			keys = append(keys, key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := q.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return int(deleted), nil
}

// Stats returns queue statistics.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}
	now := time.Now()
	var oldest time.Time

	err := q.scanTasks(ctx, func(_ string, task *domain.Task) bool {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
			if oldest.IsZero() || task.CreatedAt.Before(oldest) {
				oldest = task.CreatedAt
			}
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestPendingAge = int64(now.Sub(oldest).Seconds())
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the Redis client is shared.
func (q *Queue) Close() error {
	return nil
}

// promoteScheduledTasks moves due delayed tasks onto the stream.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.scheduled, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	pipe := q.client.TxPipeline()
	for _, taskID := range due {
		// ZRem first so concurrent promoters cannot publish the same id twice
		removed, err := q.client.ZRem(ctx, q.scheduled, taskID).Result()
		if err != nil || removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			continue
		}
		q.publish(ctx, pipe, task)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// claimAbandonedTask takes over a delivery that another consumer left unacked
// for longer than the claim timeout.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   q.claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumerName,
			MinIdle:  q.claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		task, err := q.deliver(ctx, claimed[0])
		if err != nil {
			return nil, err
		}
		if task != nil {
			q.logger.Info("claimed abandoned task", "task_id", task.ID, "previous_consumer", p.Consumer)
			return task, nil
		}
	}
	return nil, nil
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
