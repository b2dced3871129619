package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
	"github.com/custodia-labs/sitechat/internal/core/services"
)

// InstanceAdvancer drives ingestion instances through their steps.
// Implemented by *services.Executor.
type InstanceAdvancer interface {
	Advance(ctx context.Context, instanceID string) error
	MarkRetrying(ctx context.Context, instanceID string, cause error) error
	Fail(ctx context.Context, instanceID string, cause error) error
}

// InstanceRecoverer re-enqueues abandoned instances.
// Implemented by *services.IngestionService.
type InstanceRecoverer interface {
	RecoverStale(ctx context.Context) (int, error)
}

var (
	_ InstanceAdvancer  = (*services.Executor)(nil)
	_ InstanceRecoverer = (*services.IngestionService)(nil)
)

// Worker processes tasks from the task queue.
// It advances ingestion instances and runs stale-instance recovery.
type Worker struct {
	taskQueue driven.TaskQueue
	executor  InstanceAdvancer
	recoverer InstanceRecoverer
	scheduler *services.Scheduler
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Executor       InstanceAdvancer
	Recoverer      InstanceRecoverer
	Scheduler      *services.Scheduler
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		executor:       cfg.Executor,
		recoverer:      cfg.Recoverer,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	// Start the scheduler if provided
	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	// Start worker goroutines
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	// Stop the scheduler
	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	// Wait for workers to finish
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		// Dequeue a task with timeout
		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if task == nil {
			// No task available, continue
			continue
		}

		// Process the task
		w.processTask(ctx, task, logger)
	}
}

// processTask processes a single task.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)
	logger.Info("processing task")

	startTime := time.Now()

	switch task.Type {
	case domain.TaskTypeAdvanceInstance:
		w.handleAdvanceInstance(ctx, task, logger)
	case domain.TaskTypeRecoverInstances:
		w.settle(ctx, task, w.handleRecoverInstances(ctx), logger)
	default:
		w.settle(ctx, task, fmt.Errorf("unknown task type: %s", task.Type), logger)
	}

	logger.Info("task finished", "duration", time.Since(startTime))
}

// handleAdvanceInstance runs an instance and applies the failure policy:
// a busy instance is retried later untouched, a permanent or exhausted
// failure errors the instance, anything else leaves it waiting for the
// queue's retry.
func (w *Worker) handleAdvanceInstance(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	instanceID := task.InstanceID()
	if instanceID == "" {
		logger.Error("dropping task without instance_id")
		w.ack(ctx, task, logger)
		return
	}
	logger = logger.With("instance_id", instanceID)

	err := w.executor.Advance(ctx, instanceID)
	switch {
	case err == nil:
		w.ack(ctx, task, logger)

	case errors.Is(err, domain.ErrInstanceBusy):
		logger.Info("instance busy, retrying later")
		w.nack(ctx, task, err, logger)

	case errors.Is(err, domain.ErrPermanent) || !task.CanRetry():
		logger.Error("instance failed", "error", err)
		if failErr := w.executor.Fail(context.WithoutCancel(ctx), instanceID, err); failErr != nil {
			logger.Error("failed to mark instance errored", "fail_error", failErr)
		}
		w.ack(ctx, task, logger)

	default:
		logger.Warn("instance step failed, will retry", "error", err)
		if markErr := w.executor.MarkRetrying(context.WithoutCancel(ctx), instanceID, err); markErr != nil {
			logger.Error("failed to mark instance waiting", "mark_error", markErr)
		}
		w.nack(ctx, task, err, logger)
	}
}

// handleRecoverInstances handles a recover_instances task.
func (w *Worker) handleRecoverInstances(ctx context.Context) error {
	if w.recoverer == nil {
		return fmt.Errorf("no instance recoverer configured")
	}
	count, err := w.recoverer.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		w.logger.Info("re-enqueued stale instances", "count", count)
	}
	return nil
}

func (w *Worker) settle(ctx context.Context, task *domain.Task, err error, logger *slog.Logger) {
	if err != nil {
		logger.Error("task failed", "error", err)
		w.nack(ctx, task, err, logger)
		return
	}
	w.ack(ctx, task, logger)
}

func (w *Worker) ack(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	if err := w.taskQueue.Ack(context.WithoutCancel(ctx), task.ID); err != nil {
		logger.Error("failed to ack task", "ack_error", err)
	}
}

func (w *Worker) nack(ctx context.Context, task *domain.Task, cause error, logger *slog.Logger) {
	if err := w.taskQueue.Nack(context.WithoutCancel(ctx), task.ID, cause.Error()); err != nil {
		logger.Error("failed to nack task", "nack_error", err)
	}
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	// Check queue health
	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
