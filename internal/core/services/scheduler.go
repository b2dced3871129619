package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Scheduler manages periodic task scheduling.
// It runs on worker nodes and enqueues tasks based on schedules; the
// instance-recovery schedule resumes ingestions whose worker went away.
//
// For multi-worker deployments, configure a DistributedLock to prevent
// duplicate task enqueuing across instances.
type Scheduler struct {
	store     driven.SchedulerStore
	taskQueue driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	// Lock configuration
	lockTTL      time.Duration
	lockRequired bool
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Store        driven.SchedulerStore
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	PollInterval time.Duration // How often to check for due tasks (default: 30s)
	LockTTL      time.Duration // TTL for the distributed lock (default: 60s)
	LockRequired bool          // If true, skip scheduling when lock cannot be acquired (default: true)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 60 * time.Second // Default: 2x poll interval
	}

	// Default to requiring lock if one is provided
	lockRequired := cfg.LockRequired
	if cfg.Lock != nil && !cfg.LockRequired {
		// If lock is provided but LockRequired not explicitly set,
		// we still default to true for safety
		lockRequired = true
	}

	return &Scheduler{
		store:        cfg.Store,
		taskQueue:    cfg.TaskQueue,
		lock:         cfg.Lock,
		logger:       logger,
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: lockRequired,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "poll_interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for the scheduler to finish
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.checkAndEnqueue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndEnqueue(ctx)
		}
	}
}

// checkAndEnqueue checks for due scheduled tasks and enqueues them.
// If a distributed lock is configured, it acquires the lock before polling
// to prevent duplicate task enqueuing across multiple scheduler instances.
func (s *Scheduler) checkAndEnqueue(ctx context.Context) {
	// Attempt to acquire distributed lock if configured
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, "scheduler", s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			if s.lockRequired {
				return // Skip this cycle
			}
			// Fall through if lock not required (single-instance mode)
		} else if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return
		} else {
			// Lock acquired, release when done
			defer func() {
				if err := s.lock.Release(ctx, "scheduler"); err != nil {
					s.logger.Warn("failed to release scheduler lock", "error", err)
				}
			}()
		}
	}

	tasks, err := s.store.GetDueScheduledTasks(ctx)
	if err != nil {
		s.logger.Error("failed to get due scheduled tasks", "error", err)
		return
	}

	for _, scheduled := range tasks {
		if !scheduled.Enabled || !scheduled.IsDue() {
			continue
		}

		// Create a task for the queue
		task := s.createTask(scheduled)

		// Enqueue the task
		if err := s.taskQueue.Enqueue(ctx, task); err != nil {
			s.logger.Error("failed to enqueue scheduled task",
				"scheduled_id", scheduled.ID,
				"error", err,
			)
			// Update last error
			_ = s.store.UpdateLastRun(ctx, scheduled.ID, err.Error())
			continue
		}

		s.logger.Info("enqueued scheduled task",
			"scheduled_id", scheduled.ID,
			"task_id", task.ID,
			"task_type", task.Type,
		)

		// Update the scheduled task's next run time
		if err := s.store.UpdateLastRun(ctx, scheduled.ID, ""); err != nil {
			s.logger.Warn("failed to update scheduled task last run",
				"scheduled_id", scheduled.ID,
				"error", err,
			)
		}
	}
}

// createTask creates a queue task from a scheduled task.
// Scheduled tasks carry no payload.
func (s *Scheduler) createTask(scheduled *domain.ScheduledTask) *domain.Task {
	return domain.NewTask(scheduled.Type, nil)
}

// EnsureDefaults stores the default schedules that do not exist yet.
func (s *Scheduler) EnsureDefaults(ctx context.Context) error {
	for _, scheduled := range domain.DefaultSchedulerConfig() {
		_, err := s.store.GetScheduledTask(ctx, scheduled.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := s.store.SaveScheduledTask(ctx, scheduled); err != nil {
			return err
		}
		s.logger.Info("created default scheduled task",
			"scheduled_id", scheduled.ID,
			"task_type", scheduled.Type,
			"interval", scheduled.Interval,
		)
	}
	return nil
}
