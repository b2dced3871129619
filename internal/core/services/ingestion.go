package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
	"github.com/custodia-labs/sitechat/internal/core/ports/driving"
)

// Ensure IngestionService implements driving.IngestionService
var _ driving.IngestionService = (*IngestionService)(nil)

// ingestionStartedMessage is returned with every accepted trigger
const ingestionStartedMessage = "ingestion started"

// recoverableStatuses are non-terminal statuses an instance can be resumed from
var recoverableStatuses = []domain.InstanceStatus{
	domain.InstanceStatusQueued,
	domain.InstanceStatusRunning,
	domain.InstanceStatusWaiting,
}

// IngestionServiceConfig holds dependencies for the ingestion service
type IngestionServiceConfig struct {
	Sites       driven.SiteStore
	Instances   driven.InstanceStore
	TaskQueue   driven.TaskQueue
	DefaultMode domain.CrawlMode
	StaleAfter  time.Duration // Instances untouched this long are re-enqueued (default: 15m)
	Logger      *slog.Logger
}

// IngestionService starts ingestions and reports on their instances
type IngestionService struct {
	sites       driven.SiteStore
	instances   driven.InstanceStore
	taskQueue   driven.TaskQueue
	defaultMode domain.CrawlMode
	staleAfter  time.Duration
	logger      *slog.Logger
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(cfg IngestionServiceConfig) *IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.DefaultMode
	if !mode.IsValid() {
		mode = domain.CrawlModeFetch
	}
	staleAfter := cfg.StaleAfter
	if staleAfter == 0 {
		staleAfter = 15 * time.Minute
	}
	return &IngestionService{
		sites:       cfg.Sites,
		instances:   cfg.Instances,
		taskQueue:   cfg.TaskQueue,
		defaultMode: mode,
		staleAfter:  staleAfter,
		logger:      logger,
	}
}

// Trigger creates an ingestion instance for a new site and enqueues it
func (s *IngestionService) Trigger(ctx context.Context, req driving.TriggerRequest) (*driving.TriggerResponse, error) {
	siteURL, err := validateSiteURL(req.URL)
	if err != nil {
		return nil, err
	}

	mode := s.defaultMode
	if strings.TrimSpace(req.Type) != "" {
		mode, err = domain.ParseCrawlMode(req.Type)
		if err != nil {
			return nil, err
		}
	}

	if _, err := s.sites.GetByURL(ctx, siteURL); err == nil {
		return nil, fmt.Errorf("site %s: %w", siteURL, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup site: %w", err)
	}

	inst := domain.NewInstance(domain.IngestParams{
		URL:    siteURL,
		Strict: req.Strict,
		Mode:   mode,
	})
	if err := s.instances.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	// A queued instance that never reaches the queue is picked up by recovery.
	if err := s.taskQueue.Enqueue(ctx, domain.NewAdvanceInstanceTask(inst.ID)); err != nil {
		s.logger.Warn("failed to enqueue instance, leaving it to recovery",
			"instance_id", inst.ID,
			"error", err,
		)
	}

	s.logger.Info("ingestion triggered",
		"instance_id", inst.ID,
		"url", siteURL,
		"mode", mode,
		"strict", req.Strict,
	)

	return &driving.TriggerResponse{
		Message:    ingestionStartedMessage,
		InstanceID: inst.ID,
		Status:     inst.Status,
	}, nil
}

// Status returns the state of an instance
func (s *IngestionService) Status(ctx context.Context, instanceID string) (*driving.InstanceStatusResponse, error) {
	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return &driving.InstanceStatusResponse{
		ID:     inst.ID,
		Status: domain.ParseInstanceStatus(string(inst.Status)),
		Error:  inst.Error,
		Output: inst.Output,
	}, nil
}

// RecoverStale re-enqueues instances whose worker has gone quiet.
// Returns the number of instances enqueued.
func (s *IngestionService) RecoverStale(ctx context.Context) (int, error) {
	stale, err := s.instances.ListStale(ctx, recoverableStatuses, time.Now().Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("list stale instances: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tasks := make([]*domain.Task, len(stale))
	for i, inst := range stale {
		tasks[i] = domain.NewAdvanceInstanceTask(inst.ID)
	}
	if err := s.taskQueue.EnqueueBatch(ctx, tasks); err != nil {
		return 0, fmt.Errorf("enqueue stale instances: %w", err)
	}

	s.logger.Info("recovered stale instances", "count", len(stale))
	return len(stale), nil
}

// validateSiteURL accepts absolute http(s) URLs only
func validateSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: url must be an absolute http(s) URL", domain.ErrInvalidInput)
	}
	return raw, nil
}
