package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
	"github.com/custodia-labs/sitechat/internal/runtime"
)

// metadataInstanceID tags pages with the instance that created them
const metadataInstanceID = "instance_id"

// InstanceLockName is the distributed lock held while an instance advances
func InstanceLockName(instanceID string) string {
	return "ingestion:" + instanceID
}

// Executor advances ingestion instances through their steps.
// The ingestion flow is:
//  1. lookup-or-create-site
//  2. crawl
//  3. persist-pages
//  4. embed-and-persist-chunks (one nested checkpoint per page)
//
// Every step result is checkpointed before the step pointer moves, so a
// resumed instance never re-runs a checkpointed step.
type Executor struct {
	instances driven.InstanceStore
	sites     driven.SiteStore
	pages     driven.PageStore
	chunks    driven.ChunkStore
	crawler   *Crawler
	chunker   driven.PostProcessorPipeline
	services  *runtime.Services
	lock      driven.DistributedLock
	pipeline  domain.PipelineConfig
	lockTTL   time.Duration
	logger    *slog.Logger
}

// ExecutorConfig holds dependencies for Executor.
type ExecutorConfig struct {
	Instances driven.InstanceStore
	Sites     driven.SiteStore
	Pages     driven.PageStore
	Chunks    driven.ChunkStore
	Crawler   *Crawler
	Chunker   driven.PostProcessorPipeline
	Services  *runtime.Services
	Lock      driven.DistributedLock // Optional: per-instance lock for multi-worker deployments
	Pipeline  domain.PipelineConfig
	LockTTL   time.Duration // TTL of the instance lock, extended after each step (default: 30m)
	Logger    *slog.Logger
}

// NewExecutor creates a new step executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 30 * time.Minute
	}

	return &Executor{
		instances: cfg.Instances,
		sites:     cfg.Sites,
		pages:     cfg.Pages,
		chunks:    cfg.Chunks,
		crawler:   cfg.Crawler,
		chunker:   cfg.Chunker,
		services:  cfg.Services,
		lock:      cfg.Lock,
		pipeline:  cfg.Pipeline,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// Advance runs an instance from its current step to completion.
// Returns domain.ErrInstanceBusy if another worker holds the instance.
// A step error leaves the instance at that step with all earlier
// checkpoints intact; the caller decides whether to retry or fail it.
func (e *Executor) Advance(ctx context.Context, instanceID string) error {
	lockName := InstanceLockName(instanceID)
	if e.lock != nil {
		acquired, err := e.lock.Acquire(ctx, lockName, e.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire instance lock: %w", err)
		}
		if !acquired {
			return fmt.Errorf("advance %s: %w", instanceID, domain.ErrInstanceBusy)
		}
		defer func() {
			if err := e.lock.Release(context.WithoutCancel(ctx), lockName); err != nil {
				e.logger.Warn("failed to release instance lock", "instance_id", instanceID, "error", err)
			}
		}()
	}

	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: instance %s: %w", domain.ErrPermanent, instanceID, err)
		}
		return fmt.Errorf("load instance: %w", err)
	}

	if inst.Status.IsTerminal() {
		e.logger.Info("instance already finished", "instance_id", inst.ID, "status", inst.Status)
		return nil
	}
	if !inst.Step.IsValid() {
		return fmt.Errorf("%w: instance %s has unknown step %q", domain.ErrPermanent, inst.ID, inst.Step)
	}

	inst.MarkRunning()
	if err := e.instances.Update(ctx, inst); err != nil {
		return fmt.Errorf("mark instance running: %w", err)
	}

	logger := e.logger.With("instance_id", inst.ID, "url", inst.Params.URL)
	logger.Info("advancing instance", "step", inst.Step, "attempt", inst.Attempts)

	for inst.Step != domain.StepDone {
		step := inst.Step
		start := time.Now()
		logger.Info("step starting", "step", step)

		if err := e.runStep(ctx, inst, step); err != nil {
			logger.Error("step failed", "step", step, "duration", time.Since(start), "error", err)
			return fmt.Errorf("step %s: %w", step, err)
		}

		logger.Info("step finished", "step", step, "duration", time.Since(start))

		inst.AdvanceTo(step.Next())
		if err := e.instances.Update(ctx, inst); err != nil {
			return fmt.Errorf("advance step pointer: %w", err)
		}
		e.extendLock(ctx, lockName)
	}

	output, err := e.collectOutput(ctx, inst.ID)
	if err != nil {
		return fmt.Errorf("collect output: %w", err)
	}
	inst.MarkComplete(output)
	if err := e.instances.Update(ctx, inst); err != nil {
		return fmt.Errorf("mark instance complete: %w", err)
	}

	logger.Info("instance complete",
		"site_id", output.SiteID,
		"pages_crawled", output.PagesCrawled,
		"pages_created", output.PagesCreated,
		"pages_embedded", output.PagesEmbedded,
		"pages_skipped", output.PagesSkipped,
		"chunks_created", output.ChunksCreated,
	)
	return nil
}

// MarkRetrying records a transient failure. The instance stays resumable.
func (e *Executor) MarkRetrying(ctx context.Context, instanceID string, cause error) error {
	return e.updateStatus(ctx, instanceID, func(inst *domain.Instance) {
		inst.MarkWaiting(cause.Error())
	})
}

// Fail moves the instance to the errored terminal state.
func (e *Executor) Fail(ctx context.Context, instanceID string, cause error) error {
	return e.updateStatus(ctx, instanceID, func(inst *domain.Instance) {
		inst.MarkErrored(cause.Error())
	})
}

func (e *Executor) updateStatus(ctx context.Context, instanceID string, apply func(*domain.Instance)) error {
	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.IsTerminal() {
		return nil
	}
	apply(inst)
	return e.instances.Update(ctx, inst)
}

func (e *Executor) extendLock(ctx context.Context, lockName string) {
	if e.lock == nil {
		return
	}
	if err := e.lock.Extend(ctx, lockName, e.lockTTL); err != nil {
		e.logger.Warn("failed to extend instance lock", "lock", lockName, "error", err)
	}
}

func (e *Executor) runStep(ctx context.Context, inst *domain.Instance, step domain.Step) error {
	var err error
	switch step {
	case domain.StepLookupOrCreateSite:
		_, err = checkpointed(ctx, e.instances, inst.ID, string(step), func(ctx context.Context) (domain.SiteStepOutput, error) {
			return e.lookupOrCreateSite(ctx, inst)
		})
	case domain.StepCrawl:
		_, err = checkpointed(ctx, e.instances, inst.ID, string(step), func(ctx context.Context) (domain.CrawlStepOutput, error) {
			return e.crawl(ctx, inst)
		})
	case domain.StepPersistPages:
		_, err = checkpointed(ctx, e.instances, inst.ID, string(step), func(ctx context.Context) (domain.PersistPagesOutput, error) {
			return e.persistPages(ctx, inst)
		})
	case domain.StepEmbedAndPersistChunks:
		_, err = checkpointed(ctx, e.instances, inst.ID, string(step), func(ctx context.Context) (domain.EmbedStepOutput, error) {
			return e.embedAndPersistChunks(ctx, inst)
		})
	default:
		err = fmt.Errorf("%w: no handler for step %q", domain.ErrPermanent, step)
	}
	return err
}

func (e *Executor) lookupOrCreateSite(ctx context.Context, inst *domain.Instance) (domain.SiteStepOutput, error) {
	site, err := e.sites.GetByURL(ctx, inst.Params.URL)
	if err == nil {
		return domain.SiteStepOutput{SiteID: site.ID}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.SiteStepOutput{}, fmt.Errorf("lookup site: %w", err)
	}

	site = domain.NewSite(inst.Params.URL)
	if err := e.sites.Create(ctx, site); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return domain.SiteStepOutput{}, fmt.Errorf("create site: %w", err)
		}
		// Inserted concurrently; the existing row wins
		existing, err := e.sites.GetByURL(ctx, inst.Params.URL)
		if err != nil {
			return domain.SiteStepOutput{}, fmt.Errorf("lookup site: %w", err)
		}
		return domain.SiteStepOutput{SiteID: existing.ID}, nil
	}
	return domain.SiteStepOutput{SiteID: site.ID, Created: true}, nil
}

func (e *Executor) crawl(ctx context.Context, inst *domain.Instance) (domain.CrawlStepOutput, error) {
	cfg := e.pipeline.Crawl
	results, err := e.crawler.Crawl(ctx, domain.CrawlOptions{
		BaseURL:        inst.Params.URL,
		Mode:           inst.Params.Mode,
		Strict:         inst.Params.Strict,
		MaxDepth:       cfg.MaxDepth,
		MaxConcurrency: cfg.MaxConcurrency,
		MaxPages:       cfg.MaxPages,
	})
	if err != nil {
		return domain.CrawlStepOutput{}, err
	}
	return domain.CrawlStepOutput{Results: results}, nil
}

// persistPages inserts one page per crawl result, skipping URLs the site
// already has. Pages created by an earlier attempt of the same instance are
// reported again so a retried step still embeds them.
func (e *Executor) persistPages(ctx context.Context, inst *domain.Instance) (domain.PersistPagesOutput, error) {
	site, err := loadCheckpoint[domain.SiteStepOutput](ctx, e.instances, inst.ID, string(domain.StepLookupOrCreateSite))
	if err != nil {
		return domain.PersistPagesOutput{}, err
	}
	crawled, err := loadCheckpoint[domain.CrawlStepOutput](ctx, e.instances, inst.ID, string(domain.StepCrawl))
	if err != nil {
		return domain.PersistPagesOutput{}, err
	}

	texts := make(map[string]string, len(crawled.Results))
	pages := make([]*domain.Page, 0, len(crawled.Results))
	for _, result := range crawled.Results {
		if _, dup := texts[result.URL]; dup {
			continue
		}
		texts[result.URL] = result.Text
		page := domain.NewPage(site.SiteID, result.URL, result.Title)
		page.Metadata = map[string]string{metadataInstanceID: inst.ID}
		pages = append(pages, page)
	}

	inserted, err := e.pages.CreateBatch(ctx, pages)
	if err != nil {
		return domain.PersistPagesOutput{}, fmt.Errorf("create pages: %w", err)
	}

	created := make(map[string]*domain.Page, len(inserted))
	for _, page := range inserted {
		created[page.URL] = page
	}
	if len(inserted) < len(pages) {
		existing, err := e.pages.ListBySite(ctx, site.SiteID)
		if err != nil {
			return domain.PersistPagesOutput{}, fmt.Errorf("list pages: %w", err)
		}
		for _, page := range existing {
			if _, ok := texts[page.URL]; ok && page.Metadata[metadataInstanceID] == inst.ID {
				created[page.URL] = page
			}
		}
	}

	out := domain.PersistPagesOutput{Pages: make([]domain.PersistedPage, 0, len(created))}
	for _, page := range pages {
		stored, ok := created[page.URL]
		if !ok {
			out.Skipped++
			continue
		}
		out.Pages = append(out.Pages, domain.PersistedPage{
			PageID: stored.ID,
			URL:    stored.URL,
			Title:  stored.Title,
			Text:   texts[stored.URL],
		})
	}

	total, err := e.sites.UpdateTotalPages(ctx, site.SiteID)
	if err != nil {
		return domain.PersistPagesOutput{}, fmt.Errorf("update total pages: %w", err)
	}

	e.logger.Info("pages persisted",
		"instance_id", inst.ID,
		"site_id", site.SiteID,
		"created", len(out.Pages),
		"skipped", out.Skipped,
		"total_pages", total,
	)
	return out, nil
}

// embedAndPersistChunks embeds every new page on a bounded worker pool.
// Each page is its own checkpoint, so a retry only redoes unfinished pages.
func (e *Executor) embedAndPersistChunks(ctx context.Context, inst *domain.Instance) (domain.EmbedStepOutput, error) {
	// Wait at this step rather than chunk pages nothing can embed
	if !e.services.Capabilities().Ingest {
		return domain.EmbedStepOutput{}, fmt.Errorf("embed chunks: %w", domain.ErrServiceUnavailable)
	}
	persisted, err := loadCheckpoint[domain.PersistPagesOutput](ctx, e.instances, inst.ID, string(domain.StepPersistPages))
	if err != nil {
		return domain.EmbedStepOutput{}, err
	}

	outcomes := make([]domain.PageEmbedOutput, len(persisted.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.pipeline.Embedding.Concurrency, 1))
	for i, page := range persisted.Pages {
		g.Go(func() error {
			out, err := checkpointed(gctx, e.instances, inst.ID, domain.PageCheckpointName(page.PageID), func(ctx context.Context) (domain.PageEmbedOutput, error) {
				return e.embedPage(ctx, inst.ID, page)
			})
			if err != nil {
				return fmt.Errorf("page %s: %w", page.PageID, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.EmbedStepOutput{}, err
	}

	var out domain.EmbedStepOutput
	for _, o := range outcomes {
		switch o.Outcome {
		case domain.PageEmbedded:
			out.PagesEmbedded++
			out.ChunksCreated += o.Chunks
		case domain.PageSkipped:
			out.PagesSkipped++
		}
	}
	return out, nil
}

// embedPage chunks one page, embeds all chunks in one call and replaces the
// page's chunk rows. A vector count that differs from the chunk count skips
// the page instead of misaligning indices.
func (e *Executor) embedPage(ctx context.Context, instanceID string, page domain.PersistedPage) (domain.PageEmbedOutput, error) {
	pieces := e.chunker.Process(page.Text)
	if len(pieces) == 0 {
		return domain.PageEmbedOutput{PageID: page.PageID, Outcome: domain.PageEmbedded}, nil
	}

	embedder, err := e.services.Embedder()
	if err != nil {
		return domain.PageEmbedOutput{}, err
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Content
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return domain.PageEmbedOutput{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		mismatch := fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrEmbeddingMismatch, len(vectors), len(texts))
		e.logger.Error("skipping page embedding",
			"instance_id", instanceID,
			"page_id", page.PageID,
			"url", page.URL,
			"error", mismatch,
		)
		return domain.PageEmbedOutput{
			PageID:  page.PageID,
			Outcome: domain.PageSkipped,
			Reason:  mismatch.Error(),
		}, nil
	}

	now := time.Now()
	chunks := make([]*domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &domain.Chunk{
			ID:        domain.GenerateID(),
			PageID:    page.PageID,
			Index:     i,
			Content:   text,
			Embedding: vectors[i],
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	if err := e.chunks.ReplaceForPage(ctx, page.PageID, chunks); err != nil {
		return domain.PageEmbedOutput{}, fmt.Errorf("store chunks: %w", err)
	}

	return domain.PageEmbedOutput{
		PageID:  page.PageID,
		Outcome: domain.PageEmbedded,
		Chunks:  len(chunks),
	}, nil
}

func (e *Executor) collectOutput(ctx context.Context, instanceID string) (*domain.InstanceOutput, error) {
	site, err := loadCheckpoint[domain.SiteStepOutput](ctx, e.instances, instanceID, string(domain.StepLookupOrCreateSite))
	if err != nil {
		return nil, err
	}
	crawled, err := loadCheckpoint[domain.CrawlStepOutput](ctx, e.instances, instanceID, string(domain.StepCrawl))
	if err != nil {
		return nil, err
	}
	persisted, err := loadCheckpoint[domain.PersistPagesOutput](ctx, e.instances, instanceID, string(domain.StepPersistPages))
	if err != nil {
		return nil, err
	}
	embedded, err := loadCheckpoint[domain.EmbedStepOutput](ctx, e.instances, instanceID, string(domain.StepEmbedAndPersistChunks))
	if err != nil {
		return nil, err
	}
	return &domain.InstanceOutput{
		SiteID:        site.SiteID,
		PagesCrawled:  len(crawled.Results),
		PagesCreated:  len(persisted.Pages),
		PagesEmbedded: embedded.PagesEmbedded,
		PagesSkipped:  embedded.PagesSkipped,
		ChunksCreated: embedded.ChunksCreated,
	}, nil
}

// checkpointed returns the stored result of a named step, or runs fn and
// stores its result. fn runs at most once per successful checkpoint.
func checkpointed[T any](ctx context.Context, store driven.InstanceStore, instanceID, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	cp, err := store.GetCheckpoint(ctx, instanceID, name)
	if err == nil {
		var out T
		if err := json.Unmarshal(cp.Output, &out); err != nil {
			return zero, fmt.Errorf("%w: decode checkpoint %s: %v", domain.ErrPermanent, name, err)
		}
		return out, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return zero, fmt.Errorf("load checkpoint %s: %w", name, err)
	}

	out, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return zero, fmt.Errorf("%w: encode checkpoint %s: %v", domain.ErrPermanent, name, err)
	}
	if err := store.SaveCheckpoint(ctx, &domain.Checkpoint{
		InstanceID: instanceID,
		Name:       name,
		Output:     raw,
		CreatedAt:  time.Now(),
	}); err != nil {
		return zero, fmt.Errorf("save checkpoint %s: %w", name, err)
	}
	return out, nil
}

// loadCheckpoint reads the result of an earlier step. A missing checkpoint
// means the step pointer and checkpoints disagree, which retrying cannot fix.
func loadCheckpoint[T any](ctx context.Context, store driven.InstanceStore, instanceID, name string) (T, error) {
	var out T
	cp, err := store.GetCheckpoint(ctx, instanceID, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return out, fmt.Errorf("%w: missing checkpoint %s", domain.ErrPermanent, name)
		}
		return out, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	if err := json.Unmarshal(cp.Output, &out); err != nil {
		return out, fmt.Errorf("%w: decode checkpoint %s: %v", domain.ErrPermanent, name, err)
	}
	return out, nil
}
