package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
	"github.com/custodia-labs/sitechat/internal/retry"
)

// CrawlerConfig holds the collaborators of a Crawler
type CrawlerConfig struct {
	Fetcher driven.PageFetcher
	Retrier *retry.Retrier // Optional: defaults to retry.DefaultConfig()
	Logger  *slog.Logger
}

// Crawler discovers and fetches the pages of a site breadth first.
// Frontier and visited set live for one Crawl call only.
type Crawler struct {
	fetcher driven.PageFetcher
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewCrawler creates a new Crawler
func NewCrawler(cfg CrawlerConfig) *Crawler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retrier := cfg.Retrier
	if retrier == nil {
		rc := retry.DefaultConfig()
		rc.Logger = logger
		retrier = retry.New(rc)
	}
	return &Crawler{
		fetcher: cfg.Fetcher,
		retrier: retrier,
		logger:  logger,
	}
}

// crawlRun is the state of a single crawl
type crawlRun struct {
	opts    domain.CrawlOptions
	base    *url.URL
	queue   []domain.FrontierEntry
	visited map[string]bool
	queued  map[string]bool

	mu         sync.Mutex
	results    []domain.CrawlResult
	discovered []domain.FrontierEntry
}

// Crawl fetches opts.BaseURL and the pages reachable from it.
//
// Pages are fetched in batches of at most MaxConcurrency entries; a batch
// finishes before the next one is formed. A page whose fetch still fails
// after retries is logged and left out of the results. Links found on a page
// at depth d are followed only while d < MaxDepth, and no more than MaxPages
// URLs are ever fetched. Results are in completion order.
func (c *Crawler) Crawl(ctx context.Context, opts domain.CrawlOptions) ([]domain.CrawlResult, error) {
	opts = withCrawlDefaults(opts)

	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", domain.ErrInvalidInput, opts.BaseURL)
	}
	// The seed takes the same normal form as discovered links
	seed, ok := resolveLink(base, opts.BaseURL)
	if !ok {
		return nil, fmt.Errorf("%w: invalid base url %q", domain.ErrInvalidInput, opts.BaseURL)
	}

	run := &crawlRun{
		opts:    opts,
		base:    base,
		queue:   []domain.FrontierEntry{{URL: seed, Depth: 0}},
		visited: make(map[string]bool),
		queued:  map[string]bool{seed: true},
	}

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrency))

	c.logger.Info("crawl starting",
		"base_url", opts.BaseURL,
		"mode", opts.Mode,
		"max_depth", opts.MaxDepth,
		"max_concurrency", opts.MaxConcurrency,
		"max_pages", opts.MaxPages,
	)

	for len(run.queue) > 0 {
		if len(run.visited) >= opts.MaxPages {
			break
		}

		n := min(opts.MaxConcurrency, len(run.queue))
		batch := run.queue[:n]
		run.queue = run.queue[n:]

		if err := c.processBatch(ctx, run, sem, batch); err != nil {
			return nil, err
		}
		run.enqueueDiscovered()
	}

	c.logger.Info("crawl finished",
		"base_url", opts.BaseURL,
		"visited", len(run.visited),
		"results", len(run.results),
	)

	return run.results, nil
}

// processBatch fetches the unvisited entries of batch concurrently.
// Only this goroutine touches the visited set.
func (c *Crawler) processBatch(ctx context.Context, run *crawlRun, sem *semaphore.Weighted, batch []domain.FrontierEntry) error {
	var wg sync.WaitGroup
	for _, entry := range batch {
		if run.visited[entry.URL] {
			continue
		}
		if len(run.visited) >= run.opts.MaxPages {
			break
		}
		run.visited[entry.URL] = true

		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return fmt.Errorf("crawl %s: %w", run.opts.BaseURL, err)
		}
		wg.Add(1)
		go func(entry domain.FrontierEntry) {
			defer wg.Done()
			defer sem.Release(1)
			c.fetchEntry(ctx, run, entry)
		}(entry)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Crawler) fetchEntry(ctx context.Context, run *crawlRun, entry domain.FrontierEntry) {
	result, err := retry.Do(ctx, c.retrier, "fetch "+entry.URL, func(ctx context.Context) (*domain.FetchResult, error) {
		return c.fetcher.Fetch(ctx, entry.URL, run.opts.Strict, run.opts.Mode)
	})
	if err != nil {
		c.logger.Warn("failed to fetch page",
			"url", entry.URL,
			"depth", entry.Depth,
			"error", err,
		)
		return
	}

	var links []domain.FrontierEntry
	if entry.Depth < run.opts.MaxDepth {
		for _, link := range result.Links {
			if abs, ok := resolveLink(run.base, link.URL); ok {
				links = append(links, domain.FrontierEntry{URL: abs, Depth: entry.Depth + 1})
			}
		}
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	run.results = append(run.results, domain.CrawlResult{
		URL:   entry.URL,
		Title: result.Data.Title,
		Text:  result.Data.CleanedText,
	})
	run.discovered = append(run.discovered, links...)
}

// enqueueDiscovered moves links found by the last batch onto the frontier.
// A URL is queued at most once, at the depth it was first found.
func (r *crawlRun) enqueueDiscovered() {
	r.mu.Lock()
	discovered := r.discovered
	r.discovered = nil
	r.mu.Unlock()

	for _, entry := range discovered {
		if r.visited[entry.URL] || r.queued[entry.URL] {
			continue
		}
		if entry.Depth > r.opts.MaxDepth {
			continue
		}
		r.queued[entry.URL] = true
		r.queue = append(r.queue, entry)
	}
}

// resolveLink makes href absolute against base and returns it in normal
// form: lower-case host, no fragment, and a bare root path so that
// "https://host" and "https://host/" name the same page.
// Only http and https links are followed.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Host = strings.ToLower(abs.Host)
	abs.Fragment = ""
	abs.RawFragment = ""
	if abs.Path == "/" {
		abs.Path = ""
		abs.RawPath = ""
	}
	return abs.String(), true
}

func withCrawlDefaults(opts domain.CrawlOptions) domain.CrawlOptions {
	defaults := domain.DefaultPipelineConfig().Crawl
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaults.MaxConcurrency
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaults.MaxPages
	}
	if !opts.Mode.IsValid() {
		opts.Mode = defaults.DefaultMode
	}
	return opts
}
