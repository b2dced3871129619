package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Ensure ExtractorFetcher implements PageFetcher
var _ driven.PageFetcher = (*ExtractorFetcher)(nil)

// ExtractorFetcher asks an extraction service to load and clean a page.
// The service takes url, strict and type query parameters and answers with
// {data: {title, cleanedText}, links: [...], total}.
type ExtractorFetcher struct {
	endpoint   string
	httpClient *http.Client
	limiter    *limiter
	logger     *slog.Logger
}

// NewExtractorFetcher creates a fetcher for cfg.ExtractorURL
func NewExtractorFetcher(cfg Config) (*ExtractorFetcher, error) {
	cfg.applyDefaults()
	if cfg.ExtractorURL == "" {
		return nil, fmt.Errorf("extractor URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.ExtractorURL); err != nil {
		return nil, fmt.Errorf("invalid extractor URL: %w", err)
	}

	return &ExtractorFetcher{
		endpoint:   cfg.ExtractorURL,
		httpClient: newHTTPClient(cfg.Timeout),
		limiter:    newLimiter(cfg.RateLimit),
		logger:     cfg.Logger,
	}, nil
}

// Fetch implements PageFetcher
func (f *ExtractorFetcher) Fetch(ctx context.Context, pageURL string, strict bool, mode domain.CrawlMode) (*domain.FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse extractor URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", pageURL)
	q.Set("strict", strconv.FormatBool(strict))
	q.Set("type", extractorType(mode))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: extractor returned %d: %s", pageURL, resp.StatusCode, string(body))
	}

	var result domain.FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode extractor response for %s: %w", pageURL, err)
	}

	f.logger.Debug("page extracted", "url", pageURL, "links", len(result.Links))
	return &result, nil
}

// extractorType maps a crawl mode to the service's type parameter
func extractorType(mode domain.CrawlMode) string {
	if mode == domain.CrawlModeRender {
		return "browser"
	}
	return string(domain.CrawlModeFetch)
}
