package driven

import (
	"context"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// PageFetcher loads one page and extracts its title, text and links
type PageFetcher interface {
	// Fetch retrieves url. A non-2xx upstream response is an error.
	Fetch(ctx context.Context, url string, strict bool, mode domain.CrawlMode) (*domain.FetchResult, error)
}
