package driven

import (
	"context"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// SiteStore handles site persistence (PostgreSQL)
type SiteStore interface {
	// Create inserts a site. Returns domain.ErrAlreadyExists if the URL is taken.
	Create(ctx context.Context, site *domain.Site) error

	// Get retrieves a site by ID
	Get(ctx context.Context, id string) (*domain.Site, error)

	// GetByURL retrieves a site by its root URL
	GetByURL(ctx context.Context, url string) (*domain.Site, error)

	// List returns all sites, newest first
	List(ctx context.Context) ([]*domain.Site, error)

	// UpdateTotalPages recomputes total_pages from the site's page rows
	UpdateTotalPages(ctx context.Context, id string) (int, error)

	// Delete deletes a site along with its pages and chunks
	Delete(ctx context.Context, id string) error
}

// PageStore handles page persistence (PostgreSQL)
type PageStore interface {
	// CreateBatch inserts pages in a transaction, skipping any whose URL already
	// exists for the site. Returns only the pages that were inserted.
	CreateBatch(ctx context.Context, pages []*domain.Page) ([]*domain.Page, error)

	// Get retrieves a page by ID
	Get(ctx context.Context, id string) (*domain.Page, error)

	// ListBySite retrieves all pages for a site
	ListBySite(ctx context.Context, siteID string) ([]*domain.Page, error)

	// CountBySite returns page count for a site
	CountBySite(ctx context.Context, siteID string) (int, error)

	// Delete deletes a page and its chunks
	Delete(ctx context.Context, id string) error
}

// ChunkStore handles chunk persistence and similarity ranking (PostgreSQL + pgvector)
type ChunkStore interface {
	// ReplaceForPage atomically replaces every chunk of a page
	ReplaceForPage(ctx context.Context, pageID string, chunks []*domain.Chunk) error

	// GetByPage retrieves all chunks for a page ordered by index
	GetByPage(ctx context.Context, pageID string) ([]*domain.Chunk, error)

	// CountByPage returns chunk count for a page
	CountByPage(ctx context.Context, pageID string) (int, error)

	// SearchSimilar ranks the chunks of a site against a query vector.
	// Rows score 1 - cosine distance, strictly above the threshold,
	// highest first, at most limit rows.
	SearchSimilar(ctx context.Context, query domain.RetrievalQuery) ([]*domain.RetrievedContext, error)
}
