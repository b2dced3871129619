package driving

import (
	"context"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// PageView is a page with its stored chunks. Embeddings are omitted.
type PageView struct {
	Page       *domain.Page    `json:"page"`
	ChunkCount int             `json:"chunk_count"`
	Chunks     []*domain.Chunk `json:"chunks"`
}

// SiteService provides the catalogue of ingested sites
type SiteService interface {
	// List returns every site
	List(ctx context.Context) ([]*domain.Site, error)

	// Get returns a site with its pages
	Get(ctx context.Context, id string) (*domain.SiteWithPages, error)

	// Delete removes a site with its pages and chunks
	Delete(ctx context.Context, id string) error

	// GetPage returns one page with its chunks
	GetPage(ctx context.Context, id string) (*PageView, error)

	// DeletePage removes one page and its chunks
	DeletePage(ctx context.Context, id string) error
}
