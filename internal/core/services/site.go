package services

import (
	"context"
	"log/slog"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
	"github.com/custodia-labs/sitechat/internal/core/ports/driving"
)

// Ensure siteService implements SiteService
var _ driving.SiteService = (*siteService)(nil)

// siteService implements the SiteService interface
type siteService struct {
	sites  driven.SiteStore
	pages  driven.PageStore
	chunks driven.ChunkStore
	logger *slog.Logger
}

// NewSiteService creates a new SiteService
func NewSiteService(
	sites driven.SiteStore,
	pages driven.PageStore,
	chunks driven.ChunkStore,
	logger *slog.Logger,
) driving.SiteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &siteService{
		sites:  sites,
		pages:  pages,
		chunks: chunks,
		logger: logger,
	}
}

// List returns every site
func (s *siteService) List(ctx context.Context) ([]*domain.Site, error) {
	sites, err := s.sites.List(ctx)
	if err != nil {
		return nil, err
	}
	if sites == nil {
		sites = []*domain.Site{}
	}
	return sites, nil
}

// Get returns a site with its pages
func (s *siteService) Get(ctx context.Context, id string) (*domain.SiteWithPages, error) {
	site, err := s.sites.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pages, err := s.pages.ListBySite(ctx, id)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []*domain.Page{}
	}
	return &domain.SiteWithPages{Site: site, Pages: pages}, nil
}

// Delete removes a site with its pages and chunks
func (s *siteService) Delete(ctx context.Context, id string) error {
	if err := s.sites.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("site deleted", "site_id", id)
	return nil
}

// GetPage returns one page with its chunks, without embeddings
func (s *siteService) GetPage(ctx context.Context, id string) (*driving.PageView, error) {
	page, err := s.pages.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunks.GetByPage(ctx, id)
	if err != nil {
		return nil, err
	}

	view := make([]*domain.Chunk, len(chunks))
	for i, chunk := range chunks {
		c := *chunk
		c.Embedding = nil
		view[i] = &c
	}
	return &driving.PageView{
		Page:       page,
		ChunkCount: len(view),
		Chunks:     view,
	}, nil
}

// DeletePage removes one page and its chunks, then refreshes the site's
// page count
func (s *siteService) DeletePage(ctx context.Context, id string) error {
	page, err := s.pages.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.pages.Delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.sites.UpdateTotalPages(ctx, page.SiteID); err != nil {
		s.logger.Warn("failed to refresh site page count", "site_id", page.SiteID, "error", err)
	}
	s.logger.Info("page deleted", "page_id", id, "site_id", page.SiteID)
	return nil
}
