package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
	"github.com/custodia-labs/sitechat/internal/runtime"
)

// Retriever ranks stored chunks of a site against a question
type Retriever struct {
	chunks   driven.ChunkStore
	services *runtime.Services
	config   domain.RetrievalConfig
	logger   *slog.Logger
}

// RetrieverConfig holds configuration for the retriever
type RetrieverConfig struct {
	Chunks   driven.ChunkStore
	Services *runtime.Services // Dynamic AI services
	Config   domain.RetrievalConfig
	Logger   *slog.Logger
}

// NewRetriever creates a new Retriever
func NewRetriever(cfg RetrieverConfig) *Retriever {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	config := cfg.Config
	defaults := domain.DefaultPipelineConfig().Retrieval
	if config.Limit <= 0 {
		config.Limit = defaults.Limit
	}
	return &Retriever{
		chunks:   cfg.Chunks,
		services: cfg.Services,
		config:   config,
		logger:   logger,
	}
}

// Retrieve embeds question and returns the best matching chunks of the site.
// An empty result means nothing scored above the threshold.
func (r *Retriever) Retrieve(ctx context.Context, siteID, question string) ([]*domain.RetrievedContext, error) {
	embedder, err := r.services.Embedder()
	if err != nil {
		return nil, err
	}

	embedding, err := embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	return r.Search(ctx, siteID, embedding)
}

// Search ranks the site's chunks against an embedding. Rows are strictly
// above the threshold and ordered by descending similarity.
func (r *Retriever) Search(ctx context.Context, siteID string, embedding []float32) ([]*domain.RetrievedContext, error) {
	rows, err := r.chunks.SearchSimilar(ctx, domain.RetrievalQuery{
		SiteID:    siteID,
		Embedding: embedding,
		Threshold: r.config.Threshold,
		Limit:     r.config.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	// The store already filters and orders; keep the guarantees local too.
	kept := rows[:0]
	for _, row := range rows {
		if row.Similarity > r.config.Threshold {
			kept = append(kept, row)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})
	if len(kept) > r.config.Limit {
		kept = kept[:r.config.Limit]
	}

	r.logger.Debug("retrieved context",
		"site_id", siteID,
		"rows", len(kept),
		"threshold", r.config.Threshold,
	)

	return kept, nil
}
