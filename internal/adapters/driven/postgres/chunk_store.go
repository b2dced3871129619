package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore using PostgreSQL with pgvector.
// Similarity is 1 - cosine distance, served by the HNSW index on embedding.
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// ReplaceForPage deletes the page's chunks and inserts the new set in one transaction
func (s *ChunkStore) ReplaceForPage(ctx context.Context, pageID string, chunks []*domain.Chunk) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM page_chunks WHERE page_id = $1`, pageID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO page_chunks (id, page_id, chunk_index, content, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for _, chunk := range chunks {
			if chunk.CreatedAt.IsZero() {
				chunk.CreatedAt = now
			}
			chunk.UpdatedAt = now

			_, err = stmt.ExecContext(ctx,
				chunk.ID,
				pageID,
				chunk.Index,
				chunk.Content,
				pgvector.NewVector(chunk.Embedding),
				chunk.CreatedAt,
				chunk.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
			}
		}
		return nil
	})
}

// GetByPage retrieves all chunks for a page ordered by index
func (s *ChunkStore) GetByPage(ctx context.Context, pageID string) ([]*domain.Chunk, error) {
	query := `
		SELECT id, page_id, chunk_index, content, embedding, created_at, updated_at
		FROM page_chunks
		WHERE page_id = $1
		ORDER BY chunk_index ASC
	`

	rows, err := s.db.QueryContext(ctx, query, pageID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]*domain.Chunk, 0)
	for rows.Next() {
		var chunk domain.Chunk
		var embedding pgvector.Vector
		err := rows.Scan(
			&chunk.ID,
			&chunk.PageID,
			&chunk.Index,
			&chunk.Content,
			&embedding,
			&chunk.CreatedAt,
			&chunk.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.Embedding = embedding.Slice()
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// CountByPage returns chunk count for a page
func (s *ChunkStore) CountByPage(ctx context.Context, pageID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_chunks WHERE page_id = $1`, pageID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// SearchSimilar ranks a site's chunks against the query vector. Only rows
// strictly above the threshold are returned, closest first.
func (s *ChunkStore) SearchSimilar(ctx context.Context, q domain.RetrievalQuery) ([]*domain.RetrievedContext, error) {
	query := `
		SELECT p.title, p.url, c.content, 1 - (c.embedding <=> $1) AS similarity
		FROM page_chunks c
		JOIN pages p ON p.id = c.page_id
		WHERE p.site_id = $2
		  AND 1 - (c.embedding <=> $1) > $3
		ORDER BY c.embedding <=> $1 ASC
		LIMIT $4
	`

	rows, err := s.db.QueryContext(ctx, query,
		pgvector.NewVector(q.Embedding),
		q.SiteID,
		q.Threshold,
		q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.RetrievedContext, 0)
	for rows.Next() {
		var rc domain.RetrievedContext
		if err := rows.Scan(&rc.Title, &rc.URL, &rc.Content, &rc.Similarity); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, &rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}
