package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PageStore = (*PageStore)(nil)

// PageStore implements driven.PageStore using PostgreSQL
type PageStore struct {
	db *DB
}

// NewPageStore creates a new PageStore
func NewPageStore(db *DB) *PageStore {
	return &PageStore{db: db}
}

const pageColumns = `id, site_id, title, url, metadata, created_at, updated_at`

// CreateBatch inserts pages in one transaction. Rows whose (site_id, url)
// already exists are skipped; only inserted pages are returned.
func (s *PageStore) CreateBatch(ctx context.Context, pages []*domain.Page) ([]*domain.Page, error) {
	created := make([]*domain.Page, 0, len(pages))
	if len(pages) == 0 {
		return created, nil
	}

	query := `
		INSERT INTO pages (id, site_id, title, url, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (site_id, url) DO NOTHING
		RETURNING id
	`

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, page := range pages {
			metadata, err := marshalMetadata(page.Metadata)
			if err != nil {
				return err
			}

			var id string
			err = tx.QueryRowContext(ctx, query,
				page.ID,
				page.SiteID,
				page.Title,
				page.URL,
				metadata,
				page.CreatedAt,
				page.UpdatedAt,
			).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("insert page %s: %w", page.URL, err)
			}
			created = append(created, page)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get retrieves a page by ID
func (s *PageStore) Get(ctx context.Context, id string) (*domain.Page, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id)
	return scanPage(row)
}

// ListBySite retrieves all pages for a site ordered by URL
func (s *PageStore) ListBySite(ctx context.Context, siteID string) ([]*domain.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE site_id = $1 ORDER BY url ASC`, siteID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	pages := make([]*domain.Page, 0)
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// CountBySite returns page count for a site
func (s *PageStore) CountBySite(ctx context.Context, siteID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE site_id = $1`, siteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

// Delete deletes a page. Chunks cascade.
func (s *PageStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return expectRowsAffected(result)
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

func scanPage(row rowScanner) (*domain.Page, error) {
	var page domain.Page
	var metadata []byte

	err := row.Scan(
		&page.ID,
		&page.SiteID,
		&page.Title,
		&page.URL,
		&metadata,
		&page.CreatedAt,
		&page.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan page: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &page.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &page, nil
}
