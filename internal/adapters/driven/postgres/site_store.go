package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SiteStore = (*SiteStore)(nil)

// SiteStore implements driven.SiteStore using PostgreSQL
type SiteStore struct {
	db *DB
}

// NewSiteStore creates a new SiteStore
func NewSiteStore(db *DB) *SiteStore {
	return &SiteStore{db: db}
}

const siteColumns = `id, url, total_pages, created_at, updated_at`

// Create inserts a site
func (s *SiteStore) Create(ctx context.Context, site *domain.Site) error {
	query := `
		INSERT INTO sites (id, url, total_pages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		site.ID,
		site.URL,
		site.TotalPages,
		site.CreatedAt,
		site.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

// Get retrieves a site by ID
func (s *SiteStore) Get(ctx context.Context, id string) (*domain.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	return scanSite(row)
}

// GetByURL retrieves a site by its root URL
func (s *SiteStore) GetByURL(ctx context.Context, url string) (*domain.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = $1`, url)
	return scanSite(row)
}

// List returns all sites, newest first
func (s *SiteStore) List(ctx context.Context) ([]*domain.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	sites := make([]*domain.Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// UpdateTotalPages recomputes total_pages from the site's page rows
func (s *SiteStore) UpdateTotalPages(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE sites
		SET total_pages = (SELECT COUNT(*) FROM pages WHERE site_id = $1),
		    updated_at = $2
		WHERE id = $1
		RETURNING total_pages
	`

	var total int
	err := s.db.QueryRowContext(ctx, query, id, time.Now()).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("update total pages: %w", err)
	}
	return total, nil
}

// Delete deletes a site. Pages and chunks cascade.
func (s *SiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	return expectRowsAffected(result)
}

func scanSite(row rowScanner) (*domain.Site, error) {
	var site domain.Site
	err := row.Scan(
		&site.ID,
		&site.URL,
		&site.TotalPages,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}
	return &site, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func expectRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
