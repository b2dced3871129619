package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// MockSiteStore is an in-memory SiteStore
type MockSiteStore struct {
	mu    sync.RWMutex
	sites map[string]*domain.Site
	byURL map[string]*domain.Site
	pages *MockPageStore

	// Custom behavior hooks (optional)
	CreateFn   func(site *domain.Site) error
	GetByURLFn func(url string) (*domain.Site, error)
}

// NewMockSiteStore creates a new MockSiteStore. Deleting a site deletes its
// pages from pages.
func NewMockSiteStore(pages *MockPageStore) *MockSiteStore {
	return &MockSiteStore{
		sites: make(map[string]*domain.Site),
		byURL: make(map[string]*domain.Site),
		pages: pages,
	}
}

func (m *MockSiteStore) Create(ctx context.Context, site *domain.Site) error {
	if m.CreateFn != nil {
		if err := m.CreateFn(site); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byURL[site.URL]; exists {
		return domain.ErrAlreadyExists
	}
	m.sites[site.ID] = site
	m.byURL[site.URL] = site
	return nil
}

func (m *MockSiteStore) Get(ctx context.Context, id string) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	site, ok := m.sites[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return site, nil
}

func (m *MockSiteStore) GetByURL(ctx context.Context, url string) (*domain.Site, error) {
	if m.GetByURLFn != nil {
		return m.GetByURLFn(url)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	site, ok := m.byURL[url]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return site, nil
}

func (m *MockSiteStore) List(ctx context.Context) ([]*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sites := make([]*domain.Site, 0, len(m.sites))
	for _, site := range m.sites {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].CreatedAt.After(sites[j].CreatedAt) })
	return sites, nil
}

func (m *MockSiteStore) UpdateTotalPages(ctx context.Context, id string) (int, error) {
	count, err := m.pages.CountBySite(ctx, id)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	site, ok := m.sites[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	site.TotalPages = count
	return count, nil
}

func (m *MockSiteStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	site, ok := m.sites[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(m.sites, id)
	delete(m.byURL, site.URL)
	m.mu.Unlock()

	m.pages.deleteBySite(id)
	return nil
}

// Helper methods for testing

func (m *MockSiteStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sites)
}
