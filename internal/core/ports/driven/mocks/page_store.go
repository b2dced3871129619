package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// MockPageStore is an in-memory PageStore enforcing URL uniqueness per site
type MockPageStore struct {
	mu    sync.RWMutex
	pages map[string]*domain.Page
	order []string
	byKey map[string]string // siteID + " " + url -> page ID

	// Custom behavior hooks (optional)
	CreateBatchFn func(pages []*domain.Page) error
}

// NewMockPageStore creates a new MockPageStore
func NewMockPageStore() *MockPageStore {
	return &MockPageStore{
		pages: make(map[string]*domain.Page),
		byKey: make(map[string]string),
	}
}

func pageKey(siteID, url string) string {
	return siteID + " " + url
}

func (m *MockPageStore) CreateBatch(ctx context.Context, pages []*domain.Page) ([]*domain.Page, error) {
	if m.CreateBatchFn != nil {
		if err := m.CreateBatchFn(pages); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var created []*domain.Page
	for _, page := range pages {
		key := pageKey(page.SiteID, page.URL)
		if _, exists := m.byKey[key]; exists {
			continue
		}
		m.pages[page.ID] = page
		m.byKey[key] = page.ID
		m.order = append(m.order, page.ID)
		created = append(created, page)
	}
	return created, nil
}

func (m *MockPageStore) Get(ctx context.Context, id string) (*domain.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	page, ok := m.pages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return page, nil
}

func (m *MockPageStore) ListBySite(ctx context.Context, siteID string) ([]*domain.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pages []*domain.Page
	for _, id := range m.order {
		if page, ok := m.pages[id]; ok && page.SiteID == siteID {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

func (m *MockPageStore) CountBySite(ctx context.Context, siteID string) (int, error) {
	pages, err := m.ListBySite(ctx, siteID)
	return len(pages), err
}

func (m *MockPageStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.pages[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.pages, id)
	delete(m.byKey, pageKey(page.SiteID, page.URL))
	return nil
}

func (m *MockPageStore) deleteBySite(siteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, page := range m.pages {
		if page.SiteID == siteID {
			delete(m.pages, id)
			delete(m.byKey, pageKey(page.SiteID, page.URL))
		}
	}
}

// Helper methods for testing

func (m *MockPageStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}
