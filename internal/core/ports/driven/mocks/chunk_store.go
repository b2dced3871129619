package mocks

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// MockChunkStore is an in-memory ChunkStore. Similarity search joins through
// the page store so only chunks of live pages of the site are ranked.
type MockChunkStore struct {
	mu     sync.RWMutex
	byPage map[string][]*domain.Chunk
	order  []string // page IDs in first-write order, for stable ranking
	pages  *MockPageStore

	// Custom behavior hooks (optional)
	ReplaceForPageFn func(pageID string, chunks []*domain.Chunk) error
	SearchSimilarFn  func(query domain.RetrievalQuery) ([]*domain.RetrievedContext, error)
}

// NewMockChunkStore creates a new MockChunkStore backed by pages
func NewMockChunkStore(pages *MockPageStore) *MockChunkStore {
	return &MockChunkStore{
		byPage: make(map[string][]*domain.Chunk),
		pages:  pages,
	}
}

func (m *MockChunkStore) ReplaceForPage(ctx context.Context, pageID string, chunks []*domain.Chunk) error {
	if m.ReplaceForPageFn != nil {
		if err := m.ReplaceForPageFn(pageID, chunks); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPage[pageID]; !ok {
		m.order = append(m.order, pageID)
	}
	stored := make([]*domain.Chunk, len(chunks))
	copy(stored, chunks)
	m.byPage[pageID] = stored
	return nil
}

func (m *MockChunkStore) GetByPage(ctx context.Context, pageID string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := make([]*domain.Chunk, len(m.byPage[pageID]))
	copy(chunks, m.byPage[pageID])
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (m *MockChunkStore) CountByPage(ctx context.Context, pageID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPage[pageID]), nil
}

func (m *MockChunkStore) SearchSimilar(ctx context.Context, query domain.RetrievalQuery) ([]*domain.RetrievedContext, error) {
	if m.SearchSimilarFn != nil {
		return m.SearchSimilarFn(query)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []*domain.RetrievedContext
	for _, pageID := range m.order {
		page, err := m.pages.Get(ctx, pageID)
		if err != nil || page.SiteID != query.SiteID {
			continue
		}
		for _, chunk := range m.byPage[pageID] {
			if chunk.Embedding == nil {
				continue
			}
			similarity := CosineSimilarity(chunk.Embedding, query.Embedding)
			if similarity <= query.Threshold {
				continue
			}
			rows = append(rows, &domain.RetrievedContext{
				Title:      page.Title,
				URL:        page.URL,
				Content:    chunk.Content,
				Similarity: similarity,
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Similarity > rows[j].Similarity })
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	return rows, nil
}

// CosineSimilarity returns 1 - cosine distance of a and b
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Helper methods for testing

func (m *MockChunkStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, chunks := range m.byPage {
		total += len(chunks)
	}
	return total
}
