package mocks

import (
	"context"
	"hash/fnv"
	"sync"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Vectors are deterministic per text unless overridden with SetVector.
type MockEmbeddingService struct {
	mu         sync.Mutex
	dimensions int
	model      string
	failNext   bool
	dropLast   map[string]bool // batches containing this text lose a vector
	vectors    map[string][]float32
	batches    [][]string

	// Custom behavior hook (optional)
	EmbedFn func(texts []string) ([][]float32, error)
}

// NewMockEmbeddingService creates a new MockEmbeddingService
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions: 384,
		model:      "mock-embedding-model",
		dropLast:   make(map[string]bool),
		vectors:    make(map[string][]float32),
	}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	if m.failNext {
		m.failNext = false
		m.mu.Unlock()
		return nil, context.DeadlineExceeded
	}
	m.mu.Unlock()

	if m.EmbedFn != nil {
		return m.EmbedFn(texts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(texts))
	short := false
	for i, text := range texts {
		result[i] = m.vectorFor(text)
		if m.dropLast[text] {
			short = true
		}
	}
	if short && len(result) > 0 {
		result = result[:len(result)-1]
	}
	return result, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return nil, context.DeadlineExceeded
	}
	return m.vectorFor(query), nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingService) Model() string {
	return m.model
}

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockEmbeddingService) Close() error {
	return nil
}

func (m *MockEmbeddingService) vectorFor(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	return m.generateEmbedding(text)
}

// generateEmbedding generates a deterministic embedding based on text hash
func (m *MockEmbeddingService) generateEmbedding(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// Generate deterministic pseudo-random values in [-0.5, 0.5)
		seed = seed*1103515245 + 12345
		embedding[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return embedding
}

// Helper methods for testing

func (m *MockEmbeddingService) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

func (m *MockEmbeddingService) SetDimensions(dim int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = dim
}

// SetVector pins the vector returned for text
func (m *MockEmbeddingService) SetVector(text string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vector
}

// DropVectorWhen makes any batch containing text come back one vector short
func (m *MockEmbeddingService) DropVectorWhen(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLast[text] = true
}

// Batches returns every batch passed to Embed
func (m *MockEmbeddingService) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.batches...)
}
