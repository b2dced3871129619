package domain

import "sync"

// RuntimeConfig tracks which services are available at runtime.
// This is determined at startup and can be updated dynamically for AI services.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	QueueBackend string // "redis" or "postgres"

	// Dynamic capability flags (updated when AI services change)
	embeddingAvailable bool
	llmAvailable       bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(queueBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		QueueBackend: queueBackend,
	}
}

// EmbeddingAvailable returns whether embedding service is available
func (c *RuntimeConfig) EmbeddingAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable
}

// LLMAvailable returns whether LLM service is available
func (c *RuntimeConfig) LLMAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.llmAvailable
}

// SetEmbeddingAvailable updates the embedding availability flag
func (c *RuntimeConfig) SetEmbeddingAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingAvailable = available
}

// SetLLMAvailable updates the LLM availability flag
func (c *RuntimeConfig) SetLLMAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmAvailable = available
}

// Capabilities is a snapshot of what the service can currently do.
type Capabilities struct {
	QueueBackend string `json:"queue_backend"`
	Ingest       bool   `json:"ingest"`
	Answer       bool   `json:"answer"`
}

// Capabilities returns the current capability snapshot
func (c *RuntimeConfig) Capabilities() Capabilities {
	return Capabilities{
		QueueBackend: c.QueueBackend,
		Ingest:       c.CanIngest(),
		Answer:       c.CanAnswer(),
	}
}

// CanIngest returns true if pages can be chunked and embedded
func (c *RuntimeConfig) CanIngest() bool {
	return c.EmbeddingAvailable()
}

// CanAnswer returns true if questions can be answered
func (c *RuntimeConfig) CanAnswer() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable && c.llmAvailable
}
