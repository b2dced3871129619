package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Services is the registry of AI providers shared by ingestion and answering.
// The embedder serves chunk embedding and question retrieval; the chat model
// only serves answering. Registering or dropping a provider updates the
// capability flags in the RuntimeConfig, and the accessors refuse to hand out
// a provider for work the flags say cannot run.
type Services struct {
	mu       sync.RWMutex
	config   *domain.RuntimeConfig
	embedder driven.EmbeddingService
	chat     driven.LLMService
}

// NewServices creates an empty registry. A nil config starts a fresh one.
func NewServices(config *domain.RuntimeConfig) *Services {
	if config == nil {
		config = domain.NewRuntimeConfig("")
	}
	return &Services{config: config}
}

// Capabilities reports whether pages can be ingested and questions answered
// with the providers registered right now.
func (s *Services) Capabilities() domain.Capabilities {
	return s.config.Capabilities()
}

// Embedder returns the embedding provider, or ErrServiceUnavailable while
// no embedder is registered.
func (s *Services) Embedder() (driven.EmbeddingService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.config.CanIngest() || s.embedder == nil {
		return nil, fmt.Errorf("embedding service: %w", domain.ErrServiceUnavailable)
	}
	return s.embedder, nil
}

// ChatModel returns the chat provider for answering. Answering also retrieves
// context, so it fails with ErrServiceUnavailable unless both providers are
// registered.
func (s *Services) ChatModel() (driven.LLMService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.config.CanAnswer() || s.chat == nil {
		return nil, fmt.Errorf("answering needs embedding and llm services: %w", domain.ErrServiceUnavailable)
	}
	return s.chat, nil
}

// EmbeddingService returns the registered embedder, possibly nil.
// Used by health checks.
func (s *Services) EmbeddingService() driven.EmbeddingService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embedder
}

// LLMService returns the registered chat model, possibly nil.
func (s *Services) LLMService() driven.LLMService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chat
}

// SetEmbeddingService replaces the embedder, closing the previous one.
// Passing nil disables ingestion and answering.
func (s *Services) SetEmbeddingService(svc driven.EmbeddingService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder != nil && s.embedder != svc {
		_ = s.embedder.Close()
	}
	s.embedder = svc
	s.config.SetEmbeddingAvailable(svc != nil)
}

// SetLLMService replaces the chat model, closing the previous one.
// Passing nil disables answering.
func (s *Services) SetLLMService(svc driven.LLMService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat != nil && s.chat != svc {
		_ = s.chat.Close()
	}
	s.chat = svc
	s.config.SetLLMAvailable(svc != nil)
}

// ValidateAndSetEmbedding registers svc once its health check passes.
// A failing provider is closed and the current one is kept.
func (s *Services) ValidateAndSetEmbedding(ctx context.Context, svc driven.EmbeddingService) error {
	if svc != nil {
		if err := svc.HealthCheck(ctx); err != nil {
			_ = svc.Close()
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	s.SetEmbeddingService(svc)
	return nil
}

// ValidateAndSetLLM registers svc once it answers a ping.
// A failing provider is closed and the current one is kept.
func (s *Services) ValidateAndSetLLM(ctx context.Context, svc driven.LLMService) error {
	if svc != nil {
		if err := svc.Ping(ctx); err != nil {
			_ = svc.Close()
			return fmt.Errorf("llm ping: %w", err)
		}
	}
	s.SetLLMService(svc)
	return nil
}

// Close releases both providers and clears the capability flags.
func (s *Services) Close() error {
	s.SetEmbeddingService(nil)
	s.SetLLMService(nil)
	return nil
}
