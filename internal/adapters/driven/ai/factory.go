package ai

import (
	"fmt"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Ensure Factory implements AIServiceFactory
var _ driven.AIServiceFactory = (*Factory)(nil)

// DefaultOllamaBaseURL is Ollama's OpenAI-compatible API root
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// Ollama ignores the bearer token but the client always sends one
const ollamaAPIKey = "ollama"

// Factory creates AI services based on configuration
type Factory struct{}

// NewFactory creates a new AI service factory
func NewFactory() *Factory {
	return &Factory{}
}

// CreateEmbeddingService creates an embedding service from settings.
// Returns nil, nil when the settings are incomplete.
func (f *Factory) CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		return NewOpenAIEmbedding(settings.APIKey, settings.Model, settings.BaseURL, settings.Dimensions)
	case domain.AIProviderOllama:
		return newOpenAIEmbedding(ollamaKey(settings.APIKey), settings.Model, ollamaBaseURL(settings.BaseURL), settings.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}

// CreateLLMService creates an LLM service from settings.
// Returns nil, nil when the settings are incomplete.
func (f *Factory) CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		return NewOpenAILLM(settings.APIKey, settings.Model, settings.BaseURL)
	case domain.AIProviderOllama:
		return newOpenAILLM(ollamaKey(settings.APIKey), settings.Model, ollamaBaseURL(settings.BaseURL)), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}

func ollamaBaseURL(baseURL string) string {
	if baseURL == "" {
		return DefaultOllamaBaseURL
	}
	return baseURL
}

func ollamaKey(apiKey string) string {
	if apiKey == "" {
		return ollamaAPIKey
	}
	return apiKey
}
