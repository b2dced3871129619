package ai

import (
	"errors"
	"testing"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

func TestNewFactory(t *testing.T) {
	factory := NewFactory()
	if factory == nil {
		t.Fatal("expected non-nil factory")
	}
}

func TestFactory_CreateEmbeddingService_NilSettings(t *testing.T) {
	factory := NewFactory()

	svc, err := factory.CreateEmbeddingService(nil)
	if err != nil {
		t.Errorf("expected no error for nil settings, got %v", err)
	}
	if svc != nil {
		t.Error("expected nil service for nil settings")
	}
}

func TestFactory_CreateEmbeddingService_NotConfigured(t *testing.T) {
	factory := NewFactory()

	// OpenAI without a key is incomplete
	settings := &domain.EmbeddingSettings{
		Provider: domain.AIProviderOpenAI,
		Model:    "text-embedding-3-small",
	}

	svc, err := factory.CreateEmbeddingService(settings)
	if err != nil {
		t.Errorf("expected no error for unconfigured settings, got %v", err)
	}
	if svc != nil {
		t.Error("expected nil service for unconfigured settings")
	}
}

func TestFactory_CreateEmbeddingService_OpenAI(t *testing.T) {
	factory := NewFactory()

	settings := &domain.EmbeddingSettings{
		Provider:   domain.AIProviderOpenAI,
		Model:      "BAAI/bge-large-en-v1.5",
		APIKey:     "sk-test",
		BaseURL:    "https://gateway.example.com/v1",
		Dimensions: 1024,
	}

	svc, err := factory.CreateEmbeddingService(settings)
	if err != nil {
		t.Fatalf("expected no error for OpenAI, got %v", err)
	}
	if svc.Model() != "BAAI/bge-large-en-v1.5" {
		t.Errorf("expected configured model, got %s", svc.Model())
	}
	if svc.Dimensions() != 1024 {
		t.Errorf("expected 1024 dimensions, got %d", svc.Dimensions())
	}
}

func TestFactory_CreateEmbeddingService_Ollama(t *testing.T) {
	factory := NewFactory()

	settings := &domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		Model:    "nomic-embed-text",
	}

	svc, err := factory.CreateEmbeddingService(settings)
	if err != nil {
		t.Fatalf("expected no error for Ollama, got %v", err)
	}
	emb, ok := svc.(*OpenAIEmbedding)
	if !ok {
		t.Fatalf("expected *OpenAIEmbedding, got %T", svc)
	}
	if emb.baseURL != DefaultOllamaBaseURL {
		t.Errorf("expected Ollama base URL, got %s", emb.baseURL)
	}
	if emb.Dimensions() != 768 {
		t.Errorf("expected 768 dimensions, got %d", emb.Dimensions())
	}
}

func TestFactory_CreateEmbeddingService_InvalidProvider(t *testing.T) {
	factory := NewFactory()

	settings := &domain.EmbeddingSettings{
		Provider: "invalid-provider",
		Model:    "some-model",
		APIKey:   "test-key",
	}

	_, err := factory.CreateEmbeddingService(settings)
	if !errors.Is(err, domain.ErrInvalidProvider) {
		t.Errorf("expected ErrInvalidProvider, got %v", err)
	}
}

func TestFactory_CreateLLMService_NilSettings(t *testing.T) {
	factory := NewFactory()

	svc, err := factory.CreateLLMService(nil)
	if err != nil {
		t.Errorf("expected no error for nil settings, got %v", err)
	}
	if svc != nil {
		t.Error("expected nil service for nil settings")
	}
}

func TestFactory_CreateLLMService_NotConfigured(t *testing.T) {
	factory := NewFactory()

	svc, err := factory.CreateLLMService(&domain.LLMSettings{})
	if err != nil {
		t.Errorf("expected no error for unconfigured settings, got %v", err)
	}
	if svc != nil {
		t.Error("expected nil service for unconfigured settings")
	}
}

func TestFactory_CreateLLMService_OpenAI(t *testing.T) {
	factory := NewFactory()

	settings := &domain.LLMSettings{
		Provider: domain.AIProviderOpenAI,
		Model:    "llama-3.3-70b-instruct",
		APIKey:   "sk-test",
	}

	svc, err := factory.CreateLLMService(settings)
	if err != nil {
		t.Fatalf("expected no error for OpenAI, got %v", err)
	}
	if svc.Model() != "llama-3.3-70b-instruct" {
		t.Errorf("expected configured model, got %s", svc.Model())
	}
}

func TestFactory_CreateLLMService_Ollama(t *testing.T) {
	factory := NewFactory()

	settings := &domain.LLMSettings{
		Provider: domain.AIProviderOllama,
		Model:    "llama3.2",
		BaseURL:  "http://ollama:11434/v1",
	}

	svc, err := factory.CreateLLMService(settings)
	if err != nil {
		t.Fatalf("expected no error for Ollama, got %v", err)
	}
	if svc.Model() != "llama3.2" {
		t.Errorf("expected llama3.2, got %s", svc.Model())
	}
}

func TestFactory_CreateLLMService_InvalidProvider(t *testing.T) {
	factory := NewFactory()

	settings := &domain.LLMSettings{
		Provider: "invalid-provider",
		Model:    "some-model",
		APIKey:   "test-key",
	}

	_, err := factory.CreateLLMService(settings)
	if !errors.Is(err, domain.ErrInvalidProvider) {
		t.Errorf("expected ErrInvalidProvider, got %v", err)
	}
}
