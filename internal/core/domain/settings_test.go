package domain

import (
	"errors"
	"testing"
)

func TestAIProviderConstants(t *testing.T) {
	if AIProviderOpenAI != "openai" {
		t.Errorf("expected openai, got %s", AIProviderOpenAI)
	}
	if AIProviderOllama != "ollama" {
		t.Errorf("expected ollama, got %s", AIProviderOllama)
	}
}

func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings EmbeddingSettings
		expected bool
	}{
		{
			name:     "empty provider",
			settings: EmbeddingSettings{Provider: "", Model: "test", APIKey: "key"},
			expected: false,
		},
		{
			name:     "openai without api key",
			settings: EmbeddingSettings{Provider: AIProviderOpenAI, Model: "test", APIKey: ""},
			expected: false,
		},
		{
			name:     "openai with api key",
			settings: EmbeddingSettings{Provider: AIProviderOpenAI, Model: "test", APIKey: "sk-test"},
			expected: true,
		},
		{
			name:     "ollama without api key (ok)",
			settings: EmbeddingSettings{Provider: AIProviderOllama, Model: "bge-large", BaseURL: "http://localhost:11434/v1"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.settings.IsConfigured()
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestLLMSettings_IsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings LLMSettings
		expected bool
	}{
		{
			name:     "empty provider",
			settings: LLMSettings{Provider: "", Model: "test", APIKey: "key"},
			expected: false,
		},
		{
			name:     "openai without api key",
			settings: LLMSettings{Provider: AIProviderOpenAI, Model: "gpt-4o", APIKey: ""},
			expected: false,
		},
		{
			name:     "openai with api key",
			settings: LLMSettings{Provider: AIProviderOpenAI, Model: "gpt-4o", APIKey: "sk-test"},
			expected: true,
		},
		{
			name:     "ollama without api key (ok)",
			settings: LLMSettings{Provider: AIProviderOllama, Model: "llama3.3", BaseURL: "http://localhost:11434/v1"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.settings.IsConfigured()
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestAIProvider_RequiresAPIKey(t *testing.T) {
	tests := []struct {
		provider AIProvider
		requires bool
	}{
		{AIProviderOpenAI, true},
		{AIProviderOllama, false}, // Self-hosted
		{"unknown", true},         // Default to requiring key
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			result := tt.provider.RequiresAPIKey()
			if result != tt.requires {
				t.Errorf("expected %v, got %v", tt.requires, result)
			}
		})
	}
}

func TestAIProvider_IsValid(t *testing.T) {
	tests := []struct {
		provider AIProvider
		valid    bool
	}{
		{AIProviderOpenAI, true},
		{AIProviderOllama, true},
		{"anthropic", false},
		{"", false},
	}

	for _, tt := range tests {
		name := string(tt.provider)
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			result := tt.provider.IsValid()
			if result != tt.valid {
				t.Errorf("expected %v, got %v", tt.valid, result)
			}
		})
	}
}

func TestAISettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings AISettings
		wantErr  bool
	}{
		{
			name:     "empty settings (valid)",
			settings: AISettings{},
			wantErr:  false,
		},
		{
			name: "valid embedding provider",
			settings: AISettings{
				Embedding: EmbeddingSettings{Provider: AIProviderOpenAI},
			},
			wantErr: false,
		},
		{
			name: "invalid embedding provider",
			settings: AISettings{
				Embedding: EmbeddingSettings{Provider: "invalid-provider"},
			},
			wantErr: true,
		},
		{
			name: "invalid llm provider",
			settings: AISettings{
				LLM: LLMSettings{Provider: "invalid-provider"},
			},
			wantErr: true,
		},
		{
			name: "both valid",
			settings: AISettings{
				Embedding: EmbeddingSettings{Provider: AIProviderOpenAI},
				LLM:       LLMSettings{Provider: AIProviderOllama},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidProvider) {
				t.Errorf("expected ErrInvalidProvider, got %v", err)
			}
		})
	}
}
