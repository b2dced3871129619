package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Ensure OpenAIEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OpenAIEmbedding)(nil)

const (
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultRequestTimeout = 60 * time.Second
)

// Known output sizes of common embedding models
var embeddingModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"BAAI/bge-large-en-v1.5": 1024,
	"bge-large":              1024,
	"mxbai-embed-large":      1024,
	"nomic-embed-text":       768,
}

// OpenAIEmbedding implements EmbeddingService against any OpenAI-compatible
// /embeddings endpoint (OpenAI, Ollama, vLLM, hosted gateways).
type OpenAIEmbedding struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	baseURL    string
	dimensions int

	// requestDimensions is sent with every request; only models that can
	// shorten their output accept it
	requestDimensions int
}

// NewOpenAIEmbedding creates a new embedding service.
// dimensions 0 keeps the model's native size.
func NewOpenAIEmbedding(apiKey, model, baseURL string, dimensions int) (*OpenAIEmbedding, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return newOpenAIEmbedding(apiKey, model, baseURL, dimensions), nil
}

func newOpenAIEmbedding(apiKey, model, baseURL string, dimensions int) *OpenAIEmbedding {
	if model == "" {
		model = defaultEmbeddingModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	native, known := embeddingModelDimensions[model]
	if !known {
		native = 1536
	}

	e := &OpenAIEmbedding{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		model:      model,
		baseURL:    baseURL,
		dimensions: native,
	}
	if dimensions > 0 {
		e.dimensions = dimensions
		if dimensions != native && strings.HasPrefix(model, "text-embedding-3") {
			e.requestDimensions = dimensions
		}
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = e.httpClient
	e.client = openai.NewClientWithConfig(cfg)
	return e
}

// Embed generates embeddings for multiple texts in one request.
// Vectors are returned in input order. A provider that returns fewer
// vectors than texts yields a shorter slice, not an error.
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     e.requestDimensions,
	})
	if err != nil {
		return nil, wrapAPIError("embedding", err)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, 0, len(data))
	for _, d := range data {
		if d.Index < 0 || d.Index >= len(texts) {
			continue
		}
		embeddings = append(embeddings, d.Embedding)
	}
	return embeddings, nil
}

// EmbedQuery generates an embedding for a question
func (e *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *OpenAIEmbedding) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// wrapAPIError adds the provider's status and message to a client error
func wrapAPIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error (status %d): %s: %w", op, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s API returned status %d: %w", op, reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%s request failed: %w", op, err)
}
