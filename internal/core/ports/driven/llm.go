package driven

import (
	"context"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// LLMService provides chat completion with tool calling
type LLMService interface {
	// Complete returns one assistant turn. The turn may request tool calls
	// instead of, or alongside, text.
	Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)

	// Stream behaves like Complete but hands text deltas to onDelta as they
	// arrive. The returned response holds the assembled turn.
	Stream(ctx context.Context, req domain.ChatRequest, onDelta func(string) error) (*domain.ChatResponse, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
