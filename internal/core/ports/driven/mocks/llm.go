package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// MockLLMService replays scripted assistant turns and records requests
type MockLLMService struct {
	mu        sync.Mutex
	responses []*domain.ChatResponse
	requests  []domain.ChatRequest

	// Custom behavior hook (optional)
	CompleteFn func(req domain.ChatRequest) (*domain.ChatResponse, error)
}

// NewMockLLMService creates a MockLLMService that answers with the given turns
// in order. Once the script is exhausted it answers "ok".
func NewMockLLMService(responses ...*domain.ChatResponse) *MockLLMService {
	return &MockLLMService{responses: responses}
}

func (m *MockLLMService) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	recorded := req
	recorded.Messages = append([]domain.ChatMessage(nil), req.Messages...)
	m.requests = append(m.requests, recorded)
	m.mu.Unlock()

	if m.CompleteFn != nil {
		return m.CompleteFn(req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return &domain.ChatResponse{
			Message:      domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: "ok"},
			FinishReason: "stop",
		}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *MockLLMService) Stream(ctx context.Context, req domain.ChatRequest, onDelta func(string) error) (*domain.ChatResponse, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, word := range strings.SplitAfter(resp.Message.Content, " ") {
		if word == "" {
			continue
		}
		if err := onDelta(word); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (m *MockLLMService) Model() string {
	return "mock-llm-model"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return nil
}

func (m *MockLLMService) Close() error {
	return nil
}

// Helper methods for testing

// Requests returns every request seen so far
func (m *MockLLMService) Requests() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChatRequest(nil), m.requests...)
}

// ErrMockLLM is returned by helpers that simulate a model outage
var ErrMockLLM = errors.New("mock llm failure")

// TextResponse builds a plain assistant turn
func TextResponse(text string) *domain.ChatResponse {
	return &domain.ChatResponse{
		Message:      domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: text},
		FinishReason: "stop",
	}
}

// ToolCallResponse builds an assistant turn requesting one tool call
func ToolCallResponse(id, name, arguments string) *domain.ChatResponse {
	return &domain.ChatResponse{
		Message: domain.ChatMessage{
			Role: domain.ChatRoleAssistant,
			ToolCalls: []domain.ToolCallRequest{
				{ID: id, Name: name, Arguments: arguments},
			},
		},
		FinishReason: "tool_calls",
	}
}
