package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Ensure OpenAILLM implements LLMService
var _ driven.LLMService = (*OpenAILLM)(nil)

const defaultChatModel = "gpt-4o-mini"

// OpenAILLM implements LLMService against any OpenAI-compatible
// /chat/completions endpoint with function tools and SSE streaming.
type OpenAILLM struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
}

// NewOpenAILLM creates a new chat completion service
func NewOpenAILLM(apiKey, model, baseURL string) (*OpenAILLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return newOpenAILLM(apiKey, model, baseURL), nil
}

func newOpenAILLM(apiKey, model, baseURL string) *OpenAILLM {
	if model == "" {
		model = defaultChatModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	// Streams stay open for the whole answer, so no client-wide timeout
	httpClient := &http.Client{}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = httpClient

	return &OpenAILLM{
		client:     openai.NewClientWithConfig(cfg),
		httpClient: httpClient,
		model:      model,
	}
}

// Complete returns one assistant turn
func (l *OpenAILLM) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := l.client.CreateChatCompletion(ctx, l.buildRequest(req, false))
	if err != nil {
		return nil, wrapAPIError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	return &domain.ChatResponse{
		Message:      fromOpenAIMessage(choice.Message),
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Stream hands content deltas to onDelta as they arrive and assembles the
// full turn, including tool calls split across chunks.
func (l *OpenAILLM) Stream(ctx context.Context, req domain.ChatRequest, onDelta func(string) error) (*domain.ChatResponse, error) {
	stream, err := l.client.CreateChatCompletionStream(ctx, l.buildRequest(req, true))
	if err != nil {
		return nil, wrapAPIError("chat stream", err)
	}
	defer stream.Close()

	resp := &domain.ChatResponse{
		Message: domain.ChatMessage{Role: domain.ChatRoleAssistant},
	}
	var content []byte
	calls := newToolCallAssembler()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapAPIError("chat stream", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content = append(content, choice.Delta.Content...)
			if onDelta != nil {
				if err := onDelta(choice.Delta.Content); err != nil {
					return nil, err
				}
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			calls.add(tc)
		}
		if choice.FinishReason != "" {
			resp.FinishReason = string(choice.FinishReason)
		}
	}

	resp.Message.Content = string(content)
	resp.Message.ToolCalls = calls.calls()
	return resp, nil
}

// Model returns the model name being used
func (l *OpenAILLM) Model() string {
	return l.model
}

// Ping verifies the endpoint answers a model listing
func (l *OpenAILLM) Ping(ctx context.Context) error {
	if _, err := l.client.ListModels(ctx); err != nil {
		return wrapAPIError("list models", err)
	}
	return nil
}

// Close releases idle connections
func (l *OpenAILLM) Close() error {
	l.httpClient.CloseIdleConnections()
	return nil
}

func (l *OpenAILLM) buildRequest(req domain.ChatRequest, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    l.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Stream:   stream,
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, toOpenAIMessage(msg))
	}
	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, toOpenAITool(tool))
	}
	return out
}

func toOpenAIMessage(msg domain.ChatMessage) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) domain.ChatMessage {
	out := domain.ChatMessage{
		Role:    domain.ChatRole(msg.Role),
		Content: msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

// toOpenAITool renders a tool definition as a JSON schema function
func toOpenAITool(def domain.ToolDefinition) openai.Tool {
	properties := make(map[string]any, len(def.Parameters))
	required := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		properties[p.Name] = map[string]any{
			"type":        "string",
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        string(def.Name),
			Description: def.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// toolCallAssembler joins streamed tool call fragments by their index
type toolCallAssembler struct {
	order []int
	byIdx map[int]*domain.ToolCallRequest
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{byIdx: make(map[int]*domain.ToolCallRequest)}
}

func (a *toolCallAssembler) add(tc openai.ToolCall) {
	idx := len(a.order)
	if tc.Index != nil {
		idx = *tc.Index
	} else if tc.ID == "" && len(a.order) > 0 {
		// Unindexed continuation of the previous call
		idx = a.order[len(a.order)-1]
	}

	call, ok := a.byIdx[idx]
	if !ok {
		call = &domain.ToolCallRequest{}
		a.byIdx[idx] = call
		a.order = append(a.order, idx)
	}
	if tc.ID != "" {
		call.ID = tc.ID
	}
	call.Name += tc.Function.Name
	call.Arguments += tc.Function.Arguments
}

func (a *toolCallAssembler) calls() []domain.ToolCallRequest {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]domain.ToolCallRequest, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.byIdx[idx])
	}
	return out
}
