package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
	"github.com/custodia-labs/sitechat/internal/core/ports/driving"
	"github.com/custodia-labs/sitechat/internal/runtime"
)

// Ensure answerService implements AnswerService
var _ driving.AnswerService = (*answerService)(nil)

// AnswerServiceConfig holds dependencies for the answer service
type AnswerServiceConfig struct {
	Sites     driven.SiteStore
	Retriever *Retriever
	Services  *runtime.Services // Dynamic AI services
	Config    domain.AnswerConfig
	Logger    *slog.Logger
}

// answerService composes answers from retrieved chunks
type answerService struct {
	sites     driven.SiteStore
	retriever *Retriever
	services  *runtime.Services
	config    domain.AnswerConfig
	logger    *slog.Logger
}

// NewAnswerService creates a new AnswerService
func NewAnswerService(cfg AnswerServiceConfig) driving.AnswerService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	config := cfg.Config
	defaults := domain.DefaultPipelineConfig().Answer
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaults.SystemPrompt
	}
	if config.ToolSystemPrompt == "" {
		config.ToolSystemPrompt = defaults.ToolSystemPrompt
	}
	if config.ContextSeparator == "" {
		config.ContextSeparator = defaults.ContextSeparator
	}
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = defaults.MaxToolRounds
	}
	return &answerService{
		sites:     cfg.Sites,
		retriever: cfg.Retriever,
		services:  cfg.Services,
		config:    config,
		logger:    logger,
	}
}

// Ask retrieves context for the question, places it in the system prompt and
// issues a single completion. With no relevant context the system message is
// left out and the model is still asked.
func (s *answerService) Ask(ctx context.Context, siteID, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if _, err := s.sites.Get(ctx, siteID); err != nil {
		return nil, err
	}

	llm, err := s.services.ChatModel()
	if err != nil {
		return nil, err
	}

	rows, err := s.retriever.Retrieve(ctx, siteID, question)
	if err != nil {
		return nil, err
	}

	var messages []domain.ChatMessage
	if len(rows) > 0 {
		messages = append(messages, domain.ChatMessage{
			Role:    domain.ChatRoleSystem,
			Content: s.systemPrompt(rows),
		})
	}
	messages = append(messages, domain.ChatMessage{Role: domain.ChatRoleUser, Content: question})

	resp, err := llm.Complete(ctx, domain.ChatRequest{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	s.logger.Info("answered question",
		"site_id", siteID,
		"context_rows", len(rows),
		"model", llm.Model(),
	)

	return &domain.Answer{
		Text:       resp.Message.Content,
		References: references(rows),
	}, nil
}

// AskStream runs the tool-calling loop. Each round streams one model turn;
// getInformation calls are answered with freshly retrieved rows for the same
// site. The loop stops when the model answers without tool calls or after
// MaxToolRounds turns.
func (s *answerService) AskStream(ctx context.Context, siteID string, messages []domain.ChatMessage, onToken func(string) error) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: messages are required", domain.ErrInvalidInput)
	}
	for i, msg := range messages {
		if !msg.Role.IsClientRole() {
			return "", fmt.Errorf("%w: message %d has role %q", domain.ErrInvalidInput, i, msg.Role)
		}
	}
	if _, err := s.sites.Get(ctx, siteID); err != nil {
		return "", err
	}

	llm, err := s.services.ChatModel()
	if err != nil {
		return "", err
	}

	conversation := make([]domain.ChatMessage, 0, len(messages)+1)
	conversation = append(conversation, domain.ChatMessage{
		Role:    domain.ChatRoleSystem,
		Content: s.config.ToolSystemPrompt,
	})
	for _, msg := range messages {
		conversation = append(conversation, domain.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	tools := []domain.ToolDefinition{domain.GetInformationTool()}
	var answer strings.Builder

	for round := 1; round <= s.config.MaxToolRounds; round++ {
		resp, err := llm.Stream(ctx, domain.ChatRequest{Messages: conversation, Tools: tools}, func(delta string) error {
			answer.WriteString(delta)
			return onToken(delta)
		})
		if err != nil {
			return answer.String(), fmt.Errorf("stream round %d: %w", round, err)
		}

		turn := resp.Message
		turn.Role = domain.ChatRoleAssistant
		conversation = append(conversation, turn)

		if len(turn.ToolCalls) == 0 {
			break
		}

		for _, req := range turn.ToolCalls {
			conversation = append(conversation, domain.ChatMessage{
				Role:       domain.ChatRoleTool,
				ToolCallID: req.ID,
				Content:    s.runTool(ctx, siteID, req),
			})
		}
	}

	return answer.String(), nil
}

// runTool executes one validated tool call and renders its result for the
// model. Failures are reported to the model rather than ending the answer.
func (s *answerService) runTool(ctx context.Context, siteID string, req domain.ToolCallRequest) string {
	call, err := domain.ParseToolCall(req)
	if err != nil {
		s.logger.Warn("rejected tool call", "tool", req.Name, "error", err)
		return toolError(err)
	}

	switch call.Name {
	case domain.ToolGetInformation:
		rows, err := s.retriever.Retrieve(ctx, siteID, call.GetInformation.Question)
		if err != nil {
			s.logger.Warn("tool retrieval failed", "site_id", siteID, "error", err)
			return toolError(err)
		}
		if rows == nil {
			rows = []*domain.RetrievedContext{}
		}
		raw, err := json.Marshal(rows)
		if err != nil {
			return toolError(err)
		}
		s.logger.Debug("tool call answered", "tool", call.Name, "rows", len(rows))
		return string(raw)
	default:
		return toolError(fmt.Errorf("%w: %s", domain.ErrInvalidToolCall, call.Name))
	}
}

// systemPrompt substitutes the rendered rows into the direct-mode template
func (s *answerService) systemPrompt(rows []*domain.RetrievedContext) string {
	entries := make([]string, len(rows))
	for i, row := range rows {
		entries[i] = row.URL + "\n\n" + row.Title + "\n\n" + row.Content + "\n"
	}
	return strings.Replace(s.config.SystemPrompt, domain.ContextPlaceholder, strings.Join(entries, s.config.ContextSeparator), 1)
}

// references returns the distinct source URLs of rows in rank order
func references(rows []*domain.RetrievedContext) []string {
	refs := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		ref := domain.NormalizeReference(row.URL)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

func toolError(err error) string {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(raw)
}
