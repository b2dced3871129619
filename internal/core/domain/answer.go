package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Answer is the result of a direct-mode question
type Answer struct {
	Text       string   `json:"answer"`
	References []string `json:"references"`
}

// ChatRole identifies the author of a chat message
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleTool      ChatRole = "tool"
)

// IsClientRole returns true for roles a caller may supply in a conversation
func (r ChatRole) IsClientRole() bool {
	return r == ChatRoleUser || r == ChatRoleAssistant
}

// ChatMessage is one turn of a conversation with the completion model
type ChatMessage struct {
	Role       ChatRole          `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

// ToolCallRequest is a tool invocation exactly as the model produced it.
// It must go through ParseToolCall before dispatch.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolName identifies a tool the model may invoke
type ToolName string

const (
	// ToolGetInformation looks up ranked context for a question
	ToolGetInformation ToolName = "getInformation"
)

// GetInformationArgs are the arguments of getInformation
type GetInformationArgs struct {
	Question string `json:"question"`
}

// ToolCall is a validated tool invocation. Exactly one argument field,
// matching Name, is set.
type ToolCall struct {
	ID             string
	Name           ToolName
	GetInformation *GetInformationArgs
}

// ParseToolCall validates a raw tool call against the known tools
func ParseToolCall(req ToolCallRequest) (*ToolCall, error) {
	switch ToolName(req.Name) {
	case ToolGetInformation:
		var args GetInformationArgs
		if err := json.Unmarshal([]byte(req.Arguments), &args); err != nil {
			return nil, fmt.Errorf("%w: %s arguments: %v", ErrInvalidToolCall, req.Name, err)
		}
		args.Question = strings.TrimSpace(args.Question)
		if args.Question == "" {
			return nil, fmt.Errorf("%w: %s requires a question", ErrInvalidToolCall, req.Name)
		}
		return &ToolCall{ID: req.ID, Name: ToolGetInformation, GetInformation: &args}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidToolCall, req.Name)
	}
}

// ToolParameter describes one string parameter of a tool
type ToolParameter struct {
	Name        string
	Description string
	Required    bool
}

// ToolDefinition describes a tool offered to the completion model
type ToolDefinition struct {
	Name        ToolName
	Description string
	Parameters  []ToolParameter
}

// GetInformationTool is the definition of the knowledge-base lookup tool
func GetInformationTool() ToolDefinition {
	return ToolDefinition{
		Name:        ToolGetInformation,
		Description: "Get information from your knowledge base to answer",
		Parameters: []ToolParameter{
			{Name: "question", Description: "User's question", Required: true},
		},
	}
}

// ChatRequest is one call to the completion model
type ChatRequest struct {
	Messages []ChatMessage
	Tools    []ToolDefinition
}

// ChatResponse is the assistant turn produced by the completion model
type ChatResponse struct {
	Message      ChatMessage
	FinishReason string
}
