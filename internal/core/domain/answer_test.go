package domain

import (
	"errors"
	"testing"
)

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		name     string
		req      ToolCallRequest
		question string
		wantErr  bool
	}{
		{
			name:     "valid",
			req:      ToolCallRequest{ID: "call_1", Name: "getInformation", Arguments: `{"question":"what is go?"}`},
			question: "what is go?",
		},
		{
			name:     "trims question",
			req:      ToolCallRequest{ID: "call_2", Name: "getInformation", Arguments: `{"question":"  pricing  "}`},
			question: "pricing",
		},
		{
			name:    "unknown tool",
			req:     ToolCallRequest{ID: "call_3", Name: "deleteEverything", Arguments: `{}`},
			wantErr: true,
		},
		{
			name:    "malformed arguments",
			req:     ToolCallRequest{ID: "call_4", Name: "getInformation", Arguments: `{"question":`},
			wantErr: true,
		},
		{
			name:    "missing question",
			req:     ToolCallRequest{ID: "call_5", Name: "getInformation", Arguments: `{}`},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := ParseToolCall(tt.req)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToolCall) {
					t.Errorf("expected ErrInvalidToolCall, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if call.ID != tt.req.ID {
				t.Errorf("expected ID %s, got %s", tt.req.ID, call.ID)
			}
			if call.Name != ToolGetInformation {
				t.Errorf("expected getInformation, got %s", call.Name)
			}
			if call.GetInformation == nil || call.GetInformation.Question != tt.question {
				t.Errorf("expected question %q, got %+v", tt.question, call.GetInformation)
			}
		})
	}
}

func TestGetInformationTool(t *testing.T) {
	tool := GetInformationTool()

	if tool.Name != ToolGetInformation {
		t.Errorf("unexpected tool name %s", tool.Name)
	}
	if len(tool.Parameters) != 1 || tool.Parameters[0].Name != "question" || !tool.Parameters[0].Required {
		t.Errorf("unexpected parameters %+v", tool.Parameters)
	}
}

func TestChatRole_IsClientRole(t *testing.T) {
	if !ChatRoleUser.IsClientRole() || !ChatRoleAssistant.IsClientRole() {
		t.Error("user and assistant should be client roles")
	}
	if ChatRoleSystem.IsClientRole() || ChatRoleTool.IsClientRole() {
		t.Error("system and tool should not be client roles")
	}
}
