package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

func TestConvertMessages(t *testing.T) {
	failed := types.NewToolMessage("call_2", "read", "no such file").WithMetadata(types.MetadataToolError, true)

	messages := []*types.Message{
		types.NewSystemMessage("You are helpful."),
		types.NewSystemMessage("[Conversation Summary]\nearlier work"),
		types.NewUserMessage("list and read"),
		types.NewAssistantMessage("",
			types.ToolCallRef{ID: "call_1", Name: "list", Arguments: nil},
			types.ToolCallRef{ID: "call_2", Name: "read", Arguments: map[string]any{"path": "x"}},
		),
		types.NewToolMessage("call_1", "list", "a\nb"),
		failed,
		types.NewAssistantMessage("done"),
	}

	system, params := ConvertMessages("base prompt", messages)

	if len(system) != 3 {
		t.Fatalf("expected 3 system blocks, got %d", len(system))
	}
	if system[0].Text != "base prompt" || system[1].Text != "You are helpful." {
		t.Errorf("unexpected system order: %q, %q", system[0].Text, system[1].Text)
	}

	if len(params) != 4 {
		t.Fatalf("expected 4 message params, got %d", len(params))
	}

	wantRoles := []anthropic.MessageParamRole{
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
	}
	for i, role := range wantRoles {
		if params[i].Role != role {
			t.Errorf("params[%d].Role = %s, want %s", i, params[i].Role, role)
		}
	}

	// Both tool results are merged into one user message
	results := params[2].Content
	if len(results) != 2 {
		t.Fatalf("expected 2 tool_result blocks, got %d", len(results))
	}
	if results[0].OfToolResult == nil || results[0].OfToolResult.ToolUseID != "call_1" {
		t.Errorf("first block is not the call_1 result")
	}
	if results[1].OfToolResult == nil || !results[1].OfToolResult.IsError.Value {
		t.Errorf("second block should be an error result")
	}

	toolUses := params[1].Content
	if len(toolUses) != 2 || toolUses[0].OfToolUse == nil || toolUses[0].OfToolUse.Name != "list" {
		t.Errorf("assistant message should carry two tool_use blocks")
	}
}

func TestConvertMessages_SkipsEmptyAssistant(t *testing.T) {
	_, params := ConvertMessages("", []*types.Message{
		types.NewUserMessage("hi"),
		types.NewAssistantMessage(""),
	})
	if len(params) != 1 {
		t.Errorf("expected empty assistant message to be dropped, got %d params", len(params))
	}
}

func TestConvertTools(t *testing.T) {
	defs := []tool.Definition{
		{
			Name:        "shell",
			Description: "Run a command",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"command": map[string]any{"type": "string"}},
				"required":   []any{"command"},
			},
		},
	}

	tools := ConvertTools(defs)
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("expected one tool param")
	}
	param := tools[0].OfTool
	if param.Name != "shell" {
		t.Errorf("Name = %s", param.Name)
	}
	if len(param.InputSchema.Required) != 1 || param.InputSchema.Required[0] != "command" {
		t.Errorf("Required = %v", param.InputSchema.Required)
	}
}

func TestMapStopReason(t *testing.T) {
	tests := []struct {
		in   anthropic.StopReason
		want backend.FinishReason
	}{
		{anthropic.StopReasonEndTurn, backend.FinishStop},
		{anthropic.StopReasonToolUse, backend.FinishToolCalls},
		{anthropic.StopReasonMaxTokens, backend.FinishLength},
		{anthropic.StopReasonStopSequence, backend.FinishStop},
		{anthropic.StopReasonRefusal, backend.FinishError},
	}
	for _, tt := range tests {
		if got := MapStopReason(tt.in); got != tt.want {
			t.Errorf("MapStopReason(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
