package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentloop"
	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

// Runner runs an agent to completion. *agentloop.Loop satisfies it.
type Runner interface {
	Run(ctx context.Context, req agentloop.Request) *agentloop.Result
}

// AgentTool wraps an agent as a tool for use by other agents.
//
// Each parent conversation gets one dedicated nested conversation, so
// repeated delegations from the same parent share history.
type AgentTool struct {
	runner      Runner
	agent       types.Agent
	tools       []tool.Tool
	name        string
	description string
	fallbackID  string
}

// NewAgentTool creates a new agent tool wrapper. tools are the caller tools
// available to the nested agent.
func NewAgentTool(runner Runner, agent types.Agent, tools []tool.Tool, name, description string) (*AgentTool, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}

	if agent.ID == "" {
		return nil, fmt.Errorf("agent id cannot be empty")
	}

	if description == "" {
		description = fmt.Sprintf("Delegate task to %s agent", name)
	}

	return &AgentTool{
		runner:      runner,
		agent:       agent,
		tools:       tools,
		name:        name,
		description: description,
		fallbackID:  uuid.NewString(),
	}, nil
}

// Name returns the tool name
func (a *AgentTool) Name() string {
	return a.name
}

// Description returns the tool description
func (a *AgentTool) Description() string {
	return a.description
}

// InputSchema returns the JSON schema for the tool's input
func (a *AgentTool) InputSchema() tool.ToolSchema {
	return tool.ToolSchema{
		Type: "object",
		Properties: map[string]tool.PropertyDef{
			"task": {
				Type:        "string",
				Description: "The task or question to delegate to this agent",
			},
			"context": {
				Type:        "string",
				Description: "Additional context for the task (optional)",
			},
		},
		Required: []string{"task"},
	}
}

// Execute runs the nested agent with the given task
func (a *AgentTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		Task    string `json:"task"`
		Context string `json:"context"`
	}

	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	if strings.TrimSpace(params.Task) == "" {
		return "", fmt.Errorf("task is required")
	}

	prompt := params.Task
	if params.Context != "" {
		prompt = fmt.Sprintf("Context: %s\n\nTask: %s", params.Context, params.Task)
	}

	conv := a.ConversationFor(ctx)
	tool.SetMetadata(ctx, "nested_conversation_id", conv.ID)

	// The nested run commits on its own rather than joining a transaction
	// the parent may hold.
	result := a.runner.Run(driver.StripExecutor(ctx), agentloop.Request{
		Agent:        a.agent,
		Conversation: conv,
		Input:        prompt,
		Tools:        a.tools,
	})

	tool.SetMetadata(ctx, "nested_status", string(result.Status))
	tool.SetMetadata(ctx, "nested_turns", result.TurnsExecuted)
	if !result.OK() {
		return result.Text(), fmt.Errorf("nested agent %s ended with status %s: %w", a.agent.ID, result.Status, result.Err)
	}
	return result.Text(), nil
}

// ConversationFor returns the nested conversation used for calls made from
// ctx. Calls outside a loop share one conversation per tool.
func (a *AgentTool) ConversationFor(ctx context.Context) *types.Conversation {
	id := a.fallbackID
	if cc, ok := tool.GetCallContext(ctx); ok && cc.ConversationID != "" {
		id = cc.ConversationID + "/" + a.name
	}
	return &types.Conversation{ID: id, AgentID: a.agent.ID}
}
