// Package anthropic implements backend.Backend on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/streaming"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

const (
	// DefaultName is the registry name of the backend.
	DefaultName = "anthropic"

	// DefaultMaxTokens is used when the request leaves MaxTokens unset.
	DefaultMaxTokens = 4096
)

// Config configures the Anthropic backend.
type Config struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// Backend calls the Anthropic Messages API with streaming enabled.
type Backend struct {
	client anthropic.Client
	config Config
}

// New creates a backend. An empty APIKey falls back to the SDK's
// environment lookup.
func New(cfg Config) *Backend {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Backend{
		client: anthropic.NewClient(opts...),
		config: cfg,
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return b.config.Name }

// Execute implements backend.Backend.
func (b *Backend) Execute(ctx context.Context, req backend.Request) (*backend.Response, error) {
	params := b.buildParams(req)

	stream := b.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	acc := streaming.NewAccumulator(ctx, req.Chunks)
	acc.SetModel(string(params.Model))

	for stream.Next() {
		if err := processEvent(acc, stream.Current()); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	return acc.Finish()
}

func (b *Backend) buildParams(req backend.Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = b.config.DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.config.MaxTokens
	}

	system, messages := ConvertMessages(req.SystemPrompt, req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = ConvertTools(req.Tools)
	}
	return params
}

// processEvent feeds one stream event into the accumulator.
func processEvent(acc *streaming.Accumulator, event anthropic.MessageStreamEventUnion) error {
	switch e := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		acc.SetModel(string(e.Message.Model))
		acc.SetInputTokens(int(e.Message.Usage.InputTokens))

	case anthropic.ContentBlockStartEvent:
		switch block := e.ContentBlock.AsAny().(type) {
		case anthropic.ToolUseBlock:
			acc.StartToolCall(int(e.Index), block.ID, block.Name)
		case anthropic.TextBlock:
			return acc.AddText(block.Text)
		}

	case anthropic.ContentBlockDeltaEvent:
		switch delta := e.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return acc.AddText(delta.Text)
		case anthropic.ThinkingDelta:
			return acc.AddThinking(delta.Thinking)
		case anthropic.InputJSONDelta:
			acc.AddToolInput(int(e.Index), delta.PartialJSON)
		}

	case anthropic.MessageDeltaEvent:
		acc.SetFinishReason(MapStopReason(e.Delta.StopReason))
		acc.SetOutputTokens(int(e.Usage.OutputTokens))
	}
	return nil
}

// MapStopReason converts an Anthropic stop reason.
func MapStopReason(r anthropic.StopReason) backend.FinishReason {
	switch r {
	case anthropic.StopReasonToolUse:
		return backend.FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return backend.FinishLength
	case anthropic.StopReasonRefusal:
		return backend.FinishError
	case "":
		return ""
	default:
		return backend.FinishStop
	}
}

// ConvertMessages splits conversation messages into Anthropic system blocks
// and message params. System-role messages are moved into the system
// prompt. Consecutive tool results are merged into a single user message.
func ConvertMessages(systemPrompt string, messages []*types.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	if systemPrompt != "" {
		system = append(system, anthropic.TextBlockParam{Text: systemPrompt})
	}

	params := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			params = append(params, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case types.RoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			}

		case types.RoleTool:
			pendingResults = append(pendingResults,
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsToolError()))

		case types.RoleAssistant:
			flushResults()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				// The API requires a dictionary, not null
				var input any = call.Arguments
				if call.Arguments == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			params = append(params, anthropic.NewAssistantMessage(blocks...))

		default:
			flushResults()
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flushResults()

	return system, params
}

// ConvertTools converts tool definitions into Anthropic tool params.
func ConvertTools(defs []tool.Definition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: def.Parameters["properties"],
		}
		if required := requiredFields(def.Parameters["required"]); len(required) > 0 {
			inputSchema.Required = required
		}

		toolParam := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: inputSchema,
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return tools
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, item := range r {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	// Retry on rate limits and server errors
	return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
}
