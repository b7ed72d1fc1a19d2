// Package openai implements backend.Backend on OpenAI-compatible chat
// completion APIs.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/streaming"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

// DefaultName is the registry name of the backend.
const DefaultName = "openai"

// Config configures the OpenAI backend.
type Config struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// Backend streams chat completions and assembles tool call fragments.
type Backend struct {
	client *openai.Client
	config Config
}

// New creates a backend. BaseURL allows any OpenAI-compatible server.
func New(cfg Config) *Backend {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Backend{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return b.config.Name }

// Execute implements backend.Backend.
func (b *Backend) Execute(ctx context.Context, req backend.Request) (*backend.Response, error) {
	chatReq := b.buildRequest(req)

	stream, err := b.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	acc := streaming.NewAccumulator(ctx, req.Chunks)
	acc.SetModel(chatReq.Model)

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("openai stream: %w", err)
		}
		if err := processResponse(acc, response); err != nil {
			return nil, err
		}
	}

	return acc.Finish()
}

func (b *Backend) buildRequest(req backend.Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = b.config.DefaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      ConvertMessages(req.SystemPrompt, req.Messages),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.config.MaxTokens
	}
	if maxTokens > 0 {
		chatReq.MaxTokens = maxTokens
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = ConvertTools(req.Tools)
	}
	return chatReq
}

// processResponse feeds one stream response into the accumulator.
// Tool calls arrive in fragments keyed by index: the first fragment carries
// the id and name, later ones append argument JSON.
func processResponse(acc *streaming.Accumulator, response openai.ChatCompletionStreamResponse) error {
	acc.SetModel(response.Model)
	if response.Usage != nil {
		acc.SetInputTokens(response.Usage.PromptTokens)
		acc.SetOutputTokens(response.Usage.CompletionTokens)
	}

	if len(response.Choices) == 0 {
		return nil
	}
	choice := response.Choices[0]
	delta := choice.Delta

	if err := acc.AddThinking(delta.ReasoningContent); err != nil {
		return err
	}
	if err := acc.AddText(delta.Content); err != nil {
		return err
	}

	for _, tc := range delta.ToolCalls {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}
		acc.StartToolCall(index, tc.ID, tc.Function.Name)
		if tc.Function.Arguments != "" {
			acc.AddToolInput(index, tc.Function.Arguments)
		}
	}

	if choice.FinishReason != "" {
		acc.SetFinishReason(MapFinishReason(choice.FinishReason))
	}
	return nil
}

// MapFinishReason converts an OpenAI finish reason.
func MapFinishReason(r openai.FinishReason) backend.FinishReason {
	switch r {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return backend.FinishToolCalls
	case openai.FinishReasonLength:
		return backend.FinishLength
	case openai.FinishReasonContentFilter:
		return backend.FinishError
	default:
		return backend.FinishStop
	}
}

// ConvertMessages converts conversation messages to OpenAI chat messages.
// The system prompt becomes the first message and each tool result is its
// own tool-role message.
func ConvertMessages(systemPrompt string, messages []*types.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, msg := range messages {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case types.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})

		case types.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				Name:       msg.Name,
				ToolCallID: msg.ToolCallID,
			})

		case types.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, call := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   call.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      call.Name,
							Arguments: encodeArguments(call.Arguments),
						},
					}
				}
			}
			result = append(result, oaiMsg)

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	return result
}

// ConvertTools converts tool definitions to OpenAI function tools.
func ConvertTools(defs []tool.Definition) []openai.Tool {
	result := make([]openai.Tool, len(defs))
	for i, def := range defs {
		params := def.Parameters
		if params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		}
	}
	return result
}

func encodeArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// IsRetryableError reports rate limits and server errors.
func IsRetryableError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}
