package filter

import (
	"github.com/youssefsiam38/agentloop/types"
)

// Params is the input of a pipeline run.
type Params struct {
	// Agent supplies strategy options, backend and context limit.
	Agent types.Agent

	// Conversation is the stored conversation, if any. Summarization
	// falls back to trimming without one.
	Conversation *types.Conversation

	// ContextLimit overrides Agent.ContextLimit when positive.
	ContextLimit int

	// MaxOutputTokens is reserved for the response. Zero uses
	// Agent.MaxOutputTokens.
	MaxOutputTokens int

	// ToolDefinitionTokens is reserved for the tool schemas.
	ToolDefinitionTokens int
}

// FilterContext is the immutable input of one strategy invocation.
type FilterContext struct {
	messages             []*types.Message
	agent                types.Agent
	conversation         *types.Conversation
	contextLimit         int
	maxOutputTokens      int
	toolDefinitionTokens int
}

// NewFilterContext creates a FilterContext over messages. A non-positive
// context limit in params falls back to defaultContextLimit.
func NewFilterContext(messages []*types.Message, params Params, defaultContextLimit int) *FilterContext {
	limit := params.ContextLimit
	if limit <= 0 {
		limit = params.Agent.ContextLimit
	}
	if limit <= 0 {
		limit = defaultContextLimit
	}

	maxOutput := params.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = params.Agent.MaxOutputTokens
	}

	return &FilterContext{
		messages:             append([]*types.Message(nil), messages...),
		agent:                params.Agent,
		conversation:         params.Conversation,
		contextLimit:         limit,
		maxOutputTokens:      maxOutput,
		toolDefinitionTokens: params.ToolDefinitionTokens,
	}
}

// WithMessages returns a copy of the context carrying messages.
func (fc *FilterContext) WithMessages(messages []*types.Message) *FilterContext {
	c := *fc
	c.messages = append([]*types.Message(nil), messages...)
	return &c
}

// Messages returns a copy of the message list.
func (fc *FilterContext) Messages() []*types.Message {
	return append([]*types.Message(nil), fc.messages...)
}

// Len returns the number of messages.
func (fc *FilterContext) Len() int {
	return len(fc.messages)
}

// Agent returns the agent configuration.
func (fc *FilterContext) Agent() types.Agent {
	return fc.agent
}

// Conversation returns the bound conversation or nil.
func (fc *FilterContext) Conversation() *types.Conversation {
	return fc.conversation
}

// Options returns the agent options of the named strategy. Never nil.
func (fc *FilterContext) Options(strategy StrategyID) map[string]any {
	return fc.agent.OptionsFor(string(strategy))
}

// ContextLimit returns the backend context window in tokens.
func (fc *FilterContext) ContextLimit() int {
	return fc.contextLimit
}

// MaxOutputTokens returns the tokens reserved for the response.
func (fc *FilterContext) MaxOutputTokens() int {
	return fc.maxOutputTokens
}

// ToolDefinitionTokens returns the tokens reserved for tool schemas.
func (fc *FilterContext) ToolDefinitionTokens() int {
	return fc.toolDefinitionTokens
}

// Budget returns the tokens available for messages.
func (fc *FilterContext) Budget() int {
	return fc.contextLimit - fc.maxOutputTokens - fc.toolDefinitionTokens
}
