package types

// Agent is the configuration of the agent that owns a conversation.
type Agent struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Backend is the registered backend name used for model calls.
	Backend string `json:"backend" yaml:"backend"`

	// Model is the default model passed to the backend.
	Model string `json:"model" yaml:"model"`

	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`

	// ContextLimit is the backend context window in tokens.
	// Zero means the filter default applies.
	ContextLimit int `json:"context_limit" yaml:"context_limit"`

	// MaxOutputTokens is reserved from the context window for the response.
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`

	// Strategies is the ordered list of context filter strategy names.
	Strategies []string `json:"strategies" yaml:"strategies"`

	// StrategyOptions holds per-strategy options keyed by strategy name.
	StrategyOptions map[string]map[string]any `json:"strategy_options" yaml:"strategy_options"`

	// Tools names the caller tools enabled for this agent.
	Tools []string `json:"tools" yaml:"tools"`
}

// OptionsFor returns the option map configured for the named strategy.
// The returned map is never nil.
func (a Agent) OptionsFor(strategy string) map[string]any {
	if opts, ok := a.StrategyOptions[strategy]; ok && opts != nil {
		return opts
	}
	return map[string]any{}
}
