package agentloop

import "fmt"

// Default configuration values
const (
	DefaultMaxTurns          = 25
	DefaultToolFailurePolicy = PolicyStop
)

// ToolFailurePolicy decides what a failed tool call does to the run.
type ToolFailurePolicy string

const (
	// PolicyStop ends the run with StatusToolError.
	PolicyStop ToolFailurePolicy = "stop"

	// PolicyContinue records the failure as a tool result and keeps going.
	PolicyContinue ToolFailurePolicy = "continue"
)

// LoopConfig configures the agent loop.
type LoopConfig struct {
	// MaxTurns bounds the number of backend calls in one run. Default: 25
	MaxTurns int `yaml:"max_turns"`

	// ToolFailurePolicy is "stop" or "continue". Default: stop
	ToolFailurePolicy ToolFailurePolicy `yaml:"tool_failure_policy"`
}

// DefaultLoopConfig returns a LoopConfig with default values.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxTurns:          DefaultMaxTurns,
		ToolFailurePolicy: DefaultToolFailurePolicy,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *LoopConfig) ApplyDefaults() {
	if c.MaxTurns == 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.ToolFailurePolicy == "" {
		c.ToolFailurePolicy = DefaultToolFailurePolicy
	}
}

// Validate validates the configuration.
func (c *LoopConfig) Validate() error {
	if c.MaxTurns < 1 {
		return fmt.Errorf("%w: max_turns must be at least 1, got %d", ErrInvalidConfig, c.MaxTurns)
	}
	switch c.ToolFailurePolicy {
	case PolicyStop, PolicyContinue:
	default:
		return fmt.Errorf("%w: unknown tool_failure_policy %q", ErrInvalidConfig, c.ToolFailurePolicy)
	}
	return nil
}
