package filter

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates invalid filter configuration.
var ErrInvalidConfig = errors.New("invalid filter configuration")

// Default configuration values.
const (
	DefaultStrategy     = StrategyTokenBudget
	DefaultContextLimit = 200000
)

// Config holds pipeline configuration.
type Config struct {
	// DefaultStrategy is used for agents that configure no strategies.
	// Default: token_budget
	DefaultStrategy StrategyID `yaml:"default_strategy"`

	// DefaultContextLimit is the context window for agents without one.
	// Default: 200000
	DefaultContextLimit int `yaml:"default_context_limit"`
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultStrategy:     DefaultStrategy,
		DefaultContextLimit: DefaultContextLimit,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = DefaultStrategy
	}
	if c.DefaultContextLimit == 0 {
		c.DefaultContextLimit = DefaultContextLimit
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if !c.DefaultStrategy.IsKnown() {
		return fmt.Errorf("%w: unknown default_strategy %q", ErrInvalidConfig, c.DefaultStrategy)
	}
	if c.DefaultContextLimit <= 0 {
		return fmt.Errorf("%w: default_context_limit must be positive, got %d", ErrInvalidConfig, c.DefaultContextLimit)
	}
	return nil
}
