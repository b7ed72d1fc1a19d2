package compaction

import (
	"fmt"
)

// Default estimator values.
const (
	DefaultJSONCharsPerToken   = 2.5
	DefaultCodeCharsPerToken   = 3.0
	DefaultProseCharsPerToken  = 4.0
	DefaultSafetyFactor        = 0.9
	DefaultCodeMarkerThreshold = 2
)

// Default summarizer values.
const (
	DefaultEnabled      = true
	DefaultMinMessages  = 5
	DefaultTargetTokens = 1024
	DefaultMaxTokens    = 2048
)

// EstimatorConfig holds the token estimation ratios.
type EstimatorConfig struct {
	// JSONCharsPerToken is the ratio used for content starting with { or [.
	// Default: 2.5
	JSONCharsPerToken float64 `yaml:"json_chars_per_token"`

	// CodeCharsPerToken is the ratio used for content that looks like source code.
	// Default: 3.0
	CodeCharsPerToken float64 `yaml:"code_chars_per_token"`

	// ProseCharsPerToken is the ratio used for everything else.
	// Default: 4.0
	ProseCharsPerToken float64 `yaml:"prose_chars_per_token"`

	// SafetyFactor divides the raw estimate. It must be in (0, 1] so
	// estimates only grow.
	// Default: 0.9
	SafetyFactor float64 `yaml:"safety_factor"`

	// CodeMarkerThreshold is how many distinct syntax markers classify
	// content as code.
	// Default: 2
	CodeMarkerThreshold int `yaml:"code_marker_threshold"`
}

// DefaultEstimatorConfig returns an EstimatorConfig with defaults.
func DefaultEstimatorConfig() *EstimatorConfig {
	return &EstimatorConfig{
		JSONCharsPerToken:   DefaultJSONCharsPerToken,
		CodeCharsPerToken:   DefaultCodeCharsPerToken,
		ProseCharsPerToken:  DefaultProseCharsPerToken,
		SafetyFactor:        DefaultSafetyFactor,
		CodeMarkerThreshold: DefaultCodeMarkerThreshold,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *EstimatorConfig) ApplyDefaults() {
	if c.JSONCharsPerToken == 0 {
		c.JSONCharsPerToken = DefaultJSONCharsPerToken
	}
	if c.CodeCharsPerToken == 0 {
		c.CodeCharsPerToken = DefaultCodeCharsPerToken
	}
	if c.ProseCharsPerToken == 0 {
		c.ProseCharsPerToken = DefaultProseCharsPerToken
	}
	if c.SafetyFactor == 0 {
		c.SafetyFactor = DefaultSafetyFactor
	}
	if c.CodeMarkerThreshold == 0 {
		c.CodeMarkerThreshold = DefaultCodeMarkerThreshold
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *EstimatorConfig) Validate() error {
	for name, ratio := range map[string]float64{
		"json_chars_per_token":  c.JSONCharsPerToken,
		"code_chars_per_token":  c.CodeCharsPerToken,
		"prose_chars_per_token": c.ProseCharsPerToken,
	} {
		if ratio <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %f", ErrInvalidConfig, name, ratio)
		}
	}

	if c.SafetyFactor <= 0 || c.SafetyFactor > 1.0 {
		return fmt.Errorf("%w: safety_factor must be between 0 and 1, got %f", ErrInvalidConfig, c.SafetyFactor)
	}

	if c.CodeMarkerThreshold < 1 {
		return fmt.Errorf("%w: code_marker_threshold must be at least 1, got %d", ErrInvalidConfig, c.CodeMarkerThreshold)
	}

	return nil
}

// Config holds summarizer configuration.
type Config struct {
	// Enabled turns summarization on. When false the summarization filter
	// strategy always falls back to trimming.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// MinMessages is the minimum number of messages worth summarizing.
	// Default: 5
	MinMessages int `yaml:"min_messages"`

	// TargetTokens is the summary length requested in the system prompt.
	// Default: 1024
	TargetTokens int `yaml:"target_tokens"`

	// MaxTokens caps the backend response.
	// Default: 2048
	MaxTokens int `yaml:"max_tokens"`

	// SystemPrompt replaces the default summarization instruction.
	// It may contain a single %d verb for the target token count.
	SystemPrompt string `yaml:"system_prompt"`

	// RecordFailures persists a failed ConversationSummary when the backend
	// call fails. Off by default, so a failure leaves no trace in storage.
	RecordFailures bool `yaml:"record_failures"`
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	enabled := DefaultEnabled
	return &Config{
		Enabled:      &enabled,
		MinMessages:  DefaultMinMessages,
		TargetTokens: DefaultTargetTokens,
		MaxTokens:    DefaultMaxTokens,
	}
}

// IsEnabled reports whether summarization is enabled.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Enabled == nil {
		enabled := DefaultEnabled
		c.Enabled = &enabled
	}
	if c.MinMessages == 0 {
		c.MinMessages = DefaultMinMessages
	}
	if c.TargetTokens == 0 {
		c.TargetTokens = DefaultTargetTokens
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.MinMessages < 1 {
		return fmt.Errorf("%w: min_messages must be at least 1, got %d", ErrInvalidConfig, c.MinMessages)
	}

	if c.TargetTokens <= 0 {
		return fmt.Errorf("%w: target_tokens must be positive, got %d", ErrInvalidConfig, c.TargetTokens)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}

	if c.TargetTokens > c.MaxTokens {
		return fmt.Errorf("%w: target_tokens (%d) must not exceed max_tokens (%d)",
			ErrInvalidConfig, c.TargetTokens, c.MaxTokens)
	}

	return nil
}
