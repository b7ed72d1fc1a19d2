// Package config loads the YAML file that wires an agentloop deployment:
// agents, backends, storage and the configuration of every component.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/youssefsiam38/agentloop"
	"github.com/youssefsiam38/agentloop/backend/anthropic"
	"github.com/youssefsiam38/agentloop/backend/openai"
	"github.com/youssefsiam38/agentloop/compaction"
	"github.com/youssefsiam38/agentloop/filter"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/tool/builtin"
	"github.com/youssefsiam38/agentloop/types"
)

// ErrInvalidConfig is returned when the file fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Backend providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// File is the top-level configuration document.
type File struct {
	Agents     []types.Agent              `yaml:"agents"`
	Loop       agentloop.LoopConfig       `yaml:"loop"`
	Filter     filter.Config              `yaml:"filter"`
	Summarizer compaction.Config          `yaml:"summarizer"`
	Estimator  compaction.EstimatorConfig `yaml:"estimator"`
	Executor   tool.ExecutorConfig        `yaml:"executor"`
	Shell      builtin.ShellConfig        `yaml:"shell"`
	Backends   []BackendConfig            `yaml:"backends"`
	Database   DatabaseConfig             `yaml:"database"`
}

// BackendConfig declares one named backend.
type BackendConfig struct {
	// Name is the name agents refer to. Defaults to the provider name.
	Name string `yaml:"name"`

	// Provider is "anthropic" or "openai".
	Provider string `yaml:"provider"`

	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// Anthropic returns the configuration of an Anthropic backend.
func (b BackendConfig) Anthropic() anthropic.Config {
	return anthropic.Config{
		Name:         b.Name,
		APIKey:       b.APIKey,
		BaseURL:      b.BaseURL,
		DefaultModel: b.DefaultModel,
		MaxTokens:    b.MaxTokens,
	}
}

// OpenAI returns the configuration of an OpenAI-compatible backend.
func (b BackendConfig) OpenAI() openai.Config {
	return openai.Config{
		Name:         b.Name,
		APIKey:       b.APIKey,
		BaseURL:      b.BaseURL,
		DefaultModel: b.DefaultModel,
		MaxTokens:    b.MaxTokens,
	}
}

// DatabaseConfig selects the conversation store.
type DatabaseConfig struct {
	// Driver is "memory" (default), "pgx" or "postgres" (database/sql).
	Driver string `yaml:"driver"`

	// URL is the PostgreSQL connection string.
	URL string `yaml:"url"`

	// MaxConns bounds the pgx pool. Zero keeps the pgxpool default.
	MaxConns int32 `yaml:"max_conns"`
}

// Load reads, expands environment variables in, and parses the file at
// path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes a single YAML document, applies defaults and validates.
// Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ApplyDefaults fills in zero values with defaults.
func (f *File) ApplyDefaults() {
	f.Loop.ApplyDefaults()
	f.Filter.ApplyDefaults()
	f.Summarizer.ApplyDefaults()
	f.Estimator.ApplyDefaults()
	f.Executor.ApplyDefaults()
	f.Shell.ApplyDefaults()
	for i := range f.Backends {
		if f.Backends[i].Name == "" {
			f.Backends[i].Name = f.Backends[i].Provider
		}
	}
	if f.Database.Driver == "" {
		f.Database.Driver = DriverMemory
	}
}

// Validate checks every section and the references between them.
func (f *File) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&f.Loop, &f.Filter, &f.Summarizer, &f.Estimator, &f.Executor, &f.Shell,
	} {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	backends := make(map[string]struct{}, len(f.Backends))
	for _, b := range f.Backends {
		switch b.Provider {
		case ProviderAnthropic, ProviderOpenAI:
		default:
			return fmt.Errorf("%w: backend %q has unknown provider %q", ErrInvalidConfig, b.Name, b.Provider)
		}
		if _, dup := backends[b.Name]; dup {
			return fmt.Errorf("%w: duplicate backend %q", ErrInvalidConfig, b.Name)
		}
		backends[b.Name] = struct{}{}
	}

	agents := make(map[string]struct{}, len(f.Agents))
	for _, a := range f.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent without id", ErrInvalidConfig)
		}
		if _, dup := agents[a.ID]; dup {
			return fmt.Errorf("%w: duplicate agent %q", ErrInvalidConfig, a.ID)
		}
		agents[a.ID] = struct{}{}
		if _, ok := backends[a.Backend]; !ok {
			return fmt.Errorf("%w: agent %q uses undeclared backend %q", ErrInvalidConfig, a.ID, a.Backend)
		}
		if a.ContextLimit < 0 || a.MaxOutputTokens < 0 {
			return fmt.Errorf("%w: agent %q has negative token limits", ErrInvalidConfig, a.ID)
		}
	}

	switch f.Database.Driver {
	case DriverMemory:
	case DriverPgx, DriverPostgres:
		if f.Database.URL == "" {
			return fmt.Errorf("%w: database driver %q requires url", ErrInvalidConfig, f.Database.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, f.Database.Driver)
	}
	return nil
}

// Agent returns the agent with the given id.
func (f *File) Agent(id string) (types.Agent, bool) {
	for _, a := range f.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return types.Agent{}, false
}
