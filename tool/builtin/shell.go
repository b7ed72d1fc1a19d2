package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/youssefsiam38/agentloop/tool"
)

// Default values for ShellConfig.
const (
	DefaultShellTimeout   = 30 * time.Second
	DefaultMaxShellTime   = 10 * time.Minute
	DefaultMaxOutputBytes = 64000
	DefaultKillGrace      = 500 * time.Millisecond
)

// ShellToolName is the name the shell tool is exposed under.
const ShellToolName = "shell"

// ShellCategory is the capability category of the shell tool.
const ShellCategory = "shell"

var (
	// ErrCommandDenied is returned when a command matches the deny-list.
	ErrCommandDenied = errors.New("command denied")

	// ErrCommandTimeout is returned when a command outlives its timeout.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrInvalidShellConfig is returned by ShellConfig.Validate.
	ErrInvalidShellConfig = errors.New("invalid shell config")
)

// ShellConfig configures the shell tool.
type ShellConfig struct {
	// DefaultTimeout applies when a call does not set one. Default: 30s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxTimeout caps the timeout a call may request. Default: 10m
	MaxTimeout time.Duration `yaml:"max_timeout"`

	// MaxOutputBytes bounds the captured output. Default: 64000
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// DenyPatterns are regular expressions added to the built-in deny-list.
	DenyPatterns []string `yaml:"deny_patterns"`

	// WorkDir is the working directory of commands. Empty means the
	// process working directory.
	WorkDir string `yaml:"work_dir"`

	// KillGrace is how long to wait for output pipes after the process
	// group has been killed. Default: 500ms
	KillGrace time.Duration `yaml:"kill_grace"`
}

// DefaultShellConfig returns a ShellConfig with default values.
func DefaultShellConfig() *ShellConfig {
	return &ShellConfig{
		DefaultTimeout: DefaultShellTimeout,
		MaxTimeout:     DefaultMaxShellTime,
		MaxOutputBytes: DefaultMaxOutputBytes,
		KillGrace:      DefaultKillGrace,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *ShellConfig) ApplyDefaults() {
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = DefaultShellTimeout
	}
	if c.MaxTimeout == 0 {
		c.MaxTimeout = DefaultMaxShellTime
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.KillGrace == 0 {
		c.KillGrace = DefaultKillGrace
	}
}

// Validate validates the configuration.
func (c *ShellConfig) Validate() error {
	if c.DefaultTimeout < 0 || c.MaxTimeout < 0 {
		return fmt.Errorf("%w: timeouts must be non-negative", ErrInvalidShellConfig)
	}
	if c.DefaultTimeout > c.MaxTimeout {
		return fmt.Errorf("%w: default_timeout (%s) exceeds max_timeout (%s)", ErrInvalidShellConfig, c.DefaultTimeout, c.MaxTimeout)
	}
	if c.MaxOutputBytes < 0 {
		return fmt.Errorf("%w: max_output_bytes must be non-negative, got %d", ErrInvalidShellConfig, c.MaxOutputBytes)
	}
	for _, p := range c.DenyPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: deny pattern %q: %v", ErrInvalidShellConfig, p, err)
		}
	}
	return nil
}

type denyRule struct {
	pattern *regexp.Regexp
	reason  string
}

var defaultDenyRules = []denyRule{
	{regexp.MustCompile(`\brm\s+(-\S+\s+)*(/|/\*|~/?|\$HOME)(\s|;|&|$)`), "delete of a root or home directory"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), "fork bomb"},
	{regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`), "filesystem format"},
	{regexp.MustCompile(`\bdd\b.*\bof=/dev/(sd|hd|nvme|disk|xvd)`), "raw write to a block device"},
	{regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|disk|xvd)`), "redirect to a block device"},
	{regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`), "host power control"},
	{regexp.MustCompile(`\bchmod\s+(-R\s+)?[0-7]*777\s+/(\s|$)`), "world-writable root"},
	{regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`), "piping a download into a shell"},
}

// ShellTool runs commands with /bin/sh -c.
//
// Stdout and stderr are captured into one buffer in the order they are
// written. A command that outlives its timeout is killed together with
// every process it started.
type ShellTool struct {
	config *ShellConfig
	deny   []denyRule
}

// NewShellTool creates a shell tool. A nil config uses defaults.
func NewShellTool(config *ShellConfig) (*ShellTool, error) {
	cfg := DefaultShellConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deny := append([]denyRule(nil), defaultDenyRules...)
	for _, p := range cfg.DenyPatterns {
		deny = append(deny, denyRule{pattern: regexp.MustCompile(p), reason: "matches " + p})
	}

	return &ShellTool{config: cfg, deny: deny}, nil
}

// Name implements tool.Tool.
func (s *ShellTool) Name() string {
	return ShellToolName
}

// Description implements tool.Tool.
func (s *ShellTool) Description() string {
	return "Run a shell command and return its combined stdout and stderr. " +
		"Output is truncated after " + fmt.Sprint(s.config.MaxOutputBytes) + " bytes."
}

// Category implements tool.Categorized.
func (s *ShellTool) Category() string {
	return ShellCategory
}

// InputSchema implements tool.Tool.
func (s *ShellTool) InputSchema() tool.ToolSchema {
	minTimeout := 1.0
	maxTimeout := s.config.MaxTimeout.Seconds()
	minLen := 1
	return tool.ToolSchema{
		Type: "object",
		Properties: map[string]tool.PropertyDef{
			"command": {
				Type:        "string",
				Description: "The command to run with /bin/sh -c",
				MinLength:   &minLen,
			},
			"timeout": {
				Type:        "integer",
				Description: fmt.Sprintf("Timeout in seconds (default %d)", int(s.config.DefaultTimeout.Seconds())),
				Minimum:     &minTimeout,
				Maximum:     &maxTimeout,
			},
		},
		Required: []string{"command"},
	}
}

type shellInput struct {
	Command string `json:"command"`
	Timeout *int   `json:"timeout,omitempty"`
}

// Validate implements tool.Validating.
func (s *ShellTool) Validate(input json.RawMessage) []error {
	var in shellInput
	if err := json.Unmarshal(input, &in); err != nil {
		return []error{fmt.Errorf("invalid input: %v", err)}
	}

	var errs []error
	if strings.TrimSpace(in.Command) == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if in.Timeout != nil {
		max := int(s.config.MaxTimeout.Seconds())
		if *in.Timeout < 1 || *in.Timeout > max {
			errs = append(errs, fmt.Errorf("timeout must be between 1 and %d seconds, got %d", max, *in.Timeout))
		}
	}
	return errs
}

// Check reports whether command is allowed to run.
func (s *ShellTool) Check(command string) error {
	for _, rule := range s.deny {
		if rule.pattern.MatchString(command) {
			return fmt.Errorf("%w: %s", ErrCommandDenied, rule.reason)
		}
	}
	return nil
}

// Execute implements tool.Tool.
func (s *ShellTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in shellInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := s.Check(in.Command); err != nil {
		return "", err
	}

	timeout := s.config.DefaultTimeout
	if in.Timeout != nil && *in.Timeout > 0 {
		timeout = time.Duration(*in.Timeout) * time.Second
	}
	if timeout > s.config.MaxTimeout {
		timeout = s.config.MaxTimeout
	}

	return s.run(ctx, in.Command, timeout)
}

func (s *ShellTool) run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := &limitedBuffer{max: s.config.MaxOutputBytes}
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = s.config.WorkDir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = s.config.KillGrace
	killed := configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start command: %w", err)
	}
	pid := cmd.Process.Pid
	tool.SetMetadata(ctx, "pid", pid)

	err := cmd.Wait()
	killProcessGroup(pid, killed())
	code := exitCode(err)
	tool.SetMetadata(ctx, "exit_code", code)
	if out.Truncated() {
		tool.SetMetadata(ctx, "truncated", true)
	}

	output := out.String()
	switch {
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		return output, &CommandError{
			Err:  fmt.Errorf("%w after %s", ErrCommandTimeout, timeout),
			Code: code,
			PID:  pid,
		}
	case ctx.Err() != nil:
		return output, &CommandError{Err: ctx.Err(), Code: code, PID: pid}
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, &CommandError{
				Err:  fmt.Errorf("command exited with code %d", code),
				Code: code,
				PID:  pid,
			}
		}
		return output, &CommandError{Err: err, Code: code, PID: pid}
	}
	return output, nil
}

// CommandError describes a failed command.
type CommandError struct {
	Err  error
	Code int
	PID  int
}

// Error implements error.
func (e *CommandError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode implements tool.ExitCoder.
func (e *CommandError) ExitCode() int {
	return e.Code
}

// ResultMetadata implements tool.MetadataCarrier.
func (e *CommandError) ResultMetadata() map[string]any {
	return map[string]any{"pid": e.PID, "exit_code": e.Code}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 {
		remaining := b.max - b.buf.Len()
		if remaining <= 0 {
			b.truncated = true
			return len(p), nil
		}
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
			b.truncated = true
			return len(p), nil
		}
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
