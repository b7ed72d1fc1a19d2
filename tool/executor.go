package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/youssefsiam38/agentloop/internal/metrics"
	"github.com/youssefsiam38/agentloop/types"
)

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 10 * time.Minute

// Logger is the logging interface used by the executor.
// It is compatible with *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// ExecutorConfig configures the Executor.
type ExecutorConfig struct {
	// Timeout bounds each tool execution. Default: 10m
	Timeout time.Duration `yaml:"timeout"`

	// DisableBuiltins hides built-in tools from AllToolSchemas by default.
	DisableBuiltins bool `yaml:"disable_builtins"`
}

// ApplyDefaults fills in zero values with defaults.
func (c *ExecutorConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate validates the configuration.
func (c *ExecutorConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("executor timeout must be non-negative, got %s", c.Timeout)
	}
	return nil
}

// Result is the uniform outcome of a tool call.
type Result struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Failure returns a failed Result carrying msg.
func Failure(msg string) Result {
	return Result{Success: false, Error: msg, Metadata: map[string]any{}}
}

// Content renders the result as the text of a tool-role message.
func (r Result) Content() string {
	if r.Success {
		return r.Output
	}
	if r.Output == "" {
		return "Error: " + r.Error
	}
	return r.Output + "\nError: " + r.Error
}

// Executor resolves and runs tool calls. Built-in tools are resolved first,
// then the caller-supplied tools. Execute never returns an error or panics;
// every failure becomes a failed Result.
type Executor struct {
	builtins  *Registry
	validator *Validator
	config    ExecutorConfig
	logger    Logger
	metrics   *metrics.Metrics
}

// NewExecutor creates a new tool executor over a fixed set of built-ins.
// builtins may be nil.
func NewExecutor(builtins *Registry, config *ExecutorConfig) *Executor {
	if builtins == nil {
		builtins = NewRegistry()
	}
	cfg := ExecutorConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.ApplyDefaults()

	return &Executor{
		builtins:  builtins,
		validator: NewValidator(),
		config:    cfg,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetMetrics sets the metrics sink.
func (e *Executor) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Builtins returns the built-in registry.
func (e *Executor) Builtins() *Registry {
	return e.builtins
}

// IncludeBuiltins reports whether built-ins are exposed by default.
func (e *Executor) IncludeBuiltins() bool {
	return !e.config.DisableBuiltins
}

// Resolve finds the tool for name: built-ins first, then available.
func (e *Executor) Resolve(name string, available []Tool) (Tool, bool, bool) {
	if t, ok := e.builtins.Get(name); ok {
		return t, true, true
	}
	for _, t := range available {
		if t != nil && t.Name() == name {
			return t, false, true
		}
	}
	return nil, false, false
}

// Execute runs a single tool call.
func (e *Executor) Execute(ctx context.Context, call types.ToolCallRef, available []Tool) (result Result) {
	start := time.Now()

	t, builtin, ok := e.Resolve(call.Name, available)
	if !ok {
		err := &UnknownToolError{Name: call.Name}
		e.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
		e.metrics.ToolExecuted(call.Name, false, time.Since(start))
		return Failure(err.Error())
	}

	defer func() {
		if result.Metadata == nil {
			result.Metadata = map[string]any{}
		}
		elapsed := time.Since(start)
		result.Metadata["duration_ms"] = elapsed.Milliseconds()
		result.Metadata["builtin"] = builtin
		e.metrics.ToolExecuted(call.Name, result.Success, elapsed)
		if !result.Success {
			e.logger.Warn("tool execution failed", "tool", call.Name, "call_id", call.ID, "error", result.Error)
		}
	}()

	input, err := encodeArguments(call.Arguments)
	if err != nil {
		return Failure(fmt.Sprintf("invalid arguments: %v", err))
	}

	if reasons := e.validate(t, input); len(reasons) > 0 {
		verr := &ValidationError{Tool: call.Name, Reasons: reasons}
		return Failure(verr.Error())
	}

	execCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	sink := &metadataSink{values: map[string]any{}}
	execCtx = context.WithValue(execCtx, metadataKey{}, sink)

	output, err := e.run(execCtx, t, input)
	if err == nil && execCtx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("%w after %v", ErrToolTimeout, e.config.Timeout)
	}
	if err != nil {
		res := Result{Success: false, Output: output, Error: err.Error(), Metadata: sink.snapshot()}
		var coder ExitCoder
		if errors.As(err, &coder) {
			res.Metadata["exit_code"] = coder.ExitCode()
		}
		mergeMetadata(res.Metadata, err)
		return res
	}

	return Result{Success: true, Output: output, Metadata: sink.snapshot()}
}

// ExecuteAll runs calls one at a time in the order given.
func (e *Executor) ExecuteAll(ctx context.Context, calls []types.ToolCallRef, available []Tool) []Result {
	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = e.Execute(ctx, call, available)
	}
	return results
}

// AllToolSchemas returns the backend-facing tool list: built-ins first when
// includeBuiltins is set, then caller tools. A caller tool whose name or
// category duplicates a built-in is skipped.
func (e *Executor) AllToolSchemas(tools []Tool, includeBuiltins bool) []Definition {
	defs := make([]Definition, 0, len(tools)+e.builtins.Count())

	categories := map[string]struct{}{}
	if includeBuiltins {
		for _, t := range e.builtins.Tools() {
			defs = append(defs, DefinitionOf(t))
		}
		categories = e.builtins.Categories()
	}

	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		seen[d.Name] = struct{}{}
	}

	for _, t := range tools {
		if t == nil {
			continue
		}
		if _, dup := seen[t.Name()]; dup {
			continue
		}
		if c := CategoryOf(t); c != "" {
			if _, dup := categories[c]; dup {
				continue
			}
		}
		seen[t.Name()] = struct{}{}
		defs = append(defs, DefinitionOf(t))
	}

	return defs
}

func (e *Executor) validate(t Tool, input json.RawMessage) []error {
	if v, ok := t.(Validating); ok {
		return v.Validate(input)
	}
	return e.validator.Validate(t.InputSchema(), input)
}

func (e *Executor) run(ctx context.Context, t Tool, input json.RawMessage) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrToolPanicked, r)
		}
	}()
	return t.Execute(ctx, input)
}

func encodeArguments(args map[string]any) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// MetadataCarrier is implemented by errors that attach result metadata.
type MetadataCarrier interface {
	ResultMetadata() map[string]any
}

func mergeMetadata(dst map[string]any, err error) {
	var mc MetadataCarrier
	if errors.As(err, &mc) {
		for k, v := range mc.ResultMetadata() {
			dst[k] = v
		}
	}
}
