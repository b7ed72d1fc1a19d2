package hooks

import (
	"context"
	"encoding/json"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/filter"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

// Logger is the logging interface used by LoggingHooks.
// It is compatible with *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const previewLength = 100

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger  Logger
	verbose bool
}

// NewLoggingHooks creates logging hooks with the provided logger.
// Verbose hooks also log message roles, tool inputs and full outputs at
// debug level.
func NewLoggingHooks(logger Logger, verbose bool) *LoggingHooks {
	return &LoggingHooks{logger: logger, verbose: verbose}
}

// Register attaches every logging hook to r.
func (h *LoggingHooks) Register(r *Registry) {
	r.OnBeforeTurn(h.BeforeTurn)
	r.OnAfterFilter(h.AfterFilter)
	r.OnAfterResponse(h.AfterResponse)
	r.OnToolCall(h.ToolCall)
}

// BeforeTurn logs the start of a turn.
func (h *LoggingHooks) BeforeTurn(ctx context.Context, turn int, messages []*types.Message) error {
	h.logger.Info("turn started", "turn", turn, "messages", len(messages))
	if h.verbose {
		for i, msg := range messages {
			h.logger.Debug("turn message", "turn", turn, "index", i, "role", msg.Role, "tool_calls", len(msg.ToolCalls))
		}
	}
	return nil
}

// AfterFilter logs the pipeline outcome.
func (h *LoggingHooks) AfterFilter(ctx context.Context, turn int, result *filter.Result) error {
	if result == nil {
		return nil
	}
	h.logger.Info("context filtered",
		"turn", turn,
		"strategy", result.StrategyUsed,
		"original", result.OriginalCount,
		"filtered", result.FilteredCount,
		"removed", result.RemovedIDs.Len(),
		"duration_ms", result.DurationMs(),
	)
	if h.verbose && len(result.Metadata) > 0 {
		h.logger.Debug("filter metadata", "turn", turn, "metadata", result.Metadata)
	}
	return nil
}

// AfterResponse logs a backend response.
func (h *LoggingHooks) AfterResponse(ctx context.Context, turn int, response *backend.Response) error {
	if response == nil {
		return nil
	}
	h.logger.Info("backend responded",
		"turn", turn,
		"finish_reason", response.FinishReason,
		"tool_calls", len(response.ToolCalls),
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
	)
	return nil
}

// ToolCall logs tool execution
func (h *LoggingHooks) ToolCall(ctx context.Context, call types.ToolCallRef, result tool.Result) error {
	if !result.Success {
		h.logger.Warn("tool failed", "tool", call.Name, "call_id", call.ID, "error", result.Error)
	} else {
		h.logger.Info("tool succeeded", "tool", call.Name, "call_id", call.ID, "output", preview(result.Output))
	}
	if h.verbose {
		input, _ := json.Marshal(call.Arguments)
		h.logger.Debug("tool call detail", "tool", call.Name, "input", string(input), "output", result.Output, "metadata", result.Metadata)
	}
	return nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "..."
}

// MetricsHooks forwards loop events to a metric callback
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// Register attaches the metric hooks to r.
func (h *MetricsHooks) Register(r *Registry) {
	r.OnAfterFilter(h.AfterFilter)
	r.OnAfterResponse(h.AfterResponse)
	r.OnToolCall(h.ToolCall)
}

// AfterResponse records token usage.
func (h *MetricsHooks) AfterResponse(ctx context.Context, turn int, response *backend.Response) error {
	if response == nil {
		return nil
	}
	h.OnMetric("agent.tokens.input", float64(response.Usage.InputTokens), nil)
	h.OnMetric("agent.tokens.output", float64(response.Usage.OutputTokens), nil)
	h.OnMetric("agent.tokens.total", float64(response.Usage.InputTokens+response.Usage.OutputTokens), nil)
	return nil
}

// ToolCall records tool execution metrics
func (h *MetricsHooks) ToolCall(ctx context.Context, call types.ToolCallRef, result tool.Result) error {
	tags := map[string]string{"tool": call.Name}

	if !result.Success {
		h.OnMetric("agent.tool.error", 1, tags)
	} else {
		h.OnMetric("agent.tool.success", 1, tags)
	}

	return nil
}

// AfterFilter records how many messages the pipeline removed.
func (h *MetricsHooks) AfterFilter(ctx context.Context, turn int, result *filter.Result) error {
	if result == nil {
		return nil
	}
	tags := map[string]string{"strategy": result.StrategyUsed}

	h.OnMetric("agent.filter.original_messages", float64(result.OriginalCount), tags)
	h.OnMetric("agent.filter.filtered_messages", float64(result.FilteredCount), tags)
	h.OnMetric("agent.filter.removed_messages", float64(result.RemovedIDs.Len()), tags)

	return nil
}
