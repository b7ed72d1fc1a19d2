package agentloop

import (
	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusCompleted means the backend answered without tool calls.
	StatusCompleted Status = "completed"

	// StatusToolError means a tool call failed under PolicyStop.
	StatusToolError Status = "tool_error"

	// StatusError means a backend call, a hook, the store or a panic ended
	// the run.
	StatusError Status = "error"

	// StatusMaxTurnsReached means the turn limit was hit.
	StatusMaxTurnsReached Status = "max_turns_reached"

	// StatusCancelled means ctx was cancelled before the run finished.
	StatusCancelled Status = "cancelled"
)

// ToolLogEntry records one executed tool call.
type ToolLogEntry struct {
	Turn   int               `json:"turn"`
	Call   types.ToolCallRef `json:"call"`
	Result tool.Result       `json:"result"`
}

// Result is the outcome of Loop.Run.
type Result struct {
	Status Status `json:"status"`

	// LastResponse is the most recent backend response, nil if none.
	LastResponse *backend.Response `json:"last_response,omitempty"`

	// Messages is the unfiltered conversation after the run, including
	// the messages added by it.
	Messages []*types.Message `json:"messages"`

	// TurnsExecuted counts backend calls that were attempted.
	TurnsExecuted int `json:"turns_executed"`

	// ToolResults lists every executed tool call in order.
	ToolResults []ToolLogEntry `json:"tool_results"`

	// Usage sums token usage over all turns.
	Usage backend.Usage `json:"usage"`

	// Err describes why the run did not complete; nil on StatusCompleted.
	// It is a *LoopError.
	Err error `json:"-"`
}

// Text returns the content of the last response, or "".
func (r *Result) Text() string {
	if r == nil || r.LastResponse == nil {
		return ""
	}
	return r.LastResponse.Content
}

// OK reports whether the run completed.
func (r *Result) OK() bool {
	return r != nil && r.Status == StatusCompleted
}
