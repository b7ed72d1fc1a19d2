package agentloop

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the loop configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMaxTurns is recorded on a result that stopped at the turn limit
	ErrMaxTurns = errors.New("max turns reached")

	// ErrToolFailed is recorded on a result stopped by a failed tool call
	ErrToolFailed = errors.New("tool execution failed")

	// ErrPanic is recorded when a turn panicked
	ErrPanic = errors.New("turn panicked")

	// ErrMissingDependency is returned by New when a required component is nil
	ErrMissingDependency = errors.New("missing dependency")
)

// Phase names the part of a turn that failed.
type Phase string

const (
	PhaseLoad    Phase = "load"
	PhaseFilter  Phase = "filter"
	PhaseBackend Phase = "backend"
	PhaseTool    Phase = "tool"
	PhaseHook    Phase = "hook"
	PhaseStore   Phase = "store"
	PhasePanic   Phase = "panic"
	PhaseLimit   Phase = "limit"
	PhaseCancel  Phase = "cancel"
)

// LoopError records where a run stopped.
type LoopError struct {
	Phase          Phase          // Part of the turn that failed
	Turn           int            // 1-based turn number, 0 before the first turn
	ConversationID string         // Conversation ID if applicable
	Err            error          // Underlying error
	Context        map[string]any // Additional context
}

// Error implements the error interface
func (e *LoopError) Error() string {
	if e.ConversationID != "" {
		return fmt.Sprintf("%s failed at turn %d (conversation=%s): %v", e.Phase, e.Turn, e.ConversationID, e.Err)
	}
	return fmt.Sprintf("%s failed at turn %d: %v", e.Phase, e.Turn, e.Err)
}

// Unwrap returns the underlying error
func (e *LoopError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *LoopError) WithContext(key string, value any) *LoopError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewLoopError creates a new LoopError
func NewLoopError(phase Phase, turn int, err error) *LoopError {
	return &LoopError{
		Phase: phase,
		Turn:  turn,
		Err:   err,
	}
}
