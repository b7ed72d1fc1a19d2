package tool

import (
	"errors"
	"fmt"
	"strings"
)

// Tool error sentinel values for type checking
var (
	// ErrUnknownTool is returned when neither the built-ins nor the caller tools match a name.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidSchema is returned when a tool declares an unusable input schema.
	ErrInvalidSchema = errors.New("invalid tool schema")

	// ErrValidationFailed is the sentinel matched by ValidationError.
	ErrValidationFailed = errors.New("validation failed")

	// ErrToolPanicked is returned when a tool body panics.
	ErrToolPanicked = errors.New("tool panicked")

	// ErrToolTimeout is returned when the executor deadline expires.
	ErrToolTimeout = errors.New("tool execution timed out")
)

// ValidationError carries every reason an input was rejected.
type ValidationError struct {
	Tool    string
	Reasons []error
}

// Error joins the reasons with "; ".
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		parts = append(parts, r.Error())
	}
	return "Validation failed: " + strings.Join(parts, "; ")
}

// Is reports whether the target matches this error type.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Unwrap returns the individual reasons.
func (e *ValidationError) Unwrap() []error {
	return e.Reasons
}

// UnknownToolError reports a tool name that could not be resolved.
type UnknownToolError struct {
	Name string
}

// Error returns "Unknown tool: <name>".
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}

// Is reports whether the target matches this error type.
func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}

// ExitCoder is implemented by errors that carry a process exit status.
type ExitCoder interface {
	ExitCode() int
}
