package compaction

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/agentloop/types"
)

// Sentinel errors for summarization.
var (
	// ErrInvalidConfig indicates invalid compaction configuration.
	ErrInvalidConfig = errors.New("invalid compaction configuration")

	// ErrInsufficientMessages indicates fewer messages than MinMessages.
	ErrInsufficientMessages = errors.New("insufficient messages to summarize")

	// ErrNoConversation indicates no conversation handle was bound.
	ErrNoConversation = errors.New("no conversation to summarize")

	// ErrAPIFailure indicates the backend call failed.
	ErrAPIFailure = errors.New("summarization backend call failed")

	// ErrEmptyResponse indicates the backend returned blank text.
	ErrEmptyResponse = errors.New("summarization returned an empty response")

	// ErrStorage indicates a store operation failed.
	ErrStorage = errors.New("summary storage failed")

	// ErrRangeConflict indicates the range would overlap a completed summary.
	ErrRangeConflict = errors.New("summary range overlaps a completed summary")
)

// ErrorKind classifies a SummarizationError.
type ErrorKind string

const (
	KindInsufficientMessages ErrorKind = "insufficient_messages"
	KindNoConversation       ErrorKind = "no_conversation"
	KindAPIFailure           ErrorKind = "api_failure"
	KindEmptyResponse        ErrorKind = "empty_response"
	KindStorage              ErrorKind = "storage"
	KindRangeConflict        ErrorKind = "range_conflict"
)

// Sentinel returns the sentinel error matching the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindInsufficientMessages:
		return ErrInsufficientMessages
	case KindNoConversation:
		return ErrNoConversation
	case KindAPIFailure:
		return ErrAPIFailure
	case KindEmptyResponse:
		return ErrEmptyResponse
	case KindStorage:
		return ErrStorage
	case KindRangeConflict:
		return ErrRangeConflict
	default:
		return nil
	}
}

// SummarizationError is the failure half of a Summarizer call.
// Every error returned by Summarize and GetOrCreate has this type.
type SummarizationError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Op is the operation that failed (e.g., "Summarize", "GetOrCreate")
	Op string

	// ConversationID is the conversation if one was bound
	ConversationID string

	// Err is the underlying error
	Err error

	// Summary is the failed summary record, if one was built
	Summary *types.ConversationSummary

	// Context holds additional key-value pairs for debugging
	Context map[string]any
}

// Error returns a formatted error message.
func (e *SummarizationError) Error() string {
	msg := fmt.Sprintf("summarization %s failed (%s)", e.Op, e.Kind)
	if e.ConversationID != "" {
		msg += fmt.Sprintf(" for conversation %s", e.ConversationID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *SummarizationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *SummarizationError) Is(target error) bool {
	sentinel := e.Kind.Sentinel()
	return sentinel != nil && target == sentinel
}

// NewSummarizationError creates a SummarizationError of the given kind.
func NewSummarizationError(kind ErrorKind, op string, err error) *SummarizationError {
	return &SummarizationError{
		Kind:    kind,
		Op:      op,
		Err:     err,
		Context: make(map[string]any),
	}
}

// WithConversation sets the conversation ID on the error and returns the error for chaining.
func (e *SummarizationError) WithConversation(conversationID string) *SummarizationError {
	e.ConversationID = conversationID
	return e
}

// WithSummary attaches the failed summary record and returns the error for chaining.
func (e *SummarizationError) WithSummary(summary *types.ConversationSummary) *SummarizationError {
	e.Summary = summary
	return e
}

// WithContext adds a key-value pair to the error context and returns the error for chaining.
func (e *SummarizationError) WithContext(key string, value any) *SummarizationError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// AsSummarizationError returns err as a *SummarizationError, wrapping
// unknown errors as KindAPIFailure. A nil err returns nil.
func AsSummarizationError(err error) *SummarizationError {
	if err == nil {
		return nil
	}
	var se *SummarizationError
	if errors.As(err, &se) {
		return se
	}
	return NewSummarizationError(KindAPIFailure, "Summarize", err)
}
