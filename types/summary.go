package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// SummaryStatus is the lifecycle state of a ConversationSummary.
//
//	pending -> processing   (backend call started)
//	pending -> failed
//	processing -> completed (summary text stored)
//	processing -> failed    (backend or storage error)
//
// Terminal states (completed, failed) cannot transition further.
type SummaryStatus string

const (
	SummaryPending    SummaryStatus = "pending"
	SummaryProcessing SummaryStatus = "processing"
	SummaryCompleted  SummaryStatus = "completed"
	SummaryFailed     SummaryStatus = "failed"
)

// ErrSummaryFinalized is returned when a terminal summary is modified.
var ErrSummaryFinalized = errors.New("summary already finalized")

// IsValid returns true if the status is a known SummaryStatus value.
func (s SummaryStatus) IsValid() bool {
	switch s {
	case SummaryPending, SummaryProcessing, SummaryCompleted, SummaryFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed and failed.
func (s SummaryStatus) IsTerminal() bool {
	return s == SummaryCompleted || s == SummaryFailed
}

// CanTransitionTo returns true if moving from s to target is allowed.
func (s SummaryStatus) CanTransitionTo(target SummaryStatus) bool {
	if s.IsTerminal() || s == target {
		return false
	}
	switch s {
	case SummaryPending:
		return target == SummaryProcessing || target == SummaryFailed
	case SummaryProcessing:
		return target == SummaryCompleted || target == SummaryFailed
	}
	return false
}

// String returns the string representation of the status.
func (s SummaryStatus) String() string {
	return string(s)
}

// Value implements driver.Valuer for database serialization.
func (s SummaryStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner for database deserialization.
func (s *SummaryStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("summary status: cannot scan type %T", src)
	}
	status := SummaryStatus(raw)
	if !status.IsValid() {
		return fmt.Errorf("summary status: invalid value %q", raw)
	}
	*s = status
	return nil
}

// ConversationSummary records the compression of a contiguous message range.
type ConversationSummary struct {
	ID                   string         `json:"id"`
	ConversationID       string         `json:"conversation_id"`
	FromPosition         int            `json:"from_position"`
	ToPosition           int            `json:"to_position"`
	Content              string         `json:"content"`
	TokenCount           int            `json:"token_count"`
	OriginalTokenCount   int            `json:"original_token_count"`
	BackendUsed          string         `json:"backend_used"`
	ModelUsed            string         `json:"model_used"`
	SummarizedMessageIDs []string       `json:"summarized_message_ids"`
	Status               SummaryStatus  `json:"status"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
}

// Contains reports whether the summary's range fully covers [from, to].
func (s *ConversationSummary) Contains(from, to int) bool {
	return s.FromPosition <= from && s.ToPosition >= to
}

// Overlaps reports whether the summary's range intersects [from, to].
func (s *ConversationSummary) Overlaps(from, to int) bool {
	return s.FromPosition <= to && s.ToPosition >= from
}

// CompressionRatio returns summary tokens divided by original tokens.
func (s *ConversationSummary) CompressionRatio() float64 {
	if s.OriginalTokenCount == 0 {
		return 0
	}
	return float64(s.TokenCount) / float64(s.OriginalTokenCount)
}

func (s *ConversationSummary) transition(to SummaryStatus) error {
	if !s.Status.CanTransitionTo(to) {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrSummaryFinalized, s.ID, s.Status)
		}
		return fmt.Errorf("summary %s: invalid transition from %q to %q", s.ID, s.Status, to)
	}
	s.Status = to
	return nil
}

// Start marks the summary as processing.
func (s *ConversationSummary) Start() error {
	return s.transition(SummaryProcessing)
}

// Complete stores the summary text and marks the summary completed.
func (s *ConversationSummary) Complete(content string, tokenCount int) error {
	if err := s.transition(SummaryCompleted); err != nil {
		return err
	}
	now := time.Now()
	s.Content = content
	s.TokenCount = tokenCount
	s.CompletedAt = &now
	return nil
}

// Fail records cause and marks the summary failed.
func (s *ConversationSummary) Fail(cause error) error {
	if err := s.transition(SummaryFailed); err != nil {
		return err
	}
	now := time.Now()
	if cause != nil {
		s.ErrorMessage = cause.Error()
	}
	s.CompletedAt = &now
	return nil
}
