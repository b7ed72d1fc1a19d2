package types

import (
	"errors"
	"testing"
)

func TestSummaryStatus_IsValid(t *testing.T) {
	tests := []struct {
		status SummaryStatus
		valid  bool
	}{
		{SummaryPending, true},
		{SummaryProcessing, true},
		{SummaryCompleted, true},
		{SummaryFailed, true},
		{SummaryStatus("archived"), false},
		{SummaryStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestSummaryStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from SummaryStatus
		to   SummaryStatus
		want bool
	}{
		{SummaryPending, SummaryProcessing, true},
		{SummaryPending, SummaryFailed, true},
		{SummaryPending, SummaryCompleted, false},
		{SummaryProcessing, SummaryCompleted, true},
		{SummaryProcessing, SummaryFailed, true},
		{SummaryProcessing, SummaryProcessing, false},
		{SummaryCompleted, SummaryFailed, false},
		{SummaryFailed, SummaryCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummaryStatus_Scan(t *testing.T) {
	var s SummaryStatus
	if err := s.Scan([]byte("completed")); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if s != SummaryCompleted {
		t.Errorf("Scan() = %q, want %q", s, SummaryCompleted)
	}
	if err := s.Scan("bogus"); err == nil {
		t.Error("Scan() expected error for invalid status")
	}
	if err := s.Scan(42); err == nil {
		t.Error("Scan() expected error for non-string source")
	}
}

func TestConversationSummary_Lifecycle(t *testing.T) {
	s := &ConversationSummary{ID: "s1", Status: SummaryPending}

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Complete("short", 10); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if s.Status != SummaryCompleted || s.Content != "short" || s.CompletedAt == nil {
		t.Fatalf("unexpected summary after Complete: %+v", s)
	}

	err := s.Fail(errors.New("late failure"))
	if !errors.Is(err, ErrSummaryFinalized) {
		t.Errorf("Fail() after completion error = %v, want ErrSummaryFinalized", err)
	}
	if s.Status != SummaryCompleted {
		t.Errorf("status changed after terminal state: %s", s.Status)
	}
}

func TestConversationSummary_Ranges(t *testing.T) {
	s := &ConversationSummary{FromPosition: 2, ToPosition: 10}

	if !s.Contains(2, 10) || !s.Contains(4, 8) {
		t.Error("Contains() should cover inner ranges")
	}
	if s.Contains(1, 5) || s.Contains(5, 11) {
		t.Error("Contains() should reject ranges extending outside")
	}
	if !s.Overlaps(9, 20) || s.Overlaps(11, 20) {
		t.Error("Overlaps() mismatch")
	}
}

func TestMessage_WithIsImmutable(t *testing.T) {
	orig := NewAssistantMessage("hi", ToolCallRef{ID: "c1", Name: "shell", Arguments: map[string]any{"command": "ls"}})
	orig = orig.WithTokenCount(7)

	changed := orig.WithContent("bye").WithSummaryID("s1").WithThinking("weighing options")
	changed.ToolCalls[0].Arguments["command"] = "pwd"

	if orig.Content != "hi" || orig.SummaryID != "" || orig.Thinking != "" || orig.TokenCount != 7 {
		t.Errorf("original mutated: %+v", orig)
	}
	if orig.ToolCalls[0].Arguments["command"] != "ls" {
		t.Error("tool call arguments shared between copies")
	}
	if changed.Thinking != "weighing options" {
		t.Errorf("Thinking = %q", changed.Thinking)
	}
	if changed.TokenCount != 0 {
		t.Errorf("WithContent should drop token count, got %d", changed.TokenCount)
	}
	if changed.ID != orig.ID {
		t.Error("With* must keep the message id")
	}
}
