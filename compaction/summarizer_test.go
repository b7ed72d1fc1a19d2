package compaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/driver/memory"
	"github.com/youssefsiam38/agentloop/internal/metrics"
	"github.com/youssefsiam38/agentloop/internal/testutil"
	"github.com/youssefsiam38/agentloop/types"
)

const summaryText = `## Request and Intent
The user wants a weather report.

## Key Facts
None`

func newTestSummarizer(t *testing.T, config *Config, steps ...testutil.Step) (*Summarizer, *memory.Store, *testutil.ScriptedBackend) {
	t.Helper()
	store := memory.New()
	sb := testutil.NewScriptedBackend("scripted", steps...)
	s := NewSummarizer(backend.NewRegistry(sb), store, nil, config, nil)
	return s, store, sb
}

// seed stores a system message followed by n conversation messages and
// returns the stored list.
func seed(t *testing.T, store *memory.Store, conversationID string, n int) []*types.Message {
	t.Helper()
	ctx := context.Background()

	msgs := append([]*types.Message{types.NewSystemMessage("You are helpful.")}, testutil.Conversation(n, 40)...)
	for _, msg := range msgs {
		if _, err := store.AppendMessage(ctx, conversationID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	stored, err := store.GetMessages(ctx, conversationID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	return stored
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	var serr *SummarizationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SummarizationError, got %T: %v", err, err)
	}
	return serr.Kind
}

func TestSummarizer_Preconditions(t *testing.T) {
	s, store, sb := newTestSummarizer(t, nil, testutil.Text(summaryText))
	msgs := seed(t, store, "conv", 10)
	opts := Options{Backend: "scripted"}

	tests := []struct {
		name     string
		conv     *types.Conversation
		messages []*types.Message
		kind     ErrorKind
		sentinel error
	}{
		{
			name:     "nil conversation",
			conv:     nil,
			messages: msgs[1:7],
			kind:     KindNoConversation,
			sentinel: ErrNoConversation,
		},
		{
			name:     "empty conversation id",
			conv:     &types.Conversation{},
			messages: msgs[1:7],
			kind:     KindNoConversation,
			sentinel: ErrNoConversation,
		},
		{
			name:     "too few messages",
			conv:     &types.Conversation{ID: "conv"},
			messages: msgs[1:4],
			kind:     KindInsufficientMessages,
			sentinel: ErrInsufficientMessages,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := s.Summarize(context.Background(), tt.conv, tt.messages, opts)
			if summary != nil {
				t.Errorf("expected no summary, got %+v", summary)
			}
			if got := kindOf(t, err); got != tt.kind {
				t.Errorf("kind = %s, want %s", got, tt.kind)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}
		})
	}

	if sb.Calls() != 0 {
		t.Errorf("backend called %d times, want 0", sb.Calls())
	}
}

func TestSummarizer_Summarize(t *testing.T) {
	ctx := context.Background()
	s, store, sb := newTestSummarizer(t, nil, testutil.Text("  "+summaryText+"\n"))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s.SetMetrics(m)

	msgs := seed(t, store, "conv", 10)
	conv := &types.Conversation{ID: "conv", AgentID: "agent"}

	summary, err := s.Summarize(ctx, conv, msgs[1:7], Options{Backend: "scripted", Model: "small"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if summary.Status != types.SummaryCompleted {
		t.Errorf("status = %s, want completed", summary.Status)
	}
	if summary.Content != summaryText {
		t.Errorf("content not trimmed: %q", summary.Content)
	}
	if summary.FromPosition != 1 || summary.ToPosition != 6 {
		t.Errorf("range = %d..%d, want 1..6", summary.FromPosition, summary.ToPosition)
	}
	if summary.BackendUsed != "scripted" || summary.ModelUsed != "small" {
		t.Errorf("backend/model = %s/%s", summary.BackendUsed, summary.ModelUsed)
	}
	if len(summary.SummarizedMessageIDs) != 6 || summary.SummarizedMessageIDs[0] != msgs[1].ID {
		t.Errorf("unexpected summarized ids: %v", summary.SummarizedMessageIDs)
	}
	if summary.TokenCount == 0 || summary.OriginalTokenCount == 0 {
		t.Errorf("token counts not set: %d / %d", summary.TokenCount, summary.OriginalTokenCount)
	}
	sections, _ := summary.Metadata[MetadataSections].([]string)
	if len(sections) != 2 || sections[0] != "Request and Intent" || sections[1] != "Key Facts" {
		t.Errorf("sections = %v", summary.Metadata[MetadataSections])
	}
	if _, ok := summary.Metadata[MetadataPositionFallback]; ok {
		t.Error("position fallback should not be set when messages match")
	}

	// Backend request is a system instruction plus the rendered conversation.
	reqs := sb.Requests()
	if len(reqs) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if len(req.Messages) != 2 || req.Messages[0].Role != types.RoleSystem || req.Messages[1].Role != types.RoleUser {
		t.Fatalf("unexpected request messages: %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "1024 tokens") {
		t.Errorf("system prompt missing target tokens: %q", req.Messages[0].Content)
	}
	if !strings.Contains(req.Messages[1].Content, "User: message 0") {
		t.Errorf("user prompt missing rendered messages: %q", req.Messages[1].Content)
	}
	if req.Model != "small" || req.MaxTokens != DefaultMaxTokens {
		t.Errorf("model/max tokens = %s/%d", req.Model, req.MaxTokens)
	}

	// Persisted and tagged
	list, _ := store.ListSummaries(ctx, "conv")
	if len(list) != 1 || list[0].ID != summary.ID {
		t.Fatalf("expected the summary to be stored, got %+v", list)
	}
	stored, _ := store.GetMessages(ctx, "conv")
	for i, msg := range stored {
		tagged := msg.SummaryID == summary.ID
		if want := i >= 1 && i <= 6; tagged != want {
			t.Errorf("message %d tagged = %v, want %v", i, tagged, want)
		}
	}

	if got := promtest.ToFloat64(m.Summaries.WithLabelValues("scripted", "completed")); got != 1 {
		t.Errorf("completed summaries metric = %v, want 1", got)
	}
}

func TestSummarizer_PositionMatching(t *testing.T) {
	ctx := context.Background()

	t.Run("by role and content", func(t *testing.T) {
		s, store, _ := newTestSummarizer(t, nil, testutil.Text(summaryText))
		msgs := seed(t, store, "conv", 10)

		// Same content under new ids
		copies := make([]*types.Message, 0, 5)
		for _, msg := range msgs[3:8] {
			c := msg.Clone()
			c.ID = "copy-" + msg.ID
			copies = append(copies, c)
		}

		summary, err := s.Summarize(ctx, &types.Conversation{ID: "conv"}, copies, Options{Backend: "scripted"})
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if summary.FromPosition != 3 || summary.ToPosition != 7 {
			t.Errorf("range = %d..%d, want 3..7", summary.FromPosition, summary.ToPosition)
		}
	})

	t.Run("sequential fallback", func(t *testing.T) {
		s, store, _ := newTestSummarizer(t, nil, testutil.Text(summaryText))
		seed(t, store, "conv", 10)

		unknown := testutil.Conversation(5, 30)
		for _, msg := range unknown {
			msg.Content = "never stored " + msg.Content
		}

		summary, err := s.Summarize(ctx, &types.Conversation{ID: "conv"}, unknown, Options{Backend: "scripted"})
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if summary.FromPosition != 0 || summary.ToPosition != 4 {
			t.Errorf("range = %d..%d, want 0..4", summary.FromPosition, summary.ToPosition)
		}
		if summary.Metadata[MetadataPositionFallback] != true {
			t.Error("expected position_fallback metadata")
		}
	})
}

func TestSummarizer_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		config     *Config
		step       testutil.Step
		backend    string
		kind       ErrorKind
		sentinel   error
		wantStored int
	}{
		{
			name:     "backend error",
			step:     testutil.Fail(boom),
			backend:  "scripted",
			kind:     KindAPIFailure,
			sentinel: ErrAPIFailure,
		},
		{
			name:     "blank response",
			step:     testutil.Text(" \n\t "),
			backend:  "scripted",
			kind:     KindEmptyResponse,
			sentinel: ErrEmptyResponse,
		},
		{
			name:     "unknown backend",
			step:     testutil.Text(summaryText),
			backend:  "missing",
			kind:     KindAPIFailure,
			sentinel: backend.ErrUnknownBackend,
		},
		{
			name:       "backend error recorded",
			config:     &Config{RecordFailures: true},
			step:       testutil.Fail(boom),
			backend:    "scripted",
			kind:       KindAPIFailure,
			sentinel:   boom,
			wantStored: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, store, _ := newTestSummarizer(t, tt.config, tt.step)
			msgs := seed(t, store, "conv", 10)

			summary, err := s.Summarize(ctx, &types.Conversation{ID: "conv"}, msgs[1:7], Options{Backend: tt.backend})
			if summary != nil {
				t.Fatalf("expected no summary, got %+v", summary)
			}
			if got := kindOf(t, err); got != tt.kind {
				t.Errorf("kind = %s, want %s", got, tt.kind)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}

			all := store.AllSummaries("conv")
			if len(all) != tt.wantStored {
				t.Fatalf("stored summaries = %d, want %d", len(all), tt.wantStored)
			}
			if tt.wantStored > 0 && (all[0].Status != types.SummaryFailed || all[0].ErrorMessage != "boom") {
				t.Errorf("unexpected failed summary: %+v", all[0])
			}

			stored, _ := store.GetMessages(ctx, "conv")
			for _, msg := range stored {
				if msg.SummaryID != "" {
					t.Errorf("message %s tagged after a failure", msg.ID)
				}
			}
		})
	}
}

func TestSummarizer_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	s, store, sb := newTestSummarizer(t, nil,
		testutil.Text(summaryText),
		testutil.Text("## Request and Intent\nExtended."),
	)
	msgs := seed(t, store, "conv", 12)
	conv := &types.Conversation{ID: "conv"}
	opts := Options{Backend: "scripted"}

	first, err := s.GetOrCreate(ctx, conv, msgs[1:7], opts)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// Same range and any sub-range reuse the stored summary.
	for _, rng := range [][2]int{{1, 7}, {2, 7}} {
		again, err := s.GetOrCreate(ctx, conv, msgs[rng[0]:rng[1]], Options{Backend: "scripted", MinMessages: 1})
		if err != nil {
			t.Fatalf("GetOrCreate reuse: %v", err)
		}
		if again.ID != first.ID {
			t.Errorf("range %v: expected reuse of %s, got %s", rng, first.ID, again.ID)
		}
	}
	if sb.Calls() != 1 {
		t.Fatalf("backend calls = %d, want 1", sb.Calls())
	}

	// A longer range summarizes only the uncovered tail with the earlier
	// summary as context.
	second, err := s.GetOrCreate(ctx, conv, msgs[1:11], opts)
	if err != nil {
		t.Fatalf("GetOrCreate extend: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a new summary")
	}
	if second.FromPosition != 7 || second.ToPosition != 10 {
		t.Errorf("range = %d..%d, want 7..10", second.FromPosition, second.ToPosition)
	}
	if len(second.SummarizedMessageIDs) != 4 {
		t.Errorf("summarized ids = %d, want 4", len(second.SummarizedMessageIDs))
	}
	if second.Metadata[MetadataPriorSummaryID] != first.ID {
		t.Errorf("prior summary id = %v, want %s", second.Metadata[MetadataPriorSummaryID], first.ID)
	}

	reqs := sb.Requests()
	prompt := reqs[1].Messages[1].Content
	if !strings.Contains(prompt, "<previous_context>") || !strings.Contains(prompt, "The user wants a weather report.") {
		t.Errorf("extension prompt missing previous context: %q", prompt)
	}

	list, _ := store.ListSummaries(ctx, "conv")
	if len(list) != 2 {
		t.Fatalf("stored summaries = %d, want 2", len(list))
	}
	if list[0].Overlaps(list[1].FromPosition, list[1].ToPosition) {
		t.Errorf("stored ranges overlap: %d..%d and %d..%d",
			list[0].FromPosition, list[0].ToPosition, list[1].FromPosition, list[1].ToPosition)
	}
}

func TestSummarizer_GetOrCreate_Chain(t *testing.T) {
	ctx := context.Background()
	s, store, sb := newTestSummarizer(t, nil,
		testutil.Text(summaryText),
		testutil.Text("## Request and Intent\nSecond part."),
		testutil.Text("## Request and Intent\nThird part."),
	)
	msgs := seed(t, store, "conv", 26)
	conv := &types.Conversation{ID: "conv"}
	opts := Options{Backend: "scripted"}

	var got []*types.ConversationSummary
	for _, end := range []int{21, 23, 25} {
		summary, err := s.GetOrCreate(ctx, conv, msgs[1:end], opts)
		if err != nil {
			t.Fatalf("GetOrCreate(1..%d): %v", end-1, err)
		}
		got = append(got, summary)
	}

	want := [][2]int{{1, 20}, {21, 22}, {23, 24}}
	for i, summary := range got {
		if summary.FromPosition != want[i][0] || summary.ToPosition != want[i][1] {
			t.Errorf("step %d: range = %d..%d, want %d..%d",
				i, summary.FromPosition, summary.ToPosition, want[i][0], want[i][1])
		}
	}
	if got[2].Metadata[MetadataPriorSummaryID] != got[1].ID {
		t.Errorf("prior summary id = %v, want %s", got[2].Metadata[MetadataPriorSummaryID], got[1].ID)
	}

	prompt := sb.Requests()[2].Messages[1].Content
	if !strings.Contains(prompt, "The user wants a weather report.") || !strings.Contains(prompt, "Second part.") {
		t.Errorf("third prompt missing earlier summaries: %q", prompt)
	}

	list, _ := store.ListSummaries(ctx, "conv")
	if len(list) != 3 {
		t.Fatalf("stored summaries = %d, want 3", len(list))
	}
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			if list[i].Overlaps(list[j].FromPosition, list[j].ToPosition) {
				t.Errorf("stored ranges overlap: %d..%d and %d..%d",
					list[i].FromPosition, list[i].ToPosition, list[j].FromPosition, list[j].ToPosition)
			}
		}
	}

	// A range the chain already covers reuses its last link.
	again, err := s.GetOrCreate(ctx, conv, msgs[1:25], opts)
	if err != nil {
		t.Fatalf("GetOrCreate covered: %v", err)
	}
	if again.ID != got[2].ID {
		t.Errorf("expected reuse of %s, got %s", got[2].ID, again.ID)
	}
	if sb.Calls() != 3 {
		t.Errorf("backend calls = %d, want 3", sb.Calls())
	}
}

func TestSummarizer_GetOrCreate_RangeConflict(t *testing.T) {
	ctx := context.Background()
	s, store, sb := newTestSummarizer(t, nil, testutil.Text(summaryText))
	msgs := seed(t, store, "conv", 20)
	conv := &types.Conversation{ID: "conv"}

	if _, err := s.Summarize(ctx, conv, msgs[8:14], Options{Backend: "scripted"}); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	// 1..19 starts before the stored 8..13 and cannot extend it.
	_, err := s.GetOrCreate(ctx, conv, msgs[1:20], Options{Backend: "scripted"})
	if kind := kindOf(t, err); kind != KindRangeConflict {
		t.Fatalf("kind = %s, want %s", kind, KindRangeConflict)
	}
	if !errors.Is(err, ErrRangeConflict) {
		t.Error("expected ErrRangeConflict")
	}
	if sb.Calls() != 1 {
		t.Errorf("backend calls = %d, want 1", sb.Calls())
	}
	if list, _ := store.ListSummaries(ctx, "conv"); len(list) != 1 {
		t.Errorf("stored summaries = %d, want 1", len(list))
	}
}

func TestSummarizationError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewSummarizationError(KindAPIFailure, "Summarize", cause).
		WithConversation("conv").
		WithContext("attempt", 1)

	want := "summarization Summarize failed (api_failure) for conversation conv: connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrAPIFailure) || !errors.Is(err, cause) {
		t.Error("expected both the kind sentinel and the cause to match")
	}
	if errors.Is(err, ErrEmptyResponse) {
		t.Error("unexpected match of another kind")
	}

	if AsSummarizationError(nil) != nil {
		t.Error("AsSummarizationError(nil) should be nil")
	}
	if got := AsSummarizationError(cause); got.Kind != KindAPIFailure || !errors.Is(got, cause) {
		t.Errorf("unexpected wrap: %+v", got)
	}
	if got := AsSummarizationError(err); got != err {
		t.Error("AsSummarizationError should return the same error")
	}
}
