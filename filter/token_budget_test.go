package filter

import (
	"context"
	"testing"

	"github.com/youssefsiam38/agentloop/internal/testutil"
	"github.com/youssefsiam38/agentloop/types"
)

// messageSize makes every test message estimate to 125 tokens.
const messageSize = 448

func withSystem(msgs []*types.Message) []*types.Message {
	return append([]*types.Message{types.NewSystemMessage("sys")}, msgs...)
}

func TestTokenBudget_Filter(t *testing.T) {
	conv10 := testutil.Conversation(10, messageSize)
	sys10 := withSystem(conv10)

	exchange := testutil.ToolExchange("c1", "search", testutil.Filler("result", messageSize))
	tools := []*types.Message{
		types.NewUserMessage(testutil.Filler("question", messageSize)),
		exchange[0], // 2 tokens
		exchange[1],
		types.NewUserMessage(testutil.Filler("follow up", messageSize)),
		types.NewAssistantMessage(testutil.Filler("answer", messageSize)),
	}

	tests := []struct {
		name     string
		messages []*types.Message
		params   Params
		removed  []string
	}{
		{
			name:     "everything fits",
			messages: conv10[:4],
			params:   Params{ContextLimit: 1000},
			removed:  nil,
		},
		{
			name:     "oldest removed first",
			messages: conv10,
			params:   Params{ContextLimit: 1000, MaxOutputTokens: 200},
			removed:  testutil.IDs(conv10[:4]),
		},
		{
			name:     "tool definitions count against the budget",
			messages: conv10,
			params:   Params{ContextLimit: 1000, MaxOutputTokens: 200, ToolDefinitionTokens: 125},
			removed:  testutil.IDs(conv10[:5]),
		},
		{
			name:     "leading system message is kept",
			messages: sys10,
			params:   Params{ContextLimit: 1000, MaxOutputTokens: 200},
			removed:  testutil.IDs(sys10[1:5]),
		},
		{
			name:     "non-positive budget keeps only the system message",
			messages: sys10,
			params:   Params{ContextLimit: 100, MaxOutputTokens: 200},
			removed:  testutil.IDs(sys10[1:]),
		},
		{
			name:     "tool result follows its call",
			messages: tools,
			params:   Params{ContextLimit: 376},
			removed:  testutil.IDs(tools[:3]),
		},
	}

	strategy := NewTokenBudget(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := NewFilterContext(tt.messages, tt.params, DefaultContextLimit)
			result := strategy.Filter(context.Background(), fc)

			if result.RemovedIDs.Len() != len(tt.removed) {
				t.Fatalf("removed %d messages, want %d", result.RemovedIDs.Len(), len(tt.removed))
			}
			for _, id := range tt.removed {
				if !result.RemovedIDs.Has(id) {
					t.Errorf("expected %s to be removed", id)
				}
			}
			if result.StrategyUsed != string(StrategyTokenBudget) {
				t.Errorf("StrategyUsed = %q", result.StrategyUsed)
			}
			if result.OriginalCount != len(tt.messages) || result.FilteredCount != len(tt.messages)-len(tt.removed) {
				t.Errorf("counts = %d -> %d", result.OriginalCount, result.FilteredCount)
			}
			if len(result.Messages) != result.FilteredCount {
				t.Errorf("FilteredCount %d does not match %d messages", result.FilteredCount, len(result.Messages))
			}
			if !ChainIntact(result.Messages) {
				t.Error("result breaks tool call chain")
			}

			// Relative order is preserved
			last := -1
			for _, msg := range result.Messages {
				idx := indexOf(tt.messages, msg.ID)
				if idx <= last {
					t.Fatalf("message order changed")
				}
				last = idx
			}
		})
	}
}

func TestTokenBudget_DoesNotModifyInput(t *testing.T) {
	msgs := testutil.Conversation(10, messageSize)
	ids := testutil.IDs(msgs)
	fc := NewFilterContext(msgs, Params{ContextLimit: 500}, DefaultContextLimit)

	NewTokenBudget(nil).Filter(context.Background(), fc)

	if fc.Len() != 10 {
		t.Errorf("FilterContext changed: %d messages", fc.Len())
	}
	for i, msg := range msgs {
		if msg.ID != ids[i] {
			t.Fatal("input slice changed")
		}
	}
}

func TestFilterContext(t *testing.T) {
	agent := types.Agent{ID: "a", ContextLimit: 8000, MaxOutputTokens: 1000}
	msgs := testutil.Conversation(3, 10)

	fc := NewFilterContext(msgs, Params{Agent: agent, ToolDefinitionTokens: 500}, DefaultContextLimit)
	if fc.ContextLimit() != 8000 || fc.MaxOutputTokens() != 1000 || fc.Budget() != 6500 {
		t.Errorf("limit/output/budget = %d/%d/%d", fc.ContextLimit(), fc.MaxOutputTokens(), fc.Budget())
	}

	fc = NewFilterContext(msgs, Params{Agent: types.Agent{}}, 4096)
	if fc.ContextLimit() != 4096 {
		t.Errorf("default context limit not applied: %d", fc.ContextLimit())
	}

	fc = NewFilterContext(msgs, Params{Agent: agent, ContextLimit: 2000, MaxOutputTokens: 100}, DefaultContextLimit)
	if fc.ContextLimit() != 2000 || fc.MaxOutputTokens() != 100 {
		t.Errorf("params should override the agent: %d/%d", fc.ContextLimit(), fc.MaxOutputTokens())
	}

	narrowed := fc.WithMessages(msgs[:1])
	if narrowed.Len() != 1 || fc.Len() != 3 {
		t.Errorf("WithMessages should return a new context: %d/%d", narrowed.Len(), fc.Len())
	}
	if narrowed.ContextLimit() != fc.ContextLimit() {
		t.Error("WithMessages should keep the budget parameters")
	}

	if opts := fc.Options(StrategySummarization); opts == nil {
		t.Error("Options should never be nil")
	}
}

func indexOf(msgs []*types.Message, id string) int {
	for i, msg := range msgs {
		if msg.ID == id {
			return i
		}
	}
	return -1
}
