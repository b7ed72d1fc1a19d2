package pgxv5

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/internal/testutil"
	"github.com/youssefsiam38/agentloop/types"
)

func TestIntegration_Store_MessageOperations(t *testing.T) {
	testutil.RequireIntegration(t)

	db := testutil.NewTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	store := New(db.Pool).GetStore()
	conversationID := uuid.New().String()

	call := types.ToolCallRef{ID: "call_1", Name: "shell", Arguments: map[string]any{"command": "ls"}}
	messages := []*types.Message{
		types.NewSystemMessage("be helpful"),
		types.NewUserMessage("list files"),
		types.NewAssistantMessage("", call),
		types.NewToolMessage("call_1", "shell", "a.txt").WithMetadata(types.MetadataToolError, false),
	}

	for i, msg := range messages {
		pos, err := store.AppendMessage(ctx, conversationID, msg)
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		if pos != i {
			t.Errorf("Expected position %d, got %d", i, pos)
		}
	}

	got, err := store.GetMessages(ctx, conversationID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(got))
	}
	if got[2].ToolCalls[0].Arguments["command"] != "ls" {
		t.Errorf("Tool call arguments not round-tripped: %+v", got[2].ToolCalls)
	}
	if got[3].ToolCallID != "call_1" || got[3].Name != "shell" {
		t.Errorf("Tool message not round-tripped: %+v", got[3])
	}

	positions, err := store.GetMessagePositions(ctx, conversationID)
	if err != nil {
		t.Fatalf("GetMessagePositions failed: %v", err)
	}
	if positions[1].MessageID != messages[1].ID || positions[1].Role != types.RoleUser {
		t.Errorf("Unexpected position mapping: %+v", positions[1])
	}

	if err := store.MarkSummarized(ctx, conversationID, []string{messages[1].ID}, "sum-1"); err != nil {
		t.Fatalf("MarkSummarized failed: %v", err)
	}
	got, _ = store.GetMessages(ctx, conversationID)
	if got[1].SummaryID != "sum-1" || got[2].SummaryID != "" {
		t.Errorf("Unexpected summary ids: %q %q", got[1].SummaryID, got[2].SummaryID)
	}
}

func TestIntegration_Store_SummaryLifecycle(t *testing.T) {
	testutil.RequireIntegration(t)

	db := testutil.NewTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	store := New(db.Pool).GetStore()
	conversationID := uuid.New().String()

	summary := &types.ConversationSummary{
		ConversationID:       conversationID,
		FromPosition:         0,
		ToPosition:           9,
		SummarizedMessageIDs: []string{"m0", "m1"},
		Status:               types.SummaryPending,
	}

	err := store.InTx(ctx, func(ctx context.Context) error {
		if err := store.CreateSummary(ctx, summary); err != nil {
			return err
		}
		if err := summary.Start(); err != nil {
			return err
		}
		if err := summary.Complete("## Goals\nship it", 5); err != nil {
			return err
		}
		return store.UpdateSummary(ctx, summary)
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}

	summaries, err := store.ListSummaries(ctx, conversationID)
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].Status != types.SummaryCompleted || summaries[0].CompletedAt == nil {
		t.Errorf("Unexpected summary: %+v", summaries[0])
	}
	if len(summaries[0].SummarizedMessageIDs) != 2 {
		t.Errorf("Expected 2 summarized ids, got %v", summaries[0].SummarizedMessageIDs)
	}

	missing := &types.ConversationSummary{ID: uuid.New().String(), Status: types.SummaryFailed}
	if err := store.UpdateSummary(ctx, missing); !errors.Is(err, driver.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_Store_InTxRollback(t *testing.T) {
	testutil.RequireIntegration(t)

	db := testutil.NewTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	store := New(db.Pool).GetStore()
	conversationID := uuid.New().String()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context) error {
		if _, err := store.AppendMessage(ctx, conversationID, types.NewUserMessage("lost")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	got, err := store.GetMessages(ctx, conversationID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected rollback to discard the message, got %d messages", len(got))
	}
}
