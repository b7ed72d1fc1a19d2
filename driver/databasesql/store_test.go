package databasesql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/types"
)

// setupMockDB creates a new mock database for testing.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	return db, mock, NewStore(New(db))
}

func TestStore_AppendMessage(t *testing.T) {
	tests := []struct {
		name        string
		msg         *types.Message
		setupMock   func(sqlmock.Sqlmock)
		wantPos     int
		wantErr     bool
		errContains string
	}{
		{
			name: "successful append",
			msg:  types.NewUserMessage("hello"),
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("INSERT INTO agentloop_messages").
					WithArgs(
						sqlmock.AnyArg(), // id
						"conv-1",
						"user",
						"hello",
						"",
						[]byte("[]"),
						"",
						"",
						0,
						"",
						[]byte("{}"),
						sqlmock.AnyArg(), // created_at
					).
					WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(3))
			},
			wantPos: 3,
		},
		{
			name: "database error",
			msg:  types.NewUserMessage("hello"),
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("INSERT INTO agentloop_messages").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:     true,
			errContains: "failed to append message",
		},
		{
			name:        "nil message",
			msg:         nil,
			setupMock:   func(mock sqlmock.Sqlmock) {},
			wantErr:     true,
			errContains: "message is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockDB(t)
			defer db.Close()

			tt.setupMock(mock)

			pos, err := store.AppendMessage(context.Background(), "conv-1", tt.msg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if pos != tt.wantPos {
					t.Errorf("position = %d, want %d", pos, tt.wantPos)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestStore_GetMessages(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "conversation_id", "role", "content", "thinking", "tool_calls", "tool_call_id",
		"name", "token_count", "summary_id", "metadata", "created_at",
	}).
		AddRow("m0", "conv-1", "user", "list files", "", []byte("[]"), "", "", 3, "", []byte("{}"), now).
		AddRow("m1", "conv-1", "assistant", "", "", []byte(`[{"id":"c1","name":"shell","arguments":{"command":"ls"}}]`), "", "", 9, "", []byte("{}"), now).
		AddRow("m2", "conv-1", "tool", "a.txt", "", []byte("[]"), "c1", "shell", 2, "sum-1", []byte(`{"is_error":true}`), now)

	mock.ExpectQuery("SELECT (.+) FROM agentloop_messages").
		WithArgs("conv-1").
		WillReturnRows(rows)

	messages, err := store.GetMessages(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].ToolCalls != nil {
		t.Errorf("empty tool call list should decode to nil")
	}
	if messages[1].ToolCalls[0].Arguments["command"] != "ls" {
		t.Errorf("tool call not decoded: %+v", messages[1].ToolCalls)
	}
	if !messages[2].IsToolError() || messages[2].SummaryID != "sum-1" {
		t.Errorf("tool message not decoded: %+v", messages[2])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_ListSummaries(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "conversation_id", "from_position", "to_position", "content", "token_count",
		"original_token_count", "backend_used", "model_used", "summarized_message_ids",
		"status", "error_message", "metadata", "created_at", "completed_at",
	}).AddRow("s1", "conv-1", 0, 9, "## Goals", 40, 800, "anthropic", "m", "{m0,m1}",
		"completed", "", []byte(`{"sections":["Goals"]}`), now, now)

	mock.ExpectQuery("SELECT (.+) FROM agentloop_summaries").
		WithArgs("conv-1").
		WillReturnRows(rows)

	summaries, err := store.ListSummaries(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.Status != types.SummaryCompleted || s.CompletedAt == nil || len(s.SummarizedMessageIDs) != 2 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if !s.Contains(2, 7) {
		t.Errorf("summary should contain 2..7")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_UpdateSummaryNotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE agentloop_summaries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateSummary(context.Background(), &types.ConversationSummary{ID: "missing"})
	if !errors.Is(err, driver.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_InTx(t *testing.T) {
	tests := []struct {
		name       string
		fnErr      error
		wantCommit bool
	}{
		{name: "commit on success", wantCommit: true},
		{name: "rollback on error", fnErr: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockDB(t)
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectExec("UPDATE agentloop_messages").
				WillReturnResult(sqlmock.NewResult(0, 2))
			if tt.wantCommit {
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := store.InTx(context.Background(), func(ctx context.Context) error {
				if driver.ExecutorFromContext(ctx) == nil {
					t.Error("expected a transaction in context")
				}
				if err := store.MarkSummarized(ctx, "conv-1", []string{"m0", "m1"}, "s1"); err != nil {
					return err
				}
				return tt.fnErr
			})
			if !errors.Is(err, tt.fnErr) {
				t.Errorf("InTx error = %v, want %v", err, tt.fnErr)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestExecutorTx_NestedSavepoint(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT agentloop_sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT agentloop_sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := New(db).Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	nested, err := tx.Begin(ctx)
	if err != nil {
		t.Fatalf("nested Begin: %v", err)
	}
	if err := nested.Rollback(ctx); err != nil {
		t.Fatalf("nested Rollback: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
