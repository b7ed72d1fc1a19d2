// Package driver provides the persistence abstractions for conversations
// and their summaries.
//
// A Store is backed by one of the driver packages:
//   - github.com/youssefsiam38/agentloop/driver/pgxv5.New(pool)
//   - github.com/youssefsiam38/agentloop/driver/databasesql.New(db)
//   - github.com/youssefsiam38/agentloop/driver/memory.New()
package driver

import (
	"context"
	"errors"

	"github.com/youssefsiam38/agentloop/types"
)

// ErrNotFound is returned when a conversation or summary does not exist.
var ErrNotFound = errors.New("not found")

// MessagePosition maps a stored message to its position in the conversation.
// Positions start at 0 and are assigned in append order.
type MessagePosition struct {
	Position  int
	MessageID string
	Role      types.Role
	Content   string
}

// ConversationStore persists conversation messages.
type ConversationStore interface {
	// GetMessages returns every message of the conversation in position order.
	GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error)

	// AppendMessage stores msg at the next position and returns that position.
	AppendMessage(ctx context.Context, conversationID string, msg *types.Message) (int, error)

	// GetMessagePositions returns the position mapping of the conversation.
	GetMessagePositions(ctx context.Context, conversationID string) ([]MessagePosition, error)

	// MarkSummarized tags the given messages as covered by summaryID.
	MarkSummarized(ctx context.Context, conversationID string, messageIDs []string, summaryID string) error
}

// SummaryStore persists conversation summaries.
type SummaryStore interface {
	// CreateSummary inserts a new summary.
	CreateSummary(ctx context.Context, summary *types.ConversationSummary) error

	// UpdateSummary overwrites the mutable fields of an existing summary.
	UpdateSummary(ctx context.Context, summary *types.ConversationSummary) error

	// ListSummaries returns the completed summaries of a conversation
	// ordered by FromPosition.
	ListSummaries(ctx context.Context, conversationID string) ([]*types.ConversationSummary, error)
}

// Store combines both stores with transactional execution.
type Store interface {
	ConversationStore
	SummaryStore

	// InTx runs fn inside a transaction. Store calls made with the context
	// passed to fn participate in it. A nested InTx joins the outer one.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Driver provides database operations.
// TTx is the native transaction type (e.g., pgx.Tx for pgx/v5, *sql.Tx for database/sql).
type Driver[TTx any] interface {
	// GetExecutor returns an executor for non-transactional operations.
	GetExecutor() Executor

	// UnwrapExecutor converts a native transaction to an ExecutorTx.
	// This allows callers to run store operations in their own transactions.
	UnwrapExecutor(tx TTx) ExecutorTx

	// UnwrapTx extracts the native transaction from an ExecutorTx.
	UnwrapTx(execTx ExecutorTx) TTx

	// Begin starts a new transaction and returns an ExecutorTx.
	Begin(ctx context.Context) (ExecutorTx, error)

	// PoolIsSet returns true if the driver has a database pool configured.
	PoolIsSet() bool

	// GetStore returns a Store implementation using this driver.
	GetStore() Store
}

// Beginner is an interface for types that can begin transactions.
type Beginner interface {
	Begin(ctx context.Context) (ExecutorTx, error)
}

// RunInTx runs fn in a transaction begun on b. If ctx already carries a
// transaction, fn joins it instead.
func RunInTx(ctx context.Context, b Beginner, fn func(ctx context.Context) error) (err error) {
	if ExecutorFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(WithExecutor(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
