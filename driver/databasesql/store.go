package databasesql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/types"
)

// Store implements driver.Store using the databasesql driver.
type Store struct {
	driver *Driver
}

// NewStore creates a new databasesql Store.
func NewStore(d *Driver) *Store {
	return &Store{driver: d}
}

// getExecutor returns the executor from context if present, otherwise the default pool executor.
func (s *Store) getExecutor(ctx context.Context) driver.Executor {
	if exec := driver.ExecutorFromContext(ctx); exec != nil {
		return exec
	}
	return s.driver.GetExecutor()
}

// InTx implements driver.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return driver.RunInTx(ctx, s.driver, fn)
}

// GetMessages implements driver.ConversationStore.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, thinking, tool_calls, tool_call_id,
		       name, token_count, COALESCE(summary_id, ''), metadata, created_at
		FROM agentloop_messages
		WHERE conversation_id = $1
		ORDER BY position ASC
	`

	rows, err := s.getExecutor(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*types.Message
	for rows.Next() {
		var msg types.Message
		var role string
		var toolCallsJSON, metadataJSON []byte

		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.Thinking, &toolCallsJSON,
			&msg.ToolCallID, &msg.Name, &msg.TokenCount, &msg.SummaryID, &metadataJSON, &msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.Role = types.Role(role)
		if len(toolCallsJSON) > 0 {
			if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
			}
		}
		if len(msg.ToolCalls) == 0 {
			msg.ToolCalls = nil
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// AppendMessage implements driver.ConversationStore.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg *types.Message) (int, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("conversation_id is required")
	}
	if msg == nil {
		return 0, fmt.Errorf("message is required")
	}

	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	calls := msg.ToolCalls
	if calls == nil {
		calls = []types.ToolCallRef{}
	}
	toolCallsJSON, err := json.Marshal(calls)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tool calls: %w", err)
	}
	metadataJSON, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO agentloop_messages (
			id, conversation_id, position, role, content, thinking, tool_calls,
			tool_call_id, name, token_count, summary_id, metadata, created_at
		)
		VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM agentloop_messages WHERE conversation_id = $2),
			$3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12
		)
		RETURNING position
	`

	var position int
	err = s.getExecutor(ctx).QueryRow(ctx, query,
		id, conversationID, string(msg.Role), msg.Content, msg.Thinking, toolCallsJSON,
		msg.ToolCallID, msg.Name, msg.TokenCount, msg.SummaryID, metadataJSON, createdAt,
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	return position, nil
}

// GetMessagePositions implements driver.ConversationStore.
func (s *Store) GetMessagePositions(ctx context.Context, conversationID string) ([]driver.MessagePosition, error) {
	query := `
		SELECT position, id, role, content
		FROM agentloop_messages
		WHERE conversation_id = $1
		ORDER BY position ASC
	`

	rows, err := s.getExecutor(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query message positions: %w", err)
	}
	defer rows.Close()

	var positions []driver.MessagePosition
	for rows.Next() {
		var p driver.MessagePosition
		var role string
		if err := rows.Scan(&p.Position, &p.MessageID, &role, &p.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message position: %w", err)
		}
		p.Role = types.Role(role)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message positions: %w", err)
	}

	return positions, nil
}

// MarkSummarized implements driver.ConversationStore.
func (s *Store) MarkSummarized(ctx context.Context, conversationID string, messageIDs []string, summaryID string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	query := `
		UPDATE agentloop_messages
		SET summary_id = $3
		WHERE conversation_id = $1 AND id = ANY($2)
	`

	if _, err := s.getExecutor(ctx).Exec(ctx, query, conversationID, pq.Array(messageIDs), summaryID); err != nil {
		return fmt.Errorf("failed to mark messages summarized: %w", err)
	}
	return nil
}

// CreateSummary implements driver.SummaryStore.
func (s *Store) CreateSummary(ctx context.Context, summary *types.ConversationSummary) error {
	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}

	metadataJSON, err := marshalMetadata(summary.Metadata)
	if err != nil {
		return err
	}

	ids := summary.SummarizedMessageIDs
	if ids == nil {
		ids = []string{}
	}

	query := `
		INSERT INTO agentloop_summaries (
			id, conversation_id, from_position, to_position, content, token_count,
			original_token_count, backend_used, model_used, summarized_message_ids,
			status, error_message, metadata, created_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = s.getExecutor(ctx).Exec(ctx, query,
		summary.ID, summary.ConversationID, summary.FromPosition, summary.ToPosition,
		summary.Content, summary.TokenCount, summary.OriginalTokenCount,
		summary.BackendUsed, summary.ModelUsed, pq.Array(ids),
		string(summary.Status), summary.ErrorMessage, metadataJSON, summary.CreatedAt, nullTime(summary.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	return nil
}

// UpdateSummary implements driver.SummaryStore.
func (s *Store) UpdateSummary(ctx context.Context, summary *types.ConversationSummary) error {
	metadataJSON, err := marshalMetadata(summary.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE agentloop_summaries
		SET content = $2, token_count = $3, original_token_count = $4,
		    status = $5, error_message = $6, metadata = $7, completed_at = $8
		WHERE id = $1
	`

	affected, err := s.getExecutor(ctx).Exec(ctx, query,
		summary.ID, summary.Content, summary.TokenCount, summary.OriginalTokenCount,
		string(summary.Status), summary.ErrorMessage, metadataJSON, nullTime(summary.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("summary %s: %w", summary.ID, driver.ErrNotFound)
	}
	return nil
}

// ListSummaries implements driver.SummaryStore.
func (s *Store) ListSummaries(ctx context.Context, conversationID string) ([]*types.ConversationSummary, error) {
	query := `
		SELECT id, conversation_id, from_position, to_position, content, token_count,
		       original_token_count, backend_used, model_used, summarized_message_ids,
		       status, error_message, metadata, created_at, completed_at
		FROM agentloop_summaries
		WHERE conversation_id = $1 AND status = 'completed'
		ORDER BY from_position ASC
	`

	rows, err := s.getExecutor(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*types.ConversationSummary
	for rows.Next() {
		var sum types.ConversationSummary
		var status string
		var metadataJSON []byte
		var completedAt sql.NullTime

		err := rows.Scan(
			&sum.ID, &sum.ConversationID, &sum.FromPosition, &sum.ToPosition,
			&sum.Content, &sum.TokenCount, &sum.OriginalTokenCount,
			&sum.BackendUsed, &sum.ModelUsed, pq.Array(&sum.SummarizedMessageIDs),
			&status, &sum.ErrorMessage, &metadataJSON, &sum.CreatedAt, &completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}

		sum.Status = types.SummaryStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			sum.CompletedAt = &t
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &sum.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal summary metadata: %w", err)
			}
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summaries: %w", err)
	}

	return summaries, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return raw, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
