// Package memory provides an in-process driver.Store for tests, the CLI and
// embedders without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/types"
)

// Store keeps conversations and summaries in maps guarded by a mutex.
// Messages and summaries are copied on the way in and out.
type Store struct {
	mu        sync.RWMutex
	messages  map[string][]*types.Message
	summaries map[string][]*types.ConversationSummary
}

// New creates an empty store.
func New() *Store {
	return &Store{
		messages:  make(map[string][]*types.Message),
		summaries: make(map[string][]*types.ConversationSummary),
	}
}

var _ driver.Store = (*Store)(nil)

// InTx runs fn directly. The store has no rollback; a failing fn leaves
// any writes it made in place.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// GetMessages implements driver.ConversationStore.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[conversationID]
	out := make([]*types.Message, len(stored))
	for i, msg := range stored {
		out[i] = msg.Clone()
	}
	return out, nil
}

// AppendMessage implements driver.ConversationStore.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg *types.Message) (int, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("conversation_id is required")
	}
	if msg == nil {
		return 0, fmt.Errorf("message is required")
	}

	c := msg.Clone()
	c.ConversationID = conversationID
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[conversationID] = append(s.messages[conversationID], c)
	return len(s.messages[conversationID]) - 1, nil
}

// GetMessagePositions implements driver.ConversationStore.
func (s *Store) GetMessagePositions(ctx context.Context, conversationID string) ([]driver.MessagePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[conversationID]
	positions := make([]driver.MessagePosition, len(stored))
	for i, msg := range stored {
		positions[i] = driver.MessagePosition{
			Position:  i,
			MessageID: msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
		}
	}
	return positions, nil
}

// MarkSummarized implements driver.ConversationStore.
func (s *Store) MarkSummarized(ctx context.Context, conversationID string, messageIDs []string, summaryID string) error {
	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.messages[conversationID]
	for i, msg := range stored {
		if _, ok := ids[msg.ID]; ok {
			stored[i] = msg.WithSummaryID(summaryID)
		}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.summaries[summary.ConversationID] {
		if existing.ID == summary.ID {
			return fmt.Errorf("summary %s already exists", summary.ID)
		}
	}
	s.summaries[summary.ConversationID] = append(s.summaries[summary.ConversationID], copySummary(summary))
	return nil
}

// UpdateSummary implements driver.SummaryStore.
func (s *Store) UpdateSummary(ctx context.Context, summary *types.ConversationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for convID, list := range s.summaries {
		for i, existing := range list {
			if existing.ID == summary.ID {
				s.summaries[convID][i] = copySummary(summary)
				return nil
			}
		}
	}
	return fmt.Errorf("summary %s: %w", summary.ID, driver.ErrNotFound)
}

// ListSummaries implements driver.SummaryStore.
func (s *Store) ListSummaries(ctx context.Context, conversationID string) ([]*types.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.ConversationSummary
	for _, sum := range s.summaries[conversationID] {
		if sum.Status == types.SummaryCompleted {
			out = append(out, copySummary(sum))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FromPosition < out[j].FromPosition
	})
	return out, nil
}

// AllSummaries returns every summary of a conversation regardless of status.
func (s *Store) AllSummaries(conversationID string) []*types.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.ConversationSummary, 0, len(s.summaries[conversationID]))
	for _, sum := range s.summaries[conversationID] {
		out = append(out, copySummary(sum))
	}
	return out
}

func copySummary(in *types.ConversationSummary) *types.ConversationSummary {
	c := *in
	c.SummarizedMessageIDs = append([]string(nil), in.SummarizedMessageIDs...)
	if in.Metadata != nil {
		c.Metadata = make(map[string]any, len(in.Metadata))
		for k, v := range in.Metadata {
			c.Metadata[k] = v
		}
	}
	if in.CompletedAt != nil {
		t := *in.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
