package compaction

import (
	"context"
	"fmt"

	"github.com/youssefsiam38/agentloop/types"
)

// positionRange is the inclusive range of stored positions a set of
// messages occupies. positions is aligned with the messages.
type positionRange struct {
	from      int
	to        int
	positions []int
	fallback  bool
}

func newPositionRange(positions []int) positionRange {
	rng := positionRange{positions: positions}
	for i, p := range positions {
		if i == 0 || p < rng.from {
			rng.from = p
		}
		if i == 0 || p > rng.to {
			rng.to = p
		}
	}
	return rng
}

// resolveRange maps messages to their stored positions. Each message is
// matched by id, then by role and content against the first unused
// position. If any message cannot be matched, positions 0..N-1 are assumed
// and the range is flagged as a fallback.
func (s *Summarizer) resolveRange(ctx context.Context, conversationID string, messages []*types.Message) (positionRange, error) {
	stored, err := s.store.GetMessagePositions(ctx, conversationID)
	if err != nil {
		return positionRange{}, fmt.Errorf("failed to get message positions: %w", err)
	}

	byID := make(map[string]int, len(stored))
	for _, p := range stored {
		if p.MessageID != "" {
			byID[p.MessageID] = p.Position
		}
	}

	used := make(map[int]bool, len(messages))
	positions := make([]int, 0, len(messages))

	for _, msg := range messages {
		if pos, ok := byID[msg.ID]; ok && !used[pos] {
			used[pos] = true
			positions = append(positions, pos)
			continue
		}

		matched := false
		for _, p := range stored {
			if used[p.Position] || p.Role != msg.Role || p.Content != msg.Content {
				continue
			}
			used[p.Position] = true
			positions = append(positions, p.Position)
			matched = true
			break
		}
		if !matched {
			s.logger.Warn("message position matching failed, using sequential positions",
				"conversation_id", conversationID,
				"message_id", msg.ID,
				"messages", len(messages),
			)
			return sequentialRange(len(messages)), nil
		}
	}

	return newPositionRange(positions), nil
}

func sequentialRange(n int) positionRange {
	positions := make([]int, n)
	for i := range positions {
		positions[i] = i
	}
	rng := newPositionRange(positions)
	rng.fallback = true
	return rng
}
