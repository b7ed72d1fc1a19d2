package filter

import (
	"context"
	"time"

	"github.com/youssefsiam38/agentloop/compaction"
	"github.com/youssefsiam38/agentloop/types"
)

// TokenBudget removes the oldest messages until the remaining estimate fits
// the budget of the FilterContext. A leading system message is never
// removed. Tool calls and their results are removed together.
type TokenBudget struct {
	estimator *compaction.Estimator
}

// NewTokenBudget creates the strategy. A nil estimator uses the defaults.
func NewTokenBudget(estimator *compaction.Estimator) *TokenBudget {
	if estimator == nil {
		estimator = compaction.NewEstimator(nil)
	}
	return &TokenBudget{estimator: estimator}
}

// ID implements Strategy.
func (s *TokenBudget) ID() StrategyID {
	return StrategyTokenBudget
}

// Filter implements Strategy.
func (s *TokenBudget) Filter(ctx context.Context, fc *FilterContext) *Result {
	start := time.Now()
	messages := fc.Messages()
	budget := fc.Budget()

	removed := IDSet{}
	first := 0
	if len(messages) > 0 && messages[0].Role == types.RoleSystem {
		first = 1
	}

	total := s.estimator.EstimateMessages(messages)
	for i := first; i < len(messages); i++ {
		if budget > 0 && total <= budget {
			break
		}
		removed[messages[i].ID] = struct{}{}
		total -= s.estimator.EstimateMessage(messages[i])
	}

	removed = removed.Union(enforceChain(messages, removed))
	kept := keep(messages, removed)

	return &Result{
		Messages:      kept,
		OriginalCount: len(messages),
		FilteredCount: len(kept),
		RemovedIDs:    removed,
		StrategyUsed:  string(StrategyTokenBudget),
		Duration:      time.Since(start),
		Metadata: map[string]any{
			"budget":           budget,
			"estimated_tokens": s.estimator.EstimateMessages(kept),
		},
	}
}
