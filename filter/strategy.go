package filter

import (
	"context"
	"sort"
	"sync"

	"github.com/youssefsiam38/agentloop/compaction"
)

// StrategyID identifies a filter strategy.
type StrategyID string

const (
	// StrategyTokenBudget drops the oldest messages until the rest fit.
	StrategyTokenBudget StrategyID = "token_budget"

	// StrategySummarization replaces the messages token_budget would drop
	// with a summary, falling back to plain trimming.
	StrategySummarization StrategyID = "summarization"

	// StrategyNoop passes messages through.
	StrategyNoop StrategyID = "noop"
)

// FallbackLabel is the StrategyUsed label of a summarization run that fell
// back to trimming.
const FallbackLabel = "summarization (fallback: token_budget)"

// IsKnown reports whether id is a built-in strategy.
func (id StrategyID) IsKnown() bool {
	switch id {
	case StrategyTokenBudget, StrategySummarization, StrategyNoop:
		return true
	default:
		return false
	}
}

// Strategy transforms a message list.
//
// Filter must not modify fc or its messages, must only report ids present
// in fc as removed, and must not panic.
type Strategy interface {
	ID() StrategyID
	Filter(ctx context.Context, fc *FilterContext) *Result
}

type noopStrategy struct{}

func (noopStrategy) ID() StrategyID { return StrategyNoop }

func (noopStrategy) Filter(ctx context.Context, fc *FilterContext) *Result {
	return unchanged(fc.Messages(), string(StrategyNoop))
}

// Noop is the singleton no-op strategy unknown names resolve to.
var Noop Strategy = noopStrategy{}

// Registry maps strategy ids to implementations.
type Registry struct {
	mu         sync.RWMutex
	strategies map[StrategyID]Strategy
}

// NewRegistry creates a registry holding Noop and the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: map[StrategyID]Strategy{StrategyNoop: Noop}}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a strategy under its id.
func (r *Registry) Register(s Strategy) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID()] = s
}

// Lookup returns the strategy registered under name. Unknown names return
// Noop and false.
func (r *Registry) Lookup(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[StrategyID(name)]; ok {
		return s, true
	}
	return Noop, false
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []StrategyID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]StrategyID, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NewDefaultRegistry registers token_budget and summarization sharing one
// estimator. A nil summarizer makes summarization always fall back.
func NewDefaultRegistry(estimator *compaction.Estimator, summarizer *compaction.Summarizer, logger Logger) *Registry {
	budget := NewTokenBudget(estimator)
	return NewRegistry(budget, NewSummarization(budget, summarizer, logger))
}
