package filter

import (
	"context"
	"time"

	"github.com/youssefsiam38/agentloop/compaction"
	"github.com/youssefsiam38/agentloop/types"
)

// SummaryPrefix starts the content of the synthetic summary message.
const SummaryPrefix = "[Conversation Summary]"

// MetadataSummaryID is set on the synthetic summary message.
const MetadataSummaryID = "summary_id"

// Fallback reasons recorded in Result.Metadata["fallback_reason"].
const (
	ReasonDisabled    = "disabled"
	ReasonNoReduction = "no_reduction"
	ReasonOverBudget  = "over_budget"
)

// Summarization runs TokenBudget and replaces the messages it would remove
// with one synthetic system message holding their summary. Whenever a
// summary cannot be produced it returns the TokenBudget result relabeled
// as FallbackLabel.
type Summarization struct {
	budget     *TokenBudget
	summarizer *compaction.Summarizer
	logger     Logger
}

// NewSummarization creates the strategy. A nil summarizer always falls back.
func NewSummarization(budget *TokenBudget, summarizer *compaction.Summarizer, logger Logger) *Summarization {
	if budget == nil {
		budget = NewTokenBudget(nil)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Summarization{
		budget:     budget,
		summarizer: summarizer,
		logger:     logger,
	}
}

// ID implements Strategy.
func (s *Summarization) ID() StrategyID {
	return StrategySummarization
}

// Filter implements Strategy.
func (s *Summarization) Filter(ctx context.Context, fc *FilterContext) *Result {
	start := time.Now()

	trimmed := s.budget.Filter(ctx, fc)
	if trimmed.RemovedIDs.Len() == 0 {
		return unchanged(fc.Messages(), string(StrategySummarization))
	}

	messages := fc.Messages()
	removed := make([]*types.Message, 0, trimmed.RemovedIDs.Len())
	for _, msg := range messages {
		if trimmed.RemovedIDs.Has(msg.ID) {
			removed = append(removed, msg)
		}
	}

	if s.summarizer == nil {
		return s.fallback(fc, trimmed, ReasonDisabled, nil)
	}

	config := s.summarizer.Config()
	opts := fc.Options(StrategySummarization)
	if !optBool(opts, OptionEnabled, config.IsEnabled()) {
		return s.fallback(fc, trimmed, ReasonDisabled, nil)
	}

	agent := fc.Agent()
	summaryOpts := compaction.Options{
		MinMessages:  optInt(opts, OptionMinMessages, config.MinMessages),
		TargetTokens: optInt(opts, OptionTargetTokens, config.TargetTokens),
		Backend:      optString(opts, OptionBackend, agent.Backend),
		Model:        optString(opts, OptionModel, agent.Model),
		SystemPrompt: optString(opts, OptionSystemPrompt, config.SystemPrompt),
	}

	summary, err := s.summarizer.GetOrCreate(ctx, fc.Conversation(), removed, summaryOpts)
	if err != nil {
		serr := compaction.AsSummarizationError(err)
		return s.fallback(fc, trimmed, string(serr.Kind), serr)
	}

	synthetic := types.NewSystemMessage(SummaryPrefix+"\n"+summary.Content).
		WithMetadata(MetadataSummaryID, summary.ID)
	estimator := s.summarizer.Estimator()
	synthetic = synthetic.WithTokenCount(estimator.EstimateMessage(synthetic))
	if synthetic.TokenCount >= estimator.EstimateMessages(removed) {
		return s.fallback(fc, trimmed, ReasonNoReduction, nil)
	}

	assembled := make([]*types.Message, 0, len(trimmed.Messages)+2)
	kept := trimmed.Messages
	if len(messages) > 0 && messages[0].Role == types.RoleSystem {
		assembled = append(assembled, messages[0])
		kept = dropID(kept, messages[0].ID)
	}
	assembled = append(assembled, synthetic)
	assembled = append(assembled, kept...)

	// The summary must not split a call from its result.
	extra := enforceChain(assembled, IDSet{})
	if extra.Len() > 0 {
		assembled = keep(assembled, extra)
	}

	tokens := estimator.EstimateMessages(assembled)
	if tokens >= estimator.EstimateMessages(messages) {
		return s.fallback(fc, trimmed, ReasonNoReduction, nil)
	}
	if budget := fc.Budget(); budget > 0 && tokens > budget {
		return s.fallback(fc, trimmed, ReasonOverBudget, nil)
	}

	s.logger.Info("context summarized",
		"conversation_id", fc.Conversation().ID,
		"summary_id", summary.ID,
		"summarized_messages", len(removed),
		"compression_ratio", summary.CompressionRatio(),
		"backend", summary.BackendUsed,
	)

	return &Result{
		Messages:      assembled,
		OriginalCount: len(messages),
		FilteredCount: len(assembled),
		RemovedIDs:    trimmed.RemovedIDs.Union(extra),
		StrategyUsed:  string(StrategySummarization),
		Duration:      time.Since(start),
		Metadata: map[string]any{
			"summary_id":          summary.ID,
			"summarized_messages": len(removed),
			"compression_ratio":   summary.CompressionRatio(),
			"backend":             summary.BackendUsed,
			"estimated_tokens":    tokens,
		},
	}
}

func (s *Summarization) fallback(fc *FilterContext, trimmed *Result, reason string, cause error) *Result {
	args := []any{"reason", reason, "removed", trimmed.RemovedIDs.Len()}
	if conv := fc.Conversation(); conv != nil {
		args = append(args, "conversation_id", conv.ID)
	}
	if cause != nil {
		args = append(args, "error", cause)
	}
	s.logger.Info("summarization fell back to token budget", args...)

	out := *trimmed
	out.StrategyUsed = FallbackLabel
	out.Metadata = map[string]any{"fallback_reason": reason}
	for k, v := range trimmed.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

func dropID(messages []*types.Message, id string) []*types.Message {
	out := make([]*types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.ID != id {
			out = append(out, msg)
		}
	}
	return out
}
