package compaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/internal/metrics"
	"github.com/youssefsiam38/agentloop/types"
)

// Summary metadata keys.
const (
	MetadataSections         = "sections"
	MetadataPositionFallback = "position_fallback"
	MetadataPriorSummaryID   = "prior_summary_id"
)

// Options overrides the summarizer configuration for one call.
// Zero fields use the Config values.
type Options struct {
	// MinMessages is the minimum number of messages to summarize.
	MinMessages int

	// TargetTokens is the requested summary length.
	TargetTokens int

	// Backend is the registered backend name to call. Required.
	Backend string

	// Model is passed to the backend. Empty uses the backend default.
	Model string

	// SystemPrompt replaces the configured system instruction.
	SystemPrompt string
}

// Summarizer compresses a run of messages into a ConversationSummary through
// a backend call and persists the result.
type Summarizer struct {
	backends  backend.Resolver
	store     driver.Store
	estimator *Estimator
	config    Config
	logger    Logger
	metrics   *metrics.Metrics
}

// NewSummarizer creates a Summarizer.
// If config is nil, default configuration is used.
func NewSummarizer(backends backend.Resolver, store driver.Store, estimator *Estimator, config *Config, logger Logger) *Summarizer {
	if config == nil {
		config = DefaultConfig()
	} else {
		c := *config
		c.ApplyDefaults()
		config = &c
	}

	if estimator == nil {
		estimator = NewEstimator(nil)
	}

	if logger == nil {
		logger = noopLogger{}
	}

	return &Summarizer{
		backends:  backends,
		store:     store,
		estimator: estimator,
		config:    *config,
		logger:    logger,
	}
}

// SetMetrics enables Prometheus instrumentation.
func (s *Summarizer) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Config returns a copy of the summarizer configuration.
func (s *Summarizer) Config() Config {
	return s.config
}

// Estimator returns the estimator used for token counts.
func (s *Summarizer) Estimator() *Estimator {
	return s.estimator
}

// Summarize summarizes messages of conv and persists a completed summary
// covering their position range. The returned error is always a
// *SummarizationError.
func (s *Summarizer) Summarize(ctx context.Context, conv *types.Conversation, messages []*types.Message, opts Options) (*types.ConversationSummary, error) {
	const op = "Summarize"

	opts = s.withDefaults(opts)
	if err := s.precheck(op, conv, messages, opts); err != nil {
		return nil, err
	}

	rng, err := s.resolveRange(ctx, conv.ID, messages)
	if err != nil {
		return nil, NewSummarizationError(KindStorage, op, err).WithConversation(conv.ID)
	}

	return s.create(ctx, op, conv, messages, rng, nil, opts)
}

// GetOrCreate returns an existing completed summary whose range contains the
// range of messages, or summarizes them.
//
// Completed summaries chained contiguously from the start of the range are
// passed to the backend as previous context and only the positions after the
// chain are summarized and stored. A range that would still overlap a stored
// summary fails with KindRangeConflict.
func (s *Summarizer) GetOrCreate(ctx context.Context, conv *types.Conversation, messages []*types.Message, opts Options) (*types.ConversationSummary, error) {
	const op = "GetOrCreate"

	opts = s.withDefaults(opts)
	if err := s.precheck(op, conv, messages, opts); err != nil {
		return nil, err
	}

	rng, err := s.resolveRange(ctx, conv.ID, messages)
	if err != nil {
		return nil, NewSummarizationError(KindStorage, op, err).WithConversation(conv.ID)
	}

	existing, err := s.store.ListSummaries(ctx, conv.ID)
	if err != nil {
		return nil, NewSummarizationError(KindStorage, op, err).WithConversation(conv.ID)
	}

	// Fallback positions are guesses; matching them against stored ranges
	// could reuse the wrong summary.
	if rng.fallback {
		if err := checkOverlap(existing, rng.from, rng.to); err != nil {
			return nil, NewSummarizationError(KindRangeConflict, op, err).WithConversation(conv.ID)
		}
		return s.create(ctx, op, conv, messages, rng, nil, opts)
	}

	for _, summary := range existing {
		if summary.Contains(rng.from, rng.to) {
			s.logger.Debug("reusing conversation summary",
				"conversation_id", conv.ID,
				"summary_id", summary.ID,
				"from", summary.FromPosition,
				"to", summary.ToPosition,
			)
			s.metrics.SummaryOutcome(summary.BackendUsed, "reused")
			return summary, nil
		}
	}

	chain := coveredPrefix(existing, rng.from)
	if len(chain) == 0 {
		if err := checkOverlap(existing, rng.from, rng.to); err != nil {
			return nil, NewSummarizationError(KindRangeConflict, op, err).WithConversation(conv.ID)
		}
		return s.create(ctx, op, conv, messages, rng, nil, opts)
	}

	last := chain[len(chain)-1]
	var tail []*types.Message
	var tailPositions []int
	for i, msg := range messages {
		if rng.positions[i] > last.ToPosition {
			tail = append(tail, msg)
			tailPositions = append(tailPositions, rng.positions[i])
		}
	}

	// The chain already covers every requested position. Later summaries
	// carry the earlier ones forward, so the last link stands for the chain.
	if len(tail) == 0 {
		s.metrics.SummaryOutcome(last.BackendUsed, "reused")
		return last, nil
	}

	tailRange := newPositionRange(tailPositions)
	if err := checkOverlap(existing, tailRange.from, tailRange.to); err != nil {
		return nil, NewSummarizationError(KindRangeConflict, op, err).WithConversation(conv.ID)
	}

	return s.create(ctx, op, conv, tail, tailRange, chain, opts)
}

// coveredPrefix returns the completed summaries that cover position from
// and every position up to the end of the last one without gaps.
// existing must be sorted by FromPosition.
func coveredPrefix(existing []*types.ConversationSummary, from int) []*types.ConversationSummary {
	var chain []*types.ConversationSummary
	covered := -1
	for _, summary := range existing {
		switch {
		case len(chain) == 0 && summary.FromPosition <= from && summary.ToPosition >= from:
			chain = append(chain, summary)
			covered = summary.ToPosition
		case len(chain) > 0 && summary.FromPosition == covered+1:
			chain = append(chain, summary)
			covered = summary.ToPosition
		case len(chain) > 0 && summary.FromPosition > covered+1:
			return chain
		}
	}
	return chain
}

func checkOverlap(existing []*types.ConversationSummary, from, to int) error {
	for _, summary := range existing {
		if summary.Overlaps(from, to) {
			return fmt.Errorf("range %d..%d overlaps summary %s (%d..%d)",
				from, to, summary.ID, summary.FromPosition, summary.ToPosition)
		}
	}
	return nil
}

func (s *Summarizer) withDefaults(opts Options) Options {
	if opts.MinMessages <= 0 {
		opts.MinMessages = s.config.MinMessages
	}
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = s.config.TargetTokens
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = s.config.SystemPrompt
	}
	return opts
}

func (s *Summarizer) precheck(op string, conv *types.Conversation, messages []*types.Message, opts Options) error {
	if conv == nil || conv.ID == "" {
		return NewSummarizationError(KindNoConversation, op, nil)
	}
	if len(messages) < opts.MinMessages {
		return NewSummarizationError(KindInsufficientMessages, op,
			fmt.Errorf("got %d messages, need %d", len(messages), opts.MinMessages)).
			WithConversation(conv.ID).
			WithContext("count", len(messages)).
			WithContext("min_messages", opts.MinMessages)
	}
	return nil
}

func (s *Summarizer) create(
	ctx context.Context,
	op string,
	conv *types.Conversation,
	messages []*types.Message,
	rng positionRange,
	prior []*types.ConversationSummary,
	opts Options,
) (*types.ConversationSummary, error) {
	b, err := s.backends.Resolve(opts.Backend)
	if err != nil {
		s.metrics.SummaryOutcome(opts.Backend, "failed")
		return nil, NewSummarizationError(KindAPIFailure, op, err).WithConversation(conv.ID)
	}

	ids := make([]string, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
	}

	summary := &types.ConversationSummary{
		ConversationID:       conv.ID,
		FromPosition:         rng.from,
		ToPosition:           rng.to,
		OriginalTokenCount:   s.estimator.EstimateMessages(messages),
		BackendUsed:          b.Name(),
		ModelUsed:            opts.Model,
		SummarizedMessageIDs: ids,
		Status:               types.SummaryPending,
		Metadata:             make(map[string]any),
	}
	if rng.fallback {
		summary.Metadata[MetadataPositionFallback] = true
	}

	conversationText := FormatMessages(messages)
	userPrompt := BuildUserPrompt(conversationText)
	if len(prior) > 0 {
		contents := make([]string, len(prior))
		for i, p := range prior {
			contents[i] = p.Content
		}
		userPrompt = BuildUserPromptWithContext(strings.Join(contents, "\n\n"), conversationText)
		summary.Metadata[MetadataPriorSummaryID] = prior[len(prior)-1].ID
	}

	if err := summary.Start(); err != nil {
		return nil, NewSummarizationError(KindStorage, op, err).WithConversation(conv.ID)
	}

	start := time.Now()
	resp, err := b.Execute(ctx, backend.Request{
		Model: opts.Model,
		Messages: []*types.Message{
			types.NewSystemMessage(SystemPromptFor(opts.SystemPrompt, opts.TargetTokens)),
			types.NewUserMessage(userPrompt),
		},
		MaxTokens: s.config.MaxTokens,
	})
	s.metrics.BackendCall(b.Name(), opts.Model, time.Since(start), err)
	if err != nil {
		return nil, s.fail(ctx, op, summary, KindAPIFailure, err)
	}

	content := ""
	if resp != nil {
		content = strings.TrimSpace(resp.Content)
		if resp.Model != "" {
			summary.ModelUsed = resp.Model
		}
	}
	if content == "" {
		return nil, s.fail(ctx, op, summary, KindEmptyResponse, nil)
	}

	if err := summary.Complete(content, s.estimator.Estimate(content)); err != nil {
		return nil, NewSummarizationError(KindStorage, op, err).WithConversation(conv.ID)
	}
	if sections := ExtractSections(content); len(sections) > 0 {
		summary.Metadata[MetadataSections] = sections
	}

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateSummary(ctx, summary); err != nil {
			return fmt.Errorf("failed to create summary: %w", err)
		}
		if err := s.store.MarkSummarized(ctx, conv.ID, ids, summary.ID); err != nil {
			return fmt.Errorf("failed to mark messages summarized: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to persist summary", "conversation_id", conv.ID, "error", err)
		s.metrics.SummaryOutcome(b.Name(), "failed")
		return nil, NewSummarizationError(KindStorage, op, err).
			WithConversation(conv.ID).
			WithSummary(summary)
	}

	s.metrics.SummaryCompleted(b.Name(), summary.CompressionRatio(), len(messages))
	s.logger.Info("conversation summarized",
		"conversation_id", conv.ID,
		"summary_id", summary.ID,
		"from", summary.FromPosition,
		"to", summary.ToPosition,
		"messages", len(messages),
		"original_tokens", summary.OriginalTokenCount,
		"summary_tokens", summary.TokenCount,
		"compression_ratio", summary.CompressionRatio(),
		"backend", summary.BackendUsed,
	)

	return summary, nil
}

func (s *Summarizer) fail(ctx context.Context, op string, summary *types.ConversationSummary, kind ErrorKind, cause error) error {
	reason := cause
	if reason == nil {
		reason = kind.Sentinel()
	}
	_ = summary.Fail(reason)

	s.logger.Warn("summarization failed",
		"conversation_id", summary.ConversationID,
		"backend", summary.BackendUsed,
		"kind", string(kind),
		"error", reason,
	)
	s.metrics.SummaryOutcome(summary.BackendUsed, "failed")

	if s.config.RecordFailures {
		if err := s.store.CreateSummary(ctx, summary); err != nil {
			s.logger.Warn("failed to record failed summary",
				"conversation_id", summary.ConversationID,
				"error", err,
			)
		}
	}

	return NewSummarizationError(kind, op, cause).
		WithConversation(summary.ConversationID).
		WithSummary(summary)
}
