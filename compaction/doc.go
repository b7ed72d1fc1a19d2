// Package compaction provides token estimation and conversation
// summarization for context window management.
//
// # Token estimation
//
// Estimator approximates token counts without a tokenizer. Content is
// classified as JSON, code or prose and its character count is divided by a
// per-class ratio, then by a safety factor below one so estimates err high:
//
//	est := compaction.NewEstimator(nil)
//	n := est.EstimateMessages(messages)
//
// # Summarization
//
// Summarizer sends a run of messages to a backend with an instruction to
// produce a sectioned markdown summary, then stores a completed
// ConversationSummary and tags the messages with its id in one transaction:
//
//	s := compaction.NewSummarizer(backends, store, est, &compaction.Config{
//	    MinMessages:  5,
//	    TargetTokens: 1024,
//	}, logger)
//
//	summary, err := s.GetOrCreate(ctx, conv, removed, compaction.Options{Backend: "anthropic"})
//	var serr *compaction.SummarizationError
//	if errors.As(err, &serr) && serr.Kind == compaction.KindInsufficientMessages {
//	    // nothing worth summarizing yet
//	}
//
// GetOrCreate reuses a completed summary whose position range already
// contains the messages. When completed summaries chained without gaps cover
// the start of the range, their text is passed as previous context and only
// the positions after the chain are stored. Stored ranges never overlap.
//
// # Position matching
//
// The stored position range is found by matching each message against the
// conversation by id, then by role and content. When matching fails the
// summarizer assumes positions 0..N-1, logs a warning and records
// "position_fallback" in the summary metadata. That range can be wrong when
// duplicate content exists earlier in the conversation.
package compaction
