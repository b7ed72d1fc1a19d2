// Package filter implements the context filter pipeline that runs before
// every model call.
//
// A Pipeline resolves an agent's ordered strategy names through a Registry
// and folds them over the conversation: each strategy sees only the
// messages the previous one kept, removed ids are unioned and the labels of
// the applied strategies are joined with "+". Unknown names resolve to the
// Noop strategy with a warning.
//
// Built-in strategies:
//
//   - token_budget: keeps the newest messages that fit
//     context limit - max output tokens - tool definition tokens.
//     A leading system message is always kept.
//   - summarization: runs token_budget, then replaces the messages it
//     would remove with one "[Conversation Summary]" system message. When
//     summarization is disabled, there are too few messages, no
//     conversation is bound or the summarizer fails, the token_budget
//     result is returned labeled "summarization (fallback: token_budget)".
//   - noop: passes messages through.
//
// No strategy ever separates an assistant tool call from its tool result.
package filter
