package tool

import (
	"context"
	"sync"
)

type callContextKey struct{}

// CallContext describes the loop turn a tool is executing in.
type CallContext struct {
	ConversationID string
	AgentID        string
	CallID         string
	Turn           int
}

// WithCallContext attaches call information to ctx.
// The loop calls this before dispatching each tool call.
func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

// GetCallContext extracts the call information from ctx.
// Returns false if the context was not enriched by the loop.
func GetCallContext(ctx context.Context) (CallContext, bool) {
	cc, ok := ctx.Value(callContextKey{}).(CallContext)
	return cc, ok
}

type metadataKey struct{}

type metadataSink struct {
	mu     sync.Mutex
	values map[string]any
}

func (s *metadataSink) snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// SetMetadata records a value on the Result of the call running in ctx.
// It does nothing when ctx does not come from Executor.Execute.
func SetMetadata(ctx context.Context, key string, value any) {
	sink, ok := ctx.Value(metadataKey{}).(*metadataSink)
	if !ok {
		return
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.values[key] = value
}
