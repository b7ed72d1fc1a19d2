// Package hooks lets callers observe and veto agent loop events.
//
// A hook returning an error stops the run: the loop reports it as an error
// in the "hook" phase.
package hooks

import (
	"context"
	"sync"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/filter"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

// BeforeTurnHook is called at the start of every turn with the full,
// unfiltered conversation.
type BeforeTurnHook func(ctx context.Context, turn int, messages []*types.Message) error

// AfterFilterHook is called after the context filter pipeline has run.
type AfterFilterHook func(ctx context.Context, turn int, result *filter.Result) error

// AfterResponseHook is called after a backend call returns successfully.
type AfterResponseHook func(ctx context.Context, turn int, response *backend.Response) error

// ToolCallHook is called after each tool call has been executed.
type ToolCallHook func(ctx context.Context, call types.ToolCallRef, result tool.Result) error

// Registry holds all registered hooks
type Registry struct {
	mu            sync.RWMutex
	beforeTurn    []BeforeTurnHook
	afterFilter   []AfterFilterHook
	afterResponse []AfterResponseHook
	toolCall      []ToolCallHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{}
}

// OnBeforeTurn registers a hook to be called before each turn
func (r *Registry) OnBeforeTurn(hook BeforeTurnHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeTurn = append(r.beforeTurn, hook)
}

// OnAfterFilter registers a hook to be called after filtering
func (r *Registry) OnAfterFilter(hook AfterFilterHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterFilter = append(r.afterFilter, hook)
}

// OnAfterResponse registers a hook to be called after a backend response
func (r *Registry) OnAfterResponse(hook AfterResponseHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterResponse = append(r.afterResponse, hook)
}

// OnToolCall registers a hook to be called when a tool is executed
func (r *Registry) OnToolCall(hook ToolCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCall = append(r.toolCall, hook)
}

// TriggerBeforeTurn calls all registered before-turn hooks
func (r *Registry) TriggerBeforeTurn(ctx context.Context, turn int, messages []*types.Message) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	hooks := append([]BeforeTurnHook(nil), r.beforeTurn...)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, turn, messages); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterFilter calls all registered after-filter hooks
func (r *Registry) TriggerAfterFilter(ctx context.Context, turn int, result *filter.Result) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	hooks := append([]AfterFilterHook(nil), r.afterFilter...)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, turn, result); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterResponse calls all registered after-response hooks
func (r *Registry) TriggerAfterResponse(ctx context.Context, turn int, response *backend.Response) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	hooks := append([]AfterResponseHook(nil), r.afterResponse...)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, turn, response); err != nil {
			return err
		}
	}
	return nil
}

// TriggerToolCall calls all registered tool-call hooks
func (r *Registry) TriggerToolCall(ctx context.Context, call types.ToolCallRef, result tool.Result) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	hooks := append([]ToolCallHook(nil), r.toolCall...)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, call, result); err != nil {
			return err
		}
	}
	return nil
}
