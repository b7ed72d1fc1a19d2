package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/types"
)

// Step is one scripted backend reply. A non-nil Err is returned instead of
// the response.
type Step struct {
	Response *backend.Response
	Err      error
}

// ScriptedBackend replays a fixed list of replies and records requests.
type ScriptedBackend struct {
	BackendName string

	mu       sync.Mutex
	steps    []Step
	requests []backend.Request
	// Block makes Execute wait for ctx cancellation after replies run out.
	Block bool
}

// NewScriptedBackend creates a backend that replies with steps in order.
func NewScriptedBackend(name string, steps ...Step) *ScriptedBackend {
	return &ScriptedBackend{BackendName: name, steps: steps}
}

// Text is a step with a plain text reply.
func Text(content string) Step {
	return Step{Response: &backend.Response{Content: content, FinishReason: backend.FinishStop}}
}

// ToolCalls is a step requesting the given tool calls.
func ToolCalls(calls ...types.ToolCallRef) Step {
	return Step{Response: &backend.Response{ToolCalls: calls, FinishReason: backend.FinishToolCalls}}
}

// Fail is a step returning err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Name implements backend.Backend.
func (b *ScriptedBackend) Name() string { return b.BackendName }

// Execute implements backend.Backend.
func (b *ScriptedBackend) Execute(ctx context.Context, req backend.Request) (*backend.Response, error) {
	b.mu.Lock()
	b.requests = append(b.requests, cloneRequest(req))
	if len(b.steps) == 0 {
		b.mu.Unlock()
		if b.Block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("scripted backend %s: no more replies", b.BackendName)
	}
	step := b.steps[0]
	b.steps = b.steps[1:]
	b.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}

	resp := *step.Response
	if req.Chunks != nil {
		if resp.Content != "" {
			if err := backend.Send(ctx, req.Chunks, backend.Chunk{Type: backend.ChunkText, Text: resp.Content}); err != nil {
				return nil, err
			}
		}
		for i := range resp.ToolCalls {
			call := resp.ToolCalls[i]
			if err := backend.Send(ctx, req.Chunks, backend.Chunk{Type: backend.ChunkToolCall, ToolCall: &call}); err != nil {
				return nil, err
			}
		}
		if err := backend.Send(ctx, req.Chunks, backend.Chunk{Type: backend.ChunkDone}); err != nil {
			return nil, err
		}
	}
	return &resp, nil
}

// Requests returns the requests received so far.
func (b *ScriptedBackend) Requests() []backend.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Request(nil), b.requests...)
}

// Calls returns the number of Execute calls.
func (b *ScriptedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func cloneRequest(req backend.Request) backend.Request {
	c := req
	c.Messages = make([]*types.Message, len(req.Messages))
	for i, m := range req.Messages {
		c.Messages[i] = m.Clone()
	}
	c.Chunks = nil
	return c
}
