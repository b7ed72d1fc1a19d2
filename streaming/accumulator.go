// Package streaming assembles provider stream events into a backend.Response
// and forwards incremental chunks to the caller.
package streaming

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/types"
)

// Accumulator accumulates streaming deltas into a complete response.
// It is not safe for concurrent use.
type Accumulator struct {
	ctx    context.Context
	chunks chan<- backend.Chunk

	model    string
	text     strings.Builder
	thinking strings.Builder
	finish   backend.FinishReason
	usage    backend.Usage

	// Tool calls being built, keyed by the provider's block index
	calls map[int]*toolCallBuilder
}

type toolCallBuilder struct {
	id    string
	name  string
	input strings.Builder
}

// NewAccumulator creates a new stream accumulator. chunks may be nil.
func NewAccumulator(ctx context.Context, chunks chan<- backend.Chunk) *Accumulator {
	return &Accumulator{
		ctx:    ctx,
		chunks: chunks,
		calls:  make(map[int]*toolCallBuilder),
	}
}

// SetModel records the model reported by the provider.
func (a *Accumulator) SetModel(model string) {
	if model != "" {
		a.model = model
	}
}

// AddText appends a text delta and forwards it.
func (a *Accumulator) AddText(s string) error {
	if s == "" {
		return nil
	}
	a.text.WriteString(s)
	return backend.Send(a.ctx, a.chunks, backend.Chunk{Type: backend.ChunkText, Text: s})
}

// AddThinking appends a reasoning delta and forwards it.
func (a *Accumulator) AddThinking(s string) error {
	if s == "" {
		return nil
	}
	a.thinking.WriteString(s)
	return backend.Send(a.ctx, a.chunks, backend.Chunk{Type: backend.ChunkThinking, Text: s})
}

// StartToolCall opens the tool call at index. Empty id or name leave the
// existing values in place, so fragmented providers can call it repeatedly.
func (a *Accumulator) StartToolCall(index int, id, name string) {
	b, ok := a.calls[index]
	if !ok {
		b = &toolCallBuilder{}
		a.calls[index] = b
	}
	if id != "" {
		b.id = id
	}
	if name != "" {
		b.name = name
	}
}

// AddToolInput appends a partial JSON fragment to the tool call at index.
func (a *Accumulator) AddToolInput(index int, partial string) {
	b, ok := a.calls[index]
	if !ok {
		b = &toolCallBuilder{}
		a.calls[index] = b
	}
	b.input.WriteString(partial)
}

// SetFinishReason records why generation stopped.
func (a *Accumulator) SetFinishReason(r backend.FinishReason) {
	a.finish = r
}

// SetInputTokens records prompt token usage.
func (a *Accumulator) SetInputTokens(n int) {
	if n > 0 {
		a.usage.InputTokens = n
	}
}

// SetOutputTokens records completion token usage.
func (a *Accumulator) SetOutputTokens(n int) {
	if n > 0 {
		a.usage.OutputTokens = n
	}
}

// Finish builds the response, forwards each completed tool call and then a
// done chunk.
func (a *Accumulator) Finish() (*backend.Response, error) {
	resp := &backend.Response{
		Content:      a.text.String(),
		Thinking:     a.thinking.String(),
		ToolCalls:    a.toolCalls(),
		FinishReason: a.finish,
		Usage:        a.usage,
		Model:        a.model,
	}

	if resp.FinishReason == "" {
		resp.FinishReason = backend.FinishStop
	}
	if len(resp.ToolCalls) > 0 && resp.FinishReason == backend.FinishStop {
		resp.FinishReason = backend.FinishToolCalls
	}

	for i := range resp.ToolCalls {
		call := resp.ToolCalls[i]
		if err := backend.Send(a.ctx, a.chunks, backend.Chunk{Type: backend.ChunkToolCall, ToolCall: &call}); err != nil {
			return resp, err
		}
	}
	if err := backend.Send(a.ctx, a.chunks, backend.Chunk{Type: backend.ChunkDone}); err != nil {
		return resp, err
	}
	return resp, nil
}

// toolCalls converts accumulated builders to calls in index order.
func (a *Accumulator) toolCalls() []types.ToolCallRef {
	if len(a.calls) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]types.ToolCallRef, 0, len(indexes))
	for _, i := range indexes {
		b := a.calls[i]
		if b.name == "" {
			continue
		}
		id := b.id
		if id == "" {
			id = uuid.New().String()
		}
		calls = append(calls, types.ToolCallRef{
			ID:        id,
			Name:      b.name,
			Arguments: parseArguments(b.input.String()),
		})
	}
	return calls
}

// parseArguments decodes raw tool input. Empty or malformed input becomes an
// empty object.
func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
