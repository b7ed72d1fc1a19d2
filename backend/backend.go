// Package backend defines the interface the loop and the summarizer use to
// talk to an LLM provider, and a registry that resolves backends by name.
//
// A backend makes exactly one kind of call. Streaming is opt-in: when
// Request.Chunks is non-nil the backend emits incremental chunks on it while
// still returning the assembled Response.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

// ErrUnknownBackend is returned when a backend name is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// FinishReason describes why the backend stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// ChunkType identifies the payload of a streamed Chunk.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkThinking ChunkType = "thinking"
	ChunkToolCall ChunkType = "tool_call"
	ChunkDone     ChunkType = "done"
)

// Chunk is one incremental piece of a streamed response.
type Chunk struct {
	Type     ChunkType
	Text     string
	ToolCall *types.ToolCallRef
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request is a single backend call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []*types.Message
	Tools        []tool.Definition
	MaxTokens    int

	// Chunks receives streamed output when non-nil. The caller owns the
	// channel and closes it after Execute returns.
	Chunks chan<- Chunk
}

// Streaming reports whether the caller asked for chunks.
func (r *Request) Streaming() bool {
	return r.Chunks != nil
}

// Response is the assembled result of a backend call.
type Response struct {
	Content      string
	Thinking     string
	ToolCalls    []types.ToolCallRef
	FinishReason FinishReason
	Usage        Usage
	Model        string
}

// HasToolCalls reports whether the response requests tool execution.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Backend is an LLM provider.
type Backend interface {
	// Name identifies the backend in logs, metrics and summaries.
	Name() string

	// Execute performs one call. Implementations honour ctx cancellation.
	Execute(ctx context.Context, req Request) (*Response, error)
}

// Resolver looks a backend up by name.
type Resolver interface {
	Resolve(name string) (Backend, error)
}

// Send delivers c on ch unless ctx is done first. A nil ch is a no-op.
func Send(ctx context.Context, ch chan<- Chunk, c Chunk) error {
	if ch == nil {
		return nil
	}
	select {
	case ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry is a concurrency-safe name to Backend map.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates a registry holding the given backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend)}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds or replaces a backend under its own name.
func (r *Registry) Register(b Backend) {
	if b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Resolve implements Resolver.
func (r *Registry) Resolve(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func adapts a function to the Backend interface.
type Func struct {
	BackendName string
	Fn          func(ctx context.Context, req Request) (*Response, error)
}

// Name implements Backend.
func (f Func) Name() string { return f.BackendName }

// Execute implements Backend.
func (f Func) Execute(ctx context.Context, req Request) (*Response, error) {
	return f.Fn(ctx, req)
}
