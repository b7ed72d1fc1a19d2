package agentloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/compaction"
	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/filter"
	"github.com/youssefsiam38/agentloop/hooks"
	"github.com/youssefsiam38/agentloop/internal/metrics"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/types"
)

const tracerName = "github.com/youssefsiam38/agentloop"

// Logger is the logging interface used by the loop.
// It is compatible with *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Request describes one run of the loop.
type Request struct {
	// Agent supplies the backend, model, system prompt and filter settings.
	Agent types.Agent

	// Conversation binds the run to a stored conversation. With a store
	// configured, history is loaded from it and new messages are appended.
	Conversation *types.Conversation

	// History is the prior conversation used when no store is bound.
	History []*types.Message

	// Input is appended as a user message before the first turn if set.
	Input string

	// Tools are the caller tools available in this run.
	Tools []tool.Tool

	// Chunks receives streamed backend output when non-nil. The caller
	// owns the channel and closes it after Run returns.
	Chunks chan<- backend.Chunk
}

// Loop drives the turn loop: filter the context, call the backend, execute
// requested tools, repeat.
//
// A Loop holds no per-run state and may serve concurrent runs on different
// conversations.
type Loop struct {
	config    LoopConfig
	backends  backend.Resolver
	pipeline  *filter.Pipeline
	executor  *tool.Executor
	estimator *compaction.Estimator
	store     driver.ConversationStore
	hooks     *hooks.Registry
	logger    Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// New creates a loop. A nil pipeline trims with token_budget only; a nil
// executor has no built-in tools.
func New(backends backend.Resolver, pipeline *filter.Pipeline, executor *tool.Executor, config *LoopConfig, opts ...Option) (*Loop, error) {
	if backends == nil {
		return nil, fmt.Errorf("%w: backend resolver", ErrMissingDependency)
	}
	if pipeline == nil {
		pipeline = filter.NewPipeline(filter.NewDefaultRegistry(nil, nil, nil), nil, nil, nil)
	}
	if executor == nil {
		executor = tool.NewExecutor(nil, nil)
	}

	cfg := DefaultLoopConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Loop{
		config:    *cfg,
		backends:  backends,
		pipeline:  pipeline,
		executor:  executor,
		estimator: compaction.NewEstimator(nil),
		logger:    noopLogger{},
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the loop configuration.
func (l *Loop) Config() LoopConfig {
	return l.config
}

// Run executes turns until the backend stops requesting tools, a tool fails
// under PolicyStop, an error occurs, ctx is cancelled or MaxTurns is
// reached. Run never panics and always returns a non-nil Result.
func (l *Loop) Run(ctx context.Context, req Request) *Result {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "agentloop.Run", trace.WithAttributes(
		attribute.String("agent.id", req.Agent.ID),
		attribute.String("agent.backend", req.Agent.Backend),
		attribute.String("conversation.id", conversationID(req.Conversation)),
	))
	defer span.End()

	r := &run{loop: l, req: req, result: &Result{}}
	r.execute(ctx)

	res := r.result
	res.Messages = append([]*types.Message(nil), r.history...)

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("turns", res.TurnsExecuted),
	)
	if res.Err != nil && res.Status != StatusCancelled {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	l.metrics.RunFinished(req.Agent.ID, string(res.Status))
	l.logger.Debug("run finished",
		"agent", req.Agent.ID,
		"conversation", conversationID(req.Conversation),
		"status", res.Status,
		"turns", res.TurnsExecuted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// run is the state of one Loop.Run call.
type run struct {
	loop    *Loop
	req     Request
	backend backend.Backend
	defs    []tool.Definition
	tokens  int
	history []*types.Message
	result  *Result
}

func (r *run) execute(ctx context.Context) {
	l := r.loop

	b, err := l.backends.Resolve(r.req.Agent.Backend)
	if err != nil {
		r.finish(StatusError, r.loopError(PhaseLoad, 0, err))
		return
	}
	r.backend = b

	if err := r.load(ctx); err != nil {
		r.finish(StatusError, r.loopError(PhaseStore, 0, err))
		return
	}
	if r.req.Input != "" {
		if err := r.append(ctx, types.NewUserMessage(r.req.Input)); err != nil {
			r.finish(StatusError, r.loopError(PhaseStore, 0, err))
			return
		}
	}

	r.defs = l.executor.AllToolSchemas(r.req.Tools, l.executor.IncludeBuiltins())
	if len(r.defs) > 0 {
		r.tokens = l.estimator.EstimateJSON(r.defs)
	}

	for turn := 1; turn <= l.config.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			r.cancelled(turn-1, err)
			return
		}
		if r.turn(ctx, turn) {
			return
		}
	}

	l.logger.Warn("max turns reached", "agent", r.req.Agent.ID, "conversation", conversationID(r.req.Conversation), "max_turns", l.config.MaxTurns)
	r.finish(StatusMaxTurnsReached, r.loopError(PhaseLimit, l.config.MaxTurns, ErrMaxTurns))
}

// turn runs one backend call and its tool calls. It reports whether the
// run is over.
func (r *run) turn(ctx context.Context, turn int) (done bool) {
	l := r.loop
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("turn panicked", "agent", r.req.Agent.ID, "turn", turn, "panic", p)
			r.finish(StatusError, r.loopError(PhasePanic, turn, fmt.Errorf("%w: %v", ErrPanic, p)))
			done = true
		}
	}()

	ctx, span := l.tracer.Start(ctx, "agentloop.Turn", trace.WithAttributes(attribute.Int("turn", turn)))
	defer span.End()

	r.result.TurnsExecuted = turn
	l.metrics.TurnExecuted(r.req.Agent.ID)

	working := r.working()
	if err := l.hooks.TriggerBeforeTurn(ctx, turn, working); err != nil {
		r.finish(StatusError, r.loopError(PhaseHook, turn, err))
		return true
	}

	filtered := l.pipeline.Filter(ctx, working, filter.Params{
		Agent:                r.req.Agent,
		Conversation:         r.req.Conversation,
		ToolDefinitionTokens: r.tokens,
	})
	if err := l.hooks.TriggerAfterFilter(ctx, turn, filtered); err != nil {
		r.finish(StatusError, r.loopError(PhaseHook, turn, err))
		return true
	}

	resp, err := r.call(ctx, filtered.Messages)
	if err != nil {
		if ctx.Err() != nil {
			r.cancelled(turn, ctx.Err())
			return true
		}
		l.logger.Error("backend call failed", "agent", r.req.Agent.ID, "backend", r.backend.Name(), "turn", turn, "error", err)
		r.finish(StatusError, r.loopError(PhaseBackend, turn, err))
		return true
	}
	r.result.LastResponse = resp
	r.result.Usage.InputTokens += resp.Usage.InputTokens
	r.result.Usage.OutputTokens += resp.Usage.OutputTokens

	if err := l.hooks.TriggerAfterResponse(ctx, turn, resp); err != nil {
		r.finish(StatusError, r.loopError(PhaseHook, turn, err))
		return true
	}

	calls := withCallIDs(resp.ToolCalls)
	assistant := types.NewAssistantMessage(resp.Content, calls...)
	if resp.Thinking != "" {
		assistant = assistant.WithThinking(resp.Thinking)
	}
	if err := r.append(ctx, assistant); err != nil {
		r.finish(StatusError, r.loopError(PhaseStore, turn, err))
		return true
	}

	if len(calls) == 0 {
		r.finish(StatusCompleted, nil)
		return true
	}
	return r.dispatch(ctx, turn, calls)
}

// dispatch executes calls one at a time in order.
func (r *run) dispatch(ctx context.Context, turn int, calls []types.ToolCallRef) bool {
	l := r.loop
	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			r.skip(ctx, calls[i:], "cancelled before execution")
			r.cancelled(turn, err)
			return true
		}

		cctx := tool.WithCallContext(ctx, tool.CallContext{
			ConversationID: conversationID(r.req.Conversation),
			AgentID:        r.req.Agent.ID,
			CallID:         call.ID,
			Turn:           turn,
		})
		res := r.executeTool(cctx, call)
		r.result.ToolResults = append(r.result.ToolResults, ToolLogEntry{Turn: turn, Call: call, Result: res})

		msg := types.NewToolMessage(call.ID, call.Name, res.Content())
		if !res.Success {
			msg = msg.WithMetadata(types.MetadataToolError, true)
		}
		if err := r.append(ctx, msg); err != nil {
			r.finish(StatusError, r.loopError(PhaseStore, turn, err))
			return true
		}
		if err := l.hooks.TriggerToolCall(cctx, call, res); err != nil {
			r.skip(ctx, calls[i+1:], "skipped after a hook error")
			r.finish(StatusError, r.loopError(PhaseHook, turn, err))
			return true
		}

		if !res.Success && l.config.ToolFailurePolicy == PolicyStop {
			r.skip(ctx, calls[i+1:], "skipped after an earlier tool call failed")
			err := fmt.Errorf("%w: %s: %s", ErrToolFailed, call.Name, res.Error)
			r.finish(StatusToolError, r.loopError(PhaseTool, turn, err).WithContext("tool", call.Name).WithContext("call_id", call.ID))
			return true
		}
	}
	return false
}

func (r *run) executeTool(ctx context.Context, call types.ToolCallRef) tool.Result {
	l := r.loop
	ctx, span := l.tracer.Start(ctx, "tool.Execute", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	res := l.executor.Execute(ctx, call, r.req.Tools)
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

// skip records an error result for calls that will not run, keeping every
// tool call paired with a result.
func (r *run) skip(ctx context.Context, calls []types.ToolCallRef, reason string) {
	for _, call := range calls {
		msg := types.NewToolMessage(call.ID, call.Name, "Error: "+reason).WithMetadata(types.MetadataToolError, true)
		if err := r.append(ctx, msg); err != nil {
			r.loop.logger.Warn("failed to record skipped tool call", "tool", call.Name, "call_id", call.ID, "error", err)
		}
	}
}

func (r *run) call(ctx context.Context, messages []*types.Message) (*backend.Response, error) {
	l := r.loop
	ctx, span := l.tracer.Start(ctx, "backend.Execute", trace.WithAttributes(
		attribute.String("backend.name", r.backend.Name()),
		attribute.String("backend.model", r.req.Agent.Model),
		attribute.Int("messages", len(messages)),
	))
	defer span.End()

	start := time.Now()
	resp, err := r.backend.Execute(ctx, backend.Request{
		Model:     r.req.Agent.Model,
		Messages:  messages,
		Tools:     r.defs,
		MaxTokens: r.req.Agent.MaxOutputTokens,
		Chunks:    r.req.Chunks,
	})
	if err == nil && resp == nil {
		err = errors.New("backend returned no response")
	}
	l.metrics.BackendCall(r.backend.Name(), r.req.Agent.Model, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (r *run) load(ctx context.Context) error {
	if r.loop.store != nil && r.req.Conversation != nil {
		msgs, err := r.loop.store.GetMessages(ctx, r.req.Conversation.ID)
		if err != nil && !errors.Is(err, driver.ErrNotFound) {
			return err
		}
		r.history = msgs
		return nil
	}
	r.history = append([]*types.Message(nil), r.req.History...)
	return nil
}

// append adds msg to the history and the store. Stores outlive the run's
// cancellation so partial results are kept.
func (r *run) append(ctx context.Context, msg *types.Message) error {
	if r.loop.store != nil && r.req.Conversation != nil {
		if _, err := r.loop.store.AppendMessage(context.WithoutCancel(ctx), r.req.Conversation.ID, msg); err != nil {
			return err
		}
	}
	r.history = append(r.history, msg)
	return nil
}

// working returns the history the backend sees, led by the agent's system
// prompt unless the history already starts with a system message.
func (r *run) working() []*types.Message {
	prompt := r.req.Agent.SystemPrompt
	if prompt == "" || (len(r.history) > 0 && r.history[0].Role == types.RoleSystem) {
		return append([]*types.Message(nil), r.history...)
	}
	out := make([]*types.Message, 0, len(r.history)+1)
	out = append(out, types.NewSystemMessage(prompt))
	return append(out, r.history...)
}

func (r *run) cancelled(turn int, err error) {
	r.loop.logger.Info("run cancelled", "agent", r.req.Agent.ID, "conversation", conversationID(r.req.Conversation), "turn", turn)
	r.finish(StatusCancelled, r.loopError(PhaseCancel, turn, err))
}

func (r *run) finish(status Status, err *LoopError) {
	r.result.Status = status
	if err != nil {
		r.result.Err = err
	}
}

func (r *run) loopError(phase Phase, turn int, err error) *LoopError {
	e := NewLoopError(phase, turn, err)
	e.ConversationID = conversationID(r.req.Conversation)
	return e
}

func withCallIDs(calls []types.ToolCallRef) []types.ToolCallRef {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCallRef, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		out[i] = c
	}
	return out
}

func conversationID(c *types.Conversation) string {
	if c == nil {
		return ""
	}
	return c.ID
}
