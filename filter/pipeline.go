package filter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/internal/metrics"
	"github.com/youssefsiam38/agentloop/types"
)

const tracerName = "github.com/youssefsiam38/agentloop/filter"

// Pipeline runs an agent's ordered strategies over a conversation.
type Pipeline struct {
	registry *Registry
	store    driver.ConversationStore
	config   Config
	logger   Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	mu    sync.Mutex
	plans map[string][]Strategy
}

// NewPipeline creates a Pipeline. The store is only needed by Run.
// If config is nil, default configuration is used.
func NewPipeline(registry *Registry, store driver.ConversationStore, config *Config, logger Logger) *Pipeline {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = DefaultConfig()
	} else {
		c := *config
		c.ApplyDefaults()
		config = &c
	}
	if logger == nil {
		logger = noopLogger{}
	}

	return &Pipeline{
		registry: registry,
		store:    store,
		config:   *config,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		plans:    make(map[string][]Strategy),
	}
}

// SetMetrics enables Prometheus instrumentation.
func (p *Pipeline) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// SetTracer replaces the OpenTelemetry tracer.
func (p *Pipeline) SetTracer(t trace.Tracer) {
	p.tracer = t
}

// Prepare resolves and caches the strategies of the given agents, logging
// unknown names once.
func (p *Pipeline) Prepare(agents ...types.Agent) {
	for _, agent := range agents {
		p.plan(agent)
	}
}

// Run loads the conversation from the store and filters it.
// The error is only returned when the messages cannot be loaded.
func (p *Pipeline) Run(ctx context.Context, params Params) (*Result, error) {
	if p.store == nil || params.Conversation == nil {
		return nil, fmt.Errorf("filter: a store and a conversation are required to load messages")
	}
	messages, err := p.store.GetMessages(ctx, params.Conversation.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", params.Conversation.ID, err)
	}
	return p.Filter(ctx, messages, params), nil
}

// Filter runs the agent's strategies over messages.
func (p *Pipeline) Filter(ctx context.Context, messages []*types.Message, params Params) *Result {
	return p.run(ctx, p.plan(params.Agent), messages, params)
}

// FilterWith runs the named strategies over messages, ignoring the agent's
// configured list. Unknown names run as no-ops.
func (p *Pipeline) FilterWith(ctx context.Context, names []string, messages []*types.Message, params Params) *Result {
	return p.run(ctx, p.resolve(params.Agent.ID, names), messages, params)
}

func (p *Pipeline) plan(agent types.Agent) []Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()

	if plan, ok := p.plans[agent.ID]; ok {
		return plan
	}

	names := agent.Strategies
	if len(names) == 0 {
		names = []string{string(p.config.DefaultStrategy)}
	}
	plan := p.resolve(agent.ID, names)
	if agent.ID != "" {
		p.plans[agent.ID] = plan
	}
	return plan
}

func (p *Pipeline) resolve(agentID string, names []string) []Strategy {
	plan := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, ok := p.registry.Lookup(name)
		if !ok {
			p.logger.Warn("unknown filter strategy, using noop", "strategy", name, "agent_id", agentID)
		}
		plan = append(plan, s)
	}
	return plan
}

// accumulator is the fold state of a pipeline run. Each step returns a new
// value.
type accumulator struct {
	messages []*types.Message
	removed  IDSet
	labels   []string
	metadata map[string]any
}

func (a accumulator) step(r *Result) accumulator {
	labels := make([]string, len(a.labels), len(a.labels)+1)
	copy(labels, a.labels)

	metadata := make(map[string]any, len(a.metadata)+len(r.Metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	for k, v := range r.Metadata {
		metadata[k] = v
	}

	return accumulator{
		messages: r.Messages,
		removed:  a.removed.Union(r.RemovedIDs),
		labels:   append(labels, r.StrategyUsed),
		metadata: metadata,
	}
}

func (p *Pipeline) run(ctx context.Context, plan []Strategy, messages []*types.Message, params Params) *Result {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "filter.Pipeline.Run")
	defer span.End()

	if len(plan) == 0 {
		result := unchanged(append([]*types.Message(nil), messages...), string(StrategyNoop))
		result.Duration = time.Since(start)
		return result
	}

	fc := NewFilterContext(messages, params, p.config.DefaultContextLimit)
	acc := accumulator{messages: fc.Messages(), removed: IDSet{}}

	for _, strategy := range plan {
		r := p.apply(ctx, strategy, fc.WithMessages(acc.messages))
		p.metrics.StrategyRun(string(strategy.ID()), outcome(r))
		acc = acc.step(r)
	}

	result := &Result{
		Messages:      acc.messages,
		OriginalCount: len(messages),
		FilteredCount: len(acc.messages),
		RemovedIDs:    acc.removed,
		StrategyUsed:  strings.Join(acc.labels, "+"),
		Duration:      time.Since(start),
		Metadata:      acc.metadata,
	}

	p.metrics.PipelineRemoved(result.StrategyUsed, result.RemovedIDs.Len())

	span.SetAttributes(
		attribute.String("filter.strategy", result.StrategyUsed),
		attribute.Int("filter.original_count", result.OriginalCount),
		attribute.Int("filter.filtered_count", result.FilteredCount),
		attribute.Int("filter.removed_count", result.RemovedIDs.Len()),
	)

	p.logger.Debug("context filtered",
		"agent_id", params.Agent.ID,
		"strategy", result.StrategyUsed,
		"original_count", result.OriginalCount,
		"filtered_count", result.FilteredCount,
		"removed", result.RemovedIDs.Len(),
		"duration", result.Duration,
	)

	return result
}

// apply runs one strategy. A panicking strategy is treated as a no-op.
func (p *Pipeline) apply(ctx context.Context, s Strategy, fc *FilterContext) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("filter strategy panicked", "strategy", string(s.ID()), "panic", fmt.Sprint(r))
			result = unchanged(fc.Messages(), string(StrategyNoop))
		}
	}()

	result = s.Filter(ctx, fc)
	if result == nil {
		return unchanged(fc.Messages(), string(s.ID()))
	}
	return result
}

func outcome(r *Result) string {
	switch {
	case r.StrategyUsed == FallbackLabel:
		return "fallback"
	case r.Changed():
		return "applied"
	default:
		return "noop"
	}
}
