package agentloop

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/youssefsiam38/agentloop/compaction"
	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/hooks"
	"github.com/youssefsiam38/agentloop/internal/metrics"
)

// Option is a functional option for configuring a Loop
type Option func(*Loop)

// WithLogger sets the logger. *slog.Logger satisfies Logger.
func WithLogger(logger Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithHooks sets the hook registry.
func WithHooks(r *hooks.Registry) Option {
	return func(l *Loop) {
		l.hooks = r
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// WithTracer replaces the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithStore persists conversations. Runs for a Request with a Conversation
// load their history from the store and append every new message to it.
func WithStore(store driver.ConversationStore) Option {
	return func(l *Loop) {
		l.store = store
	}
}

// WithEstimator sets the estimator used for tool definition tokens.
func WithEstimator(e *compaction.Estimator) Option {
	return func(l *Loop) {
		if e != nil {
			l.estimator = e
		}
	}
}
