// Package metrics holds the Prometheus collectors shared by the loop, the
// context filter pipeline, the summarizer and the tool executor.
//
// Every method is safe to call on a nil *Metrics, so components can be built
// without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agentloop"

// Metrics groups the collectors.
type Metrics struct {
	// StrategyRuns counts filter strategy invocations.
	// Labels: strategy, outcome (applied|noop|fallback)
	StrategyRuns *prometheus.CounterVec

	// RemovedMessages observes how many messages a pipeline run removed.
	// Labels: strategy
	RemovedMessages *prometheus.HistogramVec

	// CompressionRatio observes summary tokens divided by original tokens.
	// Labels: backend
	CompressionRatio *prometheus.HistogramVec

	// SummarizedMessages observes how many messages one summary replaced.
	// Labels: backend
	SummarizedMessages *prometheus.HistogramVec

	// Summaries counts summarizer outcomes.
	// Labels: backend, status (completed|failed|reused)
	Summaries *prometheus.CounterVec

	// ToolExecutions counts tool calls.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// BackendDuration measures backend call latency in seconds.
	// Labels: backend, model, status (success|error)
	BackendDuration *prometheus.HistogramVec

	// Turns counts executed loop turns.
	// Labels: agent
	Turns *prometheus.CounterVec

	// Runs counts finished loop runs.
	// Labels: agent, status
	Runs *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StrategyRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "strategy_runs_total",
			Help:      "Context filter strategy invocations by outcome.",
		}, []string{"strategy", "outcome"}),

		RemovedMessages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "removed_messages",
			Help:      "Messages removed by one pipeline run.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 250},
		}, []string{"strategy"}),

		CompressionRatio: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "summarizer",
			Name:      "compression_ratio",
			Help:      "Summary tokens divided by original tokens.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
		}, []string{"backend"}),

		SummarizedMessages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "summarizer",
			Name:      "summarized_messages",
			Help:      "Messages replaced by one summary.",
			Buckets:   []float64{5, 10, 20, 50, 100, 250, 500},
		}, []string{"backend"}),

		Summaries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summarizer",
			Name:      "summaries_total",
			Help:      "Summaries by final status.",
		}, []string{"backend", "status"}),

		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Tool executions by status.",
		}, []string{"tool", "status"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "duration_seconds",
			Help:      "Tool execution time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),

		BackendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Backend call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"backend", "model", "status"}),

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "turns_total",
			Help:      "Executed loop turns.",
		}, []string{"agent"}),

		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "runs_total",
			Help:      "Finished loop runs by status.",
		}, []string{"agent", "status"}),
	}
}

// StrategyRun records one strategy invocation.
func (m *Metrics) StrategyRun(strategy, outcome string) {
	if m == nil {
		return
	}
	m.StrategyRuns.WithLabelValues(strategy, outcome).Inc()
}

// PipelineRemoved records the removed-message count of a pipeline run.
func (m *Metrics) PipelineRemoved(strategy string, n int) {
	if m == nil {
		return
	}
	m.RemovedMessages.WithLabelValues(strategy).Observe(float64(n))
}

// SummaryCompleted records the compression of a completed summary.
func (m *Metrics) SummaryCompleted(backend string, ratio float64, messages int) {
	if m == nil {
		return
	}
	m.CompressionRatio.WithLabelValues(backend).Observe(ratio)
	m.SummarizedMessages.WithLabelValues(backend).Observe(float64(messages))
	m.Summaries.WithLabelValues(backend, "completed").Inc()
}

// SummaryOutcome counts a summary that was reused or failed.
func (m *Metrics) SummaryOutcome(backend, status string) {
	if m == nil {
		return
	}
	m.Summaries.WithLabelValues(backend, status).Inc()
}

// ToolExecuted records a tool call.
func (m *Metrics) ToolExecuted(tool string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, status(success)).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// BackendCall records a backend call.
func (m *Metrics) BackendCall(backend, model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.BackendDuration.WithLabelValues(backend, model, status(err == nil)).Observe(d.Seconds())
}

// TurnExecuted counts a loop turn.
func (m *Metrics) TurnExecuted(agent string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(agent).Inc()
}

// RunFinished counts a finished loop run.
func (m *Metrics) RunFinished(agent, runStatus string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(agent, runStatus).Inc()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
