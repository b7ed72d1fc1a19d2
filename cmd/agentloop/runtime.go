package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/youssefsiam38/agentloop"
	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/backend/anthropic"
	"github.com/youssefsiam38/agentloop/backend/openai"
	"github.com/youssefsiam38/agentloop/compaction"
	"github.com/youssefsiam38/agentloop/config"
	"github.com/youssefsiam38/agentloop/driver"
	"github.com/youssefsiam38/agentloop/driver/databasesql"
	"github.com/youssefsiam38/agentloop/driver/memory"
	"github.com/youssefsiam38/agentloop/driver/pgxv5"
	"github.com/youssefsiam38/agentloop/filter"
	"github.com/youssefsiam38/agentloop/hooks"
	"github.com/youssefsiam38/agentloop/internal/metrics"
	"github.com/youssefsiam38/agentloop/tool"
	"github.com/youssefsiam38/agentloop/tool/builtin"
	"github.com/youssefsiam38/agentloop/types"
)

// runtime holds the components assembled from a config file.
type runtime struct {
	file      *config.File
	logger    *slog.Logger
	backends  *backend.Registry
	store     driver.Store
	estimator *compaction.Estimator
	pipeline  *filter.Pipeline
	executor  *tool.Executor
	loop      *agentloop.Loop
	metrics   *metrics.Metrics
	registry  *prometheus.Registry

	// tools caches the caller tools of each agent.
	tools map[string][]tool.Tool

	close func()
}

// newRuntime wires every component described by f. The caller must call
// Close.
func newRuntime(ctx context.Context, f *config.File, logger *slog.Logger, verbose bool) (*runtime, error) {
	rt := &runtime{
		file:     f,
		logger:   logger,
		backends: newBackends(f.Backends),
		registry: prometheus.NewRegistry(),
		tools:    make(map[string][]tool.Tool),
		close:    func() {},
	}
	rt.metrics = metrics.New(rt.registry)

	store, closeStore, err := openStore(ctx, f.Database)
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.close = closeStore

	rt.estimator = compaction.NewEstimator(&f.Estimator)

	summarizer := compaction.NewSummarizer(rt.backends, store, rt.estimator, &f.Summarizer, logger)
	summarizer.SetMetrics(rt.metrics)

	rt.pipeline = filter.NewPipeline(filter.NewDefaultRegistry(rt.estimator, summarizer, logger), store, &f.Filter, logger)
	rt.pipeline.SetMetrics(rt.metrics)
	rt.pipeline.Prepare(f.Agents...)

	builtins, err := builtin.NewRegistry(&f.Shell)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.executor = tool.NewExecutor(builtins, &f.Executor)
	rt.executor.SetLogger(logger)
	rt.executor.SetMetrics(rt.metrics)

	hookRegistry := hooks.NewRegistry()
	hooks.NewLoggingHooks(logger, verbose).Register(hookRegistry)

	rt.loop, err = agentloop.New(rt.backends, rt.pipeline, rt.executor, &f.Loop,
		agentloop.WithLogger(logger),
		agentloop.WithHooks(hookRegistry),
		agentloop.WithMetrics(rt.metrics),
		agentloop.WithStore(store),
		agentloop.WithEstimator(rt.estimator),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases the store.
func (rt *runtime) Close() {
	rt.close()
}

func newBackends(configs []config.BackendConfig) *backend.Registry {
	registry := backend.NewRegistry()
	for _, c := range configs {
		switch c.Provider {
		case config.ProviderAnthropic:
			registry.Register(anthropic.New(c.Anthropic()))
		case config.ProviderOpenAI:
			registry.Register(openai.New(c.OpenAI()))
		}
	}
	return registry
}

// openStore opens the configured conversation store.
func openStore(ctx context.Context, db config.DatabaseConfig) (driver.Store, func(), error) {
	switch db.Driver {
	case config.DriverPgx:
		pool, err := openPool(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		return pgxv5.NewStore(pgxv5.New(pool)), pool.Close, nil

	case config.DriverPostgres:
		sqlDB, err := openDB(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		return databasesql.NewStore(databasesql.New(sqlDB)), func() { _ = sqlDB.Close() }, nil

	default:
		return memory.New(), func() {}, nil
	}
}

func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if db.MaxConns > 0 {
		poolConfig.MaxConns = db.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func openDB(ctx context.Context, db config.DatabaseConfig) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", db.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if db.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(db.MaxConns))
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return sqlDB, nil
}

// selectAgent returns the agent named id, or the first agent when id is empty.
func selectAgent(f *config.File, id string) (types.Agent, error) {
	if id == "" {
		if len(f.Agents) == 0 {
			return types.Agent{}, fmt.Errorf("no agents configured")
		}
		return f.Agents[0], nil
	}
	a, ok := f.Agent(id)
	if !ok {
		return types.Agent{}, fmt.Errorf("agent %q not found", id)
	}
	return a, nil
}

// toolsFor returns the caller tools of agent id. Names of other agents
// become delegation tools; names of built-ins are skipped since the
// executor always offers them.
func (rt *runtime) toolsFor(id string) ([]tool.Tool, error) {
	return rt.resolveTools(id, map[string]bool{})
}

func (rt *runtime) resolveTools(id string, visiting map[string]bool) ([]tool.Tool, error) {
	if tools, ok := rt.tools[id]; ok {
		return tools, nil
	}
	if visiting[id] {
		return nil, fmt.Errorf("agent %q delegates to itself through its tools", id)
	}
	visiting[id] = true
	defer delete(visiting, id)

	agent, ok := rt.file.Agent(id)
	if !ok {
		return nil, fmt.Errorf("agent %q not found", id)
	}

	var tools []tool.Tool
	for _, name := range agent.Tools {
		if rt.executor.Builtins().Has(name) {
			continue
		}
		sub, ok := rt.file.Agent(name)
		if !ok {
			return nil, fmt.Errorf("agent %q: unknown tool %q", id, name)
		}
		subTools, err := rt.resolveTools(name, visiting)
		if err != nil {
			return nil, err
		}
		description := ""
		if sub.Name != "" {
			description = fmt.Sprintf("Delegate task to %s", sub.Name)
		}
		t, err := builtin.NewAgentTool(rt.loop, sub, subTools, name, description)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", id, err)
		}
		tools = append(tools, t)
	}

	rt.tools[id] = tools
	return tools, nil
}
