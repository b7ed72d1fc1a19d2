package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/youssefsiam38/agentloop"
	"github.com/youssefsiam38/agentloop/backend"
	"github.com/youssefsiam38/agentloop/compaction"
	"github.com/youssefsiam38/agentloop/config"
	"github.com/youssefsiam38/agentloop/driver/databasesql"
	"github.com/youssefsiam38/agentloop/driver/pgxv5"
	"github.com/youssefsiam38/agentloop/filter"
	"github.com/youssefsiam38/agentloop/types"
)

type runOptions struct {
	configPath     string
	agentID        string
	conversationID string
	prompt         string
	stream         bool
	jsonOutput     bool
	metricsAddr    string
	verbose        bool
}

func runAgent(ctx context.Context, out io.Writer, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	agent, err := selectAgent(f, opts.agentID)
	if err != nil {
		return err
	}

	logger := newLogger(opts.verbose)
	rt, err := newRuntime(ctx, f, logger, opts.verbose)
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tools, err := rt.toolsFor(agent.ID)
	if err != nil {
		return err
	}

	conversationID := opts.conversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	req := agentloop.Request{
		Agent:        agent,
		Conversation: &types.Conversation{ID: conversationID, AgentID: agent.ID},
		Input:        opts.prompt,
		Tools:        tools,
	}

	var printed chan struct{}
	if opts.stream {
		chunks := make(chan backend.Chunk, 64)
		printed = make(chan struct{})
		req.Chunks = chunks
		go func() {
			defer close(printed)
			for c := range chunks {
				switch c.Type {
				case backend.ChunkText:
					fmt.Fprint(out, c.Text)
				case backend.ChunkDone:
					fmt.Fprintln(out)
				}
			}
		}()
		defer func() {
			close(chunks)
			<-printed
		}()
	}

	result := rt.loop.Run(ctx, req)
	logger.Info("run finished",
		"conversation_id", conversationID,
		"status", result.Status,
		"turns", result.TurnsExecuted,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
	)

	switch {
	case opts.jsonOutput:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	case !opts.stream:
		fmt.Fprintln(out, result.Text())
	}

	if !result.OK() {
		return fmt.Errorf("run ended with status %s: %w", result.Status, result.Err)
	}
	return nil
}

type filterOptions struct {
	configPath   string
	agentID      string
	messagesPath string
	strategies   []string
	contextLimit int
	summaryOnly  bool
}

func runFilter(ctx context.Context, out io.Writer, opts filterOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	agent, err := selectAgent(f, opts.agentID)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.messagesPath)
	if err != nil {
		return fmt.Errorf("read messages: %w", err)
	}
	var messages []*types.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("parse messages: %w", err)
	}

	logger := newLogger(false)
	estimator := compaction.NewEstimator(&f.Estimator)
	pipeline := filter.NewPipeline(filter.NewDefaultRegistry(estimator, nil, logger), nil, &f.Filter, logger)

	params := filter.Params{Agent: agent, ContextLimit: opts.contextLimit}
	var result *filter.Result
	if len(opts.strategies) > 0 {
		result = pipeline.FilterWith(ctx, opts.strategies, messages, params)
	} else {
		result = pipeline.Filter(ctx, messages, params)
	}

	report := struct {
		*filter.Result
		Messages        []*types.Message `json:"messages,omitempty"`
		EstimatedTokens int              `json:"estimated_tokens"`
	}{
		Result:          result,
		EstimatedTokens: estimator.EstimateMessages(result.Messages),
	}
	if !opts.summaryOnly {
		report.Messages = result.Messages
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runMigrate(ctx context.Context, out io.Writer, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := config.Load(configPath)
	if err != nil {
		return err
	}

	switch f.Database.Driver {
	case config.DriverPgx:
		pool, err := openPool(ctx, f.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pgxv5.New(pool).Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	case config.DriverPostgres:
		db, err := openDB(ctx, f.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := databasesql.New(db).Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	default:
		return fmt.Errorf("migrate requires a pgx or postgres database, got %q", f.Database.Driver)
	}

	fmt.Fprintln(out, "schema applied")
	return nil
}
