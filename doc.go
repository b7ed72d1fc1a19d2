// Package agentloop is the orchestration core of an agent runtime.
//
// A Loop drives a multi-turn exchange between an LLM backend and a set of
// tools while keeping the prompt inside the backend's context window. Every
// turn:
//
//  1. runs the agent's context filter strategies over the conversation
//     (see package filter), trimming or summarizing old messages until the
//     rest fits the token budget,
//  2. calls the agent's backend (see package backend), optionally
//     streaming chunks to the caller,
//  3. executes the requested tool calls one at a time in order (see
//     package tool) and appends their results.
//
// The run ends when the backend answers without tool calls
// (StatusCompleted), a tool fails under PolicyStop (StatusToolError), the
// backend or a hook fails (StatusError), ctx is cancelled
// (StatusCancelled) or MaxTurns is reached (StatusMaxTurnsReached).
//
// # Quick Start
//
//	backends := backend.NewRegistry(anthropic.New(anthropic.Config{APIKey: os.Getenv("ANTHROPIC_API_KEY")}))
//	store := memory.New()
//	summarizer := compaction.NewSummarizer(backends, store, nil, nil, logger)
//	pipeline := filter.NewPipeline(filter.NewDefaultRegistry(nil, summarizer, logger), store, nil, logger)
//	builtins, _ := builtin.NewRegistry(nil)
//
//	loop, err := agentloop.New(backends, pipeline, tool.NewExecutor(builtins, nil), nil,
//	    agentloop.WithStore(store),
//	    agentloop.WithLogger(logger),
//	)
//
//	result := loop.Run(ctx, agentloop.Request{
//	    Agent:        agent,
//	    Conversation: &types.Conversation{ID: "c1", AgentID: agent.ID},
//	    Input:        "Summarize the open issues",
//	})
//	if !result.OK() {
//	    log.Printf("run ended with %s: %v", result.Status, result.Err)
//	}
//
// # Streaming
//
// Set Request.Chunks to receive text, thinking and tool-call chunks while
// each backend call is in flight. The loop still waits for the full
// response before executing tools.
//
// # Hooks
//
// Register hooks (see package hooks) with WithHooks to observe turns,
// filter results, backend responses and tool calls. A hook error ends the
// run with StatusError.
package agentloop
