// Package main provides the agentloop CLI.
//
// Run an agent from a config file:
//
//	agentloop run --config agentloop.yaml --agent coder "list the files in /tmp"
//
// Dry-run the context filter over a saved conversation:
//
//	agentloop filter --config agentloop.yaml --agent coder --messages conv.json
//
// Create the PostgreSQL tables:
//
//	agentloop migrate --config agentloop.yaml
//
// Environment variables referenced as ${NAME} in the config file are
// expanded before parsing.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentloop",
		Short:        "Run tool-using LLM agents with context filtering",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildFilterCmd(),
		buildMigrateCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// newLogger returns a JSON logger on stderr, at debug level when verbose.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
