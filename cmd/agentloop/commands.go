package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "agentloop.yaml"

func buildRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run an agent until it answers without tool calls",
		Long: `Run an agent from the config file on a single prompt.

The loop filters the context before every backend call, executes the tools
the model requests and stops when the model answers, a tool fails under the
"stop" policy or max_turns is reached. With a PostgreSQL database configured
and --conversation set, history is loaded from and appended to the store.`,
		Example: `  agentloop run --agent coder "how many go files are in this repo?"
  agentloop run --agent coder --conversation c1 --stream "continue"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.prompt = args[0]
			return runAgent(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&opts.agentID, "agent", "a", "", "Agent id (default: first configured agent)")
	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "Conversation id to load and persist (default: a new id)")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print text as it is generated")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the full run result as JSON")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every turn, message and tool call")
	return cmd
}

func buildFilterCmd() *cobra.Command {
	var opts filterOptions

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Dry-run the context filter over a JSON message file",
		Long: `Apply an agent's filter strategies to a conversation read from a JSON
array of messages and print the filter result. No backend is called:
summarization falls back to token-budget trimming.`,
		Example: `  agentloop filter --agent coder --messages conv.json
  agentloop filter --agent coder --messages conv.json --strategies token_budget --context-limit 8000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.messagesPath == "" {
				return fmt.Errorf("--messages is required")
			}
			return runFilter(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&opts.agentID, "agent", "a", "", "Agent id (default: first configured agent)")
	cmd.Flags().StringVarP(&opts.messagesPath, "messages", "m", "", "Path to a JSON array of messages")
	cmd.Flags().StringSliceVar(&opts.strategies, "strategies", nil, "Strategies to run instead of the agent's list")
	cmd.Flags().IntVar(&opts.contextLimit, "context-limit", 0, "Override the agent's context limit")
	cmd.Flags().BoolVar(&opts.summaryOnly, "summary", false, "Omit the filtered messages from the output")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the conversation tables in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentloop %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
