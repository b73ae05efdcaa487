// Package commands defines all Cobra CLI commands for the agentrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/agentrag-go/internal/audit"
	"github.com/54b3r/agentrag-go/internal/config"
	"github.com/54b3r/agentrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentrag",
		Short: "agentrag: retrieval-augmented agents over your PDF documents",
		Long: `agentrag is a RAG orchestration backend.

Upload PDF documents, build named vector indexes from them, and define agents
that answer questions with an optional bound index. Long index builds run as
background jobs whose progress can be polled or streamed over SSE.

The chat model is selected via MODEL_PROVIDER, the embedder via
EMBEDDING_PROVIDER and the vector backend via VECTOR_BACKEND, or through a
YAML config file (~/.agentrag/config.yaml).
See 'agentrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(cmd.Context(), log, cmd.CommandPath(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.agentrag/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewAgentsCmd(),
		NewVersionCmd(),
	)

	return root
}
