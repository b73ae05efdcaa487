package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/agentrag-go/internal/agent"
	"github.com/54b3r/agentrag-go/internal/logging"
	"github.com/54b3r/agentrag-go/internal/tracing"
)

// NewAskCmd constructs the `agentrag ask` command, which runs one query
// against a stored agent and streams the answer to stdout.
func NewAskCmd() *cobra.Command {
	var agentID string
	var showContext bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a stored agent a question",
		Long: `Run a single query against a stored agent and stream the answer.

Agents bound to an index retrieve the most relevant chunks first; pass
--context to print them before the answer.

Examples:
  agentrag ask --agent 3f2c... "what is the refund policy?"
  agentrag ask --agent 3f2c... --context "summarise chapter two"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			b, err := openBackend(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = b.Close() }()
			if err := b.withExecutor(ctx); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			query := strings.Join(args, " ")
			for ev := range b.executor.ExecuteStream(ctx, agentID, query) {
				switch ev.Type {
				case agent.EventMetadata:
					fmt.Fprintf(errOut, "agent: %s (rag: %t)\n", ev.AgentName, ev.HasRAG)
				case agent.EventContext:
					if showContext {
						for i, d := range ev.Documents {
							fmt.Fprintf(errOut, "--- context %d (%s)\n%s\n", i+1, d.Metadata["source"], d.Content)
						}
					}
				case agent.EventContent:
					fmt.Fprint(out, ev.Content)
				case agent.EventDone:
					fmt.Fprintf(out, "\n")
					fmt.Fprintf(errOut, "done in %.0f ms\n", ev.ExecutionTimeMS)
				case agent.EventError:
					return errors.New(ev.Err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent id to query")
	cmd.Flags().BoolVar(&showContext, "context", false, "Print retrieved context to stderr")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}
