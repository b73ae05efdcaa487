package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/agentrag-go/internal/store"
)

// NewAgentsCmd constructs the `agentrag agents` command group for managing
// stored agent configurations without running the server.
func NewAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Create, list and delete stored agents",
	}
	cmd.AddCommand(newAgentsListCmd(), newAgentsCreateCmd(), newAgentsDeleteCmd())
	return cmd
}

// openAgentStore opens only the agent database; agent management needs no
// embedder or vector store.
func openAgentStore() (*store.SQLiteStore, error) {
	path, err := agentsDBPath()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

func newAgentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openAgentStore()
			if err != nil {
				return fmt.Errorf("agents list: %w", err)
			}
			defer s.Close()

			agents, err := s.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("agents list: %w", err)
			}
			return printAgents(cmd.OutOrStdout(), agents)
		},
	}
}

func newAgentsCreateCmd() *cobra.Command {
	var in store.AgentInput
	var indexName string
	var temperature float64
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent",
		Long: `Create an agent from a name and a system instruction.

Examples:
  agentrag agents create --name support --instruction "Answer from the handbook." --index handbook
  agentrag agents create --name chat --instruction "Be concise." --temperature 0.2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("index") {
				in.IndexName = &indexName
			}
			if cmd.Flags().Changed("temperature") {
				in.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				in.MaxTokens = &maxTokens
			}

			s, err := openAgentStore()
			if err != nil {
				return fmt.Errorf("agents create: %w", err)
			}
			defer s.Close()

			a, err := s.Create(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("agents create: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "Agent name")
	cmd.Flags().StringVar(&in.SystemInstruction, "instruction", "", "System instruction")
	cmd.Flags().StringVar(&indexName, "index", "", "Index to retrieve context from")
	cmd.Flags().Float64Var(&temperature, "temperature", store.DefaultTemperature, "Sampling temperature (0-2)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens per answer")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("instruction")

	return cmd
}

func newAgentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [agent-id]",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openAgentStore()
			if err != nil {
				return fmt.Errorf("agents delete: %w", err)
			}
			defer s.Close()

			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("agents delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent %s deleted successfully\n", args[0])
			return nil
		},
	}
}

// printAgents renders agents as an aligned table.
func printAgents(w io.Writer, agents []store.Agent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tINDEX\tTEMPERATURE")
	for _, a := range agents {
		idx := "-"
		if a.HasIndex() {
			idx = *a.IndexName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", a.ID, a.Name, idx, a.Temperature)
	}
	return tw.Flush()
}
