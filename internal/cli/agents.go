package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/evoloop/internal/wire"
)

// AgentsCmd returns the agents command
func AgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect the agent population",
		Long:  "List, show, and seed the prompt-defined coder agents",
	}
	cmd.AddCommand(agentsListCmd())
	cmd.AddCommand(agentsShowCmd())
	cmd.AddCommand(agentsSeedCmd())
	return cmd
}

func agentsListCmd() *cobra.Command {
	var slot string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return wire.AgentAdapter().List(context.Background(), slot)
		},
	}
	cmd.Flags().StringVar(&slot, "slot", "", "Only list agents of this slot")
	return cmd
}

func agentsShowCmd() *cobra.Command {
	var ancestry bool
	cmd := &cobra.Command{
		Use:   "show [agent-id]",
		Short: "Show an agent and its prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "agent")
			if err != nil {
				return err
			}
			return wire.AgentAdapter().Show(context.Background(), id, ancestry)
		},
	}
	cmd.Flags().BoolVar(&ancestry, "ancestry", false, "Also show every ancestor, oldest first")
	return cmd
}

func agentsSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed empty slots and pick up edits to the prompt state file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return wire.AgentAdapter().Seed(context.Background())
		},
	}
}

func parseID(s, kind string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s id %q: expected a positive number", kind, s)
	}
	return id, nil
}
