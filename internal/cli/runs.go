package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/example/evoloop/internal/wire"
)

// RunsCmd returns the runs command
func RunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded iterations",
		Long:  "List iterations and show per-slot scores, proposals, and judge suggestions",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var (
		runID string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List iterations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return wire.RunAdapter().List(context.Background(), runID, limit)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Only list iterations of this run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of iterations")
	return cmd
}

func runsShowCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "show [iteration-id]",
		Short: "Show one iteration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "iteration")
			if err != nil {
				return err
			}
			return wire.RunAdapter().Show(context.Background(), id, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show every proposal and its suggestions")
	return cmd
}
