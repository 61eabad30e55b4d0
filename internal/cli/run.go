package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/evoloop/internal/metrics"
	"github.com/example/evoloop/internal/ports/primary"
	"github.com/example/evoloop/internal/wire"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var (
		req         primary.RunRequest
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the evolution loop",
		Long: `Run SELECT, GENERATE, EVALUATE, FEEDBACK, EVOLVE and DECIDE until the best
resolved fraction reaches the threshold or the iteration budget is spent.

Flags override the values in .evoloop/config.yaml for this run only.
Interrupting the run aborts the current iteration; completed iterations
and evolved agents are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr == "" {
				metricsAddr = wire.Config().MetricsAddr
			}
			if metricsAddr != "" {
				bound, err := metrics.Serve(ctx, metricsAddr, wire.Logger())
				if err != nil {
					return err
				}
				fmt.Printf("Metrics on http://%s/metrics\n", bound)
			}

			adapter, err := wire.CycleAdapter()
			if err != nil {
				return err
			}
			return adapter.Run(ctx, req)
		},
	}

	cmd.Flags().IntVar(&req.Budget, "budget", 0, "Maximum number of iterations")
	cmd.Flags().Float64Var(&req.Threshold, "threshold", 0, "Resolved fraction that ends the run")
	cmd.Flags().IntVar(&req.BatchSize, "batch-size", 0, "Task instances sampled per iteration")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "Sampling seed (0 picks one from the clock)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}
