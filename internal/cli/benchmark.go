package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/evoloop/internal/adapters/benchmark"
	"github.com/example/evoloop/internal/wire"
)

// BenchmarkCmd returns the benchmark command
func BenchmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Inspect the task corpus",
	}
	cmd.AddCommand(benchmarkExportCmd())
	return cmd
}

func benchmarkExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Load the configured corpus and write it as JSON Lines",
		Long: `Load every task instance from the configured source and write them as
JSON Lines. The output can be used with benchmark.source: file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			corpus, err := wire.Benchmark()
			if err != nil {
				return err
			}
			instances, err := corpus.Instances(context.Background())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := benchmark.Encode(w, instances); err != nil {
				return fmt.Errorf("failed to write corpus: %w", err)
			}
			if out != "" && out != "-" {
				fmt.Printf("✓ Wrote %d instance(s) to %s\n", len(instances), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	return cmd
}
