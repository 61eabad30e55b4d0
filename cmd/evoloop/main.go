package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/evoloop/internal/cli"
	"github.com/example/evoloop/internal/version"
	"github.com/example/evoloop/internal/wire"
)

func main() {
	var dir string

	rootCmd := &cobra.Command{
		Use:     "evoloop",
		Short:   "evoloop - self-improving coder agents on SWE-bench",
		Version: version.String(),
		Long: `evoloop evolves prompt-defined coder agents. Each iteration the agents
propose patches for a batch of SWE-bench tasks, the harness scores them, a
judge turns the results into suggestions, and an evolver rewrites the prompts.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			wire.SetProjectDir(dir)
		},
	}
	rootCmd.PersistentFlags().StringVar(&dir, "dir", ".", "Project directory holding .evoloop/")

	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.RunCmd())

	// Inspection
	rootCmd.AddCommand(cli.AgentsCmd())
	rootCmd.AddCommand(cli.RunsCmd())
	rootCmd.AddCommand(cli.PromptCmd())
	rootCmd.AddCommand(cli.BenchmarkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
