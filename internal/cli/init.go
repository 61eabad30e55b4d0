package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/evoloop/internal/config"
	"github.com/example/evoloop/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an evoloop project",
		Long: `Write .evoloop/config.yaml with the defaults, create the database, and seed
one agent per slot from the prompt state file or the built-in coder prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := wire.ProjectDir()
			path := filepath.Join(dir, config.Dir, config.FileName)

			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("Config already exists at %s (use --force to overwrite)\n", path)
			} else {
				if err := config.SaveConfig(dir, config.Default()); err != nil {
					return err
				}
				fmt.Printf("✓ Config written to %s\n", path)
			}

			if err := wire.AgentAdapter().Seed(context.Background()); err != nil {
				return fmt.Errorf("failed to seed population: %w", err)
			}

			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Printf("  export %s=...\n", config.EnvAPIKey)
			fmt.Println("  evoloop agents list")
			fmt.Println("  evoloop run --budget 5")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config with the defaults")
	return cmd
}
