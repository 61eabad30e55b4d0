package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/evoloop/internal/adapters/benchmark"
	"github.com/example/evoloop/internal/core/prompt"
	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/wire"
)

// PromptCmd returns the prompt command
func PromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Validate and render prompt templates",
	}
	cmd.AddCommand(promptValidateCmd())
	cmd.AddCommand(promptRenderCmd())
	cmd.AddCommand(promptTemplateCmd())
	return cmd
}

func promptValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check coder prompts render with only repo, problem_statement and test_patch bound",
		Long: `Validate coder prompt files. Without arguments the current agent of every
slot is validated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates := map[string]string{}
			var order []string
			if len(args) == 0 {
				current, err := wire.PopulationService().CurrentAgents(context.Background())
				if err != nil {
					return err
				}
				for _, slot := range wire.Config().Slots {
					agent, ok := current[slot]
					if !ok {
						continue
					}
					name := fmt.Sprintf("slot %s (agent %d)", slot, agent.ID)
					candidates[name] = agent.Prompt
					order = append(order, name)
				}
			}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				candidates[path] = string(data)
				order = append(order, path)
			}

			failed := validatePrompts(cmd.OutOrStdout(), order, candidates)
			if failed > 0 {
				return fmt.Errorf("%d prompt(s) failed validation", failed)
			}
			return nil
		},
	}
}

// validatePrompts reports each candidate and returns the number of failures.
func validatePrompts(out io.Writer, order []string, candidates map[string]string) int {
	failed := 0
	for _, name := range order {
		if err := prompt.ValidateCoderPrompt(candidates[name]); err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", color.New(color.FgRed).Sprint("✗"), name, err)
			continue
		}
		fmt.Fprintf(out, "%s %s\n", color.New(color.FgGreen).Sprint("✓"), name)
	}
	return failed
}

func promptRenderCmd() *cobra.Command {
	var (
		slot       string
		agentID    int64
		taskFile   string
		instanceID string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an agent's coder prompt for one task instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			agent, err := resolveAgent(ctx, models.Slot(slot), agentID)
			if err != nil {
				return err
			}

			task, err := loadTask(ctx, taskFile, instanceID)
			if err != nil {
				return err
			}

			rendered, err := prompt.Render(agent.Prompt, prompt.CoderBindings(task.Repo, task.ProblemStatement, task.TestPatch))
			if err != nil {
				return fmt.Errorf("failed to render agent %d: %w", agent.ID, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	cmd.Flags().StringVar(&slot, "slot", "A", "Render the current agent of this slot")
	cmd.Flags().Int64Var(&agentID, "agent", 0, "Render this agent instead of the slot's current one")
	cmd.Flags().StringVar(&taskFile, "task", "", "JSON or JSON Lines file with task instances, - for stdin (default: the configured corpus)")
	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance to render (default: the first one)")
	return cmd
}

func resolveAgent(ctx context.Context, slot models.Slot, id int64) (*models.AgentRecord, error) {
	service := wire.PopulationService()
	if id != 0 {
		return service.GetAgent(ctx, id)
	}
	current, err := service.CurrentAgents(ctx)
	if err != nil {
		return nil, err
	}
	agent, ok := current[slot]
	if !ok {
		return nil, fmt.Errorf("slot %s has no agent; run 'evoloop agents seed'", slot)
	}
	return &agent, nil
}

func loadTask(ctx context.Context, path, instanceID string) (*models.TaskInstance, error) {
	if path == "" {
		corpus, err := wire.Benchmark()
		if err != nil {
			return nil, err
		}
		instances, err := corpus.Instances(ctx)
		if err != nil {
			return nil, err
		}
		return pickInstance(instances, instanceID)
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	instances, err := benchmark.Decode(r)
	if err != nil {
		return nil, err
	}
	return pickInstance(instances, instanceID)
}

func pickInstance(instances []models.TaskInstance, instanceID string) (*models.TaskInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no task instances")
	}
	if instanceID == "" {
		return &instances[0], nil
	}
	for i := range instances {
		if instances[i].ID == instanceID {
			return &instances[i], nil
		}
	}
	return nil, fmt.Errorf("instance %s not found", instanceID)
}

func promptTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "template [coder|judge|evolver]",
		Short:     "Print a template in effect (built-in or configured override)",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"coder", "judge", "evolver"},
		RunE: func(cmd *cobra.Command, args []string) error {
			set := wire.Templates()
			switch args[0] {
			case "coder":
				fmt.Fprint(cmd.OutOrStdout(), set.Coder)
			case "judge":
				fmt.Fprint(cmd.OutOrStdout(), set.Judge)
			case "evolver":
				fmt.Fprint(cmd.OutOrStdout(), set.Evolver)
			}
			return nil
		},
	}
}
