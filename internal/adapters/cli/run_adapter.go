package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/example/evoloop/internal/ports/primary"
)

// RunAdapter translates CLI operations to CycleService and RunHistoryService calls.
type RunAdapter struct {
	cycle   primary.CycleService
	history primary.RunHistoryService
	out     io.Writer
}

// NewRunAdapter creates a new RunAdapter. cycle may be nil for read-only commands.
func NewRunAdapter(cycle primary.CycleService, history primary.RunHistoryService, out io.Writer) *RunAdapter {
	return &RunAdapter{
		cycle:   cycle,
		history: history,
		out:     out,
	}
}

// Run executes the loop and prints a summary. The summary is printed even
// when the run stops early.
func (a *RunAdapter) Run(ctx context.Context, req primary.RunRequest) error {
	if a.cycle == nil {
		return fmt.Errorf("cycle service is not configured")
	}

	result, err := a.cycle.Run(ctx, req)
	if result != nil {
		a.printResult(result)
	}
	return err
}

func (a *RunAdapter) printResult(result *primary.RunResult) {
	fmt.Fprintf(a.out, "\nRun %s\n", result.RunID)
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	for _, d := range result.Decisions {
		fmt.Fprintf(a.out, "  iteration %d  max score %.3f  %s\n", d.Iteration, d.MaxScore, decisionLabel(d))
	}
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "Iterations: %d\n", result.Iterations)
	fmt.Fprintf(a.out, "Best score: %.3f\n", result.BestScore)
	fmt.Fprintf(a.out, "Exit:       %s\n", exitLabel(result.ExitReason))
}

func decisionLabel(d primary.Decision) string {
	if !d.Terminate {
		return "continue"
	}
	return color.New(color.FgGreen).Sprintf("stop (%s)", d.Reason)
}

func exitLabel(reason string) string {
	switch reason {
	case primary.ExitThreshold:
		return color.New(color.FgGreen).Sprint("✓ threshold reached")
	case primary.ExitBudget:
		return color.New(color.FgYellow).Sprint("budget exhausted")
	case "":
		return "-"
	default:
		return color.New(color.FgRed).Sprint(reason)
	}
}

// List lists recorded iterations, newest first.
func (a *RunAdapter) List(ctx context.Context, runID string, limit int) error {
	iterations, err := a.history.ListIterations(ctx, primary.IterationFilters{RunID: runID, Limit: limit})
	if err != nil {
		return err
	}

	if len(iterations) == 0 {
		fmt.Fprintln(a.out, "No iterations found")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRUN\tITER\tSTATUS\tMAX SCORE\tDECISION\tSTARTED")
	for _, it := range iterations {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%.3f\t%s\t%s\n",
			it.ID, it.RunID, it.Number, statusLabel(it.Status), it.MaxScore, orDash(it.Decision), it.StartedAt)
	}
	w.Flush()
	return nil
}

// Show displays one iteration with its per-slot results. With verbose set,
// every proposal and its judge suggestions are printed.
func (a *RunAdapter) Show(ctx context.Context, id int64, verbose bool) error {
	it, err := a.history.GetIteration(ctx, id)
	if err != nil {
		return fmt.Errorf("iteration %d not found: %w", id, err)
	}

	fmt.Fprintf(a.out, "\nIteration: %d (run %s, #%d)\n", it.ID, it.RunID, it.Number)
	fmt.Fprintf(a.out, "Status:    %s\n", statusLabel(it.Status))
	fmt.Fprintf(a.out, "Max score: %.3f\n", it.MaxScore)
	fmt.Fprintf(a.out, "Decision:  %s\n", orDash(it.Decision))
	if it.Error != "" {
		fmt.Fprintf(a.out, "Error:     %s\n", it.Error)
	}
	fmt.Fprintf(a.out, "Started:   %s\n", it.StartedAt)
	if it.CompletedAt != "" {
		fmt.Fprintf(a.out, "Completed: %s\n", it.CompletedAt)
	}

	if len(it.Slots) == 0 {
		fmt.Fprintln(a.out, "\nNo slot results recorded")
		return nil
	}

	fmt.Fprintln(a.out)
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tAGENT\tRESOLVED\tSCORE\tSUCCESSOR\tHARNESS RUN")
	for _, sr := range it.Slots {
		successor := "-"
		if sr.SuccessorID != 0 {
			successor = fmt.Sprintf("%d", sr.SuccessorID)
		}
		fmt.Fprintf(w, "%s\t%d\t%d/%d\t%.3f\t%s\t%s\n",
			sr.Slot, sr.AgentID, sr.Resolved, sr.Submitted, sr.Score, successor, sr.HarnessRunID)
	}
	w.Flush()

	if !verbose {
		return nil
	}
	for _, sr := range it.Slots {
		fmt.Fprintf(a.out, "\n---------- Slot %s ----------\n", sr.Slot)
		for _, p := range sr.Proposals {
			mark := "✗"
			if p.Resolved {
				mark = "✓"
			}
			fmt.Fprintf(a.out, "%s %s  files=%d +%d -%d\n", mark, p.InstanceID, p.Stats.Files, p.Stats.Added, p.Stats.Deleted)
			if p.Error != "" {
				fmt.Fprintf(a.out, "    error: %s\n", p.Error)
			}
			for _, s := range p.Suggestions {
				fmt.Fprintf(a.out, "    - %s\n", s)
			}
		}
	}
	return nil
}

func statusLabel(status string) string {
	switch status {
	case "completed":
		return color.New(color.FgGreen).Sprint(status)
	case "aborted":
		return color.New(color.FgRed).Sprint(status)
	default:
		return color.New(color.FgYellow).Sprint(status)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
