// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/primary"
)

// AgentAdapter is a thin adapter that translates CLI operations to PopulationService calls.
type AgentAdapter struct {
	service primary.PopulationService
	out     io.Writer
}

// NewAgentAdapter creates a new AgentAdapter with the given service.
func NewAgentAdapter(service primary.PopulationService, out io.Writer) *AgentAdapter {
	return &AgentAdapter{
		service: service,
		out:     out,
	}
}

// List lists agents, optionally for one slot.
func (a *AgentAdapter) List(ctx context.Context, slot string) error {
	agents, err := a.service.ListAgents(ctx, primary.AgentFilters{Slot: models.Slot(slot)})
	if err != nil {
		return err
	}

	if len(agents) == 0 {
		fmt.Fprintln(a.out, "No agents found")
		return nil
	}

	current, err := a.service.CurrentAgents(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSLOT\tGEN\tPARENT\tCREATED\tPROMPT")
	for _, agent := range agents {
		parent := "-"
		if !agent.IsSeed() {
			parent = fmt.Sprintf("%d", agent.ParentID)
		}
		marker := ""
		if cur, ok := current[agent.Slot]; ok && cur.ID == agent.ID {
			marker = " *"
		}
		fmt.Fprintf(w, "%d%s\t%s\t%d\t%s\t%s\t%s\n",
			agent.ID, marker, agent.Slot, agent.Generation, parent,
			agent.CreatedAt.Format("2006-01-02 15:04"), firstLine(agent.Prompt, 60))
	}
	w.Flush()
	fmt.Fprintln(a.out, "\n* current agent of its slot")
	return nil
}

// Show displays one agent with its full prompt. With ancestry set, every
// ancestor is printed first, oldest first.
func (a *AgentAdapter) Show(ctx context.Context, id int64, ancestry bool) error {
	var chain []*models.AgentRecord
	if ancestry {
		records, err := a.service.Ancestry(ctx, id)
		if err != nil {
			return err
		}
		chain = records
	} else {
		agent, err := a.service.GetAgent(ctx, id)
		if err != nil {
			return fmt.Errorf("agent %d not found: %w", id, err)
		}
		chain = append(chain, agent)
	}

	for i, agent := range chain {
		if i > 0 {
			fmt.Fprintln(a.out)
		}
		fmt.Fprintf(a.out, "Agent:      %d\n", agent.ID)
		fmt.Fprintf(a.out, "Slot:       %s\n", agent.Slot)
		fmt.Fprintf(a.out, "Generation: %d\n", agent.Generation)
		if !agent.IsSeed() {
			fmt.Fprintf(a.out, "Parent:     %d\n", agent.ParentID)
		}
		fmt.Fprintf(a.out, "Created:    %s\n", agent.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
		fmt.Fprintln(a.out, strings.TrimRight(agent.Prompt, "\n"))
	}
	return nil
}

// Seed reconciles the population with the prompt state file.
func (a *AgentAdapter) Seed(ctx context.Context) error {
	resp, err := a.service.EnsureSeeded(ctx)
	if err != nil {
		return err
	}
	if len(resp.Created) == 0 {
		fmt.Fprintln(a.out, "✓ Population already up to date")
		return nil
	}
	for _, agent := range resp.Created {
		fmt.Fprintf(a.out, "✓ Seeded agent %d for slot %s\n", agent.ID, agent.Slot)
	}
	return nil
}

// firstLine returns the first non-blank line of s, cut to limit runes.
func firstLine(s string, limit int) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > limit {
			return string(r[:limit-1]) + "…"
		}
		return line
	}
	return ""
}
