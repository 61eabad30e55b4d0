// Package population contains the pure rules for the agent population.
// This is part of the Functional Core - no I/O, only pure functions.
package population

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/evoloop/internal/models"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// AddAgentContext provides context for agent creation guards.
type AddAgentContext struct {
	Slot        models.Slot
	KnownSlots  []models.Slot
	Prompt      string
	ParentID    int64
	ParentFound bool
	ParentSlot  models.Slot
}

// CanAddAgent evaluates whether an agent record may be appended.
// Rules:
// - Slot must be one of the configured slots
// - Prompt must not be empty
// - An evolved agent's parent must exist and belong to the same slot
func CanAddAgent(ctx AddAgentContext) GuardResult {
	if !containsSlot(ctx.KnownSlots, ctx.Slot) {
		return GuardResult{Reason: fmt.Sprintf("unknown slot %q (configured: %s)", ctx.Slot, JoinSlots(ctx.KnownSlots))}
	}
	if strings.TrimSpace(ctx.Prompt) == "" {
		return GuardResult{Reason: fmt.Sprintf("cannot add agent for slot %s: prompt is empty", ctx.Slot)}
	}
	if ctx.ParentID != 0 {
		if !ctx.ParentFound {
			return GuardResult{Reason: fmt.Sprintf("parent agent %d not found", ctx.ParentID)}
		}
		if ctx.ParentSlot != ctx.Slot {
			return GuardResult{Reason: fmt.Sprintf("parent agent %d belongs to slot %s, not %s", ctx.ParentID, ctx.ParentSlot, ctx.Slot)}
		}
	}
	return GuardResult{Allowed: true}
}

// Child builds the record that replaces parent with an evolved prompt.
func Child(parent models.AgentRecord, prompt string) models.AgentRecord {
	return models.AgentRecord{
		Slot:       parent.Slot,
		Prompt:     prompt,
		Generation: parent.Generation + 1,
		ParentID:   parent.ID,
	}
}

// Seed builds a generation-0 record.
func Seed(slot models.Slot, prompt string) models.AgentRecord {
	return models.AgentRecord{Slot: slot, Prompt: prompt}
}

// SeedPlan decides which slots need a seed record at startup.
// Slots with no current agent get the stored prompt, or fallback when the
// prompt state has none. Slots whose stored prompt differs from the current
// agent get a new generation-0 record carrying the stored prompt.
func SeedPlan(slots []models.Slot, current map[models.Slot]models.AgentRecord, stored map[models.Slot]string, fallback string) []models.AgentRecord {
	var plan []models.AgentRecord
	for _, slot := range slots {
		prompt, hasStored := stored[slot]
		hasStored = hasStored && strings.TrimSpace(prompt) != ""
		agent, hasAgent := current[slot]

		switch {
		case !hasAgent && hasStored:
			plan = append(plan, Seed(slot, prompt))
		case !hasAgent:
			plan = append(plan, Seed(slot, fallback))
		case hasStored && prompt != agent.Prompt:
			plan = append(plan, Seed(slot, prompt))
		}
	}
	return plan
}

// CurrentBySlot returns the latest record per slot from an id-ordered list.
func CurrentBySlot(records []models.AgentRecord) map[models.Slot]models.AgentRecord {
	out := map[models.Slot]models.AgentRecord{}
	for _, r := range records {
		if prev, ok := out[r.Slot]; !ok || r.ID > prev.ID {
			out[r.Slot] = r
		}
	}
	return out
}

// FormatLineage renders every record in creation order, each under its own
// delimiter line.
func FormatLineage(records []models.AgentRecord) string {
	sorted := make([]models.AgentRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	for _, r := range sorted {
		fmt.Fprintf(&b, "---------- Agent %d (slot %s, generation %d) ----------\n", r.ID, r.Slot, r.Generation)
		b.WriteString(strings.TrimRight(r.Prompt, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatCurrent renders the current prompt of each slot in slot order.
func FormatCurrent(slots []models.Slot, current map[models.Slot]models.AgentRecord) string {
	var b strings.Builder
	for _, slot := range slots {
		r, ok := current[slot]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "---------- Slot %s: agent %d (generation %d) ----------\n", slot, r.ID, r.Generation)
		b.WriteString(strings.TrimRight(r.Prompt, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// ParseSlots turns a comma-separated list into distinct slots.
func ParseSlots(s string) ([]models.Slot, error) {
	var out []models.Slot
	seen := map[models.Slot]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		slot := models.Slot(part)
		if seen[slot] {
			return nil, fmt.Errorf("duplicate slot %q", part)
		}
		seen[slot] = true
		out = append(out, slot)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no slots given")
	}
	return out, nil
}

// JoinSlots renders slots as "A, B, C".
func JoinSlots(slots []models.Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

func containsSlot(slots []models.Slot, slot models.Slot) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
