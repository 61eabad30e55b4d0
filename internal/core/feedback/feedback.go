// Package feedback aggregates judge suggestions.
// This is part of the Functional Core - no I/O, only pure functions.
//
// Per-slot aggregation is plain concatenation and keeps duplicates.
// Deduplication only happens in Rank, which builds a separate view.
package feedback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/evoloop/internal/models"
)

// InstanceResult is the judge output for one task instance.
type InstanceResult struct {
	InstanceID  string
	Suggestions []string
}

// Consolidate concatenates per-instance suggestions for one slot. Results
// are ordered by instance ID so the outcome does not depend on the order in
// which judge calls completed.
func Consolidate(slot models.Slot, results []InstanceResult) models.ConsolidatedFeedback {
	sorted := make([]InstanceResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].InstanceID < sorted[j].InstanceID
	})

	out := models.ConsolidatedFeedback{Slot: slot}
	for _, r := range sorted {
		for _, s := range r.Suggestions {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			out.Items = append(out.Items, models.FeedbackItem{
				Slot:       slot,
				InstanceID: r.InstanceID,
				Text:       s,
			})
		}
	}
	return out
}

// Ranked is one deduplicated suggestion and how often it appeared.
type Ranked struct {
	Text  string
	Count int
	Slots []models.Slot
}

// Rank merges every slot's feedback into one deduplicated list, most
// frequent first. Suggestions are compared case-insensitively with
// whitespace collapsed; the first spelling seen in slot order is kept.
func Rank(bySlot map[models.Slot]models.ConsolidatedFeedback) []Ranked {
	slots := make([]models.Slot, 0, len(bySlot))
	for slot := range bySlot {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	index := map[string]int{}
	var ranked []Ranked
	var keys []string
	for _, slot := range slots {
		for _, item := range bySlot[slot].Items {
			key := normalize(item.Text)
			if key == "" {
				continue
			}
			i, ok := index[key]
			if !ok {
				i = len(ranked)
				index[key] = i
				ranked = append(ranked, Ranked{Text: item.Text})
				keys = append(keys, key)
			}
			ranked[i].Count++
			if !containsSlot(ranked[i].Slots, slot) {
				ranked[i].Slots = append(ranked[i].Slots, slot)
			}
		}
	}

	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := ranked[order[a]], ranked[order[b]]
		if ra.Count != rb.Count {
			return ra.Count > rb.Count
		}
		return keys[order[a]] < keys[order[b]]
	})

	out := make([]Ranked, len(order))
	for i, idx := range order {
		out[i] = ranked[idx]
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func containsSlot(slots []models.Slot, slot models.Slot) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}

// FormatBySlot renders each slot's suggestions under a delimiter line, in
// the given slot order.
func FormatBySlot(bySlot map[models.Slot]models.ConsolidatedFeedback, slots []models.Slot) string {
	var b strings.Builder
	for _, slot := range slots {
		fmt.Fprintf(&b, "---------- Slot %s feedback ----------\n", slot)
		fb := bySlot[slot]
		if len(fb.Items) == 0 {
			b.WriteString("(no suggestions)\n")
			continue
		}
		for _, item := range fb.Items {
			fmt.Fprintf(&b, "- %s\n", item.Text)
		}
	}
	return b.String()
}

// FormatRanked renders at most limit ranked suggestions. limit <= 0 means all.
func FormatRanked(ranked []Ranked, limit int) string {
	if len(ranked) == 0 {
		return "(none)"
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	var b strings.Builder
	for _, r := range ranked {
		fmt.Fprintf(&b, "- (%dx, slots %s) %s\n", r.Count, joinSlots(r.Slots), r.Text)
	}
	return b.String()
}

func joinSlots(slots []models.Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
