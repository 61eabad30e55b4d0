package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/evoloop/internal/core/feedback"
	"github.com/example/evoloop/internal/core/population"
	"github.com/example/evoloop/internal/core/prompt"
	"github.com/example/evoloop/internal/core/response"
	"github.com/example/evoloop/internal/metrics"
	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// recurringLimit caps the ranked suggestions shown to the evolver.
const recurringLimit = 20

// Prompt candidate results for metrics.
const (
	candidateAccepted  = "accepted"
	candidateRejected  = "rejected"
	candidateUnchanged = "unchanged"
	candidateMissing   = "missing"
)

// PromptEvolver asks the judge for one new coder prompt per slot.
type PromptEvolver struct {
	judge    secondary.TextGenerator
	template string
	logger   *slog.Logger
}

// NewPromptEvolver creates a PromptEvolver. An empty template selects the built-in one.
func NewPromptEvolver(judge secondary.TextGenerator, template string, logger *slog.Logger) *PromptEvolver {
	if template == "" {
		template = prompt.EvolverPrompt
	}
	return &PromptEvolver{judge: judge, template: template, logger: logger}
}

// EvolveInput is everything the evolver sees in one EVOLVE step.
type EvolveInput struct {
	Slots    []models.Slot
	Current  map[models.Slot]models.AgentRecord
	Lineage  []models.AgentRecord
	Feedback map[models.Slot]models.ConsolidatedFeedback
}

// Evolve returns the accepted new prompt per slot. Slots missing from the
// result keep their current agent. Backend and parse failures make the step
// a no-op; only a broken evolver template is returned as an error.
func (e *PromptEvolver) Evolve(ctx context.Context, in EvolveInput) (map[models.Slot]string, error) {
	rendered, err := prompt.Render(e.template, map[string]string{
		prompt.KeyFeedback:    feedback.FormatBySlot(in.Feedback, in.Slots),
		prompt.KeyRecurring:   feedback.FormatRanked(feedback.Rank(in.Feedback), recurringLimit),
		prompt.KeyLineage:     population.FormatLineage(in.Lineage),
		prompt.KeyCurrentSlot: population.FormatCurrent(in.Slots, in.Current),
		prompt.KeySlotList:    slotList(in.Slots),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render evolver prompt: %w", err)
	}

	raw, err := e.judge.Complete(ctx, rendered)
	if err != nil {
		err = &models.BackendFailureError{Stage: models.StageEvolve, Err: err}
		e.logger.WarnContext(ctx, "evolver call failed, keeping current agents", "error", err)
		return map[models.Slot]string{}, nil
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(response.ExtractJSON(raw)), &fields); err != nil {
		err = &models.MalformedResponseError{Stage: models.StageEvolve, Err: err}
		e.logger.WarnContext(ctx, "evolver response not usable, keeping current agents", "error", err)
		return map[models.Slot]string{}, nil
	}

	if summary, ok := fields["learning_summary"]; ok {
		var text string
		if json.Unmarshal(summary, &text) == nil && text != "" {
			e.logger.InfoContext(ctx, "evolver learning summary", "summary", text)
		}
	}

	accepted := map[models.Slot]string{}
	for _, slot := range in.Slots {
		candidate, result := e.candidate(ctx, slot, fields, in.Current)
		metrics.PromptCandidates.WithLabelValues(result).Inc()
		if result == candidateAccepted {
			accepted[slot] = candidate
		}
	}
	return accepted, nil
}

func (e *PromptEvolver) candidate(ctx context.Context, slot models.Slot, fields map[string]json.RawMessage, current map[models.Slot]models.AgentRecord) (string, string) {
	raw, ok := fields[string(slot)]
	if !ok {
		e.logger.WarnContext(ctx, "evolver returned no prompt for slot", "slot", slot)
		return "", candidateMissing
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		err = &models.InvalidPromptCandidateError{Slot: slot, Err: fmt.Errorf("value is not a string")}
		e.logger.WarnContext(ctx, "rejected prompt candidate", "error", err)
		return "", candidateRejected
	}

	if err := prompt.ValidateCoderPrompt(text); err != nil {
		err = &models.InvalidPromptCandidateError{Slot: slot, Err: err}
		e.logger.WarnContext(ctx, "rejected prompt candidate", "error", err)
		return "", candidateRejected
	}

	if agent, ok := current[slot]; ok && agent.Prompt == text {
		return "", candidateUnchanged
	}
	return text, candidateAccepted
}

// slotList renders slots as `"A", "B", "C"` for the evolver's field list.
func slotList(slots []models.Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = fmt.Sprintf("%q", string(s))
	}
	return strings.Join(parts, ", ")
}
