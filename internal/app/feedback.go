package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/example/evoloop/internal/core/feedback"
	"github.com/example/evoloop/internal/core/prompt"
	"github.com/example/evoloop/internal/core/response"
	"github.com/example/evoloop/internal/ctxutil"
	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// LogSource supplies execution-log excerpts to the judge.
type LogSource interface {
	LogExcerpt(ctx context.Context, runID string, slot models.Slot, instanceID string, n int) string
}

// FeedbackSynthesizer asks the judge for improvement suggestions on every
// (agent, task) pair of an iteration.
type FeedbackSynthesizer struct {
	judge        secondary.TextGenerator
	template     string
	logs         LogSource
	excerptLines int
	concurrency  int
	logger       *slog.Logger
}

// SynthesizerOptions configures NewFeedbackSynthesizer.
type SynthesizerOptions struct {
	Template     string
	ExcerptLines int
	Concurrency  int
}

// NewFeedbackSynthesizer creates a FeedbackSynthesizer with injected dependencies.
func NewFeedbackSynthesizer(judge secondary.TextGenerator, logs LogSource, opts SynthesizerOptions, logger *slog.Logger) *FeedbackSynthesizer {
	if opts.Template == "" {
		opts.Template = prompt.JudgePrompt
	}
	if opts.ExcerptLines <= 0 {
		opts.ExcerptLines = 50
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &FeedbackSynthesizer{
		judge:        judge,
		template:     opts.Template,
		logs:         logs,
		excerptLines: opts.ExcerptLines,
		concurrency:  opts.Concurrency,
		logger:       logger,
	}
}

// SlotFeedback is the judge output for one slot.
type SlotFeedback struct {
	Consolidated models.ConsolidatedFeedback
	// PerProposal holds the suggestions for proposals[i] at index i.
	PerProposal [][]string
}

type judgeResponse struct {
	PotentialImprovements json.RawMessage `json:"potential_improvements"`
}

// Synthesize returns the judge's suggestions for one proposal. Backend and
// parse failures are logged and yield no suggestions.
func (f *FeedbackSynthesizer) Synthesize(ctx context.Context, task models.TaskInstance, predictedPatch, logExcerpt string) []string {
	ctx = ctxutil.WithInstance(ctx, task.ID)
	slot := models.Slot(ctxutil.SlotFromContext(ctx))

	rendered, err := prompt.Render(f.template, map[string]string{
		prompt.KeyRepo:             task.Repo,
		prompt.KeyProblemStatement: task.ProblemStatement,
		prompt.KeyTestPatch:        task.TestPatch,
		prompt.KeyPredictedPatch:   predictedPatch,
		prompt.KeyAgentPatchLog:    logExcerpt,
		prompt.KeyReferencePatch:   task.Patch,
	})
	if err != nil {
		f.logger.ErrorContext(ctx, "failed to render judge prompt", "error", err)
		return nil
	}

	raw, err := f.judge.Complete(ctx, rendered)
	if err != nil {
		err = &models.BackendFailureError{Slot: slot, InstanceID: task.ID, Stage: models.StageFeedback, Err: err}
		f.logger.WarnContext(ctx, "judge call failed", "error", err)
		return nil
	}

	suggestions, err := decodeSuggestions(raw)
	if err != nil {
		err = &models.MalformedResponseError{Slot: slot, InstanceID: task.ID, Stage: models.StageFeedback, Err: err}
		f.logger.WarnContext(ctx, "judge response not usable", "error", err)
		return nil
	}
	return suggestions
}

// SynthesizeSlot judges every proposal of one slot. proposals[i] must answer
// tasks[i]. A repeated instance is judged once, for its first proposal,
// since that is the one the harness evaluated and logged; later repeats get
// no suggestions.
func (f *FeedbackSynthesizer) SynthesizeSlot(ctx context.Context, runID string, slot models.Slot, tasks []models.TaskInstance, proposals []models.PatchProposal) (*SlotFeedback, error) {
	if len(tasks) != len(proposals) {
		return nil, fmt.Errorf("slot %s has %d proposals for %d tasks", slot, len(proposals), len(tasks))
	}

	perProposal := make([][]string, len(proposals))
	seen := make(map[string]bool, len(proposals))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.concurrency)
	for i := range proposals {
		if seen[proposals[i].InstanceID] {
			continue
		}
		seen[proposals[i].InstanceID] = true
		eg.Go(func() error {
			task := tasks[i]
			excerpt := f.logs.LogExcerpt(egCtx, runID, slot, task.ID, f.excerptLines)
			perProposal[i] = f.Synthesize(egCtx, task, proposals[i].ModelPatch, excerpt)
			return nil
		})
	}
	eg.Wait()

	results := make([]feedback.InstanceResult, len(proposals))
	for i, p := range proposals {
		results[i] = feedback.InstanceResult{InstanceID: p.InstanceID, Suggestions: perProposal[i]}
	}
	consolidated := feedback.Consolidate(slot, results)

	f.logger.InfoContext(ctx, "feedback synthesized", "suggestions", len(consolidated.Items))
	return &SlotFeedback{Consolidated: consolidated, PerProposal: perProposal}, nil
}

func decodeSuggestions(raw string) ([]string, error) {
	var resp judgeResponse
	if err := json.Unmarshal([]byte(response.ExtractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode judge response: %w", err)
	}
	if len(resp.PotentialImprovements) == 0 {
		return nil, fmt.Errorf("judge response has no potential_improvements field")
	}

	var list []string
	if err := json.Unmarshal(resp.PotentialImprovements, &list); err == nil {
		return list, nil
	}
	// Some models answer with a single string instead of a list.
	var single string
	if err := json.Unmarshal(resp.PotentialImprovements, &single); err == nil {
		return []string{single}, nil
	}
	return nil, fmt.Errorf("potential_improvements is neither a list nor a string")
}
