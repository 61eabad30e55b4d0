package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/example/evoloop/internal/core/prompt"
	"github.com/example/evoloop/internal/core/response"
	"github.com/example/evoloop/internal/ctxutil"
	"github.com/example/evoloop/internal/metrics"
	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// CandidateGenerator asks one agent for a patch on every task of a batch.
type CandidateGenerator struct {
	backend     secondary.TextGenerator
	concurrency int
	logger      *slog.Logger
}

// NewCandidateGenerator creates a generator with injected dependencies.
func NewCandidateGenerator(backend secondary.TextGenerator, concurrency int, logger *slog.Logger) *CandidateGenerator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &CandidateGenerator{backend: backend, concurrency: concurrency, logger: logger}
}

// Generate returns exactly one proposal per instance, in input order. A
// failure on one instance tags that proposal with an error and leaves the
// others untouched.
func (g *CandidateGenerator) Generate(ctx context.Context, instances []models.TaskInstance, agent models.AgentRecord) []models.PatchProposal {
	proposals := make([]models.PatchProposal, len(instances))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, inst := range instances {
		eg.Go(func() error {
			proposals[i] = g.generateOne(egCtx, inst, agent)
			return nil
		})
	}
	eg.Wait()

	failed := 0
	for _, p := range proposals {
		if p.Failed() {
			failed++
		}
	}
	if failed > 0 {
		metrics.ProposalFailures.WithLabelValues(string(agent.Slot)).Add(float64(failed))
	}
	g.logger.InfoContext(ctx, "generation finished",
		"agent_id", agent.ID, "proposals", len(proposals), "failed", failed)
	return proposals
}

func (g *CandidateGenerator) generateOne(ctx context.Context, inst models.TaskInstance, agent models.AgentRecord) models.PatchProposal {
	ctx = ctxutil.WithInstance(ctx, inst.ID)
	proposal := models.PatchProposal{
		InstanceID:      inst.ID,
		ModelNameOrPath: string(agent.Slot),
	}

	rendered, err := prompt.Render(agent.Prompt, prompt.CoderBindings(inst.Repo, inst.ProblemStatement, inst.TestPatch))
	if err != nil {
		proposal.Err = &models.InvalidPromptCandidateError{Slot: agent.Slot, Err: err}
		g.logger.WarnContext(ctx, "failed to render coder prompt", "error", err)
		return proposal
	}

	raw, err := g.backend.Complete(ctx, rendered)
	if err != nil {
		proposal.Err = &models.BackendFailureError{
			Slot:       agent.Slot,
			InstanceID: inst.ID,
			Stage:      models.StageGenerate,
			Err:        err,
		}
		g.logger.WarnContext(ctx, "generation call failed", "error", err)
		return proposal
	}

	resp := response.Parse(raw)
	if resp.Patch == nil {
		proposal.Err = &models.MalformedResponseError{
			Slot:       agent.Slot,
			InstanceID: inst.ID,
			Stage:      models.StageGenerate,
			Err:        fmt.Errorf("response has no Patch section"),
		}
		g.logger.WarnContext(ctx, "response has no Patch section", "response_chars", len(raw))
		return proposal
	}

	patch := resp.Patch.DiffCode
	if patch != "" && !strings.HasSuffix(patch, "\n") {
		// git apply rejects a final hunk line without a newline.
		patch += "\n"
	}
	proposal.ModelPatch = patch

	stats, err := response.DiffStats(patch)
	if err != nil {
		g.logger.WarnContext(ctx, "patch is not a well-formed diff", "error", err)
	}
	proposal.Stats = stats
	return proposal
}
