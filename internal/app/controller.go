package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/example/evoloop/internal/core/cycle"
	"github.com/example/evoloop/internal/ctxutil"
	"github.com/example/evoloop/internal/metrics"
	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/primary"
	"github.com/example/evoloop/internal/ports/secondary"
)

// CycleConfig holds the loop parameters. RunRequest fields override it per run.
type CycleConfig struct {
	Slots     []models.Slot
	BatchSize int
	Budget    int
	Threshold float64
	Seed      int64 // 0 picks a time-based seed
}

func (c CycleConfig) with(req primary.RunRequest) CycleConfig {
	if req.Budget > 0 {
		c.Budget = req.Budget
	}
	if req.Threshold > 0 {
		c.Threshold = req.Threshold
	}
	if req.BatchSize > 0 {
		c.BatchSize = req.BatchSize
	}
	if req.Seed != 0 {
		c.Seed = req.Seed
	}
	if c.Budget <= 0 {
		c.Budget = cycle.DefaultBudget
	}
	if c.Threshold <= 0 {
		c.Threshold = cycle.DefaultThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = cycle.DefaultBatchSize
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// CycleController drives SELECT, GENERATE, EVALUATE, FEEDBACK, EVOLVE and
// DECIDE until the run terminates. It owns the CycleState; components only
// see the inputs of their own stage.
type CycleController struct {
	cfg         CycleConfig
	population  primary.PopulationService
	benchmark   secondary.Benchmark
	generator   *CandidateGenerator
	evaluator   *EvaluationAdapter
	synthesizer *FeedbackSynthesizer
	evolver     *PromptEvolver
	runRepo     secondary.RunRepository
	logger      *slog.Logger

	newRunID func() string
}

// CycleDeps bundles the components a CycleController orchestrates.
type CycleDeps struct {
	Population  primary.PopulationService
	Benchmark   secondary.Benchmark
	Generator   *CandidateGenerator
	Evaluator   *EvaluationAdapter
	Synthesizer *FeedbackSynthesizer
	Evolver     *PromptEvolver
	RunRepo     secondary.RunRepository
}

// NewCycleController creates a CycleController with injected dependencies.
func NewCycleController(cfg CycleConfig, deps CycleDeps, logger *slog.Logger) *CycleController {
	return &CycleController{
		cfg:         cfg,
		population:  deps.Population,
		benchmark:   deps.Benchmark,
		generator:   deps.Generator,
		evaluator:   deps.Evaluator,
		synthesizer: deps.Synthesizer,
		evolver:     deps.Evolver,
		runRepo:     deps.RunRepo,
		logger:      logger,
		newRunID:    newRunID,
	}
}

func newRunID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
}

// run carries what one Run call shares across iterations.
type run struct {
	id     string
	cfg    CycleConfig
	pool   []models.TaskInstance
	rng    *rand.Rand
	state  *cycle.CycleState
	result *primary.RunResult
}

// Run executes the loop. It returns the partial result together with the
// error when an iteration aborts or ctx is canceled.
func (c *CycleController) Run(ctx context.Context, req primary.RunRequest) (*primary.RunResult, error) {
	cfg := c.cfg.with(req)
	if len(cfg.Slots) == 0 {
		return nil, fmt.Errorf("no slots configured")
	}

	seeded, err := c.population.EnsureSeeded(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to seed population: %w", err)
	}
	if len(seeded.Created) > 0 {
		c.logger.InfoContext(ctx, "population seeded", "created", len(seeded.Created))
	}

	pool, err := c.benchmark.Instances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark: %w", err)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("benchmark corpus is empty")
	}

	current, err := c.population.CurrentAgents(ctx)
	if err != nil {
		return nil, err
	}

	r := &run{
		id:    c.newRunID(),
		cfg:   cfg,
		pool:  pool,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		state: cycle.NewCycleState(cfg.Slots, current, cfg.Budget, cfg.Threshold),
		result: &primary.RunResult{
			Best: map[models.Slot]float64{},
		},
	}
	r.result.RunID = r.id
	if err := r.state.RequireAgents(); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "run started",
		"run_id", r.id,
		"slots", len(cfg.Slots),
		"batch_size", cfg.BatchSize,
		"budget", cfg.Budget,
		"threshold", cfg.Threshold,
		"seed", cfg.Seed,
		"corpus", len(pool))
	metrics.BestScore.Set(0)

	for {
		d, err := c.iterate(ctx, r)
		if err != nil {
			r.result.ExitReason = exitReason(ctx, err)
			c.logger.ErrorContext(ctx, "run stopped", "run_id", r.id, "reason", r.result.ExitReason, "error", err)
			return r.result, err
		}

		next, err := cycle.Next(cycle.StateDecide, d)
		if err != nil {
			return r.result, err
		}
		if err := r.state.Advance(next); err != nil {
			return r.result, err
		}
		if next == cycle.StateTerminated {
			r.result.ExitReason = string(d.Reason)
			c.logger.InfoContext(ctx, "run finished",
				"run_id", r.id,
				"iterations", r.result.Iterations,
				"best_score", r.result.BestScore,
				"reason", r.result.ExitReason)
			return r.result, nil
		}
	}
}

func exitReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return primary.ExitCanceled
	case models.IsEvaluationFailure(err):
		return primary.ExitEvaluationFailure
	default:
		return primary.ExitError
	}
}

// iterate runs one pass from SELECT to DECIDE. Any error aborts the
// iteration and is recorded against it.
func (c *CycleController) iterate(ctx context.Context, r *run) (cycle.Decision, error) {
	st := r.state
	number := st.Iteration + 1
	ctx = ctxutil.WithIteration(ctx, number)

	// SELECT
	st.ResetIteration()
	tasks, err := cycle.Sample(r.rng, r.pool, r.cfg.BatchSize)
	if err != nil {
		return cycle.Decision{}, err
	}
	st.Tasks = tasks

	iterationID, err := c.runRepo.CreateIteration(ctx, r.id, number)
	if err != nil {
		return cycle.Decision{}, fmt.Errorf("failed to record iteration: %w", err)
	}
	c.logger.InfoContext(ctx, "iteration started", "tasks", len(tasks))

	d, err := c.runStages(ctx, r, iterationID, number)
	if err != nil {
		c.abort(ctx, iterationID, err)
		return cycle.Decision{}, err
	}
	return d, nil
}

func (c *CycleController) runStages(ctx context.Context, r *run, iterationID int64, number int) (cycle.Decision, error) {
	st := r.state
	harnessRunID := fmt.Sprintf("%s-i%d", r.id, number)

	// GENERATE
	if err := c.enter(ctx, st, cycle.StateGenerate); err != nil {
		return cycle.Decision{}, err
	}
	if err := st.RequireTasks(); err != nil {
		return cycle.Decision{}, err
	}
	if err := st.RequireAgents(); err != nil {
		return cycle.Decision{}, err
	}
	gctx := ctxutil.WithStage(ctx, string(models.StageGenerate))
	for _, slot := range st.Slots {
		st.Proposals[slot] = c.generator.Generate(ctxutil.WithSlot(gctx, string(slot)), st.Tasks, st.Current[slot])
	}

	// EVALUATE
	if err := c.enter(ctx, st, cycle.StateEvaluate); err != nil {
		return cycle.Decision{}, err
	}
	if err := st.RequireProposals(); err != nil {
		return cycle.Decision{}, err
	}
	ectx := ctxutil.WithStage(ctx, string(models.StageEvaluate))
	for _, slot := range st.Slots {
		report, err := c.evaluator.Evaluate(ctxutil.WithSlot(ectx, string(slot)), harnessRunID, slot, st.Proposals[slot])
		if err != nil {
			return cycle.Decision{}, err
		}
		st.Reports[slot] = *report
		metrics.SlotScore.WithLabelValues(string(slot)).Set(report.ResolvedFraction())
	}

	// FEEDBACK
	if err := c.enter(ctx, st, cycle.StateFeedback); err != nil {
		return cycle.Decision{}, err
	}
	if err := st.RequireReports(); err != nil {
		return cycle.Decision{}, err
	}
	fctx := ctxutil.WithStage(ctx, string(models.StageFeedback))
	for _, slot := range st.Slots {
		sctx := ctxutil.WithSlot(fctx, string(slot))
		fb, err := c.synthesizer.SynthesizeSlot(sctx, harnessRunID, slot, st.Tasks, st.Proposals[slot])
		if err != nil {
			return cycle.Decision{}, err
		}
		st.Feedback[slot] = fb.Consolidated

		record := slotResultRecord(slot, st.Current[slot].ID, harnessRunID, st.Reports[slot], st.Proposals[slot], fb.PerProposal)
		if _, err := c.runRepo.SaveSlotResult(sctx, iterationID, record); err != nil {
			return cycle.Decision{}, fmt.Errorf("failed to record slot %s result: %w", slot, err)
		}
	}

	// EVOLVE
	if err := c.enter(ctx, st, cycle.StateEvolve); err != nil {
		return cycle.Decision{}, err
	}
	if err := c.evolve(ctxutil.WithStage(ctx, string(models.StageEvolve)), st, iterationID); err != nil {
		return cycle.Decision{}, err
	}

	// DECIDE
	if err := c.enter(ctx, st, cycle.StateDecide); err != nil {
		return cycle.Decision{}, err
	}
	d, err := st.Decide()
	if err != nil {
		return cycle.Decision{}, err
	}
	c.record(ctx, r, iterationID, d)
	return d, nil
}

// enter checks for cancellation and moves the state machine forward.
func (c *CycleController) enter(ctx context.Context, st *cycle.CycleState, to cycle.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return st.Advance(to)
}

func (c *CycleController) evolve(ctx context.Context, st *cycle.CycleState, iterationID int64) error {
	lineage, err := c.population.ListAgents(ctx, primary.AgentFilters{})
	if err != nil {
		return err
	}
	records := make([]models.AgentRecord, len(lineage))
	for i, a := range lineage {
		records[i] = *a
	}

	prompts, err := c.evolver.Evolve(ctx, EvolveInput{
		Slots:    st.Slots,
		Current:  st.Current,
		Lineage:  records,
		Feedback: st.Feedback,
	})
	if err != nil {
		return err
	}

	for _, slot := range st.Slots {
		p, ok := prompts[slot]
		if !ok {
			continue
		}
		child, err := c.population.AddChild(ctx, st.Current[slot], p)
		if err != nil {
			return err
		}
		st.Current[slot] = *child
		if err := c.runRepo.SetSuccessor(ctx, iterationID, slot, child.ID); err != nil {
			return fmt.Errorf("failed to record successor for slot %s: %w", slot, err)
		}
		c.logger.InfoContext(ctx, "agent evolved", "slot", slot, "agent_id", child.ID, "generation", child.Generation)
	}

	return c.population.SyncPromptState(ctx)
}

func (c *CycleController) record(ctx context.Context, r *run, iterationID int64, d cycle.Decision) {
	st := r.state
	for slot, report := range st.Reports {
		if score := report.ResolvedFraction(); score > r.result.Best[slot] {
			r.result.Best[slot] = score
		}
	}
	r.result.Iterations = st.Iteration
	r.result.BestScore = st.BestScore
	r.result.Decisions = append(r.result.Decisions, primary.Decision{
		Iteration: d.Iteration,
		MaxScore:  d.MaxScore,
		Terminate: d.Terminate,
		Reason:    string(d.Reason),
	})

	metrics.Iterations.WithLabelValues(secondary.IterationCompleted).Inc()
	metrics.BestScore.Set(st.BestScore)

	if err := c.runRepo.CompleteIteration(ctx, iterationID, secondary.IterationOutcome{
		Status:   secondary.IterationCompleted,
		MaxScore: d.MaxScore,
		Decision: string(d.Reason),
	}); err != nil {
		c.logger.ErrorContext(ctx, "failed to record iteration outcome", "error", err)
	}
	c.logger.InfoContext(ctx, "iteration decided", "decision", d.String())
}

// abort marks the iteration aborted. It runs even when ctx is canceled.
func (c *CycleController) abort(ctx context.Context, iterationID int64, cause error) {
	metrics.Iterations.WithLabelValues(secondary.IterationAborted).Inc()
	if err := c.runRepo.CompleteIteration(context.WithoutCancel(ctx), iterationID, secondary.IterationOutcome{
		Status: secondary.IterationAborted,
		Error:  cause.Error(),
	}); err != nil {
		c.logger.ErrorContext(ctx, "failed to record aborted iteration", "error", err)
	}
}

// errRepeatNotEvaluated marks a proposal for an instance already submitted
// earlier in the batch.
const errRepeatNotEvaluated = "not evaluated: instance repeated in batch"

func slotResultRecord(slot models.Slot, agentID int64, harnessRunID string, report models.EvaluationReport, proposals []models.PatchProposal, suggestions [][]string) *secondary.SlotResultRecord {
	record := &secondary.SlotResultRecord{
		Slot:         slot,
		AgentID:      agentID,
		HarnessRunID: harnessRunID,
		Submitted:    report.Submitted,
		Completed:    report.Completed,
		Resolved:     report.Resolved,
		Total:        report.Total,
		Score:        report.ResolvedFraction(),
	}
	seen := make(map[string]bool, len(proposals))
	for i, p := range proposals {
		pr := &secondary.ProposalRecord{
			InstanceID: p.InstanceID,
			ModelPatch: p.ModelPatch,
			Stats:      p.Stats,
		}
		switch {
		case p.Err != nil:
			pr.Error = p.Err.Error()
		case seen[p.InstanceID]:
			pr.Error = errRepeatNotEvaluated
		}
		if !seen[p.InstanceID] {
			pr.Resolved = report.Passed(p.InstanceID)
		}
		seen[p.InstanceID] = true
		if i < len(suggestions) {
			pr.Suggestions = suggestions[i]
		}
		record.Proposals = append(record.Proposals, pr)
	}
	return record
}

var _ primary.CycleService = (*CycleController)(nil)
