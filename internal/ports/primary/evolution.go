package primary

import (
	"context"

	"github.com/example/evoloop/internal/models"
)

// CycleService defines the primary port for running the evolution loop.
type CycleService interface {
	// Run drives SELECT through DECIDE until the loop terminates, the
	// context is canceled, or an evaluation failure aborts an iteration.
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// RunRequest overrides loop parameters for one run. Zero values keep the
// configured defaults.
type RunRequest struct {
	Budget    int
	Threshold float64
	BatchSize int
	Seed      int64
}

// Exit reasons reported in RunResult.
const (
	ExitThreshold         = "threshold"
	ExitBudget            = "budget"
	ExitEvaluationFailure = "evaluation_failure"
	ExitCanceled          = "canceled"
	ExitError             = "error"
)

// RunResult summarizes a finished run.
type RunResult struct {
	RunID      string
	Iterations int
	BestScore  float64
	ExitReason string
	Decisions  []Decision
	Best       map[models.Slot]float64 // best score per slot across the run
}

// Decision is one DECIDE outcome.
type Decision struct {
	Iteration int
	MaxScore  float64
	Terminate bool
	Reason    string
}

// PopulationService defines the primary port for the agent population.
type PopulationService interface {
	// ListAgents lists agents, optionally for one slot.
	ListAgents(ctx context.Context, filters AgentFilters) ([]*models.AgentRecord, error)

	// GetAgent retrieves an agent by id.
	GetAgent(ctx context.Context, id int64) (*models.AgentRecord, error)

	// Ancestry returns the chain from the seed to the given agent.
	Ancestry(ctx context.Context, id int64) ([]*models.AgentRecord, error)

	// CurrentAgents returns the latest agent of each configured slot.
	CurrentAgents(ctx context.Context) (map[models.Slot]models.AgentRecord, error)

	// EnsureSeeded reconciles the store with the persisted prompt state.
	EnsureSeeded(ctx context.Context) (*SeedResponse, error)

	// AddChild appends an evolved agent for the parent's slot.
	AddChild(ctx context.Context, parent models.AgentRecord, prompt string) (*models.AgentRecord, error)

	// SyncPromptState writes the current prompt of every slot to the prompt state file.
	SyncPromptState(ctx context.Context) error
}

// AgentFilters contains filter options for listing agents.
type AgentFilters struct {
	Slot models.Slot
}

// SeedResponse reports the records created by EnsureSeeded.
type SeedResponse struct {
	Created []*models.AgentRecord
}

// RunHistoryService defines the primary port for iteration history.
type RunHistoryService interface {
	// ListIterations lists recorded iterations, newest first.
	ListIterations(ctx context.Context, filters IterationFilters) ([]*Iteration, error)

	// GetIteration retrieves one iteration with per-slot results.
	GetIteration(ctx context.Context, id int64) (*Iteration, error)
}

// IterationFilters contains filter options for listing iterations.
type IterationFilters struct {
	RunID string
	Limit int
}

// Iteration is the public view of a recorded iteration.
type Iteration struct {
	ID          int64
	RunID       string
	Number      int
	Status      string
	MaxScore    float64
	Decision    string
	Error       string
	StartedAt   string
	CompletedAt string
	Slots       []*SlotResult
}

// SlotResult is one slot's evaluation in an iteration.
type SlotResult struct {
	Slot         models.Slot
	AgentID      int64
	SuccessorID  int64
	HarnessRunID string
	Submitted    int
	Resolved     int
	Score        float64
	Proposals    []*Proposal
}

// Proposal is one stored patch proposal.
type Proposal struct {
	InstanceID  string
	Resolved    bool
	Error       string
	Stats       models.DiffStats
	Suggestions []string
	ModelPatch  string
}
