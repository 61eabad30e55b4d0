package secondary

import (
	"context"

	"github.com/example/evoloop/internal/models"
)

// AgentRepository defines the secondary port for the agent population.
// The population is append-only: there is no update or delete.
type AgentRepository interface {
	// Add appends a record and returns its id. Ids strictly increase.
	Add(ctx context.Context, record *models.AgentRecord) (int64, error)

	// List returns every record ordered by id.
	List(ctx context.Context) ([]*models.AgentRecord, error)

	// ListBySlot returns one slot's records ordered by id.
	ListBySlot(ctx context.Context, slot models.Slot) ([]*models.AgentRecord, error)

	// Current returns the latest record for a slot, or nil if the slot is empty.
	Current(ctx context.Context, slot models.Slot) (*models.AgentRecord, error)

	// Get retrieves a record by id.
	Get(ctx context.Context, id int64) (*models.AgentRecord, error)
}

// RunRepository defines the secondary port for iteration history.
type RunRepository interface {
	// CreateIteration records the start of an iteration and returns its id.
	CreateIteration(ctx context.Context, runID string, number int) (int64, error)

	// SaveSlotResult stores one slot's report and proposals for an iteration.
	SaveSlotResult(ctx context.Context, iterationID int64, result *SlotResultRecord) (int64, error)

	// SetSuccessor links a slot result to the agent evolved from it.
	SetSuccessor(ctx context.Context, iterationID int64, slot models.Slot, agentID int64) error

	// CompleteIteration records how an iteration ended.
	CompleteIteration(ctx context.Context, iterationID int64, outcome IterationOutcome) error

	// ListIterations retrieves iterations matching the given filters, newest first.
	ListIterations(ctx context.Context, filters IterationFilters) ([]*IterationRecord, error)

	// GetIteration retrieves an iteration with its slot results and proposals.
	GetIteration(ctx context.Context, id int64) (*IterationRecord, error)
}

// Iteration statuses.
const (
	IterationRunning   = "running"
	IterationCompleted = "completed"
	IterationAborted   = "aborted"
)

// IterationRecord represents an iteration as stored in persistence.
type IterationRecord struct {
	ID          int64
	RunID       string
	Number      int
	Status      string
	MaxScore    float64
	Decision    string
	Error       string
	StartedAt   string
	CompletedAt string
	Slots       []*SlotResultRecord // only populated by GetIteration
}

// IterationOutcome is written when an iteration finishes.
type IterationOutcome struct {
	Status   string
	MaxScore float64
	Decision string
	Error    string
}

// IterationFilters contains filter options for querying iterations.
type IterationFilters struct {
	RunID string
	Limit int
}

// SlotResultRecord represents one slot's evaluation in an iteration.
type SlotResultRecord struct {
	ID           int64
	Slot         models.Slot
	AgentID      int64
	HarnessRunID string
	Submitted    int
	Completed    int
	Resolved     int
	Total        int
	Score        float64
	SuccessorID  int64
	Proposals    []*ProposalRecord
}

// ProposalRecord represents one stored patch proposal.
type ProposalRecord struct {
	InstanceID  string
	ModelPatch  string
	Error       string
	Stats       models.DiffStats
	Resolved    bool
	Suggestions []string
}

// TextGenerator is the text-generation backend.
type TextGenerator interface {
	// Complete sends one prompt and returns the model's text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Benchmark provides the task corpus.
type Benchmark interface {
	// Instances returns every task instance in the corpus.
	Instances(ctx context.Context) ([]models.TaskInstance, error)
}

// HarnessRequest describes one evaluation batch.
type HarnessRequest struct {
	RunID           string
	Slot            models.Slot
	PredictionsPath string
	InstanceIDs     []string
}

// Harness runs the external evaluation harness.
type Harness interface {
	// Run evaluates one slot's predictions. Any failure to produce a report
	// is an error; a missing report is never treated as zero resolved.
	Run(ctx context.Context, req HarnessRequest) (*models.EvaluationReport, error)
}

// ExecutionLogs reads the per-instance logs the harness leaves behind.
type ExecutionLogs interface {
	// Excerpt returns the first n lines of the instance's execution log.
	Excerpt(ctx context.Context, runID string, slot models.Slot, instanceID string, n int) (string, error)
}

// PromptStateStore persists the current prompt of every slot.
type PromptStateStore interface {
	// Load returns the stored prompts. A missing file is an empty map.
	Load(ctx context.Context) (map[models.Slot]string, error)

	// Save atomically replaces the stored prompts.
	Save(ctx context.Context, prompts map[models.Slot]string) error
}

// PredictionWriter persists one slot's proposals as a single collection.
type PredictionWriter interface {
	// WritePredictions writes the proposals and returns the file path.
	WritePredictions(ctx context.Context, runID string, slot models.Slot, proposals []models.PatchProposal) (string, error)
}
