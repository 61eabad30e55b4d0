package cycle

import (
	"fmt"

	"github.com/example/evoloop/internal/models"
)

// CycleState is the working data of one run. It is owned by a single
// goroutine; stage inputs are checked explicitly before each stage runs.
type CycleState struct {
	State     State
	Slots     []models.Slot
	Tasks     []models.TaskInstance
	Current   map[models.Slot]models.AgentRecord
	Proposals map[models.Slot][]models.PatchProposal
	Reports   map[models.Slot]models.EvaluationReport
	Feedback  map[models.Slot]models.ConsolidatedFeedback
	Iteration int
	Budget    int
	Threshold float64
	BestScore float64
}

// NewCycleState returns a state positioned at SELECT.
func NewCycleState(slots []models.Slot, current map[models.Slot]models.AgentRecord, budget int, threshold float64) *CycleState {
	return &CycleState{
		State:     StateSelect,
		Slots:     slots,
		Current:   current,
		Budget:    budget,
		Threshold: threshold,
	}
}

// Advance moves to the given state if the transition is legal.
func (s *CycleState) Advance(to State) error {
	if err := CanTransition(s.State, to).Error(); err != nil {
		return err
	}
	s.State = to
	return nil
}

// ResetIteration clears the per-iteration data at the start of SELECT.
func (s *CycleState) ResetIteration() {
	s.Tasks = nil
	s.Proposals = map[models.Slot][]models.PatchProposal{}
	s.Reports = map[models.Slot]models.EvaluationReport{}
	s.Feedback = map[models.Slot]models.ConsolidatedFeedback{}
}

// RequireTasks checks the GENERATE precondition.
func (s *CycleState) RequireTasks() error {
	if len(s.Tasks) == 0 {
		return fmt.Errorf("no task instances selected for iteration %d", s.Iteration+1)
	}
	return nil
}

// RequireAgents checks that every slot has a current agent.
func (s *CycleState) RequireAgents() error {
	for _, slot := range s.Slots {
		if _, ok := s.Current[slot]; !ok {
			return fmt.Errorf("slot %s has no current agent", slot)
		}
	}
	return nil
}

// RequireProposals checks the EVALUATE precondition.
func (s *CycleState) RequireProposals() error {
	for _, slot := range s.Slots {
		if len(s.Proposals[slot]) != len(s.Tasks) {
			return fmt.Errorf("slot %s has %d proposals for %d tasks", slot, len(s.Proposals[slot]), len(s.Tasks))
		}
	}
	return nil
}

// RequireReports checks the FEEDBACK and DECIDE precondition.
func (s *CycleState) RequireReports() error {
	for _, slot := range s.Slots {
		if _, ok := s.Reports[slot]; !ok {
			return fmt.Errorf("slot %s has no evaluation report", slot)
		}
	}
	return nil
}

// Scores returns each slot's resolved fraction in slot order.
func (s *CycleState) Scores() []float64 {
	scores := make([]float64, 0, len(s.Slots))
	for _, slot := range s.Slots {
		if r, ok := s.Reports[slot]; ok {
			scores = append(scores, r.ResolvedFraction())
		}
	}
	return scores
}

// Decide completes the iteration and runs DECIDE against this state.
func (s *CycleState) Decide() (Decision, error) {
	if err := s.RequireReports(); err != nil {
		return Decision{}, err
	}
	s.Iteration++
	best := MaxScore(s.Scores())
	if best > s.BestScore {
		s.BestScore = best
	}
	return Decide(DecideInput{
		MaxScore:  best,
		Iteration: s.Iteration,
		Budget:    s.Budget,
		Threshold: s.Threshold,
	}), nil
}
