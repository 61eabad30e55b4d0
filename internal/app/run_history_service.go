package app

import (
	"context"
	"fmt"

	"github.com/example/evoloop/internal/ports/primary"
	"github.com/example/evoloop/internal/ports/secondary"
)

// RunHistoryServiceImpl implements the RunHistoryService interface.
type RunHistoryServiceImpl struct {
	runRepo secondary.RunRepository
}

// NewRunHistoryService creates a new RunHistoryService with injected dependencies.
func NewRunHistoryService(runRepo secondary.RunRepository) *RunHistoryServiceImpl {
	return &RunHistoryServiceImpl{runRepo: runRepo}
}

// ListIterations lists recorded iterations, newest first.
func (s *RunHistoryServiceImpl) ListIterations(ctx context.Context, filters primary.IterationFilters) ([]*primary.Iteration, error) {
	records, err := s.runRepo.ListIterations(ctx, secondary.IterationFilters{
		RunID: filters.RunID,
		Limit: filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations: %w", err)
	}

	iterations := make([]*primary.Iteration, len(records))
	for i, r := range records {
		iterations[i] = s.recordToIteration(r)
	}
	return iterations, nil
}

// GetIteration retrieves one iteration with per-slot results.
func (s *RunHistoryServiceImpl) GetIteration(ctx context.Context, id int64) (*primary.Iteration, error) {
	record, err := s.runRepo.GetIteration(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.recordToIteration(record), nil
}

func (s *RunHistoryServiceImpl) recordToIteration(r *secondary.IterationRecord) *primary.Iteration {
	it := &primary.Iteration{
		ID:          r.ID,
		RunID:       r.RunID,
		Number:      r.Number,
		Status:      r.Status,
		MaxScore:    r.MaxScore,
		Decision:    r.Decision,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
	for _, sr := range r.Slots {
		slot := &primary.SlotResult{
			Slot:         sr.Slot,
			AgentID:      sr.AgentID,
			SuccessorID:  sr.SuccessorID,
			HarnessRunID: sr.HarnessRunID,
			Submitted:    sr.Submitted,
			Resolved:     sr.Resolved,
			Score:        sr.Score,
		}
		for _, p := range sr.Proposals {
			slot.Proposals = append(slot.Proposals, &primary.Proposal{
				InstanceID:  p.InstanceID,
				Resolved:    p.Resolved,
				Error:       p.Error,
				Stats:       p.Stats,
				Suggestions: p.Suggestions,
				ModelPatch:  p.ModelPatch,
			})
		}
		it.Slots = append(it.Slots, slot)
	}
	return it
}

var _ primary.RunHistoryService = (*RunHistoryServiceImpl)(nil)
