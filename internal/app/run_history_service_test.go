package app

import (
	"context"
	"testing"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/primary"
	"github.com/example/evoloop/internal/ports/secondary"
)

func TestRunHistory_ListAndGet(t *testing.T) {
	repo := newMemRunRepository()
	service := NewRunHistoryService(repo)
	ctx := context.Background()

	first, _ := repo.CreateIteration(ctx, "run-1", 1)
	_, _ = repo.SaveSlotResult(ctx, first, &secondary.SlotResultRecord{
		Slot:      "A",
		AgentID:   1,
		Submitted: 2,
		Resolved:  1,
		Score:     0.5,
		Proposals: []*secondary.ProposalRecord{
			{InstanceID: "x__y-1", Resolved: true, Stats: models.DiffStats{Files: 1, Added: 2}},
			{InstanceID: "x__y-2", Error: "backend failure", Suggestions: []string{"retry"}},
		},
	})
	_ = repo.SetSuccessor(ctx, first, "A", 4)
	_ = repo.CompleteIteration(ctx, first, secondary.IterationOutcome{Status: secondary.IterationCompleted, MaxScore: 0.5, Decision: "continue"})
	_, _ = repo.CreateIteration(ctx, "run-2", 1)

	all, err := service.ListIterations(ctx, primary.IterationFilters{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(all) != 2 || all[0].RunID != "run-2" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	filtered, _ := service.ListIterations(ctx, primary.IterationFilters{RunID: "run-1"})
	if len(filtered) != 1 || filtered[0].Decision != "continue" {
		t.Errorf("unexpected filtered iterations %+v", filtered)
	}

	it, err := service.GetIteration(ctx, first)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(it.Slots) != 1 {
		t.Fatalf("expected one slot result, got %d", len(it.Slots))
	}
	slot := it.Slots[0]
	if slot.SuccessorID != 4 || slot.Score != 0.5 || len(slot.Proposals) != 2 {
		t.Errorf("unexpected slot result %+v", slot)
	}
	if !slot.Proposals[0].Resolved || slot.Proposals[0].Stats.Added != 2 {
		t.Errorf("unexpected first proposal %+v", slot.Proposals[0])
	}
	if slot.Proposals[1].Error == "" || slot.Proposals[1].Suggestions[0] != "retry" {
		t.Errorf("unexpected second proposal %+v", slot.Proposals[1])
	}
}

func TestRunHistory_GetMissing(t *testing.T) {
	service := NewRunHistoryService(newMemRunRepository())

	if _, err := service.GetIteration(context.Background(), 42); err == nil {
		t.Fatal("expected error for missing iteration")
	}
}
