package sqlite_test

import (
	"context"
	"testing"

	"github.com/example/evoloop/internal/adapters/sqlite"
	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

func TestRunRepository_IterationLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewRunRepository(db)
	ctx := context.Background()

	agentA := seedAgent(t, db, "A", "prompt a")
	agentB := seedAgent(t, db, "B", "prompt b")

	iterID, err := repo.CreateIteration(ctx, "run-1", 1)
	if err != nil {
		t.Fatalf("CreateIteration failed: %v", err)
	}

	result := &secondary.SlotResultRecord{
		Slot:         "A",
		AgentID:      agentA,
		HarnessRunID: "run-1-i1",
		Submitted:    2,
		Completed:    2,
		Resolved:     1,
		Total:        2,
		Score:        0.5,
		Proposals: []*secondary.ProposalRecord{
			{InstanceID: "x-1", ModelPatch: "diff", Stats: models.DiffStats{Files: 1, Added: 3}, Resolved: true, Suggestions: []string{"read the logs"}},
			{InstanceID: "x-2", Error: "backend failure"},
		},
	}
	if _, err := repo.SaveSlotResult(ctx, iterID, result); err != nil {
		t.Fatalf("SaveSlotResult failed: %v", err)
	}
	if result.ID == 0 {
		t.Error("expected slot result ID to be set")
	}
	if _, err := repo.SaveSlotResult(ctx, iterID, &secondary.SlotResultRecord{Slot: "B", AgentID: agentB, HarnessRunID: "run-1-i1"}); err != nil {
		t.Fatalf("SaveSlotResult B failed: %v", err)
	}

	child := seedAgent(t, db, "A", "prompt a2")
	if err := repo.SetSuccessor(ctx, iterID, "A", child); err != nil {
		t.Fatalf("SetSuccessor failed: %v", err)
	}
	if err := repo.SetSuccessor(ctx, iterID, "Z", child); err == nil {
		t.Error("expected error for slot without a result")
	}

	err = repo.CompleteIteration(ctx, iterID, secondary.IterationOutcome{
		Status:   secondary.IterationCompleted,
		MaxScore: 0.5,
		Decision: "continue",
	})
	if err != nil {
		t.Fatalf("CompleteIteration failed: %v", err)
	}

	got, err := repo.GetIteration(ctx, iterID)
	if err != nil {
		t.Fatalf("GetIteration failed: %v", err)
	}
	if got.Status != secondary.IterationCompleted || got.MaxScore != 0.5 || got.Decision != "continue" {
		t.Errorf("unexpected iteration: %+v", got)
	}
	if got.CompletedAt == "" {
		t.Error("expected CompletedAt to be set")
	}
	if len(got.Slots) != 2 {
		t.Fatalf("expected 2 slot results, got %d", len(got.Slots))
	}

	a := got.Slots[0]
	if a.Slot != "A" || a.SuccessorID != child || a.Resolved != 1 {
		t.Errorf("unexpected slot A result: %+v", a)
	}
	if len(a.Proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(a.Proposals))
	}
	if a.Proposals[0].InstanceID != "x-1" || !a.Proposals[0].Resolved || a.Proposals[0].Stats.Added != 3 {
		t.Errorf("unexpected first proposal: %+v", a.Proposals[0])
	}
	if len(a.Proposals[0].Suggestions) != 1 || a.Proposals[0].Suggestions[0] != "read the logs" {
		t.Errorf("unexpected suggestions: %v", a.Proposals[0].Suggestions)
	}
	if a.Proposals[1].Error != "backend failure" || len(a.Proposals[1].Suggestions) != 0 {
		t.Errorf("unexpected second proposal: %+v", a.Proposals[1])
	}
	if got.Slots[1].SuccessorID != 0 {
		t.Errorf("slot B should have no successor, got %d", got.Slots[1].SuccessorID)
	}
}

func TestRunRepository_AbortedIteration(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewRunRepository(db)
	ctx := context.Background()

	iterID, err := repo.CreateIteration(ctx, "run-2", 1)
	if err != nil {
		t.Fatalf("CreateIteration failed: %v", err)
	}
	err = repo.CompleteIteration(ctx, iterID, secondary.IterationOutcome{
		Status: secondary.IterationAborted,
		Error:  "evaluation failure (slot=B run=run-2-i1): exit status 1",
	})
	if err != nil {
		t.Fatalf("CompleteIteration failed: %v", err)
	}

	got, err := repo.GetIteration(ctx, iterID)
	if err != nil {
		t.Fatalf("GetIteration failed: %v", err)
	}
	if got.Status != secondary.IterationAborted || got.Error == "" || got.Decision != "" {
		t.Errorf("unexpected aborted iteration: %+v", got)
	}
}

func TestRunRepository_DuplicateIterationNumber(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewRunRepository(db)
	ctx := context.Background()

	if _, err := repo.CreateIteration(ctx, "run-3", 1); err != nil {
		t.Fatalf("CreateIteration failed: %v", err)
	}
	if _, err := repo.CreateIteration(ctx, "run-3", 1); err == nil {
		t.Error("expected unique constraint violation")
	}
}

func TestRunRepository_ListIterations(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewRunRepository(db)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := repo.CreateIteration(ctx, "run-a", i); err != nil {
			t.Fatalf("CreateIteration failed: %v", err)
		}
	}
	if _, err := repo.CreateIteration(ctx, "run-b", 1); err != nil {
		t.Fatalf("CreateIteration failed: %v", err)
	}

	all, err := repo.ListIterations(ctx, secondary.IterationFilters{})
	if err != nil {
		t.Fatalf("ListIterations failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 iterations, got %d", len(all))
	}
	if all[0].RunID != "run-b" {
		t.Errorf("expected newest first, got %s", all[0].RunID)
	}

	filtered, err := repo.ListIterations(ctx, secondary.IterationFilters{RunID: "run-a", Limit: 2})
	if err != nil {
		t.Fatalf("ListIterations failed: %v", err)
	}
	if len(filtered) != 2 || filtered[0].Number != 3 {
		t.Errorf("unexpected filtered list: %+v", filtered)
	}
}

func TestRunRepository_GetIteration_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewRunRepository(db)

	if _, err := repo.GetIteration(context.Background(), 99); err == nil {
		t.Error("expected error for missing iteration")
	}
}
