package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/primary"
)

func init() {
	color.NoColor = true
}

// mockPopulationService implements primary.PopulationService for testing.
type mockPopulationService struct {
	agents      []*models.AgentRecord
	seeded      []*models.AgentRecord
	seedErr     error
	lastFilters primary.AgentFilters
}

func (m *mockPopulationService) ListAgents(ctx context.Context, filters primary.AgentFilters) ([]*models.AgentRecord, error) {
	m.lastFilters = filters
	var out []*models.AgentRecord
	for _, a := range m.agents {
		if filters.Slot == "" || a.Slot == filters.Slot {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockPopulationService) GetAgent(ctx context.Context, id int64) (*models.AgentRecord, error) {
	for _, a := range m.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockPopulationService) Ancestry(ctx context.Context, id int64) ([]*models.AgentRecord, error) {
	var chain []*models.AgentRecord
	for next := id; next != 0; {
		a, err := m.GetAgent(ctx, next)
		if err != nil {
			return nil, err
		}
		chain = append([]*models.AgentRecord{a}, chain...)
		next = a.ParentID
	}
	return chain, nil
}

func (m *mockPopulationService) CurrentAgents(ctx context.Context) (map[models.Slot]models.AgentRecord, error) {
	current := map[models.Slot]models.AgentRecord{}
	for _, a := range m.agents {
		current[a.Slot] = *a
	}
	return current, nil
}

func (m *mockPopulationService) EnsureSeeded(ctx context.Context) (*primary.SeedResponse, error) {
	if m.seedErr != nil {
		return nil, m.seedErr
	}
	return &primary.SeedResponse{Created: m.seeded}, nil
}

func (m *mockPopulationService) AddChild(ctx context.Context, parent models.AgentRecord, prompt string) (*models.AgentRecord, error) {
	return nil, errors.New("not implemented in adapter")
}

func (m *mockPopulationService) SyncPromptState(ctx context.Context) error {
	return nil
}

func testPopulation() *mockPopulationService {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &mockPopulationService{agents: []*models.AgentRecord{
		{ID: 1, Slot: "A", Prompt: "\n# Seed agent A\n{{.repo}}", CreatedAt: created},
		{ID: 2, Slot: "B", Prompt: "# Seed agent B", CreatedAt: created},
		{ID: 3, Slot: "A", Prompt: "# Evolved agent A", Generation: 1, ParentID: 1, CreatedAt: created},
	}}
}

func TestAgentAdapter_List(t *testing.T) {
	var out bytes.Buffer
	adapter := NewAgentAdapter(testPopulation(), &out)

	if err := adapter.List(context.Background(), ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	text := out.String()
	for _, want := range []string{"# Seed agent A", "# Evolved agent A", "3 *", "SLOT"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "1 *") {
		t.Error("agent 1 is not current and must not be marked")
	}
}

func TestAgentAdapter_ListEmpty(t *testing.T) {
	var out bytes.Buffer
	adapter := NewAgentAdapter(testPopulation(), &out)

	if err := adapter.List(context.Background(), "Z"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "No agents found") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestAgentAdapter_ShowAncestry(t *testing.T) {
	var out bytes.Buffer
	adapter := NewAgentAdapter(testPopulation(), &out)

	if err := adapter.Show(context.Background(), 3, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	text := out.String()
	first := strings.Index(text, "# Seed agent A")
	second := strings.Index(text, "# Evolved agent A")
	if first == -1 || second == -1 || first > second {
		t.Errorf("expected seed before child:\n%s", text)
	}
	if !strings.Contains(text, "Parent:     1") {
		t.Errorf("expected parent line:\n%s", text)
	}
}

func TestAgentAdapter_ShowMissing(t *testing.T) {
	adapter := NewAgentAdapter(testPopulation(), &bytes.Buffer{})

	if err := adapter.Show(context.Background(), 99, false); err == nil {
		t.Fatal("expected error for missing agent")
	}
}

func TestAgentAdapter_Seed(t *testing.T) {
	pop := testPopulation()
	var out bytes.Buffer
	adapter := NewAgentAdapter(pop, &out)

	if err := adapter.Seed(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "already up to date") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	pop.seeded = []*models.AgentRecord{{ID: 4, Slot: "C"}}
	if err := adapter.Seed(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "✓ Seeded agent 4 for slot C") {
		t.Errorf("unexpected output %q", out.String())
	}
}

// mockCycleService implements primary.CycleService for testing.
type mockCycleService struct {
	result  *primary.RunResult
	err     error
	lastReq primary.RunRequest
}

func (m *mockCycleService) Run(ctx context.Context, req primary.RunRequest) (*primary.RunResult, error) {
	m.lastReq = req
	return m.result, m.err
}

// mockRunHistoryService implements primary.RunHistoryService for testing.
type mockRunHistoryService struct {
	iterations []*primary.Iteration
}

func (m *mockRunHistoryService) ListIterations(ctx context.Context, filters primary.IterationFilters) ([]*primary.Iteration, error) {
	return m.iterations, nil
}

func (m *mockRunHistoryService) GetIteration(ctx context.Context, id int64) (*primary.Iteration, error) {
	for _, it := range m.iterations {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, errors.New("not found")
}

func TestRunAdapter_RunPrintsSummaryOnFailure(t *testing.T) {
	cycle := &mockCycleService{
		result: &primary.RunResult{
			RunID:      "run-1",
			Iterations: 1,
			BestScore:  0.25,
			ExitReason: primary.ExitEvaluationFailure,
			Decisions:  []primary.Decision{{Iteration: 1, MaxScore: 0.25, Reason: "continue"}},
		},
		err: errors.New("evaluation failure"),
	}
	var out bytes.Buffer
	adapter := NewRunAdapter(cycle, &mockRunHistoryService{}, &out)

	err := adapter.Run(context.Background(), primary.RunRequest{Budget: 3})

	if err == nil {
		t.Fatal("expected the run error to be returned")
	}
	if cycle.lastReq.Budget != 3 {
		t.Errorf("expected request to be forwarded, got %+v", cycle.lastReq)
	}
	text := out.String()
	for _, want := range []string{"Run run-1", "iteration 1  max score 0.250  continue", "Best score: 0.250", "evaluation_failure"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q:\n%s", want, text)
		}
	}
}

func TestRunAdapter_ListAndShow(t *testing.T) {
	history := &mockRunHistoryService{iterations: []*primary.Iteration{{
		ID:        7,
		RunID:     "run-1",
		Number:    2,
		Status:    "completed",
		MaxScore:  0.5,
		Decision:  "continue",
		StartedAt: "2026-03-01 12:00:00",
		Slots: []*primary.SlotResult{{
			Slot:         "A",
			AgentID:      3,
			SuccessorID:  6,
			HarnessRunID: "run-1-i2",
			Submitted:    2,
			Resolved:     1,
			Score:        0.5,
			Proposals: []*primary.Proposal{
				{InstanceID: "x__y-1", Resolved: true, Suggestions: []string{"add a regression test"}},
				{InstanceID: "x__y-2", Error: "backend failure"},
			},
		}},
	}}}
	var out bytes.Buffer
	adapter := NewRunAdapter(nil, history, &out)

	if err := adapter.List(context.Background(), "", 10); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "run-1") {
		t.Errorf("expected run id in list output:\n%s", out.String())
	}

	out.Reset()
	if err := adapter.Show(context.Background(), 7, true); err != nil {
		t.Fatalf("show: %v", err)
	}
	text := out.String()
	for _, want := range []string{"1/2", "run-1-i2", "✓ x__y-1", "✗ x__y-2", "- add a regression test", "error: backend failure"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q:\n%s", want, text)
		}
	}

	if err := adapter.Run(context.Background(), primary.RunRequest{}); err == nil {
		t.Error("expected error without a cycle service")
	}
}
