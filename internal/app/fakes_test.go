package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// ============================================================================
// Text generation
// ============================================================================

// fakeBackend implements secondary.TextGenerator with a scripted responder.
type fakeBackend struct {
	mu      sync.Mutex
	respond func(prompt string) (string, error)
	prompts []string
}

func newFakeBackend(respond func(prompt string) (string, error)) *fakeBackend {
	return &fakeBackend{respond: respond}
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.respond(prompt)
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeBackend) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

var _ secondary.TextGenerator = (*fakeBackend)(nil)

// coderAnswer is a well-formed coder response touching one file.
func coderAnswer(file string) string {
	return fmt.Sprintf("# Reasoning\nfix it\n\n# Patch\n```diff\n"+
		"diff --git a/%[1]s b/%[1]s\n--- a/%[1]s\n+++ b/%[1]s\n@@ -1,1 +1,1 @@\n-old\n+new\n```\n", file)
}

// ============================================================================
// Agent population
// ============================================================================

// memAgentRepository implements secondary.AgentRepository in memory.
type memAgentRepository struct {
	mu      sync.Mutex
	records []*models.AgentRecord
	nextID  int64
	addErr  error
}

func newMemAgentRepository() *memAgentRepository {
	return &memAgentRepository{nextID: 1}
}

func (m *memAgentRepository) Add(ctx context.Context, record *models.AgentRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return 0, m.addErr
	}
	record.ID = m.nextID
	record.CreatedAt = time.Now()
	m.nextID++
	stored := *record
	m.records = append(m.records, &stored)
	return record.ID, nil
}

func (m *memAgentRepository) List(ctx context.Context) ([]*models.AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AgentRecord, 0, len(m.records))
	for _, r := range m.records {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *memAgentRepository) ListBySlot(ctx context.Context, slot models.Slot) ([]*models.AgentRecord, error) {
	all, _ := m.List(ctx)
	var out []*models.AgentRecord
	for _, r := range all {
		if r.Slot == slot {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memAgentRepository) Current(ctx context.Context, slot models.Slot) (*models.AgentRecord, error) {
	records, _ := m.ListBySlot(ctx, slot)
	if len(records) == 0 {
		return nil, nil
	}
	return records[len(records)-1], nil
}

func (m *memAgentRepository) Get(ctx context.Context, id int64) (*models.AgentRecord, error) {
	all, _ := m.List(ctx)
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("agent %d not found", id)
}

var _ secondary.AgentRepository = (*memAgentRepository)(nil)

// memPromptState implements secondary.PromptStateStore in memory.
type memPromptState struct {
	mu      sync.Mutex
	prompts map[models.Slot]string
	saves   int
	saveErr error
}

func newMemPromptState(prompts map[models.Slot]string) *memPromptState {
	if prompts == nil {
		prompts = map[models.Slot]string{}
	}
	return &memPromptState{prompts: prompts}
}

func (m *memPromptState) Load(ctx context.Context) (map[models.Slot]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.Slot]string, len(m.prompts))
	for k, v := range m.prompts {
		out[k] = v
	}
	return out, nil
}

func (m *memPromptState) Save(ctx context.Context, prompts map[models.Slot]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.prompts = make(map[models.Slot]string, len(prompts))
	for k, v := range prompts {
		m.prompts[k] = v
	}
	return nil
}

var _ secondary.PromptStateStore = (*memPromptState)(nil)

// ============================================================================
// Evaluation
// ============================================================================

// memPredictionWriter implements secondary.PredictionWriter in memory.
type memPredictionWriter struct {
	mu       sync.Mutex
	written  map[string][]models.Prediction
	writeErr error
}

func newMemPredictionWriter() *memPredictionWriter {
	return &memPredictionWriter{written: map[string][]models.Prediction{}}
}

func (m *memPredictionWriter) WritePredictions(ctx context.Context, runID string, slot models.Slot, proposals []models.PatchProposal) (string, error) {
	if m.writeErr != nil {
		return "", m.writeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	path := fmt.Sprintf("predictions/%s/%s.json", runID, slot)
	preds := make([]models.Prediction, len(proposals))
	for i, p := range proposals {
		preds[i] = p.Prediction()
	}
	m.written[path] = preds
	return path, nil
}

var _ secondary.PredictionWriter = (*memPredictionWriter)(nil)

// fakeHarness implements secondary.Harness. resolve picks the resolved
// instances of each request; err fails every run.
type fakeHarness struct {
	mu       sync.Mutex
	requests []secondary.HarnessRequest
	resolve  func(req secondary.HarnessRequest) []string
	err      error
}

func (f *fakeHarness) Run(ctx context.Context, req secondary.HarnessRequest) (*models.EvaluationReport, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var resolved []string
	if f.resolve != nil {
		resolved = f.resolve(req)
	}
	isResolved := map[string]bool{}
	for _, id := range resolved {
		isResolved[id] = true
	}
	report := &models.EvaluationReport{
		Slot:        req.Slot,
		RunID:       req.RunID,
		Total:       len(req.InstanceIDs),
		Submitted:   len(req.InstanceIDs),
		Completed:   len(req.InstanceIDs),
		Resolved:    len(resolved),
		ResolvedIDs: resolved,
	}
	for _, id := range req.InstanceIDs {
		if !isResolved[id] {
			report.UnresolvedIDs = append(report.UnresolvedIDs, id)
		}
	}
	return report, nil
}

func (f *fakeHarness) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var _ secondary.Harness = (*fakeHarness)(nil)

// fakeLogs implements secondary.ExecutionLogs from a map keyed by instance id.
type fakeLogs struct {
	logs map[string]string
}

func (f *fakeLogs) Excerpt(ctx context.Context, runID string, slot models.Slot, instanceID string, n int) (string, error) {
	text, ok := f.logs[instanceID]
	if !ok {
		return "", errors.New("log not found")
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n"), nil
}

var _ secondary.ExecutionLogs = (*fakeLogs)(nil)

// staticBenchmark implements secondary.Benchmark.
type staticBenchmark struct {
	instances []models.TaskInstance
	err       error
}

func (b *staticBenchmark) Instances(ctx context.Context) ([]models.TaskInstance, error) {
	return b.instances, b.err
}

var _ secondary.Benchmark = (*staticBenchmark)(nil)

func testInstances(n int) []models.TaskInstance {
	out := make([]models.TaskInstance, n)
	for i := range out {
		out[i] = models.TaskInstance{
			ID:               fmt.Sprintf("repo__pkg-%d", i+1),
			Repo:             "repo/pkg",
			ProblemStatement: fmt.Sprintf("problem %d", i+1),
			TestPatch:        fmt.Sprintf("test patch %d", i+1),
			Patch:            fmt.Sprintf("reference patch %d", i+1),
		}
	}
	return out
}

// ============================================================================
// Run history
// ============================================================================

// memRunRepository implements secondary.RunRepository in memory.
type memRunRepository struct {
	mu         sync.Mutex
	iterations map[int64]*secondary.IterationRecord
	nextID     int64
	createErr  error
}

func newMemRunRepository() *memRunRepository {
	return &memRunRepository{iterations: map[int64]*secondary.IterationRecord{}, nextID: 1}
}

func (m *memRunRepository) CreateIteration(ctx context.Context, runID string, number int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	id := m.nextID
	m.nextID++
	m.iterations[id] = &secondary.IterationRecord{
		ID:     id,
		RunID:  runID,
		Number: number,
		Status: secondary.IterationRunning,
	}
	return id, nil
}

func (m *memRunRepository) SaveSlotResult(ctx context.Context, iterationID int64, result *secondary.SlotResultRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.iterations[iterationID]
	if !ok {
		return 0, fmt.Errorf("iteration %d not found", iterationID)
	}
	result.ID = int64(len(it.Slots) + 1)
	it.Slots = append(it.Slots, result)
	return result.ID, nil
}

func (m *memRunRepository) SetSuccessor(ctx context.Context, iterationID int64, slot models.Slot, agentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.iterations[iterationID]
	if !ok {
		return fmt.Errorf("iteration %d not found", iterationID)
	}
	for _, sr := range it.Slots {
		if sr.Slot == slot {
			sr.SuccessorID = agentID
			return nil
		}
	}
	return fmt.Errorf("slot %s has no result in iteration %d", slot, iterationID)
}

func (m *memRunRepository) CompleteIteration(ctx context.Context, iterationID int64, outcome secondary.IterationOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.iterations[iterationID]
	if !ok {
		return fmt.Errorf("iteration %d not found", iterationID)
	}
	it.Status = outcome.Status
	it.MaxScore = outcome.MaxScore
	it.Decision = outcome.Decision
	it.Error = outcome.Error
	it.CompletedAt = time.Now().Format(time.RFC3339)
	return nil
}

func (m *memRunRepository) ListIterations(ctx context.Context, filters secondary.IterationFilters) ([]*secondary.IterationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.IterationRecord
	for _, it := range m.iterations {
		if filters.RunID != "" && it.RunID != filters.RunID {
			continue
		}
		c := *it
		c.Slots = nil
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (m *memRunRepository) GetIteration(ctx context.Context, id int64) (*secondary.IterationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.iterations[id]
	if !ok {
		return nil, fmt.Errorf("iteration %d not found", id)
	}
	return it, nil
}

// byNumber returns iterations ordered by number.
func (m *memRunRepository) byNumber() []*secondary.IterationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*secondary.IterationRecord, 0, len(m.iterations))
	for _, it := range m.iterations {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

var _ secondary.RunRepository = (*memRunRepository)(nil)
