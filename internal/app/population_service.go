package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/evoloop/internal/core/population"
	"github.com/example/evoloop/internal/core/prompt"
	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/primary"
	"github.com/example/evoloop/internal/ports/secondary"
)

// PopulationServiceImpl implements the PopulationService interface.
type PopulationServiceImpl struct {
	agents     secondary.AgentRepository
	state      secondary.PromptStateStore
	slots      []models.Slot
	basePrompt string
	logger     *slog.Logger
}

// NewPopulationService creates a new PopulationService with injected dependencies.
// An empty basePrompt selects the built-in coder prompt.
func NewPopulationService(agents secondary.AgentRepository, state secondary.PromptStateStore, slots []models.Slot, basePrompt string, logger *slog.Logger) *PopulationServiceImpl {
	if basePrompt == "" {
		basePrompt = prompt.BaseCoderPrompt
	}
	return &PopulationServiceImpl{
		agents:     agents,
		state:      state,
		slots:      slots,
		basePrompt: basePrompt,
		logger:     logger,
	}
}

// ListAgents lists agents, optionally for one slot.
func (s *PopulationServiceImpl) ListAgents(ctx context.Context, filters primary.AgentFilters) ([]*models.AgentRecord, error) {
	var (
		records []*models.AgentRecord
		err     error
	)
	if filters.Slot != "" {
		records, err = s.agents.ListBySlot(ctx, filters.Slot)
	} else {
		records, err = s.agents.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return records, nil
}

// GetAgent retrieves an agent by id.
func (s *PopulationServiceImpl) GetAgent(ctx context.Context, id int64) (*models.AgentRecord, error) {
	return s.agents.Get(ctx, id)
}

// Ancestry returns the chain from the seed to the given agent, oldest first.
func (s *PopulationServiceImpl) Ancestry(ctx context.Context, id int64) ([]*models.AgentRecord, error) {
	var chain []*models.AgentRecord
	seen := map[int64]bool{}
	for next := id; next != 0; {
		if seen[next] {
			return nil, fmt.Errorf("agent %d has a cyclic lineage", id)
		}
		seen[next] = true

		record, err := s.agents.Get(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("failed to get agent %d: %w", next, err)
		}
		chain = append(chain, record)
		next = record.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// CurrentAgents returns the latest agent of each configured slot. Empty slots are absent.
func (s *PopulationServiceImpl) CurrentAgents(ctx context.Context) (map[models.Slot]models.AgentRecord, error) {
	current := make(map[models.Slot]models.AgentRecord, len(s.slots))
	for _, slot := range s.slots {
		record, err := s.agents.Current(ctx, slot)
		if err != nil {
			return nil, fmt.Errorf("failed to get current agent for slot %s: %w", slot, err)
		}
		if record != nil {
			current[slot] = *record
		}
	}
	return current, nil
}

// EnsureSeeded gives every slot an agent and brings the store in line with
// the prompt state file. A stored prompt that fails validation is ignored:
// the slot keeps its agent, or is seeded with the base prompt.
func (s *PopulationServiceImpl) EnsureSeeded(ctx context.Context) (*primary.SeedResponse, error) {
	if err := prompt.ValidateCoderPrompt(s.basePrompt); err != nil {
		return nil, fmt.Errorf("base coder prompt is invalid: %w", err)
	}

	current, err := s.CurrentAgents(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := s.state.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt state: %w", err)
	}
	for slot, p := range stored {
		if err := prompt.ValidateCoderPrompt(p); err != nil {
			s.logger.WarnContext(ctx, "ignoring stored prompt",
				"slot", slot, "error", &models.InvalidPromptCandidateError{Slot: slot, Err: err})
			delete(stored, slot)
		}
	}

	resp := &primary.SeedResponse{}
	for _, record := range population.SeedPlan(s.slots, current, stored, s.basePrompt) {
		guard := population.CanAddAgent(population.AddAgentContext{
			Slot:       record.Slot,
			KnownSlots: s.slots,
			Prompt:     record.Prompt,
		})
		if err := guard.Error(); err != nil {
			return nil, err
		}

		if _, err := s.agents.Add(ctx, &record); err != nil {
			return nil, fmt.Errorf("failed to seed slot %s: %w", record.Slot, err)
		}
		s.logger.InfoContext(ctx, "seeded agent", "slot", record.Slot, "agent_id", record.ID)
		created := record
		resp.Created = append(resp.Created, &created)
	}

	if err := s.SyncPromptState(ctx); err != nil {
		return nil, err
	}
	return resp, nil
}

// AddChild appends an evolved agent for the parent's slot.
func (s *PopulationServiceImpl) AddChild(ctx context.Context, parent models.AgentRecord, p string) (*models.AgentRecord, error) {
	guardCtx := population.AddAgentContext{
		Slot:       parent.Slot,
		KnownSlots: s.slots,
		Prompt:     p,
		ParentID:   parent.ID,
	}
	if stored, err := s.agents.Get(ctx, parent.ID); err == nil && stored != nil {
		guardCtx.ParentFound = true
		guardCtx.ParentSlot = stored.Slot
	}
	if err := population.CanAddAgent(guardCtx).Error(); err != nil {
		return nil, err
	}

	child := population.Child(parent, p)
	if _, err := s.agents.Add(ctx, &child); err != nil {
		return nil, fmt.Errorf("failed to add agent for slot %s: %w", parent.Slot, err)
	}
	return &child, nil
}

// SyncPromptState writes the current prompt of every slot to the prompt state file.
func (s *PopulationServiceImpl) SyncPromptState(ctx context.Context) error {
	current, err := s.CurrentAgents(ctx)
	if err != nil {
		return err
	}
	prompts := make(map[models.Slot]string, len(current))
	for slot, agent := range current {
		prompts[slot] = agent.Prompt
	}
	if err := s.state.Save(ctx, prompts); err != nil {
		return fmt.Errorf("failed to save prompt state: %w", err)
	}
	return nil
}

var _ primary.PopulationService = (*PopulationServiceImpl)(nil)
