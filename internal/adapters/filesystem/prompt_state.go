package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// PromptStateStore keeps {slot: prompt} in a JSON file.
type PromptStateStore struct {
	path string
}

// NewPromptStateStore creates a store backed by path.
func NewPromptStateStore(path string) *PromptStateStore {
	return &PromptStateStore{path: path}
}

// Path returns the backing file.
func (s *PromptStateStore) Path() string {
	return s.path
}

// Load returns the stored prompts. A missing file yields an empty map.
func (s *PromptStateStore) Load(ctx context.Context) (map[models.Slot]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[models.Slot]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt state: %w", err)
	}

	prompts := map[models.Slot]string{}
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt state %s: %w", s.path, err)
	}
	return prompts, nil
}

// Save atomically replaces the stored prompts.
func (s *PromptStateStore) Save(ctx context.Context, prompts map[models.Slot]string) error {
	data, err := json.MarshalIndent(prompts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prompt state: %w", err)
	}
	data = append(data, '\n')

	return withLock(s.path, func() error {
		return writeFileAtomic(s.path, data, 0644)
	})
}

// Ensure PromptStateStore implements the interface
var _ secondary.PromptStateStore = (*PromptStateStore)(nil)
