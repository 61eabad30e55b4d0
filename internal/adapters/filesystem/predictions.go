package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// PredictionWriter writes one JSON array of predictions per slot and run.
type PredictionWriter struct {
	dir string
}

// NewPredictionWriter creates a writer rooted at dir.
func NewPredictionWriter(dir string) *PredictionWriter {
	return &PredictionWriter{dir: dir}
}

// WritePredictions writes <dir>/<runID>/<slot>.json in proposal order.
func (w *PredictionWriter) WritePredictions(ctx context.Context, runID string, slot models.Slot, proposals []models.PatchProposal) (string, error) {
	preds := make([]models.Prediction, len(proposals))
	for i, p := range proposals {
		preds[i] = p.Prediction()
	}

	data, err := json.MarshalIndent(preds, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal predictions: %w", err)
	}

	path := filepath.Join(w.dir, runID, string(slot)+".json")
	err = withLock(path, func() error {
		return writeFileAtomic(path, data, 0644)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Ensure PredictionWriter implements the interface
var _ secondary.PredictionWriter = (*PredictionWriter)(nil)
