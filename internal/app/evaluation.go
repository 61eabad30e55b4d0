package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// EvaluationAdapter submits a slot's proposals to the harness and reads
// execution logs back for the judge.
type EvaluationAdapter struct {
	predictions secondary.PredictionWriter
	harness     secondary.Harness
	logs        secondary.ExecutionLogs
	logger      *slog.Logger
}

// NewEvaluationAdapter creates an EvaluationAdapter with injected dependencies.
func NewEvaluationAdapter(predictions secondary.PredictionWriter, harness secondary.Harness, logs secondary.ExecutionLogs, logger *slog.Logger) *EvaluationAdapter {
	return &EvaluationAdapter{
		predictions: predictions,
		harness:     harness,
		logs:        logs,
		logger:      logger,
	}
}

// Evaluate writes the proposals as one predictions file and runs the harness
// over it. Only the first proposal for a repeated instance is submitted.
// Every failure is returned as an EvaluationFailureError; a failed
// evaluation never yields a report.
func (e *EvaluationAdapter) Evaluate(ctx context.Context, runID string, slot models.Slot, proposals []models.PatchProposal) (*models.EvaluationReport, error) {
	if len(proposals) == 0 {
		return nil, &models.EvaluationFailureError{Slot: slot, RunID: runID, Err: fmt.Errorf("no proposals to evaluate")}
	}

	submitted := models.DistinctProposals(proposals)
	path, err := e.predictions.WritePredictions(ctx, runID, slot, submitted)
	if err != nil {
		return nil, &models.EvaluationFailureError{Slot: slot, RunID: runID, Err: fmt.Errorf("failed to write predictions: %w", err)}
	}

	ids := make([]string, len(submitted))
	for i, p := range submitted {
		ids[i] = p.InstanceID
	}
	if len(submitted) < len(proposals) {
		e.logger.InfoContext(ctx, "repeated instances not submitted", "run_id", runID, "skipped", len(proposals)-len(submitted))
	}

	e.logger.InfoContext(ctx, "submitting predictions", "run_id", runID, "path", path, "instances", len(ids))
	report, err := e.harness.Run(ctx, secondary.HarnessRequest{
		RunID:           runID,
		Slot:            slot,
		PredictionsPath: path,
		InstanceIDs:     ids,
	})
	if err != nil {
		return nil, &models.EvaluationFailureError{Slot: slot, RunID: runID, Err: err}
	}
	if report == nil {
		return nil, &models.EvaluationFailureError{Slot: slot, RunID: runID, Err: fmt.Errorf("harness returned no report")}
	}

	e.logger.InfoContext(ctx, "evaluation finished",
		"run_id", runID,
		"submitted", report.Submitted,
		"resolved", report.Resolved,
		"score", report.ResolvedFraction())
	return report, nil
}

// LogExcerpt returns the first n lines of an instance's execution log. A
// missing log is returned as an empty excerpt so the judge still runs.
func (e *EvaluationAdapter) LogExcerpt(ctx context.Context, runID string, slot models.Slot, instanceID string, n int) string {
	excerpt, err := e.logs.Excerpt(ctx, runID, slot, instanceID, n)
	if err != nil {
		e.logger.DebugContext(ctx, "no execution log", "run_id", runID, "error", err)
		return ""
	}
	return excerpt
}
