package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// RunRepository implements secondary.RunRepository with SQLite.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new SQLite run history repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateIteration records the start of an iteration.
func (r *RunRepository) CreateIteration(ctx context.Context, runID string, number int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO iterations (run_id, number, status) VALUES (?, ?, ?)",
		runID, number, secondary.IterationRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create iteration: %w", err)
	}
	return res.LastInsertId()
}

// SaveSlotResult stores a slot's report and its proposals in one transaction.
func (r *RunRepository) SaveSlotResult(ctx context.Context, iterationID int64, result *secondary.SlotResultRecord) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO slot_results (iteration_id, slot, agent_id, harness_run_id, submitted, completed, resolved, total, score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iterationID, string(result.Slot), result.AgentID, result.HarnessRunID,
		result.Submitted, result.Completed, result.Resolved, result.Total, result.Score,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save slot result: %w", err)
	}
	resultID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read slot result id: %w", err)
	}

	for i, p := range result.Proposals {
		suggestions, err := json.Marshal(nonNil(p.Suggestions))
		if err != nil {
			return 0, fmt.Errorf("failed to encode suggestions: %w", err)
		}
		var errMsg sql.NullString
		if p.Error != "" {
			errMsg = sql.NullString{String: p.Error, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO proposals (slot_result_id, position, instance_id, model_patch, error, files_changed, lines_added, lines_deleted, resolved, suggestions)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			resultID, i, p.InstanceID, p.ModelPatch, errMsg,
			p.Stats.Files, p.Stats.Added, p.Stats.Deleted, p.Resolved, string(suggestions),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save proposal %s: %w", p.InstanceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit slot result: %w", err)
	}
	result.ID = resultID
	return resultID, nil
}

// SetSuccessor links a slot result to the agent evolved from it.
func (r *RunRepository) SetSuccessor(ctx context.Context, iterationID int64, slot models.Slot, agentID int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE slot_results SET successor_id = ? WHERE iteration_id = ? AND slot = ?",
		agentID, iterationID, string(slot),
	)
	if err != nil {
		return fmt.Errorf("failed to set successor: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set successor: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no result for slot %s in iteration %d", slot, iterationID)
	}
	return nil
}

// CompleteIteration records how an iteration ended.
func (r *RunRepository) CompleteIteration(ctx context.Context, iterationID int64, outcome secondary.IterationOutcome) error {
	var decision, errMsg sql.NullString
	if outcome.Decision != "" {
		decision = sql.NullString{String: outcome.Decision, Valid: true}
	}
	if outcome.Error != "" {
		errMsg = sql.NullString{String: outcome.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		"UPDATE iterations SET status = ?, max_score = ?, decision = ?, error = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?",
		outcome.Status, outcome.MaxScore, decision, errMsg, iterationID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete iteration: %w", err)
	}
	return nil
}

const iterationColumns = "id, run_id, number, status, max_score, decision, error, started_at, completed_at"

// ListIterations retrieves iterations matching the given filters, newest first.
func (r *RunRepository) ListIterations(ctx context.Context, filters secondary.IterationFilters) ([]*secondary.IterationRecord, error) {
	query := "SELECT " + iterationColumns + " FROM iterations WHERE 1=1"
	args := []any{}

	if filters.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filters.RunID)
	}

	query += " ORDER BY id DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations: %w", err)
	}
	defer rows.Close()

	var records []*secondary.IterationRecord
	for rows.Next() {
		record, err := scanIteration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetIteration retrieves an iteration with its slot results and proposals.
func (r *RunRepository) GetIteration(ctx context.Context, id int64) (*secondary.IterationRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+iterationColumns+" FROM iterations WHERE id = ?", id)
	record, err := scanIteration(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("iteration %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get iteration: %w", err)
	}

	slots, err := r.slotResults(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Slots = slots
	return record, nil
}

func (r *RunRepository) slotResults(ctx context.Context, iterationID int64) ([]*secondary.SlotResultRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, slot, agent_id, harness_run_id, submitted, completed, resolved, total, score, successor_id
		 FROM slot_results WHERE iteration_id = ? ORDER BY slot ASC`,
		iterationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list slot results: %w", err)
	}

	var results []*secondary.SlotResultRecord
	for rows.Next() {
		var (
			res         secondary.SlotResultRecord
			slot        string
			successorID sql.NullInt64
		)
		if err := rows.Scan(&res.ID, &slot, &res.AgentID, &res.HarnessRunID, &res.Submitted, &res.Completed, &res.Resolved, &res.Total, &res.Score, &successorID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan slot result: %w", err)
		}
		res.Slot = models.Slot(slot)
		res.SuccessorID = successorID.Int64
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Proposals are loaded after the slot cursor is closed; the pool may
	// hold a single connection.
	for _, res := range results {
		proposals, err := r.proposals(ctx, res.ID)
		if err != nil {
			return nil, err
		}
		res.Proposals = proposals
	}
	return results, nil
}

func (r *RunRepository) proposals(ctx context.Context, slotResultID int64) ([]*secondary.ProposalRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT instance_id, model_patch, error, files_changed, lines_added, lines_deleted, resolved, suggestions
		 FROM proposals WHERE slot_result_id = ? ORDER BY position ASC`,
		slotResultID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var out []*secondary.ProposalRecord
	for rows.Next() {
		var (
			p           secondary.ProposalRecord
			errMsg      sql.NullString
			suggestions string
		)
		if err := rows.Scan(&p.InstanceID, &p.ModelPatch, &errMsg, &p.Stats.Files, &p.Stats.Added, &p.Stats.Deleted, &p.Resolved, &suggestions); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		p.Error = errMsg.String
		if err := json.Unmarshal([]byte(suggestions), &p.Suggestions); err != nil {
			return nil, fmt.Errorf("failed to decode suggestions for %s: %w", p.InstanceID, err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func scanIteration(s scanner) (*secondary.IterationRecord, error) {
	var (
		record      secondary.IterationRecord
		maxScore    sql.NullFloat64
		decision    sql.NullString
		errMsg      sql.NullString
		startedAt   time.Time
		completedAt sql.NullTime
	)
	if err := s.Scan(&record.ID, &record.RunID, &record.Number, &record.Status, &maxScore, &decision, &errMsg, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	record.MaxScore = maxScore.Float64
	record.Decision = decision.String
	record.Error = errMsg.String
	record.StartedAt = startedAt.Format(time.RFC3339)
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time.Format(time.RFC3339)
	}
	return &record, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Ensure RunRepository implements the interface
var _ secondary.RunRepository = (*RunRepository)(nil)
