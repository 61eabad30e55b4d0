// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// AgentRepository implements secondary.AgentRepository with SQLite.
type AgentRepository struct {
	db *sql.DB
}

// NewAgentRepository creates a new SQLite agent repository.
func NewAgentRepository(db *sql.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

const agentColumns = "id, slot, prompt, generation, parent_id, created_at"

// Add appends a record. The id comes from the AUTOINCREMENT sequence, so it
// is strictly greater than every committed id.
func (r *AgentRepository) Add(ctx context.Context, record *models.AgentRecord) (int64, error) {
	var parentID sql.NullInt64
	if record.ParentID != 0 {
		parentID = sql.NullInt64{Int64: record.ParentID, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO agents (slot, prompt, generation, parent_id) VALUES (?, ?, ?, ?)",
		string(record.Slot), record.Prompt, record.Generation, parentID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read agent id: %w", err)
	}

	var createdAt time.Time
	if err := tx.QueryRowContext(ctx, "SELECT created_at FROM agents WHERE id = ?", id).Scan(&createdAt); err != nil {
		return 0, fmt.Errorf("failed to read agent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit agent: %w", err)
	}

	record.ID = id
	record.CreatedAt = createdAt
	return id, nil
}

// List returns every record ordered by id.
func (r *AgentRepository) List(ctx context.Context) ([]*models.AgentRecord, error) {
	return r.query(ctx, "SELECT "+agentColumns+" FROM agents ORDER BY id ASC")
}

// ListBySlot returns one slot's records ordered by id.
func (r *AgentRepository) ListBySlot(ctx context.Context, slot models.Slot) ([]*models.AgentRecord, error) {
	return r.query(ctx, "SELECT "+agentColumns+" FROM agents WHERE slot = ? ORDER BY id ASC", string(slot))
}

// Current returns the latest record for a slot, or nil when the slot is empty.
func (r *AgentRepository) Current(ctx context.Context, slot models.Slot) (*models.AgentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+agentColumns+" FROM agents WHERE slot = ? ORDER BY id DESC LIMIT 1",
		string(slot),
	)
	record, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current agent for slot %s: %w", slot, err)
	}
	return record, nil
}

// Get retrieves a record by id.
func (r *AgentRepository) Get(ctx context.Context, id int64) (*models.AgentRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	record, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return record, nil
}

func (r *AgentRepository) query(ctx context.Context, query string, args ...any) ([]*models.AgentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var records []*models.AgentRecord
	for rows.Next() {
		record, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(s scanner) (*models.AgentRecord, error) {
	var (
		record   models.AgentRecord
		slot     string
		parentID sql.NullInt64
	)
	if err := s.Scan(&record.ID, &slot, &record.Prompt, &record.Generation, &parentID, &record.CreatedAt); err != nil {
		return nil, err
	}
	record.Slot = models.Slot(slot)
	record.ParentID = parentID.Int64
	return &record, nil
}

// Ensure AgentRepository implements the interface
var _ secondary.AgentRepository = (*AgentRepository)(nil)
