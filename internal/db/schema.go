package db

import (
	"database/sql"
	"fmt"
)

// SchemaSQL is the complete schema for fresh evoloop databases.
// This schema reflects the current state after all migrations.
//
// Tests use this schema via GetSchemaSQL() so repository code that
// references a missing column fails immediately with "no such column".
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
const SchemaSQL = `
-- Agent population (append-only; ids never reused)
CREATE TABLE IF NOT EXISTS agents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slot TEXT NOT NULL,
	prompt TEXT NOT NULL,
	generation INTEGER NOT NULL DEFAULT 0 CHECK(generation >= 0),
	parent_id INTEGER,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (parent_id) REFERENCES agents(id)
);

CREATE INDEX IF NOT EXISTS idx_agents_slot ON agents(slot, id);

-- One row per loop iteration
CREATE TABLE IF NOT EXISTS iterations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	number INTEGER NOT NULL CHECK(number >= 1),
	status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'aborted')) DEFAULT 'running',
	max_score REAL,
	decision TEXT,
	error TEXT,
	started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME,
	UNIQUE(run_id, number)
);

CREATE INDEX IF NOT EXISTS idx_iterations_run ON iterations(run_id);

-- Evaluation result for one slot in one iteration
CREATE TABLE IF NOT EXISTS slot_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	iteration_id INTEGER NOT NULL,
	slot TEXT NOT NULL,
	agent_id INTEGER NOT NULL,
	harness_run_id TEXT NOT NULL,
	submitted INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	resolved INTEGER NOT NULL DEFAULT 0,
	total INTEGER NOT NULL DEFAULT 0,
	score REAL NOT NULL DEFAULT 0,
	successor_id INTEGER,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(iteration_id, slot),
	FOREIGN KEY (iteration_id) REFERENCES iterations(id) ON DELETE CASCADE,
	FOREIGN KEY (agent_id) REFERENCES agents(id),
	FOREIGN KEY (successor_id) REFERENCES agents(id)
);

-- Patch proposals with their outcome and judge feedback
CREATE TABLE IF NOT EXISTS proposals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slot_result_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	instance_id TEXT NOT NULL,
	model_patch TEXT NOT NULL DEFAULT '',
	error TEXT,
	files_changed INTEGER NOT NULL DEFAULT 0,
	lines_added INTEGER NOT NULL DEFAULT 0,
	lines_deleted INTEGER NOT NULL DEFAULT 0,
	resolved INTEGER NOT NULL DEFAULT 0,
	suggestions TEXT NOT NULL DEFAULT '[]',
	UNIQUE(slot_result_id, position),
	FOREIGN KEY (slot_result_id) REFERENCES slot_results(id) ON DELETE CASCADE
);
`

// InitSchema creates the schema on a fresh database or migrates an
// existing one.
func InitSchema(db *sql.DB) error {
	var tableCount int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount > 0 {
		return RunMigrations(db)
	}

	if _, err := db.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := createVersionTable(db); err != nil {
		return err
	}
	// Fresh databases start at the latest version.
	for _, m := range migrations {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
