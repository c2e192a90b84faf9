package db

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; the schema_version table records the
// last applied version.
var migrations = []string{
	// 1: approvals
	`CREATE TABLE approvals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		action_data_json TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		execution_status TEXT NOT NULL DEFAULT '',
		requested_at TEXT NOT NULL,
		responded_at TEXT,
		rejection_reason TEXT,
		executed_at TEXT,
		execution_data_json TEXT
	);
	CREATE INDEX idx_approvals_user_status ON approvals(user_id, status);`,

	// 2: tasks + iterations
	`CREATE TABLE tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		current_iteration INTEGER NOT NULL DEFAULT 0,
		max_iterations INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		last_iteration_at TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		completion_token TEXT NOT NULL,
		error TEXT
	);
	CREATE TABLE task_iterations (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		action TEXT NOT NULL,
		result TEXT NOT NULL,
		completion_detected INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (task_id, number)
	);
	CREATE INDEX idx_tasks_user_status ON tasks(user_id, status);`,

	// 3: events
	`CREATE TABLE events (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		payload_json TEXT
	);
	CREATE INDEX idx_events_entity ON events(entity_type, entity_id);`,
}

// migrate applies pending migrations inside a single transaction.
func (db *DB) migrate(ctx context.Context) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return fmt.Errorf("failed to create schema_version: %w", err)
		}

		var current int
		err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&current)
		if err == sql.ErrNoRows {
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
				return fmt.Errorf("failed to init schema_version: %w", err)
			}
			current = 0
		} else if err != nil {
			return fmt.Errorf("failed to read schema_version: %w", err)
		}

		for i, stmt := range migrations {
			version := i + 1
			if version <= current {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d failed: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", version, err)
			}
		}
		return nil
	})
}
