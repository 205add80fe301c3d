package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// migrations maps a version label to its schema statement. Labels sort
// lexically, so they double as the application order.
var migrations = map[string]string{
	"001_documents": `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			status TEXT NOT NULL,
			document_type TEXT,
			quality_score REAL,
			failure_step TEXT,
			failure_reason TEXT,
			session_id TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	"002_artifacts": `
		CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			step TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	"003_step_configs": `
		CREATE TABLE IF NOT EXISTS step_configs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			display_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			document_type TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			exec_order INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (name, document_type)
		)`,
	"004_prompt_templates": `
		CREATE TABLE IF NOT EXISTS prompt_templates (
			id TEXT PRIMARY KEY,
			step TEXT NOT NULL,
			document_type TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			version INTEGER NOT NULL,
			updated_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			UNIQUE (step, document_type, version)
		)`,
	"005_interaction_logs": `
		CREATE TABLE IF NOT EXISTS interaction_logs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			step TEXT NOT NULL,
			model TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			prompt TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			confidence REAL,
			error_message TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	"006_log_session_idx": `
		CREATE INDEX IF NOT EXISTS idx_interaction_logs_session
		ON interaction_logs (session_id, created_at)`,
}

// Migrate applies all pending schema migrations in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied := map[string]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return err
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	versions := make([]string, 0, len(migrations))
	for v := range migrations {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	for _, version := range versions {
		if applied[version] {
			continue
		}
		if _, err := db.ExecContext(ctx, migrations[version]); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}

	return nil
}
