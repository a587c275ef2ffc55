// Package storage opens and migrates the sqlite database backing the
// approval and attempt records.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open creates (if needed) and migrates the database at dbPath. The
// returned handle is restricted to one connection; sqlite serializes
// writers anyway and a single connection avoids busy errors under
// concurrent updates.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS approval_requests (
		id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		approval_type TEXT NOT NULL DEFAULT 'custom',
		action TEXT NOT NULL,
		details TEXT,
		risk_level TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		expires_at TIMESTAMP,
		decided_by TEXT,
		decision_reason TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		decided_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS execution_attempts (
		id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		worker TEXT,
		model TEXT,
		provider TEXT,
		summary TEXT,
		error_message TEXT,
		exit_code INTEGER,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		cache_write_tokens INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		UNIQUE(execution_id, attempt_number)
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_execution ON approval_requests(execution_id, status);
	CREATE INDEX IF NOT EXISTS idx_attempts_execution ON execution_attempts(execution_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
