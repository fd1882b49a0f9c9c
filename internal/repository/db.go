package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS payer_aliases (
			id TEXT PRIMARY KEY,
			normalized_key TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			target_id TEXT NOT NULL,
			provenance TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			prev_target_id TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			updated_at DATETIME,
			UNIQUE(normalized_key, target_kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payer_aliases_key ON payer_aliases(normalized_key)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			payer_raw TEXT NOT NULL,
			payer_normalized TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			period TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			matched_account_id TEXT NOT NULL DEFAULT '',
			match_score INTEGER NOT NULL DEFAULT 0,
			match_status TEXT NOT NULL,
			match_candidates TEXT NOT NULL DEFAULT '[]',
			match_explanation TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			idempotency_key TEXT NOT NULL DEFAULT '',
			duplicate_status TEXT NOT NULL DEFAULT 'none',
			duplicate_case_id TEXT NOT NULL DEFAULT '',
			batch_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_idem_key
			ON payments(idempotency_key) WHERE idempotency_key <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_payments_fingerprint ON payments(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_batch ON payments(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_match_status ON payments(match_status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_dup_case ON payments(duplicate_case_id)`,

		`CREATE TABLE IF NOT EXISTS duplicate_cases (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			status TEXT NOT NULL,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_duplicate_cases_status ON duplicate_cases(status)`,
		`CREATE INDEX IF NOT EXISTS idx_duplicate_cases_fp ON duplicate_cases(fingerprint)`,

		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			total_rows INTEGER NOT NULL DEFAULT 0,
			auto_count INTEGER NOT NULL DEFAULT 0,
			review_count INTEGER NOT NULL DEFAULT 0,
			no_match_count INTEGER NOT NULL DEFAULT 0,
			conflict_count INTEGER NOT NULL DEFAULT 0,
			row_errors TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}
