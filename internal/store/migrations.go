package store

import (
	"database/sql"
	"fmt"
	"time"
)

// migrate creates all tables if they don't exist and seeds metadata.
func (s *Store) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (outside bootstrap transaction — meta table now exists)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}
	return nil
}

func (s *Store) runBootstrapDDL() error {
	statements := []string{
		// Extracted notes, one row per (facility, resident, timestamp, type).
		// effective_at is ISO minute precision for lexicographic range scans.
		`CREATE TABLE IF NOT EXISTS notes (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			facility      TEXT NOT NULL,
			effective_at  TEXT NOT NULL,
			resident      TEXT NOT NULL,
			note_type     TEXT NOT NULL,
			body          TEXT NOT NULL,
			injuries      TEXT,
			prev_injuries TEXT,
			run_date      TEXT NOT NULL,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(facility, effective_at, resident, note_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_facility_day ON notes(facility, effective_at)`,

		// Merged incident rows. header/cells carry the full shaped row; the
		// indexed columns serve the query tools.
		`CREATE TABLE IF NOT EXISTS incidents (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			facility      TEXT NOT NULL,
			incident_date TEXT NOT NULL,
			incident_time TEXT NOT NULL,
			resident      TEXT NOT NULL,
			incident_type TEXT,
			injuries      TEXT,
			row_json      TEXT NOT NULL,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(facility, incident_date, incident_time, resident)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_facility_date ON incidents(facility, incident_date)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_resident ON incidents(resident)`,

		// Sync run bookkeeping.
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id          TEXT PRIMARY KEY,
			facility    TEXT NOT NULL,
			year        TEXT NOT NULL,
			month       TEXT NOT NULL,
			records     INTEGER NOT NULL,
			preserved   INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			started_at  DATETIME NOT NULL,
			finished_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_facility ON sync_runs(facility, year, month)`,

		// Metadata table
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bootstrap transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrap DDL: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bootstrap: %w", err)
	}
	return nil
}

func (s *Store) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *Store) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *Store) seedMeta() error {
	defaults := map[string]string{
		"schema_version": "1",
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range defaults {
		if _, err := s.db.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}
