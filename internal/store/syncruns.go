package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SyncRun records one upload to the remote document store.
type SyncRun struct {
	ID         string // uuid
	Facility   string
	Year       string
	Month      string
	Records    int
	Preserved  int // records that kept manual dashboard edits
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// BeginSyncRun records a started upload.
func (s *Store) BeginSyncRun(ctx context.Context, run *SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, facility, year, month, records, preserved, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, 'running', ?)`,
		run.ID, run.Facility, run.Year, run.Month, run.Records, run.Preserved,
		run.StartedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording sync run: %w", err)
	}
	return nil
}

// FinishSyncRun marks a run complete or failed.
func (s *Store) FinishSyncRun(ctx context.Context, id, status string, records, preserved int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET status = ?, records = ?, preserved = ?, finished_at = ?
		WHERE id = ?`,
		status, records, preserved, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sync run %s not found", id)
	}
	return nil
}

// LastSyncRun returns the most recent run for a facility/year/month, or nil.
func (s *Store) LastSyncRun(ctx context.Context, facility, year, month string) (*SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, facility, year, month, records, preserved, status, started_at, COALESCE(finished_at, '')
		FROM sync_runs
		WHERE facility = ? AND year = ? AND month = ?
		ORDER BY started_at DESC LIMIT 1`,
		facility, year, month)

	var run SyncRun
	var started, finished string
	err := row.Scan(&run.ID, &run.Facility, &run.Year, &run.Month,
		&run.Records, &run.Preserved, &run.Status, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading sync run: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, started)
	if finished != "" {
		run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	}
	return &run, nil
}
