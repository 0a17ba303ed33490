package store

import (
	"context"
	"fmt"
	"time"

	"github.com/carelinehq/notelink/internal/note"
)

// isoMinute is the archive timestamp layout.
const isoMinute = "2006-01-02 15:04"

// SaveNotes upserts a run's extracted notes for a facility. Re-running the
// same file replaces the rows in place.
func (s *Store) SaveNotes(ctx context.Context, facility string, runDate time.Time, notes []note.Note) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notes (facility, effective_at, resident, note_type, body, injuries, prev_injuries, run_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(facility, effective_at, resident, note_type) DO UPDATE SET
			body = excluded.body,
			injuries = excluded.injuries,
			prev_injuries = excluded.prev_injuries,
			run_date = excluded.run_date`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	saved := 0
	for i := range notes {
		n := &notes[i]
		_, err := stmt.ExecContext(ctx,
			facility,
			n.EffectiveAt.Format(isoMinute),
			note.CleanName(n.Resident),
			n.Type,
			n.RawText,
			n.Injuries,
			n.PrevInjuries,
			runDate.Format("2006-01-02"),
		)
		if err != nil {
			return saved, fmt.Errorf("inserting note %d: %w", i, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return saved, fmt.Errorf("committing notes: %w", err)
	}
	return saved, nil
}

// NotesForDay loads the archived notes whose effective timestamp falls on the
// given calendar day. The injury carryover pass matches these against a new
// run's notes.
func (s *Store) NotesForDay(ctx context.Context, facility string, day time.Time) ([]note.Note, error) {
	dayKey := day.Format("2006-01-02")
	nextKey := day.AddDate(0, 0, 1).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx, `
		SELECT effective_at, resident, note_type, body, injuries, prev_injuries
		FROM notes
		WHERE facility = ? AND effective_at >= ? AND effective_at < ?
		ORDER BY effective_at`,
		facility, dayKey+" 00:00", nextKey+" 00:00")
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	var notes []note.Note
	for rows.Next() {
		var at, resident, noteType, body string
		var injuries, prevInjuries *string
		if err := rows.Scan(&at, &resident, &noteType, &body, &injuries, &prevInjuries); err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		when, err := time.Parse(isoMinute, at)
		if err != nil {
			continue
		}
		n := note.Note{
			EffectiveAt: when,
			Resident:    resident,
			Type:        noteType,
			RawText:     body,
		}
		if injuries != nil {
			n.Injuries = *injuries
		}
		if prevInjuries != nil {
			n.PrevInjuries = *prevInjuries
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
