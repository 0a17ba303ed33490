package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carelinehq/notelink/internal/table"
)

// IncidentRow is one archived merged incident.
type IncidentRow struct {
	Facility string            `json:"facility"`
	Date     string            `json:"date"`
	Time     string            `json:"time"`
	Resident string            `json:"resident"`
	Type     string            `json:"incident_type"`
	Injuries string            `json:"injuries"`
	Fields   map[string]string `json:"fields"`
}

// SaveIncidents upserts a merged output table for a facility. The table must
// carry the standard shaped columns (date, time, name, incident_type,
// injuries); the full row is archived as JSON.
func (s *Store) SaveIncidents(ctx context.Context, facility string, t *table.Table) (int, error) {
	dateIdx := t.ColumnIndex("date")
	timeIdx := t.ColumnIndex("time")
	nameIdx := t.ColumnIndex("name")
	typeIdx := t.ColumnIndex("incident_type")
	injIdx := t.ColumnIndex("injuries")
	if dateIdx < 0 || timeIdx < 0 || nameIdx < 0 {
		return 0, fmt.Errorf("incident table missing date/time/name columns")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO incidents (facility, incident_date, incident_time, resident, incident_type, injuries, row_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(facility, incident_date, incident_time, resident) DO UPDATE SET
			incident_type = excluded.incident_type,
			injuries = excluded.injuries,
			row_json = excluded.row_json`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	saved := 0
	for i, row := range t.Rows {
		fields := make(map[string]string, len(t.Columns))
		for j, col := range t.Columns {
			fields[col] = row[j]
		}
		rowJSON, err := json.Marshal(fields)
		if err != nil {
			return saved, fmt.Errorf("encoding row %d: %w", i, err)
		}

		incidentType, injuries := "", ""
		if typeIdx >= 0 {
			incidentType = row[typeIdx]
		}
		if injIdx >= 0 {
			injuries = row[injIdx]
		}
		_, err = stmt.ExecContext(ctx,
			facility, row[dateIdx], row[timeIdx], row[nameIdx],
			incidentType, injuries, string(rowJSON))
		if err != nil {
			return saved, fmt.Errorf("inserting incident row %d: %w", i, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return saved, fmt.Errorf("committing incidents: %w", err)
	}
	return saved, nil
}

// QueryOpts filters QueryIncidents. Zero values match everything.
type QueryOpts struct {
	Facility string
	Resident string // substring, case-insensitive
	From     string // YYYY-MM-DD inclusive
	To       string // YYYY-MM-DD inclusive
	Limit    int
}

// QueryIncidents returns archived incidents, newest first.
func (s *Store) QueryIncidents(ctx context.Context, opts QueryOpts) ([]IncidentRow, error) {
	query := `SELECT facility, incident_date, incident_time, resident, incident_type, injuries, row_json
		FROM incidents WHERE 1=1`
	var args []any
	if opts.Facility != "" {
		query += " AND facility = ?"
		args = append(args, opts.Facility)
	}
	if opts.Resident != "" {
		query += " AND LOWER(resident) LIKE ?"
		args = append(args, "%"+strings.ToLower(opts.Resident)+"%")
	}
	if opts.From != "" {
		query += " AND incident_date >= ?"
		args = append(args, opts.From)
	}
	if opts.To != "" {
		query += " AND incident_date <= ?"
		args = append(args, opts.To)
	}
	query += " ORDER BY incident_date DESC, incident_time DESC"
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying incidents: %w", err)
	}
	defer rows.Close()

	var out []IncidentRow
	for rows.Next() {
		var r IncidentRow
		var rowJSON string
		if err := rows.Scan(&r.Facility, &r.Date, &r.Time, &r.Resident, &r.Type, &r.Injuries, &rowJSON); err != nil {
			return nil, fmt.Errorf("scanning incident: %w", err)
		}
		if err := json.Unmarshal([]byte(rowJSON), &r.Fields); err != nil {
			return nil, fmt.Errorf("decoding incident row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarizes the archive for one facility, or all when facility is "".
type Stats struct {
	Incidents     int64            `json:"incidents"`
	Notes         int64            `json:"notes"`
	ByType        map[string]int64 `json:"by_type"`
	WithInjuries  int64            `json:"with_injuries"`
	FirstIncident string           `json:"first_incident,omitempty"`
	LastIncident  string           `json:"last_incident,omitempty"`
}

// IncidentStats computes archive counts.
func (s *Store) IncidentStats(ctx context.Context, facility string) (*Stats, error) {
	stats := &Stats{ByType: make(map[string]int64)}

	where, args := "", []any{}
	if facility != "" {
		where = " WHERE facility = ?"
		args = append(args, facility)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(incident_date), ''), COALESCE(MAX(incident_date), '')
		FROM incidents`+where, args...)
	if err := row.Scan(&stats.Incidents, &stats.FirstIncident, &stats.LastIncident); err != nil {
		return nil, fmt.Errorf("counting incidents: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+where, args...).Scan(&stats.Notes); err != nil {
		return nil, fmt.Errorf("counting notes: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM incidents`+whereAnd(where)+`
		injuries != '' AND injuries != 'No Injury'`, args...).Scan(&stats.WithInjuries); err != nil {
		return nil, fmt.Errorf("counting injuries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT incident_type, COUNT(*) FROM incidents`+where+`
		GROUP BY incident_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("grouping by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var c int64
		if err := rows.Scan(&t, &c); err != nil {
			return nil, fmt.Errorf("scanning type count: %w", err)
		}
		stats.ByType[t] = c
	}
	return stats, rows.Err()
}

func whereAnd(where string) string {
	if where == "" {
		return " WHERE "
	}
	return where + " AND "
}
