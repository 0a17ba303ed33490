package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/carelinehq/notelink/internal/note"
)

// Incident is one row of the authoritative incident table, captured
// independently of the progress notes.
type Incident struct {
	Number   string
	Name     string
	Date     string // MM/DD/YYYY as captured
	Time     string // HH:MM, 24h
	Location string
	Room     string
	Injuries string
	Type     string

	At time.Time // parsed Date+Time, zero when unparsable
}

// Incident table column names as the capture tooling writes them.
var incidentColumns = []string{
	"incident_number", "name", "date", "time",
	"incident_location", "room", "injuries", "incident_type",
}

// ReadIncidents loads the authoritative incident table. Rows with an
// unparsable timestamp are kept (the merge falls back to string matching on
// the date) but their At field is zero.
func ReadIncidents(path string) ([]Incident, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}

	idx := make([]int, len(incidentColumns))
	for i, col := range incidentColumns {
		idx[i] = t.ColumnIndex(col)
		if idx[i] < 0 {
			return nil, fmt.Errorf("incident table %s: missing column %q", path, col)
		}
	}

	incidents := make([]Incident, 0, len(t.Rows))
	for _, row := range t.Rows {
		inc := Incident{
			Number:   strings.TrimSpace(row[idx[0]]),
			Name:     note.CleanName(row[idx[1]]),
			Date:     strings.TrimSpace(row[idx[2]]),
			Time:     strings.TrimSpace(row[idx[3]]),
			Location: strings.TrimSpace(row[idx[4]]),
			Room:     strings.TrimSpace(row[idx[5]]),
			Injuries: strings.TrimSpace(row[idx[6]]),
			Type:     strings.TrimSpace(row[idx[7]]),
		}
		if at, err := time.Parse(note.EffectiveLayout, inc.Date+" "+inc.Time); err == nil {
			inc.At = at
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

// CountByDay tallies incidents per resident per calendar day, regardless of
// row type: the table's own type vocabulary does not match the note stream's,
// so a type filter would silently drop everything. Keys follow DayKey's
// resident|day shape; the correlation layer uses the result to reconcile
// over-reported note streams.
func CountByDay(incidents []Incident) map[string]int {
	counts := make(map[string]int)
	for _, inc := range incidents {
		day := inc.Date
		if !inc.At.IsZero() {
			day = inc.At.Format("2006-01-02")
		}
		counts[strings.ToLower(inc.Name)+"|"+day]++
	}
	return counts
}
