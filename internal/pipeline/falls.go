package pipeline

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/carelinehq/notelink/internal/correlate"
	"github.com/carelinehq/notelink/internal/note"
	"github.com/carelinehq/notelink/internal/table"
	"go.uber.org/zap"
)

var fallsColumns = []string{
	"id", "date", "time", "Day of the Week", "name",
	"incident_location", "room", "injuries", "incident_type",
	"post_fall_notes", "hir", "transfer_to_hospital",
	"rnao_assessment", "poa_contacted",
}

// fallsReport builds the falls output table: one row per authoritative
// incident, enriched from the correlated note window of the nearest falls
// note within the join window.
func (r *Runner) fallsReport(ctx context.Context, incidents []table.Incident, notes []note.Note, window time.Duration) *table.Table {
	seq := correlate.NewSequence(notes, note.FallsFormat)

	type fallsRow struct {
		incident table.Incident
		cells    []string
	}
	rows := make([]fallsRow, 0, len(incidents))

	for i := range incidents {
		inc := &incidents[i]
		anchor := nearestPrimary(inc, notes, note.FallsFormat.PrimaryType, window)

		followUps := 0
		hir, hospital, rnao := "No", "No", "No"
		poa := "No"
		injuries := inc.Injuries

		if anchor >= 0 {
			followUps = seq.CountFollowUps(anchor)
			hir = yesNo(seq.HIRStatus(anchor))
			hospital = yesNo(seq.HospitalTransfer(anchor))
			rnao = yesNo(seq.HasAssessment(anchor, note.TypeRnaoAssessment))
			poa = r.poaContacted(ctx, seq, anchor)
			if inj := seq.Injuries(anchor); inj != note.NoInjury || injuries == "" {
				injuries = inj
			}
		}
		if injuries == "" {
			injuries = note.NoInjury
		}

		rows = append(rows, fallsRow{
			incident: *inc,
			cells: []string{
				"", incidentDateKey(inc), inc.Time, incidentDay(inc), inc.Name,
				inc.Location, inc.Room, injuries, inc.Type,
				strconv.Itoa(followUps), hir, hospital, rnao, poa,
			},
		})
	}

	// Newest first, dense ids after the sort.
	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := incidentDateKey(&rows[i].incident), incidentDateKey(&rows[j].incident)
		if di != dj {
			return di > dj
		}
		return rows[i].incident.Time > rows[j].incident.Time
	})

	out := &table.Table{Columns: fallsColumns}
	for i, row := range rows {
		row.cells[0] = strconv.Itoa(i)
		out.Rows = append(out.Rows, row.cells)
	}
	return out
}

// nearestPrimary finds the index of the primary note closest in time to the
// incident, within the window. -1 when nothing matches.
func nearestPrimary(inc *table.Incident, notes []note.Note, primaryType string, window time.Duration) int {
	if inc.At.IsZero() {
		return -1
	}
	best, bestDelta := -1, window
	for i := range notes {
		if notes[i].Type != primaryType || !note.SameResident(notes[i].Resident, inc.Name) {
			continue
		}
		delta := notes[i].EffectiveAt.Sub(inc.At)
		if delta < 0 {
			delta = -delta
		}
		if delta <= bestDelta && (best < 0 || delta < bestDelta) {
			best, bestDelta = i, delta
		}
	}
	return best
}

// poaContacted decides whether the POA was contacted about the fall from the
// correlated follow-up sentences mentioning them.
func (r *Runner) poaContacted(ctx context.Context, seq *correlate.Sequence, anchor int) string {
	sentences := seq.POASentences(anchor)
	if len(sentences) == 0 {
		return "No"
	}
	if r.classifier == nil {
		for _, s := range sentences {
			lower := strings.ToLower(s)
			if strings.Contains(lower, "yes") || strings.Contains(lower, "notified") {
				return "Yes"
			}
		}
		return "No"
	}
	answer, err := r.classifier.POANotified(ctx, sentences)
	if err != nil {
		r.log.Warn("poa classification failed", zap.Error(err))
	}
	return answer
}

func incidentDateKey(inc *table.Incident) string {
	if !inc.At.IsZero() {
		return inc.At.Format("2006-01-02")
	}
	return inc.Date
}

func incidentDay(inc *table.Incident) string {
	if inc.At.IsZero() {
		return note.NoProgress3
	}
	return inc.At.Weekday().String()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
