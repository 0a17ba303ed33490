package merge

import (
	"strings"
	"time"

	"github.com/carelinehq/notelink/internal/note"
	"github.com/carelinehq/notelink/internal/table"
)

// noteTextMarker starts the narrative body of follow-up, family and
// physician notes.
const noteTextMarker = "Note Text :"

// followUpColumns is the follow-up export layout. id fills in on the
// dashboard side; other_notes collects attached family/physician notes.
var followUpColumns = []string{
	"id", "resident_name", "date", "time", "other_notes", "summary_of_behaviour",
}

// BuildFollowUps renders every behaviour follow-up note as one export row.
// Family/Resident Involvement and Physician notes are not rows of their own;
// each attaches to the nearest prior follow-up of the same resident, appended
// to its other_notes as "Type: body".
func BuildFollowUps(notes []note.Note) *table.Table {
	type fuRow struct {
		n        *note.Note
		attached []string
	}

	var rows []*fuRow
	for i := range notes {
		if notes[i].Type == note.TypeBehaviourFollowUp {
			rows = append(rows, &fuRow{n: &notes[i]})
		}
	}

	for i := range notes {
		n := &notes[i]
		if n.Type != note.TypeFamilyInvolvement && n.Type != note.TypePhysicianNote {
			continue
		}
		// Nearest prior follow-up: smallest positive gap.
		best := -1
		var bestGap time.Duration
		for j, r := range rows {
			if !note.SameResident(r.n.Resident, n.Resident) {
				continue
			}
			gap := n.EffectiveAt.Sub(r.n.EffectiveAt)
			if gap < 0 {
				continue
			}
			if best < 0 || gap < bestGap {
				best = j
				bestGap = gap
			}
		}
		if best >= 0 {
			rows[best].attached = append(rows[best].attached,
				n.Type+": "+noteText(n.RawText))
		}
	}

	t := &table.Table{Columns: followUpColumns}
	for _, r := range rows {
		other := ""
		if len(r.attached) > 0 {
			other = strings.Join(r.attached, "<br>")
		}
		t.Rows = append(t.Rows, []string{
			"",
			r.n.Resident,
			r.n.EffectiveAt.Format("2006-01-02"),
			r.n.EffectiveAt.Format("15:04"),
			other,
			noteText(r.n.RawText),
		})
	}
	return t
}

// noteText returns the body after the "Note Text :" marker, or the whole
// body when the marker is absent.
func noteText(body string) string {
	if _, after, ok := strings.Cut(body, noteTextMarker); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(body)
}
