// Package merge joins the authoritative incident table against the processed
// note table and derives the dashboard fields.
//
// The join is nearest-timestamp-within-window per resident. Unmatched
// incidents keep sentinel defaults so downstream consumers can distinguish
// "no documentation found" from blank cells. Classifier-backed fields are
// skipped entirely when the incident has no underlying documentation.
package merge

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/carelinehq/notelink/internal/note"
	"github.com/carelinehq/notelink/internal/segment"
	"github.com/carelinehq/notelink/internal/table"
)

// SummaryFallback is the summary cell for incidents with no usable
// documentation. Dashboards match on this exact string.
const SummaryFallback = "No Progress within 24hrs of RIM"

// NoOtherNotes is the other_notes default.
const NoOtherNotes = "No other notes"

// otherNotesWindow bounds how far from an incident, in either direction,
// auxiliary follow-up notes are collected.
const otherNotesWindow = 48 * time.Hour

// tier3Fields take the tier-3 sentinel when unmatched; every other format
// field defaults to tier-2.
var tier3Fields = map[string]bool{
	"behaviour_type": true,
	"triggers":       true,
}

// scratchFields feed the derivations but are dropped from the final table.
var scratchFields = map[string]bool{
	"description":        true,
	"consequences":       true,
	"medication_changes": true,
	"risks":              true,
	"outcome":            true,
}

// Classifier is the narrow surface the merger needs from the LLM layer.
type Classifier interface {
	WhoAffected(ctx context.Context, text string) (string, error)
	Summary(ctx context.Context, text string) (string, error)
	Intent(ctx context.Context, text string) (bool, error)
}

// Opts configures a merge run.
type Opts struct {
	// WindowHours overrides the format's default join window. Zero keeps the
	// format default.
	WindowHours int
}

// Result counts what a merge run did.
type Result struct {
	Incidents        int
	Matched          int
	Unmatched        int
	ClassifierErrors int
	CriticalFlagged  int
}

// Merger joins incidents with notes for one format.
type Merger struct {
	format     *note.Format
	classifier Classifier
}

// New returns a Merger. classifier may be nil, in which case the
// classifier-backed fields always take their fallbacks.
func New(format *note.Format, classifier Classifier) *Merger {
	return &Merger{format: format, classifier: classifier}
}

// row is one merged incident before final shaping.
type row struct {
	incident table.Incident
	fields   map[string]string

	whoAffected string
	codeWhite   string
	prn         string
	otherNotes  string
	summary     string
	ci          string
}

// Merge joins incidents against notes and returns the final shaped table.
func (m *Merger) Merge(ctx context.Context, incidents []table.Incident, notes []note.Note, opts Opts) (*table.Table, Result, error) {
	var res Result
	res.Incidents = len(incidents)

	window := time.Duration(m.format.MergeWindowHours) * time.Hour
	if opts.WindowHours > 0 {
		window = time.Duration(opts.WindowHours) * time.Hour
	}

	rows := make([]*row, 0, len(incidents))
	for i := range incidents {
		if err := ctx.Err(); err != nil {
			return nil, res, err
		}
		r := m.mergeOne(&incidents[i], notes, window)
		if r.matched() {
			res.Matched++
		} else {
			res.Unmatched++
		}
		m.derive(ctx, r, notes, &res)
		rows = append(rows, r)
	}

	return m.shape(rows), res, nil
}

// mergeOne finds the nearest same-resident primary note within the window
// and extracts the format's fields from it; otherwise the sentinel defaults
// stand. Ties on the delta keep the first note in input order.
func (m *Merger) mergeOne(inc *table.Incident, notes []note.Note, window time.Duration) *row {
	r := &row{incident: *inc, fields: make(map[string]string, len(m.format.Fields))}
	for _, f := range m.format.Fields {
		if tier3Fields[f.Name] {
			r.fields[f.Name] = note.NoProgress3
		} else {
			r.fields[f.Name] = note.NoProgress2
		}
	}

	if inc.At.IsZero() {
		return r
	}

	best := -1
	var bestDelta time.Duration
	for i := range notes {
		n := &notes[i]
		if n.Type != m.format.PrimaryType || !note.SameResident(n.Resident, inc.Name) {
			continue
		}
		delta := n.EffectiveAt.Sub(inc.At)
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		if best < 0 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	if best < 0 {
		return r
	}

	for _, f := range m.format.Fields {
		r.fields[f.Name] = m.format.ExtractOr(notes[best].RawText, f.Marker)
	}
	return r
}

func (r *row) matched() bool {
	for _, v := range r.fields {
		if !note.IsSentinel(v) {
			return true
		}
	}
	return false
}

func (r *row) field(name string) string {
	if v, ok := r.fields[name]; ok {
		return v
	}
	return note.NoProgress3
}

// derive computes the flag and classifier-backed columns for one row.
func (m *Merger) derive(ctx context.Context, r *row, notes []note.Note, res *Result) {
	r.codeWhite = yesNo(containsNormalized("code white",
		r.field("description"), r.field("consequences"),
		r.field("interventions"), r.field("behaviour_type")))
	r.prn = yesNo(containsLower("prn",
		r.field("description"), r.field("consequences"), r.field("interventions"),
		r.field("medication_changes"), r.field("outcome")))

	undocumented := note.IsSentinel(r.field("behaviour_type")) &&
		note.IsSentinel(r.field("description")) &&
		note.IsSentinel(r.field("outcome"))

	if undocumented || m.classifier == nil {
		r.whoAffected = note.NoProgress2
	} else {
		who, err := m.classifier.WhoAffected(ctx, m.classifierInput(r))
		if err != nil {
			res.ClassifierErrors++
		}
		r.whoAffected = who
	}

	if undocumented || m.classifier == nil {
		r.summary = SummaryFallback
	} else {
		summary, err := m.classifier.Summary(ctx, m.classifierInput(r))
		if err != nil || summary == "" {
			res.ClassifierErrors++
			summary = SummaryFallback
		}
		r.summary = summary
	}

	r.ci = m.deriveCI(ctx, r, res)
	r.otherNotes = m.collectOtherNotes(r, notes)
}

// classifierInput concatenates the documented source fields for a prompt.
func (m *Merger) classifierInput(r *row) string {
	var parts []string
	for _, name := range []string{"behaviour_type", "triggers", "description", "consequences", "outcome"} {
		if v, ok := r.fields[name]; ok && !note.IsSentinel(v) {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// deriveCI requires both textual preconditions before the intent classifier
// is consulted on the derived summary; a classifier "yes" alone never flags
// a critical incident.
func (m *Merger) deriveCI(ctx context.Context, r *row, res *Result) string {
	if !strings.Contains(strings.ToLower(r.incident.Type), "physical aggression initiated") {
		return "No"
	}
	who := strings.ToLower(r.whoAffected)
	if !strings.Contains(who, "resident initiated") || !strings.Contains(who, "resident received") {
		return "No"
	}
	if note.IsSentinel(r.summary) || r.summary == SummaryFallback || m.classifier == nil {
		return "No"
	}

	intent, err := m.classifier.Intent(ctx, r.summary)
	if err != nil {
		res.ClassifierErrors++
		return "No"
	}
	if intent {
		res.CriticalFlagged++
		return "Yes"
	}
	return "No"
}

// collectOtherNotes gathers same-resident auxiliary follow-up notes within
// 48h of the incident as "Type (date time): body" lines. Care documentation
// is routinely backdated, so notes stamped before the incident count too.
func (m *Merger) collectOtherNotes(r *row, notes []note.Note) string {
	if r.incident.At.IsZero() {
		return NoOtherNotes
	}
	var lines []string
	for i := range notes {
		n := &notes[i]
		if n.Type != m.format.FollowUpType || !note.SameResident(n.Resident, r.incident.Name) {
			continue
		}
		delta := n.EffectiveAt.Sub(r.incident.At)
		if delta < 0 {
			delta = -delta
		}
		if delta > otherNotesWindow {
			continue
		}
		lines = append(lines, n.Type+" ("+n.EffectiveAt.Format("2006-01-02 15:04")+"): "+segment.StripJunk(n.RawText))
	}
	if len(lines) == 0 {
		return NoOtherNotes
	}
	return strings.Join(lines, "<br>")
}

// shape sorts rows by (date, time) descending, assigns the dense id, and
// renders the final column set.
func (m *Merger) shape(rows []*row) *table.Table {
	sort.SliceStable(rows, func(a, b int) bool {
		ra, rb := rows[a], rows[b]
		if ra.incident.Date != rb.incident.Date {
			return dateKey(&ra.incident) > dateKey(&rb.incident)
		}
		return ra.incident.Time > rb.incident.Time
	})

	kept := make([]string, 0, len(m.format.Fields))
	for _, f := range m.format.Fields {
		if !scratchFields[f.Name] {
			kept = append(kept, f.Name)
		}
	}

	cols := []string{"id", "date", "time", "Day of the Week", "name",
		"incident_location", "room", "injuries", "incident_type"}
	cols = append(cols, kept...)
	cols = append(cols, "who_affected", "code_white", "prn", "other_notes", "summary", "CI")

	t := &table.Table{Columns: cols}
	for id, r := range rows {
		cells := []string{
			strconv.Itoa(id),
			dateKey(&r.incident),
			r.incident.Time,
			dayOfWeek(&r.incident),
			r.incident.Name,
			r.incident.Location,
			r.incident.Room,
			r.incident.Injuries,
			r.incident.Type,
		}
		for _, name := range kept {
			cells = append(cells, r.field(name))
		}
		cells = append(cells, r.whoAffected, r.codeWhite, r.prn, r.otherNotes, r.summary, r.ci)

		for i, c := range cells {
			if strings.TrimSpace(c) == "" {
				cells[i] = note.NoProgress3
			}
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// dateKey renders the incident date as YYYY-MM-DD; unparsable dates pass
// through as captured.
func dateKey(inc *table.Incident) string {
	if !inc.At.IsZero() {
		return inc.At.Format("2006-01-02")
	}
	return inc.Date
}

func dayOfWeek(inc *table.Incident) string {
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

// containsNormalized searches for needle with hyphens and underscores in the
// haystacks normalized to spaces.
func containsNormalized(needle string, haystacks ...string) bool {
	repl := strings.NewReplacer("-", " ", "_", " ")
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(repl.Replace(h)), needle) {
			return true
		}
	}
	return false
}

func containsLower(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}
