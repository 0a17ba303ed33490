package correlate

import (
	"testing"

	"github.com/carelinehq/notelink/internal/note"
	"github.com/carelinehq/notelink/internal/table"
)

func fallNote(t *testing.T, resident, stamp, text string) note.Note {
	t.Helper()
	return note.Note{
		Resident:    resident,
		Type:        note.TypeIncidentFalls,
		EffectiveAt: ts(t, stamp),
		RawText:     text,
	}
}

func TestDedupe_OverReportedDay(t *testing.T) {
	// Three fall notes on one day, authoritative count of one: the earliest
	// survives, follow-ups are untouched.
	notes := []note.Note{
		fallNote(t, "Smith, Jane", "01/02/2024 14:00", "third report"),
		fallNote(t, "Smith, Jane", "01/02/2024 08:00", "first report"),
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, EffectiveAt: ts(t, "01/02/2024 09:00"), RawText: "follow up"},
		fallNote(t, "Smith, Jane", "01/02/2024 11:00", "second report"),
	}
	counts := DayCounts{DayKey("Smith, Jane", "2024-01-02"): 1}

	kept, res := Dedupe(notes, note.TypeIncidentFalls, counts)

	if res.Groups != 1 || res.Removed != 2 {
		t.Errorf("result = %+v, want 1 group, 2 removed", res)
	}
	if len(kept) != 2 {
		t.Fatalf("kept %d notes, want 2", len(kept))
	}
	if kept[0].RawText != "first report" {
		t.Errorf("survivor = %q, want the earliest report", kept[0].RawText)
	}
	if kept[1].Type != note.TypePostFallNursing {
		t.Errorf("follow-up note was removed")
	}
}

func TestDedupe_KeepsEarliestK(t *testing.T) {
	notes := []note.Note{
		fallNote(t, "Smith, Jane", "01/02/2024 08:00", "a"),
		fallNote(t, "Smith, Jane", "01/02/2024 12:00", "c"),
		fallNote(t, "Smith, Jane", "01/02/2024 10:00", "b"),
	}
	counts := DayCounts{DayKey("Smith, Jane", "2024-01-02"): 2}

	kept, res := Dedupe(notes, note.TypeIncidentFalls, counts)

	if res.Removed != 1 {
		t.Errorf("removed %d, want 1", res.Removed)
	}
	var texts []string
	for _, n := range kept {
		texts = append(texts, n.RawText)
	}
	// Original order preserved among survivors.
	if len(texts) != 2 || texts[0] != "a" || texts[1] != "b" {
		t.Errorf("kept %v, want [a b]", texts)
	}
}

func TestDedupe_ZeroCountKeepsOne(t *testing.T) {
	notes := []note.Note{
		fallNote(t, "Smith, Jane", "01/02/2024 10:00", "later"),
		fallNote(t, "Smith, Jane", "01/02/2024 08:00", "earlier"),
	}

	kept, _ := Dedupe(notes, note.TypeIncidentFalls, DayCounts{})

	if len(kept) != 1 || kept[0].RawText != "earlier" {
		t.Errorf("kept %v, want only the earlier note", kept)
	}
}

func TestDedupe_WithinBudgetUntouched(t *testing.T) {
	notes := []note.Note{
		fallNote(t, "Smith, Jane", "01/02/2024 08:00", "a"),
		fallNote(t, "Smith, Jane", "01/02/2024 10:00", "b"),
	}
	counts := DayCounts{DayKey("smith, jane", "2024-01-02"): 3}

	kept, res := Dedupe(notes, note.TypeIncidentFalls, counts)

	if res.Removed != 0 || len(kept) != 2 {
		t.Errorf("within-budget group modified: removed=%d kept=%d", res.Removed, len(kept))
	}
}

func TestDedupe_NilCountsSkips(t *testing.T) {
	notes := []note.Note{
		fallNote(t, "Smith, Jane", "01/02/2024 08:00", "a"),
		fallNote(t, "Smith, Jane", "01/02/2024 10:00", "b"),
		fallNote(t, "Smith, Jane", "01/02/2024 12:00", "c"),
	}

	kept, res := Dedupe(notes, note.TypeIncidentFalls, nil)

	if len(kept) != 3 || res.Removed != 0 {
		t.Errorf("nil counts must skip reconciliation, kept=%d removed=%d", len(kept), res.Removed)
	}
}

func TestDedupe_TableCountsIgnoreRowType(t *testing.T) {
	// The capture tooling labels incident rows in its own vocabulary, not the
	// note stream's. Two corroborated same-day incidents must keep both
	// primary notes regardless of how the rows are typed.
	incidents := []table.Incident{
		{Name: "Smith, Jane", Type: "Behaviour", At: ts(t, "01/02/2024 08:00")},
		{Name: "Smith, Jane", Type: "Behaviour", At: ts(t, "01/02/2024 10:00")},
	}
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypeBehaviourIncident, EffectiveAt: ts(t, "01/02/2024 08:05"), RawText: "first"},
		{Resident: "Smith, Jane", Type: note.TypeBehaviourIncident, EffectiveAt: ts(t, "01/02/2024 10:05"), RawText: "second"},
	}

	kept, res := Dedupe(notes, note.TypeBehaviourIncident, DayCounts(table.CountByDay(incidents)))

	if len(kept) != 2 || res.Removed != 0 {
		t.Errorf("corroborated notes removed: kept=%d removed=%d", len(kept), res.Removed)
	}
}

func TestDedupe_SeparateDaysAndResidents(t *testing.T) {
	notes := []note.Note{
		fallNote(t, "Smith, Jane", "01/02/2024 08:00", "jane day1"),
		fallNote(t, "Smith, Jane", "01/03/2024 08:00", "jane day2"),
		fallNote(t, "Doe, John", "01/02/2024 09:00", "john day1"),
	}
	counts := DayCounts{DayKey("Smith, Jane", "2024-01-02"): 1}

	kept, res := Dedupe(notes, note.TypeIncidentFalls, counts)

	if len(kept) != 3 || res.Groups != 0 {
		t.Errorf("singleton groups were reconciled: kept=%d groups=%d", len(kept), res.Groups)
	}
}
