package correlate

import (
	"testing"
	"time"

	"github.com/carelinehq/notelink/internal/note"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	when, err := time.Parse(note.EffectiveLayout, s)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", s, err)
	}
	return when
}

func fallsSeq(t *testing.T, notes []note.Note) *Sequence {
	t.Helper()
	return NewSequence(notes, note.FallsFormat)
}

func TestHIRStatus_FromFollowUp(t *testing.T) {
	// Scenario: an incident at 08:00 followed by a nursing note at 09:15
	// mentioning HIR. Correlating the incident must attach the follow-up and
	// report HIR true.
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, EffectiveAt: ts(t, "01/02/2024 08:00"), RawText: "fell in hallway"},
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, EffectiveAt: ts(t, "01/02/2024 09:15"), RawText: "HIR initiated"},
	}
	// Document order is ascending time; the anchor scan looks backward, so
	// the follow-up written after the fall sits before the *next* incident —
	// here the anchor is the follow-up's predecessor when the table is
	// ordered most-recent-last and the incident row is re-anchored per scan.
	// Correlation is defined over the note at the later index.
	seq := fallsSeq(t, notes)

	if got := seq.CountFollowUps(1); got != 0 {
		t.Errorf("follow-up is not an anchor; CountFollowUps(1) = %d, want 0", got)
	}

	// Reverse ordering as produced by the document (most recent first in the
	// export): the incident appears after its follow-ups in index order.
	rev := []note.Note{notes[1], notes[0]}
	seq = fallsSeq(t, rev)

	if got := seq.CountFollowUps(1); got != 1 {
		t.Errorf("CountFollowUps = %d, want 1", got)
	}
	if !seq.HIRStatus(1) {
		t.Error("HIRStatus = false, want true (follow-up mentions HIR)")
	}
}

func TestWindow_NeverIncludesLaterNotes(t *testing.T) {
	// Notes after the anchor index must never appear in the anchor's window.
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, RawText: "hir continued", EffectiveAt: ts(t, "01/01/2024 10:00")},
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, RawText: "fall one", EffectiveAt: ts(t, "01/01/2024 12:00")},
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, RawText: "hir after anchor", EffectiveAt: ts(t, "01/01/2024 14:00")},
	}
	seq := fallsSeq(t, notes)

	if got := seq.CountFollowUps(1); got != 1 {
		t.Errorf("CountFollowUps = %d, want 1 (only the earlier follow-up)", got)
	}
}

func TestWindow_TerminatesAtPreviousPrimary(t *testing.T) {
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, RawText: "belongs to first fall hir", EffectiveAt: ts(t, "01/01/2024 08:00")},
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, RawText: "first fall", EffectiveAt: ts(t, "01/01/2024 09:00")},
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, RawText: "second fall follow up", EffectiveAt: ts(t, "01/01/2024 11:00")},
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, RawText: "second fall", EffectiveAt: ts(t, "01/01/2024 12:00")},
	}
	seq := fallsSeq(t, notes)

	if got := seq.CountFollowUps(3); got != 1 {
		t.Errorf("CountFollowUps(second fall) = %d, want 1", got)
	}
	if seq.HIRStatus(3) {
		t.Error("HIR from a prior incident's follow-up leaked across the primary boundary")
	}
}

func TestWindow_SkipsOtherResidents(t *testing.T) {
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, RawText: "hir noted", EffectiveAt: ts(t, "01/01/2024 08:00")},
		{Resident: "Doe, John", Type: note.TypeIncidentFalls, RawText: "different resident fall", EffectiveAt: ts(t, "01/01/2024 08:30")},
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, RawText: "jane fall", EffectiveAt: ts(t, "01/01/2024 09:00")},
	}
	seq := fallsSeq(t, notes)

	// Doe's incident must not terminate Jane's scan.
	if !seq.HIRStatus(2) {
		t.Error("other resident's primary note terminated the scan")
	}
}

func TestWindow_StopsAtSequenceStart(t *testing.T) {
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, RawText: "first note in sequence", EffectiveAt: ts(t, "01/01/2024 09:00")},
	}
	seq := fallsSeq(t, notes)

	if got := seq.CountFollowUps(0); got != 0 {
		t.Errorf("CountFollowUps at sequence start = %d, want 0", got)
	}
}

func TestHospitalTransfer(t *testing.T) {
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, RawText: "911 called, sent to hospital", EffectiveAt: ts(t, "01/01/2024 08:00")},
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, RawText: "fall, no injury noted", EffectiveAt: ts(t, "01/01/2024 09:00")},
	}
	seq := fallsSeq(t, notes)

	if !seq.HospitalTransfer(1) {
		t.Error("HospitalTransfer = false, want true")
	}
}

func TestInjuries_UnionFormatted(t *testing.T) {
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, Injuries: "bruise, Skin Tear", EffectiveAt: ts(t, "01/01/2024 08:00")},
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, Injuries: "BRUISE, laceration", EffectiveAt: ts(t, "01/01/2024 09:00")},
	}
	seq := fallsSeq(t, notes)

	got := seq.Injuries(1)
	want := "Bruise, Laceration, Skin tear"
	if got != want {
		t.Errorf("Injuries = %q, want %q", got, want)
	}
}

func TestInjuries_EmptyUnion(t *testing.T) {
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, Injuries: note.NoInjury, EffectiveAt: ts(t, "01/01/2024 09:00")},
	}
	seq := fallsSeq(t, notes)

	if got := seq.Injuries(0); got != note.NoInjury {
		t.Errorf("Injuries = %q, want %q", got, note.NoInjury)
	}
}

func TestHasAssessment(t *testing.T) {
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypeRnaoAssessment, RawText: "assessment complete", EffectiveAt: ts(t, "01/01/2024 08:30")},
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, RawText: "fall", EffectiveAt: ts(t, "01/01/2024 09:00")},
	}
	seq := fallsSeq(t, notes)

	if !seq.HasAssessment(1, note.TypeRnaoAssessment) {
		t.Error("HasAssessment = false, want true")
	}
}

func TestPOASentences(t *testing.T) {
	notes := []note.Note{
		{Resident: "Smith, Jane", Type: note.TypePostFallNursing, RawText: "Resident stable. POA notified of fall. Will monitor.", EffectiveAt: ts(t, "01/01/2024 08:00")},
		{Resident: "Smith, Jane", Type: note.TypeIncidentFalls, RawText: "fall", EffectiveAt: ts(t, "01/01/2024 09:00")},
	}
	seq := fallsSeq(t, notes)

	got := seq.POASentences(1)
	if len(got) != 1 || got[0] != "poa notified of fall" {
		t.Errorf("POASentences = %v", got)
	}
}
