package segment

import (
	"strings"
	"testing"

	"github.com/carelinehq/notelink/internal/note"
)

const testPage = `Resident Name : Smith, Jane 1001-2
Progress Notes
Effective Date: 01/02/2024 08:00
Type: Incident - Falls
Description and Time of Fall : fell in hallway
Effective Date: 01/02/2024 09:15
Type: Post Fall - Nursing
Data: HIR initiated, resident resting
`

func TestSegment_TwoNotes(t *testing.T) {
	s := New(nil)
	notes, res := s.Segment([]string{testPage})

	if len(notes) != 2 {
		t.Fatalf("Segment() produced %d notes, want 2 (result: %+v)", len(notes), res)
	}

	first := notes[0]
	if first.Type != note.TypeIncidentFalls {
		t.Errorf("first note type = %q", first.Type)
	}
	if first.Resident != "Smith, Jane" {
		t.Errorf("first note resident = %q", first.Resident)
	}
	if got := first.EffectiveAt.Format(note.EffectiveLayout); got != "01/02/2024 08:00" {
		t.Errorf("first note timestamp = %q", got)
	}
	if !strings.Contains(first.RawText, "fell in hallway") {
		t.Errorf("first note body = %q", first.RawText)
	}

	second := notes[1]
	if second.Type != note.TypePostFallNursing {
		t.Errorf("second note type = %q", second.Type)
	}
	if !strings.Contains(second.RawText, "HIR initiated") {
		t.Errorf("second note body = %q", second.RawText)
	}
}

func TestSegment_AmbiguousTypeLineDropped(t *testing.T) {
	page := `Resident Name : Smith, Jane 1001-2
Effective Date: 01/02/2024 08:00
Type: Behaviour - Follow up, Behaviour - Responsive Behaviour
Note Text : split artifact from pagination
`
	s := New(nil)
	notes, res := s.Segment([]string{page})

	if len(notes) != 0 {
		t.Fatalf("ambiguous region emitted %d notes, want 0", len(notes))
	}
	if res.Ambiguous != 1 {
		t.Errorf("res.Ambiguous = %d, want 1", res.Ambiguous)
	}
}

func TestSegment_NoDateOrTypeDroppedSilently(t *testing.T) {
	pages := []string{
		"Effective Date: not a date\nType: Physician Note\nNote Text : x",
		"Effective Date: 01/02/2024 10:00\nsummary page with no type line",
	}
	s := New(nil)
	notes, res := s.Segment(pages)

	if len(notes) != 0 {
		t.Fatalf("got %d notes, want 0", len(notes))
	}
	if res.NoDate != 1 || res.NoType != 1 {
		t.Errorf("res = %+v, want one NoDate and one NoType drop", res)
	}
}

func TestSegment_ResidentFromFollowingPage(t *testing.T) {
	// Header lands after the page break; the segmenter checks up to two
	// pages ahead.
	pages := []string{
		"Effective Date: 01/02/2024 08:00\nType: Physician Note\nNote Text : reviewed",
		"Resident Name : Doe, John 2002-1\nProgress Notes",
	}
	s := New(nil)
	notes, _ := s.Segment(pages)

	if len(notes) != 1 {
		t.Fatalf("got %d notes, want 1", len(notes))
	}
	if notes[0].Resident != "Doe, John" {
		t.Errorf("resident = %q, want %q", notes[0].Resident, "Doe, John")
	}
}

func TestSegment_BoilerplateStripped(t *testing.T) {
	page := `Resident Name : Smith, Jane 1001-2
Effective Date: 01/02/2024 08:00
Type: Physician Note
Note Text : assessed resident

Facility # 1234
Date: 01/02/2024
Medical Record # 992
continued plan of care
`
	s := New(nil)
	notes, _ := s.Segment([]string{page})

	if len(notes) != 1 {
		t.Fatalf("got %d notes, want 1", len(notes))
	}
	body := notes[0].RawText
	if strings.Contains(body, "Facility #") || strings.Contains(body, "Medical Record") {
		t.Errorf("boilerplate not stripped: %q", body)
	}
	if !strings.Contains(body, "assessed resident") || !strings.Contains(body, "continued plan of care") {
		t.Errorf("real content lost: %q", body)
	}
	if strings.Contains(body, "  ") {
		t.Errorf("whitespace runs not collapsed: %q", body)
	}
}

func TestReclassifyHollowFalls(t *testing.T) {
	hollow := "Description and Time of Fall : History of Falls : " +
		"Resident activity/needs at the time of the fall (i.e. getting in out of bed, chair, in pain etc.) : " +
		"Location of Fall (room,dining room, toilet,shower etc) : " +
		"What foot wear did the resident wear? : " +
		"Physical Status of Resident at time of fall (i.e. pain, dizziness, change in lab values, drop in BS) : " +
		"What mechanical devices were in use (i.e. high low bed, senor etc) : " +
		"Environmental status at time of fall (i.e. w/c locked, room light, call bell accessible, etc.) : " +
		"List any medication changes within the past week : " +
		"Note if resident is on any anticoagulants: : " +
		"Head to Toe Assessment findings: (soft tissue injury, bruising, laceration, hematoma, HIR etc.) : " +
		"Range of Motion and Weight bearing status : " +
		"Current Status of Resident (is it safe to transfer resident?) : Yes."

	notes := []note.Note{
		{Type: note.TypeIncidentFalls, RawText: hollow},
		{Type: note.TypeIncidentFalls, RawText: "Description and Time of Fall : resident slid from wheelchair onto mat, no injury observed, assisted up by two staff"},
	}

	if changed := ReclassifyHollowFalls(notes); changed != 1 {
		t.Fatalf("ReclassifyHollowFalls() = %d, want 1", changed)
	}
	if notes[0].Type != note.TypePostFallNursing {
		t.Errorf("hollow note type = %q, want Post Fall - Nursing", notes[0].Type)
	}
	if notes[1].Type != note.TypeIncidentFalls {
		t.Errorf("documented fall reclassified to %q", notes[1].Type)
	}
}

func TestStripRepeatedSections(t *testing.T) {
	body := "Data: resident resting comfortably Facility # 1234 Progress Notes page junk Action: vitals taken"
	got := StripRepeatedSections(body, note.TypePostFallNursing)

	if strings.Contains(got, "Facility #") || strings.Contains(got, "page junk") {
		t.Errorf("repeated section not removed: %q", got)
	}
	if !strings.Contains(got, "resident resting comfortably") || !strings.Contains(got, "Action: vitals taken") {
		t.Errorf("content lost: %q", got)
	}
}

func TestStripJunk(t *testing.T) {
	body := "Note Text : spoke with daughter Effective Date Range junk header Note Text : follow up tomorrow"
	got := StripJunk(body)

	if strings.Contains(got, "Effective Date Range") || strings.Contains(got, "junk header") {
		t.Errorf("junk block not removed: %q", got)
	}
	if !strings.Contains(got, "spoke with daughter") {
		t.Errorf("content lost: %q", got)
	}
}
