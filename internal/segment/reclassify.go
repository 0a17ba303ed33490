package segment

import (
	"strings"

	"github.com/carelinehq/notelink/internal/note"
)

// hollowCheckFields are the falls headers inspected by the hollow-note
// heuristic, by stable prefix. Source exports sometimes emit a falls form
// shell with every answer blank when the note is really a nursing follow-up
// typed against the wrong template.
var hollowCheckFields = []string{
	"History of Falls",
	"Resident activity/needs at the time of the fall",
	"Location of Fall",
	"What foot wear did the resident wear",
	"Physical Status of Resident at time of fall",
	"What mechanical devices were in use",
	"Environmental status at time of fall",
	"List any medication changes within the past week",
	"Note if resident is on any anticoagulants:",
	"Head to Toe Assessment findings:",
	"Range of Motion and Weight bearing status",
	"Fracture (Shortening of limbs",
	"Current Status of Resident",
}

const (
	// hollowMinFields is how many check fields must be present before the
	// heuristic applies at all.
	hollowMinFields = 8

	// hollowEmptyRatio is the fraction of present fields that must be
	// effectively empty.
	hollowEmptyRatio = 0.75
)

// ReclassifyHollowFalls rewrites Incident - Falls notes whose falls form is
// an empty shell to Post Fall - Nursing. Returns the number of notes
// reclassified.
func ReclassifyHollowFalls(notes []note.Note) int {
	changed := 0
	for i := range notes {
		if notes[i].Type != note.TypeIncidentFalls {
			continue
		}
		if isHollowFallsForm(notes[i].RawText) {
			notes[i].Type = note.TypePostFallNursing
			changed++
		}
	}
	return changed
}

// isHollowFallsForm reports whether the falls form fields are present but
// effectively unanswered.
func isHollowFallsForm(text string) bool {
	text = strings.Join(strings.Fields(text), " ")

	found, empty := 0, 0
	for _, field := range hollowCheckFields {
		start := fieldValueStart(text, field)
		if start < 0 {
			continue
		}
		found++

		end := len(text)
		for _, other := range hollowCheckFields {
			if other == field {
				continue
			}
			if pos := strings.Index(text[start:], other); pos >= 0 && start+pos < end {
				end = start + pos
			}
		}

		content := strings.TrimSpace(text[start:end])
		if content == "" || content == ":" || content == "Yes" || content == "Yes." || len(content) <= 5 {
			empty++
		}
	}

	return found >= hollowMinFields && float64(empty) >= float64(found)*hollowEmptyRatio
}

// fieldValueStart locates the end of a field label (its prefix plus the
// colon that terminates the label), or -1 when absent.
func fieldValueStart(text, prefix string) int {
	idx := strings.Index(text, prefix)
	if idx < 0 {
		return -1
	}
	at := idx + len(prefix)
	// Skip the remainder of the label through its trailing colon, tolerating
	// the parenthesized hints the form embeds in some labels.
	if colon := strings.Index(text[at:], ":"); colon >= 0 && colon < 90 {
		return at + colon + 1
	}
	return at
}

// noteHeaders returns the section headers valid for a note type, used when
// removing repeated page-header blocks from a body. A LATE ENTRY prefix is
// itself a header when present.
func noteHeaders(noteType, body string) []string {
	var base []string
	switch noteType {
	case note.TypePostFallNursing:
		base = []string{"Data:", "Action:", "Response:"}
	case note.TypeFamilyInvolvement:
		base = []string{"Data :", "Action :", "Response :"}
	case note.TypePhysicianNote, note.TypeBehaviourFollowUp:
		base = []string{"Note Text :"}
	default:
		base = note.FallsHeaders
	}
	if strings.Contains(body, "LATE ENTRY") {
		return append([]string{"LATE ENTRY"}, base...)
	}
	return base
}

// StripRepeatedSections removes every "Facility #" page-header block from a
// note body, cutting from the marker to the next section header valid for
// the note's type (or end of body when none follows).
func StripRepeatedSections(body, noteType string) string {
	headers := noteHeaders(noteType, body)
	for {
		idx := strings.Index(body, "Facility #")
		if idx < 0 {
			break
		}

		end := len(body)
		for _, header := range headers {
			if pos := strings.Index(body[idx:], header); pos > 0 && idx+pos < end {
				end = idx + pos
			}
		}
		if end == len(body) {
			// Falls shells end at the POA section when no header follows.
			if pos := strings.Index(body[idx:], "POA aware and response of POA"); pos > 0 {
				end = idx + pos
			}
		}

		body = body[:idx] + body[end:]
	}
	return strings.TrimSpace(body)
}

// auxHeaders delimit follow-up/involvement/physician note bodies.
var auxHeaders = []string{"Data :", "Action :", "Response :", "Note Text :"}

// StripJunk removes "Facility #" and "Effective Date Range" blocks from an
// auxiliary note body, cutting to the nearest following auxiliary header.
func StripJunk(body string) string {
	for _, marker := range []string{"Facility #", "Effective Date Range"} {
		idx := strings.Index(body, marker)
		if idx < 0 {
			continue
		}
		end := len(body)
		for _, header := range auxHeaders {
			if pos := strings.Index(body[idx:], header); pos >= 0 && idx+pos < end {
				end = idx + pos
			}
		}
		body = body[:idx] + body[end:]
	}
	return strings.TrimSpace(body)
}

// CleanBodies applies per-type body cleanup to a segmented note slice in
// place.
func CleanBodies(notes []note.Note) {
	for i := range notes {
		notes[i].RawText = StripRepeatedSections(notes[i].RawText, notes[i].Type)
	}
}
