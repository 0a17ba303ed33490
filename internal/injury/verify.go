package injury

import (
	"sort"
	"strings"

	"github.com/carelinehq/notelink/internal/note"
)

// verifySectionKeywords selects which fall-note sections count as evidence.
// Narrative sections ("Details of fall") recap resident statements and
// produce false positives; only assessment-style sections are trusted.
var verifySectionKeywords = []string{
	"description",
	"head to toe assessment",
	"range of motion",
	"current status",
	"physical status",
	"fracture",
}

// negations are checked in a window around each term occurrence.
var negations = []string{
	"no ", "not ", "denies ", "negative for ", "none", "without",
}

const negationWindow = 20

// termVariants lists alternate phrasings accepted as evidence for a term.
var termVariants = map[string][]string{
	"bruise":      {"bruise", "bruising"},
	"broken skin": {"broken skin", "skin broken", "break in skin"},
	"skin tear":   {"skin tear", "tear to skin", "tear on skin"},
	"head injury": {"head injury", "hit head", "hit his head", "hit her head", "hit their head", "struck head"},
}

// Verify re-checks every detected injury label against the note text and
// drops labels with no affirmative mention. Fall incident notes are verified
// against their assessment sections only; every other note type is verified
// against the full body. A label counts as verified when at least one
// occurrence of the term (or a known variant) has no negation phrase in the
// surrounding window. Returns "No Injury" when nothing survives.
func Verify(noteType, body, injuries string) string {
	if injuries == "" || injuries == note.NoInjury {
		return note.NoInjury
	}

	evidence := strings.ToLower(body)
	if noteType == note.TypeIncidentFalls {
		evidence = strings.ToLower(evidenceText(body))
	}
	if evidence == "" {
		return note.NoInjury
	}

	var kept []string
	for _, label := range strings.Split(injuries, ",") {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if affirmed(evidence, strings.ToLower(label)) {
			kept = append(kept, label)
		}
	}
	if len(kept) == 0 {
		return note.NoInjury
	}
	sort.Strings(kept)
	return strings.Join(kept, ", ")
}

// evidenceText concatenates the whitelisted sections of a fall note.
func evidenceText(body string) string {
	var parts []string
	for _, field := range note.FallsFormat.Fields {
		if !sectionWhitelisted(field.Name) {
			continue
		}
		value, err := note.FallsFormat.Extract(body, field.Marker)
		if err != nil || note.IsSentinel(value) {
			continue
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, " ")
}

func sectionWhitelisted(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range verifySectionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// affirmed reports whether any occurrence of the term (or a variant) in the
// evidence text lacks a negation phrase in the surrounding window.
func affirmed(evidence, term string) bool {
	variants, ok := termVariants[term]
	if !ok {
		variants = []string{term}
	}
	for _, v := range variants {
		offset := 0
		for {
			idx := strings.Index(evidence[offset:], v)
			if idx < 0 {
				break
			}
			at := offset + idx
			if !negatedAt(evidence, at, at+len(v)) {
				return true
			}
			offset = at + len(v)
		}
	}
	return false
}

// negatedAt scans the window extending negationWindow characters before and
// after the term occurrence, term text included.
func negatedAt(evidence string, at, end int) bool {
	start := at - negationWindow
	if start < 0 {
		start = 0
	}
	stop := end + negationWindow
	if stop > len(evidence) {
		stop = len(evidence)
	}
	window := evidence[start:stop]
	for _, neg := range negations {
		if strings.Contains(window, neg) {
			return true
		}
	}
	return false
}
