// Package correlate answers questions about the notes belonging to one
// incident: everything documented for the same resident after the previous
// primary note and before the anchor.
//
// The naive formulation re-scans backward from every primary note, which is
// quadratic over dense documents. A Sequence instead builds, in one forward
// pass, the index of the nearest earlier primary note per position; each
// query then walks only its own bounded window. Termination semantics are
// identical: the window excludes the previous primary note itself, skips
// other residents' notes, and stops cleanly at the start of the sequence.
package correlate

import (
	"sort"
	"strings"

	"github.com/carelinehq/notelink/internal/note"
)

// Keyword predicates tested against note text, case-insensitive.
var (
	// hirAnchorKeywords flag head-injury-routine status in a primary note.
	hirAnchorKeywords = []string{"hir initiated", "hir continued", "head injury routine"}

	// hospitalKeywords flag a transfer to hospital.
	hospitalKeywords = []string{"hospital", "ambulance", "911"}
)

// Sequence is an ordered per-document note sequence indexed for correlation
// against one primary note type.
type Sequence struct {
	Notes []note.Note

	primaryType  string
	followUpType string

	// prevPrimary[i] is the index of the nearest j < i with the same
	// resident as notes[i] and the primary type, or -1. The correlation
	// window of an anchor at i is (prevPrimary[i], i), same-resident notes
	// only.
	prevPrimary []int
}

// NewSequence indexes notes for the given format's primary and follow-up
// types. Notes must already be in document order (ascending time, ties by
// extraction order).
func NewSequence(notes []note.Note, format *note.Format) *Sequence {
	s := &Sequence{
		Notes:        notes,
		primaryType:  format.PrimaryType,
		followUpType: format.FollowUpType,
		prevPrimary:  make([]int, len(notes)),
	}

	last := make(map[string]int) // resident key -> latest primary index seen
	for i := range notes {
		key := residentKey(notes[i].Resident)
		if idx, ok := last[key]; ok {
			s.prevPrimary[i] = idx
		} else {
			s.prevPrimary[i] = -1
		}
		if notes[i].Type == s.primaryType {
			last[key] = i
		}
	}
	return s
}

func residentKey(name string) string {
	return strings.ToLower(note.CleanName(name))
}

// window calls fn for every same-resident note strictly between the previous
// primary note and the anchor, in backward order. fn returning false stops
// the walk.
func (s *Sequence) window(anchor int, fn func(n *note.Note) bool) {
	key := residentKey(s.Notes[anchor].Resident)
	stop := s.prevPrimary[anchor]
	for i := anchor - 1; i > stop; i-- {
		if residentKey(s.Notes[i].Resident) != key {
			continue
		}
		if !fn(&s.Notes[i]) {
			return
		}
	}
}

// CountFollowUps counts follow-up notes correlated to the anchor.
func (s *Sequence) CountFollowUps(anchor int) int {
	count := 0
	s.window(anchor, func(n *note.Note) bool {
		if n.Type == s.followUpType {
			count++
		}
		return true
	})
	return count
}

// HIRStatus reports whether a head-injury routine was initiated for the
// anchor incident: explicit phrasing in the anchor itself, or any mention of
// "hir" in a correlated nursing follow-up.
func (s *Sequence) HIRStatus(anchor int) bool {
	anchorText := strings.ToLower(s.Notes[anchor].RawText)
	for _, kw := range hirAnchorKeywords {
		if strings.Contains(anchorText, kw) {
			return true
		}
	}

	found := false
	s.window(anchor, func(n *note.Note) bool {
		if n.Type == s.followUpType && strings.Contains(strings.ToLower(n.RawText), "hir") {
			found = true
			return false
		}
		return true
	})
	return found
}

// HospitalTransfer reports whether the anchor incident led to a hospital
// transfer, checking the anchor and its correlated follow-ups.
func (s *Sequence) HospitalTransfer(anchor int) bool {
	if containsAny(s.Notes[anchor].RawText, hospitalKeywords) {
		return true
	}

	found := false
	s.window(anchor, func(n *note.Note) bool {
		if n.Type == s.followUpType && containsAny(n.RawText, hospitalKeywords) {
			found = true
			return false
		}
		return true
	})
	return found
}

// HasAssessment reports whether a note of the given type (e.g. an RNAO post
// fall assessment) was recorded for the anchor incident.
func (s *Sequence) HasAssessment(anchor int, assessmentType string) bool {
	found := false
	s.window(anchor, func(n *note.Note) bool {
		if n.Type == assessmentType {
			found = true
			return false
		}
		return true
	})
	return found
}

// Injuries unions the injury labels of the anchor and its correlated
// follow-ups: lowercased, de-duplicated, sorted, first letter capitalized on
// output. Returns "No Injury" for an empty union.
func (s *Sequence) Injuries(anchor int) string {
	unique := make(map[string]struct{})
	addInjuries(unique, s.Notes[anchor].Injuries)

	s.window(anchor, func(n *note.Note) bool {
		if n.Type == s.followUpType {
			addInjuries(unique, n.Injuries)
		}
		return true
	})

	if len(unique) == 0 {
		return note.NoInjury
	}

	labels := make([]string, 0, len(unique))
	for label := range unique {
		labels = append(labels, capitalize(label))
	}
	sort.Strings(labels)
	return strings.Join(labels, ", ")
}

// POASentences collects, from correlated nursing follow-ups, every sentence
// mentioning "poa", most recent first. The caller decides contact status
// (keyword shortcut or classifier).
func (s *Sequence) POASentences(anchor int) []string {
	var sentences []string
	s.window(anchor, func(n *note.Note) bool {
		if n.Type != s.followUpType {
			return true
		}
		for _, sentence := range strings.Split(strings.ToLower(n.RawText), ".") {
			if strings.Contains(sentence, "poa") {
				sentences = append(sentences, strings.TrimSpace(sentence))
			}
		}
		return true
	})
	return sentences
}

func addInjuries(set map[string]struct{}, injuries string) {
	if injuries == "" || injuries == note.NoInjury {
		return
	}
	for _, label := range strings.Split(strings.ToLower(injuries), ",") {
		label = strings.TrimSpace(label)
		if label != "" {
			set[label] = struct{}{}
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
