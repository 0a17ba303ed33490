package correlate

import (
	"sort"
	"strings"

	"github.com/carelinehq/notelink/internal/note"
)

// DayCounts is the authoritative incident count per resident per calendar
// day, keyed by DayKey. It comes from the independently captured incident
// table and is read-only: the deduplicator trusts it over the note stream.
type DayCounts map[string]int

// DayKey builds the resident/day group key. Resident identity is
// case-insensitive; the day is the calendar date of the note timestamp.
func DayKey(resident, day string) string {
	return strings.ToLower(note.CleanName(resident)) + "|" + day
}

// DedupeResult reports what a deduplication pass removed.
type DedupeResult struct {
	Groups  int // resident/day groups with more than one primary note
	Removed int // primary notes discarded as over-reported
}

// Dedupe reconciles primary-note counts against the authoritative table and
// returns the surviving notes in their original order.
//
// For each resident/day group of primary notes larger than one: if the
// authoritative count is zero the earliest note alone survives (with no
// corroborating incident, at most one note is presumed legitimate); if the
// group exceeds the count, the earliest `count` notes survive. Groups within
// budget, non-primary notes, and other residents/days are untouched.
//
// A nil counts map means the authoritative table was missing or unparsable;
// reconciliation is skipped entirely rather than guessed at.
func Dedupe(notes []note.Note, primaryType string, counts DayCounts) ([]note.Note, DedupeResult) {
	var res DedupeResult
	if counts == nil {
		return notes, res
	}

	// Group primary note indices by resident/day.
	groups := make(map[string][]int)
	for i := range notes {
		if notes[i].Type != primaryType {
			continue
		}
		key := DayKey(notes[i].Resident, notes[i].EffectiveAt.Format("2006-01-02"))
		groups[key] = append(groups[key], i)
	}

	drop := make(map[int]bool)
	for key, idxs := range groups {
		if len(idxs) <= 1 {
			continue
		}

		keep := counts[key]
		if keep == 0 {
			keep = 1
		}
		if len(idxs) <= keep {
			continue
		}
		res.Groups++

		// Earliest-first retained; ties keep extraction order (the sort is
		// stable over the already-ordered index list).
		sorted := append([]int(nil), idxs...)
		sort.SliceStable(sorted, func(a, b int) bool {
			return notes[sorted[a]].EffectiveAt.Before(notes[sorted[b]].EffectiveAt)
		})
		for _, idx := range sorted[keep:] {
			drop[idx] = true
			res.Removed++
		}
	}

	if len(drop) == 0 {
		return notes, res
	}

	kept := make([]note.Note, 0, len(notes)-len(drop))
	for i := range notes {
		if !drop[i] {
			kept = append(kept, notes[i])
		}
	}
	return kept, res
}
