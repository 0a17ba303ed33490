// Package segment splits flat per-document page text into discrete typed
// notes. Documents are paginated exports: a note can span pages, page
// headers repeat mid-note, and non-note text appears between notes, so
// regions that don't parse are skipped, never fatal.
package segment

import (
	"regexp"
	"strings"
	"time"

	"github.com/carelinehq/notelink/internal/note"
)

// Delimiter starts every candidate note region.
const Delimiter = "Effective Date:"

var (
	effectiveDateRE = regexp.MustCompile(`Effective Date:\s*(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2})`)
	residentNameRE  = regexp.MustCompile(`Resident Name\s*:\s*([^0-9]+?)\d`)
	trailingParenRE = regexp.MustCompile(`\s*\(+\s*$`)
	whitespaceRunRE = regexp.MustCompile(`\s+`)

	// boilerplateLineRE matches page header/footer lines that leak into note
	// bodies at page breaks.
	boilerplateLineRE = regexp.MustCompile(`^(Facility #|Date:|Time:|Primary Physician:|User:|Progress Notes|Admission|Date of Birth|Gender|Allergies|Diagnoses|Location|Medical Record #|Physician|Pharmacy|Page \d+ of \d+|Author:|Signature:)`)
)

// Segmenter splits page text into notes for a closed type vocabulary.
type Segmenter struct {
	// Types is the closed vocabulary of note type labels recognized near the
	// start of a region. A region with no recognizable type is dropped.
	Types []string

	typeRE *regexp.Regexp
}

// Result reports what a segmentation pass did.
type Result struct {
	Regions   int // candidate regions found
	Notes     int // notes emitted
	NoType    int // regions with no recognizable type label
	Ambiguous int // regions rejected for multi-type type lines
	NoDate    int // regions with no parseable timestamp
}

// DefaultTypes is the full vocabulary across formats.
var DefaultTypes = []string{
	note.TypeIncidentFalls,
	note.TypePostFallNursing,
	note.TypeBehaviourIncident,
	note.TypeBehaviourFollowUp,
	note.TypeFamilyInvolvement,
	note.TypePhysicianNote,
	note.TypeRnaoAssessment,
	note.TypeBehaviourNote,
}

// New returns a Segmenter for the given type vocabulary (DefaultTypes when
// empty).
func New(types []string) *Segmenter {
	if len(types) == 0 {
		types = DefaultTypes
	}
	return &Segmenter{Types: types}
}

// typePattern builds the alternation regexp for the vocabulary.
func (s *Segmenter) typePattern() *regexp.Regexp {
	if s.typeRE == nil {
		quoted := make([]string, len(s.Types))
		for i, t := range s.Types {
			quoted[i] = regexp.QuoteMeta(t)
		}
		s.typeRE = regexp.MustCompile(`Type:\s*(` + strings.Join(quoted, "|") + `)`)
	}
	return s.typeRE
}

// Segment splits the pages of one document into an ordered note sequence.
// Extraction order is preserved; page index is recorded for tie-breaking.
func (s *Segmenter) Segment(pages []string) ([]note.Note, Result) {
	var res Result

	all := strings.Join(pages, "\n\n")
	positions := delimiterPositions(all)
	res.Regions = len(positions)

	var notes []note.Note
	for i, pos := range positions {
		pageIdx := pageAt(pages, pos)
		if pageIdx < 0 {
			continue
		}

		end := len(all)
		if i < len(positions)-1 {
			end = positions[i+1]
		}
		section := strings.TrimSpace(all[pos:end])

		when, ok := parseEffectiveDate(section)
		if !ok {
			res.NoDate++
			continue
		}

		typeMatch := s.typePattern().FindStringSubmatchIndex(section)
		if typeMatch == nil {
			res.NoType++
			continue
		}

		// A type line listing multiple comma-separated labels is a pagination
		// split artifact; the region is ambiguous and dropped.
		typeLine := lineAt(section, typeMatch[0])
		if strings.Contains(typeLine, ",") {
			res.Ambiguous++
			continue
		}
		noteType := section[typeMatch[2]:typeMatch[3]]

		resident := residentFromPages(pages, pageIdx)

		body := cleanBody(section[typeMatch[1]:])

		notes = append(notes, note.Note{
			Resident:    note.CleanName(resident),
			EffectiveAt: when,
			Type:        noteType,
			RawText:     body,
			Injuries:    note.NoInjury,
			Page:        pageIdx,
		})
	}

	res.Notes = len(notes)
	return notes, res
}

// delimiterPositions returns every offset of the delimiter token.
func delimiterPositions(text string) []int {
	var positions []int
	for from := 0; ; {
		idx := strings.Index(text[from:], Delimiter)
		if idx < 0 {
			break
		}
		positions = append(positions, from+idx)
		from += idx + len(Delimiter)
	}
	return positions
}

// pageAt maps a character offset in the joined text back to its page index.
// Pages are joined with "\n\n", hence the +2.
func pageAt(pages []string, offset int) int {
	current := 0
	for i, page := range pages {
		length := len(page) + 2
		if offset >= current && offset < current+length {
			return i
		}
		current += length
	}
	return -1
}

// parseEffectiveDate reads the region's timestamp. Minute precision.
func parseEffectiveDate(section string) (time.Time, bool) {
	m := effectiveDateRE.FindStringSubmatch(section)
	if m == nil {
		return time.Time{}, false
	}
	stamp := strings.Join(strings.Fields(m[1]), " ")
	when, err := time.Parse(note.EffectiveLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return when, true
}

// residentFromPages reads the resident header from the note's page, falling
// back to the following one or two pages — multi-page notes repeat the header
// but a page break can land before it.
func residentFromPages(pages []string, pageIdx int) string {
	for i := pageIdx; i < len(pages) && i <= pageIdx+2; i++ {
		if name := residentFromHeader(pages[i]); name != "" {
			return name
		}
	}
	return "Unknown"
}

// residentFromHeader extracts the resident name from one page's header block.
func residentFromHeader(pageText string) string {
	m := residentNameRE.FindStringSubmatch(pageText)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	name = strings.TrimSpace(trailingParenRE.ReplaceAllString(name, ""))
	return name
}

// lineAt returns the line of text containing offset.
func lineAt(text string, offset int) string {
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text) - offset
	}
	return strings.TrimSpace(text[offset : offset+end])
}

// cleanBody strips page header/footer boilerplate that leaks in at page
// breaks and collapses whitespace runs to single spaces.
func cleanBody(body string) string {
	var parts []string
	for _, part := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var kept []string
		for _, line := range strings.Split(part, "\n") {
			if boilerplateLineRE.MatchString(strings.TrimSpace(line)) {
				continue
			}
			kept = append(kept, line)
		}
		cleaned := strings.TrimSpace(strings.Join(kept, " "))
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return strings.TrimSpace(whitespaceRunRE.ReplaceAllString(strings.Join(parts, " "), " "))
}
