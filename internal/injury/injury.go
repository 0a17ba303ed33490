// Package injury detects and verifies injury labels on fall-related notes.
//
// Detection is LLM-backed against a closed lexicon; every detected term is
// then verified against the note's assessment sections with a negation
// check, so "no bruising noted" never yields a bruise. Notes already
// enriched in a previous run carry their labels forward unchanged.
package injury

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/carelinehq/notelink/internal/llm"
	"github.com/carelinehq/notelink/internal/note"
)

const (
	detectTimeout = 30 * time.Second
)

// The injury lexicon, split in two groups to keep the prompt readable.
// Detection output is validated against the union.
var (
	GroupOne = []string{
		"abrasion", "bleeding", "broken skin", "bruising", "bruise", "burn",
		"dislocation", "fracture", "frostbite", "hematoma", "hypoglycemia",
		"incision",
	}
	GroupTwo = []string{
		"laceration", "pain", "redness", "scratches", "skin tear", "sprain",
		"strain", "swelling", "unconscious", "contusion",
	}
)

var lexicon = buildLexicon()

func buildLexicon() map[string]bool {
	set := make(map[string]bool, len(GroupOne)+len(GroupTwo))
	for _, t := range GroupOne {
		set[t] = true
	}
	for _, t := range GroupTwo {
		set[t] = true
	}
	return set
}

const detectPromptTemplate = `You read a long-term-care fall incident note and list the injuries it documents.

Use ONLY terms from this list, comma separated:
%s

List an injury only when the note states the resident actually HAS it. If the note documents no injuries, answer exactly: No Injury`

const headInjurySystemPrompt = `You read a long-term-care fall incident note and decide whether the resident sustained a head injury or hit their head.

Answer only "yes" or "no".`

// Detector runs the injury passes against an LLM provider.
type Detector struct {
	provider llm.Provider
}

// NewDetector returns a Detector backed by the given provider.
func NewDetector(provider llm.Provider) *Detector {
	return &Detector{provider: provider}
}

// Detect returns the comma-separated detected injury labels for a note body,
// or "No Injury". The note is run through the classifier once per lexicon
// group and the responses are merged; out-of-lexicon terms are discarded and
// "bruising" normalizes to "bruise".
func (d *Detector) Detect(ctx context.Context, text string) (string, error) {
	unique := make(map[string]bool)
	for _, group := range [][]string{GroupOne, GroupTwo} {
		resp, err := d.detectGroup(ctx, text, group)
		if err != nil {
			return note.NoInjury, err
		}
		collectTerms(unique, resp)
	}
	return joinLabels(unique), nil
}

func (d *Detector) detectGroup(ctx context.Context, text string, group []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	resp, err := d.provider.Complete(ctx, text, llm.CompletionOpts{
		System:      fmt.Sprintf(detectPromptTemplate, strings.Join(group, ", ")),
		Temperature: 0.1,
		MaxTokens:   50,
	})
	if err != nil {
		return "", fmt.Errorf("injury detection: %w", err)
	}
	return resp, nil
}

// collectTerms validates a comma-separated response against the lexicon and
// adds the surviving terms to the set.
func collectTerms(unique map[string]bool, resp string) {
	for _, part := range strings.Split(strings.ToLower(resp), ",") {
		term := strings.TrimSpace(part)
		if term == "bruising" {
			term = "bruise"
		}
		if lexicon[term] {
			unique[term] = true
		}
	}
}

func joinLabels(unique map[string]bool) string {
	if len(unique) == 0 {
		return note.NoInjury
	}
	labels := make([]string, 0, len(unique))
	for term := range unique {
		labels = append(labels, capitalize(term))
	}
	sort.Strings(labels)
	return strings.Join(labels, ", ")
}

// HeadInjury reports whether the note documents a head injury.
func (d *Detector) HeadInjury(ctx context.Context, text string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	resp, err := d.provider.Complete(ctx, text, llm.CompletionOpts{
		System:      headInjurySystemPrompt,
		Temperature: 0.2,
		MaxTokens:   10,
	})
	if err != nil {
		return false, fmt.Errorf("head injury detection: %w", err)
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(resp)), "yes"), nil
}

// Result counts what an enrichment pass did.
type Result struct {
	Detected  int // notes run through detection
	Carried   int // notes with labels carried over from a previous run
	Errors    int // notes where a classifier call failed (label left as No Injury)
	HeadAdded int // notes where the head injury pass added a label
}

// Enrich populates Injuries on every fall-related note. Notes whose
// PrevInjuries carries labels from a previous run keep those labels without
// any classifier call. Detected labels are verified against the note text
// before being kept.
func (d *Detector) Enrich(ctx context.Context, notes []note.Note) (Result, error) {
	var res Result
	for i := range notes {
		n := &notes[i]
		if n.Type != note.TypeIncidentFalls && n.Type != note.TypePostFallNursing {
			continue
		}
		if n.PrevInjuries != "" && n.PrevInjuries != note.NoPreviousInjuries {
			n.Injuries = n.PrevInjuries
			res.Carried++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		detected, err := d.Detect(ctx, n.RawText)
		if err != nil {
			n.Injuries = note.NoInjury
			res.Errors++
			continue
		}
		res.Detected++
		verified := Verify(n.Type, n.RawText, detected)

		if head, err := d.HeadInjury(ctx, n.RawText); err != nil {
			res.Errors++
		} else if head {
			verified = appendLabel(verified, "Head Injury")
			res.HeadAdded++
		}
		n.Injuries = verified
	}
	return res, nil
}

func appendLabel(list, label string) string {
	if list == "" || list == note.NoInjury {
		return label
	}
	if strings.Contains(list, label) {
		return list
	}
	return list + ", " + label
}

// MarkPrevious sets PrevInjuries on every note that also appears, with the
// same resident and timestamp, in a previous run's note table. Unmatched
// notes get "No Previous Injuries".
func MarkPrevious(notes []note.Note, prev []note.Note) int {
	byKey := make(map[string]string, len(prev))
	for i := range prev {
		if prev[i].Injuries == "" || prev[i].Injuries == note.NoInjury {
			continue
		}
		byKey[carryKey(&prev[i])] = prev[i].Injuries
	}

	matched := 0
	for i := range notes {
		if labels, ok := byKey[carryKey(&notes[i])]; ok {
			notes[i].PrevInjuries = labels
			matched++
		} else {
			notes[i].PrevInjuries = note.NoPreviousInjuries
		}
	}
	return matched
}

func carryKey(n *note.Note) string {
	return n.EffectiveAt.Format(note.EffectiveLayout) + "|" + strings.ToLower(note.CleanName(n.Resident))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
