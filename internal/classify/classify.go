// Package classify — LLM-backed labeling of incident note text.
//
// Each classifier wraps one narrow question (who was affected, one-line
// summary, intent, POA contact) with its own prompt, sampling settings, and
// validated output vocabulary. Invalid or failed responses fall back to a
// conservative default so a batch run never stalls on a single note.
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carelinehq/notelink/internal/llm"
)

const (
	// classifyTimeout is the max time for a single classification call.
	classifyTimeout = 30 * time.Second

	// WhoAffectedFallback is used when the model returns labels outside the
	// vocabulary or the call fails.
	WhoAffectedFallback = "Resident Initiated"
)

// WhoAffectedTerms is the closed label vocabulary for incident participation.
var WhoAffectedTerms = []string{
	"Resident Initiated",
	"Resident Received",
	"Staff Received",
	"Staff Initiated",
}

const whoAffectedSystemPrompt = `You label who was involved in a long-term-care behavioural incident.

Read the incident description and answer with one or more of EXACTLY these labels, comma separated:
Resident Initiated, Resident Received, Staff Received, Staff Initiated

Rules:
- "Resident Initiated" when a resident started the behaviour.
- "Resident Received" when another resident was on the receiving end.
- "Staff Received" / "Staff Initiated" likewise for staff.
- Output ONLY the labels, nothing else.`

const summarySystemPrompt = `You summarize long-term-care behavioural incident notes for a review dashboard.

Write ONE short sentence describing what happened. Plain clinical language, no preamble, no resident names.`

const intentSystemPrompt = `You review long-term-care incident notes describing physical aggression between residents.

Answer "yes" if the note describes an intentional act of aggression with enough force or harm to warrant a critical incident report. Answer "no" otherwise. Output only yes or no.`

const poaSystemPrompt = `You review sentences from nursing notes and decide whether the resident's Power of Attorney (or family contact) was notified of the incident.

Answer only "yes" or "no".`

// Classifier runs the per-note labeling passes against an LLM provider.
type Classifier struct {
	provider llm.Provider
}

// New returns a Classifier backed by the given provider.
func New(provider llm.Provider) *Classifier {
	return &Classifier{provider: provider}
}

// WhoAffected labels incident participation. The response is validated
// against WhoAffectedTerms; any out-of-vocabulary label discards the whole
// response in favor of WhoAffectedFallback.
func (c *Classifier) WhoAffected(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := c.provider.Complete(ctx, text, llm.CompletionOpts{
		System:      whoAffectedSystemPrompt,
		Temperature: 0.0,
		MaxTokens:   20,
	})
	if err != nil {
		return WhoAffectedFallback, fmt.Errorf("who-affected classification: %w", err)
	}

	labels, ok := validateWhoAffected(resp)
	if !ok {
		return WhoAffectedFallback, nil
	}
	return labels, nil
}

// validateWhoAffected canonicalizes a comma-separated label response.
// Returns false when any term is outside the vocabulary or the response is
// empty.
func validateWhoAffected(resp string) (string, bool) {
	parts := strings.Split(resp, ",")
	canonical := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		matched := ""
		for _, term := range WhoAffectedTerms {
			if strings.EqualFold(part, term) {
				matched = term
				break
			}
		}
		if matched == "" {
			return "", false
		}
		canonical = append(canonical, matched)
	}
	if len(canonical) == 0 {
		return "", false
	}
	return strings.Join(canonical, ", "), true
}

// Summary produces a one-sentence summary of the incident description.
func (c *Classifier) Summary(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := c.provider.Complete(ctx, text, llm.CompletionOpts{
		System:      summarySystemPrompt,
		Temperature: 0.15,
		MaxTokens:   60,
	})
	if err != nil {
		return "", fmt.Errorf("summary classification: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// Intent reports whether the note describes intentional aggression severe
// enough for a critical incident. Anything other than a clear "yes" counts
// as no.
func (c *Classifier) Intent(ctx context.Context, text string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := c.provider.Complete(ctx, text, llm.CompletionOpts{
		System:      intentSystemPrompt,
		Temperature: 0.0,
		MaxTokens:   5,
	})
	if err != nil {
		return false, fmt.Errorf("intent classification: %w", err)
	}
	return isYes(resp), nil
}

// POANotified decides whether the POA was contacted, given the POA-mentioning
// sentences collected from the incident's nursing follow-ups. Sentences
// containing an explicit notification keyword short-circuit without an LLM
// call.
func (c *Classifier) POANotified(ctx context.Context, sentences []string) (string, error) {
	if len(sentences) == 0 {
		return "No", nil
	}
	for _, s := range sentences {
		lower := strings.ToLower(s)
		if strings.Contains(lower, "yes") || strings.Contains(lower, "notified") {
			return "Yes", nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := c.provider.Complete(ctx, strings.Join(sentences, ". "), llm.CompletionOpts{
		System:      poaSystemPrompt,
		Temperature: 0.3,
		MaxTokens:   10,
	})
	if err != nil {
		return "No", fmt.Errorf("poa classification: %w", err)
	}
	if isYes(resp) {
		return "Yes", nil
	}
	return "No", nil
}

func isYes(resp string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(resp)), "yes")
}
