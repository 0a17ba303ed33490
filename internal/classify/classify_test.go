package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/carelinehq/notelink/internal/llm"
)

// stubProvider returns canned responses in order, or a fixed error.
type stubProvider struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("stub exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func TestWhoAffectedValid(t *testing.T) {
	stub := &stubProvider{responses: []string{"resident initiated, Resident Received"}}
	c := New(stub)

	got, err := c.WhoAffected(context.Background(), "resident struck co-resident")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Resident Initiated, Resident Received" {
		t.Errorf("got %q, want canonicalized labels", got)
	}
}

func TestWhoAffectedOutOfVocabulary(t *testing.T) {
	stub := &stubProvider{responses: []string{"Resident Initiated, Visitor Received"}}
	c := New(stub)

	got, err := c.WhoAffected(context.Background(), "note text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != WhoAffectedFallback {
		t.Errorf("got %q, want fallback %q", got, WhoAffectedFallback)
	}
}

func TestWhoAffectedProviderError(t *testing.T) {
	stub := &stubProvider{err: errors.New("boom")}
	c := New(stub)

	got, err := c.WhoAffected(context.Background(), "note text")
	if err == nil {
		t.Fatal("expected error")
	}
	if got != WhoAffectedFallback {
		t.Errorf("error path returned %q, want fallback", got)
	}
}

func TestSummary(t *testing.T) {
	stub := &stubProvider{responses: []string{" Resident wandered into another room. "}}
	c := New(stub)

	got, err := c.Summary(context.Background(), "long note body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Resident wandered into another room." {
		t.Errorf("got %q", got)
	}
}

func TestIntent(t *testing.T) {
	tests := []struct {
		resp string
		want bool
	}{
		{"yes", true},
		{"Yes.", true},
		{"no", false},
		{"unclear", false},
	}
	for _, tt := range tests {
		stub := &stubProvider{responses: []string{tt.resp}}
		c := New(stub)
		got, err := c.Intent(context.Background(), "note")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("Intent(%q) = %v, want %v", tt.resp, got, tt.want)
		}
	}
}

func TestPOANotifiedKeywordShortcut(t *testing.T) {
	stub := &stubProvider{}
	c := New(stub)

	// "yes" and "notified" both short-circuit without a provider call.
	for _, sentence := range []string{"poa notified of the fall", "POA contacted? Yes, by phone"} {
		got, err := c.POANotified(context.Background(), []string{sentence})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "Yes" {
			t.Errorf("POANotified(%q) = %q, want Yes", sentence, got)
		}
	}
	if stub.calls != 0 {
		t.Errorf("keyword shortcut still called the provider %d times", stub.calls)
	}
}

func TestPOANotifiedClassifier(t *testing.T) {
	stub := &stubProvider{responses: []string{"no"}}
	c := New(stub)

	// "aware" is not a shortcut keyword; the sentence goes to the provider.
	got, err := c.POANotified(context.Background(), []string{"family made aware, message left for poa"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "No" {
		t.Errorf("got %q, want No", got)
	}
	if stub.calls != 1 {
		t.Errorf("provider called %d times, want 1", stub.calls)
	}
}

func TestPOANotifiedNoSentences(t *testing.T) {
	stub := &stubProvider{}
	c := New(stub)

	got, err := c.POANotified(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "No" || stub.calls != 0 {
		t.Errorf("got %q with %d calls, want No with no calls", got, stub.calls)
	}
}
