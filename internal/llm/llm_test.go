package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseModelFlag(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantProv string
		wantMod  string
		wantErr  bool
	}{
		{"empty defaults to openai", "", "openai", "gpt-4o-mini", false},
		{"openai mini", "openai/gpt-4o-mini", "openai", "gpt-4o-mini", false},
		{"openai full", "openai/gpt-4o", "openai", "gpt-4o", false},
		{"openrouter model", "openrouter/openai/gpt-4o-mini", "openrouter", "openai/gpt-4o-mini", false},
		{"unknown provider", "anthropic/claude-4", "", "", true},
		{"no slash", "gpt-4o-mini", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseModelFlag(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Provider != tt.wantProv {
				t.Errorf("provider: got %q, want %q", cfg.Provider, tt.wantProv)
			}
			if cfg.Model != tt.wantMod {
				t.Errorf("model: got %q, want %q", cfg.Model, tt.wantMod)
			}
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	// Unknown provider
	_, err := NewProvider(Config{Provider: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}

	// OpenAI without API key (clear env)
	t.Setenv("OPENAI_API_KEY", "")
	_, err = NewProvider(Config{Provider: "openai"})
	if err == nil {
		t.Fatal("expected error for openai without API key")
	}

	// OpenRouter without API key
	t.Setenv("OPENROUTER_API_KEY", "")
	_, err = NewProvider(Config{Provider: "openrouter"})
	if err == nil {
		t.Fatal("expected error for openrouter without API key")
	}
}

func TestChatProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("bad auth header: %q", r.Header.Get("Authorization"))
		}

		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if req.MaxTokens != 60 {
			t.Errorf("unexpected max_tokens: %d", req.MaxTokens)
		}
		if req.Temperature != 0.15 {
			t.Errorf("unexpected temperature: %v", req.Temperature)
		}

		resp := chatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
				FinishReason string `json:"finish_reason"`
			}{
				{
					Message: struct {
						Content string `json:"content"`
					}{Content: "  Resident fell in the hallway.  "},
					FinishReason: "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := &chatProvider{
		provider: "openai",
		apiKey:   "test-key",
		model:    "gpt-4o-mini",
		baseURL:  server.URL,
	}

	result, err := p.Complete(context.Background(), "summarize", CompletionOpts{
		MaxTokens:   60,
		Temperature: 0.15,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Resident fell in the hallway." {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestChatProviderName(t *testing.T) {
	p := &chatProvider{provider: "openrouter", model: "openai/gpt-4o-mini"}
	if p.Name() != "openrouter/openai/gpt-4o-mini" {
		t.Errorf("unexpected name: %q", p.Name())
	}
}

func TestChatProviderSystemPrompt(t *testing.T) {
	var gotMessages int
	var gotSystemRole bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotMessages = len(req.Messages)
		for _, m := range req.Messages {
			if m.Role == "system" {
				gotSystemRole = true
			}
		}
		resp := chatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
				FinishReason string `json:"finish_reason"`
			}{
				{Message: struct {
					Content string `json:"content"`
				}{Content: "ok"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := &chatProvider{provider: "openai", apiKey: "test", model: "test", baseURL: server.URL}
	p.Complete(context.Background(), "hello", CompletionOpts{System: "be helpful"})
	if gotMessages != 2 {
		t.Errorf("expected 2 messages (system+user), got %d", gotMessages)
	}
	if !gotSystemRole {
		t.Error("system message not sent")
	}
}

func TestChatProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	p := &chatProvider{provider: "openai", apiKey: "test", model: "test", baseURL: server.URL}
	_, err := p.Complete(context.Background(), "test", CompletionOpts{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestContextCancellation(t *testing.T) {
	serverDone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-serverDone:
		}
	}))
	defer func() {
		close(serverDone)
		server.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := &chatProvider{provider: "openai", apiKey: "test", model: "test", baseURL: server.URL}
	_, err := p.Complete(ctx, "test", CompletionOpts{})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}

type countingProvider struct {
	calls []time.Time
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	c.calls = append(c.calls, time.Now())
	return "ok", nil
}

func TestPacedSpacesCalls(t *testing.T) {
	inner := &countingProvider{}
	p := NewPaced(inner, 30*time.Millisecond)

	for i := 0; i < 3; i++ {
		if _, err := p.Complete(context.Background(), "x", CompletionOpts{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(inner.calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(inner.calls))
	}
	for i := 1; i < len(inner.calls); i++ {
		gap := inner.calls[i].Sub(inner.calls[i-1])
		if gap < 25*time.Millisecond {
			t.Errorf("calls %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestPacedCanceledContext(t *testing.T) {
	inner := &countingProvider{}
	p := NewPaced(inner, time.Minute)

	// First call goes straight through.
	if _, err := p.Complete(context.Background(), "x", CompletionOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Complete(ctx, "x", CompletionOpts{}); err == nil {
		t.Fatal("expected context error while waiting for pace interval")
	}
	if len(inner.calls) != 1 {
		t.Errorf("canceled call reached the provider")
	}
}
