package llm

import (
	"context"
	"sync"
	"time"
)

// DefaultPaceInterval is the minimum gap between classifier calls. The
// upstream APIs rate-limit bursty clients; a batch run makes hundreds of
// small completions in sequence.
const DefaultPaceInterval = 500 * time.Millisecond

// Paced wraps a Provider and enforces a minimum interval between calls.
// Safe for concurrent use.
type Paced struct {
	inner    Provider
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewPaced wraps p with the given minimum inter-call interval. A zero or
// negative interval uses DefaultPaceInterval.
func NewPaced(p Provider, interval time.Duration) *Paced {
	if interval <= 0 {
		interval = DefaultPaceInterval
	}
	return &Paced{inner: p, interval: interval}
}

func (p *Paced) Name() string { return p.inner.Name() }

func (p *Paced) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	p.mu.Lock()
	wait := p.interval - time.Since(p.last)
	p.last = time.Now().Add(wait)
	p.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.inner.Complete(ctx, prompt, opts)
}
