package pipeline

import (
	"context"
	"sync"
)

// flowGate implements client-driven flow control over outbound speech.
// Pause holds the gate, Resume releases it; every delivery acquires it
// briefly and waits while it is held.
type flowGate struct {
	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

func newFlowGate() *flowGate {
	resumed := make(chan struct{})
	close(resumed)
	return &flowGate{resumed: resumed}
}

func (g *flowGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resumed = make(chan struct{})
}

func (g *flowGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resumed)
}

// Acquire blocks while the gate is paused. It returns the context error if
// the caller is cancelled before the gate opens.
func (g *flowGate) Acquire(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.paused {
			g.mu.Unlock()
			return nil
		}
		resumed := g.resumed
		g.mu.Unlock()

		select {
		case <-resumed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
