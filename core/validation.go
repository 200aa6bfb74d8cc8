package pipeline

import (
	"context"
	"log"
	"time"
)

// shouldRespond gates spoken prompts. Within the inactivity grace window
// the prompt is treated as a continuation of an active exchange and passes
// unconditionally; outside it the configured classifier decides.
func (s *Session) shouldRespond(ctx context.Context, prompt string) bool {
	s.mu.Lock()
	window := time.Duration(s.cfg.Agent.InactivityWindowMs) * time.Millisecond
	lastInteraction := s.lastInteraction
	s.mu.Unlock()

	if window > 0 && time.Since(lastInteraction) <= window {
		return true
	}

	if s.validator == nil {
		return true
	}

	respond, err := s.validator(ctx, prompt, s.history())
	if err != nil {
		// Fail open: a broken classifier should not mute the assistant.
		log.Printf("[session %s] validation classifier failed, responding anyway: %v", s.ID, err)
		return true
	}
	return respond
}
