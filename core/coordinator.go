package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/loquilabs/loqui/core/protocol"
)

// coordinatorTick is how often the pending prompt is checked against the
// settle delay.
const coordinatorTick = 100 * time.Millisecond

// startCoordinator runs the prompt coordinator: a tick loop that promotes a
// settled pending prompt into a generation run.
func (s *Session) startCoordinator() {
	ctx, cancel := context.WithCancel(s.baseCtx)
	handle := &stageHandle{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.coordinator = handle
	s.mu.Unlock()

	go func() {
		defer close(handle.done)
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Printf("[session %s] coordinator panicked: %v", s.ID, recovered)
			}
		}()

		ticker := time.NewTicker(coordinatorTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.maybeTrigger(ctx)
			}
		}
	}()
}

// maybeTrigger promotes the pending prompt once it has settled and the user
// has stopped producing audio.
func (s *Session) maybeTrigger(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	speaking := s.speaking
	settleDelay := time.Duration(s.cfg.Agent.SettleDelayMs) * time.Millisecond
	s.mu.Unlock()

	if pending == nil || speaking {
		return
	}
	if time.Since(pending.setAt) < settleDelay {
		return
	}

	s.triggerPending(ctx)
}

// triggerPending consumes the pending prompt: restart transcription so no
// consumed audio replays, run the validation gate for spoken prompts, then
// hand off to generation.
func (s *Session) triggerPending(ctx context.Context) {
	pending := s.takePendingPrompt()
	if pending == nil {
		return
	}

	ctx, span := tracer.Start(ctx, "trigger prompt")
	defer span.End()

	if !pending.manual || pending.end > 0 {
		if err := s.restartTranscription(pending.end); err != nil {
			log.Printf("[session %s] failed to restart transcription: %v", s.ID, err)
		}
	}

	if !pending.manual {
		if !s.shouldRespond(ctx, pending.text) {
			span.AddEvent("prompt discarded by validation gate")
			s.discardPrompt(pending.text)
			return
		}
	}

	s.startGeneration(pending.text)
}

// TriggerManualPrompt submits a typed prompt. It bypasses the settle timer
// and the validation gate but still honors the single-active-generation
// invariant.
func (s *Session) TriggerManualPrompt(text string) {
	if err := s.send(protocol.NewManualPrompt(text)); err != nil {
		log.Printf("[session %s] failed to echo manual prompt: %v", s.ID, err)
	}

	// A half-finished spoken prompt folds into the typed one instead of
	// being dropped.
	s.mu.Lock()
	end := 0.0
	if s.pending != nil {
		text = joinSpeech(s.pending.text, text)
		end = s.pending.end
	}
	s.pending = &pendingPrompt{text: text, setAt: time.Now(), manual: true, end: end}
	s.mu.Unlock()

	s.triggerPending(s.baseCtx)
}

// discardPrompt applies the configured validation-failure policy.
func (s *Session) discardPrompt(text string) {
	if s.Config().Agent.ValidationPolicy != "notify" {
		return
	}
	if err := s.send(protocol.NewPromptDiscarded(text)); err != nil {
		log.Printf("[session %s] failed to send prompt_discarded: %v", s.ID, err)
	}
}
