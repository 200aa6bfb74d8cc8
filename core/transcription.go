package pipeline

import (
	"fmt"
	"log"

	"github.com/loquilabs/loqui/core/protocol"
	"github.com/loquilabs/loqui/core/speechtotext"
)

// startTranscription opens the speech-to-text stream with this session's
// callbacks wired in.
func (s *Session) startTranscription() error {
	if s.transcriber == nil {
		return nil
	}

	return s.transcriber.Transcribe(s.baseCtx,
		speechtotext.WithSegmentCallback(s.handleSegment),
		speechtotext.WithSpeechStartedCallback(func() { s.setSpeaking(true) }),
		speechtotext.WithSpeechEndedCallback(func() { s.setSpeaking(false) }),
	)
}

// restartTranscription tears the stream down and opens it fresh so audio
// consumed by the previous prompt is never replayed.
func (s *Session) restartTranscription(consumedUntil float64) error {
	s.mu.Lock()
	s.stitch.AdvanceCutoff(consumedUntil)
	s.stitch.Reset()
	s.mu.Unlock()

	if s.transcriber == nil {
		return nil
	}
	if err := s.transcriber.Close(); err != nil {
		return fmt.Errorf("failed to close transcriber: %w", err)
	}
	if err := s.startTranscription(); err != nil {
		return fmt.Errorf("failed to reopen transcriber: %w", err)
	}
	return nil
}

// handleSegment folds one engine update into the stitched transcript and
// refreshes the pending prompt with the result. Utterances finalized while
// the prompt was still pending stay part of it.
func (s *Session) handleSegment(segment speechtotext.Segment) {
	s.mu.Lock()
	text, ok := s.stitch.Reconcile(segment)
	full := joinSpeech(s.promptPrefix, text)
	if segment.Final {
		// Utterance boundary: the per-utterance stitching memory is done.
		if ok && text != "" {
			s.promptPrefix = full
		}
		s.stitch.Reset()
	}
	s.mu.Unlock()
	if !ok || text == "" {
		return
	}

	if err := s.send(protocol.NewUserSpeechTranscription(full)); err != nil {
		log.Printf("[session %s] failed to send transcription: %v", s.ID, err)
	}

	s.setPendingPrompt(full, false, segment.End)
}

func joinSpeech(prefix, text string) string {
	if prefix == "" {
		return text
	}
	if text == "" {
		return prefix
	}
	return prefix + " " + text
}

// SendAudio forwards one captured audio buffer to the transcriber.
func (s *Session) SendAudio(audio []byte) {
	if s.transcriber == nil {
		return
	}
	if err := s.transcriber.SendAudio(audio); err != nil {
		log.Printf("[session %s] failed to send audio: %v", s.ID, err)
	}
}
