package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/loquilabs/loqui/core/config"
	"github.com/loquilabs/loqui/core/protocol"
	"github.com/loquilabs/loqui/core/texttospeech"
)

// synthesize consumes the sentence queue until its sentinel, requesting
// audio per sentence and delivering it under the flow gate tagged with a
// monotonically increasing order index. One sentence failing is logged and
// skipped; spoken output is best-effort.
func (s *Session) synthesize(ctx context.Context, queue *sentenceQueue) error {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	cfg := s.Config()
	streamer, canStream := s.synthesizer.(StreamingSynthesizer)
	started := false
	order := 0
	for sentence := range queue.Sentences(ctx) {
		if strings.TrimSpace(sentence) == "" {
			continue
		}

		if !started {
			if err := s.send(protocol.NewAssistantSpeechStart()); err != nil {
				log.Printf("[session %s] failed to send speech start: %v", s.ID, err)
			}
			started = true
		}

		// File delivery needs the whole unit; inline delivery can forward
		// chunks as they render.
		if canStream && s.audioDir == "" {
			next, err := s.streamSpeech(ctx, streamer, cfg, sentence, order)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[session %s] failed to stream sentence, skipping: %v", s.ID, err)
			}
			order = next
			continue
		}

		samples, err := s.synthesizer.Synthesize(ctx, sentence,
			texttospeech.WithVoice(cfg.TTS.Voice),
			texttospeech.WithSpeed(cfg.TTS.Speed),
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[session %s] failed to synthesize sentence, skipping: %v", s.ID, err)
			continue
		}

		if err := s.gate.Acquire(ctx); err != nil {
			return err
		}
		if err := s.deliverSpeech(samples, order, sentence); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[session %s] failed to deliver speech unit %d: %v", s.ID, order, err)
		}
		order++
	}
	span.SetAttributes(attribute.Int("speech.units", order))

	return ctx.Err()
}

// streamSpeech renders one sentence through a streaming synthesizer,
// delivering each chunk inline under the flow gate with its own order
// index. It returns the next free order index.
func (s *Session) streamSpeech(ctx context.Context, streamer StreamingSynthesizer, cfg config.Config, sentence string, order int) (int, error) {
	chunks, err := streamer.SynthesizeStream(ctx, sentence,
		texttospeech.WithVoice(cfg.TTS.Voice),
		texttospeech.WithSpeed(cfg.TTS.Speed),
	)
	if err != nil {
		return order, err
	}

	for chunk, err := range chunks {
		if err != nil {
			return order, err
		}
		if len(chunk) == 0 {
			continue
		}
		if err := s.gate.Acquire(ctx); err != nil {
			return order, err
		}
		if err := s.send(protocol.NewSpeechSamples(chunk, order, sentence)); err != nil {
			if ctx.Err() != nil {
				return order, ctx.Err()
			}
			log.Printf("[session %s] failed to deliver speech unit %d: %v", s.ID, order, err)
		}
		order++
	}
	return order, nil
}

// deliverSpeech sends one synthesized unit: inline samples by default, or a
// file reference when the session has an audio directory configured.
func (s *Session) deliverSpeech(samples []byte, order int, text string) error {
	if s.audioDir == "" {
		return s.send(protocol.NewSpeechSamples(samples, order, text))
	}

	dir := filepath.Join(s.audioDir, s.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}
	filename := fmt.Sprintf("%04d.pcm", order)
	if err := os.WriteFile(filepath.Join(dir, filename), samples, 0o644); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return s.send(protocol.NewSpeechID(filepath.Join(s.ID, filename), order, text))
}
