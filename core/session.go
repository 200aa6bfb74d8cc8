// Package pipeline coordinates one voice conversation session: speech-to-
// text ingestion, response generation and speech synthesis running
// concurrently, tied together by barge-in cancellation and flow control.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/loquilabs/loqui/core/chatstore"
	"github.com/loquilabs/loqui/core/config"
	"github.com/loquilabs/loqui/core/llms"
	"github.com/loquilabs/loqui/core/protocol"
	"github.com/loquilabs/loqui/core/speechtotext"
	"github.com/loquilabs/loqui/core/texttospeech"
)

// LLM is the language model collaborator of the generation stage.
type LLM interface {
	PromptWithStream(ctx context.Context, prompt *string, opts ...llms.PromptOption) llms.Stream
}

// Transcriber is the streaming speech-to-text collaborator. Transcribe
// opens the stream; Close tears it down so it can be opened fresh.
type Transcriber interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Commit() error
	Close() error
}

// Synthesizer is the text-to-speech collaborator of the synthesis stage.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error)
}

// StreamingSynthesizer is implemented by synthesizers that can deliver
// audio in chunks while a sentence renders. Sessions delivering inline
// samples prefer it over buffered synthesis.
type StreamingSynthesizer interface {
	SynthesizeStream(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) (func(func([]byte, error) bool), error)
}

// EventSink delivers outbound events to the client. Implementations must be
// safe for concurrent use; ordering is per caller.
type EventSink interface {
	Send(event protocol.Outbound) error
}

// ShouldRespondFunc decides whether a spoken prompt was directed at the
// assistant.
type ShouldRespondFunc func(ctx context.Context, prompt string, history []llms.Message) (bool, error)

// pendingPrompt is the candidate prompt waiting for the settle delay.
type pendingPrompt struct {
	text   string
	setAt  time.Time
	manual bool
	// end is the transcript position the prompt covers, committed as the
	// stitcher cutoff once consumed.
	end float64
}

// stageHandle owns one stage goroutine. stop cancels it and waits for it to
// finish; it is safe to call on nil and to call repeatedly.
type stageHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *stageHandle) stop() {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

// Session is the per-client pipeline coordinator. All mutable state is
// guarded by mu and touched only by the dispatch loop, the coordinator tick
// and the session's own stage goroutines.
type Session struct {
	ID string

	store       chatstore.Store
	llm         LLM
	transcriber Transcriber
	synthesizer Synthesizer
	validator   ShouldRespondFunc
	sink        EventSink
	tools       []llms.Tool

	// audioDir, when set, makes synthesis write audio files under it and
	// reference them with speech_id events instead of inlining samples.
	audioDir string

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// genMu serializes cancel-and-replace of the generation stage. The
	// stop of the old run and the install of the new one happen as one
	// step.
	genMu sync.Mutex
	// persistMu serializes chat snapshot writes to the store.
	persistMu sync.Mutex

	mu                sync.Mutex
	closed            bool
	cfg               config.Config
	chat              *chatstore.Chat
	pending           *pendingPrompt
	promptPrefix      string
	lastInteraction   time.Time
	speaking          bool
	speakingChangedAt time.Time
	generation        *stageHandle
	coordinator       *stageHandle
	stitch            *stitcher
	gate              *flowGate

	closeOnce sync.Once
}

type SessionOption func(*Session)

func WithStore(store chatstore.Store) SessionOption {
	return func(s *Session) { s.store = store }
}

func WithLLM(llm LLM) SessionOption {
	return func(s *Session) { s.llm = llm }
}

func WithTranscriber(transcriber Transcriber) SessionOption {
	return func(s *Session) { s.transcriber = transcriber }
}

func WithSynthesizer(synthesizer Synthesizer) SessionOption {
	return func(s *Session) { s.synthesizer = synthesizer }
}

func WithValidator(validator ShouldRespondFunc) SessionOption {
	return func(s *Session) { s.validator = validator }
}

func WithTools(tools ...llms.Tool) SessionOption {
	return func(s *Session) { s.tools = append(s.tools, tools...) }
}

// WithAudioDir switches synthesized speech delivery from inline samples to
// files written under dir, referenced by speech_id events.
func WithAudioDir(dir string) SessionOption {
	return func(s *Session) { s.audioDir = dir }
}

func NewSession(id string, cfg config.Config, sink EventSink, opts ...SessionOption) *Session {
	s := &Session{
		ID:              id,
		cfg:             cfg,
		sink:            sink,
		stitch:          newStitcher(),
		gate:            newFlowGate(),
		lastInteraction: time.Now(),
		tools:           builtinTools(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores the conversation, reports the effective configuration to
// the client and brings up transcription and the prompt coordinator.
func (s *Session) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start session")
	defer span.End()

	s.baseCtx, s.baseCancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := s.restoreChat(ctx); err != nil {
		err = fmt.Errorf("failed to restore chat: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.sendConfiguration()

	if err := s.startTranscription(); err != nil {
		err = fmt.Errorf("failed to start transcription: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.startCoordinator()
	return nil
}

// restoreChat loads the chat for this session's ID. When it does not exist
// yet, the session still adopts the most recent chat's configuration so a
// fresh connection picks up where the user left off.
func (s *Session) restoreChat(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	chat, err := s.store.Load(ctx, s.ID)
	if err != nil && !errors.Is(err, chatstore.ErrNotFound) {
		return err
	}

	if chat == nil {
		// A fresh chat still adopts the most recent chat's configuration;
		// the messages do not carry over.
		recent, err := s.store.MostRecent(ctx)
		if err != nil && !errors.Is(err, chatstore.ErrNotFound) {
			return err
		}
		if recent != nil {
			s.adoptConfig(recent.Config)
		}
	} else {
		s.adoptConfig(chat.Config)
	}

	s.mu.Lock()
	s.chat = chat
	s.mu.Unlock()
	return nil
}

func (s *Session) adoptConfig(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(raw, &s.cfg); err != nil {
		log.Printf("[session %s] ignoring undecodable stored config: %v", s.ID, err)
	}
}

// Close tears the session down: generation (and with it synthesis), then
// transcription, then the coordinator. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		coordinator := s.coordinator
		s.coordinator = nil
		s.mu.Unlock()

		s.genMu.Lock()
		s.mu.Lock()
		generation := s.generation
		s.generation = nil
		s.mu.Unlock()
		generation.stop()
		s.genMu.Unlock()
		if s.transcriber != nil {
			if err := s.transcriber.Close(); err != nil {
				log.Printf("[session %s] failed to close transcriber: %v", s.ID, err)
			}
		}
		if s.baseCancel != nil {
			s.baseCancel()
		}
		coordinator.stop()
	})
}

// Config returns a snapshot of the session's effective configuration.
func (s *Session) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) sendConfiguration() {
	if err := s.send(protocol.NewConfiguration(s.Config())); err != nil {
		log.Printf("[session %s] failed to send configuration: %v", s.ID, err)
	}
}

func (s *Session) send(event protocol.Outbound) error {
	if s.sink == nil {
		return nil
	}
	return s.sink.Send(event)
}

// appendMessage persists a message, creating the chat record lazily on the
// first one. The in-memory chat is only updated once the store write
// succeeded.
func (s *Session) appendMessage(ctx context.Context, message llms.Message) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	chat := s.chat
	if chat == nil {
		configSnapshot, err := json.Marshal(s.cfg)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to snapshot config: %w", err)
		}
		chat = &chatstore.Chat{
			ID:        s.ID,
			StartedAt: time.Now(),
			Config:    configSnapshot,
		}
	}
	updated := *chat
	updated.Messages = append(append([]llms.Message(nil), chat.Messages...), message)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, &updated); err != nil {
			return fmt.Errorf("failed to persist message: %w", err)
		}
	}

	s.mu.Lock()
	s.chat = &updated
	s.mu.Unlock()
	return nil
}

// history returns a copy of the persisted conversation messages.
func (s *Session) history() []llms.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil {
		return nil
	}
	return append([]llms.Message(nil), s.chat.Messages...)
}

func (s *Session) bumpLastInteraction() {
	s.mu.Lock()
	s.lastInteraction = time.Now()
	s.mu.Unlock()
}

func (s *Session) setSpeaking(speaking bool) {
	s.mu.Lock()
	s.speaking = speaking
	s.speakingChangedAt = time.Now()
	s.mu.Unlock()
}

// setPendingPrompt installs or refreshes the prompt candidate, resetting
// its settle timer.
func (s *Session) setPendingPrompt(text string, manual bool, end float64) {
	s.mu.Lock()
	s.pending = &pendingPrompt{text: text, setAt: time.Now(), manual: manual, end: end}
	s.mu.Unlock()
}

// takePendingPrompt removes and returns the pending prompt, if any.
func (s *Session) takePendingPrompt() *pendingPrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	s.promptPrefix = ""
	return pending
}
