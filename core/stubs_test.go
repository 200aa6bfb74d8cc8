package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loquilabs/loqui/core/chatstore"
	"github.com/loquilabs/loqui/core/llms"
	"github.com/loquilabs/loqui/core/protocol"
	"github.com/loquilabs/loqui/core/speechtotext"
	"github.com/loquilabs/loqui/core/texttospeech"
)

type contentChunk string

func (contentChunk) FinishReason() *string { return nil }
func (c contentChunk) Content() string     { return string(c) }

type toolCallChunk llms.ToolCall

func (toolCallChunk) FinishReason() *string     { return nil }
func (c toolCallChunk) ToolCall() llms.ToolCall { return llms.ToolCall(c) }

// stubStream yields preset chunks, optionally blocking until cancelled
// afterwards.
type stubStream struct {
	chunks      []llms.StreamChunk
	blockAtEnd  bool
	startedWG   *sync.WaitGroup
	startedOnce sync.Once
}

func (s *stubStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range s.chunks {
			if ctx.Err() != nil {
				return
			}
			if !yield(chunk, nil) {
				return
			}
			if s.startedWG != nil {
				s.startedOnce.Do(s.startedWG.Done)
			}
		}
		if s.blockAtEnd {
			<-ctx.Done()
		}
	}
}

// stubLLM returns one preset stream per call, in order. Extra calls reuse
// the last one.
type stubLLM struct {
	mu      sync.Mutex
	streams []*stubStream
	calls   int
}

func (l *stubLLM) PromptWithStream(_ context.Context, _ *string, _ ...llms.PromptOption) llms.Stream {
	l.mu.Lock()
	defer l.mu.Unlock()
	index := l.calls
	if index >= len(l.streams) {
		index = len(l.streams) - 1
	}
	l.calls++
	return l.streams[index]
}

func (l *stubLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// countingLLM tracks how many of its streams are being consumed at once.
type countingLLM struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	finished    atomic.Int32
}

func (l *countingLLM) PromptWithStream(_ context.Context, _ *string, _ ...llms.PromptOption) llms.Stream {
	return &countingStream{llm: l}
}

type countingStream struct{ llm *countingLLM }

func (s *countingStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		active := s.llm.inFlight.Add(1)
		for {
			seen := s.llm.maxInFlight.Load()
			if active <= seen || s.llm.maxInFlight.CompareAndSwap(seen, active) {
				break
			}
		}
		defer s.llm.finished.Add(1)
		defer s.llm.inFlight.Add(-1)

		time.Sleep(20 * time.Millisecond)
		if ctx.Err() != nil {
			return
		}
		yield(contentChunk("Done."), nil)
	}
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(_ context.Context, text string, _ ...texttospeech.SynthesisOption) ([]byte, error) {
	return []byte("pcm:" + text), nil
}

// chunkingSynthesizer renders each sentence as a fixed number of chunks.
type chunkingSynthesizer struct{ chunks int }

func (chunkingSynthesizer) Synthesize(_ context.Context, text string, _ ...texttospeech.SynthesisOption) ([]byte, error) {
	return []byte("pcm:" + text), nil
}

func (s chunkingSynthesizer) SynthesizeStream(_ context.Context, text string, _ ...texttospeech.SynthesisOption) (func(func([]byte, error) bool), error) {
	return func(yield func([]byte, error) bool) {
		for i := 0; i < s.chunks; i++ {
			if !yield([]byte(fmt.Sprintf("pcm%d:%s", i, text)), nil) {
				return
			}
		}
	}, nil
}

// stubTranscriber records calls and exposes the transcription options so a
// test can inject segments through the registered callbacks.
type stubTranscriber struct {
	mu         sync.Mutex
	options    speechtotext.TranscriptionOptions
	transcribe int
	closes     int
	commits    int
	audio      [][]byte
}

func (t *stubTranscriber) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.options = speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&t.options)
	}
	t.transcribe++
	return nil
}

func (t *stubTranscriber) SendAudio(audio []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audio = append(t.audio, audio)
	return nil
}

func (t *stubTranscriber) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commits++
	return nil
}

func (t *stubTranscriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *stubTranscriber) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *stubTranscriber) transcribeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transcribe
}

func (t *stubTranscriber) emitSegment(segment speechtotext.Segment) {
	t.mu.Lock()
	callback := t.options.SegmentCallback
	t.mu.Unlock()
	if callback != nil {
		callback(segment)
	}
}

type stubSink struct {
	mu     sync.Mutex
	events []protocol.Outbound
}

func (s *stubSink) Send(event protocol.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubSink) snapshot() []protocol.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Outbound(nil), s.events...)
}

func (s *stubSink) countSpeechSamples() int {
	count := 0
	for _, event := range s.snapshot() {
		if _, ok := event.(protocol.SpeechSamples); ok {
			count++
		}
	}
	return count
}

type stubStore struct {
	mu    sync.Mutex
	chats map[string]chatstore.Chat
}

func newStubStore() *stubStore {
	return &stubStore{chats: map[string]chatstore.Chat{}}
}

func (s *stubStore) Load(_ context.Context, id string) (*chatstore.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, chatstore.ErrNotFound
	}
	return &chat, nil
}

func (s *stubStore) Save(_ context.Context, chat *chatstore.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = *chat
	return nil
}

func (s *stubStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	return nil
}

func (s *stubStore) MostRecent(_ context.Context) (*chatstore.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recent *chatstore.Chat
	for id := range s.chats {
		chat := s.chats[id]
		if recent == nil || chat.StartedAt.After(recent.StartedAt) {
			recent = &chat
		}
	}
	if recent == nil {
		return nil, chatstore.ErrNotFound
	}
	return recent, nil
}

func (s *stubStore) List(_ context.Context) ([]chatstore.ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := make([]chatstore.ChatSummary, 0, len(s.chats))
	for _, chat := range s.chats {
		summaries = append(summaries, chatstore.ChatSummary{
			ID: chat.ID, StartedAt: chat.StartedAt, Header: chat.Header,
		})
	}
	return summaries, nil
}

func (s *stubStore) Close() error { return nil }

func (s *stubStore) messages(id string) []llms.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil
	}
	return append([]llms.Message(nil), chat.Messages...)
}

// eventually polls cond until it holds or the timeout elapses.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}
