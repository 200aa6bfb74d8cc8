// Package server exposes conversation sessions over HTTP: a websocket per
// chat, provider health reporting and a small REST surface for chat
// management.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	pipeline "github.com/loquilabs/loqui/core"
	"github.com/loquilabs/loqui/core/chatstore"
	"github.com/loquilabs/loqui/core/config"
	"github.com/loquilabs/loqui/core/llms"
	"github.com/loquilabs/loqui/core/llms/ollama"
	"github.com/loquilabs/loqui/core/speechtotext"
	"github.com/loquilabs/loqui/core/speechtotext/deepgram"
	"github.com/loquilabs/loqui/core/speechtotext/whisper"
	"github.com/loquilabs/loqui/core/texttospeech"
	"github.com/loquilabs/loqui/core/texttospeech/kokoro"
)

// TranscriberFactory builds a fresh transcriber for one session. The
// transcription connection is per-session state, so sessions cannot share
// one client.
type TranscriberFactory func(cfg config.Config) pipeline.Transcriber

// HealthFunc reports one provider's status for the health endpoint.
type HealthFunc func(ctx context.Context) string

// VoicesFunc lists the synthesis voices the TTS provider offers.
type VoicesFunc func(ctx context.Context) ([]texttospeech.Voice, error)

// Server routes client connections to conversation sessions.
type Server struct {
	cfg   config.Config
	store chatstore.Store
	mux   *http.ServeMux

	llm            pipeline.LLM
	models         ModelsFunc
	newTranscriber TranscriberFactory
	synthesizer    pipeline.Synthesizer
	validator      pipeline.ShouldRespondFunc
	voices         VoicesFunc
	health         map[string]HealthFunc
	tools          []llms.Tool

	upgrader websocket.Upgrader
}

// ModelsFunc lists the models the LLM provider can serve.
type ModelsFunc func(ctx context.Context) ([]string, error)

type Option func(*Server)

// WithLLM replaces the default Ollama client.
func WithLLM(llm pipeline.LLM) Option {
	return func(s *Server) { s.llm = llm }
}

// WithTranscriberFactory replaces the provider selected by the stt config.
func WithTranscriberFactory(factory TranscriberFactory) Option {
	return func(s *Server) { s.newTranscriber = factory }
}

// WithSynthesizer replaces the default Kokoro client.
func WithSynthesizer(synthesizer pipeline.Synthesizer) Option {
	return func(s *Server) { s.synthesizer = synthesizer }
}

// WithValidator replaces the default spoken-prompt classifier.
func WithValidator(validator pipeline.ShouldRespondFunc) Option {
	return func(s *Server) { s.validator = validator }
}

// WithTools adds tools every session can call.
func WithTools(tools ...llms.Tool) Option {
	return func(s *Server) { s.tools = append(s.tools, tools...) }
}

// WithVoices replaces the voice listing of the default Kokoro client.
func WithVoices(voices VoicesFunc) Option {
	return func(s *Server) { s.voices = voices }
}

// WithModels replaces the model listing of the default Ollama client.
func WithModels(models ModelsFunc) Option {
	return func(s *Server) { s.models = models }
}

// WithHealthCheck adds or replaces a named provider health check.
func WithHealthCheck(name string, check HealthFunc) Option {
	return func(s *Server) { s.health[name] = check }
}

// New builds a server with providers constructed from the configuration:
// Ollama for generation and validation, Whisper or Deepgram for
// transcription and Kokoro for synthesis. Options override individual
// providers.
func New(cfg config.Config, store chatstore.Store, opts ...Option) *Server {
	llmClient := ollama.NewClient(cfg.LLM.BaseURL, ollama.WithModel(cfg.LLM.Model))
	ttsClient := kokoro.NewSynthesisClient(cfg.TTS.BaseURL,
		kokoro.WithDefaultVoice(cfg.TTS.Voice),
		kokoro.WithDefaultSpeed(cfg.TTS.Speed),
	)

	s := &Server{
		cfg:         cfg,
		store:       store,
		mux:         http.NewServeMux(),
		llm:         llmClient,
		models:      llmClient.Models,
		synthesizer: ttsClient,
		validator:   addressedValidator(llmClient),
		voices:      ttsClient.Voices,
		health: map[string]HealthFunc{
			"llm": availability(llmClient.HealthStatus),
			"tts": availability(ttsClient.HealthStatus),
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	switch cfg.STT.Provider {
	case "deepgram":
		s.newTranscriber = func(config.Config) pipeline.Transcriber {
			return sttAdapter{deepgram.NewTranscriptionClient()}
		}
		s.health["stt"] = deepgram.NewTranscriptionClient().HealthStatus
	default:
		s.newTranscriber = func(cfg config.Config) pipeline.Transcriber {
			return sttAdapter{whisperClient(cfg)}
		}
		s.health["stt"] = whisperClient(cfg).HealthStatus
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /ws/chat/{id}", s.handleChatSocket)
	s.mux.HandleFunc("GET /ws/health", s.handleHealthSocket)
	s.mux.HandleFunc("GET /voices", s.handleVoices)
	s.mux.HandleFunc("GET /models", s.handleModels)
	s.mux.HandleFunc("GET /chats", s.handleListChats)
	s.mux.HandleFunc("GET /chat/{id}", s.handleGetChat)
	s.mux.HandleFunc("DELETE /chat/{id}", s.handleDeleteChat)
	s.mux.HandleFunc("POST /chat/new", s.handleNewChat)

	if s.cfg.Server.AudioDir != "" {
		s.mux.Handle("GET /audio/",
			http.StripPrefix("/audio/", http.FileServer(http.Dir(s.cfg.Server.AudioDir))))
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe runs the server on the configured listen address until the
// context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Server.ListenAddress,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// whisperClient builds a whisper transcription client from the stt config.
// The whisper endpoint is addressed by host, not URL.
func whisperClient(cfg config.Config) *whisper.TranscriptionClient {
	host := strings.TrimPrefix(strings.TrimPrefix(cfg.STT.BaseURL, "http://"), "https://")
	return whisper.NewTranscriptionClient(host, whisper.WithModel(cfg.STT.Model))
}

// availability folds an error-returning health check into the status-string
// shape the health endpoint reports.
func availability(check func(ctx context.Context) error) HealthFunc {
	return func(ctx context.Context) string {
		if err := check(ctx); err != nil {
			return "unavailable"
		}
		return "available"
	}
}

// transcriptionClient is the surface the whisper and deepgram clients
// share.
type transcriptionClient interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(chunk []byte) error
	Commit() error
	Close(ctx context.Context) error
}

// sttAdapter narrows the transcription clients' context-taking Close to the
// session's Transcriber contract.
type sttAdapter struct {
	transcriptionClient
}

func (a sttAdapter) Close() error {
	return a.transcriptionClient.Close(context.Background())
}
