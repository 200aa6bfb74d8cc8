package kokoro

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loquilabs/loqui/core/texttospeech"
)

func TestSynthesizeSendsRequestAndReturnsSamples(t *testing.T) {
	var received synthesisRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Write([]byte{0x01, 0x02, 0x03, 0x04})
	}))
	defer server.Close()

	client := NewSynthesisClient(server.URL, WithDefaultVoice("af_bella"), WithDefaultSpeed(1.2))
	samples, err := client.Synthesize(context.Background(), "hello there",
		texttospeech.WithSpeed(0.9))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(samples) != 4 {
		t.Fatalf("got %d sample bytes, want 4", len(samples))
	}
	if received.Text != "hello there" {
		t.Fatalf("request text = %q", received.Text)
	}
	if received.Voice != "af_bella" {
		t.Fatalf("request voice = %q, want the client default", received.Voice)
	}
	if received.Speed != 0.9 {
		t.Fatalf("request speed = %v, want the per-request override", received.Speed)
	}
	if received.SampleRate != 16000 || received.Encoding != "linear16" {
		t.Fatalf("request encoding = %d/%q", received.SampleRate, received.Encoding)
	}
}

func TestSynthesizeReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewSynthesisClient(server.URL)
	if _, err := client.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected an error for a non-OK status")
	}
}

func TestVoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]texttospeech.Voice{
			{ID: "af_heart", Name: "Heart", Language: "en-us"},
			{ID: "af_bella", Name: "Bella", Language: "en-us"},
		})
	}))
	defer server.Close()

	voices, err := NewSynthesisClient(server.URL).Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "af_heart" {
		t.Fatalf("Voices = %+v", voices)
	}
}

func TestHealthStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	if err := NewSynthesisClient(server.URL).HealthStatus(context.Background()); err != nil {
		t.Fatalf("HealthStatus: %v", err)
	}

	server.Close()
	if err := NewSynthesisClient(server.URL).HealthStatus(context.Background()); err == nil {
		t.Fatal("expected an error once the server is down")
	}
}

func TestSynthesizeStreamDeliversChunks(t *testing.T) {
	var received synthesisRequest
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		flusher := w.(http.Flusher)
		w.Write([]byte("chunk-a!"))
		flusher.Flush()
		w.Write([]byte("chunk-b!"))
	}))
	defer server.Close()

	client := NewSynthesisClient(server.URL)
	chunks, err := client.SynthesizeStream(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var got []byte
	for chunk, err := range chunks {
		if err != nil {
			t.Fatalf("chunk error: %v", err)
		}
		got = append(got, chunk...)
	}

	if path != "/synthesize/stream" {
		t.Fatalf("request path = %q", path)
	}
	if received.Text != "Hello there." {
		t.Fatalf("request text = %q", received.Text)
	}
	if string(got) != "chunk-a!chunk-b!" {
		t.Fatalf("streamed audio = %q", got)
	}
}

func TestSynthesizeStreamReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewSynthesisClient(server.URL)
	if _, err := client.SynthesizeStream(context.Background(), "hello"); err == nil {
		t.Fatal("SynthesizeStream succeeded against a failing server")
	}
}
