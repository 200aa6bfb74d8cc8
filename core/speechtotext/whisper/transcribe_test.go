package whisper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loquilabs/loqui/core/speechtotext"
)

// fakeEngine accepts one /transcribe connection and records the frames the
// client sends.
type fakeEngine struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []map[string]any
}

func (e *fakeEngine) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			http.NotFound(w, r)
			return
		}
		conn, err := e.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.conn = conn
		e.mu.Unlock()

		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			e.mu.Lock()
			e.received = append(e.received, frame)
			e.mu.Unlock()
		}
	})
}

func (e *fakeEngine) sendSegment(t *testing.T, segment speechtotext.Segment) {
	t.Helper()
	var conn *websocket.Conn
	eventually(t, func() bool {
		e.mu.Lock()
		conn = e.conn
		e.mu.Unlock()
		return conn != nil
	}, "no client connected")
	raw, err := json.Marshal(segment)
	if err != nil {
		t.Fatalf("marshal segment: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write segment: %v", err)
	}
}

func (e *fakeEngine) frames() []map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]map[string]any(nil), e.received...)
}

func startEngine(t *testing.T) (*fakeEngine, string) {
	t.Helper()
	engine := &fakeEngine{}
	server := httptest.NewServer(engine.handler())
	t.Cleanup(server.Close)
	return engine, strings.TrimPrefix(server.URL, "http://")
}

func eventually(t *testing.T, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}

func TestTranscribeDeliversSegmentsAndSpeechBoundaries(t *testing.T) {
	engine, host := startEngine(t)
	client := NewTranscriptionClient(host)
	defer client.Close(context.Background())

	var mu sync.Mutex
	var segments []speechtotext.Segment
	var started, ended int

	err := client.Transcribe(context.Background(),
		speechtotext.WithSegmentCallback(func(segment speechtotext.Segment) {
			mu.Lock()
			segments = append(segments, segment)
			mu.Unlock()
		}),
		speechtotext.WithSpeechStartedCallback(func() {
			mu.Lock()
			started++
			mu.Unlock()
		}),
		speechtotext.WithSpeechEndedCallback(func() {
			mu.Lock()
			ended++
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	engine.sendSegment(t, speechtotext.Segment{Start: 0, End: 0.8, Text: "hello"})
	engine.sendSegment(t, speechtotext.Segment{Start: 0, End: 1.4, Text: "hello there", Final: true})

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(segments) == 2 && started == 1 && ended == 1
	}, "segments or speech boundaries never arrived")

	mu.Lock()
	defer mu.Unlock()
	if segments[0].Text != "hello" || segments[1].Text != "hello there" {
		t.Fatalf("segments = %+v", segments)
	}
	if !segments[1].Final {
		t.Fatal("final flag was dropped")
	}
}

func TestSendAudioAndCommitFrames(t *testing.T) {
	engine, host := startEngine(t)
	client := NewTranscriptionClient(host)
	defer client.Close(context.Background())

	if err := client.SendAudio([]byte{1, 2, 3}); err == nil {
		t.Fatal("SendAudio succeeded before Transcribe opened the stream")
	}

	if err := client.Transcribe(context.Background()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if err := client.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := client.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	eventually(t, func() bool { return len(engine.frames()) == 2 }, "frames never reached the engine")

	frames := engine.frames()
	if _, ok := frames[0]["samples"].(string); !ok {
		t.Fatalf("first frame = %+v, want base64 samples", frames[0])
	}
	if commit, ok := frames[1]["commit"].(bool); !ok || !commit {
		t.Fatalf("second frame = %+v, want commit", frames[1])
	}
}
