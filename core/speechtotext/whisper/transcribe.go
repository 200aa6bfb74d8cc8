package whisper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loquilabs/loqui/core/audio"
	"github.com/loquilabs/loqui/core/speechtotext"
)

// TranscriptionClient bridges a streaming Whisper service: audio chunks go
// out over a persistent websocket, transcript segments come back as JSON.
type TranscriptionClient struct {
	baseURL string
	model   string

	conn   *websocket.Conn
	connMu sync.Mutex
}

func NewTranscriptionClient(baseURL string, opts ...ClientOption) *TranscriptionClient {
	client := &TranscriptionClient{baseURL: baseURL, model: "small.en"}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type ClientOption func(*TranscriptionClient)

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.DefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	transcribeURL := url.URL{
		Scheme: "ws",
		Host:   c.baseURL,
		Path:   "/transcribe",
		RawQuery: url.Values{
			"model":       {c.model},
			"sample_rate": {strconv.Itoa(options.EncodingInfo.SampleRate)},
			"encoding":    {options.EncodingInfo.Format.Name()},
		}.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, transcribeURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to open socket connection to whisper: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readAndProcessMessages(ctx, conn, *options)

	return nil
}

func (c *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	speaking := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Println("Failed to read whisper websocket message", "error", err)
			}

			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()
			conn.Close()
			return
		}

		var segment speechtotext.Segment
		if err := json.Unmarshal(msg, &segment); err != nil {
			log.Println("Failed to unmarshal whisper segment", "error", err)
			continue
		}

		if !speaking && !segment.Final {
			speaking = true
			if options.SpeechStartedCallback != nil {
				options.SpeechStartedCallback()
			}
		}

		if options.SegmentCallback != nil {
			options.SegmentCallback(segment)
		}

		if segment.Final {
			speaking = false
			if options.SpeechEndedCallback != nil {
				options.SpeechEndedCallback()
			}
		}
	}
}

func (c *TranscriptionClient) SendAudio(chunk []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whisper connection not open")
	}

	if err := c.conn.WriteJSON(struct {
		Samples string `json:"samples"`
	}{Samples: base64.StdEncoding.EncodeToString(chunk)}); err != nil {
		return fmt.Errorf("failed to write audio to whisper client: %w", err)
	}
	return nil
}

// Commit asks the engine to finalize the current utterance.
func (c *TranscriptionClient) Commit() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whisper connection not open")
	}

	if err := c.conn.WriteJSON(struct {
		Commit bool `json:"commit"`
	}{Commit: true}); err != nil {
		return fmt.Errorf("failed to commit whisper utterance: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) Close(context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close whisper connection: %w", err)
	}
	return nil
}

// HealthStatus queries the engine's HTTP health endpoint.
func (c *TranscriptionClient) HealthStatus(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		(&url.URL{Scheme: "http", Host: c.baseURL, Path: "/health"}).String(), nil)
	if err != nil {
		return "unhealthy"
	}

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "unhealthy"
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "unhealthy"
	}
	return body.Status
}
