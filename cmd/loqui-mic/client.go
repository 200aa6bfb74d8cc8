package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// serverEvent is one frame from the server, decoded loosely: only the
// fields the event type carries are set.
type serverEvent struct {
	Type     string          `json:"type"`
	Token    *string         `json:"token"`
	Text     string          `json:"text"`
	Samples  string          `json:"samples"`
	Filename string          `json:"filename"`
	Order    int             `json:"order"`
	Config   json.RawMessage `json:"config"`
}

// chatClient is the websocket connection to one chat. Writes are serialized
// through a mutex; reads run on a single goroutine feeding the events
// channel until the connection drops.
type chatClient struct {
	host    string
	conn    *websocket.Conn
	writeMu sync.Mutex

	events  chan serverEvent
	readErr error
	done    chan struct{}
}

func dialChat(ctx context.Context, host, chatID string) (*chatClient, error) {
	chatURL := url.URL{Scheme: "ws", Host: host, Path: "/ws/chat/" + chatID}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, chatURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", chatURL.String(), err)
	}

	client := &chatClient{
		host:   host,
		conn:   conn,
		events: make(chan serverEvent, 64),
		done:   make(chan struct{}),
	}
	go client.readLoop()
	return client, nil
}

// fetchAudio downloads one synthesized speech file referenced by a
// speech_id event.
func (c *chatClient) fetchAudio(ctx context.Context, filename string) ([]byte, error) {
	audioURL := url.URL{Scheme: "http", Host: c.host, Path: "/audio/" + filename}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %s", filename, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *chatClient) readLoop() {
	defer close(c.done)
	defer close(c.events)
	for {
		var event serverEvent
		if err := c.conn.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.readErr = err
			}
			return
		}
		c.events <- event
	}
}

func (c *chatClient) send(event any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}

func (c *chatClient) sendSamples(chunk []byte) error {
	return c.send(map[string]string{
		"type":    "samples",
		"samples": base64.StdEncoding.EncodeToString(chunk),
	})
}

func (c *chatClient) sendSpeechEnd() error {
	return c.send(map[string]string{"type": "speech_end"})
}

func (c *chatClient) sendTextPrompt(text string) error {
	return c.send(map[string]string{"type": "text_prompt", "text": text})
}

func (c *chatClient) sendFinishedSpeaking() error {
	return c.send(map[string]string{"type": "finished_speaking"})
}

func (c *chatClient) sendFlowControl(pause bool) error {
	action := "resume_sending"
	if pause {
		action = "pause_sending"
	}
	return c.send(map[string]string{"type": "flow_control", "action": action})
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

func (c *chatClient) close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
