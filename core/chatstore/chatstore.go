// Package chatstore persists conversations so a session can resume where
// the previous one ended.
package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/loquilabs/loqui/core/llms"
)

const headerLength = 30

// ErrNotFound is returned when a chat does not exist in the store.
var ErrNotFound = errors.New("chatstore: not found")

// Chat is a persisted conversation. Config holds the serialized session
// configuration the chat was using, so reconnecting restores it.
type Chat struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Header    string          `json:"header"`
	Config    json.RawMessage `json:"config,omitempty"`
	Messages  []llms.Message  `json:"messages"`
}

// DeriveHeader fills in the chat header from the first message when it is
// not set yet.
func (c *Chat) DeriveHeader() {
	if c.Header != "" || len(c.Messages) == 0 {
		return
	}
	header := []rune(c.Messages[0].Content)
	if len(header) > headerLength {
		header = header[:headerLength]
	}
	c.Header = string(header)
}

// ChatSummary is the listing view of a chat: everything but the messages
// and the config snapshot.
type ChatSummary struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Header    string    `json:"header"`
}

// Store persists chats keyed by their ID.
type Store interface {
	// Load retrieves a chat. Returns ErrNotFound if it does not exist.
	Load(ctx context.Context, id string) (*Chat, error)

	// Save stores a chat, overwriting any previous version.
	Save(ctx context.Context, chat *Chat) error

	// Delete removes a chat. No error if it does not exist.
	Delete(ctx context.Context, id string) error

	// MostRecent returns the chat with the latest StartedAt, or ErrNotFound
	// when the store is empty.
	MostRecent(ctx context.Context) (*Chat, error)

	// List returns summaries of all chats, most recently started first.
	List(ctx context.Context) ([]ChatSummary, error)

	// Close releases any resources held by the store.
	Close() error
}
