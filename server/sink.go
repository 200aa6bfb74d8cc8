package server

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/loquilabs/loqui/core/protocol"
)

// wsSink writes outbound events to one websocket connection. Gorilla
// connections allow a single concurrent writer, so every write goes through
// the mutex; callers see their own events in order.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

func (s *wsSink) Send(event protocol.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

func (s *wsSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
