package server

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	pipeline "github.com/loquilabs/loqui/core"
	"github.com/loquilabs/loqui/core/protocol"
)

// handleChatSocket runs one conversation session over a websocket. The
// connection carries inbound client events; everything the session emits
// goes back over the same connection through a single-writer sink.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if _, err := uuid.Parse(chatID); err != nil {
		http.Error(w, "chat id must be a uuid", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sink := newWSSink(conn)
	defer sink.close()

	session := pipeline.NewSession(chatID, s.cfg, sink,
		pipeline.WithStore(s.store),
		pipeline.WithLLM(s.llm),
		pipeline.WithTranscriber(s.newTranscriber(s.cfg)),
		pipeline.WithSynthesizer(s.synthesizer),
		pipeline.WithValidator(s.validator),
		pipeline.WithTools(s.tools...),
		pipeline.WithAudioDir(s.cfg.Server.AudioDir),
	)
	if err := session.Start(r.Context()); err != nil {
		log.Printf("[server] failed to start session %s: %v", chatID, err)
		return
	}
	defer session.Close()

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[server] session %s read failed: %v", chatID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := protocol.DecodeInbound(raw)
		if err != nil {
			// Malformed frames are logged and skipped; the session stays up.
			log.Printf("[server] session %s dropped malformed event: %v", chatID, err)
			continue
		}
		session.HandleEvent(event)
	}
}
