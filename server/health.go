package server

import (
	"log"
	"net/http"
)

// handleHealthSocket reports provider status over a websocket: each frame
// the client sends is answered with a name-to-status map, so a UI can poll
// on its own schedule over one connection.
func (s *Server) handleHealthSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		statuses := make(map[string]string, len(s.health))
		for name, check := range s.health {
			statuses[name] = check(r.Context())
		}
		if err := conn.WriteJSON(statuses); err != nil {
			log.Printf("[server] failed to write health statuses: %v", err)
			return
		}
	}
}
