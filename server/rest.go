package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/loquilabs/loqui/core/chatstore"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[server] failed to write response: %v", err)
	}
}

// handleListChats returns summaries of all stored chats, newest first.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		http.Error(w, "failed to list chats", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []chatstore.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.store.Load(r.Context(), r.PathValue("id"))
	if errors.Is(err, chatstore.ErrNotFound) {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load chat", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// handleDeleteChat removes a chat and its synthesized audio files.
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		http.Error(w, "failed to delete chat", http.StatusInternalServerError)
		return
	}

	if s.cfg.Server.AudioDir != "" {
		if err := os.RemoveAll(filepath.Join(s.cfg.Server.AudioDir, id)); err != nil {
			log.Printf("[server] failed to remove audio for chat %s: %v", id, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleNewChat mints a chat ID. The chat record itself is created lazily
// by the session once the first message lands.
func (s *Server) handleNewChat(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, uuid.NewString())
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.voices(r.Context())
	if err != nil {
		http.Error(w, "failed to list voices", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, voices)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.models(r.Context())
	if err != nil {
		http.Error(w, "failed to list models", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models)
}
