package pipeline

import (
	"encoding/json"
	"log"

	"github.com/loquilabs/loqui/core/protocol"
)

// HandleEvent processes one decoded client event. Failures are logged and
// contained; nothing here tears the session down.
func (s *Session) HandleEvent(event protocol.Inbound) {
	switch event := event.(type) {
	case protocol.Samples:
		s.SendAudio(event.Audio)

	case protocol.SpeechEnd:
		if s.transcriber == nil {
			return
		}
		if err := s.transcriber.Commit(); err != nil {
			log.Printf("[session %s] failed to commit utterance: %v", s.ID, err)
		}

	case protocol.TextPrompt:
		s.TriggerManualPrompt(event.Text)

	case protocol.FinishedSpeaking:
		s.bumpLastInteraction()

	case protocol.ConfigChange:
		s.applyConfigChange(event)

	case protocol.FlowControl:
		if event.Pause {
			s.gate.Pause()
		} else {
			s.gate.Resume()
		}
	}
}

// applyConfigChange updates one configuration field, persists the new
// snapshot with the chat and reports the effective configuration back.
func (s *Session) applyConfigChange(change protocol.ConfigChange) {
	s.mu.Lock()
	err := s.cfg.Set(change.Path, change.Value)
	s.mu.Unlock()
	if err != nil {
		log.Printf("[session %s] rejected config change %q: %v", s.ID, change.Path, err)
		return
	}

	s.persistConfig()
	s.sendConfiguration()
}

func (s *Session) persistConfig() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	chat := s.chat
	var snapshot []byte
	if chat != nil {
		var err error
		snapshot, err = json.Marshal(s.cfg)
		if err != nil {
			s.mu.Unlock()
			log.Printf("[session %s] failed to snapshot config: %v", s.ID, err)
			return
		}
		updated := *chat
		updated.Config = snapshot
		s.chat = &updated
		chat = &updated
	}
	s.mu.Unlock()

	if chat == nil || s.store == nil {
		return
	}
	if err := s.store.Save(s.baseCtx, chat); err != nil {
		log.Printf("[session %s] failed to persist config: %v", s.ID, err)
	}
}
