// Package protocol defines the websocket wire format between a client and a
// conversation session. Inbound messages decode into a closed union so the
// dispatch loop can switch exhaustively.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Inbound is a client-to-server event. The concrete types are Samples,
// SpeechEnd, TextPrompt, FinishedSpeaking, ConfigChange and FlowControl.
type Inbound interface {
	inbound()
}

// Samples carries a buffer of captured audio.
type Samples struct {
	Audio []byte
}

// SpeechEnd asks the transcriber to finalize the current utterance.
type SpeechEnd struct{}

// TextPrompt is a typed prompt that bypasses transcription.
type TextPrompt struct {
	Text string
}

// FinishedSpeaking tells the session the client has played all delivered
// speech.
type FinishedSpeaking struct{}

// ConfigChange updates a single configuration field by its dotted path.
type ConfigChange struct {
	Path  string
	Value json.RawMessage
}

// FlowControl pauses or resumes outbound speech delivery.
type FlowControl struct {
	Pause bool
}

func (Samples) inbound()          {}
func (SpeechEnd) inbound()        {}
func (TextPrompt) inbound()       {}
func (FinishedSpeaking) inbound() {}
func (ConfigChange) inbound()     {}
func (FlowControl) inbound()      {}

type inboundEnvelope struct {
	Type string `json:"type"`

	Samples string          `json:"samples,omitempty"`
	Text    string          `json:"text,omitempty"`
	Path    string          `json:"path,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Action  string          `json:"action,omitempty"`
}

// DecodeInbound parses a raw client message into the inbound union.
func DecodeInbound(raw []byte) (Inbound, error) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	switch envelope.Type {
	case "samples":
		audio, err := base64.StdEncoding.DecodeString(envelope.Samples)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio samples: %w", err)
		}
		return Samples{Audio: audio}, nil
	case "speech_end":
		return SpeechEnd{}, nil
	case "text_prompt":
		if envelope.Text == "" {
			return nil, fmt.Errorf("text_prompt without text")
		}
		return TextPrompt{Text: envelope.Text}, nil
	case "finished_speaking":
		return FinishedSpeaking{}, nil
	case "config_change":
		if envelope.Path == "" {
			return nil, fmt.Errorf("config_change without path")
		}
		return ConfigChange{Path: envelope.Path, Value: envelope.Value}, nil
	case "flow_control":
		switch envelope.Action {
		case "pause_sending":
			return FlowControl{Pause: true}, nil
		case "resume_sending":
			return FlowControl{Pause: false}, nil
		default:
			return nil, fmt.Errorf("unknown flow_control action %q", envelope.Action)
		}
	default:
		return nil, fmt.Errorf("unknown message type %q", envelope.Type)
	}
}
