package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/loquilabs/loqui/core/protocol"
)

func TestDecodeInbound(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
		want protocol.Inbound
	}{
		{
			name: "samples",
			raw:  `{"type":"samples","samples":"AAEC"}`,
			want: protocol.Samples{Audio: []byte{0, 1, 2}},
		},
		{
			name: "speech end",
			raw:  `{"type":"speech_end"}`,
			want: protocol.SpeechEnd{},
		},
		{
			name: "text prompt",
			raw:  `{"type":"text_prompt","text":"hello"}`,
			want: protocol.TextPrompt{Text: "hello"},
		},
		{
			name: "finished speaking",
			raw:  `{"type":"finished_speaking"}`,
			want: protocol.FinishedSpeaking{},
		},
		{
			name: "flow control pause",
			raw:  `{"type":"flow_control","action":"pause_sending"}`,
			want: protocol.FlowControl{Pause: true},
		},
		{
			name: "flow control resume",
			raw:  `{"type":"flow_control","action":"resume_sending"}`,
			want: protocol.FlowControl{Pause: false},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := protocol.DecodeInbound([]byte(tc.raw))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			switch want := tc.want.(type) {
			case protocol.Samples:
				gotSamples, ok := got.(protocol.Samples)
				if !ok || string(gotSamples.Audio) != string(want.Audio) {
					t.Fatalf("DecodeInbound = %#v, want %#v", got, tc.want)
				}
			default:
				if got != tc.want {
					t.Fatalf("DecodeInbound = %#v, want %#v", got, tc.want)
				}
			}
		})
	}
}

func TestDecodeInboundConfigChange(t *testing.T) {
	got, err := protocol.DecodeInbound([]byte(`{"type":"config_change","path":"llm.temperature","value":0.3}`))
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	change, ok := got.(protocol.ConfigChange)
	if !ok {
		t.Fatalf("DecodeInbound = %#v, want ConfigChange", got)
	}
	if change.Path != "llm.temperature" || string(change.Value) != "0.3" {
		t.Fatalf("ConfigChange = %#v", change)
	}
}

func TestDecodeInboundRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"unknown"}`,
		`{"type":"samples","samples":"@@@"}`,
		`{"type":"text_prompt"}`,
		`{"type":"config_change"}`,
		`{"type":"flow_control","action":"flood"}`,
	} {
		if _, err := protocol.DecodeInbound([]byte(raw)); err == nil {
			t.Fatalf("DecodeInbound(%q) succeeded, want error", raw)
		}
	}
}

func TestOutboundEventKinds(t *testing.T) {
	for _, tc := range []struct {
		event protocol.Outbound
		kind  string
	}{
		{protocol.NewSpeechSamples([]byte{1, 2}, 0, "Hi."), "speech_samples"},
		{protocol.NewSpeechID("chat/0000.pcm", 0, "Hi."), "speech_id"},
		{protocol.NewAssistantSpeechStart(), "assistant_speech_start"},
		{protocol.NewUserSpeechTranscription("hi"), "user_speech_transcription"},
		{protocol.NewManualPrompt("hi"), "manual_prompt"},
		{protocol.NewPromptDiscarded("hi"), "prompt_discarded"},
	} {
		raw, err := json.Marshal(tc.event)
		if err != nil {
			t.Fatalf("Marshal(%#v): %v", tc.event, err)
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if envelope.Type != tc.kind {
			t.Fatalf("event kind = %q, want %q", envelope.Type, tc.kind)
		}
	}
}

func TestTokenEncodesNullTerminal(t *testing.T) {
	raw, err := json.Marshal(protocol.NewToken(nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"type":"token","token":null}` {
		t.Fatalf("Marshal = %s", raw)
	}
}
