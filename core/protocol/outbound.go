package protocol

import "encoding/base64"

// Outbound is a server-to-client event ready for JSON encoding.
type Outbound interface {
	outbound()
}

// Token is a single streamed response token. A nil Token value marks the
// end of the response.
type Token struct {
	Type  string  `json:"type"`
	Token *string `json:"token"`
}

// UserSpeechTranscription carries the stitched transcript so far.
type UserSpeechTranscription struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ManualPrompt echoes a typed prompt back to the client.
type ManualPrompt struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AssistantSpeechStart announces that synthesized speech is about to be
// delivered.
type AssistantSpeechStart struct {
	Type string `json:"type"`
}

// SpeechID references a synthesized speech unit written to disk.
type SpeechID struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Order    int    `json:"order"`
	Text     string `json:"text"`
}

// SpeechSamples carries a synthesized speech unit inline.
type SpeechSamples struct {
	Type    string `json:"type"`
	Samples string `json:"samples"`
	Order   int    `json:"order"`
	Text    string `json:"text"`
}

// PromptDiscarded tells the client a spoken prompt was rejected by the
// validation gate. Only sent under the "notify" validation policy.
type PromptDiscarded struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Configuration reports the session's effective configuration.
type Configuration struct {
	Type   string `json:"type"`
	Config any    `json:"config"`
}

func (Token) outbound()                   {}
func (PromptDiscarded) outbound()         {}
func (UserSpeechTranscription) outbound() {}
func (ManualPrompt) outbound()            {}
func (AssistantSpeechStart) outbound()    {}
func (SpeechID) outbound()                {}
func (SpeechSamples) outbound()           {}
func (Configuration) outbound()           {}

// NewToken builds a token event; pass nil to mark the end of a response.
func NewToken(token *string) Token {
	return Token{Type: "token", Token: token}
}

func NewUserSpeechTranscription(text string) UserSpeechTranscription {
	return UserSpeechTranscription{Type: "user_speech_transcription", Text: text}
}

func NewManualPrompt(text string) ManualPrompt {
	return ManualPrompt{Type: "manual_prompt", Text: text}
}

func NewAssistantSpeechStart() AssistantSpeechStart {
	return AssistantSpeechStart{Type: "assistant_speech_start"}
}

func NewSpeechID(filename string, order int, text string) SpeechID {
	return SpeechID{Type: "speech_id", Filename: filename, Order: order, Text: text}
}

func NewSpeechSamples(samples []byte, order int, text string) SpeechSamples {
	return SpeechSamples{
		Type:    "speech_samples",
		Samples: base64.StdEncoding.EncodeToString(samples),
		Order:   order,
		Text:    text,
	}
}

func NewPromptDiscarded(text string) PromptDiscarded {
	return PromptDiscarded{Type: "prompt_discarded", Text: text}
}

func NewConfiguration(config any) Configuration {
	return Configuration{Type: "configuration", Config: config}
}
