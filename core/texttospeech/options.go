package texttospeech

import "github.com/loquilabs/loqui/core/audio"

// Voice describes a selectable synthesis voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
}

type SynthesisOptions struct {
	// Voice overrides the client's default voice for this request.
	Voice string
	// Speed scales the speaking rate, 1.0 being the voice's natural rate.
	Speed float64

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func WithSpeed(speed float64) SynthesisOption {
	return func(o *SynthesisOptions) {
		if speed <= 0 {
			return
		}
		o.Speed = speed
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
