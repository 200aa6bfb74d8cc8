package deepgram

import (
	"fmt"

	"github.com/loquilabs/loqui/core/audio"
)

// convertEncoding validates that the pipeline encoding is one deepgram's
// listen endpoint accepts.
func convertEncoding(encoding audio.EncodingInfo) (*audio.EncodingInfo, error) {
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return nil, fmt.Errorf("unsupported sample rate")
	}

	switch encoding.Format {
	case audio.FormatLinear16:
	case audio.FormatALaw, audio.FormatMulaw:
		if encoding.SampleRate != 8000 {
			return nil, fmt.Errorf("unsupported sample rate for %s encoding", encoding.Format.Name())
		}
	default:
		return nil, fmt.Errorf("unsupported encoding")
	}

	return &encoding, nil
}
