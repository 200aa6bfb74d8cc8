package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/loquilabs/loqui/core/audio"
	"github.com/loquilabs/loqui/core/texttospeech"
)

const (
	defaultBaseURL = "http://localhost:8880"
	defaultVoice   = "af_heart"
)

// SynthesisClient talks to a Kokoro speech server over HTTP. Synthesis is
// request scoped, so a single client can serve concurrent sessions.
type SynthesisClient struct {
	baseURL string
	voice   string
	speed   float64

	httpClient *http.Client
}

type ClientOption func(*SynthesisClient)

// WithDefaultVoice sets the voice used when a request does not name one.
func WithDefaultVoice(voice string) ClientOption {
	return func(c *SynthesisClient) { c.voice = voice }
}

// WithDefaultSpeed sets the speaking rate used when a request does not set one.
func WithDefaultSpeed(speed float64) ClientOption {
	return func(c *SynthesisClient) {
		if speed > 0 {
			c.speed = speed
		}
	}
}

func NewSynthesisClient(baseURL string, opts ...ClientOption) *SynthesisClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &SynthesisClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		voice:   defaultVoice,
		speed:   1.0,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type synthesisRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Speed      float64 `json:"speed,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Encoding   string  `json:"encoding,omitempty"`
}

// Synthesize renders text into raw PCM samples in the requested encoding.
func (c *SynthesisClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	options := texttospeech.SynthesisOptions{
		Voice:        c.voice,
		Speed:        c.speed,
		EncodingInfo: audio.DefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	span.SetAttributes(attribute.String("request.voice", options.Voice))
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	reqBody := synthesisRequest{
		Text:       text,
		Voice:      options.Voice,
		Speed:      options.Speed,
		SampleRate: options.EncodingInfo.SampleRate,
		Encoding:   options.EncodingInfo.Format.Name(),
	}
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/synthesize", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return nil, err
	}

	samples, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("response.audio_bytes", len(samples)))

	return samples, nil
}

// streamChunkSize is the read granularity for streamed synthesis responses.
const streamChunkSize = 4096

// SynthesizeStream renders text and yields PCM chunks as the server sends
// them. The request is issued immediately; the iterator owns the response
// body and closes it when it stops.
func (c *SynthesisClient) SynthesizeStream(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) (func(func([]byte, error) bool), error) {
	ctx, span := tracer.Start(ctx, "synthesize speech stream")

	options := texttospeech.SynthesisOptions{
		Voice:        c.voice,
		Speed:        c.speed,
		EncodingInfo: audio.DefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	span.SetAttributes(attribute.String("request.voice", options.Voice))
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	reqBody := synthesisRequest{
		Text:       text,
		Voice:      options.Voice,
		Speed:      options.Speed,
		SampleRate: options.EncodingInfo.SampleRate,
		Encoding:   options.EncodingInfo.Format.Name(),
	}
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		span.End()
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/synthesize/stream", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.End()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.End()
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		resp.Body.Close()
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.End()
		return nil, err
	}

	return func(yield func([]byte, error) bool) {
		defer span.End()
		defer resp.Body.Close()

		total := 0
		buf := make([]byte, streamChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				total += n
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if err == io.EOF {
				span.SetAttributes(attribute.Int("response.audio_bytes", total))
				return
			}
			if err != nil {
				err = fmt.Errorf("error reading audio stream: %w", err)
				span.RecordError(err)
				yield(nil, err)
				return
			}
		}
	}, nil
}

// Voices lists the voices the server can synthesize with.
func (c *SynthesisClient) Voices(ctx context.Context) ([]texttospeech.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	var voices []texttospeech.Voice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("error decoding voices: %w", err)
	}
	return voices, nil
}

// HealthStatus reports whether the speech server is reachable.
func (c *SynthesisClient) HealthStatus(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}
	return nil
}
