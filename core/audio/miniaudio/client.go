package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/loquilabs/loqui/core/audio"
)

// Client bundles a malgo capture and playback device pair over one allocated
// miniaudio context.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	playback playbackDevice
	capture  captureDevice
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playback.init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := client.playback.start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	if err := client.capture.init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(chunk []byte)) error {
	return c.capture.start(onAudio)
}

func (c *Client) StopCapture() error { return c.capture.stop() }

// Play queues synthesized samples for the playback device.
func (c *Client) Play(samples []byte) error { return c.playback.enqueue(samples) }

// AwaitDrain blocks until the playback queue has emptied or ctx is done.
func (c *Client) AwaitDrain(ctx context.Context) error { return c.playback.awaitDrain(ctx) }

func (c *Client) ClearPlayback() { c.playback.clear() }

func (c *Client) Close() {
	_ = c.capture.uninit()
	_ = c.playback.uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.FormatLinear16,
	}
}
