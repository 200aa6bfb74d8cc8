package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/loquilabs/loqui/core/audio"
)

// Client streams microphone audio and plays synthesized samples through the
// default portaudio duplex stream.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	leftover []byte
	writeMu  sync.Mutex

	in  []int16
	out []int16
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// StartCapture reads microphone frames until ctx is done, invoking onAudio
// with little-endian 16-bit samples.
func (c *Client) StartCapture(ctx context.Context, onAudio func(chunk []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := c.stream.Read(); err != nil {
					continue
				}

				buf := bytes.Buffer{}
				binary.Write(&buf, binary.LittleEndian, c.in)
				onAudio(buf.Bytes())
			}
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	return c.stream.Stop()
}

// Play writes synthesized samples to the output side of the duplex stream in
// buffer-sized slices, carrying any remainder to the next call.
func (c *Client) Play(samples []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	frameBytes := c.bufferSize * 2
	samples = append(c.leftover, samples...)
	for i := range len(samples)/frameBytes + 1 {
		if (i+1)*frameBytes > len(samples) {
			c.leftover = make([]byte, len(samples)-i*frameBytes)
			copy(c.leftover, samples[i*frameBytes:])
			break
		}

		binary.Read(bytes.NewBuffer(samples[i*frameBytes:(i+1)*frameBytes]), binary.LittleEndian, c.out)
		c.stream.Write()
	}

	return nil
}

func (c *Client) AwaitDrain(context.Context) error {
	// Play writes synchronously, nothing is buffered beyond one frame.
	return nil
}

func (c *Client) ClearPlayback() {
	c.writeMu.Lock()
	c.leftover = nil
	c.writeMu.Unlock()
}

func (c *Client) Close() {
	c.stream.Close()
	portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.FormatLinear16,
	}
}
