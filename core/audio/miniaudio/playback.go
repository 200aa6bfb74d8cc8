package miniaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/loquilabs/loqui/core/audio"
)

type playbackDevice struct {
	device *malgo.Device
	config malgo.DeviceConfig

	queued []byte

	mu      sync.Mutex
	queueMu sync.Mutex
}

func (p *playbackDevice) init(audioContext *malgo.AllocatedContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels
	sampleRate := uint32(audio.DefaultSampleRate)

	p.config = malgo.DefaultDeviceConfig(malgo.Playback)
	p.config.SampleRate = sampleRate
	p.config.Playback.Format = format
	p.config.Playback.Channels = uint32(channels)
	p.config.Alsa.NoMMap = 1
	p.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	p.config.Periods = 4

	var err error
	if p.device, err = malgo.InitDevice(
		audioContext.Context,
		p.config,
		malgo.DeviceCallbacks{Data: p.feed(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (p *playbackDevice) feed(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		p.queueMu.Lock()
		defer p.queueMu.Unlock()

		if len(p.queued) == 0 {
			return
		}

		if len(p.queued) < need {
			copy(pOutput, p.queued)
			p.queued = nil
			return
		}

		copy(pOutput, p.queued[:need])
		p.queued = p.queued[need:]
	}
}

func (p *playbackDevice) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (p *playbackDevice) enqueue(samples []byte) error {
	if p.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !p.device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	p.queued = append(p.queued, samples...)
	return nil
}

func (p *playbackDevice) awaitDrain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.queueMu.Lock()
			pending := len(p.queued)
			p.queueMu.Unlock()
			if pending == 0 {
				return nil
			}
		}
	}
}

func (p *playbackDevice) clear() {
	p.queueMu.Lock()
	p.queued = nil
	p.queueMu.Unlock()
}

func (p *playbackDevice) uninit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return fmt.Errorf("device not initialized")
	}

	p.device.Uninit()
	p.device = nil
	return nil
}
