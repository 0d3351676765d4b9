// internal/sink/malgo.go
package sink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("sink: playback not initialized")
	ErrAlreadyOpen     = errors.New("sink: playback already open")
)

// PlaybackConfig mirrors internal/audio.Config but for the playback
// direction: same device-index/sample-rate/channels/buffer-size shape,
// the mirror image of the teacher's capture configuration.
type PlaybackConfig struct {
	DeviceIndex int
	SampleRate  uint32
	Channels    uint32
	BufferSize  uint32
}

// DefaultPlaybackConfig returns sensible defaults for CW sidetone output.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		DeviceIndex: -1,
		SampleRate:  48000,
		Channels:    1,
		BufferSize:  512,
	}
}

// Playback is a malgo-backed audio-sink implementation: it owns a
// malgo.Device in playback mode and feeds it from a channel that
// Write populates, structurally satisfying gen.Sink.
type Playback struct {
	cfg PlaybackConfig

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	frames chan []int16

	open atomic.Bool
}

// NewPlayback constructs a Playback sink with cfg.
func NewPlayback(cfg PlaybackConfig) *Playback {
	return &Playback{cfg: cfg}
}

// Open initializes the malgo context and device and starts playback.
// device, if non-empty, selects a specific device by name; otherwise the
// default output device is used.
func (p *Playback) Open(device string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open.Load() {
		return ErrAlreadyOpen
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DeviceConfig{
		DeviceType:         malgo.Playback,
		SampleRate:         p.cfg.SampleRate,
		PeriodSizeInFrames: p.cfg.BufferSize,
		Playback: malgo.SubConfig{
			Format:   malgo.FormatS16,
			Channels: p.cfg.Channels,
		},
	}

	if device != "" {
		infos, derr := ctx.Devices(malgo.Playback)
		if derr == nil {
			for i := range infos {
				if infos[i].Name() == device {
					deviceConfig.Playback.DeviceID = infos[i].ID.Pointer()
					break
				}
			}
		}
	}

	frames := make(chan []int16, 4)
	onSendFrames := func(outputSamples, _ []byte, frameCount uint32) {
		want := int(frameCount) * int(p.cfg.Channels)
		var src []int16
		select {
		case src = <-frames:
		default:
		}
		for i := 0; i < want; i++ {
			var v int16
			if i < len(src) {
				v = src[i]
			}
			outputSamples[2*i] = byte(v)
			outputSamples[2*i+1] = byte(v >> 8)
		}
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start playback device: %w", err)
	}

	p.ctx = ctx
	p.device = dev
	p.frames = frames
	p.open.Store(true)
	return nil
}

// Write queues a copy of samples on the 4-buffer channel the playback
// callback drains, blocking only while that channel is full.
func (p *Playback) Write(samples []int16) (int, error) {
	if !p.open.Load() {
		return 0, ErrSinkClosed
	}
	cp := make([]int16, len(samples))
	copy(cp, samples)
	p.mu.Lock()
	ch := p.frames
	p.mu.Unlock()
	if ch == nil {
		return 0, ErrNotInitialized
	}
	ch <- cp
	return len(samples), nil
}

// Close stops and releases the playback device.
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open.Load() {
		return nil
	}
	p.open.Store(false)

	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	if p.ctx != nil {
		if err := p.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit audio context: %w", err)
		}
		p.ctx.Free()
		p.ctx = nil
	}
	if p.frames != nil {
		close(p.frames)
		p.frames = nil
	}
	return nil
}

func (p *Playback) MinBufferSamples() int { return int(p.cfg.BufferSize) / 4 }
func (p *Playback) MaxBufferSamples() int { return int(p.cfg.BufferSize) * 4 }
func (p *Playback) PreferredSampleRate() float64 {
	return float64(p.cfg.SampleRate)
}
