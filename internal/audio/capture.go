// internal/audio/capture.go
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio capture not initialized")
	ErrAlreadyRunning = errors.New("audio capture already running")
	ErrNotRunning     = errors.New("audio capture not running")
)

// Config holds audio capture configuration
type Config struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 48000
	Channels    uint32 // 1 for mono, 2 for stereo
	BufferSize  uint32 // frames per callback
}

// DefaultConfig returns sensible defaults for CW decoding
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  48000,
		Channels:    1,
		BufferSize:  512,
	}
}

// SampleCallback is called directly from the audio thread with new samples.
// Use for low-latency processing. Must be non-blocking and fast.
type SampleCallback func(samples []float32)

// Capture handles real-time audio sampling from a USB audio device.
// callbackPtr is read from the malgo audio thread on every frame, so it
// (like running) is an atomic rather than a field behind mu: mu only
// guards the slower-moving ctx/device lifecycle.
type Capture struct {
	config Config
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	mu     sync.RWMutex

	running     atomic.Bool
	callbackPtr atomic.Pointer[SampleCallback]

	// closed is set before Samples is closed so the audio thread's
	// send path can check it without racing closeOnce.
	closed    atomic.Bool
	closeOnce sync.Once

	// Output channel for audio samples (float32 normalized -1.0 to 1.0)
	Samples chan []float32
}

// New creates a new audio capture instance
func New(cfg Config) *Capture {
	return &Capture{
		config:  cfg,
		Samples: make(chan []float32, 64),
	}
}

// SetCallback sets a callback for real-time sample processing.
// The callback is invoked directly from the audio thread - it must be
// non-blocking and fast. Set before calling Start().
func (c *Capture) SetCallback(cb SampleCallback) {
	if cb == nil {
		c.callbackPtr.Store(nil)
	} else {
		c.callbackPtr.Store(&cb)
	}
}

// Init initializes the audio backend
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctxConfig := malgo.ContextConfig{}
	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	c.ctx = ctx

	return nil
}

// ListDevices returns available capture devices
func (c *Capture) ListDevices() ([]malgo.DeviceInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	return infos, nil
}

// Start begins audio capture
func (c *Capture) Start(ctx context.Context) error {
	if c.running.Load() {
		return ErrAlreadyRunning
	}
	c.mu.RLock()
	initialized := c.ctx != nil
	c.mu.RUnlock()
	if !initialized {
		return ErrNotInitialized
	}

	deviceConfig := malgo.DeviceConfig{
		DeviceType:         malgo.Capture,
		SampleRate:         c.config.SampleRate,
		PeriodSizeInFrames: c.config.BufferSize,
		Capture: malgo.SubConfig{
			Format:   malgo.FormatF32,
			Channels: c.config.Channels,
		},
	}

	// Select specific device if requested
	var deviceID *malgo.DeviceID
	if c.config.DeviceIndex >= 0 {
		devices, err := c.ListDevices()
		if err != nil {
			return err
		}
		if c.config.DeviceIndex >= len(devices) {
			return fmt.Errorf("device index %d out of range (have %d devices)",
				c.config.DeviceIndex, len(devices))
		}
		deviceID = &devices[c.config.DeviceIndex].ID
	}

	// Callback receives audio data
	onRecvFrames := func(outputSamples, inputSamples []byte, frameCount uint32) {
		// bytesAsFloat32 reinterprets the driver's own buffer rather than
		// copying - the driver owns it until this call returns, which is
		// exactly the lifetime cb needs and no longer.
		samples := bytesAsFloat32(inputSamples)
		if samples == nil {
			return
		}

		if cbPtr := c.callbackPtr.Load(); cbPtr != nil {
			(*cbPtr)(samples)
		}

		// The channel send outlives this callback, so it needs its own
		// copy rather than the aliased driver buffer.
		c.safeSend(copyFloat32Slice(samples))
	}

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: onRecvFrames,
	}

	c.mu.RLock()
	malgoCtx := c.ctx.Context
	c.mu.RUnlock()

	device, err := malgo.InitDevice(malgoCtx, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	// Set device ID if specified
	if deviceID != nil {
		deviceConfig.Capture.DeviceID = deviceID.Pointer()
		// Reinitialize with specific device
		device.Uninit()
		device, err = malgo.InitDevice(malgoCtx, deviceConfig, deviceCallbacks)
		if err != nil {
			return fmt.Errorf("init device with ID: %w", err)
		}
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	c.mu.Lock()
	c.device = device
	c.mu.Unlock()
	c.running.Store(true)

	// Wait for context cancellation
	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return nil
}

// Stop stops audio capture
func (c *Capture) Stop() error {
	if !c.running.Load() {
		return ErrNotRunning
	}

	c.mu.Lock()
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	c.mu.Unlock()

	c.running.Store(false)
	return nil
}

// Close releases all audio resources
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.running.Load() && c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	c.running.Store(false)

	var uninitErr error
	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			uninitErr = fmt.Errorf("uninit context: %w", err)
		} else {
			c.ctx.Free()
		}
		c.ctx = nil
	}
	c.mu.Unlock()

	// closed is set before the channel is actually closed so a
	// concurrent safeSend sees it in time to skip the send rather than
	// racing the close.
	c.closed.Store(true)
	c.closeOnce.Do(func() {
		close(c.Samples)
	})
	return uninitErr
}

// safeSend delivers samples to Samples without blocking the audio
// thread and without panicking if Close ran concurrently. The closed
// check and the recover are both needed: the check avoids the common
// case, the recover catches the race where Close closes the channel
// between the check and the send.
func (c *Capture) safeSend(samples []float32) {
	if c.closed.Load() {
		return
	}
	defer func() {
		_ = recover()
	}()
	select {
	case c.Samples <- samples:
	default:
		// Drop samples if channel is full (consumer too slow)
	}
}

// IsRunning returns true if capture is active
func (c *Capture) IsRunning() bool {
	return c.running.Load()
}

// SamplesPerDot returns how many audio frames make up one dot duration
// (1,200,000/wpm microseconds) at the capture's configured sample rate.
// cmd/receive.go compares this against BufferSize at startup: a buffer
// much longer than a dot means the detector only ever sees whole marks
// smeared together rather than their edges.
func (c *Capture) SamplesPerDot(wpm int) int {
	if wpm <= 0 {
		wpm = 20
	}
	dotSeconds := 1.2 / float64(wpm)
	return int(dotSeconds * float64(c.config.SampleRate))
}

// bytesToFloat32 converts raw little-endian bytes to float32 samples,
// allocating a new slice. Used where the result must outlive the
// source buffer without a separate copy step.
func bytesToFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	samples := make([]float32, numSamples)

	for i := 0; i < numSamples; i++ {
		offset := i * 4
		bits := uint32(data[offset]) |
			uint32(data[offset+1])<<8 |
			uint32(data[offset+2])<<16 |
			uint32(data[offset+3])<<24
		samples[i] = float32frombits(bits)
	}

	return samples
}

// float32frombits converts IEEE 754 binary representation to float32
func float32frombits(b uint32) float32 {
	return *(*float32)(unsafe.Pointer(&b))
}

// bytesAsFloat32 reinterprets data as a []float32 in place, with no
// allocation or copy. malgo delivers F32 frames already in the
// platform's native layout, so this is a straight reinterpretation
// rather than a decode. The result aliases data and must not be
// retained past the caller's use of data.
func bytesAsFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	if numSamples == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), numSamples)
}

// copyFloat32Slice returns an independent copy of samples, for callers
// that need to retain data beyond the lifetime of an aliased buffer
// returned by bytesAsFloat32.
func copyFloat32Slice(samples []float32) []float32 {
	if samples == nil {
		return nil
	}
	out := make([]float32, len(samples))
	copy(out, samples)
	return out
}
