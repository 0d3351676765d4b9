// Package gen implements the CW generator (C6): it turns characters and
// representations into tones on a bounded queue, consumed by a
// background worker that renders them through an audio sink.
package gen

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ColonelBlimp/cwdecoder/internal/cw"
	"github.com/ColonelBlimp/cwdecoder/internal/recovery"
	"github.com/ColonelBlimp/cwdecoder/internal/tone"
)

// Sink is the capability a Generator needs from an audio backend.
// internal/sink's Null, ConsoleBeeper, and Playback types all satisfy it
// structurally.
type Sink interface {
	Open(device string) error
	Write(samples []int16) (int, error)
	Close() error
	MinBufferSamples() int
	MaxBufferSamples() int
	PreferredSampleRate() float64
}

// Frequency bounds, matching the detector-facing tone_frequency range the
// teacher's config already validates.
const (
	FrequencyMinHz = 100.0
	FrequencyMaxHz = 3000.0
)

var (
	// ErrInvalidChar is returned when enqueuing a character absent from
	// the Morse table (and not the space character, which is legal).
	ErrInvalidChar = errors.New("gen: character not in Morse table")
	// ErrNotRunning is returned by Stop and the enqueue API when the
	// generator has not been started.
	ErrNotRunning = errors.New("gen: not running")
	// ErrAlreadyRunning is returned by Start when called twice.
	ErrAlreadyRunning = errors.New("gen: already running")
	// ErrSinkError is the sticky error surfaced after the consumer
	// thread observes a sink write failure (§7: "the consumer thread
	// converts sink errors into a generator-level sticky error").
	ErrSinkError = errors.New("gen: sink error")
)

// Generator is the owner of a tone queue, a synthesizer, and an audio
// sink. At most one consumer goroutine runs per Generator (§5).
type Generator struct {
	mu sync.Mutex

	params  cw.Params
	timings cw.SendTimings
	dirty   bool

	freqHz    float64
	volumeAbs float64
	bufferN   int

	queue *tone.Queue
	synth *tone.Synthesizer
	sink  Sink

	bridge *Bridge

	running bool
	wg      sync.WaitGroup
	sinkErr atomic.Value // error
}

// New constructs a Generator. queueCapacity bounds the tone queue;
// sampleRate/slopeLenUs/curve configure the synthesizer.
func New(sink Sink, queueCapacity int, sampleRate float64, slopeLenUs int64, curve tone.SlopeCurve, params cw.Params) (*Generator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		params:    params,
		dirty:     true,
		freqHz:    600,
		volumeAbs: 0.7,
		bufferN:   sink.MinBufferSamples(),
		queue:     tone.NewQueue(queueCapacity),
		synth:     tone.NewSynthesizer(sampleRate, slopeLenUs, curve),
		sink:      sink,
	}, nil
}

// AttachBridge wires a C7 key/edge bridge so that the consumer thread
// reports mark boundaries to b's receiver as tones are rendered.
func (g *Generator) AttachBridge(b *Bridge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bridge = b
}

func (g *Generator) ensureSyncedLocked() {
	if g.dirty {
		g.timings = cw.SyncSend(g.params)
		g.dirty = false
	}
}

// SetSpeed sets the send speed in WPM.
func (g *Generator) SetSpeed(wpm int) error { return g.setParam(func(p *cw.Params) { p.SpeedWPM = wpm }) }

// SetGap sets the additional inter-character gap, in units.
func (g *Generator) SetGap(units int) error { return g.setParam(func(p *cw.Params) { p.GapUnits = units }) }

// SetWeighting sets the send weighting percentage.
func (g *Generator) SetWeighting(pct int) error {
	return g.setParam(func(p *cw.Params) { p.WeightingPct = pct })
}

func (g *Generator) setParam(mutate func(*cw.Params)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.params
	mutate(&p)
	if err := p.Validate(); err != nil {
		return err
	}
	g.params = p
	g.dirty = true
	return nil
}

// SetFrequency sets the mark tone frequency in Hz.
func (g *Generator) SetFrequency(hz float64) error {
	if hz < FrequencyMinHz || hz > FrequencyMaxHz {
		return cw.ErrInvalidParameter
	}
	g.mu.Lock()
	g.freqHz = hz
	g.mu.Unlock()
	return nil
}

// SetVolume sets output volume as a percentage (0-100).
func (g *Generator) SetVolume(pct int) error {
	if pct < 0 || pct > 100 {
		return cw.ErrInvalidParameter
	}
	g.mu.Lock()
	g.volumeAbs = float64(pct) / 100
	g.mu.Unlock()
	return nil
}

// Start opens the audio device and spawns the consumer goroutine.
func (g *Generator) Start(device string) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrAlreadyRunning
	}
	if err := g.sink.Open(device); err != nil {
		g.mu.Unlock()
		return err
	}
	g.running = true
	g.wg.Add(1)
	g.mu.Unlock()

	go g.run()
	return nil
}

func (g *Generator) run() {
	defer g.wg.Done()
	// A panic mid-render must still unblock a producer stuck in
	// WaitForLevel and close the sink, rather than leaving both dangling
	// until os.Exit tears down the process.
	defer recovery.HandlePanicFunc(func() {
		g.queue.RequestStop()
		_ = g.sink.Close()
	})

	for {
		t, ok := g.queue.Dequeue()
		if !ok {
			return
		}

		g.mu.Lock()
		bridge := g.bridge
		volumeAbs := g.volumeAbs
		bufferN := g.bufferN
		g.mu.Unlock()

		keyed := t.Keyed()
		if bridge != nil && keyed {
			bridge.onMarkBegin()
		}

		if notifier, ok := g.sink.(interface{ NotifyTone(float64, bool) }); ok {
			notifier.NotifyTone(t.FrequencyHz, keyed)
		}

		if err := g.synth.Render(t, volumeAbs, bufferN, g.sink); err != nil {
			g.sinkErr.Store(err)
			if bridge != nil && keyed {
				bridge.onMarkEnd()
			}
			return
		}

		if bridge != nil && keyed {
			bridge.onMarkEnd()
		}
	}
}

// Err returns the sticky sink error observed by the consumer thread, if
// any.
func (g *Generator) Err() error {
	if v := g.sinkErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Stop signals the consumer thread to exit once the queue drains, waits
// for it to join, and closes the sink.
func (g *Generator) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return ErrNotRunning
	}
	g.mu.Unlock()

	g.queue.WaitForLevel(0)
	g.queue.RequestStop()
	g.wg.Wait()

	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	return g.sink.Close()
}

// Flush clears any queued tones without interrupting an in-progress one.
func (g *Generator) Flush() {
	g.queue.Flush()
}

// QueueLength returns the number of tones currently queued.
func (g *Generator) QueueLength() int { return g.queue.Length() }

// enqueueRepresentation enqueues a mark/silence tone pair per element of
// rep, using finalDelay for the silence following the last element
// (§4.6).
func (g *Generator) enqueueRepresentation(rep string, finalDelay int64) error {
	g.mu.Lock()
	g.ensureSyncedLocked()
	timings := g.timings
	freq := g.freqHz
	g.mu.Unlock()

	for i := 0; i < len(rep); i++ {
		var toneLen int64
		if rep[i] == '.' {
			toneLen = timings.DotLength
		} else {
			toneLen = timings.DashLength
		}
		if err := g.queue.Enqueue(tone.Mark(freq, toneLen)); err != nil {
			return err
		}

		delay := timings.EoeDelay
		if i == len(rep)-1 {
			delay = finalDelay
		}
		if err := g.queue.Enqueue(tone.Silence(delay)); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueCharacter validates c via the Morse table and enqueues its
// tones. The space character is legal and enqueues inter-word silence.
func (g *Generator) EnqueueCharacter(c byte) error {
	if c == ' ' {
		g.mu.Lock()
		g.ensureSyncedLocked()
		delay := g.timings.EowDelay
		g.mu.Unlock()
		return g.queue.Enqueue(tone.Silence(delay))
	}

	rep, ok := cw.CharacterToRepresentation(c)
	if !ok {
		return ErrInvalidChar
	}

	g.mu.Lock()
	g.ensureSyncedLocked()
	finalDelay := g.timings.EocDelay
	g.mu.Unlock()
	return g.enqueueRepresentation(rep, finalDelay)
}

// EnqueueRepresentation enqueues tones for an explicit dot/dash
// representation rather than looking one up by character.
func (g *Generator) EnqueueRepresentation(rep string) error {
	if !cw.RepresentationIsValid(rep) {
		return ErrInvalidChar
	}
	g.mu.Lock()
	g.ensureSyncedLocked()
	finalDelay := g.timings.EocDelay
	g.mu.Unlock()
	return g.enqueueRepresentation(rep, finalDelay)
}

// EnqueueString enqueues every character of s, uppercased, extending the
// final inter-character silence of each word to eow_delay.
func (g *Generator) EnqueueString(s string) error {
	words := strings.Fields(strings.ToUpper(s))
	for wi, word := range words {
		for ci := 0; ci < len(word); ci++ {
			g.mu.Lock()
			g.ensureSyncedLocked()
			finalDelay := g.timings.EocDelay
			if ci == len(word)-1 && wi < len(words)-1 {
				finalDelay = g.timings.EowDelay
			}
			g.mu.Unlock()

			rep, ok := cw.CharacterToRepresentation(word[ci])
			if !ok {
				return ErrInvalidChar
			}
			if err := g.enqueueRepresentation(rep, finalDelay); err != nil {
				return err
			}
		}
	}
	return nil
}
