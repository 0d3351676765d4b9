// internal/cw/tonebridge.go
package cw

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ColonelBlimp/cwdecoder/internal/dsp"
)

// DecodedEvent is what a ToneEventBridge hands to its callback: either a
// decoded character, a bare word space, or an unrecognized representation
// flagged via IsError.
type DecodedEvent struct {
	Character   byte
	IsWordSpace bool
	IsError     bool
	Timestamp   time.Time
	WPM         int
}

// DecodedCallback receives decoded events from a ToneEventBridge. It must
// be non-blocking and fast, matching the audio-path callback convention
// used elsewhere in this package.
type DecodedCallback func(DecodedEvent)

// ToneEventBridge adapts a dsp.Detector's tone-on/tone-off events into
// Receiver mark-begin/mark-end calls, and periodically polls the
// Receiver so that silence (which produces no edges of its own) still
// resolves into end-of-character and end-of-word boundaries.
type ToneEventBridge struct {
	receiver *Receiver
	callback DecodedCallback
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	// pendingMu guards pendingEmitted, which tracks whether the
	// currently-accumulating representation has already had its
	// character delivered to the callback. It is touched from both the
	// poll loop and HandleToneEvent (the audio/detector thread), so it
	// needs its own lock independent of mu's lifecycle bookkeeping.
	pendingMu      sync.Mutex
	pendingEmitted bool
}

// DefaultPollInterval is how often a running ToneEventBridge checks for a
// resolved representation in the absence of new tone events. It should be
// comfortably shorter than a dot at the fastest supported speed.
const DefaultPollInterval = 5 * time.Millisecond

// NewToneEventBridge constructs a bridge over an existing Receiver.
func NewToneEventBridge(r *Receiver, cb DecodedCallback) *ToneEventBridge {
	return &ToneEventBridge{
		receiver: r,
		callback: cb,
		interval: DefaultPollInterval,
	}
}

// SetPollInterval overrides the default poll interval. Must be called
// before Start.
func (b *ToneEventBridge) SetPollInterval(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interval = d
}

// HandleToneEvent is the dsp.ToneCallback entry point. Edge ordering
// errors (ErrOutOfOrder) are swallowed here: a bridge consuming live
// audio cannot refuse an edge the detector already committed to, so it
// resets the receiver's buffer and lets decoding resume from the next
// mark.
func (b *ToneEventBridge) HandleToneEvent(event dsp.ToneEvent) {
	var err error
	if event.ToneOn {
		// A mark that already resolved into a character at an
		// end-of-character gap leaves the receiver in StateEOCGap, which
		// NotifyMarkBegin rejects (it only accepts StateIdle/StateSpace).
		// The poll loop deliberately left the buffer uncleared so a
		// growing gap could still be reclassified as a word boundary; now
		// that a new mark has arrived, that window is closed.
		b.pendingMu.Lock()
		if b.pendingEmitted {
			b.receiver.ClearBuffer()
			b.pendingEmitted = false
		}
		b.pendingMu.Unlock()
		err = b.receiver.NotifyMarkBegin(event.Timestamp)
	} else {
		err = b.receiver.NotifyMarkEnd(event.Timestamp)
	}
	if errors.Is(err, ErrOutOfOrder) {
		b.receiver.ClearBuffer()
		b.pendingMu.Lock()
		b.pendingEmitted = false
		b.pendingMu.Unlock()
	}
}

// Start launches the background polling goroutine. Calling Start twice
// without an intervening Stop is a no-op.
func (b *ToneEventBridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true
	interval := b.interval
	go b.pollLoop(runCtx, interval)
}

func (b *ToneEventBridge) pollLoop(ctx context.Context, interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.poll(now)
		}
	}
}

// poll checks whether the receiver has a resolved representation and, if
// so, delivers it. A representation that resolves at an end-of-character
// gap is delivered once and the buffer is deliberately left uncleared
// (PollRepresentation keeps returning the same representation each poll
// while the receiver stays in StateEOCGap): only once the gap keeps
// growing into a word boundary, or a new mark begins (see
// HandleToneEvent), is the buffer actually cleared. This is what lets a
// gap that starts out looking like an inter-character space be
// reclassified as an inter-word space without losing the character that
// preceded it.
func (b *ToneEventBridge) poll(now time.Time) {
	result, err := b.receiver.PollCharacter(now)
	switch {
	case errors.Is(err, ErrTryAgain):
		return
	case errors.Is(err, ErrUnrecognizable):
		b.emit(DecodedEvent{IsError: true, Timestamp: now, WPM: b.receiver.CurrentWPM()})
		b.receiver.ClearBuffer()
		b.pendingMu.Lock()
		b.pendingEmitted = false
		b.pendingMu.Unlock()
		return
	case err != nil:
		return
	}

	b.pendingMu.Lock()
	alreadyEmitted := b.pendingEmitted
	b.pendingMu.Unlock()

	if !alreadyEmitted && result.Character != 0 {
		b.emit(DecodedEvent{
			Character: result.Character,
			IsError:   result.IsError,
			Timestamp: now,
			WPM:       b.receiver.CurrentWPM(),
		})
		b.pendingMu.Lock()
		b.pendingEmitted = true
		b.pendingMu.Unlock()
	}

	if result.IsEndOfWord {
		b.emit(DecodedEvent{IsWordSpace: true, IsError: result.IsError, Timestamp: now, WPM: b.receiver.CurrentWPM()})
		b.receiver.ClearBuffer()
		b.pendingMu.Lock()
		b.pendingEmitted = false
		b.pendingMu.Unlock()
	}
}

func (b *ToneEventBridge) emit(ev DecodedEvent) {
	if b.callback != nil {
		b.callback(ev)
	}
}

// Stop halts the polling goroutine and waits for it to exit.
func (b *ToneEventBridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	done := b.done
	b.running = false
	b.mu.Unlock()

	cancel()
	<-done
}
