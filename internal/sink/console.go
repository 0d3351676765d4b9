// internal/sink/console.go
package sink

import (
	"fmt"
	"io"
	"sync/atomic"
)

// ToneNotifier is an optional capability a sink may implement to receive
// tone frequency/on-off notifications directly, instead of (or in
// addition to) inferring tone state from sample buffers. internal/gen
// type-asserts for it before rendering each tone.
type ToneNotifier interface {
	NotifyTone(freqHz float64, keyed bool)
}

// ConsoleBeeper is the "console beeper" sink from §6: it carries no real
// audio, only tone-frequency and on/off state, printed as text. It is
// useful over an SSH session or any terminal without an audio device.
type ConsoleBeeper struct {
	out  io.Writer
	open atomic.Bool
}

// NewConsoleBeeper writes tone transitions to out.
func NewConsoleBeeper(out io.Writer) *ConsoleBeeper {
	return &ConsoleBeeper{out: out}
}

func (c *ConsoleBeeper) Open(device string) error {
	c.open.Store(true)
	return nil
}

// Write discards samples; ConsoleBeeper only cares about NotifyTone.
func (c *ConsoleBeeper) Write(samples []int16) (int, error) {
	if !c.open.Load() {
		return 0, ErrSinkClosed
	}
	return len(samples), nil
}

func (c *ConsoleBeeper) Close() error {
	c.open.Store(false)
	return nil
}

func (c *ConsoleBeeper) MinBufferSamples() int        { return 64 }
func (c *ConsoleBeeper) MaxBufferSamples() int        { return 4096 }
func (c *ConsoleBeeper) PreferredSampleRate() float64 { return 8000 }

// NotifyTone implements ToneNotifier.
func (c *ConsoleBeeper) NotifyTone(freqHz float64, keyed bool) {
	if keyed {
		fmt.Fprintf(c.out, "\a[tone %4.0fHz on]\n", freqHz)
	} else {
		fmt.Fprintln(c.out, "[tone off]")
	}
}
