// internal/sink/null.go
package sink

import (
	"sync/atomic"
	"time"
)

// Null discards every sample written to it but paces each Write to the
// wall-clock duration the buffer represents at PreferredSampleRate, so
// that the generator's key/edge bridge (§4.7) still observes real mark
// and space durations with no audio device present. It is the default
// sink for the selftest subcommand, where only tone timing matters.
type Null struct {
	open    atomic.Bool
	written atomic.Int64
}

// NewNull constructs a closed Null sink.
func NewNull() *Null {
	return &Null{}
}

func (n *Null) Open(device string) error {
	n.open.Store(true)
	return nil
}

func (n *Null) Write(samples []int16) (int, error) {
	if !n.open.Load() {
		return 0, ErrSinkClosed
	}
	time.Sleep(time.Duration(float64(len(samples)) / n.PreferredSampleRate() * float64(time.Second)))
	n.written.Add(int64(len(samples)))
	return len(samples), nil
}

func (n *Null) Close() error {
	n.open.Store(false)
	return nil
}

func (n *Null) MinBufferSamples() int        { return 64 }
func (n *Null) MaxBufferSamples() int        { return 8192 }
func (n *Null) PreferredSampleRate() float64 { return 48000 }

// Stats reports how many samples have been discarded so far.
func (n *Null) Stats() Stats {
	return Stats{SamplesWritten: n.written.Load()}
}
