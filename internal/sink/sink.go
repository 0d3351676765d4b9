// Package sink implements the audio-sink capability consumed by
// internal/gen: open a device, accept full buffers of 16-bit PCM
// samples, and close. Concrete sinks satisfy gen.Sink structurally;
// nothing in this package imports internal/gen.
package sink

import "errors"

// ErrSinkClosed is returned by Write on a sink that is not open; Close on
// such a sink returns nil.
var ErrSinkClosed = errors.New("sink: not open")

// Stats is a snapshot of what a sink has written, returned by Null.Stats.
// Null fills in SamplesWritten only; WriteErrors stays zero.
type Stats struct {
	SamplesWritten int64
	WriteErrors    int64
}
