// internal/gen/bridge.go
package gen

import (
	"time"

	"github.com/ColonelBlimp/cwdecoder/internal/cw"
)

// Bridge is the C7 key/edge bridge: it turns a Generator's tone
// boundaries into Receiver mark-begin/mark-end calls, letting a
// generator drive a receiver directly for self-test loopback (§4.7,
// §12's selftest subcommand). It is strictly optional — a Generator
// with no attached Bridge behaves exactly as before.
type Bridge struct {
	receiver *cw.Receiver
}

// NewBridge constructs a Bridge over an existing Receiver.
func NewBridge(r *cw.Receiver) *Bridge {
	return &Bridge{receiver: r}
}

// onMarkBegin is invoked by the consumer thread as a keyed tone starts.
func (b *Bridge) onMarkBegin() {
	_ = b.receiver.NotifyMarkBegin(time.Now())
}

// onMarkEnd is invoked by the consumer thread as a keyed tone finishes.
func (b *Bridge) onMarkEnd() {
	_ = b.receiver.NotifyMarkEnd(time.Now())
}
