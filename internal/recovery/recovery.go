// internal/recovery/recovery.go
package recovery

import (
	"os"
	"runtime/debug"

	"github.com/ColonelBlimp/cwdecoder/internal/logging"
)

// HandlePanic should be deferred at the top of main() or a background
// goroutine. It routes the panic and its stack trace through the
// package's own logger (component "recovery") rather than writing
// directly to stderr, so a panic in, say, the generator's consumer
// goroutine lands in the same rotated log file as everything else the
// run produced, and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		logging.Errorf("recovery", "panic: %v\nStack trace:\n%s", r, debug.Stack())
		os.Exit(1)
	}
}

// HandlePanicFunc behaves like HandlePanic but runs cleanup after logging
// and before exiting, for a
// goroutine that owns a resource — a tone queue consumer that needs to
// unblock its producer, an audio sink that needs closing — which must
// not be left dangling when the process exits.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		logging.Errorf("recovery", "panic: %v\nStack trace:\n%s", r, debug.Stack())
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
}
