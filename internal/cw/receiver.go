// internal/cw/receiver.go
package cw

import (
	"errors"
	"sync"
	"time"
)

// State is one of the receiver's seven lifecycle states (§3, §4.3).
type State int

const (
	StateIdle State = iota
	StateMark
	StateSpace
	StateEOCGap
	StateEOWGap
	StateEOCGapErr
	StateEOWGapErr
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMark:
		return "mark"
	case StateSpace:
		return "space"
	case StateEOCGap:
		return "eoc-gap"
	case StateEOWGap:
		return "eow-gap"
	case StateEOCGapErr:
		return "eoc-gap-error"
	case StateEOWGapErr:
		return "eow-gap-error"
	default:
		return "unknown"
	}
}

var (
	// ErrOutOfOrder is returned when a mark-begin/mark-end/add-dot/
	// add-dash call arrives while the receiver is in a state that does
	// not permit it. It is never retried automatically.
	ErrOutOfOrder = errors.New("cw: edge received out of order")
	// ErrBufferFull is returned when a recognized mark fills the last
	// slot of the representation buffer; that mark is kept, and no
	// further mark is accepted. The receiver has already transitioned
	// to StateEOCGapErr; callers recover with ClearBuffer.
	ErrBufferFull = errors.New("cw: representation buffer full")
	// ErrMarkUnrecognized is returned when a mark's duration falls
	// outside both the dot and dash ranges.
	ErrMarkUnrecognized = errors.New("cw: mark duration unrecognized")
	// ErrUnrecognizable is returned by PollCharacter when the
	// accumulated representation has no character in the Morse table.
	// Callers typically emit a placeholder and call ClearBuffer.
	ErrUnrecognizable = errors.New("cw: representation has no matching character")
	// ErrTryAgain is an informational result: the receiver has nothing
	// ready yet. A well-behaved caller polls again later.
	ErrTryAgain = errors.New("cw: try again")
	// ErrNoise is an informational result: notify_mark_end suppressed a
	// mark shorter than the configured noise spike threshold. State was
	// restored to what it was before the mark began.
	ErrNoise = errors.New("cw: mark suppressed as noise")
)

// PollResult is the outcome of PollRepresentation: the accumulated
// dot/dash representation, whether it was terminated by a word gap
// rather than a character gap, and whether the receiver is in one of the
// two recovered-from-error states.
type PollResult struct {
	Representation string
	IsEndOfWord    bool
	IsError        bool
}

// CharResult is the outcome of PollCharacter. Character is 0 when the
// polled representation was empty (an unrecognized mark with nothing
// else buffered).
type CharResult struct {
	Character   byte
	IsEndOfWord bool
	IsError     bool
}

// Receiver is the CW receive-side state machine (C3): it consumes
// keying edges with timestamps and produces representations and
// characters. A Receiver is single-owner; its public methods are not
// expected to be called concurrently on the same instance (§5), but the
// mutex below makes the common case of one producer goroutine and one
// polling goroutine safe without the caller having to reason about it.
type Receiver struct {
	mu sync.Mutex

	params  Params
	timings ReceiveTimings
	dirty   bool

	state State

	repBuf [MaxRepLen]byte
	repLen int

	markStart     time.Time
	markEnd       time.Time
	lastEventTime time.Time

	dotAvg  movingAverage
	dashAvg movingAverage
	stats   statRing
}

// NewReceiver constructs a Receiver with the given parameters.
func NewReceiver(params Params) (*Receiver, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Receiver{
		params: params,
		dirty:  true,
		state:  StateIdle,
	}, nil
}

// ensureSynced recomputes derived timings if a setter has marked the
// receiver dirty (Invariant P1).
func (r *Receiver) ensureSynced() {
	if r.dirty {
		r.timings = SyncReceive(r.params)
		r.dirty = false
	}
}

// SetSpeed sets the fixed-mode speed. It is an error to call this while
// adaptive mode is enabled.
func (r *Receiver) SetSpeed(wpm int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.params.AdaptiveMode {
		return ErrAdaptiveConflict
	}
	p := r.params
	p.SpeedWPM = wpm
	if err := p.Validate(); err != nil {
		return err
	}
	r.params = p
	r.dirty = true
	return nil
}

// SetTolerance sets the fixed-mode tolerance percentage.
func (r *Receiver) SetTolerance(pct int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.params
	p.TolerancePct = pct
	if err := p.Validate(); err != nil {
		return err
	}
	r.params = p
	r.dirty = true
	return nil
}

// SetGap sets the additional inter-character gap, in units.
func (r *Receiver) SetGap(units int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.params
	p.GapUnits = units
	if err := p.Validate(); err != nil {
		return err
	}
	r.params = p
	r.dirty = true
	return nil
}

// SetNoiseSpikeThreshold sets the minimum mark duration (µs) that will
// not be treated as noise.
func (r *Receiver) SetNoiseSpikeThreshold(us int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if us < 0 {
		return ErrInvalidParameter
	}
	r.params.NoiseSpikeThresholdUs = us
	r.dirty = true
	return nil
}

// SetAdaptiveMode turns the adaptive speed tracker on or off.
func (r *Receiver) SetAdaptiveMode(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params.AdaptiveMode = enabled
	r.dirty = true
}

// CurrentWPM returns the receiver's current speed estimate.
func (r *Receiver) CurrentWPM() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params.SpeedWPM
}

// Stddev returns the standard deviation (µs) of observed-minus-ideal
// deltas recorded for kind.
func (r *Receiver) Stddev(kind StatKind) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats.stddev(kind)
}

// State returns the receiver's current lifecycle state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// resolveTimestamp takes "now" when t is the zero value, as the spec's
// "if t is null, take now" rule requires.
func resolveTimestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// NotifyMarkBegin records the start of a mark (key-down edge).
func (r *Receiver) NotifyMarkBegin(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle && r.state != StateSpace {
		return ErrOutOfOrder
	}

	ts := resolveTimestamp(t)
	if !r.lastEventTime.IsZero() && ts.Before(r.lastEventTime) {
		return ErrOutOfOrder
	}

	r.ensureSynced()

	if r.state == StateSpace {
		spaceLen := ts.Sub(r.markEnd).Microseconds()
		r.stats.record(StatInterMarkSpace, spaceLen, r.timings.UnitUs)
	}

	r.markStart = ts
	r.lastEventTime = ts
	r.state = StateMark
	return nil
}

// NotifyMarkEnd records the end of a mark (key-up edge) and classifies
// it as a dot or dash.
func (r *Receiver) NotifyMarkEnd(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateMark {
		return ErrOutOfOrder
	}

	ts := resolveTimestamp(t)
	if ts.Before(r.markStart) {
		return ErrOutOfOrder
	}

	r.ensureSynced()
	markLen := ts.Sub(r.markStart).Microseconds()

	if r.params.NoiseSpikeThresholdUs > 0 && markLen <= r.params.NoiseSpikeThresholdUs {
		if r.repLen == 0 {
			r.state = StateIdle
		} else {
			r.state = StateSpace
		}
		return ErrNoise
	}

	sym, ok := identifyMark(markLen, r.timings)
	if !ok {
		if markLen > r.timings.EocMax {
			r.state = StateEOWGapErr
		} else {
			r.state = StateEOCGapErr
		}
		return ErrMarkUnrecognized
	}

	r.recordMarkStat(sym, markLen)

	if r.params.AdaptiveMode {
		r.updateAdaptiveSpeed()
	}

	// The mark is recorded before the capacity check, not instead of it:
	// a mark that fills the last slot is still a real mark and stays in
	// the representation, it just can't be followed by another one until
	// the buffer is cleared (matching libcw_rec.c's
	// representation[ind++] = mark, then check-and-fail-if-full order).
	r.repBuf[r.repLen] = sym
	r.repLen++
	r.markEnd = ts
	r.lastEventTime = ts

	if r.repLen >= MaxRepLen {
		r.state = StateEOCGapErr
		return ErrBufferFull
	}

	r.state = StateSpace
	return nil
}

// identifyMark classifies a mark duration against the current receive
// timings (§4.3 "identify_mark").
func identifyMark(markLenUs int64, t ReceiveTimings) (byte, bool) {
	if markLenUs >= t.DotMin && markLenUs <= t.DotMax {
		return '.', true
	}
	if markLenUs >= t.DashMin && markLenUs <= t.DashMax {
		return '-', true
	}
	return 0, false
}

func (r *Receiver) recordMarkStat(sym byte, markLenUs int64) {
	if sym == '.' {
		r.stats.record(StatDot, markLenUs, r.timings.UnitUs)
		r.dotAvg.add(markLenUs)
	} else {
		r.stats.record(StatDash, markLenUs, 3*r.timings.UnitUs)
		r.dashAvg.add(markLenUs)
	}
}

// updateAdaptiveSpeed recomputes the adaptive threshold from the dot/dash
// moving averages and re-derives speed_wpm from it, clamped to
// [SpeedMinWPM, SpeedMaxWPM]. The timings table is resynchronized twice,
// matching the source's own re-sync-twice behavior (§4.3); SyncReceive is
// pure, so the second call is a verified no-op rather than a correction.
func (r *Receiver) updateAdaptiveSpeed() {
	avgDot := r.dotAvg.average(r.timings.UnitUs)
	avgDash := r.dashAvg.average(3 * r.timings.UnitUs)
	threshold := avgDot + (avgDash-avgDot)/2

	r.params.adaptiveThresholdUs = threshold
	r.params.SpeedWPM = SpeedFromAdaptiveThreshold(threshold)

	r.dirty = true
	r.ensureSynced()
	r.dirty = true
	r.ensureSynced()
}

// AddDot appends a synthetic dot without going through mark timing, used
// by paddle/keyer front ends that already know the symbol.
func (r *Receiver) AddDot(t time.Time) error {
	return r.addSymbol('.', t)
}

// AddDash appends a synthetic dash without going through mark timing.
func (r *Receiver) AddDash(t time.Time) error {
	return r.addSymbol('-', t)
}

func (r *Receiver) addSymbol(sym byte, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle && r.state != StateSpace {
		return ErrOutOfOrder
	}

	ts := resolveTimestamp(t)
	r.repBuf[r.repLen] = sym
	r.repLen++
	r.markEnd = ts
	r.lastEventTime = ts

	if r.repLen >= MaxRepLen {
		r.state = StateEOCGapErr
		return ErrBufferFull
	}

	r.state = StateSpace
	return nil
}

// currentRep returns the accumulated representation as a string. Caller
// must hold r.mu.
func (r *Receiver) currentRep() string {
	return string(r.repBuf[:r.repLen])
}

// PollRepresentation reports the accumulated representation once enough
// silence has elapsed to classify it as an end-of-character or
// end-of-word gap (§4.3).
func (r *Receiver) PollRepresentation(now time.Time) (PollResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureSynced()
	ts := resolveTimestamp(now)

	switch r.state {
	case StateIdle, StateMark:
		return PollResult{}, ErrTryAgain

	case StateEOWGap:
		return PollResult{Representation: r.currentRep(), IsEndOfWord: true}, nil

	case StateEOWGapErr:
		return PollResult{Representation: r.currentRep(), IsEndOfWord: true, IsError: true}, nil

	case StateSpace, StateEOCGap, StateEOCGapErr:
		return r.classifySpace(ts)

	default:
		return PollResult{}, ErrTryAgain
	}
}

// classifySpace implements the space-length branch of §4.3's
// poll_representation. Caller must hold r.mu.
func (r *Receiver) classifySpace(now time.Time) (PollResult, error) {
	spaceLen := now.Sub(r.markEnd).Microseconds()

	switch {
	case spaceLen < r.timings.EocMin:
		return PollResult{}, ErrTryAgain

	case spaceLen <= r.timings.EocMax:
		wasSpace := r.state == StateSpace
		if wasSpace {
			r.stats.record(StatInterCharSpace, spaceLen, 3*r.timings.UnitUs)
			r.state = StateEOCGap
		}
		return PollResult{
			Representation: r.currentRep(),
			IsEndOfWord:    false,
			IsError:        r.state == StateEOCGapErr,
		}, nil

	default: // spaceLen > EocMax: end of word
		switch r.state {
		case StateSpace, StateEOCGap:
			r.state = StateEOWGap
		case StateEOCGapErr:
			r.state = StateEOWGapErr
		}
		return PollResult{
			Representation: r.currentRep(),
			IsEndOfWord:    true,
			IsError:        r.state == StateEOWGapErr,
		}, nil
	}
}

// PollCharacter composes PollRepresentation with the reverse Morse
// lookup.
func (r *Receiver) PollCharacter(now time.Time) (CharResult, error) {
	pr, err := r.PollRepresentation(now)
	if err != nil {
		return CharResult{}, err
	}

	if pr.Representation == "" {
		return CharResult{Character: 0, IsEndOfWord: pr.IsEndOfWord, IsError: pr.IsError}, nil
	}

	c, ok := RepresentationToCharacter(pr.Representation)
	if !ok {
		return CharResult{Character: '?', IsEndOfWord: pr.IsEndOfWord, IsError: true}, ErrUnrecognizable
	}
	return CharResult{Character: c, IsEndOfWord: pr.IsEndOfWord, IsError: pr.IsError}, nil
}

// ClearBuffer resets the representation buffer and returns to StateIdle,
// preserving accumulated statistics (§4.3).
func (r *Receiver) ClearBuffer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repLen = 0
	r.state = StateIdle
}

// Reset performs a full reset, including statistics and adaptive
// tracking.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repLen = 0
	r.state = StateIdle
	r.markStart = time.Time{}
	r.markEnd = time.Time{}
	r.lastEventTime = time.Time{}
	r.dotAvg.reset()
	r.dashAvg.reset()
	r.stats.reset()
	r.params.adaptiveThresholdUs = 0
	r.dirty = true
}
