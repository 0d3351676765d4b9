// internal/cw/timing.go
package cw

import (
	"errors"
	"math"
)

// DotCalibration is the constant used to convert between WPM and dot
// duration in microseconds: dot_us = DotCalibration / wpm. It is derived
// from the reference word "PARIS", which is defined as 50 dot-units.
const DotCalibration = 1_200_000

// DitsPerWord is the number of dot-units in the reference word "PARIS",
// used only for documentation of DotCalibration's derivation and by
// callers that want to convert a WPM speed into a duration directly.
const DitsPerWord = 50

// Speed bounds (§3).
const (
	SpeedMinWPM = 5
	SpeedMaxWPM = 60
)

// Other parameter bounds (§3).
const (
	ToleranceMinPct = 0
	ToleranceMaxPct = 90
	GapMinUnits     = 0
	GapMaxUnits     = 60
	WeightingMinPct = 20
	WeightingMaxPct = 80
)

// Infinite stands in for "no upper bound" on dash_max in adaptive mode.
// It is large enough that no real mark duration will ever reach it, but
// finite so arithmetic on it never overflows.
const Infinite = math.MaxInt64 / 4

var (
	// ErrInvalidParameter is returned when a timing parameter setter is
	// given a value outside its documented range.
	ErrInvalidParameter = errors.New("cw: invalid parameter")
	// ErrAdaptiveConflict is returned when a caller tries to set the
	// receive speed directly while adaptive mode is enabled.
	ErrAdaptiveConflict = errors.New("cw: cannot set speed while adaptive mode is enabled")
)

// Params holds the timing inputs shared by the receive and send
// synchronizers. A single Params value is owned by one Receiver or one
// Generator; the two components never share an instance (§3: "per
// generator and per receiver, independent values").
type Params struct {
	SpeedWPM     int
	TolerancePct int
	GapUnits     int

	// WeightingPct only affects the send-side synchronizer.
	WeightingPct int

	// NoiseSpikeThresholdUs and AdaptiveMode only affect the
	// receive-side synchronizer.
	NoiseSpikeThresholdUs int64
	AdaptiveMode          bool

	// adaptiveThresholdUs is derived by the receiver's adaptive tracker
	// (see receiver.go) and feeds back into SyncReceive when
	// AdaptiveMode is set.
	adaptiveThresholdUs int64
}

// DefaultParams returns a Params value with commonly-used defaults: 20
// WPM, 50% tolerance, a 2-unit gap, and neutral (50%) weighting.
func DefaultParams() Params {
	return Params{
		SpeedWPM:     20,
		TolerancePct: 50,
		GapUnits:     2,
		WeightingPct: 50,
	}
}

// Validate checks that every field is within its documented range.
func (p Params) Validate() error {
	if p.SpeedWPM < SpeedMinWPM || p.SpeedWPM > SpeedMaxWPM {
		return ErrInvalidParameter
	}
	if p.TolerancePct < ToleranceMinPct || p.TolerancePct > ToleranceMaxPct {
		return ErrInvalidParameter
	}
	if p.GapUnits < GapMinUnits || p.GapUnits > GapMaxUnits {
		return ErrInvalidParameter
	}
	if p.WeightingPct != 0 && (p.WeightingPct < WeightingMinPct || p.WeightingPct > WeightingMaxPct) {
		return ErrInvalidParameter
	}
	if p.NoiseSpikeThresholdUs < 0 {
		return ErrInvalidParameter
	}
	return nil
}

// unitUs returns the dot/unit duration in microseconds for the current
// speed.
func (p Params) unitUs() int64 {
	return DotCalibration / int64(p.SpeedWPM)
}

// ReceiveTimings are the derived classification bounds consumed by
// identifyMark and Receiver.classifySpace. All values are in
// microseconds.
type ReceiveTimings struct {
	UnitUs                        int64
	DotMin, DotMax                int64
	DashMin, DashMax              int64
	EomMin, EomMax                int64
	EocMin, EocMax                int64
	AdaptiveSpeedThresholdUs      int64
}

// SyncReceive derives a ReceiveTimings from p. It is a pure function of
// its input and is idempotent: calling it twice with the same p (and the
// same adaptiveThresholdUs) yields identical results (§4.2).
func SyncReceive(p Params) ReceiveTimings {
	unit := p.unitUs()
	dotIdeal := unit
	dashIdeal := 3 * unit

	if p.AdaptiveMode {
		threshold := p.adaptiveThresholdUs
		if threshold <= 0 {
			// Not yet tracked: fall back to the ideal split implied by
			// the configured speed so early classifications are sane.
			threshold = 2 * dotIdeal
		}
		dotMax := 2 * dotIdeal
		return ReceiveTimings{
			UnitUs:                   unit,
			DotMin:                   0,
			DotMax:                   dotMax,
			DashMin:                  dotMax,
			DashMax:                  Infinite,
			EomMin:                   0,
			EomMax:                   dotMax,
			EocMin:                   dotMax,
			EocMax:                   5 * dotIdeal,
			AdaptiveSpeedThresholdUs: threshold,
		}
	}

	tol := int64(p.TolerancePct)
	dotSpread := dotIdeal * tol / 100
	dashSpread := dashIdeal * tol / 100

	dotMin, dotMax := dotIdeal-dotSpread, dotIdeal+dotSpread
	dashMin, dashMax := dashIdeal-dashSpread, dashIdeal+dashSpread

	additionalDelay := int64(p.GapUnits) * unit
	adjustmentDelay := (7 * additionalDelay) / 3

	return ReceiveTimings{
		UnitUs:  unit,
		DotMin:  dotMin,
		DotMax:  dotMax,
		DashMin: dashMin,
		DashMax: dashMax,
		EomMin:  dotMin,
		EomMax:  dotMax,
		EocMin:  dashMin,
		EocMax:  dashMax + additionalDelay + adjustmentDelay,
	}
}

// SpeedFromAdaptiveThreshold converts an adaptive-tracker threshold back
// into a WPM figure, clamped to [SpeedMinWPM, SpeedMaxWPM].
func SpeedFromAdaptiveThreshold(thresholdUs int64) int {
	if thresholdUs <= 0 {
		return SpeedMinWPM
	}
	halfThreshold := thresholdUs / 2
	if halfThreshold < 1 {
		halfThreshold = 1
	}
	wpm := DotCalibration / halfThreshold
	if wpm < SpeedMinWPM {
		return SpeedMinWPM
	}
	if wpm > SpeedMaxWPM {
		return SpeedMaxWPM
	}
	return int(wpm)
}

// SendTimings are the derived tone durations consumed by the generator
// when it splits a representation into tones (§4.2, §4.6).
type SendTimings struct {
	UnitUs                          int64
	DotLength, DashLength           int64
	EoeDelay, EocDelay, EowDelay    int64
	AdditionalDelay, AdjustmentDelay int64
}

// SyncSend derives a SendTimings from p. Like SyncReceive it is pure and
// idempotent. Weighting biases dot/dash duration against each other while
// holding dot+dash constant at 4 units, and symmetrically compresses or
// expands the inter-element gap so perceived "on time" per character
// stays close to the un-weighted value. The exact split of the gap
// budget between eoc_delay and eow_delay beyond the ratios given in §4.2
// is under-documented upstream (see DESIGN.md); this implementation
// folds weighting into eoe_delay only and applies the additional/
// adjustment gap terms on top of the classic 3-unit/7-unit base gaps for
// eoc_delay/eow_delay - the base gaps are what make the "PARIS" reference
// word add up to exactly 50 dot-units at GapUnits=0.
func SyncSend(p Params) SendTimings {
	unit := p.unitUs()

	weighting := p.WeightingPct
	if weighting == 0 {
		weighting = 50
	}
	weightingLength := int64(2*(weighting-50)) * unit / 100

	additionalDelay := int64(p.GapUnits) * unit
	adjustmentDelay := (7 * additionalDelay) / 3

	return SendTimings{
		UnitUs:           unit,
		DotLength:        unit + weightingLength,
		DashLength:       3*unit - weightingLength,
		EoeDelay:         unit - weightingLength,
		EocDelay:         3*unit + additionalDelay,
		EowDelay:         7*unit + adjustmentDelay,
		AdditionalDelay:  additionalDelay,
		AdjustmentDelay:  adjustmentDelay,
	}
}
