// Package tone implements the bounded tone queue and sine-wave
// synthesizer that sit between a CW generator's enqueue API and an audio
// sink.
package tone

// SlopeCurve is the amplitude shape used across a tone's rising and
// falling slopes.
type SlopeCurve int

const (
	CurveLinear SlopeCurve = iota
	CurveRaisedCosine
	CurveSine
	CurveRectangular
)

// SlopeMode selects which portions of a tone get a slope applied. A
// silence tone always uses SlopeNone.
type SlopeMode int

const (
	// SlopeStandard ramps up at the start and down at the end.
	SlopeStandard SlopeMode = iota
	SlopeRisingOnly
	SlopeFallingOnly
	SlopeNone
)

// Tone is one element of a tone queue: either a keyed tone at
// FrequencyHz, or silence when FrequencyHz is 0. Forever marks the
// sentinel tone used to key a transmitter indefinitely until replaced.
type Tone struct {
	FrequencyHz float64
	DurationUs  int64
	Mode        SlopeMode
	Forever     bool
}

// Silence returns a silence tone of the given duration and no slope,
// used for inter-element, inter-character, and inter-word gaps.
func Silence(durationUs int64) Tone {
	return Tone{DurationUs: durationUs, Mode: SlopeNone}
}

// Mark returns a keyed tone at freqHz for durationUs with standard
// (rising and falling) slopes.
func Mark(freqHz float64, durationUs int64) Tone {
	return Tone{FrequencyHz: freqHz, DurationUs: durationUs, Mode: SlopeStandard}
}

// Keyed reports whether the tone represents an audible mark rather than
// silence.
func (t Tone) Keyed() bool {
	return t.FrequencyHz > 0
}
