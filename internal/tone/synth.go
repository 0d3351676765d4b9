// internal/tone/synth.go
package tone

import "math"

// SampleWriter is the narrow capability a Synthesizer needs from an
// audio sink: write a full buffer of 16-bit PCM samples.
type SampleWriter interface {
	Write(samples []int16) (int, error)
}

// Synthesizer renders Tones into PCM sample buffers, maintaining a
// persistent phase so that consecutive tones at the same frequency are
// phase-continuous (§4.5).
type Synthesizer struct {
	sampleRate  float64
	slope       []float64
	lastFreqHz  float64
	sampleIndex int64
}

// NewSynthesizer builds a Synthesizer with a slope table sized for
// slopeLenUs at sampleRate, using curve for its amplitude shape.
func NewSynthesizer(sampleRate float64, slopeLenUs int64, curve SlopeCurve) *Synthesizer {
	return &Synthesizer{
		sampleRate: sampleRate,
		slope:      buildSlopeTable(slopeLenUs, sampleRate, curve),
	}
}

// Reconfigure recomputes the slope table for a new (sampleRate,
// slopeLenUs, curve) triple. Per §9's design note, callers must not call
// Reconfigure concurrently with Render on the same Synthesizer; wrap
// with a mutex or double-buffer at a higher level if parameters change
// while a consumer goroutine is rendering.
func (s *Synthesizer) Reconfigure(sampleRate float64, slopeLenUs int64, curve SlopeCurve) {
	s.sampleRate = sampleRate
	s.slope = buildSlopeTable(slopeLenUs, sampleRate, curve)
}

func buildSlopeTable(slopeLenUs int64, sampleRate float64, curve SlopeCurve) []float64 {
	n := int(float64(slopeLenUs) * sampleRate / 1e6)
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = 1
		return out
	}
	last := float64(n - 1)
	for i := 0; i < n; i++ {
		frac := float64(i) / last
		switch curve {
		case CurveLinear:
			out[i] = frac
		case CurveRaisedCosine:
			out[i] = (1 - math.Cos(math.Pi*frac)) / 2
		case CurveSine:
			out[i] = math.Sin((math.Pi / 2) * frac)
		case CurveRectangular:
			out[i] = 1
		}
	}
	return out
}

// amplitudeAt returns the slope-adjusted amplitude for sample k of total,
// under mode.
func (s *Synthesizer) amplitudeAt(k, total int64, mode SlopeMode) float64 {
	n := int64(len(s.slope))
	if (mode == SlopeStandard || mode == SlopeRisingOnly) && k < n {
		return s.slope[k]
	}
	fromEnd := total - 1 - k
	if (mode == SlopeStandard || mode == SlopeFallingOnly) && fromEnd >= 0 && fromEnd < n {
		return s.slope[fromEnd]
	}
	return 1.0
}

// Render emits t's samples to w, in buffers of bufferN samples with the
// final partial buffer zero-padded so every sink call receives a full
// buffer (§4.5). volumeAbs scales the waveform in [0,1].
func (s *Synthesizer) Render(t Tone, volumeAbs float64, bufferN int, w SampleWriter) error {
	total := int64(float64(t.DurationUs) * s.sampleRate / 1e6)
	keyed := t.Keyed()

	if keyed && t.FrequencyHz != s.lastFreqHz {
		s.sampleIndex = 0
	}

	buf := make([]int16, 0, bufferN)
	for k := int64(0); k < total; k++ {
		var sample float64
		if keyed {
			amp := s.amplitudeAt(k, total, t.Mode)
			angle := 2 * math.Pi * t.FrequencyHz * float64(s.sampleIndex) / s.sampleRate
			sample = volumeAbs * amp * math.Sin(angle)
			s.sampleIndex++
		}
		buf = append(buf, int16(sample*math.MaxInt16))
		if len(buf) == bufferN {
			if _, err := w.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}

	if len(buf) > 0 {
		for len(buf) < bufferN {
			buf = append(buf, 0)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}

	if keyed {
		s.lastFreqHz = t.FrequencyHz
	}
	return nil
}
