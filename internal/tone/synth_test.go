package tone

import "testing"

type captureWriter struct {
	buffers [][]int16
}

func (c *captureWriter) Write(samples []int16) (int, error) {
	cp := make([]int16, len(samples))
	copy(cp, samples)
	c.buffers = append(c.buffers, cp)
	return len(samples), nil
}

func TestBuildSlopeTable_Rectangular(t *testing.T) {
	table := buildSlopeTable(5000, 8000, CurveRectangular)
	for i, v := range table {
		if v != 1 {
			t.Errorf("rectangular slope[%d] = %v, want 1", i, v)
		}
	}
}

func TestBuildSlopeTable_LinearEndpoints(t *testing.T) {
	table := buildSlopeTable(5000, 8000, CurveLinear)
	if table[0] != 0 {
		t.Errorf("linear slope[0] = %v, want 0", table[0])
	}
	if last := table[len(table)-1]; last != 1 {
		t.Errorf("linear slope[last] = %v, want 1", last)
	}
}

func TestBuildSlopeTable_RaisedCosineEndpoints(t *testing.T) {
	table := buildSlopeTable(5000, 8000, CurveRaisedCosine)
	if table[0] > 1e-9 {
		t.Errorf("raised-cosine slope[0] = %v, want ~0", table[0])
	}
	if last := table[len(table)-1]; last < 1-1e-9 {
		t.Errorf("raised-cosine slope[last] = %v, want ~1", last)
	}
}

func TestBuildSlopeTable_MinimumLengthOne(t *testing.T) {
	table := buildSlopeTable(0, 8000, CurveLinear)
	if len(table) != 1 || table[0] != 1 {
		t.Errorf("buildSlopeTable(0, ...) = %v, want a single 1.0 entry", table)
	}
}

func TestSynthesizer_RenderSilenceProducesZeroSamples(t *testing.T) {
	s := NewSynthesizer(8000, 5000, CurveRaisedCosine)
	w := &captureWriter{}
	if err := s.Render(Silence(10000), 1.0, 64, w); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, buf := range w.buffers {
		for _, sample := range buf {
			if sample != 0 {
				t.Fatalf("silence render produced a non-zero sample: %d", sample)
			}
		}
	}
}

func TestSynthesizer_RenderMarkProducesSignal(t *testing.T) {
	s := NewSynthesizer(8000, 1000, CurveRaisedCosine)
	w := &captureWriter{}
	if err := s.Render(Mark(600, 10000), 1.0, 64, w); err != nil {
		t.Fatalf("Render: %v", err)
	}
	nonZero := false
	for _, buf := range w.buffers {
		for _, sample := range buf {
			if sample != 0 {
				nonZero = true
			}
		}
	}
	if !nonZero {
		t.Error("a keyed mark render produced only zero samples")
	}
}

func TestSynthesizer_RenderPadsFinalBuffer(t *testing.T) {
	s := NewSynthesizer(8000, 1000, CurveLinear)
	w := &captureWriter{}
	// 10000us at 8000Hz is 80 samples; a 64-sample buffer leaves a 16-sample
	// tail that must be zero-padded out to a full buffer.
	if err := s.Render(Mark(600, 10000), 1.0, 64, w); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, buf := range w.buffers {
		if len(buf) != 64 {
			t.Errorf("buffer length = %d, want every write padded to 64", len(buf))
		}
	}
}

func TestSynthesizer_PhaseContinuityAcrossSameFrequencyTones(t *testing.T) {
	s := NewSynthesizer(8000, 0, CurveRectangular)
	w1 := &captureWriter{}
	if err := s.Render(Mark(600, 5000), 1.0, 8, w1); err != nil {
		t.Fatalf("Render 1: %v", err)
	}
	idxAfterFirst := s.sampleIndex

	w2 := &captureWriter{}
	if err := s.Render(Mark(600, 5000), 1.0, 8, w2); err != nil {
		t.Fatalf("Render 2: %v", err)
	}
	if s.sampleIndex <= idxAfterFirst {
		t.Error("sampleIndex did not advance across a second same-frequency tone, want phase continuity")
	}
}

func TestSynthesizer_FrequencyChangeResetsPhase(t *testing.T) {
	s := NewSynthesizer(8000, 0, CurveRectangular)
	w1 := &captureWriter{}
	s.Render(Mark(600, 5000), 1.0, 8, w1)
	idxAfterFirst := s.sampleIndex

	w2 := &captureWriter{}
	if err := s.Render(Mark(700, 5000), 1.0, 8, w2); err != nil {
		t.Fatalf("Render at new frequency: %v", err)
	}
	// A frequency change resets sampleIndex to 0 before rendering, so it
	// ends at this tone's own sample count rather than continuing to
	// accumulate from the first tone.
	if s.sampleIndex != idxAfterFirst {
		t.Errorf("sampleIndex after a frequency change = %d, want %d (reset then re-advanced by the same tone length)", s.sampleIndex, idxAfterFirst)
	}
}
