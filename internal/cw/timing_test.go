package cw

import "testing"

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"speed too low", Params{SpeedWPM: 1, TolerancePct: 50, GapUnits: 2}, true},
		{"speed too high", Params{SpeedWPM: 100, TolerancePct: 50, GapUnits: 2}, true},
		{"tolerance out of range", Params{SpeedWPM: 20, TolerancePct: 95, GapUnits: 2}, true},
		{"gap out of range", Params{SpeedWPM: 20, TolerancePct: 50, GapUnits: 100}, true},
		{"weighting out of range", Params{SpeedWPM: 20, TolerancePct: 50, GapUnits: 2, WeightingPct: 10}, true},
		{"weighting zero is neutral", Params{SpeedWPM: 20, TolerancePct: 50, GapUnits: 2, WeightingPct: 0}, false},
		{"negative noise threshold", Params{SpeedWPM: 20, TolerancePct: 50, GapUnits: 2, NoiseSpikeThresholdUs: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSyncReceive_FixedMode(t *testing.T) {
	p := DefaultParams()
	timings := SyncReceive(p)

	wantUnit := DotCalibration / int64(p.SpeedWPM)
	if timings.UnitUs != wantUnit {
		t.Errorf("UnitUs = %d, want %d", timings.UnitUs, wantUnit)
	}
	if timings.DotMin >= timings.DotMax {
		t.Errorf("DotMin (%d) should be < DotMax (%d)", timings.DotMin, timings.DotMax)
	}
	if timings.DashMin <= timings.DotMax {
		t.Errorf("DashMin (%d) should be > DotMax (%d)", timings.DashMin, timings.DotMax)
	}
	if timings.EocMax <= timings.DashMax {
		t.Errorf("EocMax (%d) should be > DashMax (%d)", timings.EocMax, timings.DashMax)
	}
}

func TestSyncReceive_Idempotent(t *testing.T) {
	p := DefaultParams()
	a := SyncReceive(p)
	b := SyncReceive(p)
	if a != b {
		t.Errorf("SyncReceive not idempotent: %+v != %+v", a, b)
	}
}

func TestSyncReceive_AdaptiveMode(t *testing.T) {
	p := DefaultParams()
	p.AdaptiveMode = true
	timings := SyncReceive(p)

	if timings.DashMax != Infinite {
		t.Errorf("adaptive DashMax = %d, want Infinite", timings.DashMax)
	}
	if timings.DashMin != timings.DotMax {
		t.Errorf("adaptive DashMin (%d) should equal DotMax (%d)", timings.DashMin, timings.DotMax)
	}
}

func TestSyncSend_NeutralWeighting(t *testing.T) {
	p := DefaultParams()
	timings := SyncSend(p)

	unit := DotCalibration / int64(p.SpeedWPM)
	if timings.DotLength != unit {
		t.Errorf("DotLength = %d, want %d at neutral weighting", timings.DotLength, unit)
	}
	if timings.DashLength != 3*unit {
		t.Errorf("DashLength = %d, want %d at neutral weighting", timings.DashLength, 3*unit)
	}
}

func TestSyncSend_WeightingBiasesDotAgainstDash(t *testing.T) {
	p := DefaultParams()
	p.WeightingPct = 70
	timings := SyncSend(p)

	unit := DotCalibration / int64(p.SpeedWPM)
	if timings.DotLength <= unit {
		t.Errorf("DotLength = %d, want > %d for weighting above 50", timings.DotLength, unit)
	}
	if timings.DashLength >= 3*unit {
		t.Errorf("DashLength = %d, want < %d for weighting above 50", timings.DashLength, 3*unit)
	}
}

func TestSpeedFromAdaptiveThreshold(t *testing.T) {
	tests := []struct {
		name        string
		thresholdUs int64
		want        int
	}{
		{"zero clamps to min", 0, SpeedMinWPM},
		{"negative clamps to min", -100, SpeedMinWPM},
		{"very small positive clamps to max", 1, SpeedMaxWPM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpeedFromAdaptiveThreshold(tt.thresholdUs); got != tt.want {
				t.Errorf("SpeedFromAdaptiveThreshold(%d) = %d, want %d", tt.thresholdUs, got, tt.want)
			}
		})
	}

	// A threshold consistent with 20 WPM dots should round-trip close to 20.
	p := Params{SpeedWPM: 20}
	unit := p.unitUs()
	if got := SpeedFromAdaptiveThreshold(2 * unit); got != 20 {
		t.Errorf("SpeedFromAdaptiveThreshold(2*unit@20wpm) = %d, want 20", got)
	}
}
