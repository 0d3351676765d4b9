package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_RegistersCollectors(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	m.SetQueueState(3, 256, true)
	m.SetReceiverWPM(18)
	m.SetReceiverStddev("dot", 12.5)
	m.IncDecodedCharacter()
	m.IncWordSpace()
	m.IncError("unrecognizable")
	m.IncLowWaterEvent()
	m.AddSamplesWritten(480)
	m.IncSinkWriteError()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Handler() status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()

	for _, want := range []string{
		"cwdecoder_tone_queue_length",
		"cwdecoder_tone_queue_capacity",
		"cwdecoder_tone_queue_busy",
		"cwdecoder_receiver_wpm",
		`cwdecoder_receiver_timing_stddev_us{kind="dot"}`,
		"cwdecoder_receiver_decoded_characters_total",
		"cwdecoder_receiver_word_spaces_total",
		`cwdecoder_receiver_errors_total{kind="unrecognizable"}`,
		"cwdecoder_tone_queue_low_water_events_total",
		"cwdecoder_sink_samples_written_total",
		"cwdecoder_sink_write_errors_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetrics_AllMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.SetQueueState(1, 2, true)
	m.IncLowWaterEvent()
	m.SetReceiverWPM(20)
	m.SetReceiverStddev("dash", 1.0)
	m.IncDecodedCharacter()
	m.IncWordSpace()
	m.IncError("buffer_full")
	m.AddSamplesWritten(100)
	m.IncSinkWriteError()

	if m.Handler() == nil {
		t.Error("Handler() on nil Metrics should still return a non-nil handler")
	}
}
