// Package metrics exposes the decoder's internal state as Prometheus
// gauges and counters: tone-queue depth, receiver adaptive speed and
// per-kind timing spread, and error-path counters (§11 domain stack).
// A nil *Metrics is valid and every method is a no-op on it, so callers
// that run without the serve subcommand's registry never need a guard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns every collector registered for one decoder process.
type Metrics struct {
	registry *prometheus.Registry

	queueLength   prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueState    prometheus.Gauge

	receiverWPM    prometheus.Gauge
	receiverStddev *prometheus.GaugeVec

	decodedChars   prometheus.Counter
	wordSpaces     prometheus.Counter
	errors         *prometheus.CounterVec
	lowWaterEvents prometheus.Counter

	samplesWritten prometheus.Counter
	sinkWriteErrors prometheus.Counter
}

// New creates a Metrics with a fresh registry and registers every
// collector under it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		queueLength: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cwdecoder",
			Subsystem: "tone_queue",
			Name:      "length",
			Help:      "Number of tones currently buffered ahead of playback.",
		}),
		queueCapacity: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cwdecoder",
			Subsystem: "tone_queue",
			Name:      "capacity",
			Help:      "Fixed capacity of the tone queue.",
		}),
		queueState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cwdecoder",
			Subsystem: "tone_queue",
			Name:      "busy",
			Help:      "1 if the tone queue is busy, 0 if idle.",
		}),
		receiverWPM: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cwdecoder",
			Subsystem: "receiver",
			Name:      "wpm",
			Help:      "Current receive speed estimate, in words per minute.",
		}),
		receiverStddev: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cwdecoder",
			Subsystem: "receiver",
			Name:      "timing_stddev_us",
			Help:      "Standard deviation of observed-minus-ideal mark/space durations, by kind.",
		}, []string{"kind"}),
		decodedChars: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cwdecoder",
			Subsystem: "receiver",
			Name:      "decoded_characters_total",
			Help:      "Total number of characters successfully decoded.",
		}),
		wordSpaces: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cwdecoder",
			Subsystem: "receiver",
			Name:      "word_spaces_total",
			Help:      "Total number of inter-word spaces decoded.",
		}),
		errors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cwdecoder",
			Subsystem: "receiver",
			Name:      "errors_total",
			Help:      "Total number of receiver error conditions, by kind.",
		}, []string{"kind"}),
		lowWaterEvents: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cwdecoder",
			Subsystem: "tone_queue",
			Name:      "low_water_events_total",
			Help:      "Total number of low-water callback firings.",
		}),
		samplesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cwdecoder",
			Subsystem: "sink",
			Name:      "samples_written_total",
			Help:      "Total number of PCM samples written to the audio sink.",
		}),
		sinkWriteErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cwdecoder",
			Subsystem: "sink",
			Name:      "write_errors_total",
			Help:      "Total number of audio sink write failures.",
		}),
	}
	return m
}

// Handler returns an http.Handler serving this registry in the
// Prometheus exposition format, for mounting at /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetQueueState records the tone queue's length, capacity, and busy/idle
// state in one call, matching how the generator observes the queue.
func (m *Metrics) SetQueueState(length, capacity int, busy bool) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(length))
	m.queueCapacity.Set(float64(capacity))
	if busy {
		m.queueState.Set(1)
	} else {
		m.queueState.Set(0)
	}
}

// IncLowWaterEvent records one firing of the tone queue's low-water
// callback.
func (m *Metrics) IncLowWaterEvent() {
	if m == nil {
		return
	}
	m.lowWaterEvents.Inc()
}

// SetReceiverWPM records the receiver's current speed estimate.
func (m *Metrics) SetReceiverWPM(wpm int) {
	if m == nil {
		return
	}
	m.receiverWPM.Set(float64(wpm))
}

// SetReceiverStddev records the observed timing spread for one stat
// kind (e.g. "dot", "dash", "inter_mark_space", "inter_char_space").
func (m *Metrics) SetReceiverStddev(kind string, stddevUs float64) {
	if m == nil {
		return
	}
	m.receiverStddev.WithLabelValues(kind).Set(stddevUs)
}

// IncDecodedCharacter records one successfully decoded character.
func (m *Metrics) IncDecodedCharacter() {
	if m == nil {
		return
	}
	m.decodedChars.Inc()
}

// IncWordSpace records one decoded inter-word space.
func (m *Metrics) IncWordSpace() {
	if m == nil {
		return
	}
	m.wordSpaces.Inc()
}

// IncError records one receiver error condition of the given kind
// (e.g. "unrecognizable", "buffer_full", "out_of_order").
func (m *Metrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// AddSamplesWritten records samples successfully written to the sink.
func (m *Metrics) AddSamplesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.samplesWritten.Add(float64(n))
}

// IncSinkWriteError records one audio sink write failure.
func (m *Metrics) IncSinkWriteError() {
	if m == nil {
		return
	}
	m.sinkWriteErrors.Inc()
}
