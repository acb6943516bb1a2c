package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all session metrics. Counters are updated from the
// controller loop and read by the Prometheus collectors.
type Metrics struct {
	// Frame pipeline counters
	FramesRead      atomic.Uint64
	FramesAnnotated atomic.Uint64
	FramesDisplayed atomic.Uint64
	Detections      atomic.Uint64

	// Error counters
	ReadErrors      atomic.Uint64
	InferenceErrors atomic.Uint64
	WriteErrors     atomic.Uint64

	// Reconnection tracking
	Reconnects        atomic.Uint64
	ReconnectFailures atomic.Uint64

	// Latency tracking
	InferenceLatencyMs atomic.Uint64
	TickLatencyMs      atomic.Uint64

	// Recording state
	RecordingActive atomic.Uint64 // 0 = idle, 1 = active
	RecordingFrames atomic.Uint64
	Snapshots       atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its Prometheus collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerCollectors()
	return m
}

func (m *Metrics) registerCollectors() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"detectcam_frames_read_total", "Total frames read from the camera", m.FramesRead.Load},
		{"detectcam_frames_annotated_total", "Total frames annotated", m.FramesAnnotated.Load},
		{"detectcam_frames_displayed_total", "Total frames presented to the display", m.FramesDisplayed.Load},
		{"detectcam_detections_total", "Total detections produced", m.Detections.Load},
		{"detectcam_read_errors_total", "Total frame read errors", m.ReadErrors.Load},
		{"detectcam_inference_errors_total", "Total inference errors", m.InferenceErrors.Load},
		{"detectcam_write_errors_total", "Total recording write errors", m.WriteErrors.Load},
		{"detectcam_reconnects_total", "Total successful camera reconnects", m.Reconnects.Load},
		{"detectcam_reconnect_failures_total", "Total failed camera reconnect attempts", m.ReconnectFailures.Load},
		{"detectcam_inference_latency_ms", "Last inference latency in milliseconds", m.InferenceLatencyMs.Load},
		{"detectcam_tick_latency_ms", "Last full tick latency in milliseconds", m.TickLatencyMs.Load},
		{"detectcam_recording_active", "Recording active (0=idle, 1=active)", m.RecordingActive.Load},
		{"detectcam_recording_frames", "Total frames written to recordings", m.RecordingFrames.Load},
		{"detectcam_snapshots_total", "Total snapshots saved", m.Snapshots.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// ObserveInference records the latency of one inference call.
func (m *Metrics) ObserveInference(duration time.Duration) {
	m.InferenceLatencyMs.Store(uint64(duration.Milliseconds()))
}

// ObserveTick records the latency of one full loop tick.
func (m *Metrics) ObserveTick(duration time.Duration) {
	m.TickLatencyMs.Store(uint64(duration.Milliseconds()))
}

// SetRecording flips the recording gauge.
func (m *Metrics) SetRecording(active bool) {
	if active {
		m.RecordingActive.Store(1)
	} else {
		m.RecordingActive.Store(0)
	}
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr. Blocks until the listener fails.
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
