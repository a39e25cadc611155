package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing, so components can run without a registry in tests.
type Metrics struct {
	// Camera counters
	FramesRead atomic.Uint64
	ReadErrors atomic.Uint64

	// Emotion inference
	InferencesOK     atomic.Uint64
	InferencesFailed atomic.Uint64
	InferenceMs      atomic.Uint64 // last inference latency in ms
	EmotionVersion   atomic.Uint64

	// MJPEG streaming
	StreamClients     atomic.Int64
	StreamClientTotal atomic.Uint64
	StreamFramesSent  atomic.Uint64

	// Attention classification
	analyzeTotal   *prometheus.CounterVec
	analyzeLatency prometheus.Histogram

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Camera metrics
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "vision_camera_frames_read_total",
			Help: "Total frames read from the camera",
		},
		func() float64 { return float64(m.FramesRead.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "vision_camera_read_errors_total",
			Help: "Total camera read errors",
		},
		func() float64 { return float64(m.ReadErrors.Load()) },
	))

	// Emotion metrics
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "vision_emotion_inferences_total",
			Help: "Total successful emotion inferences",
		},
		func() float64 { return float64(m.InferencesOK.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "vision_emotion_inference_failures_total",
			Help: "Total emotion inferences published as Unknown",
		},
		func() float64 { return float64(m.InferencesFailed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_emotion_inference_latency_ms",
			Help: "Latency of the last emotion inference in milliseconds",
		},
		func() float64 { return float64(m.InferenceMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_emotion_state_version",
			Help: "Number of emotion labels published",
		},
		func() float64 { return float64(m.EmotionVersion.Load()) },
	))

	// Stream metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_stream_active_clients",
			Help: "Number of connected MJPEG clients",
		},
		func() float64 { return float64(m.StreamClients.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "vision_stream_clients_total",
			Help: "Total MJPEG clients connected",
		},
		func() float64 { return float64(m.StreamClientTotal.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "vision_stream_frames_sent_total",
			Help: "Total MJPEG parts written to clients",
		},
		func() float64 { return float64(m.StreamFramesSent.Load()) },
	))

	// Attention metrics
	m.analyzeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vision_attention_requests_total",
			Help: "Attention classifications by outcome",
		},
		[]string{"status"},
	)
	m.registry.MustRegister(m.analyzeTotal)

	m.analyzeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vision_attention_latency_seconds",
		Help:    "Time spent classifying one posted frame",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	m.registry.MustRegister(m.analyzeLatency)
}

// FrameRead counts one camera read; err != nil counts a read error.
func (m *Metrics) FrameRead(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ReadErrors.Add(1)
		return
	}
	m.FramesRead.Add(1)
}

// Inference records the outcome and latency of one emotion inference.
func (m *Metrics) Inference(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	if ok {
		m.InferencesOK.Add(1)
	} else {
		m.InferencesFailed.Add(1)
	}
	m.InferenceMs.Store(uint64(duration.Milliseconds()))
}

// EmotionPublished records the state version after a publish.
func (m *Metrics) EmotionPublished(version uint64) {
	if m == nil {
		return
	}
	m.EmotionVersion.Store(version)
}

// StreamOpened tracks a new MJPEG client; call the returned func on disconnect.
func (m *Metrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.StreamClients.Add(1)
	m.StreamClientTotal.Add(1)
	return func() { m.StreamClients.Add(-1) }
}

// StreamFrame counts one multipart part written.
func (m *Metrics) StreamFrame() {
	if m == nil {
		return
	}
	m.StreamFramesSent.Add(1)
}

// Analyze records one attention request by outcome ("watching", "error", ...).
func (m *Metrics) Analyze(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.analyzeTotal.WithLabelValues(status).Inc()
	m.analyzeLatency.Observe(duration.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer returns the metrics HTTP server; the caller owns its lifecycle.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
