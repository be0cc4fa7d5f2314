// Package metrics exposes prometheus collectors for calls relayed by the
// gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-go/callbridge/pkg/gateway/live/session"
)

// Metrics holds all Prometheus metrics for the gateway. It implements
// session.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Call metrics
	CallsActive  prometheus.Gauge
	CallsTotal   *prometheus.CounterVec
	CallDuration prometheus.Histogram

	// Frame metrics
	FramesRelayed     *prometheus.CounterVec
	AudioPayloadBytes *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	KeepAlivesSent    prometheus.Counter

	UpstreamDialFailures prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var _ session.Observer = (*Metrics)(nil)

// NewMetrics creates a new Metrics instance with all Prometheus metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "callbridge"
	}

	registry := prometheus.NewRegistry()

	callsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of calls currently being relayed",
		},
	)

	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of relayed calls by outcome",
		},
		[]string{"outcome"},
	)

	callDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Relayed call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	framesRelayed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Total audio frames relayed",
		},
		[]string{"direction"},
	)

	audioPayloadBytes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_payload_bytes_total",
			Help:      "Total base64 audio payload bytes relayed",
		},
		[]string{"direction"},
	)

	framesDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total frames dropped instead of relayed",
		},
		[]string{"direction", "reason"},
	)

	keepAlivesSent := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalives_sent_total",
			Help:      "Total keep-alive pings sent to the realtime endpoint",
		},
	)

	upstreamDialFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_dial_failures_total",
			Help:      "Total failed realtime endpoint handshakes",
		},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"handler", "code", "method"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)

	registry.MustRegister(
		callsActive,
		callsTotal,
		callDuration,
		framesRelayed,
		audioPayloadBytes,
		framesDropped,
		keepAlivesSent,
		upstreamDialFailures,
		requestsTotal,
		requestDuration,
	)

	return &Metrics{
		registry:             registry,
		CallsActive:          callsActive,
		CallsTotal:           callsTotal,
		CallDuration:         callDuration,
		FramesRelayed:        framesRelayed,
		AudioPayloadBytes:    audioPayloadBytes,
		FramesDropped:        framesDropped,
		KeepAlivesSent:       keepAlivesSent,
		UpstreamDialFailures: upstreamDialFailures,
		RequestsTotal:        requestsTotal,
		RequestDuration:      requestDuration,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps next so its requests are counted and timed under the
// given handler label. Hijacked (websocket) responses pass through.
func (m *Metrics) Instrument(handler string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": handler}
	return promhttp.InstrumentHandlerCounter(
		m.RequestsTotal.MustCurryWith(labels),
		promhttp.InstrumentHandlerDuration(m.RequestDuration.MustCurryWith(labels), next),
	)
}

func (m *Metrics) SessionStarted() {
	m.CallsActive.Inc()
}

func (m *Metrics) SessionEnded(outcome string, duration time.Duration) {
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(outcome).Inc()
	m.CallDuration.Observe(duration.Seconds())
}

func (m *Metrics) FrameRelayed(dir session.Direction, payloadBytes int) {
	m.FramesRelayed.WithLabelValues(string(dir)).Inc()
	if payloadBytes > 0 {
		m.AudioPayloadBytes.WithLabelValues(string(dir)).Add(float64(payloadBytes))
	}
}

func (m *Metrics) FrameDropped(dir session.Direction, reason string) {
	m.FramesDropped.WithLabelValues(string(dir), reason).Inc()
}

func (m *Metrics) KeepAliveSent() {
	m.KeepAlivesSent.Inc()
}

// RecordDialFailure counts a realtime endpoint handshake that failed.
func (m *Metrics) RecordDialFailure() {
	m.UpstreamDialFailures.Inc()
}
