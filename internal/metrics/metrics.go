// Package metrics provides Prometheus metrics for the silkproto session runtime.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "silkproto"

// Metrics contains all Prometheus metrics exposed by a session runtime.
type Metrics struct {
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	Disconnects    *prometheus.CounterVec

	FramesEncoded prometheus.Counter
	FramesDecoded prometheus.Counter
	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter

	HandshakeLatency  prometheus.Histogram
	HandshakeFailures *prometheus.CounterVec

	MassiveReassembled prometheus.Counter
	MassiveChunksSeen  prometheus.Counter

	FaultsByClass *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the package-wide default metrics instance, registered
// against the default Prometheus registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered against the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance against a caller-supplied registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently in the Ready phase or handshaking",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions started",
		}),
		Disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Total session disconnects by reason",
		}, []string{"reason"}),

		FramesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_encoded_total",
			Help:      "Total frames encoded for send",
		}),
		FramesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Total frames decoded from the wire",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received",
		}),

		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Histogram of handshake completion latency",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		HandshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Total handshake failures by cause",
		}, []string{"cause"}),

		MassiveReassembled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "massive_reassembled_total",
			Help:      "Total multi-chunk MASSIVE messages fully reassembled",
		}),
		MassiveChunksSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "massive_chunks_total",
			Help:      "Total MASSIVE data chunks received",
		}),

		FaultsByClass: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Total session faults by class (malformed, handshake, handler, panic)",
		}, []string{"class"}),
	}
}

// RecordSessionStart records a newly started session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// RecordSessionEnd records a session leaving the active set.
func (m *Metrics) RecordSessionEnd(reason string) {
	m.SessionsActive.Dec()
	m.Disconnects.WithLabelValues(reason).Inc()
}

// RecordFrameEncoded records one frame built for sending, with its payload size.
func (m *Metrics) RecordFrameEncoded(payloadBytes int) {
	m.FramesEncoded.Inc()
	m.BytesSent.Add(float64(payloadBytes))
}

// RecordFrameDecoded records one frame read off the wire, with its payload size.
func (m *Metrics) RecordFrameDecoded(payloadBytes int) {
	m.FramesDecoded.Inc()
	m.BytesReceived.Add(float64(payloadBytes))
}

// RecordHandshake records a completed handshake's latency.
func (m *Metrics) RecordHandshake(latencySeconds float64) {
	m.HandshakeLatency.Observe(latencySeconds)
}

// RecordHandshakeFailure records a failed handshake by cause.
func (m *Metrics) RecordHandshakeFailure(cause string) {
	m.HandshakeFailures.WithLabelValues(cause).Inc()
}

// RecordMassiveChunk records one MASSIVE data chunk received.
func (m *Metrics) RecordMassiveChunk() {
	m.MassiveChunksSeen.Inc()
}

// RecordMassiveReassembled records a fully reassembled MASSIVE message.
func (m *Metrics) RecordMassiveReassembled() {
	m.MassiveReassembled.Inc()
}

// RecordFault records a session-ending fault by class.
func (m *Metrics) RecordFault(class string) {
	m.FaultsByClass.WithLabelValues(class).Inc()
}
