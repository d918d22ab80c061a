// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_speech_relay"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Connection metrics
	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge

	// Inbound message metrics
	MessagesTotal *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter
	AudioFramesDropped  prometheus.Counter

	// Utterance metrics
	UtterancesInterim prometheus.Counter
	UtterancesFinal   prometheus.Counter
	TimeLimitsReached prometheus.Counter

	// Recognition stream metrics
	StreamsStarted prometheus.Counter
	StreamErrors   prometheus.Counter

	// Record append metrics
	AppendTotal   prometheus.Counter
	AppendErrors  prometheus.Counter
	AppendDropped prometheus.Counter
	AppendLatency prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of client WebSocket connections accepted",
		}),
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently open client connections",
		}),

		MessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total inbound control messages by type",
		}, []string{"type"}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received from clients",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total binary audio frames received from clients",
		}),
		AudioFramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Audio frames discarded because no recognition stream was open",
		}),

		UtterancesInterim: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_interim_total",
			Help:      "Total interim utterance revisions assembled",
		}),
		UtterancesFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_final_total",
			Help:      "Total finalized utterance groups",
		}),
		TimeLimitsReached: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "time_limits_reached_total",
			Help:      "Provider stream duration caps detected",
		}),

		StreamsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_streams_started_total",
			Help:      "Total recognition streams opened",
		}),
		StreamErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_stream_errors_total",
			Help:      "Fatal recognition stream errors",
		}),

		AppendTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_append_total",
			Help:      "Total append calls to the interview record service",
		}),
		AppendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_append_errors_total",
			Help:      "Failed append calls to the interview record service",
		}),
		AppendDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_append_dropped_total",
			Help:      "Finalized utterances dropped because the append queue was full",
		}),
		AppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "record_append_latency_seconds",
			Help:      "Append call latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordConnectionOpen records a client connection being accepted.
func (m *Metrics) RecordConnectionOpen() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionClose records a client connection closing.
func (m *Metrics) RecordConnectionClose() {
	m.ConnectionsActive.Dec()
}

// RecordMessage records an inbound control message by type.
func (m *Metrics) RecordMessage(msgType string) {
	m.MessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordAudioReceived records an inbound binary audio frame.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordAppend records an append attempt against the record service.
func (m *Metrics) RecordAppend(err error, latencySeconds float64) {
	m.AppendTotal.Inc()
	m.AppendLatency.Observe(latencySeconds)
	if err != nil {
		m.AppendErrors.Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
