package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	streamConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ascent_stream_connections_total",
		Help: "SSE connection events (connect or disconnect).",
	}, []string{"event"})
	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascent_streams_active",
		Help: "Currently open SSE streams.",
	})
	streamMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ascent_stream_messages_total",
		Help: "SSE data messages sent.",
	})
	streamBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ascent_stream_bytes_total",
		Help: "Bytes written to SSE streams.",
	})
	streamErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ascent_stream_errors_total",
		Help: "SSE errors by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(streamConnections, streamsActive, streamMessages, streamBytes, streamErrors)
}

// IncStreamConnections counts a connect or disconnect event.
func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts one data message.
func IncStreamMessages() { streamMessages.Inc() }

// AddStreamBytes counts bytes written to a stream.
func AddStreamBytes(n int64) { streamBytes.Add(float64(n)) }

// IncStreamErrors counts one stream error.
func IncStreamErrors(reason string) { streamErrors.WithLabelValues(reason).Inc() }
