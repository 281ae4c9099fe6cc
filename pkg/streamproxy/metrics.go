package streamproxy

import "github.com/prometheus/client_golang/prometheus"

var (
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tunerproxy_stream_sessions", Help: "Open decoder sessions"},
	)
	bytesServed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tunerproxy_stream_bytes_total", Help: "Bytes written to stream clients"},
	)
	spawnFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tunerproxy_decoder_spawn_failures_total", Help: "Decoder processes that failed to start"},
	)
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{activeSessions, bytesServed, spawnFailures}
}
