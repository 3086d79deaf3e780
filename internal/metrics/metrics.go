// Package metrics holds the Prometheus instruments for superframe decoding
// and ADTS distribution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every instrument is labelled by
// stream key.
type Metrics struct {
	registry *prometheus.Registry

	// Superframe metrics
	SuperFramesDecoded  *prometheus.CounterVec
	SuperFramesRejected *prometheus.CounterVec // reason: header, firecode, adts
	Resyncs             *prometheus.CounterVec
	BytesSkipped        *prometheus.CounterVec

	// Access unit metrics
	AccessUnits   *prometheus.CounterVec
	AUSize        *prometheus.HistogramVec
	FramesDropped *prometheus.CounterVec // listener buffer full

	// Stream metrics
	ActiveStreams   prometheus.Gauge
	ActiveListeners *prometheus.GaugeVec
}

// New creates the metrics on a fresh registry, so separate instances (one
// per test, say) never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SuperFramesDecoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dabplus_superframes_decoded_total",
				Help: "Superframes whose header decoded successfully",
			},
			[]string{"stream_key"},
		),
		SuperFramesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dabplus_superframes_rejected_total",
				Help: "Superframes discarded, by reason",
			},
			[]string{"stream_key", "reason"},
		),
		Resyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dabplus_resyncs_total",
				Help: "Times a stream lost superframe alignment",
			},
			[]string{"stream_key"},
		),
		BytesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dabplus_resync_bytes_skipped_total",
				Help: "Bytes discarded while searching for superframe alignment",
			},
			[]string{"stream_key"},
		),
		AccessUnits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dabplus_access_units_total",
				Help: "AAC access units framed as ADTS",
			},
			[]string{"stream_key"},
		),
		AUSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dabplus_access_unit_bytes",
				Help:    "Access unit payload size in bytes",
				Buckets: prometheus.ExponentialBuckets(32, 2, 8), // 32 B to 4 KiB
			},
			[]string{"stream_key"},
		),
		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dabplus_listener_frames_dropped_total",
				Help: "ADTS frames dropped because a listener fell behind",
			},
			[]string{"stream_key"},
		),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dabplus_active_streams",
			Help: "Number of streams currently ingesting",
		}),
		ActiveListeners: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dabplus_active_listeners",
				Help: "Number of connected listeners",
			},
			[]string{"stream_key"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Forget removes all series for a stream once it ends.
func (m *Metrics) Forget(streamKey string) {
	labels := prometheus.Labels{"stream_key": streamKey}
	m.SuperFramesDecoded.DeletePartialMatch(labels)
	m.SuperFramesRejected.DeletePartialMatch(labels)
	m.Resyncs.DeletePartialMatch(labels)
	m.BytesSkipped.DeletePartialMatch(labels)
	m.AccessUnits.DeletePartialMatch(labels)
	m.AUSize.DeletePartialMatch(labels)
	m.FramesDropped.DeletePartialMatch(labels)
	m.ActiveListeners.DeletePartialMatch(labels)
}
