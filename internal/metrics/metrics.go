// Package metrics exposes Prometheus collectors for the fingerprint
// pipeline and the remote recognition client, registered against a
// caller-supplied registerer rather than the global default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector this module exposes.
type Metrics struct {
	SignaturesEmitted  prometheus.Counter
	PeaksPerSignature  prometheus.Histogram
	DecodeFailures     *prometheus.CounterVec
	RequestLatency     prometheus.Histogram
	RequestsByStatus   *prometheus.CounterVec
}

// New registers every collector against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SignaturesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiosig_signatures_emitted_total",
			Help: "Total number of signatures emitted by an assembler.",
		}),
		PeaksPerSignature: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiosig_peaks_per_signature",
			Help:    "Distribution of peak counts across emitted signatures.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 150, 200, 255},
		}),
		DecodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiosig_decode_failures_total",
			Help: "Codec decode failures by failure kind.",
		}, []string{"kind"}),
		RequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiosig_remote_request_duration_seconds",
			Help:    "Latency of outbound recognition requests.",
			Buckets: prometheus.DefBuckets,
		}),
		RequestsByStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiosig_remote_requests_total",
			Help: "Outbound recognition requests by HTTP status class.",
		}, []string{"status_class"}),
	}
}

// ObserveSignature records one emitted signature's peak count.
func (m *Metrics) ObserveSignature(totalPeaks int) {
	if m == nil {
		return
	}
	m.SignaturesEmitted.Inc()
	m.PeaksPerSignature.Observe(float64(totalPeaks))
}

// ObserveDecodeFailure records a codec decode failure by kind.
func (m *Metrics) ObserveDecodeFailure(kind string) {
	if m == nil {
		return
	}
	m.DecodeFailures.WithLabelValues(kind).Inc()
}

// ObserveRequest records an outbound request's latency and status class,
// e.g. "2xx", "4xx", "5xx", or "error" when no HTTP response was received.
func (m *Metrics) ObserveRequest(seconds float64, statusClass string) {
	if m == nil {
		return
	}
	m.RequestLatency.Observe(seconds)
	m.RequestsByStatus.WithLabelValues(statusClass).Inc()
}
