// Package metrics provides the Prometheus metrics of the mixer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/19mix/internal/app/mixer"
)

const namespace = "mix"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal       *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	SubmissionsTotal *prometheus.CounterVec
	ThrottlesTotal   prometheus.Counter
	LibraryPlaylists prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Scheduler ticks by outcome",
			},
			[]string{"outcome"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Time spent in a tick, including throttle waits",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Tracks queued by source playlist",
			},
			[]string{"source"},
		),
		ThrottlesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "throttles_total",
				Help:      "Rate limited queue submissions",
			},
		),
		LibraryPlaylists: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "library_playlists",
				Help:      "Playlists in the library cache",
			},
		),
	}

	m.registry.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.SubmissionsTotal,
		m.ThrottlesTotal,
		m.LibraryPlaylists,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// WatchMix exports the number of sources in the installed mix, read from
// count at scrape time.
func (m *Metrics) WatchMix(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mix_sources",
			Help:      "Sources in the installed mix",
		},
		func() float64 { return float64(count()) },
	))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TickCompleted implements mixer.Observer.
func (m *Metrics) TickCompleted(outcome mixer.Outcome, elapsed time.Duration) {
	m.TicksTotal.WithLabelValues(string(outcome)).Inc()
	if outcome != mixer.OutcomeBusy {
		m.TickDuration.Observe(elapsed.Seconds())
	}
}

// TrackSubmitted implements mixer.Observer.
func (m *Metrics) TrackSubmitted(sourceID string) {
	m.SubmissionsTotal.WithLabelValues(sourceID).Inc()
}

// Throttled implements mixer.Observer.
func (m *Metrics) Throttled() {
	m.ThrottlesTotal.Inc()
}
