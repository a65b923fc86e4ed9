// Package metrics holds the Prometheus collectors of the attendance service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a dedicated registry plus the collectors handlers update.
type Metrics struct {
	Registry  *prometheus.Registry
	CheckIns  *prometheus.CounterVec
	Overrides *prometheus.CounterVec
	Lifecycle *prometheus.CounterVec
	Published prometheus.Counter
}

// New registers the collectors. active and dropped are sampled on scrape.
func New(active func() int, dropped func() uint64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		CheckIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "checkins_total",
			Help:      "Check-in submissions by outcome.",
		}, []string{"outcome"}),
		Overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "overrides_total",
			Help:      "Manual record changes by audit action.",
		}, []string{"action"}),
		Lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "session_transitions_total",
			Help:      "Session lifecycle transitions.",
		}, []string{"transition"}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "outbox_published_total",
			Help:      "Engine events handed to the queue.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CheckIns, m.Overrides, m.Lifecycle, m.Published,
	)
	if active != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "attendance",
			Name:      "active_sessions",
			Help:      "Sessions currently in progress.",
		}, func() float64 { return float64(active()) }))
	}
	if dropped != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "events_dropped_total",
			Help:      "Engine events discarded before the relay acknowledged them.",
		}, func() float64 { return float64(dropped()) }))
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
