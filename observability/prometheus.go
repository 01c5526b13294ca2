package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports event counts as Prometheus metrics: one
// counter, labeled by event type, level, and source, incremented on every
// OnEvent.
// Unlike SlogObserver (which renders each event as a log line) this collapses
// the stream into aggregate counts suitable for a scrape endpoint.
type PrometheusObserver struct {
	events *prometheus.CounterVec
}

// NewPrometheusObserver registers its counter on reg and returns the
// resulting observer. Pass prometheus.DefaultRegisterer for the global
// registry, or a fresh *prometheus.Registry in tests to avoid collisions
// across repeated registration.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swarmcore",
		Name:      "events_total",
		Help:      "Total observability events emitted, by type/level/source.",
	}, []string{"type", "level", "source"})

	reg.MustRegister(events)

	return &PrometheusObserver{events: events}
}

func (o *PrometheusObserver) OnEvent(ctx context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Level.String(), event.Source).Inc()
}
