// Package metrics holds the prometheus collectors of the backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "purposematch"

// Delivery outcomes.
const (
	Delivered = "delivered"
	Offline   = "offline"
	Failed    = "failed"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Swipes            *prometheus.CounterVec
	MatchTransitions  *prometheus.CounterVec
	MessagesPersisted prometheus.Counter
	Deliveries        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Swipes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swipes_total",
			Help:      "Swipes by direction and whether a new row was recorded.",
		}, []string{"direction", "outcome"}),
		MatchTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_transitions_total",
			Help:      "Match state transitions that created or flipped a row.",
		}, []string{"transition"}),
		MessagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_persisted_total",
			Help:      "Chat messages durably appended.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Real-time pushes by payload kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Swipes,
		m.MatchTransitions,
		m.MessagesPersisted,
		m.Deliveries,
	)
	return m
}

// TrackOpenChannels exposes the live channel count as a gauge.
func (m *Metrics) TrackOpenChannels(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_channels",
		Help:      "Users with a bound real-time channel.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) Swipe(direction string, created bool) {
	outcome := "duplicate"
	if created {
		outcome = "created"
	}
	m.Swipes.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) Transition(name string) {
	m.MatchTransitions.WithLabelValues(name).Inc()
}

func (m *Metrics) Delivery(kind, outcome string) {
	m.Deliveries.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
