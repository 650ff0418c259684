// Package metrics exposes Prometheus instruments for the realtime hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "huddle"

// Metrics groups the hub's instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rooms        prometheus.Gauge
	connections  prometheus.Gauge
	frames       *prometheus.CounterVec
	dropped      prometheus.Counter
	hibernations prometheus.Counter
	evictions    prometheus.Counter
}

// New creates the instruments and registers them on a private registry,
// together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_live",
			Help:      "Rooms currently held by the registry.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_live",
			Help:      "Client connections currently attached to a room.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by classification.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_dropped_total",
			Help:      "Outbound frames dropped because a connection's send queue was full.",
		}),
		hibernations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_hibernations_total",
			Help:      "Room actors stopped after being idle.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_evictions_total",
			Help:      "Idle rooms without connections removed from the registry.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rooms,
		m.connections,
		m.frames,
		m.dropped,
		m.hibernations,
		m.evictions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:          m.registry,
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) RoomEvicted() {
	if m != nil {
		m.rooms.Dec()
		m.evictions.Inc()
	}
}

func (m *Metrics) RoomHibernated() {
	if m != nil {
		m.hibernations.Inc()
	}
}

func (m *Metrics) ConnectionJoined() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionLeft() {
	if m != nil {
		m.connections.Dec()
	}
}

// FrameReceived counts one inbound frame. kind is "presence", "channel",
// "thread" or "malformed".
func (m *Metrics) FrameReceived(kind string) {
	if m != nil {
		m.frames.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SendDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}
