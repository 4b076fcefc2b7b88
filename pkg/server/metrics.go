package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one relay.
type Metrics struct {
	registry *prometheus.Registry

	connections      prometheus.Gauge
	connectionsTotal prometheus.Counter
	framesReceived   *prometheus.CounterVec
	framesRelayed    *prometheus.CounterVec
	dropped          *prometheus.CounterVec
	protocolErrors   *prometheus.CounterVec
	evictions        *prometheus.CounterVec
	departures       *prometheus.CounterVec
	routeDuration    prometheus.Histogram
}

// newMetrics registers the relay collectors on reg.
func newMetrics(reg *prometheus.Registry, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of live relay connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted relay connections",
		}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received from clients by type",
		}, []string{"type"}),

		framesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Frames delivered to connections by type",
		}, []string{"type"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames that could not be queued for a connection",
		}, []string{"reason"}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Malformed or refused client frames",
		}, []string{"reason"}),

		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_evictions_total",
			Help:      "Connections evicted by the heartbeat monitor",
		}, []string{"reason"}),

		departures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "departures_total",
			Help:      "Connections that left the relay by reason",
		}, []string{"reason"}),

		routeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_duration_seconds",
			Help:      "Time spent routing one inbound frame",
			Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05},
		}),
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) setConnections(n int) {
	m.connections.Set(float64(n))
}

func (m *Metrics) recordDrop(err error) {
	reason := "closed"
	if err == ErrSendQueueFull {
		reason = "queue_full"
	}
	m.dropped.WithLabelValues(reason).Inc()
}
