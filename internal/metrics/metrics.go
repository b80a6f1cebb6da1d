// Package metrics registers the hub's Prometheus collectors:
//
//	nebula_operations_total{kind,outcome}
//	nebula_operation_rejections_total{kind}
//	nebula_operation_duration_seconds{kind}
//	nebula_wallet_connected
//	nebula_active_auctions
//	nebula_snapshots_total{outcome}
//	go_* and process_* runtime metrics
//
// They are served by Handler, mounted at /metrics by the HTTP server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const namespace = "nebula"

// Metrics owns a private registry so that tests and multiple instances do
// not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	operations      *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	walletConnected prometheus.Gauge
	activeAuctions  prometheus.Gauge
	snapshots       *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Marketplace writes by kind and outcome (confirmed or an error kind).",
		}, []string{"kind", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_rejections_total",
			Help:      "Writes refused because the same operation on the same entity was in flight.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time from submission to confirmation or failure.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"kind"}),
		walletConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_connected",
			Help:      "1 while a wallet session is connected.",
		}),
		activeAuctions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_auctions",
			Help:      "Active auctions seen by the last monitor tick.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Marketplace snapshot uploads by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.operations,
		m.rejections,
		m.duration,
		m.walletConnected,
		m.activeAuctions,
		m.snapshots,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation records a finished write.
func (m *Metrics) ObserveOperation(kind domain.OpKind, outcome string, elapsed time.Duration) {
	m.operations.WithLabelValues(string(kind), outcome).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// RejectOperation records a write refused by the serializer.
func (m *Metrics) RejectOperation(kind domain.OpKind) {
	m.rejections.WithLabelValues(string(kind)).Inc()
}

// ObserveSession tracks the connected gauge from session events.
func (m *Metrics) ObserveSession(ev domain.SessionEvent) {
	if ev.Session.Connected() {
		m.walletConnected.Set(1)
		return
	}
	m.walletConnected.Set(0)
}

// SetActiveAuctions records the active auction count.
func (m *Metrics) SetActiveAuctions(n int) { m.activeAuctions.Set(float64(n)) }

// ObserveSnapshot counts a snapshot upload.
func (m *Metrics) ObserveSnapshot(err error) {
	if err != nil {
		m.snapshots.WithLabelValues("error").Inc()
		return
	}
	m.snapshots.WithLabelValues("ok").Inc()
}
