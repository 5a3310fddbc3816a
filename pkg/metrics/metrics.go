// Package metrics exposes Prometheus instrumentation for routing and
// backend activity. A single Metrics value plugs into both the router
// and the dispatcher as their observer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zen-systems/quorum/pkg/schema"
)

const namespace = "quorum"

// Metrics holds the Prometheus collectors for the routing core.
type Metrics struct {
	RouteRequests  *prometheus.CounterVec
	AgreementRatio *prometheus.HistogramVec
	BackendCalls   *prometheus.CounterVec
	BackendLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RouteRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_requests_total",
				Help:      "Total routing requests by strategy and outcome",
			},
			[]string{"strategy", "status"},
		),
		AgreementRatio: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agreement_ratio",
				Help:      "Agreement ratio of completed consensus evaluations",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
			[]string{"strategy"},
		),
		BackendCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Total backend model calls by outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		BackendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_latency_seconds",
				Help:      "Backend call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
	}
}

// RouteCompleted records the outcome of one routing request. The
// agreement ratio is only observed for successful routes.
func (m *Metrics) RouteCompleted(strategy schema.ConsensusStrategy, status string, agreementRatio float64) {
	m.RouteRequests.WithLabelValues(string(strategy), status).Inc()
	if status == "ok" {
		m.AgreementRatio.WithLabelValues(string(strategy)).Observe(agreementRatio)
	}
}

// CallCompleted records one backend model call.
func (m *Metrics) CallCompleted(provider schema.Provider, model string, success bool, latency time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.BackendCalls.WithLabelValues(string(provider), model, outcome).Inc()
	m.BackendLatency.WithLabelValues(string(provider)).Observe(latency.Seconds())
}

// Handler returns an HTTP handler serving the default registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
