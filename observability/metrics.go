// Package observability provides Prometheus metrics for the service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dlmm_scout"

// Metrics holds the service's collectors. All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequests    *prometheus.CounterVec
	RateLimited     prometheus.Counter
	StreamDuration  *prometheus.HistogramVec
	StreamedChunks  prometheus.Counter
	PoolSearches    prometheus.Counter
	EligiblePools   prometheus.Histogram
	GatewayErrors   *prometheus.CounterVec
	WebSocketActive prometheus.Gauge
}

// NewMetrics registers every collector on reg. A nil reg gets a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat relay requests by outcome",
		}, []string{"outcome"}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),

		StreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of upstream completion streams",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"outcome"}),

		StreamedChunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streamed_chunks_total",
			Help:      "Text fragments forwarded to clients",
		}),

		PoolSearches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_searches_total",
			Help:      "Completed pool searches",
		}),

		EligiblePools: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "eligible_pools",
			Help:      "Pools surviving all search phases",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),

		GatewayErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Upstream dependency failures",
		}, []string{"gateway"}),

		WebSocketActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open chat WebSocket connections",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveChat counts a finished chat request.
func (m *Metrics) ObserveChat(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
	if outcome == "rate_limited" {
		m.RateLimited.Inc()
	}
}

// ObserveStream records one upstream stream.
func (m *Metrics) ObserveStream(outcome string, started time.Time, chunks int) {
	if m == nil {
		return
	}
	m.StreamDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	m.StreamedChunks.Add(float64(chunks))
}

// ObserveSearch records a completed pool search.
func (m *Metrics) ObserveSearch(eligible int) {
	if m == nil {
		return
	}
	m.PoolSearches.Inc()
	m.EligiblePools.Observe(float64(eligible))
}

// ObserveGatewayError counts a failure of the named upstream.
func (m *Metrics) ObserveGatewayError(gateway string) {
	if m == nil {
		return
	}
	m.GatewayErrors.WithLabelValues(gateway).Inc()
}

// WebSocketOpened and WebSocketClosed track live chat sockets.
func (m *Metrics) WebSocketOpened() {
	if m == nil {
		return
	}
	m.WebSocketActive.Inc()
}

func (m *Metrics) WebSocketClosed() {
	if m == nil {
		return
	}
	m.WebSocketActive.Dec()
}
