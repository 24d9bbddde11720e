// Package metrics provides Prometheus metrics collection for the market-data feed.
// It defines the connection, frame, subscription and history metrics that are
// exposed via the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the feed.
type Metrics struct {
	// Connection metrics
	WSConnects     prometheus.Counter // Successful WebSocket opens
	WSCloses       prometheus.Counter // Transport closes, remote or local
	WSDialFailures prometheus.Counter // Failed dial attempts
	WSReconnects   prometheus.Counter // Reconnect attempts made by the app-level reconnector

	// Frame metrics
	FramesReceived prometheus.Counter // Inbound frames decoded successfully
	FramesDropped  prometheus.Counter // Inbound frames dropped as malformed
	SendsDropped   prometheus.Counter // Outbound messages dropped while disconnected

	// Subscription metrics
	ActiveSubscriptions prometheus.Gauge   // Live symbol subscriptions
	TicksDelivered      prometheus.Counter // Candles handed to subscription handlers

	// History metrics
	HistoryLatency  prometheus.Histogram // Historical fetch latency in seconds
	HistoryFailures prometheus.Counter   // Historical fetches that failed

	// Feed server metrics
	FeedClients prometheus.Gauge // Clients attached to the development feed server

	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		WSConnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_connects_total",
			Help: "Total number of WebSocket connections opened",
		}),
		WSCloses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_closes_total",
			Help: "Total number of WebSocket connections closed",
		}),
		WSDialFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_dial_failures_total",
			Help: "Total number of failed WebSocket dials",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Total number of WebSocket reconnection attempts",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "frames_received_total",
			Help: "Total number of inbound frames decoded",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "frames_dropped_total",
			Help: "Total number of inbound frames dropped as malformed",
		}),
		SendsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sends_dropped_total",
			Help: "Total number of outbound messages dropped while disconnected",
		}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_subscriptions",
			Help: "Number of live symbol subscriptions",
		}),
		TicksDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticks_delivered_total",
			Help: "Total number of candles delivered to subscription handlers",
		}),
		HistoryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "history_latency_seconds",
			Help:    "Historical data fetch latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		HistoryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "history_failures_total",
			Help: "Total number of failed historical data fetches",
		}),
		FeedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feed_clients",
			Help: "Number of clients attached to the development feed server",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
