// Package metrics exposes the matching engine's Prometheus instrumentation:
// orders submitted, trades executed, and matching latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's metrics. Unlike a singleton registry, it is
// constructed once in cmd/server and passed to the engine explicitly.
type Collector struct {
	OrdersTotal     *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec
	TradesTotal     *prometheus.CounterVec
	TradeVolume     *prometheus.CounterVec
	MatchingLatency *prometheus.HistogramVec
	ReservationFail *prometheus.CounterVec
}

// NewCollector builds and registers the collector's metrics against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spotx",
				Subsystem: "orders",
				Name:      "submitted_total",
				Help:      "Total number of orders submitted, by symbol and side.",
			},
			[]string{"symbol", "side"},
		),
		OrdersCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spotx",
				Subsystem: "orders",
				Name:      "cancelled_total",
				Help:      "Total number of orders cancelled, by symbol.",
			},
			[]string{"symbol"},
		),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spotx",
				Subsystem: "trades",
				Name:      "total",
				Help:      "Total number of trades executed, by symbol.",
			},
			[]string{"symbol"},
		),
		TradeVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spotx",
				Subsystem: "trades",
				Name:      "volume_base",
				Help:      "Total traded base-asset volume, by symbol.",
			},
			[]string{"symbol"},
		),
		MatchingLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "spotx",
				Subsystem: "matching",
				Name:      "submit_latency_ms",
				Help:      "Engine.Submit end-to-end latency in milliseconds.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
			},
			[]string{"symbol"},
		),
		ReservationFail: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spotx",
				Subsystem: "reservation",
				Name:      "failures_total",
				Help:      "Reservation failures, by reason.",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(c.OrdersTotal, c.OrdersCancelled, c.TradesTotal, c.TradeVolume, c.MatchingLatency, c.ReservationFail)
	return c
}

// RecordSubmit records one Submit call's outcome.
func (c *Collector) RecordSubmit(symbol, side string, trades int, volume float64, latency time.Duration) {
	c.OrdersTotal.WithLabelValues(symbol, side).Inc()
	if trades > 0 {
		c.TradesTotal.WithLabelValues(symbol).Add(float64(trades))
		c.TradeVolume.WithLabelValues(symbol).Add(volume)
	}
	c.MatchingLatency.WithLabelValues(symbol).Observe(float64(latency.Microseconds()) / 1000.0)
}

// RecordCancel records a successful cancel.
func (c *Collector) RecordCancel(symbol string) {
	c.OrdersCancelled.WithLabelValues(symbol).Inc()
}

// RecordReservationFailure records a failed reservation by reason
// ("insufficient_balance", "insufficient_asset", "asset_not_found").
func (c *Collector) RecordReservationFailure(reason string) {
	c.ReservationFail.WithLabelValues(reason).Inc()
}

// Handler exposes the metrics in the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
