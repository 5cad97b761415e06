// Package telemetry exposes the engine's operational counters in Prometheus
// text format. The run command serves them at /metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instruments. A nil *Metrics is valid and every
// method on it is a no-op, so wiring telemetry stays optional.
type Metrics struct {
	registry *prometheus.Registry

	orders      *prometheus.CounterVec
	signals     *prometheus.CounterVec
	stopUpdates prometheus.Counter
	hedges      prometheus.Counter
	rejections  *prometheus.CounterVec
	closes      prometheus.Counter

	openPositions prometheus.Gauge
	equity        prometheus.Gauge
	dayProfit     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders submitted to the terminal",
		}, []string{"side", "kind"}), // kind: entry|hedge
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Directional signals received",
		}, []string{"signal"}),
		stopUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_stop_updates_total",
			Help: "Confirmed trailing stop modifications",
		}),
		hedges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_hedges_total",
			Help: "Hedge triggers that opened at least one counter leg",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_rejections_total",
			Help: "Exposure guard rejections",
		}, []string{"side"}),
		closes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_closes_total",
			Help: "Positions observed closed",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Currently tracked open positions",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_equity",
			Help: "Account equity in account currency",
		}),
		dayProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_day_profit",
			Help: "Realized profit since the daily rollover",
		}),
	}

	m.registry.MustRegister(
		m.orders, m.signals, m.stopUpdates, m.hedges,
		m.rejections, m.closes, m.openPositions, m.equity, m.dayProfit,
	)
	return m
}

// Handler serves the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderSubmitted(side, kind string) {
	if m != nil {
		m.orders.WithLabelValues(side, kind).Inc()
	}
}

func (m *Metrics) SignalReceived(signal string) {
	if m != nil {
		m.signals.WithLabelValues(signal).Inc()
	}
}

func (m *Metrics) StopUpdated() {
	if m != nil {
		m.stopUpdates.Inc()
	}
}

func (m *Metrics) HedgeExecuted() {
	if m != nil {
		m.hedges.Inc()
	}
}

func (m *Metrics) Rejected(side string) {
	if m != nil {
		m.rejections.WithLabelValues(side).Inc()
	}
}

func (m *Metrics) PositionClosed() {
	if m != nil {
		m.closes.Inc()
	}
}

func (m *Metrics) SetOpenPositions(n int) {
	if m != nil {
		m.openPositions.Set(float64(n))
	}
}

func (m *Metrics) SetEquity(v float64) {
	if m != nil {
		m.equity.Set(v)
	}
}

func (m *Metrics) SetDayProfit(v float64) {
	if m != nil {
		m.dayProfit.Set(v)
	}
}
