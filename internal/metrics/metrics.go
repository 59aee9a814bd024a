// Package metrics exposes Prometheus counters and gauges for the trader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all trader collectors, registered on the given registerer.
type Metrics struct {
	TicksReceived   *prometheus.CounterVec
	CandlesClosed   *prometheus.CounterVec
	Signals         *prometheus.CounterVec
	Reconnects      prometheus.Counter
	OrdersSubmitted *prometheus.CounterVec
	OrderFailures   *prometheus.CounterVec
	StreamConnected prometheus.Gauge
}

// New registers and returns the trader metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TicksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_ticks_received_total",
			Help: "Raw quote ticks received from the stream.",
		}, []string{"epic"}),

		CandlesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_candles_closed_total",
			Help: "Candles closed by the aggregator.",
		}, []string{"epic"}),

		Signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Strategy decisions per closed candle.",
		}, []string{"epic", "decision"}),

		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "trader_stream_reconnects_total",
			Help: "Streaming session reconnect attempts.",
		}),

		OrdersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_submitted_total",
			Help: "Working orders successfully submitted.",
		}, []string{"epic", "direction"}),

		OrderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_order_failures_total",
			Help: "Working order submissions that failed.",
		}, []string{"epic"}),

		StreamConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trader_stream_connected",
			Help: "1 while the streaming session is subscribed, else 0.",
		}),
	}
}
