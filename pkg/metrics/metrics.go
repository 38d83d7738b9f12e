// Package metrics holds the bot's Prometheus instruments:
//
//	loadgen_orders_submitted_total{market,side,type}
//	loadgen_order_errors_total{market,code}
//	loadgen_cancels_total{scope}
//	loadgen_trading_pauses_total
//	loadgen_trading_enabled
//	loadgen_side_decisions_total{market,side}
//	loadgen_open_orders{wallet}
//	loadgen_cycles_total
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loadgen"

type Metrics struct {
	OrdersSubmitted *prometheus.CounterVec
	OrderErrors     *prometheus.CounterVec
	Cancels         *prometheus.CounterVec
	TradingPauses   prometheus.Counter
	TradingEnabled  prometheus.Gauge
	SideDecisions   *prometheus.CounterVec
	OpenOrders      *prometheus.GaugeVec
	Cycles          prometheus.Counter
}

// New creates the instruments and registers them with reg. A nil reg
// leaves them unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders accepted by the venue.",
		}, []string{"market", "side", "type"}),
		OrderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_errors_total",
			Help:      "Order submissions rejected or failed, by venue error code.",
		}, []string{"market", "code"}),
		Cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancels_total",
			Help:      "Budget-driven cancel requests.",
		}, []string{"scope"}),
		TradingPauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trading_pauses_total",
			Help:      "Times the trading circuit breaker tripped.",
		}),
		TradingEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trading_enabled",
			Help:      "1 while trading is enabled, 0 while paused.",
		}),
		SideDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_decisions_total",
			Help:      "Sides chosen by the evaluator.",
		}, []string{"market", "side"}),
		OpenOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Locally tracked open order count per wallet.",
		}, []string{"wallet"}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed passes over all accounts and markets.",
		}),
	}
	m.TradingEnabled.Set(1)

	if reg != nil {
		reg.MustRegister(
			m.OrdersSubmitted,
			m.OrderErrors,
			m.Cancels,
			m.TradingPauses,
			m.TradingEnabled,
			m.SideDecisions,
			m.OpenOrders,
			m.Cycles,
		)
	}
	return m
}

// SetTradingEnabled mirrors a breaker transition.
func (m *Metrics) SetTradingEnabled(enabled bool) {
	if enabled {
		m.TradingEnabled.Set(1)
		return
	}
	m.TradingEnabled.Set(0)
	m.TradingPauses.Inc()
}
