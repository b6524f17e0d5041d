// Package metrics exposes the engine's Prometheus series:
//
//	bracket_orders_submitted_total{kind,side,result} – venue orders by kind (entry|stop_loss|take_profit)
//	bracket_trades_total{result}                     – executed trades (ok|partial|rejected|failed)
//	bracket_oco_resolutions_total{leg}               – pairs resolved, by the leg that filled (or "both_terminal")
//	bracket_oco_cancel_errors_total                  – non-benign sibling cancel failures
//	bracket_oco_tracked_pairs                        – active pairs in the tracking table
//	bracket_price_ticks_total{symbol}                – ticks delivered to strategies
//	bracket_strategy_failures_total{symbol}          – strategy errors and panics
//
// All series live on the default registry and are served by promhttp.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracket_orders_submitted_total",
			Help: "Orders submitted to the venue",
		},
		[]string{"kind", "side", "result"},
	)

	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracket_trades_total",
			Help: "Bracket trades by outcome",
		},
		[]string{"result"},
	)

	ocoResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracket_oco_resolutions_total",
			Help: "Tracked pairs resolved, split by the leg that triggered resolution",
		},
		[]string{"leg"},
	)

	ocoCancelErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bracket_oco_cancel_errors_total",
			Help: "Sibling cancels that failed for a non-benign reason",
		},
	)

	trackedPairs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bracket_oco_tracked_pairs",
			Help: "Pairs currently tracked by the OCO monitor",
		},
	)

	priceTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracket_price_ticks_total",
			Help: "Price ticks delivered to strategies",
		},
		[]string{"symbol"},
	)

	strategyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracket_strategy_failures_total",
			Help: "Strategy callbacks that returned an error or panicked",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(ordersSubmitted, trades)
	prometheus.MustRegister(ocoResolutions, ocoCancelErrors, trackedPairs)
	prometheus.MustRegister(priceTicks, strategyFailures)
}

func IncOrderSubmitted(kind, side string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	ordersSubmitted.WithLabelValues(kind, side, result).Inc()
}

func IncTrade(result string)        { trades.WithLabelValues(result).Inc() }
func IncOCOResolution(leg string)   { ocoResolutions.WithLabelValues(leg).Inc() }
func IncOCOCancelError()            { ocoCancelErrors.Inc() }
func SetTrackedPairs(n int)         { trackedPairs.Set(float64(n)) }
func IncPriceTick(symbol string)    { priceTicks.WithLabelValues(symbol).Inc() }
func IncStrategyFailure(sym string) { strategyFailures.WithLabelValues(sym).Inc() }
