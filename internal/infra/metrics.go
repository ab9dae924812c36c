// Prometheus metrics updated by the trading loop and served by the
// side HTTP listener started in main (/metrics, text exposition format).
package infra

import "github.com/prometheus/client_golang/prometheus"

var (
	// MetricOrders counts committed orders by side (buy|sell).
	MetricOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipbot_orders_total",
			Help: "Orders committed to the journal",
		},
		[]string{"side"},
	)

	// MetricRetries counts individual retry attempts of exchange calls.
	MetricRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dipbot_exchange_retries_total",
			Help: "Retry attempts against the exchange",
		},
	)

	// MetricBreakerTrips counts drawdown-breaker activations.
	MetricBreakerTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dipbot_breaker_trips_total",
			Help: "Times the daily drawdown breaker paused trading",
		},
	)

	// MetricCycleErrors counts recovered per-cycle failures.
	MetricCycleErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dipbot_cycle_errors_total",
			Help: "Loop iterations that failed and were recovered",
		},
	)

	// MetricRunning is 1 while the loop is trading, 0 while idle or paused.
	MetricRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipbot_running",
			Help: "Whether the trading loop is active",
		},
	)

	// MetricQuoteBalance is the last quote-currency balance observed.
	MetricQuoteBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipbot_quote_balance",
			Help: "Last observed quote-currency balance",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MetricOrders,
		MetricRetries,
		MetricBreakerTrips,
		MetricCycleErrors,
		MetricRunning,
		MetricQuoteBalance,
	)
}
