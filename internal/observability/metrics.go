// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Authority metrics
	OperationsTotal  *prometheus.CounterVec
	ExchangedOld     prometheus.Counter
	ExchangedNew     prometheus.Counter
	TotalExchanged   prometheus.Gauge
	RateNumerator    prometheus.Gauge
	RateDenominator  prometheus.Gauge
	WithdrawnTotal   *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec

	// Chain index metrics
	EventsIndexed   *prometheus.CounterVec
	HighestSlotSeen prometheus.Gauge
	RPCCallLatency  *prometheus.HistogramVec
	WSReconnects    prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "swap_authority"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "operations_total",
			Help:      "Total number of operations by name and result code",
		}, []string{"op", "result"}),
		ExchangedOld: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "exchanged_old_units_total",
			Help:      "Old-asset base units received by exchanges",
		}),
		ExchangedNew: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "exchanged_new_units_total",
			Help:      "New-asset base units paid out by exchanges",
		}),
		TotalExchanged: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "total_exchanged",
			Help:      "Cumulative old-asset total stored in the configuration record",
		}),
		RateNumerator: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "rate_numerator",
			Help:      "Current exchange rate numerator",
		}),
		RateDenominator: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "rate_denominator",
			Help:      "Current exchange rate denominator",
		}),
		WithdrawnTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "withdrawn_units_total",
			Help:      "Base units withdrawn from vaults by the controller",
		}, []string{"vault"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "operation_latency_seconds",
			Help:      "Operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		EventsIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "events_indexed_total",
			Help:      "Exchange events indexed from the chain by source",
		}, []string{"source"}),
		HighestSlotSeen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnects",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordOperation records the outcome and latency of an authority operation.
// result is "ok" or the failure name.
func RecordOperation(op, result string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(op, result).Inc()
	DefaultMetrics.OperationLatency.WithLabelValues(op).Observe(seconds)
}

// RecordExchange records the amounts moved by a successful exchange.
func RecordExchange(oldAmount, newAmount, total uint64) {
	DefaultMetrics.ExchangedOld.Add(float64(oldAmount))
	DefaultMetrics.ExchangedNew.Add(float64(newAmount))
	DefaultMetrics.TotalExchanged.Set(float64(total))
}

// SetRate updates the current rate gauges.
func SetRate(numerator, denominator uint64) {
	DefaultMetrics.RateNumerator.Set(float64(numerator))
	DefaultMetrics.RateDenominator.Set(float64(denominator))
}

// RecordWithdrawal records a controller withdrawal from vault ("old" or "new").
func RecordWithdrawal(vault string, amount uint64) {
	DefaultMetrics.WithdrawnTotal.WithLabelValues(vault).Add(float64(amount))
}

// RecordEventIndexed increments the indexed events counter for source.
func RecordEventIndexed(source string) {
	DefaultMetrics.EventsIndexed.WithLabelValues(source).Inc()
}

// highestSlot backs HighestSlotSeen so the gauge never moves backwards.
var highestSlot atomic.Int64

// UpdateHighestSlot raises the highest slot seen gauge to slot.
func UpdateHighestSlot(slot int64) {
	for {
		cur := highestSlot.Load()
		if slot <= cur {
			return
		}
		if highestSlot.CompareAndSwap(cur, slot) {
			DefaultMetrics.HighestSlotSeen.Set(float64(slot))
			return
		}
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSReconnect increments the WebSocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest counts a served HTTP request.
func RecordHTTPRequest(route, code string) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
}
