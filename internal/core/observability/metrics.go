// Package observability records Prometheus metrics for the proxy, its strategies and stores.
package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	upstreamLatencySeconds     *prometheus.HistogramVec
	strategyResults            *prometheus.CounterVec
	storeOps                   *prometheus.CounterVec
	storeOpDuration            *prometheus.HistogramVec
	precacheFetches            *prometheus.CounterVec
	revalidateFailures         prometheus.Counter
	controlMessages            *prometheus.CounterVec
	generationInfo             *prometheus.GaugeVec
}

var current atomic.Pointer[metricSet]

func newMetricSet() *metricSet {
	return &metricSet{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"method", "route", "status"},
		),
		upstreamLatencySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_latency_seconds",
				Help:    "Latency of origin fetches in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"upstream"},
		),
		strategyResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strategy_results_total",
				Help: "Intercepted requests by resource class and response source.",
			},
			[]string{"class", "source"},
		),
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_op_total",
				Help: "Cache store operations by result.",
			},
			[]string{"op", "result"},
		),
		storeOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cache_operation_duration_seconds",
				Help:    "Cache store operation latency in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),
		precacheFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "precache_fetch_total",
				Help: "Precache attempts by phase and result.",
			},
			[]string{"phase", "result"},
		),
		revalidateFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "revalidate_failures_total",
				Help: "Background revalidations that failed to refresh the cache.",
			},
		),
		controlMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "control_messages_total",
				Help: "Control channel messages by type and result.",
			},
			[]string{"type", "result"},
		),
		generationInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cache_generation_info",
				Help: "Current cache generation (value is always 1).",
			},
			[]string{"namespace"},
		),
	}
}

// Init registers the metric set on r. With enabled=false every observer is a no-op.
func Init(r prometheus.Registerer, enabled bool) {
	if !enabled || r == nil {
		current.Store(nil)
		return
	}
	m := newMetricSet()
	r.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDurationSeconds,
		m.upstreamLatencySeconds,
		m.strategyResults,
		m.storeOps,
		m.storeOpDuration,
		m.precacheFetches,
		m.revalidateFailures,
		m.controlMessages,
		m.generationInfo,
	)
	current.Store(m)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	m := current.Load()
	if m == nil {
		return
	}
	st := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	m.httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	if m := current.Load(); m != nil {
		m.upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
	}
}

func IncStrategyResult(class, source string) {
	if m := current.Load(); m != nil {
		m.strategyResults.WithLabelValues(class, source).Inc()
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	m := current.Load()
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeOps.WithLabelValues(op, result).Inc()
	m.storeOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncPrecache(phase, result string) {
	if m := current.Load(); m != nil {
		m.precacheFetches.WithLabelValues(phase, result).Inc()
	}
}

func IncRevalidateFailure() {
	if m := current.Load(); m != nil {
		m.revalidateFailures.Inc()
	}
}

func IncControlMessage(typ, result string) {
	if m := current.Load(); m != nil {
		m.controlMessages.WithLabelValues(typ, result).Inc()
	}
}

func SetGeneration(namespace string) {
	m := current.Load()
	if m == nil {
		return
	}
	m.generationInfo.Reset()
	m.generationInfo.WithLabelValues(namespace).Set(1)
}
