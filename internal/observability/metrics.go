package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weather-history-dashboard/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Archive API call rate by status. Watch for: error vs success ratio.
	ArchiveAPICallsTotal *prometheus.CounterVec

	// Archive API latency. Watch for: p95 > 2s (upstream degradation).
	ArchiveAPIDuration *prometheus.HistogramVec

	// Cache hits and misses. Hit rate = hits/(hits+misses).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation and category. Never fatal to a fetch.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache get/set latency by result.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// In-memory cache removals by reason (capacity, expired).
	CacheEvictionsTotal *prometheus.CounterVec

	// Cache warming runs, errors and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Fetches that shared an in-flight upstream call for the same key.
	FetchCoalescedTotal prometheus.Counter

	// History fetches by result category (success, validation, remote_api, network, malformed, unknown).
	HistoryFetchesTotal *prometheus.CounterVec

	// Controller outcome commits by status, and resolutions discarded by reason.
	OutcomeCommitsTotal  *prometheus.CounterVec
	OutcomeDiscardsTotal *prometheus.CounterVec

	// Rejected form input at the HTTP surface, by field.
	ValidationFailuresTotal *prometheus.CounterVec

	// Mounted dashboards. Watch for: unbounded growth (idle sweep not running).
	DashboardsMounted prometheus.Gauge

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state (0 closed, 1 half-open, 2 open) and transitions.
	CircuitBreakerState            *prometheus.GaugeVec
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Scheduled job runs by job and result.
	SchedulerJobRunsTotal *prometheus.CounterVec

	trafficGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ArchiveAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiveApiCallsTotal",
			Help: "Total number of archive API calls",
		},
		[]string{"status"},
	)
	ArchiveAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiveApiDurationSeconds",
			Help:    "Archive API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses, including stale entries",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache get/set latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "result"},
	)
	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Cache entries removed, by reason (capacity, expired, corrupt)",
		},
		[]string{"reason"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed preset",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30},
		},
	)
	FetchCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchCoalescedTotal",
			Help: "History fetches that shared an in-flight upstream call",
		},
	)
	HistoryFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historyFetchesTotal",
			Help: "History fetches by result category",
		},
		[]string{"result"},
	)
	OutcomeCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outcomeCommitsTotal",
			Help: "Dashboard outcome transitions committed, by status",
		},
		[]string{"status"},
	)
	OutcomeDiscardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outcomeDiscardsTotal",
			Help: "Fetch resolutions discarded, by reason (superseded, detached)",
		},
		[]string{"reason"},
	)
	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validationFailuresTotal",
			Help: "Rejected query input, by field",
		},
		[]string{"field"},
	)
	DashboardsMounted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboardsMounted",
			Help: "Number of currently mounted dashboards",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	SchedulerJobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerJobRunsTotal",
			Help: "Scheduled job runs by job and result",
		},
		[]string{"job", "result"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ArchiveAPICallsTotal, ArchiveAPIDuration,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds, CacheEvictionsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		FetchCoalescedTotal, HistoryFetchesTotal,
		OutcomeCommitsTotal, OutcomeDiscardsTotal, ValidationFailuresTotal, DashboardsMounted,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		SchedulerJobRunsTotal,
	)
}

// RegisterTrafficGauges registers sliding-window gauges over the traffic tracker.
// Call from main after config load with the health window.
func RegisterTrafficGauges(window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "archiveFetchesInWindow",
					Help: "Archive fetch outcomes in the health window",
				},
				func() float64 {
					_, total := traffic.ErrorRate(window)
					return float64(total)
				},
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the health window",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(CircuitBreakerStateValue(to))
}

// CircuitBreakerStateValue maps a state name to its gauge value.
func CircuitBreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
