package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records response cache lookup calls.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records response cache store attempts.
	CacheOperationStore CacheOperation = "store"
	// CacheOperationClear records full or pattern-scoped clears.
	CacheOperationClear CacheOperation = "clear"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached payload.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached payload was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed due to an error.
	CacheLookupError CacheLookupOutcome = "error"
)

// FetchOutcome captures the result of one remote fetch cycle.
type FetchOutcome string

const (
	// FetchOK indicates a completed fetch cycle.
	FetchOK FetchOutcome = "ok"
	// FetchEmpty indicates the sheet had no usable header or rows.
	FetchEmpty FetchOutcome = "empty"
	// FetchError indicates the cycle aborted on an unrecovered failure.
	FetchError FetchOutcome = "error"
)

// Recorder publishes Prometheus metrics for API, cache, and fetch activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	fetchCycles  *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	fetchRows    prometheus.Counter
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presensi",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total API requests served.",
	}, []string{"endpoint", "status_code", "from_cache"})

	apiLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presensi",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed API requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presensi",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Response cache operations executed by the service.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presensi",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for response cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	fetchCycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presensi",
		Subsystem: "sheet",
		Name:      "fetch_cycles_total",
		Help:      "Remote fetch cycles by outcome.",
	}, []string{"outcome"})

	fetchLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presensi",
		Subsystem: "sheet",
		Name:      "fetch_duration_seconds",
		Help:      "Latency distribution for remote fetch cycles.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
	}, []string{"outcome"})

	fetchRows := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presensi",
		Subsystem: "sheet",
		Name:      "fetch_rows_total",
		Help:      "Raw rows retrieved from the remote source.",
	})

	reg.MustRegister(apiRequests, apiLatency, cacheOperations, cacheLatency, fetchCycles, fetchLatency, fetchRows)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		apiRequests:     apiRequests,
		apiLatency:      apiLatency,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
		fetchCycles:     fetchCycles,
		fetchLatency:    fetchLatency,
		fetchRows:       fetchRows,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records the status and latency for a completed API request.
func (r *Recorder) ObserveRequest(endpoint string, statusCode int, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	endpointLabel := normalizeLabel(endpoint)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.apiRequests.WithLabelValues(endpointLabel, statusLabel, cacheLabel).Inc()
	r.apiLatency.WithLabelValues(endpointLabel).Observe(duration.Seconds())
}

// ObserveCacheLookup records the result of a cache lookup.
func (r *Recorder) ObserveCacheLookup(result CacheLookupOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.observeCache(CacheOperationLookup, resultLabel, duration)
}

// ObserveCacheStore records the result of a cache store attempt.
func (r *Recorder) ObserveCacheStore(err error, duration time.Duration) {
	if r == nil {
		return
	}
	result := "stored"
	if err != nil {
		result = "error"
	}
	r.observeCache(CacheOperationStore, result, duration)
}

// ObserveCacheClear records a full or pattern-scoped clear.
func (r *Recorder) ObserveCacheClear(err error, duration time.Duration) {
	if r == nil {
		return
	}
	result := "cleared"
	if err != nil {
		result = "error"
	}
	r.observeCache(CacheOperationClear, result, duration)
}

// ObserveFetch records one remote fetch cycle.
func (r *Recorder) ObserveFetch(outcome FetchOutcome, rows int, duration time.Duration) {
	if r == nil {
		return
	}
	label := string(outcome)
	if label == "" {
		label = string(FetchError)
	}
	r.fetchCycles.WithLabelValues(label).Inc()
	r.fetchLatency.WithLabelValues(label).Observe(duration.Seconds())
	if rows > 0 {
		r.fetchRows.Add(float64(rows))
	}
}

func (r *Recorder) observeCache(operation CacheOperation, result string, duration time.Duration) {
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationLookup)
	}
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
