package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests           *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	errors             *prometheus.CounterVec
	allocations        *prometheus.CounterVec
	deallocations      *prometheus.CounterVec
	reconcilerRuns     *prometheus.CounterVec
	reconcilerConflict *prometheus.CounterVec
	reconcilerResolved *prometheus.CounterVec
	cacheResults       *prometheus.CounterVec
	cacheFallbacks     *prometheus.CounterVec
}

// NewMetrics registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "housing_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_http_errors_total",
			Help: "HTTP error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		allocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_allocation_attempts_total",
			Help: "Allocation attempts by outcome code.",
		}, []string{"outcome"}),
		deallocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_deallocation_attempts_total",
			Help: "Deallocation attempts by outcome code.",
		}, []string{"outcome"}),
		reconcilerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_reconciler_runs_total",
			Help: "Reconciler scans by result.",
		}, []string{"result"}),
		reconcilerConflict: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_reconciler_conflicts_total",
			Help: "Conflicts detected by the reconciler, by type.",
		}, []string{"type"}),
		reconcilerResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_reconciler_resolved_total",
			Help: "Conflicts auto-resolved by the reconciler, by type.",
		}, []string{"type"}),
		cacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_cache_lookups_total",
			Help: "Cache lookups by result.",
		}, []string{"result"}),
		cacheFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_cache_fallbacks_total",
			Help: "Shared cache operations served by the local cache instead.",
		}, []string{"op"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordAllocation counts an allocate call by its outcome ("OK" or an error code).
func (m *Metrics) RecordAllocation(outcome string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(outcome).Inc()
}

// RecordDeallocation counts a deallocate call by its outcome.
func (m *Metrics) RecordDeallocation(outcome string) {
	if m == nil {
		return
	}
	m.deallocations.WithLabelValues(outcome).Inc()
}

// RecordReconcilerRun counts a finished scan.
func (m *Metrics) RecordReconcilerRun(result string) {
	if m == nil {
		return
	}
	m.reconcilerRuns.WithLabelValues(result).Inc()
}

// RecordConflict counts one detected conflict.
func (m *Metrics) RecordConflict(conflictType string) {
	if m == nil {
		return
	}
	m.reconcilerConflict.WithLabelValues(conflictType).Inc()
}

// RecordResolved counts one auto-resolved conflict.
func (m *Metrics) RecordResolved(conflictType string) {
	if m == nil {
		return
	}
	m.reconcilerResolved.WithLabelValues(conflictType).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues("miss").Inc()
}

func (m *Metrics) CacheFallback(op string) {
	if m == nil {
		return
	}
	m.cacheFallbacks.WithLabelValues(op).Inc()
}
