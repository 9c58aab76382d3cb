// Package observability holds the domain Prometheus collectors.
package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boundary_resolutions_total",
			Help: "Boundary resolutions by the source that satisfied them.",
		},
		[]string{"source"},
	)

	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boundary_cache_ops_total",
			Help: "Cache store operations by result.",
		},
		[]string{"op", "result"},
	)

	cacheOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boundary_cache_op_duration_seconds",
			Help:    "Latency of cache medium operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	remoteFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_fetch_total",
			Help: "Remote boundary lookups by result.",
		},
		[]string{"driver", "result"},
	)

	remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_fetch_duration_seconds",
			Help:    "Latency of remote boundary service calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"driver"},
	)

	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Invalidation events processed by op and result.",
		},
		[]string{"op", "result"},
	)
)

// Collectors lists every domain collector for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		resolutions, cacheOps, cacheOpDuration,
		remoteFetches, remoteDuration, invalidations,
	}
}

// Init registers the collectors with reg (the default registerer when nil).
// Observations are dropped while disabled.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if !on {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveResolution(source string) {
	if !enabled.Load() {
		return
	}
	resolutions.WithLabelValues(source).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOps.WithLabelValues(op, result).Inc()
	cacheOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

// ObserveCacheLookup records hit/miss/corrupt outcomes of a store read.
func ObserveCacheLookup(result string) {
	if !enabled.Load() {
		return
	}
	cacheOps.WithLabelValues("lookup", result).Inc()
}

func ObserveRemoteFetch(driver, result string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	remoteFetches.WithLabelValues(driver, result).Inc()
	if durationSeconds > 0 {
		remoteDuration.WithLabelValues(driver).Observe(durationSeconds)
	}
}

func ObserveInvalidation(op string, err error) {
	if !enabled.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	invalidations.WithLabelValues(op, result).Inc()
}

// ObserveInvalidationDuplicate counts events skipped as already applied.
func ObserveInvalidationDuplicate(op string) {
	if !enabled.Load() {
		return
	}
	invalidations.WithLabelValues(op, "duplicate").Inc()
}
