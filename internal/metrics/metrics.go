// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	classificationsTotal       *prometheus.CounterVec
	dnsLookupsTotal            *prometheus.CounterVec
	cacheOpsTotal              *prometheus.CounterVec
	backendRequestsTotal       *prometheus.CounterVec
	backendBootstrapsTotal     prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		classificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adscore_classifications_total",
				Help: "Total crawler classifications, labeled by result.",
			},
			[]string{"result"},
		)

		dnsLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adscore_dns_lookups_total",
				Help: "Total DNS verification lookups, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		cacheOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adscore_cache_ops_total",
				Help: "Total cache operations, labeled by op and outcome.",
			},
			[]string{"op", "outcome"},
		)

		backendRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adscore_backend_requests_total",
				Help: "Total backend API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		backendBootstrapsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "adscore_backend_bootstraps_total",
				Help: "Total anonymous token bootstraps issued.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveClassification increments the classification counter.
func ObserveClassification(result string) {
	classificationsTotal.WithLabelValues(result).Inc()
}

// ObserveDNSLookup records one verification lookup.
func ObserveDNSLookup(kind, outcome string) {
	dnsLookupsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveCacheOp records one cache get/set with its outcome
// (hit, miss, error, ok).
func ObserveCacheOp(op, outcome string) {
	cacheOpsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveBackendRequest increments the backend request counter.
func ObserveBackendRequest(method string, code int) {
	backendRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// ObserveBootstrap increments the token bootstrap counter.
func ObserveBootstrap() {
	backendBootstrapsTotal.Inc()
}

// ObserveHTTPRequest increments the inbound HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
