// Package metrics exposes Prometheus collectors for the HTTP surface and
// the storage layer, served on a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StorageObserver records the outcome of a single storage operation.
// Implemented by MetricsServer; a nil observer is a no-op at call sites.
type StorageObserver interface {
	ObserveStorageOp(op string, err error, dur time.Duration)
}

// MetricsServer owns a private registry, the service collectors, and an
// HTTP server exposing /metrics. With an empty address the collectors
// still work but nothing is served.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	storageOps      *prometheus.CounterVec
	storageDuration *prometheus.HistogramVec
}

// New creates a MetricsServer with a fresh registry and all collectors
// registered under the given namespace.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed, partitioned by method and status code.",
	}, []string{"method", "code"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "code"})
	storageOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Total storage backend operations, partitioned by operation and result.",
	}, []string{"operation", "result"})
	storageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Histogram of storage backend operation durations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	if err := registry.Register(httpRequests); err != nil {
		return nil, err
	}
	if err := registry.Register(httpDuration); err != nil {
		return nil, err
	}
	if err := registry.Register(storageOps); err != nil {
		return nil, err
	}
	if err := registry.Register(storageDuration); err != nil {
		return nil, err
	}

	m := &MetricsServer{
		registry:        registry,
		httpRequests:    httpRequests,
		httpDuration:    httpDuration,
		storageOps:      storageOps,
		storageDuration: storageDuration,
	}

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		m.srv = &http.Server{Addr: addr, Handler: mux}
	}

	return m, nil
}

// ListenAndServe serves /metrics until Shutdown. Returns immediately when
// no metrics address was configured.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

// ObserveStorageOp records one storage backend operation.
func (m *MetricsServer) ObserveStorageOp(op string, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storageOps.WithLabelValues(op, result).Inc()
	m.storageDuration.WithLabelValues(op).Observe(dur.Seconds())
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments a handler with request count and latency metrics.
func (m *MetricsServer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		code := strconv.Itoa(rec.status)
		m.httpRequests.WithLabelValues(r.Method, code).Inc()
		m.httpDuration.WithLabelValues(r.Method, code).Observe(time.Since(start).Seconds())
	})
}
