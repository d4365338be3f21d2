package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Common HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Gateway-specific metrics.
var (
	proxyCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_proxy_calls_total",
			Help: "Proxied JSON-RPC calls by tool and decision.",
		},
		[]string{"tool", "decision"},
	)

	upstreamDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "toolgate_upstream_duration_seconds",
		Help:    "Upstream call latencies in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toolgate_rate_limited_total",
		Help: "Requests rejected by the per-identity rate limiter.",
	})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "toolgate_active_sessions",
		Help: "Backend sessions currently tracked by the registry.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		proxyCallsTotal, upstreamDuration, rateLimitedTotal, activeSessions,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProxyCall records the outcome of one proxied call.
func ObserveProxyCall(tool, decision string) {
	proxyCallsTotal.WithLabelValues(tool, decision).Inc()
}

// ObserveUpstream records the latency of one upstream round trip.
func ObserveUpstream(d time.Duration) {
	upstreamDuration.Observe(d.Seconds())
}

// ObserveRateLimited counts a limiter rejection.
func ObserveRateLimited() {
	rateLimitedTotal.Inc()
}

// SetActiveSessions updates the session registry gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush preserves streaming support for instrumented SSE responses.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
