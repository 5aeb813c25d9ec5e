package middleware

import (
	"net/http"
	"strconv"
	"time"

	"partymaker/internal/logging"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestLog logs each request and records proxy metrics on reg (nil
// leaves the metrics unregistered).
func RequestLog(reg prometheus.Registerer) func(http.Handler) http.Handler {
	f := promauto.With(reg)
	requests := f.NewCounterVec(prometheus.CounterOpts{
		Name: "partymaker_proxy_requests_total",
		Help: "Requests served by the proxy, by method, route and status code.",
	}, []string{"method", "route", "code"})
	duration := f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "partymaker_proxy_request_duration_seconds",
		Help:    "Proxy request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	log := logging.For("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			duration.WithLabelValues(route).Observe(elapsed.Seconds())

			attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "bytes", ww.BytesWritten(), "elapsed", elapsed}
			switch {
			case status >= 500:
				log.Error("request", attrs...)
			case status >= 400:
				log.Warn("request", attrs...)
			default:
				log.Debug("request", attrs...)
			}
		})
	}
}
