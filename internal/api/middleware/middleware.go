// Package middleware provides the HTTP middleware for the telemetry core:
// request logging and Prometheus instrumentation. Both are aware of the
// long-lived WebSocket sessions on the submit and feed routes, which look
// nothing like ordinary request/response traffic.
package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_http_requests_total",
			Help: "Total HTTP requests served, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telemetry_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	wsSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_ws_sessions_total",
			Help: "Total WebSocket sessions accepted, by route",
		},
		[]string{"route"},
	)
)

// statusWriter records the response status and whether the connection was
// hijacked for a WebSocket session.
type statusWriter struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack implements http.Hijacker so WebSocket upgrades on the submit and
// feed routes work through the middleware chain.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	w.hijacked = true
	return hj.Hijack()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// Metrics records request counts and latencies. Hijacked WebSocket
// sessions are counted on their own; their duration is a session lifetime,
// not a request latency, so they stay out of the histogram.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		if ww.hijacked {
			wsSessionsTotal.WithLabelValues(route).Inc()
			return
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// quietRoutes are probe and scrape endpoints, logged at debug so the info
// stream stays focused on telemetry traffic.
var quietRoutes = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// RequestLogger returns a middleware that logs each request. A WebSocket
// session logs once, on close, with its full lifetime as the duration.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := chimw.GetReqID(r.Context())
			reqLogger := logger.With().Str("request_id", reqID).Logger()
			r = r.WithContext(reqLogger.WithContext(r.Context()))

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			evt := reqLogger.Info()
			if _, quiet := quietRoutes[r.URL.Path]; quiet {
				evt = reqLogger.Debug()
			}

			msg := "request"
			if ww.hijacked {
				msg = "websocket session closed"
			}
			evt.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg(msg)
		})
	}
}
