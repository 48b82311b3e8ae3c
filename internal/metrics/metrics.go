// Package metrics provides Prometheus instrumentation for the PnL engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SummariesTotal counts recompute attempts by result
	// (computed, skipped, failed).
	SummariesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnl_summaries_total",
		Help: "Summary recomputes by result",
	}, []string{"result"})

	RecomputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pnl_recompute_latency_seconds",
		Help:    "Single-entity recompute latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OrdersDropped counts orders excluded from accounting, by reason.
	OrdersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnl_orders_dropped_total",
		Help: "Orders excluded by the normalizer",
	}, []string{"reason"})

	// ResolutionSettlements counts positions force-settled at resolution,
	// by price source.
	ResolutionSettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnl_resolution_settlements_total",
		Help: "Positions settled by market resolution",
	}, []string{"source"})

	// ResolutionDisagreements counts resolved positions whose mark price and
	// binary payoff disagree beyond tolerance.
	ResolutionDisagreements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pnl_resolution_disagreements_total",
		Help: "Resolved positions whose mark price disagrees with the payoff",
	})

	OrdersIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pnl_orders_ingested_total",
		Help: "Raw orders accepted by the ingest endpoint",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnl_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnl_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pnl_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps WebSocket upgrades working through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
