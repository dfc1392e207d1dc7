// Package metrics provides Prometheus instrumentation for the ledger engine.
package metrics

import (
	"bufio"
	"errors"
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
	// RequestsTotal counts engine requests by operation and outcome
	// ("ok", "intercepted" or a fault code).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_requests_total",
		Help: "Total number of ledger requests",
	}, []string{"op", "outcome"})

	// RequestLatency tracks engine request latency, commit included.
	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_request_latency_seconds",
		Help:    "Ledger request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// FeesCollected accumulates transfer tax per destination, in tokens.
	FeesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_fees_collected_tokens_total",
		Help: "Transfer tax credited to each fee destination",
	}, []string{"destination", "direction"})

	// RewardsPaid accumulates claimed position rewards, in tokens.
	RewardsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_rewards_paid_tokens_total",
		Help: "Position rewards paid from the reward pool",
	})

	// AntibotInterceptions counts transfers held by the antibot gate.
	AntibotInterceptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_antibot_interceptions_total",
		Help: "Transfers intercepted by the antibot gate",
	})

	// PositionsMinted counts minted positions by kind ("regular", "presale").
	PositionsMinted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_positions_minted_total",
		Help: "Positions minted",
	}, []string{"kind"})

	// StateVersion is the version of the last committed snapshot.
	StateVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_state_version",
		Help: "Version of the last committed state snapshot",
	})

	// BlockHeight is the block height seen by the last request.
	BlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_block_height",
		Help: "Current block height",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_http_rate_limited_total",
		Help: "HTTP requests rejected by the rate limiter",
	})
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
