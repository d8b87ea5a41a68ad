package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookmarket_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status_code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmarket_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status_code"},
	)
)

var (
	CheckoutSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmarket_checkout_sessions_total",
			Help: "Checkout sessions by outcome (started, committed, abandoned, failed, retried)",
		},
		[]string{"outcome"},
	)

	OrdersCommittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookmarket_orders_committed_total",
			Help: "Seller orders written during checkout",
		},
	)

	CommitStepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmarket_commit_step_failures_total",
			Help: "Commit pipeline steps that failed after retries",
		},
		[]string{"step"},
	)

	EnrichmentGapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookmarket_cart_enrichment_gaps_total",
			Help: "Cart lines dropped because the book is no longer in the catalog",
		},
	)

	OrdersDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookmarket_orders_delivered_total",
			Help: "Orders moved to delivered by sellers",
		},
	)

	CartCacheResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmarket_cart_cache_results_total",
			Help: "Cart cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)

		HTTPRequestDuration.WithLabelValues(route, r.Method, code).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
	})
}
