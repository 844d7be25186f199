package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the quotation workflow
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquote_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecoquote_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	TokenVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquote_token_verifications_total",
			Help: "Response token verifications by result",
		},
		[]string{"result"},
	)

	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquote_quotation_responses_total",
			Help: "Quotation responses by outcome",
		},
		[]string{"outcome"},
	)

	EmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquote_emails_sent_total",
			Help: "Quotation emails by result",
		},
		[]string{"result"},
	)

	EstimateSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquote_estimate_syncs_total",
			Help: "Accounting estimate syncs by result",
		},
		[]string{"result"},
	)

	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquote_gateway_requests_total",
			Help: "Requests forwarded by the gateway by upstream status",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(TokenVerificationsTotal)
		prometheus.MustRegister(ResponsesTotal)
		prometheus.MustRegister(EmailsSentTotal)
		prometheus.MustRegister(EstimateSyncsTotal)
		prometheus.MustRegister(ProxyRequestsTotal)
	})
}

// Middleware records request counts and durations labelled by chi route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
