package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission modes and outcomes for crucible_api_submissions_total.
const (
	modeAsync = "async"
	modeRun   = "run"

	outcomeAccepted = "accepted"
	outcomeFinished = "finished"
	outcomeTimedOut = "timed_out"
	outcomeCanceled = "canceled"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

// Every series carries the strategy of the pool behind the server, so thread
// and isolate deployments can share dashboards.
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_http_requests_total",
			Help: "HTTP requests served, by route pattern and status code.",
		},
		[]string{"strategy", "method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crucible_http_request_duration_seconds",
			Help:    "HTTP request latency. Long-lived log streams are excluded.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy", "method", "route"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_api_submissions_total",
			Help: "Task submissions received over HTTP, by mode and outcome.",
		},
		[]string{"strategy", "mode", "outcome"},
	)

	logStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crucible_api_log_streams",
			Help: "Open SSE log streams.",
		},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, submissionsTotal, logStreams)
}

// instrument counts every request against its chi route pattern, never the raw
// path, so task IDs do not become label values.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		httpRequestsTotal.WithLabelValues(s.strategy, r.Method, route, strconv.Itoa(status)).Inc()
		if route != logStreamRoute {
			httpRequestDuration.WithLabelValues(s.strategy, r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

func (s *Server) countSubmission(mode, outcome string) {
	submissionsTotal.WithLabelValues(s.strategy, mode, outcome).Inc()
}

// trackStream marks a log stream open until the returned func runs.
func (s *Server) trackStream() func() {
	g := logStreams.WithLabelValues(s.strategy)
	g.Inc()
	return g.Dec
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}

// metricsHandler serves the default registry and reports gather errors
// through the server's logger.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
		}),
	)
}
