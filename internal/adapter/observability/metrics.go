package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM chat-completion requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		},
		[]string{"provider", "operation"},
	)

	OCRRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocr_requests_total",
			Help: "Total number of OCR requests by engine and outcome",
		},
		[]string{"engine", "outcome"},
	)
	OCRRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocr_request_duration_seconds",
			Help:    "OCR request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)

	AnalysisJobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_jobs_started_total",
			Help: "Total number of background analysis jobs started",
		},
	)
	AnalysisJobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_jobs_completed_total",
			Help: "Total number of background analysis jobs completed successfully",
		},
	)
	AnalysisJobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_jobs_failed_total",
			Help: "Total number of background analysis jobs that failed",
		},
	)
	AnalysisCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_cache_hits_total",
			Help: "Total number of analysis polls served from the TTL cache",
		},
	)

	// Distribution of consensus rubric totals (0-1000, steps of 40).
	RubricTotalHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_rubric_total",
			Help:    "Distribution of consensus rubric totals",
			Buckets: []float64{0, 200, 400, 500, 600, 700, 800, 900, 1000},
		},
	)
)

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(OCRRequestsTotal)
	prometheus.MustRegister(OCRRequestDuration)
	prometheus.MustRegister(AnalysisJobsStarted)
	prometheus.MustRegister(AnalysisJobsCompleted)
	prometheus.MustRegister(AnalysisJobsFailed)
	prometheus.MustRegister(AnalysisCacheHits)
	prometheus.MustRegister(RubricTotalHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
