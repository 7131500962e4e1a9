// Package metrics exposes Prometheus collectors for the analyzer service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lead save results.
const (
	LeadSaveInserted = "inserted"
	LeadSaveUpdated  = "updated"
	LeadSaveError    = "error"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	analysesTotal              *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	leadSavesTotal             *prometheus.CounterVec
	upstreamCallsTotal         *prometheus.CounterVec
	rateLimitedTotal           prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)

		analysesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_analyses_total",
				Help: "Total number of website analyses, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		leadSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_lead_saves_total",
				Help: "Total number of lead upserts, labeled by result (inserted, updated, error).",
			},
			[]string{"result"},
		)

		upstreamCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_upstream_calls_total",
				Help: "Total number of calls to the crawling and model services, labeled by service and status code.",
			},
			[]string{"service", "code"},
		)

		rateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analyzer_rate_limited_total",
				Help: "Total number of inbound requests rejected by the rate limiter.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAnalysis increments the analysis counter for the given outcome.
func ObserveAnalysis(outcome string) {
	Init()
	analysesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveLeadSave counts a lead upsert by result, one of the LeadSave
// constants.
func ObserveLeadSave(result string) {
	Init()
	leadSavesTotal.WithLabelValues(result).Inc()
}

// ObserveUpstreamCall counts a call to an outbound service. code is 0 for
// transport failures.
func ObserveUpstreamCall(service string, code int) {
	Init()
	upstreamCallsTotal.WithLabelValues(service, strconv.Itoa(code)).Inc()
}

// ObserveRateLimited counts a rejected inbound request.
func ObserveRateLimited() {
	Init()
	rateLimitedTotal.Inc()
}
