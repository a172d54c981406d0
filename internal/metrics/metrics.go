// Package metrics exposes Prometheus collectors for the ingest pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchEscalationsTotal      *prometheus.CounterVec
	extractionMissingTotal     *prometheus.CounterVec
	storeSavesTotal            *prometheus.CounterVec
	itemsTotal                 *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetches_total",
				Help: "Total number of page fetches, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_bytes_total",
				Help: "Total number of HTML bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchEscalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_escalations_total",
				Help: "Auto fetches escalated to the renderer, labeled by reason.",
			},
			[]string{"reason"},
		)

		extractionMissingTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_extraction_missing_fields_total",
				Help: "Articles extracted without a value for the labeled field.",
			},
			[]string{"field"},
		)

		storeSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_store_saves_total",
				Help: "Store save calls, labeled by result.",
			},
			[]string{"result"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_items_total",
				Help: "Processed article URLs, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_notifications_total",
				Help: "New-record notifications, labeled by outcome.",
			},
			[]string{"outcome"},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_workers",
				Help: "Number of workers currently processing a source.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delays_seconds",
				Help:    "Histogram of polite-delay wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one fetch attempt and the bytes it returned.
func ObserveFetch(strategy, outcome, site string, bytesFetched int) {
	Init()
	fetchesTotal.WithLabelValues(strategy, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveEscalation counts an auto fetch promoted to the renderer.
func ObserveEscalation(reason string) {
	Init()
	fetchEscalationsTotal.WithLabelValues(reason).Inc()
}

// ObserveMissingField counts an extraction that produced no value for field.
func ObserveMissingField(field string) {
	Init()
	extractionMissingTotal.WithLabelValues(field).Inc()
}

// ObserveSave counts a store save by result (created, updated, error).
func ObserveSave(result string) {
	Init()
	storeSavesTotal.WithLabelValues(result).Inc()
}

// ObserveItem counts a processed article URL.
func ObserveItem(source, status string) {
	Init()
	itemsTotal.WithLabelValues(source, status).Inc()
}

// ObserveNotification counts a new-record notification by outcome.
func ObserveNotification(outcome string) {
	Init()
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a polite-delay wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
