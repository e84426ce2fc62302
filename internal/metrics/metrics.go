// Package metrics exposes Prometheus collectors for the lead-scouting service.
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
	requestsTotal               *prometheus.CounterVec
	requestDurationSeconds      prometheus.Histogram
	requestsInFlight            prometheus.Gauge
	urlsTotal                   *prometheus.CounterVec
	candidatesHarvested         prometheus.Histogram
	captchaOutcomesTotal        *prometheus.CounterVec
	registryLookupsTotal        *prometheus.CounterVec
	rateLimitDelaysSeconds      *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	reportDeliveryFailuresTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		requestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_requests_total",
				Help: "Total number of search requests, labeled by admission outcome.",
			},
			[]string{"outcome"},
		)

		requestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadscout_request_duration_seconds",
				Help:    "Histogram of admitted request durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
		)

		requestsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscout_requests_in_flight",
				Help: "Number of requests currently holding an admission slot.",
			},
		)

		urlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_urls_total",
				Help: "Total number of candidate URLs processed, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		candidatesHarvested = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadscout_candidates_harvested",
				Help:    "Number of candidate URLs produced per search.",
				Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
			},
		)

		captchaOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_captcha_outcomes_total",
				Help: "Total number of challenge resolutions, labeled by final state.",
			},
			[]string{"state"},
		)

		registryLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_registry_lookups_total",
				Help: "Total number of registry lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadscout_rate_limit_delays_seconds",
				Help:    "Histogram of per-host navigation throttle waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120, 600},
			},
			[]string{"method", "route"},
		)

		reportDeliveryFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_report_delivery_failures_total",
				Help: "Total number of failed report saves or publishes, labeled by sink.",
			},
			[]string{"sink"},
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
	Init()
	return promhttp.Handler()
}

// ObserveRequest counts a request by outcome
// (completed, rejected_global, rejected_identity, session_unavailable, error).
func ObserveRequest(outcome string) {
	Init()
	requestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRequestDuration records how long an admitted request ran.
func ObserveRequestDuration(d time.Duration) {
	Init()
	requestDurationSeconds.Observe(d.Seconds())
}

// IncInFlight increments the in-flight requests gauge.
func IncInFlight() {
	Init()
	requestsInFlight.Inc()
}

// DecInFlight decrements the in-flight requests gauge.
func DecInFlight() {
	Init()
	requestsInFlight.Dec()
}

// ObserveURL counts one processed candidate URL by host and status.
func ObserveURL(site, status string) {
	Init()
	urlsTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveCandidates records the size of one harvest.
func ObserveCandidates(n int) {
	Init()
	candidatesHarvested.Observe(float64(n))
}

// ObserveCaptcha counts a finished challenge resolution.
func ObserveCaptcha(state string) {
	Init()
	captchaOutcomesTotal.WithLabelValues(state).Inc()
}

// ObserveRegistryLookup counts a registry lookup (found, not_found, timeout).
func ObserveRegistryLookup(outcome string) {
	Init()
	registryLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveReportDeliveryFailure counts a failed report save or publish.
func ObserveReportDeliveryFailure(sink string) {
	Init()
	reportDeliveryFailuresTotal.WithLabelValues(sink).Inc()
}
