// Package metrics exposes Prometheus collectors for the indexer.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	indexerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_pages_total",
			Help: "Pages processed, labeled by site, outcome, and skip reason.",
		},
		[]string{"site", "outcome", "reason"},
	)

	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_fetch_requests_total",
			Help: "Page and sitemap fetches, labeled by site and status code.",
		},
		[]string{"site", "code"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_fetch_bytes_total",
			Help: "Bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_fetch_duration_seconds",
			Help:    "Fetch latency, labeled by site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 80},
		},
		[]string{"site"},
	)

	insecureRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_insecure_tls_retries_total",
			Help: "Fetches retried without certificate verification, labeled by site.",
		},
		[]string{"site"},
	)

	headlessRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_headless_renders_total",
			Help: "Headless browser renders, labeled by result.",
		},
		[]string{"result"},
	)

	embedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_embed_calls_total",
			Help: "Embedding provider calls, labeled by result.",
		},
		[]string{"result"},
	)

	embedTextsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_embed_texts_total",
			Help: "Texts sent to the embedding provider.",
		},
	)

	embedDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_embed_duration_seconds",
			Help:    "Embedding call latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	upsertBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_upsert_batches_total",
			Help: "Vector upsert batches, labeled by result.",
		},
		[]string{"result"},
	)

	upsertRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_upsert_records_total",
			Help: "Vector records written.",
		},
	)

	upsertDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_upsert_duration_seconds",
			Help:    "Vector upsert batch latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	prunedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_pruned_records_total",
			Help: "Stale vector records deleted after a page shrank.",
		},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_active_workers",
			Help: "Workers currently processing a URL.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the per-host rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"site"},
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
)

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

// ObservePage counts a processed URL by outcome. Reason is empty for
// updated pages and for errors.
func ObservePage(rawURL, outcome, reason string) {
	indexerPagesTotal.WithLabelValues(SanitizeSite(rawURL), outcome, reason).Inc()
}

// ObserveFetch records a fetch. Status 0 marks a transport failure.
func ObserveFetch(rawURL string, status int, bytesFetched int, duration time.Duration) {
	site := SanitizeSite(rawURL)
	fetchRequestsTotal.WithLabelValues(site, strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveInsecureRetry counts a fetch retried without certificate checks.
func ObserveInsecureRetry(rawURL string) {
	insecureRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveHeadless counts a headless render by result.
func ObserveHeadless(result string) {
	headlessRendersTotal.WithLabelValues(result).Inc()
}

// ObserveEmbed records one embedding provider call.
func ObserveEmbed(texts int, duration time.Duration, err error) {
	embedCallsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		embedTextsTotal.Add(float64(texts))
	}
	embedDurationSeconds.Observe(duration.Seconds())
}

// ObserveUpsert records one vector upsert batch.
func ObserveUpsert(records int, duration time.Duration, err error) {
	upsertBatchesTotal.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		upsertRecordsTotal.Add(float64(records))
	}
	upsertDurationSeconds.Observe(duration.Seconds())
}

// ObservePruned counts deleted stale vector records.
func ObservePruned(records int) {
	if records > 0 {
		prunedRecordsTotal.Add(float64(records))
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records time spent waiting on the rate limiter.
func ObserveRateLimitDelay(rawURL string, delay time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(rawURL)).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
