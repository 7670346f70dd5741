// Package metrics defines the Prometheus collectors used by the crawler, the
// indexer and the search service, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	CrawlPagesTotal    *prometheus.CounterVec
	CrawlBatchDuration prometheus.Histogram
	CrawlFrontierSize  prometheus.Gauge
	CrawlVisited       prometheus.Gauge
	RobotsFetchesTotal *prometheus.CounterVec

	IndexBuildDuration *prometheus.HistogramVec
	IndexVocabulary    *prometheus.GaugeVec
	DocsIndexedTotal   prometheus.Counter

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
}

// New creates all collectors and registers them with reg. Binaries pass
// prometheus.DefaultRegisterer; tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		CrawlPagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Crawled URLs by outcome (visited, fetch_error, parse_error, disallowed).",
			},
			[]string{"outcome"},
		),
		CrawlBatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawl_batch_duration_seconds",
				Help:    "Wall time from batch dispatch to barrier, excluding the politeness delay.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		CrawlFrontierSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_frontier_size",
				Help: "Number of URLs waiting in the frontier.",
			},
		),
		CrawlVisited: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_visited",
				Help: "Number of URLs visited so far.",
			},
		),
		RobotsFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "robots_fetches_total",
				Help: "robots.txt fetches by result (ok, unavailable).",
			},
			[]string{"result"},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Time to build and write one field index.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"field"},
		),
		IndexVocabulary: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_vocabulary_size",
				Help: "Distinct tokens per field index.",
			},
			[]string{"field"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, empty_query, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CrawlPagesTotal,
		m.CrawlBatchDuration,
		m.CrawlFrontierSize,
		m.CrawlVisited,
		m.RobotsFetchesTotal,
		m.IndexBuildDuration,
		m.IndexVocabulary,
		m.DocsIndexedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
