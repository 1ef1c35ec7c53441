package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videosearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "provider_requests_total",
		Help:      "Total upstream provider calls by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videosearch",
		Name:      "provider_request_duration_seconds",
		Help:      "Upstream provider call duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "videosearch",
		Name:      "provider_available",
		Help:      "Whether a provider is available (1) or blocked by circuit breaker (0).",
	}, []string{"provider"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	CommentFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videosearch",
		Name:      "comment_fetches_total",
		Help:      "Total comment enrichment fetches by outcome (ok, empty, timeout, error).",
	}, []string{"status"})

	CommentsFetched = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "videosearch",
		Name:      "comments_fetched_per_video",
		Help:      "Number of comments attached per enriched video.",
		Buckets:   []float64{0, 1, 3, 5, 10, 15},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		CommentFetchesTotal,
		CommentsFetched,
	)
}
