package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "playback",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	PlayerCacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "playback",
		Name:      "player_cache_entries",
		Help:      "Number of player handles currently held by the cache.",
	})

	PlayerCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "player_cache_hits_total",
		Help:      "Total cache lookups that returned a ready handle.",
	})

	PlayerCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "player_cache_misses_total",
		Help:      "Total cache lookups that found no handle.",
	})

	PlayerCacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "player_cache_evictions_total",
		Help:      "Total handles evicted to stay within capacity.",
	})

	PlayerBuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "player_builds_total",
		Help:      "Total player handle constructions started.",
	})

	PlayerBuildFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "player_build_failures_total",
		Help:      "Total player handle constructions that failed.",
	})

	PlayerBuildsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "player_builds_discarded_total",
		Help:      "Total built handles discarded because an entry already existed.",
	})

	PlayerPrepareAlreadyCached = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "player_prepare_already_cached_total",
		Help:      "Total prepare requests that were no-ops because the handle was cached.",
	})

	DownloadsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "playback",
		Name:      "downloads_active",
		Help:      "Number of media downloads currently in progress.",
	})

	DownloadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "download_bytes_total",
		Help:      "Total media bytes fetched from the backend.",
	})

	DownloadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "download_failures_total",
		Help:      "Total media downloads that ended in a failed state.",
	})

	DownloadEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playback",
		Name:      "download_events_dropped_total",
		Help:      "Total state change events dropped because the event channel was full.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PlayerCacheEntries,
		PlayerCacheHits,
		PlayerCacheMisses,
		PlayerCacheEvictions,
		PlayerBuildsTotal,
		PlayerBuildFailures,
		PlayerBuildsDiscarded,
		PlayerPrepareAlreadyCached,
		DownloadsActive,
		DownloadBytesTotal,
		DownloadFailures,
		DownloadEventsDropped,
	)
}
