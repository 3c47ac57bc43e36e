// Package metrics declares the Prometheus collectors exported by songmatch.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Embedding

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songmatch_embedding_requests_total",
			Help: "Embedding provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "songmatch_embedding_duration_seconds",
			Help:    "Latency of embedding provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	EmbeddingFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songmatch_embedding_fallbacks_total",
			Help: "Embedding calls answered by the fallback provider",
		},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songmatch_embedding_cache_hits_total",
			Help: "Embedding requests served from the in-memory cache",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "songmatch_provider_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// Matching

	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "songmatch_match_duration_seconds",
			Help:    "End-to-end match latency by retrieval mode",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	MatchDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songmatch_match_degraded_total",
			Help: "Matches served with a missing signal, by signal",
		},
		[]string{"signal"},
	)

	FilteredSongs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songmatch_filtered_songs_total",
			Help: "Candidates removed or replaced by the content policy",
		},
		[]string{"action"},
	)

	// Aboutness

	GenerationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songmatch_aboutness_generation_total",
			Help: "Aboutness generation results by profile and outcome (valid, retried, forced, failed)",
		},
		[]string{"profile", "outcome"},
	)

	BackfillSongs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songmatch_backfill_songs_total",
			Help: "Songs processed by the aboutness backfill, by result",
		},
		[]string{"result"},
	)
)

// ObserveSince records the elapsed time since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
