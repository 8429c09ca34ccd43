// Package metrics provides Prometheus metrics for the fusion service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportRunsTotal tracks import runs by terminal status
	ImportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by outcome",
		},
		[]string{"tenant_id", "status"},
	)

	// ImportRunDuration tracks end-to-end run duration in seconds
	ImportRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fusion",
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Duration of import runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tenant_id"},
	)

	// MatchRate tracks the per-run fraction of items matched to hints
	MatchRate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fusion",
			Subsystem: "matching",
			Name:      "match_rate",
			Help:      "Fraction of catalog items matched to vision hints per run",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.7, 0.8, 0.9, 0.95, 1},
		},
	)

	// ItemsPersisted tracks catalog items written per committed snapshot
	ItemsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "catalog",
			Name:      "items_persisted_total",
			Help:      "Total number of catalog items persisted",
		},
		[]string{"tenant_id"},
	)

	// HintExtractionFailures tracks vision extraction failures per page
	HintExtractionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "vision",
			Name:      "hint_extraction_failures_total",
			Help:      "Total number of failed page hint extractions after retries",
		},
	)

	// HintExtractionDuration tracks per-page vision extraction duration
	HintExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fusion",
			Subsystem: "vision",
			Name:      "hint_extraction_duration_seconds",
			Help:      "Duration of per-page hint extraction in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// ConcurrentReplaceRejections tracks rejected concurrent replaces
	ConcurrentReplaceRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "import",
			Name:      "concurrent_replace_rejections_total",
			Help:      "Total number of imports rejected because a replace was in flight",
		},
		[]string{"tenant_id"},
	)

	// SourceFetchDuration tracks listing fetch duration
	SourceFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fusion",
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of catalog listing fetches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// CacheHits tracks catalog read cache hits and misses
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "cache",
			Name:      "catalog_reads_total",
			Help:      "Total catalog reads by cache outcome",
		},
		[]string{"outcome"},
	)
)

// RecordImportRun records the outcome of a completed run
func RecordImportRun(tenantID, status string, durationSeconds float64) {
	ImportRunsTotal.WithLabelValues(tenantID, status).Inc()
	ImportRunDuration.WithLabelValues(tenantID).Observe(durationSeconds)
}

// RecordMatchOutcome records the match rate of a completed matching pass
func RecordMatchOutcome(matchRate float64) {
	MatchRate.Observe(matchRate)
}

// RecordCacheRead records a catalog cache hit or miss
func RecordCacheRead(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	CacheHits.WithLabelValues(outcome).Inc()
}
