// Package metrics provides Prometheus metrics for the fsindex daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Search metrics
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_searches_total",
			Help: "Total number of searches, by whether the result cap was hit",
		},
		[]string{"truncated"},
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fsindex_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Watcher metrics
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_watcher_mutations_total",
			Help: "Cache mutations applied from filesystem notifications",
		},
		[]string{"kind"},
	)

	mutationsIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_watcher_mutations_ignored_total",
			Help: "Mutations dropped because their mount point is not cached",
		},
		[]string{"kind"},
	)

	// Snapshot metrics
	snapshotOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_snapshot_operations_total",
			Help: "Snapshot saves and loads by kind and outcome",
		},
		[]string{"snapshot", "op", "outcome"},
	)

	snapshotBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fsindex_snapshot_bytes",
			Help: "Size of the last written snapshot file",
		},
		[]string{"snapshot"},
	)

	// Index metrics
	indexedFilenames = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fsindex_indexed_filenames",
			Help: "Distinct filenames cached per volume",
		},
		[]string{"mount"},
	)

	tokenCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsindex_tokens",
			Help: "Distinct tokens in the token index",
		},
	)

	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsindex_build_duration_seconds",
			Help:    "Duration of full volume scans and token index builds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSearch records one finished search.
func RecordSearch(duration time.Duration, truncated bool) {
	label := "false"
	if truncated {
		label = "true"
	}
	searchesTotal.WithLabelValues(label).Inc()
	searchDuration.Observe(duration.Seconds())
}

// RecordMutation counts an applied watcher mutation.
func RecordMutation(kind string) {
	mutationsTotal.WithLabelValues(kind).Inc()
}

// RecordIgnoredMutation counts a mutation addressed to an unknown mount.
func RecordIgnoredMutation(kind string) {
	mutationsIgnored.WithLabelValues(kind).Inc()
}

// RecordSnapshot counts a snapshot save or load. outcome is "ok", "miss" or
// "error".
func RecordSnapshot(snapshot, op, outcome string) {
	snapshotOps.WithLabelValues(snapshot, op, outcome).Inc()
}

// SetSnapshotBytes records the size of a written snapshot.
func SetSnapshotBytes(snapshot string, n int) {
	snapshotBytes.WithLabelValues(snapshot).Set(float64(n))
}

// SetIndexedFilenames records how many filename keys a volume holds.
func SetIndexedFilenames(mount string, n int) {
	indexedFilenames.WithLabelValues(mount).Set(float64(n))
}

// SetTokenCount records the token index size.
func SetTokenCount(n int) {
	tokenCount.Set(float64(n))
}

// ObserveBuild records the duration of a build stage ("scan" or "tokens").
func ObserveBuild(stage string, duration time.Duration) {
	buildDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
