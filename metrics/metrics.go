// Package metrics provides Prometheus metrics for the volume index.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Build metrics
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volindex_builds_total",
			Help: "Total number of generation builds",
		},
		[]string{"source", "kind", "result"},
	)

	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "volindex_build_duration_seconds",
			Help:    "Time to build a generation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"source", "kind"},
	)

	generationEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "volindex_generation_entries",
			Help: "Number of entries in the published generation",
		},
		[]string{"source"},
	)

	generationID = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "volindex_generation_id",
			Help: "Id of the published generation",
		},
		[]string{"source"},
	)

	filterFillRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "volindex_filter_fill_ratio",
			Help: "Fraction of membership filter bits set",
		},
		[]string{"source"},
	)

	// Ingestion metrics
	ingestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volindex_ingest_errors_total",
			Help: "Records skipped during ingestion",
		},
		[]string{"source"},
	)

	eventsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volindex_events_applied_total",
			Help: "Change events applied to generations",
		},
		[]string{"source", "op"},
	)

	writerRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volindex_writer_retries_total",
			Help: "Index writer busy retries",
		},
	)

	// Query metrics
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "volindex_query_duration_seconds",
			Help:    "Query latency by strategy",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"strategy"},
	)

	queryResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volindex_query_results_total",
			Help: "Results returned by strategy",
		},
		[]string{"strategy"},
	)

	queryDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volindex_query_degraded_total",
			Help: "Queries that fell back to another strategy",
		},
		[]string{"from", "to"},
	)

	queryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volindex_query_cache_total",
			Help: "Result cache lookups",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBuild records a finished build. kind is "full" or "incremental".
func RecordBuild(source, kind string, duration time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	buildsTotal.WithLabelValues(source, kind, result).Inc()
	if success {
		buildDuration.WithLabelValues(source, kind).Observe(duration.Seconds())
	}
}

// SetGeneration records the published generation of a source.
func SetGeneration(source string, id uint64, entries int, fillRatio float64) {
	generationID.WithLabelValues(source).Set(float64(id))
	generationEntries.WithLabelValues(source).Set(float64(entries))
	filterFillRatio.WithLabelValues(source).Set(fillRatio)
}

// RecordIngestErrors adds skipped records of a scan.
func RecordIngestErrors(source string, n int) {
	if n > 0 {
		ingestErrorsTotal.WithLabelValues(source).Add(float64(n))
	}
}

// RecordEvents counts applied change events.
func RecordEvents(source string, upserts, deletes int) {
	if upserts > 0 {
		eventsAppliedTotal.WithLabelValues(source, "upsert").Add(float64(upserts))
	}
	if deletes > 0 {
		eventsAppliedTotal.WithLabelValues(source, "delete").Add(float64(deletes))
	}
}

// RecordWriterRetry counts one retry on a busy index writer.
func RecordWriterRetry() {
	writerRetriesTotal.Inc()
}

// RecordQuery records one query served with the given strategy.
func RecordQuery(strategy string, duration time.Duration, results int) {
	queryDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	queryResultsTotal.WithLabelValues(strategy).Add(float64(results))
}

// RecordDegraded counts a query that fell back from one strategy to another.
func RecordDegraded(from, to string) {
	queryDegradedTotal.WithLabelValues(from, to).Inc()
}

// RecordCacheLookup counts a result cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		queryCacheTotal.WithLabelValues("hit").Inc()
	} else {
		queryCacheTotal.WithLabelValues("miss").Inc()
	}
}
