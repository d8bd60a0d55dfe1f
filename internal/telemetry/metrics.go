package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "amankb"

// Metrics is the process metrics registry plus an in-memory query summary.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	queries  *QueryMetrics

	searchLatency   *prometheus.HistogramVec
	searchResults   *prometheus.HistogramVec
	searchDegraded  prometheus.Counter
	rerankFailures  prometheus.Counter
	ingestDocuments *prometheus.CounterVec
	ingestChunks    prometheus.Counter
	feedbackRecords *prometheus.CounterVec
	qualityRuns     prometheus.Counter
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		queries:  NewQueryMetrics(100, 100),
		searchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search latency by strategy.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"strategy", "intent"}),
		searchResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Results returned per search.",
			Buckets:   prometheus.LinearBuckets(0, 5, 11),
		}, []string{"strategy"}),
		searchDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Searches answered with one index unavailable.",
		}),
		rerankFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "rerank_failures_total",
			Help:      "Rerank calls that failed and were passed through.",
		}),
		ingestDocuments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "documents_total",
			Help:      "Ingested documents by outcome.",
		}, []string{"outcome"}),
		ingestChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "chunks_written_total",
			Help:      "Chunks written to the store.",
		}),
		feedbackRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "feedback",
			Name:      "records_total",
			Help:      "Feedback records by rating.",
		}, []string{"rating"}),
		qualityRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "feedback",
			Name:      "recompute_runs_total",
			Help:      "Full quality cache recomputes.",
		}),
	}

	reg.MustRegister(m.searchLatency, m.searchResults, m.searchDegraded, m.rerankFailures,
		m.ingestDocuments, m.ingestChunks, m.feedbackRecords, m.qualityRuns)
	return m
}

// Registry exposes the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Queries returns the in-memory query summary.
func (m *Metrics) Queries() *QueryMetrics {
	if m == nil {
		return nil
	}
	return m.queries
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(e QueryEvent) {
	if m == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.searchLatency.WithLabelValues(e.Strategy, e.Intent).Observe(e.Latency.Seconds())
	m.searchResults.WithLabelValues(e.Strategy).Observe(float64(e.ResultCount))
	if e.Degraded {
		m.searchDegraded.Inc()
	}
	m.queries.Record(e)
}

// RerankFailed counts a rerank pass-through.
func (m *Metrics) RerankFailed() {
	if m == nil {
		return
	}
	m.rerankFailures.Inc()
}

// Ingest outcomes.
const (
	OutcomeIndexed = "indexed"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// ObserveIngest records one document ingest.
func (m *Metrics) ObserveIngest(outcome string, chunks int) {
	if m == nil {
		return
	}
	m.ingestDocuments.WithLabelValues(outcome).Inc()
	if chunks > 0 {
		m.ingestChunks.Add(float64(chunks))
	}
}

// ObserveFeedback records one feedback record.
func (m *Metrics) ObserveFeedback(rating string) {
	if m == nil {
		return
	}
	m.feedbackRecords.WithLabelValues(rating).Inc()
}

// ObserveRecompute records one full quality recompute.
func (m *Metrics) ObserveRecompute() {
	if m == nil {
		return
	}
	m.qualityRuns.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
