// Package telemetry holds the Prometheus collectors and the OpenTelemetry
// tracer provider of the engine.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "writenow"

// Assembly results used as the "result" label.
const (
	ResultOK         = "ok"
	ResultImpossible = "budget_impossible"
	ResultInvalid    = "invalid"
	ResultError      = "error"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing, so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	assemblies       *prometheus.CounterVec
	assemblyDuration prometheus.Histogram
	assemblyTokens   prometheus.Histogram
	evictions        *prometheus.CounterVec
	compressions     prometheus.Counter
	redactions       prometheus.Counter
	sourceErrors     *prometheus.CounterVec
	watchBatches     prometheus.Counter
	invalidations    *prometheus.CounterVec
	conversations    prometheus.Counter
	summaries        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a dedicated registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		assemblies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assemblies_total",
			Help:      "Context assemblies by result.",
		}, []string{"result"}),
		assemblyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_duration_seconds",
			Help:      "Time spent assembling one context.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		assemblyTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_tokens",
			Help:      "Estimated tokens used by an assembled context.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_evicted_total",
			Help:      "Fragments removed to satisfy a budget, by layer.",
		}, []string{"layer"}),
		compressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_compressed_total",
			Help:      "Settings fragments truncated to fit their layer budget.",
		}),
		redactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redactions_total",
			Help:      "Secret-shaped substrings replaced before rendering.",
		}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Per-file knowledge read failures, by source and code.",
		}, []string{"source", "code"}),
		watchBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_batches_total",
			Help:      "Debounced change batches emitted by project watchers.",
		}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Knowledge caches dropped after a change, by source.",
		}, []string{"source"}),
		conversations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_saved_total",
			Help:      "Conversation records written.",
		}),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Generated conversation summaries, by quality.",
		}, []string{"quality"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.assemblies, m.assemblyDuration, m.assemblyTokens, m.evictions,
		m.compressions, m.redactions, m.sourceErrors, m.watchBatches,
		m.invalidations, m.conversations, m.summaries, m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// AssemblyOutcome summarizes one assembly for ObserveAssembly.
type AssemblyOutcome struct {
	Result     string
	Duration   time.Duration
	TokensUsed int
	Evicted    map[string]int
	Compressed int
	Redactions int
}

// ObserveAssembly records one assembly.
func (m *Metrics) ObserveAssembly(o AssemblyOutcome) {
	if m == nil {
		return
	}
	m.assemblies.WithLabelValues(o.Result).Inc()
	m.assemblyDuration.Observe(o.Duration.Seconds())
	if o.Result != ResultOK {
		return
	}
	m.assemblyTokens.Observe(float64(o.TokensUsed))
	for layer, n := range o.Evicted {
		m.evictions.WithLabelValues(layer).Add(float64(n))
	}
	m.compressions.Add(float64(o.Compressed))
	m.redactions.Add(float64(o.Redactions))
}

// SourceError counts one failed knowledge file.
func (m *Metrics) SourceError(source, code string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source, code).Inc()
}

// WatchBatch counts one debounced change batch and the caches it dropped.
func (m *Metrics) WatchBatch(invalidated []string) {
	if m == nil {
		return
	}
	m.watchBatches.Inc()
	for _, s := range invalidated {
		m.invalidations.WithLabelValues(s).Inc()
	}
}

// ConversationSaved counts one saved record.
func (m *Metrics) ConversationSaved() {
	if m == nil {
		return
	}
	m.conversations.Inc()
}

// Summary counts one generated summary.
func (m *Metrics) Summary(quality string) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(quality).Inc()
}

// HTTPRequest records one served request. route is the chi route pattern,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
