package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashboard"

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing, which keeps unit tests free of registry plumbing.
type Metrics struct {
	registry *prometheus.Registry

	Refreshes        *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	IdentityFetches  *prometheus.CounterVec
	GateDecisions    *prometheus.CounterVec
	PipelineFailures *prometheus.CounterVec
	CacheEntries     prometheus.GaugeFunc
}

// New registers the collectors on reg. cacheSize may be nil.
func New(reg *prometheus.Registry, cacheSize func() int) *Metrics {
	m := &Metrics{
		registry: reg,
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Upstream refresh attempts by result.",
		}, []string{"result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_cache_lookups_total",
			Help:      "Identity cache lookups by result (hit, miss).",
		}, []string{"result"}),
		IdentityFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_fetches_total",
			Help:      "Upstream identity lookups by result.",
		}, []string{"result"}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_gate_decisions_total",
			Help:      "Access gate decisions on protected paths.",
		}, []string{"decision"}),
		PipelineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Requests that failed authentication processing by class.",
		}, []string{"class"}),
	}

	reg.MustRegister(
		m.Refreshes,
		m.CacheLookups,
		m.IdentityFetches,
		m.GateDecisions,
		m.PipelineFailures,
	)

	if cacheSize != nil {
		m.CacheEntries = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identity_cache_entries",
			Help:      "Entries currently held by the identity cache.",
		}, func() float64 { return float64(cacheSize()) })
		reg.MustRegister(m.CacheEntries)
	}

	return m
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Refresh(result string) {
	if m != nil {
		m.Refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) IdentityFetch(result string) {
	if m != nil {
		m.IdentityFetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) GateDecision(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.GateDecisions.WithLabelValues("allow").Inc()
		return
	}
	m.GateDecisions.WithLabelValues("deny").Inc()
}

func (m *Metrics) PipelineFailure(class string) {
	if m != nil {
		m.PipelineFailures.WithLabelValues(class).Inc()
	}
}
