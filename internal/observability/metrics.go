package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted   *prometheus.CounterVec
	jobsFinished    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	cost            *prometheus.CounterVec
}

// NewMetrics registers all collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_jobs_submitted_total",
			Help: "Jobs accepted by the job manager.",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_jobs_finished_total",
			Help: "Jobs that reached a terminal state.",
		}, []string{"kind", "state"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_job_duration_seconds",
			Help:    "Time from job start to terminal state.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind", "state"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_provider_calls_total",
			Help: "Generation calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_provider_call_duration_seconds",
			Help:    "Generation call latency by provider.",
			Buckets: []float64{0.25, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_provider_tokens_total",
			Help: "Tokens reported or estimated per provider.",
		}, []string{"provider", "direction"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_provider_cost_usd_total",
			Help: "Estimated spend per provider in USD.",
		}, []string{"provider"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsSubmitted, m.jobsFinished, m.jobDuration,
		m.providerCalls, m.providerLatency, m.tokens, m.cost,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) JobSubmitted(kind string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) JobFinished(kind, state string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(kind, state).Inc()
	m.jobDuration.WithLabelValues(kind, state).Observe(duration.Seconds())
}

// ProviderCall records one generation call. outcome is "ok" or an error kind.
func (m *Metrics) ProviderCall(provider, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

func (m *Metrics) Usage(provider string, inputTokens, outputTokens int, costUSD float64) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	m.tokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	m.cost.WithLabelValues(provider).Add(costUSD)
}
