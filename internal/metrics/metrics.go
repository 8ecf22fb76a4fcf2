// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the service layer sees — it records outcomes without
// knowing anything about Prometheus.
type Recorder interface {
	RecordRegistration()
	RecordLogin(outcome string)
	RecordFederatedLogin()
	RecordEngineCall(outcome string, duration time.Duration)
}

// Outcome labels. A small fixed set keeps the label cardinality bounded
// — never put usernames or request data in a label.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeUnavailable = "unavailable"
)

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	registry *prometheus.Registry

	registrations   prometheus.Counter
	logins          *prometheus.CounterVec
	federatedLogins prometheus.Counter
	engineCalls     *prometheus.CounterVec
	engineLatency   prometheus.Histogram
}

// NewCollector creates a Collector with its own registry, so the /metrics
// endpoint exposes exactly what this process registers and tests can
// create collectors without hitting the global default registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swc_registrations_total",
			Help: "Total local account registrations.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swc_logins_total",
			Help: "Total local login attempts by outcome.",
		}, []string{"outcome"}),
		federatedLogins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swc_federated_logins_total",
			Help: "Total successful federated (Google) logins.",
		}),
		engineCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swc_engine_calls_total",
			Help: "Total AI engine calls by outcome.",
		}, []string{"outcome"}),
		engineLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swc_engine_latency_seconds",
			Help:    "AI engine call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.registrations,
		c.logins,
		c.federatedLogins,
		c.engineCalls,
		c.engineLatency,
	)

	return c
}

func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordFederatedLogin() {
	c.federatedLogins.Inc()
}

func (c *Collector) RecordEngineCall(outcome string, duration time.Duration) {
	c.engineCalls.WithLabelValues(outcome).Inc()
	c.engineLatency.Observe(duration.Seconds())
}

// Handler returns the HTTP handler for GET /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
