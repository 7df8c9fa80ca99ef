// Package metrics holds the Prometheus collectors Dev-Nexus exposes at
// /metrics. Non-goals scope out dashboards and webhooks, not
// observability, so this ambient layer is carried regardless (spec.md §9
// "ambient concerns are carried even when a Non-goal names one").
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks request latency by route, method, and status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "devnexus",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// SkillExecutionsTotal counts skill executions by id and outcome.
var SkillExecutionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "devnexus",
		Subsystem: "skill",
		Name:      "executions_total",
		Help:      "Total number of skill executions by id and outcome.",
	},
	[]string{"skill_id", "outcome"},
)

// KnowledgeBaseMutationsTotal counts successful KB mutations.
var KnowledgeBaseMutationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "devnexus",
		Subsystem: "kb",
		Name:      "mutations_total",
		Help:      "Total number of successful knowledge base mutations.",
	},
)

// PeerHealthChecksTotal counts outbound peer health probes by peer and status.
var PeerHealthChecksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "devnexus",
		Subsystem: "peer",
		Name:      "health_checks_total",
		Help:      "Total number of outbound peer health checks by peer and status.",
	},
	[]string{"peer", "status"},
)

// NewRegistry builds a Prometheus registry carrying the Go/process
// collectors plus every Dev-Nexus-specific collector above.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		SkillExecutionsTotal,
		KnowledgeBaseMutationsTotal,
		PeerHealthChecksTotal,
	)
	return reg
}
