// Package metrics wraps Prometheus client instrumentation for a grove
// execution. It is an optional side-channel: nothing in pkg/sag/grove
// requires a *Metrics value, and a nil *Metrics is always safe to use.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and histograms one grove execution reports
// through. Create one per process (or per grove, if isolating registries
// matters) and pass it to grove.Grove via WithMetrics.
type Metrics struct {
	registry *prometheus.Registry

	agentsRun          *prometheus.CounterVec
	agentRunDuration   *prometheus.HistogramVec
	factsAsserted      prometheus.Counter
	checkpointSaves    prometheus.Counter
	checkpointRestores prometheus.Counter
}

// New creates a Metrics instance registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		agentsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sag_agents_run_total",
			Help: "Number of agent nodes executed by a grove, labeled by role.",
		}, []string{"role"}),
		agentRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sag_agent_run_duration_seconds",
			Help:    "Duration of one agent node's Runner.Run call, labeled by role.",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
		factsAsserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sag_knowledge_facts_asserted_total",
			Help: "Number of facts asserted by agent runners during grove runs.",
		}),
		checkpointSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sag_checkpoint_saves_total",
			Help: "Number of successful checkpoint saves.",
		}),
		checkpointRestores: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sag_checkpoint_restores_total",
			Help: "Number of successful checkpoint restores.",
		}),
	}
	reg.MustRegister(m.agentsRun, m.agentRunDuration, m.factsAsserted, m.checkpointSaves, m.checkpointRestores)
	return m
}

// Registry exposes the underlying Prometheus registry, for wiring into an
// HTTP /metrics handler (see pkg/sag/transport).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordAgentRun records one agent node's completed run and its duration.
func (m *Metrics) RecordAgentRun(role string, seconds float64) {
	if m == nil {
		return
	}
	m.agentsRun.WithLabelValues(role).Inc()
	m.agentRunDuration.WithLabelValues(role).Observe(seconds)
}

// RecordFactAsserted increments the facts-asserted counter by one.
func (m *Metrics) RecordFactAsserted() {
	if m == nil {
		return
	}
	m.factsAsserted.Inc()
}

// RecordCheckpointSave increments the checkpoint save counter.
func (m *Metrics) RecordCheckpointSave() {
	if m == nil {
		return
	}
	m.checkpointSaves.Inc()
}

// RecordCheckpointRestore increments the checkpoint restore counter.
func (m *Metrics) RecordCheckpointRestore() {
	if m == nil {
		return
	}
	m.checkpointRestores.Inc()
}
