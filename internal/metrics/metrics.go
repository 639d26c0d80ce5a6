// Package metrics holds the lifecycle counters and histograms. Each command
// records into a private registry and writes it to a node_exporter textfile
// when it finishes.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "neo4j_deploy"

// Metrics is a set of collectors bound to one registry. A nil *Metrics
// records nothing, so components can run without it.
type Metrics struct {
	registry *prometheus.Registry

	submissions        *prometheus.CounterVec
	polls              *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	validations        *prometheus.CounterVec
	validationDuration prometheus.Histogram
	provisionDuration  *prometheus.HistogramVec
	cleanups           *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "orchestrator",
				Name:      "submissions_total",
				Help:      "Template submissions by scenario and result",
			},
			[]string{"scenario", "result"},
		),

		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "polls_total",
				Help:      "Status polls by provider state or error",
			},
			[]string{"result"},
		),

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "state",
				Name:      "transitions_total",
				Help:      "Persisted lifecycle transitions",
			},
			[]string{"from", "to"},
		),

		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "validation",
				Name:      "runs_total",
				Help:      "Workload smoke tests by result",
			},
			[]string{"result"},
		),

		validationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "validation",
				Name:      "duration_seconds",
				Help:      "Duration of workload smoke tests in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4min
			},
		),

		provisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "provisioning_duration_seconds",
				Help:      "Time from submission to a settled provider state",
				Buckets:   prometheus.ExponentialBuckets(30, 2, 8), // 30s to ~64min
			},
			[]string{"scenario", "result"},
		),

		cleanups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cleanup",
				Name:      "deletions_total",
				Help:      "Cleanup outcomes per deployment",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.submissions,
		m.polls,
		m.transitions,
		m.validations,
		m.validationDuration,
		m.provisionDuration,
		m.cleanups,
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordSubmission(scenario string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(scenario, result(err)).Inc()
}

func (m *Metrics) RecordPoll(outcome string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordValidation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
	m.validationDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordProvisioned(scenario, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.provisionDuration.WithLabelValues(scenario, outcome).Observe(d.Seconds())
}

func (m *Metrics) RecordCleanup(outcome string) {
	if m == nil {
		return
	}
	m.cleanups.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the registry in the text exposition format,
// replacing path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
