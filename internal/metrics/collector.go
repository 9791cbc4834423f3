// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	enginegraph "github.com/BaSui01/stategraph/graph"
)

// Collector exposes Prometheus metrics for the graph engine. It
// implements the executor's Metrics interface.
type Collector struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runsActive  *prometheus.GaugeVec

	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec

	checkpointsSaved *prometheus.CounterVec
	interruptsTotal  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the engine metrics on the given registerer.
// Using a caller-supplied registerer keeps tests free of the global
// default registry and its duplicate-registration panics.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of run segments by outcome (completed, failed, paused)",
		},
		[]string{"graph", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Graph run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"graph"},
	)

	c.runsActive = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of runs currently executing; paused runs are not counted",
		},
		[]string{"graph"},
	)

	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of executed steps by node and result",
		},
		[]string{"graph", "node", "result"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Node invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"graph", "node"},
	)

	c.checkpointsSaved = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_saved_total",
			Help:      "Total number of persisted checkpoints",
		},
		[]string{"graph"},
	)

	c.interruptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_total",
			Help:      "Total number of runs paused for approval",
		},
		[]string{"graph"},
	)

	return c
}

// RunStarted records the start of a run.
func (c *Collector) RunStarted(graph string) {
	c.runsActive.WithLabelValues(graph).Inc()
}

// RunEnded records a run reaching a terminal status.
func (c *Collector) RunEnded(graph string, status string, d time.Duration) {
	c.runsActive.WithLabelValues(graph).Dec()
	c.runsTotal.WithLabelValues(graph, status).Inc()
	c.runDuration.WithLabelValues(graph).Observe(d.Seconds())
}

// StepExecuted records one node invocation.
func (c *Collector) StepExecuted(graph, node string, d time.Duration, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	c.stepsTotal.WithLabelValues(graph, node, result).Inc()
	c.stepDuration.WithLabelValues(graph, node).Observe(d.Seconds())
}

// CheckpointSaved records a persisted checkpoint.
func (c *Collector) CheckpointSaved(graph string) {
	c.checkpointsSaved.WithLabelValues(graph).Inc()
}

// RunInterrupted records a run pausing for approval.
func (c *Collector) RunInterrupted(graph string) {
	c.interruptsTotal.WithLabelValues(graph).Inc()
}

// Ensure Collector satisfies the executor's instrumentation contract.
var _ enginegraph.Metrics = (*Collector)(nil)
