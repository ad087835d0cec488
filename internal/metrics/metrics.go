// Package metrics exposes Prometheus counters for tool calls, operator
// executions and delegated operations. A nil *Collector records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "datasetops"

// Outcome labels.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Collector owns its own registry so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	ToolCalls          *prometheus.CounterVec
	OperatorExecutions *prometheus.CounterVec
	OperatorDuration   *prometheus.HistogramVec
	DelegatedOps       *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome",
		}, []string{"tool", "status"}),
		OperatorExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operator_executions_total",
			Help:      "Inline operator executions by operator and outcome",
		}, []string{"operator", "status"}),
		OperatorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operator_duration_seconds",
			Help:      "Duration of inline operator executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operator"}),
		DelegatedOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegated_operations_total",
			Help:      "Delegated operation transitions by run state",
		}, []string{"run_state"}),
	}
	reg.MustRegister(c.ToolCalls, c.OperatorExecutions, c.OperatorDuration, c.DelegatedOps)
	return c
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveTool(tool string, err error) {
	if c == nil {
		return
	}
	c.ToolCalls.WithLabelValues(tool, status(err)).Inc()
}

func (c *Collector) ObserveOperator(uri string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.OperatorExecutions.WithLabelValues(uri, status(err)).Inc()
	c.OperatorDuration.WithLabelValues(uri).Observe(d.Seconds())
}

func (c *Collector) ObserveDelegated(runState string) {
	if c == nil {
		return
	}
	c.DelegatedOps.WithLabelValues(runState).Inc()
}

func status(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusOK
}
