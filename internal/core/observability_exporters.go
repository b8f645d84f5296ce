package core

import (
	"context"
	"expvar"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExpvarMetricsRecorder publishes counters through the standard expvar
// surface, visible on /debug/vars wherever the default mux is served.
type ExpvarMetricsRecorder struct {
	operations *expvar.Map
	failures   *expvar.Map
	latencyMS  *expvar.Map
	outcomes   *expvar.Map
}

// NewExpvarMetricsRecorder publishes maps under the given namespace,
// reusing already-published maps so repeated construction is safe.
func NewExpvarMetricsRecorder(namespace string) *ExpvarMetricsRecorder {
	if namespace == "" {
		namespace = "plazacore"
	}
	return &ExpvarMetricsRecorder{
		operations: expvarMap(namespace + ".operations"),
		failures:   expvarMap(namespace + ".operation_failures"),
		latencyMS:  expvarMap(namespace + ".operation_latency_ms"),
		outcomes:   expvarMap(namespace + ".outcomes"),
	}
}

func expvarMap(name string) *expvar.Map {
	if v := expvar.Get(name); v != nil {
		if m, ok := v.(*expvar.Map); ok {
			return m
		}
	}
	return expvar.NewMap(name)
}

// ObserveOperation implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) ObserveOperation(_ context.Context, operation string, duration time.Duration, err error) {
	r.operations.Add(operation, 1)
	r.latencyMS.Add(operation, duration.Milliseconds())
	if err != nil {
		r.failures.Add(operation, 1)
	}
}

// ObserveOutcome implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) ObserveOutcome(_ context.Context, outcome OutcomeKind) {
	r.outcomes.Add(string(outcome), 1)
}

// PrometheusMetricsRecorder exports operation and outcome metrics through a
// prometheus registry.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	outcomes   *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers collectors with reg, falling back
// to the default registerer when reg is nil.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plazacore",
			Name:      "operations_total",
			Help:      "Engine and service operations by name and status.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plazacore",
			Name:      "operation_duration_seconds",
			Help:      "Operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plazacore",
			Name:      "outcomes_total",
			Help:      "Terminal request outcomes by kind.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.latency, r.outcomes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics collector: %w", err)
		}
	}
	return r, nil
}

// ObserveOperation implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) ObserveOperation(_ context.Context, operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveOutcome implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) ObserveOutcome(_ context.Context, outcome OutcomeKind) {
	r.outcomes.WithLabelValues(string(outcome)).Inc()
}

var (
	_ MetricsRecorder = (*ExpvarMetricsRecorder)(nil)
	_ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
	_ MetricsRecorder = NoopMetricsRecorder{}
)
