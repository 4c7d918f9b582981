// Package observability exposes the monitor activity as Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"GoMemoryAssistant/pkg/condition"
	"GoMemoryAssistant/pkg/monitor"
)

// Trigger results.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// Recorder exposes high-level Prometheus metrics for the assistant.
type Recorder struct {
	registry *prometheus.Registry

	usagePercent     *prometheus.GaugeVec
	usedBytes        *prometheus.GaugeVec
	violationsTotal  *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	triggersTotal    *prometheus.CounterVec
	suppressedTotal  prometheus.Counter
	checksTotal      prometheus.Counter
	lastTriggerEpoch prometheus.Gauge
}

// NewRecorder constructs a metrics recorder with its own registry, which also
// carries the Go and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(r.registry)

	r.usagePercent = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memassist_pool_usage_percent",
		Help: "Latest usage of each memory pool in percent of its maximum",
	}, []string{"pool"})
	r.usedBytes = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memassist_pool_used_bytes",
		Help: "Latest used bytes of each memory pool",
	}, []string{"pool"})
	r.violationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "memassist_violations_total",
		Help: "Number of checks in which a memory pool violated its threshold",
	}, []string{"pool"})
	r.errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "memassist_evaluation_errors_total",
		Help: "Number of memory pool evaluations that failed",
	}, []string{"pool"})
	r.triggersTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "memassist_triggers_total",
		Help: "Number of heap dumps triggered, by result",
	}, []string{"result"})
	r.suppressedTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "memassist_suppressed_total",
		Help: "Number of heap dumps suppressed by the maximum frequency",
	})
	r.checksTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "memassist_ticks_total",
		Help: "Number of checks run by the monitor",
	})
	r.lastTriggerEpoch = factory.NewGauge(prometheus.GaugeOpts{
		Name: "memassist_last_trigger_timestamp_seconds",
		Help: "Time of the last heap dump attempt",
	})
	return r
}

// ObserveCheck records the outcome of one monitor check.
func (r *Recorder) ObserveCheck(report monitor.Report) {
	r.checksTotal.Inc()

	for _, res := range report.Results {
		r.RecordResult(res)
	}
	for _, f := range report.Faults {
		r.errorsTotal.WithLabelValues(f.Pool).Inc()
	}

	switch {
	case report.Triggered:
		result := ResultCompleted
		if report.TriggerErr != nil {
			result = ResultFailed
		}
		r.triggersTotal.WithLabelValues(result).Inc()
		r.lastTriggerEpoch.Set(float64(report.Time.UnixNano()) / 1e9)
	case report.Suppressed:
		r.suppressedTotal.Inc()
	}
}

// RecordResult publishes the sample and verdict of one evaluation.
func (r *Recorder) RecordResult(res condition.Result) {
	if res.Sampled() {
		r.usedBytes.WithLabelValues(res.Pool).Set(float64(res.Usage.Used))
		if res.Usage.Max > 0 {
			r.usagePercent.WithLabelValues(res.Pool).Set(res.Usage.Ratio())
		}
	}
	if res.Verdict == condition.Violated {
		r.violationsTotal.WithLabelValues(res.Pool).Inc()
	}
}

// Registry returns the registry holding the metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
