// Package metrics provides the gateway's prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "runcase"

// Collector tracks request outcomes and backend call behavior.
type Collector struct {
	runCasesTotal       *prometheus.CounterVec
	backendCallsTotal   *prometheus.CounterVec
	backendDuration     *prometheus.HistogramVec
	reportWriteFailures prometheus.Counter
}

// NewCollector registers the gateway metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		runCasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_cases_total",
				Help:      "Run-case requests by outcome (ok, failed, invalid).",
			},
			[]string{"outcome"},
		),
		backendCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Backend executions by backend and result.",
			},
			[]string{"backend", "result"},
		),
		backendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_call_duration_seconds",
				Help:      "Backend execution latency.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"backend"},
		),
		reportWriteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_write_failures_total",
				Help:      "Reports that could not be persisted.",
			},
		),
	}
}

// RunCase counts one finished request. outcome is ok, failed or invalid.
func (c *Collector) RunCase(outcome string) {
	c.runCasesTotal.WithLabelValues(outcome).Inc()
}

// BackendCall records one backend execution. result is success or the
// backend error kind.
func (c *Collector) BackendCall(backend, result string, took time.Duration) {
	c.backendCallsTotal.WithLabelValues(backend, result).Inc()
	c.backendDuration.WithLabelValues(backend).Observe(took.Seconds())
}

// ReportWriteFailure counts one report that could not be written.
func (c *Collector) ReportWriteFailure() {
	c.reportWriteFailures.Inc()
}
