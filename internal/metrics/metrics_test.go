package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RunCase("ok")
	c.RunCase("ok")
	c.RunCase("failed")
	c.BackendCall("browser-use-http", "success", 250*time.Millisecond)
	c.BackendCall("browser-use-http", "backend_timeout", time.Second)
	c.ReportWriteFailure()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runCasesTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runCasesTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.backendCallsTotal.WithLabelValues("browser-use-http", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.backendCallsTotal.WithLabelValues("browser-use-http", "backend_timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.reportWriteFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "runcase_run_cases_total")
	assert.Contains(t, names, "runcase_backend_call_duration_seconds")
	assert.Contains(t, names, "runcase_report_write_failures_total")
}

func TestCollectorsAreIsolatedPerRegistry(t *testing.T) {
	// Two collectors must not clash; each request-scoped test gets its own.
	first := NewCollector(prometheus.NewRegistry())
	second := NewCollector(prometheus.NewRegistry())

	first.RunCase("ok")
	assert.Equal(t, float64(0), testutil.ToFloat64(second.runCasesTotal.WithLabelValues("ok")))
}
