package runcase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"runcase-backend/internal/backend"
	"runcase-backend/internal/eval"
	"runcase-backend/internal/metrics"
	"runcase-backend/internal/report"
)

func newRemoteOrchestrator(t *testing.T, baseURL, reportsDir string) *Orchestrator {
	t.Helper()
	logger := zap.NewNop()
	dispatcher := backend.FromConfig(
		backend.RemoteConfig{BaseURL: baseURL, Timeout: 2 * time.Second},
		backend.LocalConfig{},
		logger,
	)
	return NewOrchestrator(
		dispatcher,
		report.NewWriter(reportsDir, logger),
		Defaults{Model: "default-model", Headless: true},
		metrics.NewCollector(prometheus.NewRegistry()),
		logger,
	)
}

func jsonBackend(t *testing.T, calls *atomic.Int64, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunEndToEndPass(t *testing.T) {
	raw := `{"title":"Example Domain"}`
	srv := jsonBackend(t, nil, raw)
	o := newRemoteOrchestrator(t, srv.URL, t.TempDir())

	resp, err := o.Run(context.Background(), Request{
		Task:            "open https://example.com",
		SuccessCriteria: []eval.Criterion{{Type: eval.TitleContains, Value: "Example Domain"}},
	})

	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.ReportPath)
	assert.FileExists(t, resp.ReportPath)
	// The raw field echoes the backend result verbatim.
	assert.Equal(t, raw, string(resp.Raw))
	require.NotNil(t, resp.Artifacts)
	assert.Equal(t, raw, string(resp.Artifacts.BrowserUseResponse))
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Passed)
}

func TestRunEndToEndFail(t *testing.T) {
	srv := jsonBackend(t, nil, `{"title":"Something Else"}`)
	o := newRemoteOrchestrator(t, srv.URL, t.TempDir())

	resp, err := o.Run(context.Background(), Request{
		Task:            "open https://example.com",
		SuccessCriteria: []eval.Criterion{{Type: eval.TitleContains, Value: "Example Domain"}},
	})

	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.NotEmpty(t, resp.ReportPath, "a failed verdict still gets a report")
	require.Len(t, resp.Results, 1)
	assert.False(t, resp.Results[0].Passed)
}

func TestRunEmptyCriteriaTrivialPass(t *testing.T) {
	srv := jsonBackend(t, nil, `{"title":"anything"}`)
	o := newRemoteOrchestrator(t, srv.URL, t.TempDir())

	resp, err := o.Run(context.Background(), Request{Task: "open https://example.com"})

	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Contains(t, resp.Message, "no success criteria")
}

func TestRunRejectsEmptyTaskBeforeDispatch(t *testing.T) {
	var calls atomic.Int64
	srv := jsonBackend(t, &calls, `{}`)
	o := newRemoteOrchestrator(t, srv.URL, t.TempDir())

	resp, err := o.Run(context.Background(), Request{Task: ""})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Message, "task is required")
	assert.JSONEq(t, `{}`, string(resp.Raw))
	assert.Equal(t, int64(0), calls.Load(), "no backend call on validation failure")
}

func TestRunRejectsUnsupportedCriterionType(t *testing.T) {
	var calls atomic.Int64
	srv := jsonBackend(t, &calls, `{}`)
	o := newRemoteOrchestrator(t, srv.URL, t.TempDir())

	_, err := o.Run(context.Background(), Request{
		Task:            "open https://example.com",
		SuccessCriteria: []eval.Criterion{{Type: "element_visible", Value: "x"}},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "unsupported type")
	assert.Equal(t, int64(0), calls.Load())
}

func TestRunBackendTimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	dispatcher := backend.FromConfig(
		backend.RemoteConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond},
		backend.LocalConfig{},
		logger,
	)
	o := NewOrchestrator(dispatcher, report.NewWriter(t.TempDir(), logger), Defaults{Headless: true},
		metrics.NewCollector(prometheus.NewRegistry()), logger)

	resp, err := o.Run(context.Background(), Request{Task: "open https://example.com"})

	require.NoError(t, err, "backend failures are part of the response contract")
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Message, "timed out")
	assert.Contains(t, resp.Message, string(backend.KindTimeout))
}

func TestRunBackendUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	o := newRemoteOrchestrator(t, srv.URL, t.TempDir())

	resp, err := o.Run(context.Background(), Request{Task: "open https://example.com"})

	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Message, string(backend.KindUnavailable))
	assert.JSONEq(t, `{}`, string(resp.Raw))
	assert.Empty(t, resp.ReportPath, "no report without a backend result")
}

func TestRunBackendReportedFailure(t *testing.T) {
	srv := jsonBackend(t, nil, `{"status":"failed","error":"step 2 not possible"}`)
	o := newRemoteOrchestrator(t, srv.URL, t.TempDir())

	resp, err := o.Run(context.Background(), Request{Task: "open https://example.com"})

	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Message, "status=failed")
}

func TestRunReportFailureDoesNotFlipVerdict(t *testing.T) {
	srv := jsonBackend(t, nil, `{"title":"Example Domain"}`)

	// A regular file in the directory position makes the report write fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	o := newRemoteOrchestrator(t, srv.URL, filepath.Join(blocker, "reports"))

	resp, err := o.Run(context.Background(), Request{
		Task:            "open https://example.com",
		SuccessCriteria: []eval.Criterion{{Type: eval.TitleContains, Value: "Example Domain"}},
	})

	require.NoError(t, err)
	assert.True(t, resp.OK, "report failures never affect ok")
	assert.Empty(t, resp.ReportPath)
	assert.Contains(t, resp.Warning, "report not written")
}

func TestRunAppliesDefaults(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"done"}`))
	}))
	t.Cleanup(srv.Close)
	o := newRemoteOrchestrator(t, srv.URL, t.TempDir())

	_, err := o.Run(context.Background(), Request{Task: "open https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "default-model", got["model"])
	assert.Equal(t, true, got["headless"])

	headless := false
	_, err = o.Run(context.Background(), Request{Task: "open https://example.com", Model: "qwen2.5:7b", Headless: &headless})
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:7b", got["model"])
	assert.Equal(t, false, got["headless"])
}

func TestRunLocalBackendOmitsArtifacts(t *testing.T) {
	logger := zap.NewNop()
	stub := &stubBackend{raw: json.RawMessage(`{"status":"completed","title":"Example Domain"}`)}
	dispatcher := backend.NewDispatcher(stub, false, time.Second, logger)
	o := NewOrchestrator(dispatcher, report.NewWriter(t.TempDir(), logger), Defaults{Headless: true},
		metrics.NewCollector(prometheus.NewRegistry()), logger)

	resp, err := o.Run(context.Background(), Request{Task: "open https://example.com"})

	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Nil(t, resp.Artifacts, "artifacts nesting is a remote-backend detail")
}

type stubBackend struct {
	raw json.RawMessage
}

func (s *stubBackend) Execute(ctx context.Context, task backend.Task) (backend.RawResult, error) {
	return backend.RawResult(s.raw), nil
}

func (s *stubBackend) Name() string { return "stub-local" }
