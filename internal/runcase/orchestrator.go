package runcase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"runcase-backend/internal/backend"
	"runcase-backend/internal/eval"
	"runcase-backend/internal/metrics"
	"runcase-backend/internal/report"
)

// Defaults for request fields left empty, taken from the process config.
type Defaults struct {
	Model    string
	Headless bool
}

// Orchestrator drives one request through validate, dispatch, evaluate,
// report and respond. It holds no per-request state; concurrent requests
// only share the read-only collaborators below.
type Orchestrator struct {
	dispatcher *backend.Dispatcher
	reports    *report.Writer
	defaults   Defaults
	collector  *metrics.Collector
	logger     *zap.Logger
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(d *backend.Dispatcher, w *report.Writer, defaults Defaults, collector *metrics.Collector, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		dispatcher: d,
		reports:    w,
		defaults:   defaults,
		collector:  collector,
		logger:     logger,
	}
}

// Run always returns a well-formed response. err is non-nil only for
// validation failures, which the handler maps to HTTP 400; backend failures
// are part of the response contract (ok=false) and report no error here.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		o.collector.RunCase("invalid")
		o.logger.Warn("request rejected", zap.String("reason", err.Error()))
		return Response{OK: false, Message: err.Error(), Raw: emptyRaw}, err
	}

	headless := o.defaults.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}
	model := req.Model
	if model == "" {
		model = o.defaults.Model
	}

	task := backend.Task{
		Text:            req.Task,
		Headless:        headless,
		Model:           model,
		SuccessCriteria: req.SuccessCriteria,
		Metadata:        req.Metadata,
		Provider:        req.Provider,
		Extra:           req.Extra,
	}

	start := time.Now()
	raw, err := o.dispatcher.Dispatch(ctx, task)
	took := time.Since(start)
	if err != nil {
		kind := string(backend.KindOf(err))
		o.collector.BackendCall(o.dispatcher.Backend(), kind, took)
		o.collector.RunCase("failed")
		o.logger.Warn("backend execution failed",
			zap.String("backend", o.dispatcher.Backend()),
			zap.String("kind", kind),
			zap.Duration("took", took),
			zap.Error(err))
		return Response{OK: false, Message: err.Error(), Raw: emptyRaw}, nil
	}
	o.collector.BackendCall(o.dispatcher.Backend(), "success", took)

	verdict := eval.Evaluate(raw, req.SuccessCriteria)

	resp := Response{
		OK:      verdict.OK,
		Message: verdict.Message,
		Raw:     raw,
		Results: verdict.Results,
	}
	if o.dispatcher.RemoteSelected() {
		resp.Artifacts = &Artifacts{BrowserUseResponse: raw}
	}

	// Best effort: a report failure never flips the verdict.
	path, rerr := o.reports.Write(report.Data{
		Task:    req.Task,
		OK:      verdict.OK,
		Results: verdict.Results,
		Raw:     raw,
	})
	if rerr != nil {
		o.collector.ReportWriteFailure()
		o.logger.Warn("report write failed", zap.Error(rerr))
		resp.Warning = "report not written: " + rerr.Error()
	} else {
		resp.ReportPath = path
	}

	if resp.OK {
		o.collector.RunCase("ok")
	} else {
		o.collector.RunCase("failed")
	}
	o.logger.Info("run case finished",
		zap.Bool("ok", resp.OK),
		zap.String("backend", o.dispatcher.Backend()),
		zap.Int("criteria", len(req.SuccessCriteria)),
		zap.Duration("took", time.Since(start)))
	return resp, nil
}
