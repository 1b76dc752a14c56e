package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Dispatcher owns the remote-or-local choice, made once for the process
// lifetime, and shields the orchestrator from the distinction. It applies
// the call deadline and normalizes every failure into *Error. It never
// retries; one backend call per request.
type Dispatcher struct {
	client  Client
	remote  bool
	timeout time.Duration
	logger  *zap.Logger
}

// FromConfig picks the backend variant: a configured base URL always selects
// the remote client; otherwise the local automation package serves requests.
// The request's provider hint never overrides this rule.
func FromConfig(remote RemoteConfig, local LocalConfig, logger *zap.Logger) *Dispatcher {
	if remote.BaseURL != "" {
		client := NewRemoteClient(remote, logger)
		return &Dispatcher{client: client, remote: true, timeout: client.cfg.Timeout, logger: logger}
	}
	client := NewLocalClient(local, logger)
	return &Dispatcher{client: client, remote: false, timeout: client.cfg.Timeout, logger: logger}
}

// NewDispatcher wires an explicit client, mainly for tests.
func NewDispatcher(client Client, remote bool, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Dispatcher{client: client, remote: remote, timeout: timeout, logger: logger}
}

// Backend names the selected backend variant.
func (d *Dispatcher) Backend() string { return d.client.Name() }

// RemoteSelected reports whether the remote HTTP variant serves requests.
func (d *Dispatcher) RemoteSelected() bool { return d.remote }

// Dispatch executes the task on the selected backend under the configured
// deadline. A successful transport call whose body explicitly reports
// failure is normalized to a backend error as well.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) (RawResult, error) {
	if task.Provider != "" && !strings.EqualFold(task.Provider, d.client.Name()) {
		d.logger.Info("provider hint ignored; backend is fixed at startup",
			zap.String("hint", task.Provider),
			zap.String("selected", d.client.Name()))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := d.client.Execute(ctx, task)
	if err != nil {
		if KindOf(err) == "" {
			// Foreign error from a client implementation.
			if ctx.Err() == context.DeadlineExceeded {
				err = &Error{Kind: KindTimeout, Message: fmt.Sprintf("backend %s timed out after %s", d.client.Name(), d.timeout), Cause: err}
			} else {
				err = &Error{Kind: KindBackend, Message: "backend " + d.client.Name() + " failed", Cause: err}
			}
		}
		return nil, err
	}

	if msg, failed := reportedFailure(raw); failed {
		return nil, &Error{Kind: KindBackend, Message: msg}
	}
	return raw, nil
}

// reportedFailure inspects a transport-level success for the backend
// declaring its own run failed. Only explicit signals count; an
// indeterminate body is left to the criteria.
func reportedFailure(raw RawResult) (string, bool) {
	body := string(raw)

	for _, key := range []string{"ok", "success", "passed"} {
		field := gjson.Get(body, key)
		if !field.Exists() {
			continue
		}
		switch strings.ToLower(field.String()) {
		case "true", "1", "yes":
			return "", false
		case "false", "0", "no":
			return fmt.Sprintf("backend reported %s=%s", key, field.String()), true
		}
	}

	switch status := strings.ToLower(gjson.Get(body, "status").String()); status {
	case "ok", "success", "passed", "pass", "done", "completed":
		return "", false
	case "fail", "failed", "error", "exception":
		return "backend reported status=" + status, true
	}

	for _, key := range []string{"error", "exception", "traceback"} {
		if field := gjson.Get(body, key); field.Exists() && field.Type != gjson.Null && field.String() != "" {
			return fmt.Sprintf("backend reported %s: %s", key, field.String()), true
		}
	}
	for _, key := range []string{"errors", "failures"} {
		if field := gjson.Get(body, key); field.IsArray() && len(field.Array()) > 0 {
			return fmt.Sprintf("backend reported %d %s", len(field.Array()), key), true
		}
	}

	return "", false
}
