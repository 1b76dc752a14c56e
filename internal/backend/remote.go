package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RemoteConfig configures the browser-use HTTP client.
type RemoteConfig struct {
	// BaseURL is the service root, e.g. http://127.0.0.1:7788.
	BaseURL string
	// RunPath is appended to BaseURL for task execution. Default /run.
	RunPath string
	// AuthHeader, when set, is sent verbatim as the Authorization header.
	AuthHeader string
	// Timeout bounds the whole call. Default 120s.
	Timeout time.Duration
}

// RemoteClient executes tasks against a browser-use HTTP service with a
// single POST per task. The response body is kept verbatim.
type RemoteClient struct {
	cfg    RemoteConfig
	http   *http.Client
	logger *zap.Logger
}

// NewRemoteClient fills config defaults and builds the client.
func NewRemoteClient(cfg RemoteConfig, logger *zap.Logger) *RemoteClient {
	if cfg.RunPath == "" {
		cfg.RunPath = "/run"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &RemoteClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *RemoteClient) Name() string { return "browser-use-http" }

// RunURL is the resolved execution endpoint.
func (c *RemoteClient) RunURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.RunPath
}

// Execute POSTs the task to the run endpoint and returns the body verbatim.
// Non-JSON bodies are wrapped as {"text": ...} so callers always hold JSON.
func (c *RemoteClient) Execute(ctx context.Context, task Task) (RawResult, error) {
	payload := map[string]any{
		"task":     task.Text,
		"model":    task.Model,
		"headless": task.Headless,
	}
	if len(task.SuccessCriteria) > 0 {
		payload["success_criteria"] = task.SuccessCriteria
	}
	if task.Metadata != nil {
		payload["metadata"] = task.Metadata
	}
	if task.Provider != "" {
		payload["provider"] = task.Provider
	}
	if len(task.Extra) > 0 {
		payload["extra"] = task.Extra
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindBackend, Message: "encode run payload", Cause: err}
	}

	url := c.RunURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindBackend, Message: "build run request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthHeader != "" {
		req.Header.Set("Authorization", c.cfg.AuthHeader)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("browser-use backend timed out after %s", c.cfg.Timeout),
				Cause:   err,
			}
		}
		return nil, &Error{
			Kind:    KindUnavailable,
			Message: "browser-use backend unreachable at " + url,
			Cause:   err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("browser-use backend timed out after %s", c.cfg.Timeout),
				Cause:   err,
			}
		}
		return nil, &Error{Kind: KindUnavailable, Message: "read backend response", Cause: err}
	}

	c.logger.Info("browser-use http call finished",
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(raw)),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:    KindBackend,
			Message: fmt.Sprintf("browser-use backend returned status %d: %s", resp.StatusCode, truncate(raw, 200)),
		}
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") || !json.Valid(raw) {
		wrapped, werr := json.Marshal(map[string]string{"text": string(raw)})
		if werr != nil {
			return nil, &Error{Kind: KindBackend, Message: "wrap non-json response", Cause: werr}
		}
		return RawResult(wrapped), nil
	}
	return RawResult(raw), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
