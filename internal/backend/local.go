package backend

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// LocalConfig configures the in-process automation fallback.
type LocalConfig struct {
	// CDPURL, when set, attaches to an already-running browser over the
	// Chrome DevTools Protocol instead of launching one.
	CDPURL string
	// Timeout bounds one run. Default 120s.
	Timeout time.Duration
}

// LocalClient executes tasks with the chromedp automation package inside
// this process. It is used only when no remote browser-use service is
// configured. The runner navigates to the first URL in the task text and
// snapshots title, final URL, body text and rendered HTML; it does not
// interpret the rest of the instructions.
type LocalClient struct {
	cfg    LocalConfig
	run    runFunc
	logger *zap.Logger
}

// runFunc is swapped out in tests.
type runFunc func(ctx context.Context, cfg LocalConfig, task Task, composed string) (RawResult, error)

// NewLocalClient builds the fallback client around chromedp.
func NewLocalClient(cfg LocalConfig, logger *zap.Logger) *LocalClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &LocalClient{cfg: cfg, run: runChromedp, logger: logger}
}

func (c *LocalClient) Name() string { return "chromedp-local" }

// Execute runs the task in-process. Every failure from the automation
// package is normalized to a backend error, except deadline expiry, which
// stays a timeout.
func (c *LocalClient) Execute(ctx context.Context, task Task) (RawResult, error) {
	composed := composeTask(task)

	start := time.Now()
	raw, err := c.run(ctx, c.cfg, task, composed)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Message: "local browser run timed out", Cause: err}
		}
		var be *Error
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, &Error{Kind: KindBackend, Message: "local browser run failed", Cause: err}
	}

	c.logger.Info("local browser run finished",
		zap.Bool("headless", task.Headless),
		zap.Duration("took", time.Since(start)))
	return raw, nil
}

// composeTask appends the success criteria to the task text, the same hint
// block the original browser-use local mode receives.
func composeTask(task Task) string {
	if len(task.SuccessCriteria) == 0 {
		return task.Text
	}
	lines := make([]string, 0, len(task.SuccessCriteria))
	for _, c := range task.SuccessCriteria {
		lines = append(lines, "- "+c.Describe())
	}
	return task.Text + "\nSuccess criteria:\n" + strings.Join(lines, "\n")
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// extractURL finds the navigation target in the task text.
func extractURL(text string) string {
	return urlPattern.FindString(text)
}

func runChromedp(ctx context.Context, cfg LocalConfig, task Task, composed string) (RawResult, error) {
	url := extractURL(task.Text)
	if url == "" {
		return nil, &Error{Kind: KindBackend, Message: "local backend needs an explicit http(s) URL in the task text"}
	}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if cfg.CDPURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, cfg.CDPURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", task.Headless),
		)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var title, location, text, html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Title(&title),
		chromedp.Location(&location),
		chromedp.Text("body", &text, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"status":   "completed",
		"provider": "chromedp-local",
		"task":     composed,
		"title":    title,
		"url":      location,
		"text":     text,
		"html":     html,
	}
	if task.Model != "" {
		result["model"] = task.Model
	}
	if task.Metadata != nil {
		result["metadata"] = task.Metadata
	}
	return json.Marshal(result)
}
