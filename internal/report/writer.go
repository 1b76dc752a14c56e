// Package report persists one self-contained HTML artifact per executed
// request: the task, the criteria outcomes and the raw backend result.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"runcase-backend/internal/eval"
)

// Writer renders run-case reports under a reports directory. Filenames are
// unique per request, so concurrent writers never collide.
type Writer struct {
	dir    string
	logger *zap.Logger
}

// NewWriter builds a writer rooted at dir (default artifacts/reports).
func NewWriter(dir string, logger *zap.Logger) *Writer {
	if dir == "" {
		dir = filepath.Join("artifacts", "reports")
	}
	return &Writer{dir: dir, logger: logger}
}

// Data is everything one report shows.
type Data struct {
	Task    string
	OK      bool
	Results []eval.Result
	Raw     json.RawMessage
}

type templateData struct {
	Data
	GeneratedAt string
	RawPretty   string
}

var reportTmpl = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Run Case Report - {{.GeneratedAt}}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, Segoe UI, Roboto, Helvetica, Arial, sans-serif; margin: 24px; }
    .ok { color: #0a7f2e; }
    .fail { color: #b00020; }
    pre { background: #f6f8fa; padding: 12px; border-radius: 6px; overflow: auto; }
    code { white-space: pre-wrap; word-break: break-word; }
  </style>
</head>
<body>
  <h2>Run Case Report</h2>
  <p><b>Task</b>: {{.Task}}</p>
  <p><b>Result</b>: <span class="{{if .OK}}ok{{else}}fail{{end}}">{{if .OK}}PASS{{else}}FAIL{{end}}</span></p>
  <h3>Success criteria</h3>
  {{if .Results}}<ul>
  {{range .Results}}<li><b>{{.Type}}</b> {{if .Selector}}[{{.Selector}}] {{end}}{{.Value}} &mdash; {{if .Passed}}passed{{else}}failed{{end}}</li>
  {{end}}</ul>{{else}}<p>(none provided)</p>{{end}}
  <h3>Raw backend result</h3>
  <pre><code>{{.RawPretty}}</code></pre>
</body>
</html>
`))

// Write renders the report and returns its path.
func (w *Writer) Write(data Data) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	name := fmt.Sprintf("report-%d-%s.html", time.Now().UnixMilli(), uuid.NewString()[:8])
	path := filepath.Join(w.dir, name)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data.Raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(data.Raw)
	}

	var buf bytes.Buffer
	err := reportTmpl.Execute(&buf, templateData{
		Data:        data,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		RawPretty:   pretty.String(),
	})
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	w.logger.Info("report written", zap.String("path", path), zap.Bool("ok", data.OK))
	return path, nil
}
