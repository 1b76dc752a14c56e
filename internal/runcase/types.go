// Package runcase orchestrates one run-case request: validation, backend
// dispatch, criterion evaluation, report writing and response assembly.
package runcase

import (
	"encoding/json"
	"fmt"
	"strings"

	"runcase-backend/internal/eval"
)

// Request is the POST /run-case body. Metadata, Provider and Extra are
// opaque passthroughs for the backend; this service never interprets them.
type Request struct {
	Task            string           `json:"task"`
	SuccessCriteria []eval.Criterion `json:"success_criteria,omitempty"`
	Headless        *bool            `json:"headless,omitempty"`
	Model           string           `json:"model,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
	Provider        string           `json:"provider,omitempty"`
	Extra           map[string]any   `json:"extra,omitempty"`
}

// Response is the /run-case reply. Every code path, including failures,
// produces one.
type Response struct {
	OK         bool            `json:"ok"`
	Message    string          `json:"message"`
	ReportPath string          `json:"report_path"`
	Raw        json.RawMessage `json:"raw"`
	Results    []eval.Result   `json:"results,omitempty"`
	Warning    string          `json:"warning,omitempty"`
	Artifacts  *Artifacts      `json:"artifacts,omitempty"`
}

// Artifacts nests the remote backend's reply under the key the platform
// consuming this service expects.
type Artifacts struct {
	BrowserUseResponse json.RawMessage `json:"browser_use_response,omitempty"`
}

// emptyRaw keeps "raw" an object on paths with no backend result.
var emptyRaw = json.RawMessage(`{}`)

// ValidationError rejects a request before any backend call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate enforces the request invariants: a non-empty task and only
// supported criterion types with non-empty values.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Task) == "" {
		return &ValidationError{Reason: "task is required"}
	}
	for i, c := range r.SuccessCriteria {
		if !c.Type.Valid() {
			return &ValidationError{Reason: fmt.Sprintf("success_criteria[%d]: unsupported type %q", i, c.Type)}
		}
		if c.Value == "" {
			return &ValidationError{Reason: fmt.Sprintf("success_criteria[%d]: value is required", i)}
		}
	}
	return nil
}
