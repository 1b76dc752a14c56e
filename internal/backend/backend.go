// Package backend abstracts "execute this browser task somewhere". Two
// clients implement the contract: a remote browser-use HTTP service and a
// local in-process automation fallback. The dispatcher picks one at startup
// and normalizes every failure into the same coded error shape.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"runcase-backend/internal/eval"
)

// RawResult is the backend's reply, byte for byte as received, so responses
// and reports can echo it without loss.
type RawResult = json.RawMessage

// Task is the normalized execution request handed to a backend client.
// SuccessCriteria, Metadata, Provider and Extra are forwarded for the
// backend's benefit; nothing in this package interprets them beyond the
// local client composing criteria into its task text.
type Task struct {
	Text            string
	Headless        bool
	Model           string
	SuccessCriteria []eval.Criterion
	Metadata        map[string]any
	Provider        string
	Extra           map[string]any
}

// Client executes one task and returns the backend's raw reply.
type Client interface {
	Execute(ctx context.Context, task Task) (RawResult, error)
	// Name identifies the backend variant in logs and metrics.
	Name() string
}

// Kind classifies a backend failure.
type Kind string

const (
	// KindUnavailable means the backend could not be reached at all.
	KindUnavailable Kind = "backend_unavailable"
	// KindTimeout means the backend did not answer within the deadline.
	KindTimeout Kind = "backend_timeout"
	// KindBackend means the backend answered but reported a failure.
	KindBackend Kind = "backend_error"
)

// Error is the uniform failure shape every backend variant reports.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the failure kind from err, or "" for foreign errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
