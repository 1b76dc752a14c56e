package runcase

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes the run-case pipeline over HTTP.
type Handler struct {
	Orchestrator *Orchestrator
	Logger       *zap.Logger
}

// RunCase handles POST /run-case. Validation failures answer 400; backend
// failures answer 200 with ok=false, since they are part of the verdict
// contract, not a transport problem.
func (h *Handler) RunCase(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("undecodable run-case body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, Response{
			OK:      false,
			Message: "invalid json: " + err.Error(),
			Raw:     emptyRaw,
		})
		return
	}

	resp, err := h.Orchestrator.Run(r.Context(), req)

	status := http.StatusOK
	var verr *ValidationError
	if errors.As(err, &verr) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// Healthz answers the liveness probe.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
