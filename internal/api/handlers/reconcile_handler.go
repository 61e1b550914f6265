package handlers

import (
	"context"
	"errors"
	"net/http"

	"cryptoPositionWatch/internal/app"
	"cryptoPositionWatch/internal/ports"
)

// PassController is the part of the scheduler the admin API drives.
type PassController interface {
	RunNow(ctx context.Context) (*app.PassReport, error)
	LastPass() (*app.PassReport, error)
	InFlight() bool
}

type ReconcileHandler struct {
	passes PassController
}

func NewReconcileHandler(passes PassController) *ReconcileHandler {
	return &ReconcileHandler{passes: passes}
}

// RunPass triggers one synchronous pass. 409 when a pass is already running.
func (h *ReconcileHandler) RunPass(w http.ResponseWriter, r *http.Request) {
	report, err := h.passes.RunNow(r.Context())
	switch {
	case errors.Is(err, ports.ErrPassInProgress):
		writeError(w, http.StatusConflict, "reconciliation pass already running", nil)
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  "reconciliation pass failed",
			"kind":   ports.ErrorKind(err),
			"report": report,
		})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string          `json:"status"`
	InFlight  bool            `json:"in_flight"`
	LastPass  *app.PassReport `json:"last_pass,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

// Health reports 200 unless the most recent pass failed to persist its results.
func (h *ReconcileHandler) Health(w http.ResponseWriter, r *http.Request) {
	last, err := h.passes.LastPass()
	resp := HealthResponse{Status: "ok", InFlight: h.passes.InFlight(), LastPass: last}
	if err != nil {
		resp.Status = "degraded"
		resp.LastError = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
