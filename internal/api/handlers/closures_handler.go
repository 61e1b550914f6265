package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"cryptoPositionWatch/internal/domain"
)

const (
	defaultClosuresLimit = 50
	maxClosuresLimit     = 500
)

// ClosureHistory reads the closure journal.
type ClosureHistory interface {
	Recent(ctx context.Context, limit int) ([]*domain.ClosureEvent, error)
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ClosureEvent, error)
}

type ClosuresHandler struct {
	journal ClosureHistory
}

func NewClosuresHandler(journal ClosureHistory) *ClosuresHandler {
	return &ClosuresHandler{journal: journal}
}

// GetClosures returns the most recent closures, optionally for one symbol.
// Query: symbol, limit (1..500, default 50).
func (h *ClosuresHandler) GetClosures(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusInternalServerError, "closure journal not initialized", nil)
		return
	}

	limit := defaultClosuresLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxClosuresLimit)
	}

	var (
		events []*domain.ClosureEvent
		err    error
	)
	if symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol"))); symbol != "" {
		events, err = h.journal.FindBySymbol(r.Context(), symbol, limit)
	} else {
		events, err = h.journal.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read closures", err)
		return
	}
	if events == nil {
		events = []*domain.ClosureEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
