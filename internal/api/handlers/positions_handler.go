package handlers

import (
	"context"
	"net/http"

	"cryptoPositionWatch/internal/domain"
)

// PositionLoader reads the current position snapshot.
type PositionLoader interface {
	Load(ctx context.Context) (domain.Positions, error)
}

// PositionView is a stored record with its derived reconciliation phase.
type PositionView struct {
	domain.PositionRecord
	Phase domain.Phase `json:"phase"`
}

// PositionsResponse is the body of GET /api/v1/positions.
type PositionsResponse struct {
	Count     int            `json:"count"`
	Positions []PositionView `json:"positions"`
}

type PositionsHandler struct {
	store PositionLoader
}

func NewPositionsHandler(store PositionLoader) *PositionsHandler {
	return &PositionsHandler{store: store}
}

// GetPositions lists every tracked position ordered by symbol.
func (h *PositionsHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusInternalServerError, "position store not initialized", nil)
		return
	}

	positions, err := h.store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load positions", err)
		return
	}

	resp := PositionsResponse{Positions: make([]PositionView, 0, len(positions))}
	for _, sym := range positions.Symbols() {
		rec := positions[sym]
		resp.Positions = append(resp.Positions, PositionView{PositionRecord: rec, Phase: rec.Phase()})
	}
	resp.Count = len(resp.Positions)
	writeJSON(w, http.StatusOK, resp)
}
