package domain

import "time"

// ClosureEvent is the audit record of a closed position.
type ClosureEvent struct {
	ID                int64       `json:"id"`
	Symbol            string      `json:"symbol"`
	Side              Side        `json:"side"`
	EntryPrice        float64     `json:"entry_price"`
	Quantity          float64     `json:"quantity"`
	TakeProfitOrderID string      `json:"take_profit_order_id"`
	StopLossOrderID   string      `json:"stop_loss_order_id"`
	CloseReason       CloseReason `json:"close_reason"`
	ClosingOrderID    string      `json:"closing_order_id"`
	OpenedAt          time.Time   `json:"opened_at"`
	ClosedAt          time.Time   `json:"closed_at"`
	NotifiedAt        *time.Time  `json:"notified_at"` // nil until the closure notification was delivered
}

// NewClosureEvent builds the audit record for a closed position.
func NewClosureEvent(rec PositionRecord) *ClosureEvent {
	ev := &ClosureEvent{
		Symbol:            rec.Symbol,
		Side:              rec.Side,
		EntryPrice:        rec.EntryPrice,
		Quantity:          rec.Quantity,
		TakeProfitOrderID: rec.TakeProfitOrderID,
		StopLossOrderID:   rec.StopLossOrderID,
		CloseReason:       rec.CloseReason,
		ClosingOrderID:    rec.ClosingOrderID,
		OpenedAt:          rec.OpenedAt,
	}
	if rec.ClosedAt != nil {
		ev.ClosedAt = *rec.ClosedAt
	}
	return ev
}
