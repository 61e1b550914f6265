package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidTransition is returned when a status or notification change would
// move a position backwards.
var ErrInvalidTransition = errors.New("invalid position state transition")

// PositionRecord is a position opened on the exchange together with its
// protective take-profit and stop-loss orders.
type PositionRecord struct {
	Symbol            string         `json:"symbol"`
	Side              Side           `json:"side"`
	EntryPrice        float64        `json:"entry_price"`
	Quantity          float64        `json:"quantity"`
	TakeProfitOrderID string         `json:"take_profit_order_id"`
	StopLossOrderID   string         `json:"stop_loss_order_id"`
	Status            PositionStatus `json:"status"`
	NotificationSent  bool           `json:"notification_sent"`
	OpenedAt          time.Time      `json:"opened_at"`
	ClosedAt          *time.Time     `json:"closed_at"`

	// Set when the position is closed.
	CloseReason    CloseReason `json:"close_reason,omitempty"`
	ClosingOrderID string      `json:"closing_order_id,omitempty"`
	// Average fill price of the closing order, zero when unknown.
	ExitPrice float64 `json:"exit_price,omitempty"`
}

// IsOpen checks if the position status is open.
func (p *PositionRecord) IsOpen() bool {
	return p.Status == StatusOpen
}

// Phase derives the reconciliation phase of the record.
func (p *PositionRecord) Phase() Phase {
	switch {
	case p.Status == StatusOpen:
		return PhaseOpen
	case p.NotificationSent:
		return PhaseClosedNotified
	default:
		return PhaseClosedPendingNotify
	}
}

// EligibleForRemoval reports whether the record may be evicted from the store.
func (p *PositionRecord) EligibleForRemoval() bool {
	return p.Status == StatusClosed && p.NotificationSent
}

// SameLifecycle reports whether other describes the same opened position,
// regardless of how far each copy has progressed.
func (p *PositionRecord) SameLifecycle(other *PositionRecord) bool {
	if other == nil {
		return false
	}
	return p.Symbol == other.Symbol &&
		p.OpenedAt.Equal(other.OpenedAt) &&
		p.TakeProfitOrderID == other.TakeProfitOrderID &&
		p.StopLossOrderID == other.StopLossOrderID
}

// Close moves an open position to closed. It never reopens.
func (p *PositionRecord) Close(reason CloseReason, orderID string, at time.Time) error {
	if p.Status != StatusOpen {
		return fmt.Errorf("%w: close %s in status %s", ErrInvalidTransition, p.Symbol, p.Status)
	}
	closedAt := at.UTC()
	p.Status = StatusClosed
	p.ClosedAt = &closedAt
	p.CloseReason = reason
	p.ClosingOrderID = orderID
	return nil
}

// RealizedPnL returns the profit in quote asset and as a percentage of the
// entry notional. ok is false unless the position closed on a fill with a
// known exit price.
func (p *PositionRecord) RealizedPnL() (quote, pct float64, ok bool) {
	if p.Status != StatusClosed || p.ExitPrice <= 0 {
		return 0, 0, false
	}
	if p.CloseReason != CloseReasonTakeProfit && p.CloseReason != CloseReasonStopLoss {
		return 0, 0, false
	}
	quote = p.Quantity * (p.ExitPrice - p.EntryPrice)
	if p.Side == SideShort {
		quote = -quote
	}
	pct = quote / (p.EntryPrice * p.Quantity) * 100
	return quote, pct, true
}

// MarkNotified records that the closure notification was delivered.
func (p *PositionRecord) MarkNotified() error {
	if p.Status != StatusClosed {
		return fmt.Errorf("%w: notify %s while %s", ErrInvalidTransition, p.Symbol, p.Status)
	}
	if p.NotificationSent {
		return fmt.Errorf("%w: %s already notified", ErrInvalidTransition, p.Symbol)
	}
	p.NotificationSent = true
	return nil
}

// Validate checks the shape of a record.
func (p *PositionRecord) Validate() error {
	var errs []error
	if p.Symbol == "" {
		errs = append(errs, errors.New("symbol is empty"))
	}
	if !p.Side.Valid() {
		errs = append(errs, fmt.Errorf("unknown side %q", p.Side))
	}
	if !p.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", p.Status))
	}
	if p.EntryPrice <= 0 {
		errs = append(errs, fmt.Errorf("entry_price must be positive, got %v", p.EntryPrice))
	}
	if p.Quantity <= 0 {
		errs = append(errs, fmt.Errorf("quantity must be positive, got %v", p.Quantity))
	}
	if p.TakeProfitOrderID == "" && p.StopLossOrderID == "" {
		errs = append(errs, errors.New("no take_profit_order_id or stop_loss_order_id"))
	}
	if p.OpenedAt.IsZero() {
		errs = append(errs, errors.New("opened_at is missing"))
	}
	if p.NotificationSent && p.Status != StatusClosed {
		errs = append(errs, errors.New("notification_sent is set on an open position"))
	}
	if p.Status == StatusClosed && p.ClosedAt == nil {
		errs = append(errs, errors.New("closed position without closed_at"))
	}
	if p.Status == StatusOpen && p.ClosedAt != nil {
		errs = append(errs, errors.New("open position with closed_at"))
	}
	if p.ExitPrice < 0 {
		errs = append(errs, fmt.Errorf("exit_price must not be negative, got %v", p.ExitPrice))
	} else if p.ExitPrice > 0 && p.Status == StatusOpen {
		errs = append(errs, errors.New("open position with exit_price"))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of the record.
func (p PositionRecord) Clone() PositionRecord {
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		p.ClosedAt = &t
	}
	return p
}

// Positions maps symbol to its position record.
type Positions map[string]PositionRecord

// Clone returns a deep copy of the mapping.
func (ps Positions) Clone() Positions {
	out := make(Positions, len(ps))
	for k, v := range ps {
		out[k] = v.Clone()
	}
	return out
}

// Symbols returns the keys in ascending order.
func (ps Positions) Symbols() []string {
	out := make([]string, 0, len(ps))
	for k := range ps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks every record and that each key matches its record symbol.
func (ps Positions) Validate() error {
	var errs []error
	for _, sym := range ps.Symbols() {
		rec := ps[sym]
		if rec.Symbol != sym {
			errs = append(errs, fmt.Errorf("%s: key does not match symbol %q", sym, rec.Symbol))
			continue
		}
		if err := rec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
		}
	}
	return errors.Join(errs...)
}
