package domain

// Side represents the direction of a position (long or short).
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s PositionStatus) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonCancelled  CloseReason = "CANCELLED" // A protective order was cancelled without any fill
)

// OrderState is the normalized state of an exchange order.
type OrderState string

const (
	OrderStateOpen      OrderState = "open"
	OrderStateFilled    OrderState = "filled"
	OrderStateCancelled OrderState = "cancelled"
)

// IsTerminal reports whether no further transitions are expected for the order.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateFilled || s == OrderStateCancelled
}

// Phase is the reconciliation phase of a position, derived from its status
// and notification flag.
type Phase string

const (
	PhaseOpen                Phase = "OPEN"
	PhaseClosedPendingNotify Phase = "CLOSED_PENDING_NOTIFY"
	PhaseClosedNotified      Phase = "CLOSED_NOTIFIED"
)
