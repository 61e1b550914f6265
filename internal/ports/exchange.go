package ports

import (
	"context"
	"time"

	"cryptoPositionWatch/internal/domain"
)

// OrderStatus represents the essential details of an order as reported by the exchange.
type OrderStatus struct {
	OrderID     string            // Exchange's order ID
	Symbol      string            // Symbol for the order
	State       domain.OrderState // Normalized state (open, filled, cancelled)
	RawStatus   string            // Exchange status string (e.g., NEW, FILLED, CANCELED)
	AvgPrice    float64           // Average filled price
	ExecutedQty float64           // Quantity filled
	UpdatedAt   time.Time         // Last update reported by the exchange
}

// OrderGateway defines the exchange capability the reconciler depends on.
// Errors wrap ErrGatewayTimeout, ErrGatewayRateLimited, ErrGatewayUnavailable
// or ErrOrderNotFound.
type OrderGateway interface {
	// GetOrderStatus retrieves the current state of an order.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderStatus, error)
}

// Notifier delivers human-readable messages. Errors wrap ErrNotify.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
