package app

import (
	"context"
	"fmt"
	"time"

	"cryptoPositionWatch/internal/cache"
	"cryptoPositionWatch/internal/ports"
)

// Compile-time check
var _ ports.OrderGateway = (*CachedGateway)(nil)

// CachedGateway decorates an OrderGateway with a TTL cache keyed by symbol
// and order id. Terminal states never change, so they are kept longer.
type CachedGateway struct {
	next        ports.OrderGateway
	cache       *cache.TTLCache[*ports.OrderStatus]
	ttl         time.Duration
	terminalTTL time.Duration
}

// NewCachedGateway wraps next. terminalTTL below ttl is raised to ttl.
func NewCachedGateway(next ports.OrderGateway, c *cache.TTLCache[*ports.OrderStatus], ttl, terminalTTL time.Duration) (*CachedGateway, error) {
	if next == nil || c == nil {
		return nil, fmt.Errorf("missing required dependencies for CachedGateway")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: cache ttl must be positive", cache.ErrInvalidTTL)
	}
	if terminalTTL < ttl {
		terminalTTL = ttl
	}
	return &CachedGateway{next: next, cache: c, ttl: ttl, terminalTTL: terminalTTL}, nil
}

func orderCacheKey(symbol, orderID string) string {
	return "order:" + symbol + ":" + orderID
}

// GetOrderStatus serves from cache when possible. Errors are never cached.
// The returned value is a copy; callers may modify it freely.
func (g *CachedGateway) GetOrderStatus(ctx context.Context, symbol, orderID string) (*ports.OrderStatus, error) {
	st, err := g.cache.GetOrLoadTTL(orderCacheKey(symbol, orderID), func() (*ports.OrderStatus, time.Duration, error) {
		st, err := g.next.GetOrderStatus(ctx, symbol, orderID)
		if err != nil {
			return nil, 0, err
		}
		if st == nil {
			return nil, 0, fmt.Errorf("%w: empty status for order %s", ports.ErrGatewayUnavailable, orderID)
		}
		if st.State.IsTerminal() {
			return st, g.terminalTTL, nil
		}
		return st, g.ttl, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *st
	return &cp, nil
}

// Invalidate drops the cached status of one order.
func (g *CachedGateway) Invalidate(symbol, orderID string) {
	if orderID == "" {
		return
	}
	g.cache.Invalidate(orderCacheKey(symbol, orderID))
}
