package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptoPositionWatch/internal/domain"
	"cryptoPositionWatch/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func (m *mockLogger) warned(msg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.warns {
		if w == msg {
			n++
		}
	}
	return n
}

// memStore is an in-memory ports.PositionStore.
type memStore struct {
	mu        sync.Mutex
	positions domain.Positions
	failWrite error
	// beforeMutate runs inside Mutate before fn, under the lock, to simulate
	// a concurrent writer that got there first.
	beforeMutate func(domain.Positions)
}

func newMemStore(recs ...domain.PositionRecord) *memStore {
	s := &memStore{positions: domain.Positions{}}
	for _, rec := range recs {
		s.positions[rec.Symbol] = rec
	}
	return s
}

func (s *memStore) Load(ctx context.Context) (domain.Positions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions.Clone(), nil
}

func (s *memStore) Mutate(ctx context.Context, fn ports.MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeMutate != nil {
		s.beforeMutate(s.positions)
		s.beforeMutate = nil
	}
	next, err := fn(s.positions.Clone())
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrValidation, err)
	}
	if s.failWrite != nil {
		return fmt.Errorf("%w: %w", ports.ErrPersistence, s.failWrite)
	}
	s.positions = next.Clone()
	return nil
}

func (s *memStore) Upsert(ctx context.Context, rec domain.PositionRecord) error {
	return s.Mutate(ctx, func(cur domain.Positions) (domain.Positions, error) {
		cur[rec.Symbol] = rec
		return cur, nil
	})
}

func (s *memStore) Remove(ctx context.Context, symbol string) error {
	return s.Mutate(ctx, func(cur domain.Positions) (domain.Positions, error) {
		delete(cur, symbol)
		return cur, nil
	})
}

func (s *memStore) get(symbol string) (domain.PositionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.positions[symbol]
	return rec, ok
}

// mockGateway answers GetOrderStatus from a table keyed by order id.
type mockGateway struct {
	mu     sync.Mutex
	states map[string]domain.OrderState
	prices map[string]float64
	errs   map[string]error
	block  map[string]bool // wait for ctx to expire
	calls  map[string]int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		states: map[string]domain.OrderState{},
		prices: map[string]float64{},
		errs:   map[string]error{},
		block:  map[string]bool{},
		calls:  map[string]int{},
	}
}

func (g *mockGateway) set(orderID string, st domain.OrderState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[orderID] = st
	delete(g.errs, orderID)
}

// fill marks the order filled at the given average price.
func (g *mockGateway) fill(orderID string, avgPrice float64) {
	g.set(orderID, domain.OrderStateFilled)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[orderID] = avgPrice
}

func (g *mockGateway) fail(orderID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[orderID] = err
}

func (g *mockGateway) hang(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.block[orderID] = true
}

func (g *mockGateway) callCount(orderID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[orderID]
}

func (g *mockGateway) GetOrderStatus(ctx context.Context, symbol, orderID string) (*ports.OrderStatus, error) {
	g.mu.Lock()
	g.calls[orderID]++
	blocked := g.block[orderID]
	err := g.errs[orderID]
	state, ok := g.states[orderID]
	price := g.prices[orderID]
	g.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, fmt.Errorf("GetOrderStatus failed: %w: %w", ports.ErrGatewayTimeout, ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		state = domain.OrderStateOpen
	}
	return &ports.OrderStatus{OrderID: orderID, Symbol: symbol, State: state, AvgPrice: price, UpdatedAt: time.Now()}, nil
}

// mockNotifier fails the first failures sends, then succeeds.
type mockNotifier struct {
	mu       sync.Mutex
	failures int
	sent     []string
	attempts int
}

func (n *mockNotifier) Send(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.failures > 0 {
		n.failures--
		return fmt.Errorf("%w: telegram unavailable", ports.ErrNotify)
	}
	n.sent = append(n.sent, text)
	return nil
}

func (n *mockNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// mockJournal records journal calls.
type mockJournal struct {
	mu        sync.Mutex
	closures  map[string]*domain.ClosureEvent
	notified  map[string]time.Time
	pruned    []time.Time
	recordErr error
}

func newMockJournal() *mockJournal {
	return &mockJournal{closures: map[string]*domain.ClosureEvent{}, notified: map[string]time.Time{}}
}

func (j *mockJournal) RecordClosure(ctx context.Context, ev *domain.ClosureEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.recordErr != nil {
		return j.recordErr
	}
	if _, ok := j.closures[ev.Symbol]; !ok {
		cp := *ev
		j.closures[ev.Symbol] = &cp
	}
	return nil
}

func (j *mockJournal) MarkNotified(ctx context.Context, symbol string, openedAt, notifiedAt time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.notified[symbol]; !ok {
		j.notified[symbol] = notifiedAt
	}
	return nil
}

func (j *mockJournal) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pruned = append(j.pruned, olderThan)
	return 0, nil
}

func (j *mockJournal) Recent(ctx context.Context, limit int) ([]*domain.ClosureEvent, error) {
	return nil, errors.New("not implemented")
}

func (j *mockJournal) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ClosureEvent, error) {
	return nil, errors.New("not implemented")
}

func (j *mockJournal) pruneCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pruned)
}

func openPosition(symbol, tp, sl string) domain.PositionRecord {
	return domain.PositionRecord{
		Symbol:            symbol,
		Side:              domain.SideLong,
		EntryPrice:        65000,
		Quantity:          0.01,
		TakeProfitOrderID: tp,
		StopLossOrderID:   sl,
		Status:            domain.StatusOpen,
		OpenedAt:          time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}
