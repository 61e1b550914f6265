package ports

import (
	"context"
	"time"

	"cryptoPositionWatch/internal/domain"
)

// MutateFunc receives a private copy of the current mapping and returns the next one.
// Returning an error aborts the mutation without writing.
type MutateFunc func(current domain.Positions) (domain.Positions, error)

// PositionStore defines the durable symbol -> position mapping.
type PositionStore interface {
	// Load returns a deep copy of the current mapping.
	Load(ctx context.Context) (domain.Positions, error)
	// Mutate applies fn under the exclusive lock and persists the result.
	// It is the only write path.
	Mutate(ctx context.Context, fn MutateFunc) error
	// Upsert inserts or replaces the record for rec.Symbol.
	Upsert(ctx context.Context, rec domain.PositionRecord) error
	// Remove deletes the record for symbol; no error if absent.
	Remove(ctx context.Context, symbol string) error
}

// ClosureJournal defines the audit log of closed positions.
type ClosureJournal interface {
	// RecordClosure saves a closure; recording the same closure twice is a no-op.
	RecordClosure(ctx context.Context, ev *domain.ClosureEvent) error
	// MarkNotified stamps the notification time on a recorded closure.
	MarkNotified(ctx context.Context, symbol string, openedAt, notifiedAt time.Time) error
	// Prune deletes notified closures that were closed before olderThan.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	// Recent returns the latest closures, newest first. limit <= 0 returns all.
	Recent(ctx context.Context, limit int) ([]*domain.ClosureEvent, error)
	// FindBySymbol returns the latest closures of one symbol, newest first.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ClosureEvent, error)
}
