package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoPositionWatch/internal/domain"
	"cryptoPositionWatch/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Compile-time check
var _ ports.ClosureJournal = (*Repository)(nil)

// Repository implements the ports.ClosureJournal interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/closures.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("%w: failed to create data directory '%s': %w", ports.ErrPersistence, filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %w", ports.ErrPersistence, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrPersistence, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to initialize database schema: %w", ports.ErrPersistence, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Closure journal ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// Times are stored as unix nanoseconds so lifecycle identity survives a round trip.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS position_closures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		quantity REAL NOT NULL,
		take_profit_order_id TEXT NOT NULL DEFAULT '',
		stop_loss_order_id TEXT NOT NULL DEFAULT '',
		close_reason TEXT NOT NULL,
		closing_order_id TEXT NOT NULL DEFAULT '',
		opened_at_ns INTEGER NOT NULL,
		closed_at_ns INTEGER NOT NULL,
		notified_at_ns INTEGER NULL,
		UNIQUE (symbol, opened_at_ns)
	);
	CREATE INDEX IF NOT EXISTS idx_position_closures_closed_at ON position_closures (closed_at_ns);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// RecordClosure saves a closure event. A second record of the same lifecycle
// (symbol + opened_at) is ignored.
func (r *Repository) RecordClosure(ctx context.Context, ev *domain.ClosureEvent) error {
	const query = `
	INSERT INTO position_closures (symbol, side, entry_price, quantity, take_profit_order_id, stop_loss_order_id,
	                               close_reason, closing_order_id, opened_at_ns, closed_at_ns, notified_at_ns)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, opened_at_ns) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		ev.Symbol, string(ev.Side), ev.EntryPrice, ev.Quantity, ev.TakeProfitOrderID, ev.StopLossOrderID,
		string(ev.CloseReason), ev.ClosingOrderID, ev.OpenedAt.UnixNano(), ev.ClosedAt.UnixNano(), toNullNanos(ev.NotifiedAt))
	if err != nil {
		return fmt.Errorf("%w: failed to insert closure for symbol %s: %w", ports.ErrPersistence, ev.Symbol, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected for closure %s: %w", ports.ErrPersistence, ev.Symbol, err)
	}
	if rowsAffected == 0 {
		r.logger.Debug(ctx, "Closure already journaled", map[string]interface{}{"symbol": ev.Symbol})
		return nil
	}
	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}
	r.logger.Debug(ctx, "Closure journaled", map[string]interface{}{"closureID": ev.ID, "symbol": ev.Symbol, "reason": ev.CloseReason})
	return nil
}

// MarkNotified stamps the notification time once. Later calls keep the first stamp.
func (r *Repository) MarkNotified(ctx context.Context, symbol string, openedAt, notifiedAt time.Time) error {
	const query = `
	UPDATE position_closures
	SET notified_at_ns = ?
	WHERE symbol = ? AND opened_at_ns = ? AND notified_at_ns IS NULL`

	result, err := r.db.ExecContext(ctx, query, notifiedAt.UnixNano(), symbol, openedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: failed to mark closure notified for symbol %s: %w", ports.ErrPersistence, symbol, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected for symbol %s: %w", ports.ErrPersistence, symbol, err)
	}
	if rowsAffected == 0 {
		r.logger.Debug(ctx, "No pending closure to mark notified", map[string]interface{}{"symbol": symbol})
	}
	return nil
}

// Prune deletes notified closures that were closed before olderThan.
func (r *Repository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `DELETE FROM position_closures WHERE notified_at_ns IS NOT NULL AND closed_at_ns < ?`

	result, err := r.db.ExecContext(ctx, query, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prune closures: %w", ports.ErrPersistence, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get rows affected for prune: %w", ports.ErrPersistence, err)
	}
	if n > 0 {
		r.logger.Info(ctx, "Pruned old closures", map[string]interface{}{"deleted": n, "olderThan": olderThan.UTC().Format(time.RFC3339)})
	}
	return n, nil
}

const selectClosures = `
	SELECT id, symbol, side, entry_price, quantity, take_profit_order_id, stop_loss_order_id,
	       close_reason, closing_order_id, opened_at_ns, closed_at_ns, notified_at_ns
	FROM position_closures`

// Recent returns the latest closures, newest first. limit <= 0 returns all.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*domain.ClosureEvent, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx, selectClosures+` ORDER BY closed_at_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query closures: %w", ports.ErrPersistence, err)
	}
	return collectClosures(rows)
}

// FindBySymbol returns the latest closures of one symbol, newest first.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ClosureEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, selectClosures+` WHERE symbol = ? ORDER BY closed_at_ns DESC, id DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query closures for symbol %s: %w", ports.ErrPersistence, symbol, err)
	}
	return collectClosures(rows)
}

func collectClosures(rows *sql.Rows) ([]*domain.ClosureEvent, error) {
	defer rows.Close()

	events := make([]*domain.ClosureEvent, 0)
	for rows.Next() {
		ev, err := scanClosure(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan closure: %w", ports.ErrPersistence, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating closure rows: %w", ports.ErrPersistence, err)
	}
	return events, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanClosure scans a row into a domain.ClosureEvent struct.
func scanClosure(s scanner) (*domain.ClosureEvent, error) {
	ev := &domain.ClosureEvent{}
	var side, reason string
	var openedAt, closedAt int64
	var notifiedAt sql.NullInt64
	err := s.Scan(
		&ev.ID, &ev.Symbol, &side, &ev.EntryPrice, &ev.Quantity, &ev.TakeProfitOrderID, &ev.StopLossOrderID,
		&reason, &ev.ClosingOrderID, &openedAt, &closedAt, &notifiedAt)
	if err != nil {
		return nil, err
	}
	ev.Side = domain.Side(side)
	ev.CloseReason = domain.CloseReason(reason)
	ev.OpenedAt = time.Unix(0, openedAt).UTC()
	ev.ClosedAt = time.Unix(0, closedAt).UTC()
	if notifiedAt.Valid {
		t := time.Unix(0, notifiedAt.Int64).UTC()
		ev.NotifiedAt = &t
	}
	return ev, nil
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
