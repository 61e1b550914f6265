// Package filestore persists the position mapping as a single JSON document.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"cryptoPositionWatch/internal/domain"
	"cryptoPositionWatch/internal/ports"
)

// Compile-time check
var _ ports.PositionStore = (*Store)(nil)

var codec = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	DisallowUnknownFields:  true,
	ValidateJsonRawMessage: true,
}.Froze()

const tempPattern = ".positions-*.tmp"

// Config holds configuration for the file store.
type Config struct {
	Path   string
	Logger ports.Logger
}

// Store implements ports.PositionStore on top of one JSON file.
// All file access is serialized by mu; Mutate is the only writer.
type Store struct {
	path   string
	logger ports.Logger

	mu       sync.Mutex
	lastGood domain.Positions

	// Swapped in tests to simulate a crash between write and rename.
	rename func(oldpath, newpath string) error
	now    func() time.Time
}

// Open creates the data directory if needed and loads the current file.
// A missing file yields an empty store. A corrupt file is quarantined next
// to the original and the store starts empty.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: positions file path is required", ports.ErrValidation)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrValidation)
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create directory %s: %w", ports.ErrPersistence, dir, err)
	}

	s := &Store{
		path:     cfg.Path,
		logger:   cfg.Logger,
		lastGood: domain.Positions{},
		rename:   os.Rename,
		now:      time.Now,
	}
	s.removeStaleTemps(ctx, dir)

	s.mu.Lock()
	defer s.mu.Unlock()
	positions, err := s.readFile()
	if err != nil {
		if qErr := s.quarantine(ctx, err); qErr != nil {
			return nil, qErr
		}
		return s, nil
	}
	s.lastGood = positions
	cfg.Logger.Info(ctx, "Position store opened", map[string]interface{}{
		"path":      cfg.Path,
		"positions": len(positions),
	})
	return s, nil
}

// Path returns the canonical file path.
func (s *Store) Path() string { return s.path }

// Load re-reads the file and returns a private copy of the mapping. If the
// file has become unreadable the last good snapshot is returned instead.
func (s *Store) Load(ctx context.Context) (domain.Positions, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.readFile()
	if err != nil {
		if rErr := s.restore(ctx, err); rErr != nil {
			return nil, rErr
		}
		return s.lastGood.Clone(), nil
	}
	s.lastGood = positions
	return positions.Clone(), nil
}

// Mutate applies fn to a copy of the current mapping, validates the result
// and replaces the file atomically. On any failure the previous version
// stays in place both on disk and in memory.
func (s *Store) Mutate(ctx context.Context, fn ports.MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readFile()
	if err != nil {
		if rErr := s.restore(ctx, err); rErr != nil {
			return rErr
		}
		current = s.lastGood
	}

	next, err := fn(current.Clone())
	if err != nil {
		return err
	}
	if next == nil {
		next = domain.Positions{}
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrValidation, err)
	}
	if err := s.writeFile(next); err != nil {
		s.logger.Error(ctx, err, "Failed to persist positions", map[string]interface{}{"path": s.path})
		return err
	}
	s.lastGood = next.Clone()
	return nil
}

// Upsert inserts or replaces the record for rec.Symbol. Replacing a record of
// the same lifecycle must not move it backwards.
func (s *Store) Upsert(ctx context.Context, rec domain.PositionRecord) error {
	return s.Mutate(ctx, func(current domain.Positions) (domain.Positions, error) {
		if prev, ok := current[rec.Symbol]; ok && prev.SameLifecycle(&rec) {
			if prev.Status == domain.StatusClosed && rec.Status == domain.StatusOpen {
				return nil, fmt.Errorf("%w: %s cannot reopen", ports.ErrInvalidTransition, rec.Symbol)
			}
			if prev.NotificationSent && !rec.NotificationSent {
				return nil, fmt.Errorf("%w: %s cannot clear notification_sent", ports.ErrInvalidTransition, rec.Symbol)
			}
		}
		current[rec.Symbol] = rec.Clone()
		return current, nil
	})
}

// Remove deletes the record for symbol. Missing symbols are not an error.
func (s *Store) Remove(ctx context.Context, symbol string) error {
	return s.Mutate(ctx, func(current domain.Positions) (domain.Positions, error) {
		delete(current, symbol)
		return current, nil
	})
}

// readFile must be called with s.mu held.
func (s *Store) readFile() (domain.Positions, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Positions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return domain.Positions{}, nil
	}

	positions := domain.Positions{}
	if err := codec.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if err := positions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", s.path, err)
	}
	return positions, nil
}

// writeFile must be called with s.mu held.
func (s *Store) writeFile(positions domain.Positions) error {
	data, err := codec.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode positions: %w", ports.ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ports.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp file: %w", ports.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp file: %w", ports.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp file: %w", ports.ErrPersistence, err)
	}
	if err := s.rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: replace %s: %w", ports.ErrPersistence, s.path, err)
	}
	return nil
}

// restore quarantines an unreadable file and writes the last good snapshot
// back in its place. Must be called with s.mu held.
func (s *Store) restore(ctx context.Context, cause error) error {
	if err := s.quarantine(ctx, cause); err != nil {
		return err
	}
	if len(s.lastGood) == 0 {
		return nil
	}
	return s.writeFile(s.lastGood)
}

// quarantine moves an unreadable file aside so the next write starts clean.
// Must be called with s.mu held.
func (s *Store) quarantine(ctx context.Context, cause error) error {
	dest := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: quarantine %s: %w", ports.ErrPersistence, s.path, err)
	}
	s.logger.Warn(ctx, "Position file unreadable, moved aside", map[string]interface{}{
		"path":        s.path,
		"quarantined": dest,
		"error":       cause.Error(),
		"kept":        len(s.lastGood),
	})
	return nil
}

func (s *Store) removeStaleTemps(ctx context.Context, dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			s.logger.Warn(ctx, "Failed to remove stale temp file", map[string]interface{}{"file": m, "error": err.Error()})
			continue
		}
		s.logger.Debug(ctx, "Removed stale temp file", map[string]interface{}{"file": m})
	}
}
