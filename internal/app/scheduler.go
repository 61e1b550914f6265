package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cryptoPositionWatch/internal/metrics"
	"cryptoPositionWatch/internal/ports"
)

// PassRunner runs one reconciliation pass.
type PassRunner interface {
	RunOnePass(ctx context.Context) (*PassReport, error)
}

// Sweeper is a cache that can drop its expired entries.
type Sweeper interface {
	Name() string
	Sweep() int
}

// SchedulerConfig holds the timing of the scheduler.
type SchedulerConfig struct {
	Interval            time.Duration
	MaintenanceInterval time.Duration // journal pruning; zero disables
	JournalRetention    time.Duration
}

// Scheduler runs passes at a fixed interval and never lets two overlap.
type Scheduler struct {
	cfg      SchedulerConfig
	logger   ports.Logger
	runner   PassRunner
	journal  ports.ClosureJournal // optional
	sweepers []Sweeper

	inFlight atomic.Bool
	passWG   sync.WaitGroup

	mu       sync.Mutex // Protects the lifecycle fields below
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	lastMu  sync.RWMutex
	last    *PassReport
	lastErr error
	now     func() time.Time
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig, logger ports.Logger, runner PassRunner, journal ports.ClosureJournal, sweepers ...Sweeper) (*Scheduler, error) {
	if logger == nil || runner == nil {
		return nil, fmt.Errorf("missing required dependencies for Scheduler")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: reconcile interval must be positive", ports.ErrValidation)
	}
	if journal != nil && cfg.MaintenanceInterval > 0 && cfg.JournalRetention <= 0 {
		return nil, fmt.Errorf("%w: journal retention must be positive", ports.ErrValidation)
	}
	return &Scheduler{
		cfg:      cfg,
		logger:   logger,
		runner:   runner,
		journal:  journal,
		sweepers: sweepers,
		now:      time.Now,
	}, nil
}

// Start runs a pass immediately and then one every Interval until Stop or
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	s.logger.Info(ctx, "Scheduler started", map[string]interface{}{
		"interval":            s.cfg.Interval.String(),
		"maintenanceInterval": s.cfg.MaintenanceInterval.String(),
	})
	go s.loop(loopCtx, s.loopDone)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var maintenance <-chan time.Time
	if s.journal != nil && s.cfg.MaintenanceInterval > 0 {
		t := time.NewTicker(s.cfg.MaintenanceInterval)
		defer t.Stop()
		maintenance = t.C
		s.pruneJournal(ctx)
	}

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx)
		case <-maintenance:
			if ctx.Err() != nil {
				return
			}
			s.pruneJournal(ctx)
		}
	}
}

// tick sweeps the caches and starts a pass unless one is still running or
// the scheduler is stopping.
func (s *Scheduler) tick(ctx context.Context) {
	for _, sw := range s.sweepers {
		if ctx.Err() != nil {
			return
		}
		if n := sw.Sweep(); n > 0 {
			s.logger.Debug(ctx, "Cache swept", map[string]interface{}{"cache": sw.Name(), "removed": n})
		}
	}
	// A sweep may have blocked across a Stop.
	if ctx.Err() != nil {
		return
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		metrics.PassesSkipped.Inc()
		s.logger.Warn(ctx, "Previous pass still running, skipping tick")
		return
	}
	s.passWG.Add(1)
	// The pass outlives Stop: its calls finish or hit their own timeouts.
	passCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.passWG.Done()
		defer s.inFlight.Store(false)
		s.run(passCtx)
	}()
}

func (s *Scheduler) run(ctx context.Context) (*PassReport, error) {
	report, err := s.runner.RunOnePass(ctx)
	s.lastMu.Lock()
	s.last, s.lastErr = report, err
	s.lastMu.Unlock()
	return report, err
}

// RunNow runs a pass synchronously. It fails with ErrPassInProgress rather
// than overlap with a running pass.
func (s *Scheduler) RunNow(ctx context.Context) (*PassReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ports.ErrPassInProgress
	}
	s.passWG.Add(1)
	defer s.passWG.Done()
	defer s.inFlight.Store(false)
	return s.run(ctx)
}

// Stop prevents new passes and waits for the in-flight one, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	loopDone := s.loopDone
	s.mu.Unlock()

	<-loopDone

	passesDone := make(chan struct{})
	go func() {
		s.passWG.Wait()
		close(passesDone)
	}()

	select {
	case <-passesDone:
		s.logger.Info(ctx, "Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn(ctx, "Scheduler stop timed out waiting for the running pass")
		return fmt.Errorf("%w: waiting for running pass: %w", ports.ErrContextCanceled, ctx.Err())
	}
}

// InFlight reports whether a pass is running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// LastPass returns the most recent pass report and its error, if any.
func (s *Scheduler) LastPass() (*PassReport, error) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.lastErr
}

func (s *Scheduler) pruneJournal(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.JournalRetention)
	n, err := s.journal.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, err, "Journal pruning failed")
		return
	}
	if n > 0 {
		metrics.JournalPruned.Add(float64(n))
	}
}
