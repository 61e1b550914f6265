package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cryptoPositionWatch/internal/domain"
	"cryptoPositionWatch/internal/metrics"
	"cryptoPositionWatch/internal/ports"
)

// ReconcilerConfig holds the tunables of a reconciliation pass.
type ReconcilerConfig struct {
	WorkerPoolSize            int
	GatewayTimeout            time.Duration
	NotifyTimeout             time.Duration
	TreatMissingOrderAsFilled bool
}

// OrderCacheInvalidator drops cached order statuses once a position is gone.
type OrderCacheInvalidator interface {
	Invalidate(symbol, orderID string)
}

// Reconciler drives every stored position one phase forward per pass:
// OPEN -> CLOSED_PENDING_NOTIFY -> CLOSED_NOTIFIED -> removed.
type Reconciler struct {
	cfg      ReconcilerConfig
	logger   ports.Logger
	store    ports.PositionStore
	gateway  ports.OrderGateway
	notifier ports.Notifier
	journal  ports.ClosureJournal  // optional
	orders   OrderCacheInvalidator // optional
	now      func() time.Time
}

// ReconcilerDeps groups the collaborators of a Reconciler.
type ReconcilerDeps struct {
	Logger   ports.Logger
	Store    ports.PositionStore
	Gateway  ports.OrderGateway
	Notifier ports.Notifier
	Journal  ports.ClosureJournal
	Orders   OrderCacheInvalidator
}

// NewReconciler validates dependencies and configuration.
func NewReconciler(cfg ReconcilerConfig, deps ReconcilerDeps) (*Reconciler, error) {
	if deps.Logger == nil || deps.Store == nil || deps.Gateway == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for Reconciler")
	}
	if cfg.WorkerPoolSize <= 0 {
		return nil, fmt.Errorf("%w: worker pool size must be positive", ports.ErrValidation)
	}
	if cfg.GatewayTimeout <= 0 || cfg.NotifyTimeout <= 0 {
		return nil, fmt.Errorf("%w: gateway and notify timeouts must be positive", ports.ErrValidation)
	}
	return &Reconciler{
		cfg:      cfg,
		logger:   deps.Logger,
		store:    deps.Store,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		journal:  deps.Journal,
		orders:   deps.Orders,
		now:      time.Now,
	}, nil
}

// SymbolFailure describes why one symbol did not advance in a pass.
type SymbolFailure struct {
	Symbol  string       `json:"symbol"`
	Phase   domain.Phase `json:"phase"`
	Kind    string       `json:"kind"`
	Message string       `json:"error"`
	Err     error        `json:"-"`
}

// PassReport summarises one reconciliation pass.
type PassReport struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
	Checked   int             `json:"checked"`
	Closed    int             `json:"closed"`
	Notified  int             `json:"notified"`
	Removed   int             `json:"removed"`
	Failures  []SymbolFailure `json:"failures"`
}

type outcomeKind int

const (
	outcomeNone outcomeKind = iota
	outcomeClose
	outcomeNotified
	outcomeRemove
)

// outcome is what a worker concluded about the record it observed.
type outcome struct {
	observed   domain.PositionRecord
	kind       outcomeKind
	reason     domain.CloseReason
	orderID    string
	exitPrice  float64
	notifiedAt time.Time
	failure    *SymbolFailure
}

// closureDecision is the result of decideClosure.
type closureDecision struct {
	close     bool
	reason    domain.CloseReason
	orderID   string
	exitPrice float64
	conflict  bool // both protective orders filled
}

// legState is the observed state of one protective order. present is false
// when the position has no order on that leg.
type legState struct {
	orderID  string
	present  bool
	state    domain.OrderState
	avgPrice float64
}

// decideClosure applies the closure rules: a fill beats a cancel, the take
// profit beats the stop loss when both filled, and a cancel without any fill
// closes the position as CANCELLED.
func decideClosure(tp, sl legState) closureDecision {
	tpFilled := tp.present && tp.state == domain.OrderStateFilled
	slFilled := sl.present && sl.state == domain.OrderStateFilled

	switch {
	case tpFilled && slFilled:
		return closureDecision{close: true, reason: domain.CloseReasonTakeProfit, orderID: tp.orderID, exitPrice: tp.avgPrice, conflict: true}
	case tpFilled:
		return closureDecision{close: true, reason: domain.CloseReasonTakeProfit, orderID: tp.orderID, exitPrice: tp.avgPrice}
	case slFilled:
		return closureDecision{close: true, reason: domain.CloseReasonStopLoss, orderID: sl.orderID, exitPrice: sl.avgPrice}
	case tp.present && tp.state == domain.OrderStateCancelled:
		return closureDecision{close: true, reason: domain.CloseReasonCancelled, orderID: tp.orderID}
	case sl.present && sl.state == domain.OrderStateCancelled:
		return closureDecision{close: true, reason: domain.CloseReasonCancelled, orderID: sl.orderID}
	default:
		return closureDecision{}
	}
}

// RunOnePass performs a single reconciliation pass. Per-symbol failures are
// reported in the PassReport; only a failure to load or persist the
// snapshot is returned as an error.
func (r *Reconciler) RunOnePass(ctx context.Context) (*PassReport, error) {
	report := &PassReport{ID: uuid.NewString(), StartedAt: r.now().UTC(), Failures: []SymbolFailure{}}
	ctx = ports.WithPassID(ctx, report.ID)
	started := time.Now()

	err := r.runPass(ctx, report)
	report.Duration = time.Since(started)

	metrics.PassDuration.Observe(report.Duration.Seconds())
	if err != nil {
		metrics.PassesTotal.WithLabelValues(metrics.ResultError).Inc()
		r.logger.Error(ctx, err, "Reconciliation pass failed", map[string]interface{}{"duration": report.Duration.String()})
		return report, err
	}
	metrics.PassesTotal.WithLabelValues(metrics.ResultOK).Inc()

	fields := map[string]interface{}{
		"checked":  report.Checked,
		"closed":   report.Closed,
		"notified": report.Notified,
		"removed":  report.Removed,
		"failures": len(report.Failures),
		"duration": report.Duration.String(),
	}
	if report.Checked == 0 && report.Closed == 0 && report.Notified == 0 && report.Removed == 0 && len(report.Failures) == 0 {
		r.logger.Debug(ctx, "Reconciliation pass completed", fields)
	} else {
		r.logger.Info(ctx, "Reconciliation pass completed", fields)
	}
	return report, nil
}

func (r *Reconciler) runPass(ctx context.Context, report *PassReport) error {
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	var open, pending, done []domain.PositionRecord
	for _, sym := range snapshot.Symbols() {
		rec := snapshot[sym]
		switch rec.Phase() {
		case domain.PhaseOpen:
			open = append(open, rec)
		case domain.PhaseClosedPendingNotify:
			pending = append(pending, rec)
		case domain.PhaseClosedNotified:
			done = append(done, rec)
		}
	}
	report.Checked = len(open)

	outcomes := make([]outcome, 0, len(snapshot))
	workerResults := make([]outcome, len(open)+len(pending))

	var g errgroup.Group
	g.SetLimit(r.cfg.WorkerPoolSize)
	for i, rec := range open {
		g.Go(func() error {
			workerResults[i] = r.checkOpen(ctx, rec)
			return nil
		})
	}
	for i, rec := range pending {
		g.Go(func() error {
			workerResults[len(open)+i] = r.notify(ctx, rec)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	outcomes = append(outcomes, workerResults...)
	for _, rec := range done {
		outcomes = append(outcomes, outcome{observed: rec, kind: outcomeRemove})
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].observed.Symbol < outcomes[j].observed.Symbol
	})

	for _, o := range outcomes {
		if o.failure != nil {
			report.Failures = append(report.Failures, *o.failure)
			metrics.SymbolFailures.WithLabelValues(o.failure.Kind).Inc()
		}
	}

	applied, err := r.fold(ctx, outcomes)
	if err != nil {
		return fmt.Errorf("persist pass results: %w", err)
	}

	for _, a := range applied {
		switch a.kind {
		case outcomeClose:
			report.Closed++
			metrics.PositionsClosed.WithLabelValues(string(a.reason)).Inc()
		case outcomeNotified:
			report.Notified++
		case outcomeRemove:
			report.Removed++
		}
	}
	r.afterFold(ctx, applied)
	return nil
}

// appliedChange is an outcome that the fold accepted, with the record as written.
type appliedChange struct {
	kind       outcomeKind
	reason     domain.CloseReason
	record     domain.PositionRecord
	notifiedAt time.Time
}

// fold writes every outcome in one store mutation. An outcome is applied
// only if the stored record is still the lifecycle the worker observed and
// still in the phase it was observed in.
func (r *Reconciler) fold(ctx context.Context, outcomes []outcome) ([]appliedChange, error) {
	var applied []appliedChange
	var phases map[domain.Phase]int

	err := r.store.Mutate(ctx, func(current domain.Positions) (domain.Positions, error) {
		applied = applied[:0]
		for _, o := range outcomes {
			if o.kind == outcomeNone {
				continue
			}
			sym := o.observed.Symbol
			cur, ok := current[sym]
			if !ok || !cur.SameLifecycle(&o.observed) || cur.Phase() != o.observed.Phase() {
				r.logger.Debug(ctx, "Record changed during pass, outcome dropped", map[string]interface{}{"symbol": sym})
				continue
			}

			switch o.kind {
			case outcomeClose:
				if err := cur.Close(o.reason, o.orderID, r.now()); err != nil {
					r.logger.Warn(ctx, "Close rejected", map[string]interface{}{"symbol": sym, "error": err.Error()})
					continue
				}
				cur.ExitPrice = o.exitPrice
				current[sym] = cur
				applied = append(applied, appliedChange{kind: outcomeClose, reason: o.reason, record: cur.Clone()})
			case outcomeNotified:
				if err := cur.MarkNotified(); err != nil {
					r.logger.Warn(ctx, "Notification mark rejected", map[string]interface{}{"symbol": sym, "error": err.Error()})
					continue
				}
				current[sym] = cur
				applied = append(applied, appliedChange{kind: outcomeNotified, record: cur.Clone(), notifiedAt: o.notifiedAt})
			case outcomeRemove:
				if !cur.EligibleForRemoval() {
					continue
				}
				delete(current, sym)
				applied = append(applied, appliedChange{kind: outcomeRemove, record: cur.Clone()})
			}
		}

		phases = map[domain.Phase]int{}
		for _, rec := range current {
			phases[rec.Phase()]++
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range []domain.Phase{domain.PhaseOpen, domain.PhaseClosedPendingNotify, domain.PhaseClosedNotified} {
		metrics.TrackedPositions.WithLabelValues(string(p)).Set(float64(phases[p]))
	}
	return applied, nil
}

// afterFold updates the journal and the order cache. Failures here are
// logged and never undo the persisted state.
func (r *Reconciler) afterFold(ctx context.Context, applied []appliedChange) {
	for _, a := range applied {
		rec := a.record
		fields := map[string]interface{}{"symbol": rec.Symbol}

		switch a.kind {
		case outcomeClose:
			r.logger.Info(ctx, "Position closed", map[string]interface{}{
				"symbol":         rec.Symbol,
				"reason":         rec.CloseReason,
				"closingOrderID": rec.ClosingOrderID,
			})
			if r.journal != nil {
				if err := r.journal.RecordClosure(ctx, domain.NewClosureEvent(rec)); err != nil {
					r.logger.Error(ctx, err, "Failed to journal closure", fields)
				}
			}
		case outcomeNotified:
			if r.journal != nil {
				ev := domain.NewClosureEvent(rec)
				notifiedAt := a.notifiedAt
				ev.NotifiedAt = &notifiedAt
				if err := r.journal.RecordClosure(ctx, ev); err != nil {
					r.logger.Error(ctx, err, "Failed to journal closure", fields)
					continue
				}
				if err := r.journal.MarkNotified(ctx, rec.Symbol, rec.OpenedAt, a.notifiedAt); err != nil {
					r.logger.Error(ctx, err, "Failed to journal notification", fields)
				}
			}
		case outcomeRemove:
			r.logger.Info(ctx, "Position removed", fields)
			if r.orders != nil {
				r.orders.Invalidate(rec.Symbol, rec.TakeProfitOrderID)
				r.orders.Invalidate(rec.Symbol, rec.StopLossOrderID)
			}
		}
	}
}

// checkOpen queries both protective orders of an open position.
func (r *Reconciler) checkOpen(ctx context.Context, rec domain.PositionRecord) outcome {
	out := outcome{observed: rec}

	tp, err := r.queryLeg(ctx, rec.Symbol, rec.TakeProfitOrderID)
	if err != nil {
		out.failure = r.failure(ctx, rec, err)
		return out
	}
	sl, err := r.queryLeg(ctx, rec.Symbol, rec.StopLossOrderID)
	if err != nil {
		out.failure = r.failure(ctx, rec, err)
		return out
	}

	d := decideClosure(tp, sl)
	if d.conflict {
		r.logger.Warn(ctx, "Consistency warning: both take profit and stop loss filled", map[string]interface{}{
			"symbol":            rec.Symbol,
			"takeProfitOrderID": rec.TakeProfitOrderID,
			"stopLossOrderID":   rec.StopLossOrderID,
		})
	}
	if d.close {
		out.kind = outcomeClose
		out.reason = d.reason
		out.orderID = d.orderID
		out.exitPrice = d.exitPrice
	}
	return out
}

func (r *Reconciler) queryLeg(ctx context.Context, symbol, orderID string) (legState, error) {
	if orderID == "" {
		return legState{}, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.GatewayTimeout)
	defer cancel()

	st, err := r.gateway.GetOrderStatus(callCtx, symbol, orderID)
	switch {
	case err == nil && st == nil:
		return legState{}, fmt.Errorf("order %s: %w: empty status", orderID, ports.ErrGatewayUnavailable)
	case err == nil:
		return legState{orderID: orderID, present: true, state: st.State, avgPrice: st.AvgPrice}, nil
	case errors.Is(err, ports.ErrOrderNotFound) && r.cfg.TreatMissingOrderAsFilled:
		r.logger.Warn(ctx, "Order not found on exchange, treating as filled", map[string]interface{}{
			"symbol":  symbol,
			"orderID": orderID,
		})
		return legState{orderID: orderID, present: true, state: domain.OrderStateFilled}, nil
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ports.ErrGateway):
		return legState{}, fmt.Errorf("order %s: %w: %w", orderID, ports.ErrGatewayTimeout, err)
	default:
		return legState{}, fmt.Errorf("order %s: %w", orderID, err)
	}
}

// notify sends the closure message of a closed, not yet notified position.
func (r *Reconciler) notify(ctx context.Context, rec domain.PositionRecord) outcome {
	out := outcome{observed: rec}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.NotifyTimeout)
	defer cancel()

	if err := r.notifier.Send(callCtx, closureMessage(rec)); err != nil {
		metrics.Notifications.WithLabelValues(metrics.ResultError).Inc()
		if !errors.Is(err, ports.ErrNotify) {
			err = fmt.Errorf("%w: %w", ports.ErrNotify, err)
		}
		out.failure = r.failure(ctx, rec, err)
		return out
	}
	metrics.Notifications.WithLabelValues(metrics.ResultOK).Inc()
	out.kind = outcomeNotified
	out.notifiedAt = r.now().UTC()
	return out
}

func (r *Reconciler) failure(ctx context.Context, rec domain.PositionRecord, err error) *SymbolFailure {
	kind := ports.ErrorKind(err)
	r.logger.Warn(ctx, "Symbol not advanced this pass", map[string]interface{}{
		"symbol":    rec.Symbol,
		"phase":     rec.Phase(),
		"errorKind": kind,
		"error":     err.Error(),
	})
	return &SymbolFailure{
		Symbol:  rec.Symbol,
		Phase:   rec.Phase(),
		Kind:    kind,
		Message: err.Error(),
		Err:     err,
	}
}
