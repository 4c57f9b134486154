/*
scheduler.go - Nightly reconciliation sweep

PURPOSE:
  Reconciles every rep for its current quota period on a cron schedule and
  stores one ReconciliationRun per rep. Mismatches are stored and logged;
  they do not stop the sweep.

SCHEDULE:
  Standard 5-field cron spec ("0 2 * * *" = 02:00 daily), an optional
  leading seconds field, or a descriptor such as "@hourly".

SEE ALSO:
  - commission/reconcile.go: ReconcileAll
  - store/sqlite/sqlite.go: SaveReconciliationRun
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/metrics"
	"github.com/warp/commission-engine/store/sqlite"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ErrSweepRunning is returned by RunNow while another sweep is in progress.
var ErrSweepRunning = errors.New("reconciliation sweep already running")

// SweepResult counts rep outcomes of one sweep.
type SweepResult struct {
	Balanced   int
	Mismatched int
	Failed     int
	Duration   time.Duration
}

// ReconciliationScheduler runs reconciliation sweeps.
type ReconciliationScheduler struct {
	Reconciler *commission.Reconciler
	Store      *sqlite.Store
	Metrics    *metrics.Metrics // optional
	Logger     *zap.Logger
	Now        func() time.Time

	running sync.Mutex
	cron    *cron.Cron
}

func NewReconciliationScheduler(rec *commission.Reconciler, store *sqlite.Store, logger *zap.Logger) *ReconciliationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationScheduler{
		Reconciler: rec,
		Store:      store,
		Logger:     logger,
		Now:        time.Now,
	}
}

// Start schedules the sweep. ctx bounds every scheduled run; cancel it and
// call Stop to shut down.
func (s *ReconciliationScheduler) Start(ctx context.Context, spec string) error {
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	c := cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC))
	_, err := c.AddFunc(spec, func() {
		if _, err := s.RunNow(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
			s.Logger.Error("scheduled reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.Logger.Info("reconciliation scheduler started", zap.String("schedule", spec))
	return nil
}

// Stop stops scheduling and waits for a running sweep, or for ctx.
func (s *ReconciliationScheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.Logger.Warn("reconciliation sweep still running at shutdown")
	}
	s.cron = nil
}

// RunNow sweeps every rep and stores the results. Only one sweep runs at a
// time.
func (s *ReconciliationScheduler) RunNow(ctx context.Context) (SweepResult, error) {
	if !s.running.TryLock() {
		return SweepResult{}, ErrSweepRunning
	}
	defer s.running.Unlock()

	start := time.Now()
	asOf := s.Now()
	recs, errs, err := s.Reconciler.ReconcileAll(ctx, asOf)
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for _, rec := range recs {
		run := runFromReconciliation(rec, asOf)
		if rec.Balanced() {
			res.Balanced++
		} else {
			res.Mismatched++
		}
		if err := s.Store.SaveReconciliationRun(ctx, run); err != nil {
			return res, fmt.Errorf("save reconciliation run for %s: %w", run.RepID, err)
		}
	}
	for repID, repErr := range errs {
		res.Failed++
		s.Logger.Warn("rep reconciliation failed", zap.String("rep_id", string(repID)), zap.Error(repErr))
		run, err := s.failedRun(ctx, repID, repErr, asOf)
		if err != nil {
			return res, err
		}
		if err := s.Store.SaveReconciliationRun(ctx, run); err != nil {
			return res, fmt.Errorf("save reconciliation run for %s: %w", repID, err)
		}
	}

	res.Duration = time.Since(start)
	if s.Metrics != nil {
		s.Metrics.RecordSweep(res.Duration, res.Balanced, res.Mismatched, res.Failed)
	}
	s.Logger.Info("reconciliation sweep complete",
		zap.Int("balanced", res.Balanced),
		zap.Int("mismatched", res.Mismatched),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func runFromReconciliation(rec *commission.Reconciliation, asOf time.Time) sqlite.ReconciliationRun {
	sum := rec.Summary
	run := sqlite.ReconciliationRun{
		ID:          uuid.NewString(),
		RepID:       string(sum.RepID),
		PeriodStart: sum.Period.Start,
		PeriodEnd:   sum.Period.End,
		Status:      sqlite.RunBalanced,
		Expected:    sum.Earned,
		Actual:      sum.Paid.Add(sum.Pending),
		EntryCount:  sum.EntryCount,
		RunAt:       asOf,
	}
	run.Delta = run.Expected.Sub(run.Actual)
	if !rec.Balanced() {
		run.Status = sqlite.RunMismatch
	}
	return run
}

// failedRun records a rep that could not be reconciled. The period is the
// rep's current quota period when the rep can still be read, else empty.
func (s *ReconciliationScheduler) failedRun(ctx context.Context, repID commission.RepID, cause error, asOf time.Time) (sqlite.ReconciliationRun, error) {
	run := sqlite.ReconciliationRun{
		ID:     uuid.NewString(),
		RepID:  string(repID),
		Status: sqlite.RunFailed,
		Error:  cause.Error(),
		RunAt:  asOf,
	}
	rep, err := s.Store.Rep(ctx, repID)
	switch {
	case err == nil:
		p := rep.CurrentPeriod(asOf)
		run.PeriodStart, run.PeriodEnd = p.Start, p.End
	case commission.IsNotFound(err):
	default:
		return run, err
	}
	return run, nil
}
