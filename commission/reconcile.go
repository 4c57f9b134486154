/*
reconcile.go - Ledger reconciliation

PURPOSE:
  Derives a rep's totals for a period and checks the ledger invariant:

    sum(Earned) + sum(Adjustment) == sum(Paid) + open(Pending)

  within Tolerance (default 0.01). A disagreement is returned as a
  Mismatch value for human review. The reconciler never appends a
  corrective entry itself.

PERIOD ATTRIBUTION:
  Entries count toward the period containing their Timestamp, except
  closures: a Paid entry or void Adjustment referencing a Pending entry
  counts toward the Pending entry's period. A March commission paid on
  April 15 therefore settles March, and April does not show an
  unexplained payout.

SEE ALSO:
  - ledger.go: Closure rules and open balances
  - api/scheduler.go: Periodic sweep over all reps
*/
package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultTolerance is the allowed absolute difference for a balanced ledger.
var DefaultTolerance = decimal.New(1, -CentPlaces)

// Summary is the derived state of a rep's commission for a period.
type Summary struct {
	RepID  RepID
	Period Period
	AsOf   time.Time

	Earned      decimal.Decimal // earned + adjustments
	Adjustments decimal.Decimal // adjustment portion of Earned
	Paid        decimal.Decimal
	Pending     decimal.Decimal // open pending balance

	Attainment decimal.Decimal // unrounded, zero if the rep is unknown to the reconciler
	Rate       decimal.Decimal
	Tier       Tier
	EntryCount int
}

// Mismatch describes a ledger that does not reconcile.
type Mismatch struct {
	RepID    RepID
	Period   Period
	Expected decimal.Decimal // earned + adjustments
	Actual   decimal.Decimal // paid + pending
	Delta    decimal.Decimal // Expected - Actual
}

// Reconciliation is the outcome of Reconcile. Mismatch is nil when balanced.
// AttainmentErr is set when the rep's plan or quota could not produce an
// attainment; the ledger totals and the balance check are still valid.
type Reconciliation struct {
	Summary       Summary
	Mismatch      *Mismatch
	AttainmentErr error
}

func (r *Reconciliation) Balanced() bool { return r.Mismatch == nil }

// Err returns a *MismatchError when unbalanced, nil otherwise.
func (r *Reconciliation) Err() error {
	if r.Mismatch == nil {
		return nil
	}
	return &MismatchError{Mismatch: *r.Mismatch}
}

// Totals derives a summary from a rep's full ledger for one period. txs
// must contain every entry of the rep so closures can be attributed.
func Totals(repID RepID, txs []Transaction, period Period) Summary {
	state := newLedgerState(txs)
	s := Summary{
		RepID:       repID,
		Period:      period,
		Earned:      decimal.Zero,
		Adjustments: decimal.Zero,
		Paid:        decimal.Zero,
		Pending:     decimal.Zero,
	}
	for _, tx := range txs {
		if !period.Contains(state.attributedAt(tx)) {
			continue
		}
		s.EntryCount++
		switch tx.Kind {
		case KindEarned:
			s.Earned = s.Earned.Add(tx.Amount)
		case KindAdjustment:
			s.Earned = s.Earned.Add(tx.Amount)
			s.Adjustments = s.Adjustments.Add(tx.Amount)
		case KindPaid:
			s.Paid = s.Paid.Add(tx.Amount)
		case KindPending:
			s.Pending = s.Pending.Add(state.open(tx.ID))
		}
	}
	return s
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Ledger    Ledger
	Reps      RepSource       // optional, enables attainment on summaries
	Plans     PlanCatalog     // optional, enables attainment on summaries
	Tolerance decimal.Decimal // zero = exact match
	Logger    *zap.Logger
	Observer  Observer
	Now       func() time.Time
}

func NewReconciler(ledger Ledger, reps RepSource, plans PlanCatalog) *Reconciler {
	return &Reconciler{
		Ledger:    ledger,
		Reps:      reps,
		Plans:     plans,
		Tolerance: DefaultTolerance,
		Logger:    zap.NewNop(),
		Now:       time.Now,
	}
}

// Reconcile checks one rep's ledger for a period. The zero Period covers
// the whole ledger. Errors are returned only when the ledger or the rep
// cannot be loaded. An unbalanced ledger is reported in Mismatch and a
// plan or quota problem in AttainmentErr.
func (r *Reconciler) Reconcile(ctx context.Context, repID RepID, period Period) (*Reconciliation, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	txs, err := r.Ledger.Transactions(ctx, repID)
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", repID, err)
	}

	summary := Totals(repID, txs, period)
	summary.AsOf = r.now()
	result := &Reconciliation{}
	if r.Reps != nil && r.Plans != nil {
		rep, err := r.Reps.Rep(ctx, repID)
		if err != nil {
			return nil, fmt.Errorf("rep %s: %w", repID, err)
		}
		result.AttainmentErr = r.fillAttainment(ctx, &summary, rep)
	}
	if err := result.AttainmentErr; err != nil {
		r.logger().Warn("attainment unavailable",
			zap.String("rep_id", string(repID)),
			zap.Error(err),
		)
	}
	result.Summary = summary
	actual := summary.Paid.Add(summary.Pending)
	delta := summary.Earned.Sub(actual)
	if delta.Abs().GreaterThan(r.tolerance()) {
		result.Mismatch = &Mismatch{
			RepID:    repID,
			Period:   period,
			Expected: summary.Earned,
			Actual:   actual,
			Delta:    delta,
		}
		r.logger().Warn("ledger mismatch",
			zap.String("rep_id", string(repID)),
			zap.Stringer("period", period),
			zap.String("expected", summary.Earned.StringFixed(CentPlaces)),
			zap.String("actual", actual.StringFixed(CentPlaces)),
			zap.String("delta", delta.StringFixed(CentPlaces)),
		)
	}
	observerOrNop(r.Observer).Reconciled(result.Balanced())
	return result, nil
}

// ReconcileAll reconciles every rep known to Reps for the quota period
// containing asOf. Reps that fail to reconcile are returned in errs by ID.
func (r *Reconciler) ReconcileAll(ctx context.Context, asOf time.Time) ([]*Reconciliation, map[RepID]error, error) {
	if r.Reps == nil {
		return nil, nil, fmt.Errorf("reconcile all: %w", ErrRepNotFound)
	}
	reps, err := r.Reps.Reps(ctx)
	if err != nil {
		return nil, nil, err
	}
	var results []*Reconciliation
	errs := make(map[RepID]error)
	for _, rep := range reps {
		if err := ctx.Err(); err != nil {
			return results, errs, err
		}
		res, err := r.Reconcile(ctx, rep.ID, rep.CurrentPeriod(asOf))
		if err != nil {
			errs[rep.ID] = err
			continue
		}
		results = append(results, res)
	}
	return results, errs, nil
}

func (r *Reconciler) fillAttainment(ctx context.Context, s *Summary, rep RepAccount) error {
	plan, err := r.Plans.Plan(ctx, rep.PlanID)
	if err != nil {
		return fmt.Errorf("plan %s for rep %s: %w", rep.PlanID, s.RepID, err)
	}
	att, err := ResolveTier(plan, rep.YTDSales, rep.AnnualQuota)
	if err != nil {
		return fmt.Errorf("attainment for rep %s: %w", s.RepID, err)
	}
	s.Attainment = att.Percent
	s.Tier = att.Tier
	s.Rate = att.Tier.Rate
	if !rep.AcceleratorEligible {
		s.Tier = plan.BaseTier()
		s.Rate = plan.BaseRate
	}
	return nil
}

// tolerance is Tolerance, with negative values treated as the default.
// Zero is an exact match.
func (r *Reconciler) tolerance() decimal.Decimal {
	if r.Tolerance.IsNegative() {
		return DefaultTolerance
	}
	return r.Tolerance
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
