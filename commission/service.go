/*
service.go - Orchestration of resolve -> compute -> record

PURPOSE:
  Service is the entry point used by the HTTP layer and the scheduler. It
  looks up the rep and plan, resolves attainment, computes the earning and
  writes the resulting ledger entries. Pure components (ResolveTier,
  Calculator) stay free of storage; Service is where they meet the ledger.

OPERATIONS:
  Quote:          preview an earning, no writes
  RecordEarning:  Earned + Pending entries appended atomically
  ClosePending:   Paid entry closing (part of) a Pending entry (payroll)
  VoidPending:    negative Adjustment closing the open remainder
  Adjust:         administrative correction
*/
package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	Plans      PlanCatalog
	Reps       RepSource
	Ledger     *DefaultLedger
	Calculator Calculator
	Logger     *zap.Logger
	Observer   Observer
	Now        func() time.Time
}

func NewService(plans PlanCatalog, reps RepSource, ledger *DefaultLedger) *Service {
	return &Service{
		Plans:  plans,
		Reps:   reps,
		Ledger: ledger,
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
}

// =============================================================================
// EARNINGS
// =============================================================================

type EarningInput struct {
	RepID          RepID
	SalesAmount    decimal.Decimal
	Deal           Deal
	Timestamp      time.Time // defaults to Deal.ClosedAt, then now
	IdempotencyKey string
	CreatedBy      string
	Note           string
}

type EarningRecord struct {
	Earning    Earning
	Attainment Attainment
	Earned     Transaction
	Pending    Transaction
}

// Quote computes what RecordEarning would record without writing anything.
func (s *Service) Quote(ctx context.Context, repID RepID, salesAmount decimal.Decimal, deal Deal) (Earning, Attainment, error) {
	rep, err := s.Reps.Rep(ctx, repID)
	if err != nil {
		return Earning{}, Attainment{}, fmt.Errorf("rep %s: %w", repID, err)
	}
	plan, err := s.Plans.Plan(ctx, rep.PlanID)
	if err != nil {
		return Earning{}, Attainment{}, fmt.Errorf("plan %s: %w", rep.PlanID, err)
	}
	att, err := ResolveTier(plan, rep.YTDSales, rep.AnnualQuota)
	if err != nil {
		return Earning{}, Attainment{}, err
	}
	earning, err := s.Calculator.ComputeEarned(rep, plan, salesAmount, att, deal)
	if err != nil {
		return Earning{}, Attainment{}, err
	}
	observerOrNop(s.Observer).EarningComputed(plan.ID, earning.Accelerated, earning.Total)
	return earning, att, nil
}

// RecordEarning computes the earning and appends the Earned entry and the
// Pending entry that carries it to payroll, in one batch.
func (s *Service) RecordEarning(ctx context.Context, in EarningInput) (EarningRecord, error) {
	earning, att, err := s.Quote(ctx, in.RepID, in.SalesAmount, in.Deal)
	if err != nil {
		return EarningRecord{}, err
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = in.Deal.ClosedAt
	}
	if ts.IsZero() {
		ts = s.now()
	}
	note := in.Note
	if note == "" {
		note = fmt.Sprintf("plan %s at %s%%", earning.PlanID, earning.Rate.String())
	}

	earned := Transaction{
		RepID:          in.RepID,
		Kind:           KindEarned,
		Amount:         earning.Total,
		Timestamp:      ts,
		DealRef:        in.Deal.ID,
		Note:           note,
		IdempotencyKey: in.IdempotencyKey,
		CreatedBy:      in.CreatedBy,
	}
	earned.ID = newTransactionID()
	pending := Transaction{
		RepID:     in.RepID,
		Kind:      KindPending,
		Amount:    earning.Total,
		Timestamp: ts,
		DealRef:   in.Deal.ID,
		RefID:     earned.ID,
		Note:      "awaiting payroll",
		CreatedBy: in.CreatedBy,
	}
	if in.IdempotencyKey != "" {
		pending.IdempotencyKey = in.IdempotencyKey + ":pending"
	}

	stored, err := s.Ledger.AppendBatch(ctx, []Transaction{earned, pending})
	if err != nil {
		return EarningRecord{}, err
	}
	s.logger().Info("earning recorded",
		zap.String("rep_id", string(in.RepID)),
		zap.String("deal", in.Deal.ID),
		zap.String("total", earning.Total.StringFixed(CentPlaces)),
		zap.String("attainment", att.Rounded().String()),
	)
	return EarningRecord{Earning: earning, Attainment: att, Earned: stored[0], Pending: stored[1]}, nil
}

// =============================================================================
// PAYROLL AND CORRECTIONS
// =============================================================================

type PayoutInput struct {
	RepID          RepID
	PendingID      TransactionID
	Amount         decimal.Decimal // zero = the whole open balance
	PayDate        time.Time
	IdempotencyKey string
	CreatedBy      string
}

// ClosePending records a payroll disbursement against a Pending entry.
func (s *Service) ClosePending(ctx context.Context, in PayoutInput) (Transaction, error) {
	amount := in.Amount
	if amount.IsZero() {
		open, err := s.openBalance(ctx, in.RepID, in.PendingID)
		if err != nil {
			return Transaction{}, err
		}
		if !open.IsPositive() {
			return Transaction{}, &OverClosureError{PendingID: in.PendingID, Open: open, Requested: open}
		}
		amount = open
	}
	payDate := in.PayDate
	if payDate.IsZero() {
		payDate = s.now()
	}
	return s.Ledger.Append(ctx, Transaction{
		RepID:          in.RepID,
		Kind:           KindPaid,
		Amount:         amount,
		Timestamp:      payDate,
		RefID:          in.PendingID,
		PayDate:        &payDate,
		Note:           "payroll disbursement",
		IdempotencyKey: in.IdempotencyKey,
		CreatedBy:      in.CreatedBy,
	})
}

// VoidPending cancels the open remainder of a Pending entry with a negative
// Adjustment referencing it. Earned and pending both drop by that amount.
func (s *Service) VoidPending(ctx context.Context, repID RepID, pendingID TransactionID, reason, idempotencyKey, createdBy string) (Transaction, error) {
	open, err := s.openBalance(ctx, repID, pendingID)
	if err != nil {
		return Transaction{}, err
	}
	if !open.IsPositive() {
		return Transaction{}, &OverClosureError{PendingID: pendingID, Open: open, Requested: open}
	}
	return s.Ledger.Append(ctx, Transaction{
		RepID:          repID,
		Kind:           KindAdjustment,
		Amount:         open.Neg(),
		RefID:          pendingID,
		Note:           reason,
		IdempotencyKey: idempotencyKey,
		CreatedBy:      createdBy,
	})
}

type AdjustmentInput struct {
	RepID          RepID
	Amount         decimal.Decimal
	RefID          TransactionID
	Timestamp      time.Time
	Note           string
	IdempotencyKey string
	CreatedBy      string
}

// Adjust records an administrative correction. A positive adjustment is
// owed to the rep, so a Pending entry is appended with it. A negative one
// is a clawback; when it references a Pending entry it also closes that
// amount of it.
func (s *Service) Adjust(ctx context.Context, in AdjustmentInput) ([]Transaction, error) {
	adj := Transaction{
		ID:             newTransactionID(),
		RepID:          in.RepID,
		Kind:           KindAdjustment,
		Amount:         in.Amount,
		Timestamp:      in.Timestamp,
		RefID:          in.RefID,
		Note:           in.Note,
		IdempotencyKey: in.IdempotencyKey,
		CreatedBy:      in.CreatedBy,
	}
	batch := []Transaction{adj}
	if in.Amount.IsPositive() {
		pending := Transaction{
			RepID:     in.RepID,
			Kind:      KindPending,
			Amount:    in.Amount,
			Timestamp: in.Timestamp,
			RefID:     adj.ID,
			Note:      "adjustment awaiting payroll",
			CreatedBy: in.CreatedBy,
		}
		if in.IdempotencyKey != "" {
			pending.IdempotencyKey = in.IdempotencyKey + ":pending"
		}
		batch = append(batch, pending)
	}
	stored, err := s.Ledger.AppendBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	s.logger().Info("adjustment recorded",
		zap.String("rep_id", string(in.RepID)),
		zap.String("amount", in.Amount.StringFixed(CentPlaces)),
		zap.String("ref_id", string(in.RefID)),
	)
	return stored, nil
}

func (s *Service) openBalance(ctx context.Context, repID RepID, pendingID TransactionID) (decimal.Decimal, error) {
	txs, err := s.Ledger.Transactions(ctx, repID)
	if err != nil {
		return decimal.Zero, err
	}
	state := newLedgerState(txs)
	tx, ok := state.byID[pendingID]
	if !ok || tx.Kind != KindPending {
		return decimal.Zero, fmt.Errorf("pending entry %s: %w", pendingID, ErrReferenceNotFound)
	}
	return state.open(pendingID), nil
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
