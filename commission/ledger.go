/*
ledger.go - Append-only commission ledger

PURPOSE:
  The Ledger is the source of truth for everything a rep has earned and been
  paid. Totals are always derived by replaying entries; there is no stored
  balance that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. ORDERED: Entries sort by (Timestamp, Seq).
  3. IDEMPOTENT: Same idempotency key = rejected second write.
  4. CLOSURES NEVER OVERSHOOT: Paid or void entries referencing a Pending
     entry may not exceed its open balance.

ENTRY LIFECYCLE:
  Earned --(RecordEarning)--> Pending --(payroll)--> Paid
                                     \--(void)----> negative Adjustment

  A Pending entry's open balance is its amount minus every Paid entry and
  every negative Adjustment that references it. Nothing is ever mutated to
  "close" a pending entry.

CONCURRENCY:
  Validate-then-append runs under a per-rep mutex, so two payroll closures
  racing on one Pending entry cannot both pass the open-balance check.
  Appends for different reps proceed concurrently.

SEE ALSO:
  - store.go: Low-level persistence interface
  - reconcile.go: Derives totals from entries
*/
package commission

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger is the append-only commission ledger.
type Ledger interface {
	// Append validates and adds one entry, returning it with ID, Seq and
	// defaults filled in.
	Append(ctx context.Context, tx Transaction) (Transaction, error)

	// AppendBatch validates and adds entries for a single rep atomically.
	// Later entries may reference earlier ones in the same batch.
	AppendBatch(ctx context.Context, txs []Transaction) ([]Transaction, error)

	// Transactions returns every entry for a rep in ledger order.
	Transactions(ctx context.Context, repID RepID) ([]Transaction, error)

	// Entries returns a restartable iterator over a snapshot of the rep's
	// entries with Timestamp in the period.
	Entries(ctx context.Context, repID RepID, period Period) (iter.Seq[Transaction], error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store    Store
	Logger   *zap.Logger
	Observer Observer
	Now      func() time.Time

	locks repLocks
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{
		Store:  store,
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	out, err := l.AppendBatch(ctx, []Transaction{tx})
	if err != nil {
		return Transaction{}, err
	}
	return out[0], nil
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) ([]Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	repID := txs[0].RepID
	if repID == "" {
		return nil, &EntryError{ID: txs[0].ID, Kind: txs[0].Kind, Reason: "rep ID is required"}
	}

	unlock := l.locks.lock(repID)
	defer unlock()

	existing, err := l.Store.Load(ctx, repID)
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", repID, err)
	}
	state := newLedgerState(existing)

	now := l.now()
	prepared := make([]Transaction, 0, len(txs))
	keys := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.RepID != repID {
			return nil, &EntryError{ID: tx.ID, Kind: tx.Kind, Reason: "batch spans multiple reps"}
		}
		if tx.ID == "" {
			tx.ID = newTransactionID()
		}
		if tx.Timestamp.IsZero() {
			tx.Timestamp = now
		}
		tx.RecordedAt = now

		if tx.IdempotencyKey != "" {
			if keys[tx.IdempotencyKey] {
				return nil, ErrDuplicateIdempotencyKey
			}
			keys[tx.IdempotencyKey] = true
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, ErrDuplicateIdempotencyKey
			}
		}
		if err := state.validate(tx); err != nil {
			return nil, err
		}
		state.add(tx)
		prepared = append(prepared, tx)
	}

	stored, err := l.Store.AppendBatch(ctx, prepared)
	if err != nil {
		return nil, err
	}

	obs := observerOrNop(l.Observer)
	for _, tx := range stored {
		obs.EntryAppended(tx.Kind, tx.Amount)
		l.logger().Debug("ledger entry appended",
			zap.String("rep_id", string(tx.RepID)),
			zap.String("tx_id", string(tx.ID)),
			zap.String("kind", string(tx.Kind)),
			zap.String("amount", tx.Amount.StringFixed(CentPlaces)),
			zap.Int64("seq", tx.Seq),
		)
	}
	return stored, nil
}

func (l *DefaultLedger) Transactions(ctx context.Context, repID RepID) ([]Transaction, error) {
	return l.Store.Load(ctx, repID)
}

func (l *DefaultLedger) Entries(ctx context.Context, repID RepID, period Period) (iter.Seq[Transaction], error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	snapshot, err := l.Store.LoadRange(ctx, repID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	return func(yield func(Transaction) bool) {
		for _, tx := range snapshot {
			if !yield(tx) {
				return
			}
		}
	}, nil
}

// OpenPending returns every Pending entry of the rep that still has an open
// balance, with that balance.
func (l *DefaultLedger) OpenPending(ctx context.Context, repID RepID) ([]OpenItem, error) {
	txs, err := l.Store.Load(ctx, repID)
	if err != nil {
		return nil, err
	}
	return OpenItems(txs), nil
}

func (l *DefaultLedger) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *DefaultLedger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

func newTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// =============================================================================
// OPEN BALANCES - Derived, never stored
// =============================================================================

// OpenItem is a Pending entry with its remaining open balance.
type OpenItem struct {
	Pending Transaction
	Open    decimal.Decimal
}

// OpenItems returns open Pending entries in ledger order.
func OpenItems(txs []Transaction) []OpenItem {
	state := newLedgerState(txs)
	var out []OpenItem
	for _, tx := range txs {
		if tx.Kind != KindPending {
			continue
		}
		if open := state.open(tx.ID); open.IsPositive() {
			out = append(out, OpenItem{Pending: tx, Open: open})
		}
	}
	return out
}

// closureAmount is how much of a referenced Pending entry tx closes.
func closureAmount(tx Transaction) decimal.Decimal {
	switch tx.Kind {
	case KindPaid:
		return tx.Amount
	case KindAdjustment:
		if tx.Amount.IsNegative() {
			return tx.Amount.Neg()
		}
	}
	return decimal.Zero
}

// ledgerState indexes one rep's entries for validation and closure math.
type ledgerState struct {
	byID   map[TransactionID]Transaction
	closed map[TransactionID]decimal.Decimal
}

func newLedgerState(txs []Transaction) *ledgerState {
	s := &ledgerState{
		byID:   make(map[TransactionID]Transaction, len(txs)),
		closed: make(map[TransactionID]decimal.Decimal),
	}
	// Entries come back in timestamp order and a backdated closure can
	// precede the Pending entry it closes, so index everything first.
	for _, tx := range txs {
		s.byID[tx.ID] = tx
	}
	for _, tx := range txs {
		s.close(tx)
	}
	return s
}

func (s *ledgerState) add(tx Transaction) {
	s.byID[tx.ID] = tx
	s.close(tx)
}

func (s *ledgerState) close(tx Transaction) {
	if ref, ok := s.byID[tx.RefID]; ok && ref.Kind == KindPending {
		s.closed[ref.ID] = s.closed[ref.ID].Add(closureAmount(tx))
	}
}

func (s *ledgerState) open(id TransactionID) decimal.Decimal {
	return s.byID[id].Amount.Sub(s.closed[id])
}

// attributedAt is the time an entry counts toward for period totals. A
// closure counts toward the period of the Pending entry it closes, so a
// payout made after period end still settles that period.
func (s *ledgerState) attributedAt(tx Transaction) time.Time {
	if ref, ok := s.byID[tx.RefID]; ok && ref.Kind == KindPending && closureAmount(tx).IsPositive() {
		return ref.Timestamp
	}
	return tx.Timestamp
}

func (s *ledgerState) validate(tx Transaction) error {
	if !tx.Kind.Valid() {
		return &EntryError{ID: tx.ID, Kind: tx.Kind, Reason: "unknown kind"}
	}
	if _, dup := s.byID[tx.ID]; dup {
		return &EntryError{ID: tx.ID, Kind: tx.Kind, Reason: "duplicate entry ID"}
	}
	switch tx.Kind {
	case KindAdjustment:
		if tx.Amount.IsZero() {
			return &EntryError{ID: tx.ID, Kind: tx.Kind, Reason: "adjustment amount must be non-zero"}
		}
	case KindPaid:
		if !tx.Amount.IsPositive() {
			return &EntryError{ID: tx.ID, Kind: tx.Kind, Reason: "paid amount must be positive"}
		}
	default:
		if tx.Amount.IsNegative() {
			return &EntryError{ID: tx.ID, Kind: tx.Kind, Reason: "amount must not be negative"}
		}
	}

	if tx.RefID == "" {
		return nil
	}
	ref, ok := s.byID[tx.RefID]
	if !ok {
		return fmt.Errorf("entry %s references %s: %w", tx.ID, tx.RefID, ErrReferenceNotFound)
	}

	switch tx.Kind {
	case KindPending:
		if ref.Kind != KindEarned && ref.Kind != KindAdjustment {
			return &EntryError{ID: tx.ID, Kind: tx.Kind, Reason: "pending must reference an earned or adjustment entry"}
		}
	case KindAdjustment:
		if ref.Kind == KindPending && tx.Amount.IsPositive() {
			return &EntryError{ID: tx.ID, Kind: tx.Kind, Reason: "positive adjustment cannot reference a pending entry"}
		}
	}

	if ref.Kind == KindPending {
		requested := closureAmount(tx)
		if open := s.open(ref.ID); requested.GreaterThan(open) {
			return &OverClosureError{PendingID: ref.ID, Open: open, Requested: requested}
		}
	}
	return nil
}

// =============================================================================
// PER-REP LOCKS
// =============================================================================

// repLocks is a keyed mutex. Entries are removed when no goroutine holds
// or waits on them.
type repLocks struct {
	mu    sync.Mutex
	locks map[RepID]*repLock
}

type repLock struct {
	mu   sync.Mutex
	refs int
}

func (k *repLocks) lock(id RepID) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[RepID]*repLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &repLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
