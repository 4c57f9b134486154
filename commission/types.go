/*
Package commission provides the commission calculation and reconciliation engine.

PURPOSE:
  This package turns a sales representative's quota attainment, commission
  plan and deal data into commission amounts, records those amounts in an
  append-only ledger, reconciles the ledger into paid/pending totals, and
  projects near-term payouts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal.Decimal based amounts, rounded to cents
  - Transaction: An immutable ledger entry (earned, adjustment, pending, paid)
  - Deal: The context bonus rules are evaluated against
  - Identifiers: Type-safe rep/plan/transaction IDs

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified, only offset
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing rep/plan IDs
  4. Purity: Resolver and calculator never touch storage

USAGE:
  att, _ := commission.ResolveTier(plan, rep.YTDSales, rep.AnnualQuota)
  earning, _ := commission.Calculator{}.ComputeEarned(rep, plan, sales, att, deal)

SEE ALSO:
  - plan.go: Plans, tiers, bonus rules and the plan catalog
  - ledger.go: Append-only ledger
  - reconcile.go: Ledger reconciliation
  - forecast.go: Payout forecasting
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal amounts in a single currency
// =============================================================================

// CentPlaces is the currency rounding precision.
const CentPlaces int32 = 2

var hundred = decimal.NewFromInt(100)

// Money builds an amount from a float. Use only for literals and tests;
// external input goes through SalesAmountFromFloat or decimal parsing.
func Money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// RoundCents rounds half away from zero to the currency precision.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// percentOf returns amount * pct / 100.
func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RepID string
type PlanID string
type TransactionID string

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

// Kind discriminates ledger entries.
type Kind string

const (
	KindEarned     Kind = "earned"     // Commission computed by the calculator
	KindAdjustment Kind = "adjustment" // Manual correction or void, may be negative
	KindPending    Kind = "pending"    // Earned but not yet disbursed
	KindPaid       Kind = "paid"       // Disbursed by a payroll run
)

func (k Kind) Valid() bool {
	switch k {
	case KindEarned, KindAdjustment, KindPending, KindPaid:
		return true
	}
	return false
}

// Transaction is a single ledger entry. Entries are append-only: a
// correction is a new Adjustment referencing the original, never an edit.
type Transaction struct {
	ID     TransactionID
	Seq    int64 // assigned by the store at append time
	RepID  RepID
	Kind   Kind
	Amount decimal.Decimal

	// Timestamp is the business time of the entry (deal close, pay run).
	// Entries are ordered by (Timestamp, Seq).
	Timestamp time.Time

	DealRef        string
	RefID          TransactionID // referenced entry (closure, reversal, source)
	Note           string
	PayDate        *time.Time // nil until scheduled
	IdempotencyKey string

	// Audit fields
	CreatedBy  string
	RecordedAt time.Time
}

// Before reports whether tx sorts before other in ledger order.
func (tx Transaction) Before(other Transaction) bool {
	if tx.Timestamp.Equal(other.Timestamp) {
		return tx.Seq < other.Seq
	}
	return tx.Timestamp.Before(other.Timestamp)
}

// =============================================================================
// DEAL - Context for bonus rule triggers
// =============================================================================

type Deal struct {
	ID         string
	Amount     decimal.Decimal
	NewLogo    bool
	TermMonths int
	Upsell     bool
	Renewal    bool
	ClosedAt   time.Time
}
