/*
errors.go - Centralized error types for the commission engine

ERROR CATEGORIES:
  1. Plan errors - misconfigured plans (tier ordering, rates, scope)
  2. Computation errors - invalid quota or sales inputs
  3. Ledger errors - rejected appends (duplicates, bad references)
  4. Reconciliation - ledger and plan disagree, needs review

PROPAGATION:
  Computation and plan errors are returned to the immediate caller and are
  never retried. A reconciliation mismatch is a result value (see
  Reconciliation.Mismatch); MismatchError exists for callers that want to
  push it through an error path.
*/
package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidQuota is returned when quota <= 0; attainment is undefined.
	ErrInvalidQuota = errors.New("invalid quota: must be greater than zero")

	// ErrInvalidSalesAmount is returned for negative or non-finite sales.
	// Credits must be recorded as an explicit Adjustment entry.
	ErrInvalidSalesAmount = errors.New("invalid sales amount: must be finite and non-negative")

	// ErrPlanTierOrdering is returned when tier thresholds are not strictly increasing.
	ErrPlanTierOrdering = errors.New("plan tier thresholds must be strictly increasing")

	// ErrInvalidPlan covers any other plan validation failure.
	ErrInvalidPlan = errors.New("invalid commission plan")

	// ErrPlanMismatch is returned when a rep is computed against a plan it is not assigned to.
	ErrPlanMismatch = errors.New("rep is not assigned to this plan")

	// ErrRoleNotEligible is returned when the rep's role is not eligible for the plan.
	ErrRoleNotEligible = errors.New("rep role is not eligible for plan")

	ErrPlanNotFound  = errors.New("plan not found")
	ErrRepNotFound   = errors.New("rep not found")
	ErrDuplicatePlan = errors.New("plan already registered; create a new plan version instead")

	// ErrReconciliationMismatch is wrapped by MismatchError.
	ErrReconciliationMismatch = errors.New("ledger totals do not reconcile")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidEntry is returned when a ledger entry is malformed.
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrReferenceNotFound is returned when RefID points at no entry of the same rep.
	ErrReferenceNotFound = errors.New("referenced ledger entry not found")

	// ErrOverClosure is returned when a Paid or void entry exceeds the open
	// balance of the Pending entry it closes.
	ErrOverClosure = errors.New("closure exceeds open pending balance")

	ErrInvalidPeriod         = errors.New("invalid period: end before start")
	ErrInvalidForecastWindow = errors.New("forecast window must be positive")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TierOrderingError reports the first pair of tiers out of order.
type TierOrderingError struct {
	PlanID   PlanID
	Index    int
	Previous decimal.Decimal
	Current  decimal.Decimal
}

func (e *TierOrderingError) Error() string {
	return fmt.Sprintf("plan %s: tier %d threshold %s is not greater than previous threshold %s",
		e.PlanID, e.Index, e.Current, e.Previous)
}

func (e *TierOrderingError) Unwrap() error {
	return ErrPlanTierOrdering
}

// PlanError reports a plan validation failure other than tier ordering.
type PlanError struct {
	PlanID PlanID
	Field  string
	Reason string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan %s: %s: %s", e.PlanID, e.Field, e.Reason)
}

func (e *PlanError) Unwrap() error {
	return ErrInvalidPlan
}

// MismatchError wraps a Mismatch for callers that route it as an error.
type MismatchError struct {
	Mismatch Mismatch
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("ledger mismatch for %s %s: earned %s, paid+pending %s, delta %s",
		e.Mismatch.RepID, e.Mismatch.Period, e.Mismatch.Expected, e.Mismatch.Actual, e.Mismatch.Delta)
}

func (e *MismatchError) Unwrap() error {
	return ErrReconciliationMismatch
}

// OverClosureError provides details about a closure larger than the open balance.
type OverClosureError struct {
	PendingID TransactionID
	Open      decimal.Decimal
	Requested decimal.Decimal
}

func (e *OverClosureError) Error() string {
	return fmt.Sprintf("pending entry %s has open balance %s, cannot close %s",
		e.PendingID, e.Open, e.Requested)
}

func (e *OverClosureError) Unwrap() error {
	return ErrOverClosure
}

// EntryError reports why a ledger entry was rejected.
type EntryError struct {
	ID     TransactionID
	Kind   Kind
	Reason string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("invalid %s entry %s: %s", e.Kind, e.ID, e.Reason)
}

func (e *EntryError) Unwrap() error {
	return ErrInvalidEntry
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsPlanMisconfigured distinguishes "your commission plan is misconfigured".
func IsPlanMisconfigured(err error) bool {
	return errors.Is(err, ErrPlanTierOrdering) ||
		errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, ErrPlanMismatch) ||
		errors.Is(err, ErrRoleNotEligible) ||
		errors.Is(err, ErrInvalidQuota)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSalesAmount) ||
		errors.Is(err, ErrInvalidEntry) ||
		errors.Is(err, ErrReferenceNotFound) ||
		errors.Is(err, ErrOverClosure) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicatePlan) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidForecastWindow)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrRepNotFound)
}
