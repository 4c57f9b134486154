package commission_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/commission/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	if got.StringFixed(2) != dec(want).StringFixed(2) {
		t.Errorf("%s: expected %s, got %s", msg, dec(want).StringFixed(2), got.StringFixed(2))
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// standardPlan has tiers {100 -> 8.5%, 125 -> 10.0%} and base rate 7.0%.
func standardPlan() commission.Plan {
	return commission.Plan{
		ID:       "ae-2025",
		Name:     "Account Executive 2025",
		Version:  1,
		BaseRate: dec("7.0"),
		Tiers: []commission.Tier{
			{Threshold: dec("100"), Rate: dec("8.5")},
			{Threshold: dec("125"), Rate: dec("10.0")},
		},
		EligibleRoles:           []string{"AE"},
		RetroactiveAccelerators: true,
	}
}

func repOn(plan commission.Plan, quota, ytd string) commission.RepAccount {
	return commission.RepAccount{
		ID:                  "rep-1",
		Name:                "Alex Rivera",
		Role:                "AE",
		PlanID:              plan.ID,
		AnnualQuota:         dec(quota),
		QuotaPeriod:         commission.QuotaAnnual,
		YTDSales:            dec(ytd),
		AcceleratorEligible: true,
	}
}

type fixture struct {
	store   *store.Memory
	ledger  *commission.DefaultLedger
	plans   *commission.MemoryCatalog
	reps    *commission.MemoryReps
	service *commission.Service
	recon   *commission.Reconciler
}

func newFixture(t *testing.T, plan commission.Plan, reps ...commission.RepAccount) *fixture {
	t.Helper()
	plans, err := commission.NewMemoryCatalog(plan)
	if err != nil {
		t.Fatalf("register plan: %v", err)
	}
	mem := store.NewMemory()
	ledger := commission.NewLedger(mem)
	dir := commission.NewMemoryReps(reps...)
	return &fixture{
		store:   mem,
		ledger:  ledger,
		plans:   plans,
		reps:    dir,
		service: commission.NewService(plans, dir, ledger),
		recon:   commission.NewReconciler(ledger, dir, plans),
	}
}

func (f *fixture) entries(t *testing.T, repID commission.RepID) []commission.Transaction {
	t.Helper()
	txs, err := f.ledger.Transactions(context.Background(), repID)
	if err != nil {
		t.Fatalf("load transactions: %v", err)
	}
	return txs
}

func entry(repID commission.RepID, kind commission.Kind, amount string, at time.Time) commission.Transaction {
	return commission.Transaction{
		RepID:     repID,
		Kind:      kind,
		Amount:    dec(amount),
		Timestamp: at,
	}
}
