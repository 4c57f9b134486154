package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/plans"
)

var (
	_ commission.Store          = (*Store)(nil)
	_ commission.PlanCatalog    = (*Store)(nil)
	_ commission.RepSource      = (*Store)(nil)
	_ commission.PipelineSource = (*Store)(nil)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func tx(id string, kind commission.Kind, amount string, at time.Time) commission.Transaction {
	return commission.Transaction{
		ID:        commission.TransactionID(id),
		RepID:     "rep-1",
		Kind:      kind,
		Amount:    decimal.RequireFromString(amount),
		Timestamp: at,
	}
}

func TestStore_AppendAssignsSeqAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	pay := day(time.March, 31)
	in := tx("t1", commission.KindPaid, "123.45", day(time.March, 15))
	in.RefID = "t0"
	in.DealRef = "opp-9"
	in.Note = "march payroll"
	in.PayDate = &pay
	in.IdempotencyKey = "payroll-03"
	in.CreatedBy = "payroll-bot"

	out, err := st.Append(ctx, in)
	require.NoError(t, err)
	assert.Positive(t, out.Seq)

	got, err := st.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, out.Seq, got.Seq)
	assert.True(t, got.Amount.Equal(in.Amount))
	assert.True(t, got.Timestamp.Equal(in.Timestamp))
	assert.Equal(t, commission.TransactionID("t0"), got.RefID)
	require.NotNil(t, got.PayDate)
	assert.True(t, got.PayDate.Equal(pay))
	assert.Equal(t, "payroll-bot", got.CreatedBy)

	missing, err := st.GetTransaction(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_LedgerOrderAndRange(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// Appended out of business-time order, with a tie on March 1.
	_, err := st.AppendBatch(ctx, []commission.Transaction{
		tx("late", commission.KindEarned, "3", day(time.April, 1)),
		tx("tie-a", commission.KindEarned, "1", day(time.March, 1)),
		tx("tie-b", commission.KindEarned, "2", day(time.March, 1)),
	})
	require.NoError(t, err)

	all, err := st.Load(ctx, "rep-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, commission.TransactionID("tie-a"), all[0].ID)
	assert.Equal(t, commission.TransactionID("tie-b"), all[1].ID)
	assert.Equal(t, commission.TransactionID("late"), all[2].ID)

	march, err := st.LoadRange(ctx, "rep-1", day(time.March, 1), day(time.April, 1))
	require.NoError(t, err)
	assert.Len(t, march, 2, "end bound is exclusive")

	open, err := st.LoadRange(ctx, "rep-1", day(time.March, 2), time.Time{})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	other, err := st.Load(ctx, "rep-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_IdempotencyAndAtomicBatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	first := tx("a", commission.KindEarned, "10", day(time.May, 1))
	first.IdempotencyKey = "k1"
	_, err := st.Append(ctx, first)
	require.NoError(t, err)

	ok, err := st.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second entry in the batch collides with the stored key: nothing lands.
	dup := tx("c", commission.KindEarned, "30", day(time.May, 3))
	dup.IdempotencyKey = "k1"
	_, err = st.AppendBatch(ctx, []commission.Transaction{
		tx("b", commission.KindEarned, "20", day(time.May, 2)),
		dup,
	})
	assert.ErrorIs(t, err, commission.ErrDuplicateIdempotencyKey)

	all, err := st.Load(ctx, "rep-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	x := tx("x", commission.KindEarned, "1", day(time.May, 4))
	x.IdempotencyKey = "same"
	y := tx("y", commission.KindEarned, "1", day(time.May, 4))
	y.IdempotencyKey = "same"
	_, err = st.AppendBatch(ctx, []commission.Transaction{x, y})
	assert.ErrorIs(t, err, commission.ErrDuplicateIdempotencyKey)
}

func TestStore_TransactionsAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.Append(ctx, tx("t1", commission.KindEarned, "100", day(time.June, 1)))
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx, "UPDATE transactions SET amount = '1' WHERE id = 't1'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = st.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = 't1'")
	require.Error(t, err)

	got, err := st.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))

	// Reset is the one sanctioned wipe, and it restores the guard.
	require.NoError(t, st.Reset(ctx))
	all, err := st.Load(ctx, "rep-1")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = st.Append(ctx, tx("t2", commission.KindEarned, "5", day(time.June, 2)))
	require.NoError(t, err)
	_, err = st.db.ExecContext(ctx, "DELETE FROM transactions")
	assert.Error(t, err)
}

func TestStore_WorksUnderLedger(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	ledger := commission.NewLedger(st)

	earned, err := ledger.AppendBatch(ctx, []commission.Transaction{
		{RepID: "rep-1", Kind: commission.KindEarned, Amount: decimal.NewFromInt(500), Timestamp: day(time.July, 1)},
	})
	require.NoError(t, err)
	pending, err := ledger.Append(ctx, commission.Transaction{
		RepID: "rep-1", Kind: commission.KindPending, Amount: decimal.NewFromInt(500),
		Timestamp: day(time.July, 1), RefID: earned[0].ID,
	})
	require.NoError(t, err)

	_, err = ledger.Append(ctx, commission.Transaction{
		RepID: "rep-1", Kind: commission.KindPaid, Amount: decimal.NewFromInt(600),
		Timestamp: day(time.July, 15), RefID: pending.ID,
	})
	assert.ErrorIs(t, err, commission.ErrOverClosure)

	res, err := commission.NewReconciler(ledger, nil, nil).Reconcile(ctx, "rep-1", commission.YearPeriod(2025))
	require.NoError(t, err)
	assert.True(t, res.Balanced())
	assert.Equal(t, 2, res.Summary.EntryCount)
}

func TestStore_Plans(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	f := factory.New()

	plan, err := f.ParsePlan(plans.StandardAEJSON("ae-2025", "AE 2025"))
	require.NoError(t, err)
	require.NoError(t, st.RegisterPlan(ctx, plan))
	assert.ErrorIs(t, st.RegisterPlan(ctx, plan), commission.ErrDuplicatePlan)

	got, err := st.Plan(ctx, "ae-2025")
	require.NoError(t, err)
	assert.True(t, got.BaseRate.Equal(decimal.NewFromInt(7)))
	require.Len(t, got.Tiers, 2)
	assert.Len(t, got.Bonuses, 2)

	_, err = st.Plan(ctx, "missing")
	assert.ErrorIs(t, err, commission.ErrPlanNotFound)

	bad := plan
	bad.ID = "bad"
	bad.Tiers = []commission.Tier{plan.Tiers[1], plan.Tiers[0]}
	assert.ErrorIs(t, st.RegisterPlan(ctx, bad), commission.ErrPlanTierOrdering)

	sdr, err := f.ParsePlan(plans.SDRJSON("sdr-2025", "SDR 2025"))
	require.NoError(t, err)
	require.NoError(t, st.RegisterPlan(ctx, sdr))

	all, err := st.Plans(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, commission.PlanID("ae-2025"), all[0].ID)
}

func TestStore_Reps(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	rep := commission.RepAccount{
		ID: "rep-1", Name: "Alex", Role: "AE", PlanID: "ae-2025",
		AnnualQuota: decimal.NewFromInt(250000), QuotaPeriod: commission.QuotaQuarterly,
		YTDSales: decimal.NewFromInt(1000), AcceleratorEligible: true,
		BonusEligibility: map[commission.BonusCategory]bool{commission.BonusNewLogo: true},
	}
	require.NoError(t, st.SaveRep(ctx, rep))

	rep.YTDSales = decimal.NewFromInt(5000)
	require.NoError(t, st.SaveRep(ctx, rep))

	got, err := st.Rep(ctx, "rep-1")
	require.NoError(t, err)
	assert.True(t, got.YTDSales.Equal(decimal.NewFromInt(5000)), "upsert keeps the latest")
	assert.Equal(t, commission.QuotaQuarterly, got.QuotaPeriod)
	assert.True(t, got.BonusEnabled(commission.BonusNewLogo))

	_, err = st.Rep(ctx, "ghost")
	assert.ErrorIs(t, err, commission.ErrRepNotFound)

	all, err := st.Reps(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_Pipeline(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.SaveDeal(ctx, commission.PipelineDeal{
		ID: "opp-2", RepID: "rep-1", Amount: decimal.NewFromInt(5000),
		Probability: decimal.RequireFromString("0.25"), ExpectedClose: day(time.August, 20),
	}))
	require.NoError(t, st.SaveDeal(ctx, commission.PipelineDeal{
		ID: "opp-1", RepID: "rep-1", Amount: decimal.NewFromInt(10000),
		Probability: decimal.RequireFromString("0.5"), ExpectedClose: day(time.August, 5),
	}))

	deals, err := st.OpenDeals(ctx, "rep-1")
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, "opp-1", deals[0].ID, "ordered by expected close")
	assert.True(t, deals[0].Probability.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, deals[0].ExpectedClose.Equal(day(time.August, 5)))

	require.NoError(t, st.SetDealStatus(ctx, "opp-1", DealWon))
	deals, err = st.OpenDeals(ctx, "rep-1")
	require.NoError(t, err)
	assert.Len(t, deals, 1)

	assert.Error(t, st.SetDealStatus(ctx, "missing", DealLost))
}

func TestStore_ReconciliationRuns(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	q := commission.QuarterPeriod(2025, 2)

	run := ReconciliationRun{
		ID: "run-1", RepID: "rep-1", PeriodStart: q.Start, PeriodEnd: q.End,
		Status: RunMismatch, Expected: decimal.NewFromInt(100), Actual: decimal.NewFromInt(80),
		Delta: decimal.NewFromInt(-20), EntryCount: 3, RunAt: day(time.July, 1),
	}
	require.NoError(t, st.SaveReconciliationRun(ctx, run))

	mismatches, err := st.ReconciliationRuns(ctx, RunMismatch)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.True(t, mismatches[0].Delta.Equal(decimal.NewFromInt(-20)))
	assert.True(t, mismatches[0].PeriodStart.Equal(q.Start))

	// Re-running the same rep and period replaces the result.
	run.ID = "run-2"
	run.Status = RunBalanced
	run.Delta = decimal.Zero
	run.RunAt = day(time.July, 2)
	require.NoError(t, st.SaveReconciliationRun(ctx, run))

	all, err := st.ReconciliationRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, RunBalanced, all[0].Status)
}

func TestStore_CorruptDecimalsAreErrors(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// GIVEN: a deal and a run whose stored amounts were damaged
	require.NoError(t, st.SaveDeal(ctx, commission.PipelineDeal{
		ID: "opp-1", RepID: "rep-1", Amount: decimal.NewFromInt(10000),
		Probability: decimal.RequireFromString("0.5"), ExpectedClose: day(time.August, 5),
	}))
	q := commission.QuarterPeriod(2025, 2)
	require.NoError(t, st.SaveReconciliationRun(ctx, ReconciliationRun{
		ID: "run-1", RepID: "rep-1", PeriodStart: q.Start, PeriodEnd: q.End,
		Status: RunBalanced, RunAt: day(time.July, 1),
	}))
	_, err := st.db.ExecContext(ctx, "UPDATE pipeline_deals SET probability = 'half' WHERE id = 'opp-1'")
	require.NoError(t, err)
	_, err = st.db.ExecContext(ctx, "UPDATE reconciliation_runs SET delta = '' WHERE id = 'run-1'")
	require.NoError(t, err)

	// WHEN/THEN: reading them fails instead of yielding zero
	_, err = st.OpenDeals(ctx, "rep-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opp-1 probability")

	_, err = st.ReconciliationRuns(ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1 delta")
}
