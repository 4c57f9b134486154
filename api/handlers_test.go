/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Plan and rep registration
- Quote and record earning
- Payroll close, void and adjustments
- Summary (lenient and strict), forecast, export
- Reconciliation sweep and stored runs
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/metrics"
	"github.com/warp/commission-engine/plans"
	"github.com/warp/commission-engine/store/sqlite"
)

var testNow = time.Date(2025, time.June, 16, 12, 0, 0, 0, time.UTC)

const aeRepJSON = `{
	"id": "rep-1", "name": "Jordan Reyes", "role": "AE", "plan_id": "ae",
	"annual_quota": "1000000", "ytd_sales": "1100000",
	"accelerator_eligible": true, "bonus_eligibility": ["new_logo", "multi_year"]
}`

func newTestRouter(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New(nil)
	h := NewHandler(store, Options{Metrics: m, Now: func() time.Time { return testNow }})
	return h, NewRouter(h, m, nil)
}

// do sends body (a string is sent raw, anything else as JSON).
func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

// setupAE registers the standard AE plan as "ae" and rep-1 at 110% of
// quota (8.5% tier).
func setupAE(t *testing.T, router http.Handler) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/plans", plans.StandardAEJSON("ae", "Account Executive"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, "/api/reps", aeRepJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func recordEarning(t *testing.T, router http.Handler, key, closedAt string, sales int) RecordEarningResponse {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/reps/rep-1/earnings", map[string]any{
		"sales_amount":    sales,
		"deal":            map[string]any{"id": key, "new_logo": true, "closed_at": closedAt},
		"idempotency_key": key,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[RecordEarningResponse](t, rec)
}

// =============================================================================
// PLANS AND REPS
// =============================================================================

func TestPlansAndReps(t *testing.T) {
	_, router := newTestRouter(t)

	// GIVEN: the AE plan and rep are registered
	setupAE(t, router)

	// WHEN: the same plan ID is registered again
	rec := do(t, router, http.MethodPost, "/api/plans", plans.StandardAEJSON("ae", "Account Executive v2"))

	// THEN: it is a conflict, plans are immutable
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeConflict, decodeBody[ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodGet, "/api/plans/ae", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decodeBody[PlanDTO](t, rec)
	assert.Equal(t, "Account Executive", plan.Name)
	assert.Len(t, plan.Config.Tiers, 2)

	rec = do(t, router, http.MethodGet, "/api/plans/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody[ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodGet, "/api/reps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rep-1")
}

func TestCreatePlan_Misconfigured(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/plans", `{
		"id": "bad", "name": "Bad", "base_rate": "5",
		"tiers": [{"threshold": "120", "rate": "9"}, {"threshold": "100", "rate": "8"}]
	}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodePlanMisconfigured, decodeBody[ErrorResponse](t, rec).Code)
}

func TestSaveRep_UnknownPlan(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/reps", aeRepJSON)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// EARNINGS
// =============================================================================

func TestQuote(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)

	// GIVEN: rep at 110% attainment, 8.5% tier
	// WHEN: quoting a 100,000 new-logo deal
	rec := do(t, router, http.MethodPost, "/api/reps/rep-1/quote", map[string]any{
		"sales_amount": "100000",
		"deal":         map[string]any{"new_logo": true},
	})

	// THEN: 8,500 base plus the 1,000 new-logo bonus
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e := decodeBody[EarningDTO](t, rec)
	assert.Equal(t, "8.5", e.Rate)
	assert.Equal(t, "8500.00", e.Base)
	assert.Equal(t, "1000.00", e.BonusTotal)
	assert.Equal(t, "9500.00", e.Total)
	assert.Equal(t, "110.00", e.Attainment.Percent)
	assert.True(t, e.Accelerated)
	require.Len(t, e.Bonuses, 1)
	assert.Equal(t, "new_logo", e.Bonuses[0].Category)

	// Nothing was recorded
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/transactions", nil)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestQuote_Errors(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)

	rec := do(t, router, http.MethodPost, "/api/reps/rep-1/quote", `{"sales_amount": "-5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/reps/nobody/quote", `{"sales_amount": "5"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/reps/rep-1/quote", `{"sales_amount": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// An SDR assigned to the AE plan cannot be computed
	rec = do(t, router, http.MethodPost, "/api/reps", `{
		"id": "rep-sdr", "name": "Sam", "role": "SDR", "plan_id": "ae", "annual_quota": "100000"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/reps/rep-sdr/quote", `{"sales_amount": "5"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodePlanMisconfigured, decodeBody[ErrorResponse](t, rec).Code)
}

func TestRecordEarning_PayrollFlow(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)

	// GIVEN: an earning of 9,500
	res := recordEarning(t, router, "deal-1", "2025-06-02", 100000)
	assert.Equal(t, "earned", res.Earned.Kind)
	assert.Equal(t, "9500.00", res.Earned.Amount)
	assert.Equal(t, "pending", res.Pending.Kind)
	assert.Equal(t, res.Earned.ID, res.Pending.RefID)

	// WHEN: payroll pays 4,000 of it
	rec := do(t, router, http.MethodPost, "/api/payroll/close", map[string]any{
		"rep_id": "rep-1", "pending_id": res.Pending.ID, "amount": "4000", "pay_date": "2025-06-10",
		"idempotency_key": "pay-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paid := decodeBody[TransactionDTO](t, rec)
	assert.Equal(t, "paid", paid.Kind)
	assert.Equal(t, "2025-06-10", paid.PayDate)

	// THEN: 5,500 stays open and the ledger balances
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/pending", nil)
	open := decodeBody[[]OpenPendingDTO](t, rec)
	require.Len(t, open, 1)
	assert.Equal(t, "5500.00", open[0].Open)

	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/summary?period=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decodeBody[SummaryDTO](t, rec)
	assert.Equal(t, "9500.00", sum.Earned)
	assert.Equal(t, "4000.00", sum.Paid)
	assert.Equal(t, "5500.00", sum.Pending)
	assert.Equal(t, 3, sum.EntryCount)
	assert.True(t, sum.Balanced)
	assert.Nil(t, sum.Mismatch)

	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/transactions?period=2025-Q2", nil)
	txs := decodeBody[[]TransactionDTO](t, rec)
	require.Len(t, txs, 3)
	assert.Equal(t, "paid", txs[2].Kind)
}

func TestRecordEarning_DuplicateKey(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	recordEarning(t, router, "deal-1", "2025-06-02", 100000)

	rec := do(t, router, http.MethodPost, "/api/reps/rep-1/earnings", map[string]any{
		"sales_amount": 100000, "idempotency_key": "deal-1",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/transactions", nil)
	assert.Len(t, decodeBody[[]TransactionDTO](t, rec), 2)
}

func TestClosePayroll_OverClosure(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	res := recordEarning(t, router, "deal-1", "2025-06-02", 100000)

	rec := do(t, router, http.MethodPost, "/api/payroll/close", map[string]any{
		"rep_id": "rep-1", "pending_id": res.Pending.ID, "amount": "9500.01", "pay_date": "2025-06-10",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidRequest, decodeBody[ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodPost, "/api/payroll/close", map[string]any{
		"rep_id": "rep-1", "pending_id": res.Pending.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pay_date required")
}

func TestClosePayroll_WholeBalance(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	res := recordEarning(t, router, "deal-1", "2025-06-02", 100000)

	rec := do(t, router, http.MethodPost, "/api/payroll/close", map[string]any{
		"rep_id": "rep-1", "pending_id": res.Pending.ID, "pay_date": "2025-06-13",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "9500.00", decodeBody[TransactionDTO](t, rec).Amount)
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/pending", nil)
	assert.Empty(t, decodeBody[[]OpenPendingDTO](t, rec))
}

func TestClosePayroll_PayDateBeforeDealClose(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	res := recordEarning(t, router, "deal-1", "2025-06-10", 100000)

	// GIVEN: the payroll run is dated before the deal closed
	rec := do(t, router, http.MethodPost, "/api/payroll/close", map[string]any{
		"rep_id": "rep-1", "pending_id": res.Pending.ID, "pay_date": "2025-06-05",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: the same entry is closed again
	rec = do(t, router, http.MethodPost, "/api/payroll/close", map[string]any{
		"rep_id": "rep-1", "pending_id": res.Pending.ID, "pay_date": "2025-06-05",
	})

	// THEN: nothing is left to pay and the ledger still reconciles
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/pending", nil)
	assert.Empty(t, decodeBody[[]OpenPendingDTO](t, rec))

	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/summary?strict=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[SummaryDTO](t, rec)
	assert.True(t, summary.Balanced)
	assert.Equal(t, "9500.00", summary.Paid)
	assert.Equal(t, "0.00", summary.Pending)
}

func TestRecentTransactions(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	recordEarning(t, router, "deal-1", "2025-06-02", 100000)
	second := recordEarning(t, router, "deal-2", "2025-05-20", 50000)

	// WHEN: asking for the latest three entries
	rec := do(t, router, http.MethodGet, "/api/transactions/recent?limit=3", nil)

	// THEN: newest appended first, regardless of timestamp
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	txs := decodeBody[[]TransactionDTO](t, rec)
	require.Len(t, txs, 3)
	assert.Equal(t, second.Pending.ID, txs[0].ID)
	assert.Greater(t, txs[0].Seq, txs[1].Seq)

	rec = do(t, router, http.MethodGet, "/api/transactions/recent?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CORRECTIONS
// =============================================================================

func TestVoidPending(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	res := recordEarning(t, router, "deal-1", "2025-06-02", 100000)

	// WHEN: the deal is cancelled before payroll
	rec := do(t, router, http.MethodPost, "/api/reps/rep-1/pending/"+res.Pending.ID+"/void", map[string]any{
		"reason": "customer cancelled",
	})

	// THEN: earned and pending both drop to zero
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adj := decodeBody[TransactionDTO](t, rec)
	assert.Equal(t, "adjustment", adj.Kind)
	assert.Equal(t, "-9500.00", adj.Amount)

	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/summary?period=2025", nil)
	sum := decodeBody[SummaryDTO](t, rec)
	assert.Equal(t, "0.00", sum.Earned)
	assert.Equal(t, "0.00", sum.Pending)
	assert.True(t, sum.Balanced)

	// Voiding again has nothing left to close
	rec = do(t, router, http.MethodPost, "/api/reps/rep-1/pending/"+res.Pending.ID+"/void", map[string]any{
		"reason": "again",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/reps/rep-1/pending/"+res.Pending.ID+"/void", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason required")
}

func TestSummary_Mismatch(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	recordEarning(t, router, "deal-1", "2025-06-02", 100000)

	// GIVEN: a clawback of already paid commission, not tied to a pending entry
	rec := do(t, router, http.MethodPost, "/api/reps/rep-1/adjustments", map[string]any{
		"amount": "-500", "timestamp": "2025-06-05", "note": "clawback",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[[]TransactionDTO](t, rec), 1)

	// WHEN: summarizing
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/summary?period=2025", nil)

	// THEN: the mismatch is reported in the body, not as an error
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[SummaryDTO](t, rec)
	assert.False(t, sum.Balanced)
	require.NotNil(t, sum.Mismatch)
	assert.Equal(t, "9000.00", sum.Mismatch.Expected)
	assert.Equal(t, "9500.00", sum.Mismatch.Actual)
	assert.Equal(t, "-500.00", sum.Mismatch.Delta)

	// Strict mode turns it into a conflict
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/summary?period=2025&strict=true", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeLedgerMismatch, decodeBody[ErrorResponse](t, rec).Code)
}

func TestAdjustment_PositiveAddsPending(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)

	rec := do(t, router, http.MethodPost, "/api/reps/rep-1/adjustments", map[string]any{
		"amount": "250", "note": "split credit", "idempotency_key": "adj-1",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	txs := decodeBody[[]TransactionDTO](t, rec)
	require.Len(t, txs, 2)
	assert.Equal(t, "pending", txs[1].Kind)
	assert.Equal(t, "adj-1:pending", txs[1].IdempotencyKey)

	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/summary", nil)
	assert.True(t, decodeBody[SummaryDTO](t, rec).Balanced)

	rec = do(t, router, http.MethodPost, "/api/reps/rep-1/adjustments", map[string]any{"amount": "250"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "note required")
}

// =============================================================================
// FORECAST
// =============================================================================

func TestForecast(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)

	// GIVEN: one week of history
	recordEarning(t, router, "deal-1", "2025-05-26", 50000)

	rec := do(t, router, http.MethodGet, "/api/reps/rep-1/forecast?days=14", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fc := decodeBody[ForecastDTO](t, rec)
	assert.True(t, fc.InsufficientData)
	assert.Equal(t, CodeInsufficientData, fc.Code)
	assert.Empty(t, fc.Points)

	// WHEN: two more weeks of history arrive
	recordEarning(t, router, "deal-2", "2025-06-02", 60000)
	recordEarning(t, router, "deal-3", "2025-06-09", 70000)

	// THEN: a daily projection for the window
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/forecast?days=14", nil)
	fc = decodeBody[ForecastDTO](t, rec)
	assert.False(t, fc.InsufficientData)
	assert.Equal(t, 3, fc.DataPoints)
	assert.Len(t, fc.Points, 14)
	assert.Equal(t, "2025-06-17", fc.Points[0].Date)
}

func TestForecast_BadRequests(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)

	for _, days := range []string{"0", "-1", "abc", "366"} {
		rec := do(t, router, http.MethodGet, "/api/reps/rep-1/forecast?days="+days, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%s", days)
	}
	rec := do(t, router, http.MethodGet, "/api/reps/nobody/forecast", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPipeline(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)

	rec := do(t, router, http.MethodPost, "/api/pipeline", map[string]any{
		"id": "opp-1", "rep_id": "rep-1", "amount": "100000", "probability": "0.5", "expected_close": "2025-06-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/pipeline", map[string]any{
		"id": "opp-2", "rep_id": "rep-1", "amount": "100000", "probability": "1.5", "expected_close": "2025-06-20",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/pipeline", nil)
	deals := decodeBody[[]PipelineDealDTO](t, rec)
	require.Len(t, deals, 1)
	assert.Equal(t, "2025-06-20", deals[0].ExpectedClose)

	// WHEN: the deal is won it leaves the pipeline
	rec = do(t, router, http.MethodPost, "/api/pipeline/opp-1/status", map[string]string{"status": "won"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodGet, "/api/reps/rep-1/pipeline", nil)
	assert.Empty(t, decodeBody[[]PipelineDealDTO](t, rec))

	rec = do(t, router, http.MethodPost, "/api/pipeline/missing/status", map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/pipeline/opp-1/status", map[string]string{"status": "stalled"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RECONCILIATION AND EXPORT
// =============================================================================

func TestRunReconciliation(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	recordEarning(t, router, "deal-1", "2025-06-02", 100000)

	rec := do(t, router, http.MethodPost, "/api/reps", strings.Replace(aeRepJSON, `"rep-1"`, `"rep-2"`, 1))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/reps/rep-2/adjustments", map[string]any{
		"amount": "-100", "note": "clawback",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/reconciliation/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, SweepDTO{Balanced: 1, Mismatched: 1}, decodeBody[SweepDTO](t, rec))

	rec = do(t, router, http.MethodGet, "/api/reconciliation/runs?status=mismatch", nil)
	runs := decodeBody[[]ReconciliationRunDTO](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "rep-2", runs[0].RepID)
	assert.Equal(t, "2025-01-01", runs[0].PeriodStart)
	assert.Equal(t, "-100.00", runs[0].Delta)

	rec = do(t, router, http.MethodGet, "/api/reconciliation/runs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	_, router := newTestRouter(t)
	setupAE(t, router)
	recordEarning(t, router, "deal-1", "2025-06-02", 100000)

	rec := do(t, router, http.MethodGet, "/api/export?format=csv&kind=summary&period=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "rep-1")
	assert.Contains(t, rec.Body.String(), "9500.00")

	rec = do(t, router, http.MethodGet, "/api/export?kind=ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "\n"), "header plus two entries")

	rec = do(t, router, http.MethodGet, "/api/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rec = do(t, router, http.MethodGet, "/api/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/export?kind=payroll", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}
