/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario registers plans, creates reps and records
	earnings, payouts and corrections through the same service calls the
	API uses, so every entry passes ledger validation.

AVAILABLE SCENARIOS:

	account-executive: One AE above quota, three deals, one payroll run
	sales-team:        AE, Enterprise AE, SDR and AM on their own plans
	ledger-review:     Void and clawback; the clawback leaves a delta
	forecast-pipeline: Eight weeks of history plus open pipeline

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register plans from plans/ presets
 3. Create reps
 4. Record earnings, payouts and corrections relative to today

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "sales-team"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - plans/presets.go: Plan JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/plans"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "account-executive",
		Name:        "Account Executive",
		Description: "AE at 110% of quota on the 8.5% tier, three deals, first one paid",
		Category:    "earnings",
	},
	{
		ID:          "sales-team",
		Name:        "Sales Team",
		Description: "AE, Enterprise AE, SDR and AM on their own plans with bonuses",
		Category:    "earnings",
	},
	{
		ID:          "ledger-review",
		Name:        "Ledger Review",
		Description: "Cancelled deal voided, churned customer clawed back; reconciliation flags the clawback",
		Category:    "reconciliation",
	},
	{
		ID:          "forecast-pipeline",
		Name:        "Forecast with Pipeline",
		Description: "Eight weeks of growing earnings and three open deals for the next month",
		Category:    "forecast",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context) error

var scenarioLoaders = map[string]scenarioLoader{
	"account-executive": (*Handler).loadAccountExecutiveScenario,
	"sales-team":        (*Handler).loadSalesTeamScenario,
	"ledger-review":     (*Handler).loadLedgerReviewScenario,
	"forecast-pipeline": (*Handler).loadForecastPipelineScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, ok := scenarioLoaders[req.ScenarioID]; !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", CodeInvalidRequest, nil)
		return
	}
	if err := h.LoadDemo(r.Context(), req.ScenarioID); err != nil {
		h.writeDomainError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadDemo resets the database and loads the named scenario.
func (h *Handler) LoadDemo(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.currentScenario = ""
	if err := load(h, ctx); err != nil {
		return err
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadAccountExecutiveScenario(ctx context.Context) error {
	if err := h.registerPlans(ctx, plans.StandardAEJSON("ae-standard", "Account Executive")); err != nil {
		return err
	}
	rep := factory.RepJSON{
		ID:                  "rep-ae-001",
		Name:                "Jordan Reyes",
		Role:                "AE",
		PlanID:              "ae-standard",
		AnnualQuota:         decimal.NewFromInt(1_000_000),
		YTDSales:            decimal.NewFromInt(1_100_000),
		AcceleratorEligible: true,
		BonusEligibility:    []string{"new_logo", "multi_year"},
	}
	if err := h.saveRep(ctx, rep); err != nil {
		return err
	}

	recs, err := h.recordDeals(ctx, "rep-ae-001", []demoDeal{
		{id: "acme-001", sales: 120_000, daysAgo: 21, newLogo: true, term: 12},
		{id: "globex-002", sales: 80_000, daysAgo: 14, term: 36},
		{id: "initech-003", sales: 45_000, daysAgo: 7, term: 12},
	})
	if err != nil {
		return err
	}

	return h.payInFull(ctx, recs[0], 10)
}

func (h *Handler) loadSalesTeamScenario(ctx context.Context) error {
	if err := h.registerPlans(ctx,
		plans.StandardAEJSON("ae-standard", "Account Executive"),
		plans.EnterpriseAEJSON("ae-enterprise", "Enterprise Account Executive"),
		plans.SDRJSON("sdr-flat", "Sales Development"),
		plans.AccountManagerJSON("am-expansion", "Account Management"),
	); err != nil {
		return err
	}

	team := []factory.RepJSON{
		{ID: "rep-ae-001", Name: "Jordan Reyes", Role: "AE", PlanID: "ae-standard",
			AnnualQuota: decimal.NewFromInt(1_000_000), YTDSales: decimal.NewFromInt(640_000),
			AcceleratorEligible: true, BonusEligibility: []string{"new_logo", "multi_year"}},
		{ID: "rep-ent-001", Name: "Priya Natarajan", Role: "Enterprise AE", PlanID: "ae-enterprise",
			AnnualQuota: decimal.NewFromInt(2_000_000), YTDSales: decimal.NewFromInt(2_600_000),
			AcceleratorEligible: true, BonusEligibility: []string{"volume", "multi_year", "retention"}},
		{ID: "rep-sdr-001", Name: "Sam Okafor", Role: "SDR", PlanID: "sdr-flat", QuotaPeriod: "quarterly",
			AnnualQuota: decimal.NewFromInt(400_000), YTDSales: decimal.NewFromInt(150_000),
			BonusEligibility: []string{"new_logo"}},
		{ID: "rep-am-001", Name: "Lee Brandt", Role: "AM", PlanID: "am-expansion",
			AnnualQuota: decimal.NewFromInt(800_000), YTDSales: decimal.NewFromInt(820_000),
			AcceleratorEligible: true, BonusEligibility: []string{"upsell", "retention"}},
	}
	for _, rj := range team {
		if err := h.saveRep(ctx, rj); err != nil {
			return err
		}
	}

	deals := map[commission.RepID][]demoDeal{
		"rep-ae-001": {
			{id: "acme-101", sales: 60_000, daysAgo: 20, newLogo: true, term: 12},
			{id: "umbrella-102", sales: 90_000, daysAgo: 6, term: 24},
		},
		"rep-ent-001": {
			{id: "wayne-201", sales: 400_000, daysAgo: 18, term: 36},
			{id: "stark-202", sales: 150_000, daysAgo: 3, renewal: true, term: 12},
		},
		"rep-sdr-001": {
			{id: "hooli-301", sales: 30_000, daysAgo: 12, newLogo: true},
		},
		"rep-am-001": {
			{id: "acme-401", sales: 50_000, daysAgo: 15, upsell: true},
			{id: "globex-402", sales: 70_000, daysAgo: 5, renewal: true},
		},
	}
	for _, repID := range []commission.RepID{"rep-ae-001", "rep-ent-001", "rep-sdr-001", "rep-am-001"} {
		recs, err := h.recordDeals(ctx, repID, deals[repID])
		if err != nil {
			return err
		}
		if err := h.payInFull(ctx, recs[0], 2); err != nil {
			return err
		}
	}

	return h.saveDeals(ctx, "rep-ae-001", []demoPipeline{
		{id: "pipe-acme-expansion", amount: 75_000, prob: "0.6", inDays: 10},
		{id: "pipe-soylent", amount: 200_000, prob: "0.3", inDays: 25},
	})
}

// Deal A is paid. Deal B's customer cancels before payroll, so its pending
// balance is voided. Deal A's customer later churns inside the clawback
// window; the paid commission is clawed back with an unreferenced negative
// adjustment, which lowers earned while paid stays, leaving a delta.
func (h *Handler) loadLedgerReviewScenario(ctx context.Context) error {
	if err := h.registerPlans(ctx, plans.StandardAEJSON("ae-standard", "Account Executive")); err != nil {
		return err
	}
	rep := factory.RepJSON{
		ID: "rep-ae-002", Name: "Morgan Blake", Role: "AE", PlanID: "ae-standard",
		AnnualQuota: decimal.NewFromInt(900_000), YTDSales: decimal.NewFromInt(500_000),
		AcceleratorEligible: true, BonusEligibility: []string{"new_logo"},
	}
	if err := h.saveRep(ctx, rep); err != nil {
		return err
	}

	recs, err := h.recordDeals(ctx, "rep-ae-002", []demoDeal{
		{id: "vandelay-501", sales: 40_000, daysAgo: 30, newLogo: true},
		{id: "kramerica-502", sales: 25_000, daysAgo: 12},
	})
	if err != nil {
		return err
	}
	if err := h.payInFull(ctx, recs[0], 25); err != nil {
		return err
	}

	if _, err := h.Service.VoidPending(ctx, "rep-ae-002", recs[1].Pending.ID,
		"customer cancelled before signature", "demo-void-kramerica-502", "demo"); err != nil {
		return err
	}

	_, err = h.Service.Adjust(ctx, commission.AdjustmentInput{
		RepID:          "rep-ae-002",
		Amount:         decimal.NewFromInt(-1500),
		Timestamp:      h.daysAgo(2),
		Note:           "clawback: vandelay-501 churned in month 2",
		IdempotencyKey: "demo-clawback-vandelay-501",
		CreatedBy:      "demo",
	})
	return err
}

func (h *Handler) loadForecastPipelineScenario(ctx context.Context) error {
	if err := h.registerPlans(ctx, plans.StandardAEJSON("ae-standard", "Account Executive")); err != nil {
		return err
	}
	rep := factory.RepJSON{
		ID: "rep-ae-003", Name: "Casey Lindqvist", Role: "AE", PlanID: "ae-standard",
		AnnualQuota: decimal.NewFromInt(1_200_000), YTDSales: decimal.NewFromInt(1_250_000),
		AcceleratorEligible: true, BonusEligibility: []string{"new_logo", "multi_year"},
	}
	if err := h.saveRep(ctx, rep); err != nil {
		return err
	}

	var history []demoDeal
	for week := 8; week >= 1; week-- {
		history = append(history, demoDeal{
			id:      fmt.Sprintf("hist-w%02d", week),
			sales:   20_000 + float64(8-week)*4_000,
			daysAgo: week*7 - 1,
		})
	}
	if _, err := h.recordDeals(ctx, "rep-ae-003", history); err != nil {
		return err
	}

	return h.saveDeals(ctx, "rep-ae-003", []demoPipeline{
		{id: "pipe-tyrell", amount: 120_000, prob: "0.5", inDays: 7},
		{id: "pipe-cyberdyne", amount: 60_000, prob: "0.8", inDays: 14},
		{id: "pipe-weyland", amount: 300_000, prob: "0.2", inDays: 28},
	})
}

// =============================================================================
// HELPERS
// =============================================================================

type demoDeal struct {
	id      string
	sales   float64
	daysAgo int
	newLogo bool
	term    int
	upsell  bool
	renewal bool
}

type demoPipeline struct {
	id     string
	amount int64
	prob   string
	inDays int
}

func (h *Handler) registerPlans(ctx context.Context, jsons ...string) error {
	for _, js := range jsons {
		plan, err := h.Factory.ParsePlan(js)
		if err != nil {
			return err
		}
		if err := h.Store.RegisterPlan(ctx, plan); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) saveRep(ctx context.Context, rj factory.RepJSON) error {
	rep, err := h.Factory.RepFromJSON(rj)
	if err != nil {
		return err
	}
	return h.Store.SaveRep(ctx, rep)
}

func (h *Handler) recordDeals(ctx context.Context, repID commission.RepID, deals []demoDeal) ([]commission.EarningRecord, error) {
	var out []commission.EarningRecord
	for _, d := range deals {
		sales, err := commission.SalesAmountFromFloat(d.sales)
		if err != nil {
			return nil, err
		}
		closed := h.daysAgo(d.daysAgo)
		rec, err := h.Service.RecordEarning(ctx, commission.EarningInput{
			RepID:       repID,
			SalesAmount: sales,
			Deal: commission.Deal{
				ID:         d.id,
				Amount:     sales,
				NewLogo:    d.newLogo,
				TermMonths: d.term,
				Upsell:     d.upsell,
				Renewal:    d.renewal,
				ClosedAt:   closed,
			},
			IdempotencyKey: "demo-earning-" + d.id,
			CreatedBy:      "demo",
		})
		if err != nil {
			return nil, fmt.Errorf("deal %s: %w", d.id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// payInFull closes the whole pending balance of rec on a pay date daysAgo.
func (h *Handler) payInFull(ctx context.Context, rec commission.EarningRecord, daysAgo int) error {
	_, err := h.Service.ClosePending(ctx, commission.PayoutInput{
		RepID:          rec.Pending.RepID,
		PendingID:      rec.Pending.ID,
		PayDate:        h.daysAgo(daysAgo),
		IdempotencyKey: "demo-payout-" + string(rec.Pending.ID),
		CreatedBy:      "demo",
	})
	return err
}

func (h *Handler) saveDeals(ctx context.Context, repID commission.RepID, deals []demoPipeline) error {
	for _, d := range deals {
		err := h.Store.SaveDeal(ctx, commission.PipelineDeal{
			ID:            d.id,
			RepID:         repID,
			Amount:        decimal.NewFromInt(d.amount),
			Probability:   decimal.RequireFromString(d.prob),
			ExpectedClose: h.daysAgo(-d.inDays),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// daysAgo returns midnight UTC n days before the handler's clock.
func (h *Handler) daysAgo(n int) time.Time {
	now := h.Service.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -n)
}
