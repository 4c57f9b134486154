/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the commission package.

ENDPOINTS:
  Plans:
    GET    /api/plans                          List plans
    POST   /api/plans                          Register plan from JSON
    GET    /api/plans/{planID}                 Plan definition

  Reps:
    GET    /api/reps                           List reps
    POST   /api/reps                           Create or update rep
    GET    /api/reps/{repID}                   Rep details
    POST   /api/reps/{repID}/quote             Compute earning, no write
    POST   /api/reps/{repID}/earnings          Record earning (Earned + Pending)
    GET    /api/reps/{repID}/transactions      Ledger entries (?period=)
    GET    /api/reps/{repID}/pending           Open pending balances
    GET    /api/reps/{repID}/summary           Reconciled summary (?period=&strict=)
    GET    /api/reps/{repID}/forecast          Projection (?days=)
    POST   /api/reps/{repID}/adjustments       Manual adjustment
    POST   /api/reps/{repID}/pending/{id}/void Void open pending balance
    GET    /api/reps/{repID}/pipeline          Open pipeline deals

  Payroll and pipeline:
    POST   /api/payroll/close                  Pay a pending entry
    POST   /api/pipeline                       Create or update pipeline deal
    POST   /api/pipeline/{dealID}/status       Mark deal open, won or lost

  Ledger audit:
    GET    /api/transactions/recent            Latest entries, all reps (?limit=)

  Reconciliation:
    GET    /api/reconciliation/runs            Stored results (?status=)
    POST   /api/reconciliation/run             Sweep all reps now

  Export:
    GET    /api/export                         CSV or XLSX (?format=&kind=&period=)

  Scenarios:
    GET    /api/scenarios                      List demo scenarios
    POST   /api/scenarios/load                 Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON {error, code, details}:
  - 400 invalid_request: validation errors, invalid input
  - 404 not_found: unknown plan or rep
  - 409 conflict: duplicate idempotency key or plan version
  - 409 ledger_mismatch: strict summary of an unbalanced ledger
  - 422 plan_misconfigured: plan or rep setup prevents computation
  - 500 internal: everything else

  An unbalanced ledger is not an error for the non-strict summary; the
  mismatch is part of the response body. A forecast with fewer than two
  weeks of history is a 200 with code insufficient_data.

SECURITY NOTE:
  No authentication. Put the service behind the payroll gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - scheduler.go: Nightly reconciliation sweep
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/export"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/metrics"
	"github.com/warp/commission-engine/store/sqlite"
)

// Error codes in ErrorResponse.Code.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeLedgerMismatch    = "ledger_mismatch"
	CodePlanMisconfigured = "plan_misconfigured"
	CodeInsufficientData  = "insufficient_data"
	CodeInternal          = "internal"
)

const defaultMaxForecastDays = 365

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures NewHandler. The zero value is usable.
type Options struct {
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	Tolerance       *decimal.Decimal // nil = commission.DefaultTolerance
	LookbackWeeks   int
	MaxForecastDays int
	Now             func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Factory    *factory.Factory
	Ledger     *commission.DefaultLedger
	Service    *commission.Service
	Reconciler *commission.Reconciler
	Forecaster *commission.Forecaster
	Scheduler  *ReconciliationScheduler
	Logger     *zap.Logger

	maxForecastDays int
	validate        *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the engine over the store. The store serves as ledger
// storage, plan catalog, rep directory and pipeline source.
func NewHandler(store *sqlite.Store, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var observer commission.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}

	ledger := commission.NewLedger(store)
	ledger.Logger = logger.Named("ledger")
	ledger.Observer = observer
	ledger.Now = now

	svc := commission.NewService(store, store, ledger)
	svc.Logger = logger.Named("service")
	svc.Observer = observer
	svc.Now = now

	rec := commission.NewReconciler(ledger, store, store)
	if opts.Tolerance != nil {
		rec.Tolerance = *opts.Tolerance
	}
	rec.Logger = logger.Named("reconcile")
	rec.Observer = observer
	rec.Now = now

	fc := commission.NewForecaster(ledger)
	fc.Pipeline = store
	fc.Reps = store
	fc.Plans = store
	if opts.LookbackWeeks > 0 {
		fc.LookbackWeeks = opts.LookbackWeeks
	}
	fc.Logger = logger.Named("forecast")
	fc.Observer = observer
	fc.Now = now

	maxDays := opts.MaxForecastDays
	if maxDays <= 0 {
		maxDays = defaultMaxForecastDays
	}

	sched := NewReconciliationScheduler(rec, store, logger.Named("scheduler"))
	sched.Metrics = opts.Metrics
	sched.Now = now

	return &Handler{
		Store:           store,
		Factory:         factory.New(),
		Ledger:          ledger,
		Service:         svc,
		Reconciler:      rec,
		Forecaster:      fc,
		Scheduler:       sched,
		Logger:          logger,
		maxForecastDays: maxDays,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

// ListPlans returns all registered plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Store.Plans(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list plans", err)
		return
	}
	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = h.toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlan registers a plan from its JSON definition. Plans are
// immutable once registered; a changed plan needs a new ID.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var pj factory.PlanJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", CodeInvalidRequest, err)
		return
	}
	plan, err := h.Factory.PlanFromJSON(pj)
	if err != nil {
		h.writeDomainError(w, "Invalid plan", err)
		return
	}
	if err := h.Store.RegisterPlan(r.Context(), plan); err != nil {
		h.writeDomainError(w, "Failed to register plan", err)
		return
	}
	h.Logger.Info("plan registered", zap.String("plan_id", string(plan.ID)), zap.Int("tiers", len(plan.Tiers)))
	writeJSON(w, http.StatusCreated, h.toPlanDTO(plan))
}

// GetPlan returns a single plan definition.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Store.Plan(r.Context(), commission.PlanID(chi.URLParam(r, "planID")))
	if err != nil {
		h.writeDomainError(w, "Plan not found", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPlanDTO(plan))
}

func (h *Handler) toPlanDTO(p commission.Plan) PlanDTO {
	return PlanDTO{ID: string(p.ID), Name: p.Name, Version: p.Version, Config: h.Factory.PlanToJSON(p)}
}

// =============================================================================
// REP HANDLERS
// =============================================================================

// ListReps returns all reps.
func (h *Handler) ListReps(w http.ResponseWriter, r *http.Request) {
	reps, err := h.Store.Reps(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list reps", err)
		return
	}
	dtos := make([]factory.RepJSON, len(reps))
	for i, rep := range reps {
		dtos[i] = h.Factory.RepToJSON(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveRep creates or updates a rep. The rep's plan must exist.
func (h *Handler) SaveRep(w http.ResponseWriter, r *http.Request) {
	var rj factory.RepJSON
	if err := json.NewDecoder(r.Body).Decode(&rj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", CodeInvalidRequest, err)
		return
	}
	rep, err := h.Factory.RepFromJSON(rj)
	if err != nil {
		h.writeDomainError(w, "Invalid rep", err)
		return
	}
	if _, err := h.Store.Plan(r.Context(), rep.PlanID); err != nil {
		h.writeDomainError(w, "Unknown plan", err)
		return
	}
	if err := h.Store.SaveRep(r.Context(), rep); err != nil {
		h.writeDomainError(w, "Failed to save rep", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Factory.RepToJSON(rep))
}

// GetRep returns a single rep.
func (h *Handler) GetRep(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Store.Rep(r.Context(), repParam(r))
	if err != nil {
		h.writeDomainError(w, "Rep not found", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.RepToJSON(rep))
}

// =============================================================================
// EARNINGS
// =============================================================================

// Quote computes the commission for a sales amount without recording it.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	earning, att, err := h.Service.Quote(r.Context(), repParam(r), req.SalesAmount, toDeal(req.Deal))
	if err != nil {
		h.writeDomainError(w, "Failed to compute commission", err)
		return
	}
	writeJSON(w, http.StatusOK, toEarningDTO(earning, att))
}

// RecordEarning computes the commission for a closed deal and appends the
// Earned and Pending entries.
func (h *Handler) RecordEarning(w http.ResponseWriter, r *http.Request) {
	var req RecordEarningRequest
	if !h.decode(w, r, &req) {
		return
	}
	ts, err := parseDate(req.Timestamp)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid timestamp", CodeInvalidRequest, err)
		return
	}

	rec, err := h.Service.RecordEarning(r.Context(), commission.EarningInput{
		RepID:          repParam(r),
		SalesAmount:    req.SalesAmount,
		Deal:           toDeal(req.Deal),
		Timestamp:      ts,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      req.CreatedBy,
		Note:           req.Note,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record earning", err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordEarningResponse{
		Earning: toEarningDTO(rec.Earning, rec.Attainment),
		Earned:  toTransactionDTO(rec.Earned),
		Pending: toTransactionDTO(rec.Pending),
	})
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

// GetTransactions returns ledger entries in ledger order, optionally
// limited to ?period= (2025, 2025-Q2, 2025-03).
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	period, err := commission.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", CodeInvalidRequest, err)
		return
	}
	entries, err := h.Ledger.Entries(r.Context(), repParam(r), period)
	if err != nil {
		h.writeDomainError(w, "Failed to load transactions", err)
		return
	}
	dtos := []TransactionDTO{}
	for tx := range entries {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, dtos)
}

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// GetRecentTransactions returns the latest appended entries across all
// reps, newest first.
func (h *Handler) GetRecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxRecentLimit {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be between 1 and %d", maxRecentLimit), CodeInvalidRequest, err)
			return
		}
		limit = n
	}
	txs, err := h.Store.RecentTransactions(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetPending returns the rep's pending entries that still have an open
// balance.
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.Ledger.OpenPending(r.Context(), repParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to load pending", err)
		return
	}
	dtos := make([]OpenPendingDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, OpenPendingDTO{
			PendingID: string(it.Pending.ID),
			Original:  it.Pending.Amount.StringFixed(2),
			Open:      it.Open.StringFixed(2),
			Timestamp: it.Pending.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSummary reconciles the rep's ledger for ?period=, defaulting to the
// rep's current quota period. With ?strict=true an unbalanced ledger is a
// 409 ledger_mismatch instead of a 200 carrying the mismatch.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repID := repParam(r)

	period, err := h.periodFor(ctx, repID, r.URL.Query().Get("period"))
	if err != nil {
		h.writeDomainError(w, "Invalid period", err)
		return
	}
	rec, err := h.Reconciler.Reconcile(ctx, repID, period)
	if err != nil {
		h.writeDomainError(w, "Failed to reconcile", err)
		return
	}
	strict, _ := strconv.ParseBool(r.URL.Query().Get("strict"))
	if strict && !rec.Balanced() {
		m := rec.Mismatch
		writeError(w, http.StatusConflict, "Ledger does not reconcile", CodeLedgerMismatch,
			fmt.Errorf("expected %s, actual %s, delta %s",
				m.Expected.StringFixed(2), m.Actual.StringFixed(2), m.Delta.StringFixed(2)))
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(rec))
}

// GetForecast projects the rep's commission for ?days= (default 30).
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	days := 30
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > h.maxForecastDays {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("days must be between 1 and %d", h.maxForecastDays), CodeInvalidRequest, err)
			return
		}
		days = n
	}
	repID := repParam(r)
	if _, err := h.Store.Rep(r.Context(), repID); err != nil {
		h.writeDomainError(w, "Rep not found", err)
		return
	}
	fc, err := h.Forecaster.Forecast(r.Context(), repID, days)
	if err != nil {
		h.writeDomainError(w, "Failed to forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastDTO(fc))
}

// =============================================================================
// CORRECTIONS AND PAYROLL
// =============================================================================

// CreateAdjustment records a manual correction. Negative amounts are
// clawbacks.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	ts, err := parseDate(req.Timestamp)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid timestamp", CodeInvalidRequest, err)
		return
	}
	txs, err := h.Service.Adjust(r.Context(), commission.AdjustmentInput{
		RepID:          repParam(r),
		Amount:         req.Amount,
		RefID:          commission.TransactionID(req.RefID),
		Timestamp:      ts,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTOs(txs))
}

// VoidPending cancels the open remainder of a pending entry.
func (h *Handler) VoidPending(w http.ResponseWriter, r *http.Request) {
	var req VoidRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.Service.VoidPending(r.Context(), repParam(r),
		commission.TransactionID(chi.URLParam(r, "pendingID")),
		req.Reason, req.IdempotencyKey, req.CreatedBy)
	if err != nil {
		h.writeDomainError(w, "Failed to void pending", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ClosePayroll records a disbursement against a pending entry.
func (h *Handler) ClosePayroll(w http.ResponseWriter, r *http.Request) {
	var req PayrollCloseRequest
	if !h.decode(w, r, &req) {
		return
	}
	payDate, err := parseDate(req.PayDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pay date", CodeInvalidRequest, err)
		return
	}
	in := commission.PayoutInput{
		RepID:          commission.RepID(req.RepID),
		PendingID:      commission.TransactionID(req.PendingID),
		PayDate:        payDate,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      req.CreatedBy,
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			writeError(w, http.StatusBadRequest, "Amount must be positive", CodeInvalidRequest, nil)
			return
		}
		in.Amount = *req.Amount
	}
	tx, err := h.Service.ClosePending(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to close pending", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// =============================================================================
// PIPELINE
// =============================================================================

// SaveDeal creates or updates an open pipeline deal.
func (h *Handler) SaveDeal(w http.ResponseWriter, r *http.Request) {
	var req PipelineDealRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Amount must not be negative", CodeInvalidRequest, nil)
		return
	}
	if req.Probability.IsNegative() || req.Probability.GreaterThan(decimal.NewFromInt(1)) {
		writeError(w, http.StatusBadRequest, "Probability must be between 0 and 1", CodeInvalidRequest, nil)
		return
	}
	closeAt, err := parseDate(req.ExpectedClose)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expected_close", CodeInvalidRequest, err)
		return
	}
	if _, err := h.Store.Rep(r.Context(), commission.RepID(req.RepID)); err != nil {
		h.writeDomainError(w, "Rep not found", err)
		return
	}
	deal := commission.PipelineDeal{
		ID:            req.ID,
		RepID:         commission.RepID(req.RepID),
		Amount:        req.Amount,
		Probability:   req.Probability,
		ExpectedClose: closeAt,
	}
	if err := h.Store.SaveDeal(r.Context(), deal); err != nil {
		h.writeDomainError(w, "Failed to save deal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDealDTO(deal))
}

// SetDealStatus marks a pipeline deal won or lost (or reopens it).
func (h *Handler) SetDealStatus(w http.ResponseWriter, r *http.Request) {
	var req DealStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "dealID")
	if err := h.Store.SetDealStatus(r.Context(), id, sqlite.DealStatus(req.Status)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Deal not found", CodeNotFound, err)
			return
		}
		h.writeDomainError(w, "Failed to update deal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

// GetPipeline returns the rep's open deals.
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	deals, err := h.Store.OpenDeals(r.Context(), repParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to load pipeline", err)
		return
	}
	dtos := make([]PipelineDealDTO, 0, len(deals))
	for _, d := range deals {
		dtos = append(dtos, toDealDTO(d))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func toDealDTO(d commission.PipelineDeal) PipelineDealDTO {
	return PipelineDealDTO{
		ID:            d.ID,
		RepID:         string(d.RepID),
		Amount:        d.Amount.StringFixed(2),
		Probability:   d.Probability.String(),
		ExpectedClose: d.ExpectedClose.Format(time.DateOnly),
	}
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

// ListReconciliationRuns returns stored sweep results, filtered by ?status=.
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", sqlite.RunBalanced, sqlite.RunMismatch, sqlite.RunFailed:
	default:
		writeError(w, http.StatusBadRequest, "status must be balanced, mismatch or failed", CodeInvalidRequest, nil)
		return
	}
	runs, err := h.Store.ReconciliationRuns(r.Context(), status)
	if err != nil {
		h.writeDomainError(w, "Failed to list reconciliation runs", err)
		return
	}
	dtos := make([]ReconciliationRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, ReconciliationRunDTO{
			ID:          run.ID,
			RepID:       run.RepID,
			PeriodStart: run.PeriodStart.Format(time.DateOnly),
			PeriodEnd:   run.PeriodEnd.Format(time.DateOnly),
			Status:      run.Status,
			Expected:    run.Expected.StringFixed(2),
			Actual:      run.Actual.StringFixed(2),
			Delta:       run.Delta.StringFixed(2),
			EntryCount:  run.EntryCount,
			Error:       run.Error,
			RunAt:       run.RunAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunReconciliation sweeps every rep now instead of waiting for the
// schedule.
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.writeDomainError(w, "Reconciliation sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepDTO{Balanced: res.Balanced, Mismatched: res.Mismatched, Failed: res.Failed})
}

// =============================================================================
// EXPORT
// =============================================================================

// Export writes summaries or ledger entries for every rep.
//
//	?format=csv|xlsx   default csv
//	?kind=summary|ledger  csv only; xlsx carries both sheets
//	?period=           default: each rep's current quota period (summary),
//	                   whole ledger (ledger)
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid format", CodeInvalidRequest, err)
		return
	}
	kind := q.Get("kind")
	if kind == "" {
		kind = "summary"
	}
	if kind != "summary" && kind != "ledger" {
		writeError(w, http.StatusBadRequest, "kind must be summary or ledger", CodeInvalidRequest, nil)
		return
	}
	periodParam := q.Get("period")
	period, err := commission.ParsePeriod(periodParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", CodeInvalidRequest, err)
		return
	}

	reps, err := h.Store.Reps(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to list reps", err)
		return
	}

	var recs []*commission.Reconciliation
	var txs []commission.Transaction
	for _, rep := range reps {
		if format == export.FormatXLSX || kind == "summary" {
			p := period
			if periodParam == "" {
				p = rep.CurrentPeriod(h.Reconciler.Now())
			}
			rec, err := h.Reconciler.Reconcile(ctx, rep.ID, p)
			if err != nil {
				h.writeDomainError(w, "Failed to reconcile", err)
				return
			}
			recs = append(recs, rec)
		}
		if format == export.FormatXLSX || kind == "ledger" {
			entries, err := h.Ledger.Entries(ctx, rep.ID, period)
			if err != nil {
				h.writeDomainError(w, "Failed to load transactions", err)
				return
			}
			for tx := range entries {
				txs = append(txs, tx)
			}
		}
	}

	name := "commission-" + kind
	if format == export.FormatXLSX {
		name = "commission"
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, name, format))

	switch {
	case format == export.FormatXLSX:
		err = export.Workbook(w, recs, txs)
	case kind == "ledger":
		err = export.TransactionsCSV(w, txs)
	default:
		err = export.SummariesCSV(w, recs)
	}
	if err != nil {
		// Headers are already sent; log only.
		h.Logger.Error("export failed", zap.String("format", string(format)), zap.Error(err))
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to status and code. Unknown errors
// are logged and returned as 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, code, err)
}

func statusFor(err error) (int, string) {
	switch {
	case commission.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case commission.IsPlanMisconfigured(err):
		return http.StatusUnprocessableEntity, CodePlanMisconfigured
	case errors.Is(err, commission.ErrReconciliationMismatch):
		return http.StatusConflict, CodeLedgerMismatch
	case errors.Is(err, commission.ErrDuplicateIdempotencyKey),
		errors.Is(err, commission.ErrDuplicatePlan):
		return http.StatusConflict, CodeConflict
	case commission.IsClientError(err), errors.Is(err, factory.ErrInvalidRep):
		return http.StatusBadRequest, CodeInvalidRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", CodeInvalidRequest, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", CodeInvalidRequest, err)
		return false
	}
	return true
}

func repParam(r *http.Request) commission.RepID {
	return commission.RepID(chi.URLParam(r, "repID"))
}

// periodFor parses s, falling back to the rep's current quota period.
func (h *Handler) periodFor(ctx context.Context, repID commission.RepID, s string) (commission.Period, error) {
	if strings.TrimSpace(s) != "" {
		return commission.ParsePeriod(s)
	}
	rep, err := h.Store.Rep(ctx, repID)
	if err != nil {
		return commission.Period{}, err
	}
	return rep.CurrentPeriod(h.Reconciler.Now()), nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty returns the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
