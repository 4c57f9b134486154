/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal strings in both directions ("24437.50"). Requests
  also accept JSON numbers.

VALIDATION:
  Request types carry validator tags checked by Handler.decode. Domain
  rules (negative sales, plan eligibility) stay in the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/plan.go: PlanJSON and RepJSON
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// REQUESTS
// =============================================================================

// DealRequest describes the deal a sales amount came from.
type DealRequest struct {
	ID         string           `json:"id" validate:"max=128"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	NewLogo    bool             `json:"new_logo"`
	TermMonths int              `json:"term_months" validate:"min=0,max=120"`
	Upsell     bool             `json:"upsell"`
	Renewal    bool             `json:"renewal"`
	ClosedAt   string           `json:"closed_at,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type QuoteRequest struct {
	SalesAmount decimal.Decimal `json:"sales_amount"`
	Deal        DealRequest     `json:"deal"`
}

type RecordEarningRequest struct {
	SalesAmount    decimal.Decimal `json:"sales_amount"`
	Deal           DealRequest     `json:"deal"`
	Timestamp      string          `json:"timestamp,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" validate:"max=200"`
	CreatedBy      string          `json:"created_by,omitempty" validate:"max=100"`
	Note           string          `json:"note,omitempty" validate:"max=500"`
}

type AdjustmentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	RefID          string          `json:"ref_id,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	Note           string          `json:"note" validate:"required,max=500"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" validate:"max=200"`
	CreatedBy      string          `json:"created_by,omitempty" validate:"max=100"`
}

type VoidRequest struct {
	Reason         string `json:"reason" validate:"required,max=500"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"max=200"`
	CreatedBy      string `json:"created_by,omitempty" validate:"max=100"`
}

// PayrollCloseRequest is the payroll boundary: one disbursement against
// one Pending entry. A missing amount pays the whole open balance.
type PayrollCloseRequest struct {
	RepID          string           `json:"rep_id" validate:"required"`
	PendingID      string           `json:"pending_id" validate:"required"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	PayDate        string           `json:"pay_date" validate:"required"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"max=200"`
	CreatedBy      string           `json:"created_by,omitempty" validate:"max=100"`
}

type PipelineDealRequest struct {
	ID            string          `json:"id" validate:"required,max=128"`
	RepID         string          `json:"rep_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Probability   decimal.Decimal `json:"probability"`
	ExpectedClose string          `json:"expected_close" validate:"required"`
}

// DealStatusRequest closes a pipeline deal. Won or lost deals leave the
// forecast; the commission itself is recorded via the earnings endpoint.
type DealStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open won lost"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type PlanDTO struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Version int              `json:"version"`
	Config  factory.PlanJSON `json:"config"`
}

type AttainmentDTO struct {
	YTDSales    string `json:"ytd_sales"`
	Quota       string `json:"quota"`
	Percent     string `json:"percent"` // rounded to 2dp for display
	TierRate    string `json:"tier_rate"`
	Accelerated bool   `json:"accelerated"`
}

type BonusDTO struct {
	RuleID   string `json:"rule_id"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

type EarningDTO struct {
	RepID       string        `json:"rep_id"`
	PlanID      string        `json:"plan_id"`
	SalesAmount string        `json:"sales_amount"`
	Rate        string        `json:"rate"`
	Accelerated bool          `json:"accelerated"`
	Base        string        `json:"base"`
	Bonuses     []BonusDTO    `json:"bonuses"`
	BonusTotal  string        `json:"bonus_total"`
	Total       string        `json:"total"`
	Attainment  AttainmentDTO `json:"attainment"`
}

type TransactionDTO struct {
	ID             string `json:"id"`
	Seq            int64  `json:"seq"`
	RepID          string `json:"rep_id"`
	Kind           string `json:"kind"`
	Amount         string `json:"amount"`
	Timestamp      string `json:"timestamp"`
	DealRef        string `json:"deal_ref,omitempty"`
	RefID          string `json:"ref_id,omitempty"`
	Note           string `json:"note,omitempty"`
	PayDate        string `json:"pay_date,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	CreatedBy      string `json:"created_by,omitempty"`
	RecordedAt     string `json:"recorded_at"`
}

type RecordEarningResponse struct {
	Earning EarningDTO     `json:"earning"`
	Earned  TransactionDTO `json:"earned"`
	Pending TransactionDTO `json:"pending"`
}

type OpenPendingDTO struct {
	PendingID string `json:"pending_id"`
	Original  string `json:"original"`
	Open      string `json:"open"`
	Timestamp string `json:"timestamp"`
}

type MismatchDTO struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Delta    string `json:"delta"`
}

type SummaryDTO struct {
	RepID       string `json:"rep_id"`
	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`
	AsOf        string `json:"as_of"`
	Earned      string `json:"earned"`
	Adjustments string `json:"adjustments"`
	Paid        string `json:"paid"`
	Pending     string `json:"pending"`
	Attainment  string `json:"attainment,omitempty"`
	Rate        string `json:"rate,omitempty"`
	// AttainmentError explains a missing attainment; totals are still valid.
	AttainmentError string       `json:"attainment_error,omitempty"`
	EntryCount      int          `json:"entry_count"`
	Balanced        bool         `json:"balanced"`
	Mismatch        *MismatchDTO `json:"mismatch,omitempty"`
}

type ForecastPointDTO struct {
	Date      string `json:"date"`
	Projected string `json:"projected"`
	Pipeline  string `json:"pipeline,omitempty"`
}

type ForecastDTO struct {
	RepID            string             `json:"rep_id"`
	AsOf             string             `json:"as_of"`
	WindowDays       int                `json:"window_days"`
	Points           []ForecastPointDTO `json:"points"`
	Total            string             `json:"total"`
	WeeklySlope      string             `json:"weekly_slope"`
	DataPoints       int                `json:"data_points"`
	InsufficientData bool               `json:"insufficient_data"`
	Code             string             `json:"code,omitempty"`
}

type PipelineDealDTO struct {
	ID            string `json:"id"`
	RepID         string `json:"rep_id"`
	Amount        string `json:"amount"`
	Probability   string `json:"probability"`
	ExpectedClose string `json:"expected_close"`
}

type ReconciliationRunDTO struct {
	ID          string `json:"id"`
	RepID       string `json:"rep_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Status      string `json:"status"`
	Expected    string `json:"expected"`
	Actual      string `json:"actual"`
	Delta       string `json:"delta"`
	EntryCount  int    `json:"entry_count"`
	Error       string `json:"error,omitempty"`
	RunAt       string `json:"run_at"`
}

type SweepDTO struct {
	Balanced   int `json:"balanced"`
	Mismatched int `json:"mismatched"`
	Failed     int `json:"failed"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toDeal(d DealRequest) commission.Deal {
	deal := commission.Deal{
		ID:         d.ID,
		NewLogo:    d.NewLogo,
		TermMonths: d.TermMonths,
		Upsell:     d.Upsell,
		Renewal:    d.Renewal,
	}
	if d.Amount != nil {
		deal.Amount = *d.Amount
	}
	if d.ClosedAt != "" {
		deal.ClosedAt, _ = time.Parse(time.DateOnly, d.ClosedAt)
	}
	return deal
}

func toEarningDTO(e commission.Earning, att commission.Attainment) EarningDTO {
	dto := EarningDTO{
		RepID:       string(e.RepID),
		PlanID:      string(e.PlanID),
		SalesAmount: e.SalesAmount.StringFixed(2),
		Rate:        e.Rate.String(),
		Accelerated: e.Accelerated,
		Base:        e.Base.StringFixed(2),
		Bonuses:     []BonusDTO{},
		BonusTotal:  e.BonusTotal.StringFixed(2),
		Total:       e.Total.StringFixed(2),
		Attainment: AttainmentDTO{
			YTDSales:    att.YTDSales.StringFixed(2),
			Quota:       att.Quota.StringFixed(2),
			Percent:     att.Rounded().StringFixed(2),
			TierRate:    att.Tier.Rate.String(),
			Accelerated: att.Accelerated,
		},
	}
	for _, b := range e.Bonuses {
		dto.Bonuses = append(dto.Bonuses, BonusDTO{
			RuleID:   b.RuleID,
			Category: string(b.Category),
			Amount:   b.Amount.StringFixed(2),
		})
	}
	return dto
}

func toTransactionDTO(tx commission.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:             string(tx.ID),
		Seq:            tx.Seq,
		RepID:          string(tx.RepID),
		Kind:           string(tx.Kind),
		Amount:         tx.Amount.StringFixed(2),
		Timestamp:      tx.Timestamp.UTC().Format(time.RFC3339),
		DealRef:        tx.DealRef,
		RefID:          string(tx.RefID),
		Note:           tx.Note,
		IdempotencyKey: tx.IdempotencyKey,
		CreatedBy:      tx.CreatedBy,
		RecordedAt:     tx.RecordedAt.UTC().Format(time.RFC3339),
	}
	if tx.PayDate != nil {
		dto.PayDate = tx.PayDate.Format(time.DateOnly)
	}
	return dto
}

func toTransactionDTOs(txs []commission.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	return dtos
}

func toSummaryDTO(rec *commission.Reconciliation) SummaryDTO {
	s := rec.Summary
	dto := SummaryDTO{
		RepID:       string(s.RepID),
		AsOf:        s.AsOf.UTC().Format(time.RFC3339),
		Earned:      s.Earned.StringFixed(2),
		Adjustments: s.Adjustments.StringFixed(2),
		Paid:        s.Paid.StringFixed(2),
		Pending:     s.Pending.StringFixed(2),
		EntryCount:  s.EntryCount,
		Balanced:    rec.Balanced(),
	}
	if !s.Period.Start.IsZero() {
		dto.PeriodStart = s.Period.Start.Format(time.DateOnly)
	}
	if !s.Period.End.IsZero() {
		dto.PeriodEnd = s.Period.End.Format(time.DateOnly)
	}
	if !s.Rate.IsZero() {
		dto.Attainment = s.Attainment.Round(2).StringFixed(2)
		dto.Rate = s.Rate.String()
	}
	if rec.AttainmentErr != nil {
		dto.AttainmentError = rec.AttainmentErr.Error()
	}
	if rec.Mismatch != nil {
		dto.Mismatch = &MismatchDTO{
			Expected: rec.Mismatch.Expected.StringFixed(2),
			Actual:   rec.Mismatch.Actual.StringFixed(2),
			Delta:    rec.Mismatch.Delta.StringFixed(2),
		}
	}
	return dto
}

func toForecastDTO(fc commission.Forecast) ForecastDTO {
	dto := ForecastDTO{
		RepID:            string(fc.RepID),
		AsOf:             fc.AsOf.UTC().Format(time.RFC3339),
		WindowDays:       fc.WindowDays,
		Points:           []ForecastPointDTO{},
		Total:            fc.Total.StringFixed(2),
		WeeklySlope:      fc.WeeklySlope.StringFixed(2),
		DataPoints:       fc.DataPoints,
		InsufficientData: fc.InsufficientData,
	}
	if fc.InsufficientData {
		dto.Code = CodeInsufficientData
	}
	for _, p := range fc.Points {
		pt := ForecastPointDTO{
			Date:      p.Date.Format(time.DateOnly),
			Projected: p.Projected.StringFixed(2),
		}
		if !p.Pipeline.IsZero() {
			pt.Pipeline = p.Pipeline.StringFixed(2)
		}
		dto.Points = append(dto.Points, pt)
	}
	return dto
}
