/*
forecast.go - Short-term payout projection

PURPOSE:
  Projects a rep's earned commission for the next N days from recent
  velocity. Forecasts are advisory: they never write to the ledger and are
  never used for payroll.

METHOD:
  1. Bucket Earned entries of the last LookbackWeeks into weekly totals.
  2. Drop leading empty weeks (the rep had not started yet).
  3. Fit a least-squares line through the weekly series.
  4. For each day of the window, project weekly(x) / 7, clamped at zero.
  5. Optionally add open pipeline deals expected to close inside the
     window: amount * probability * base rate / 100 on their close day.

  With fewer than two weeks holding data the trend is meaningless; the
  forecast comes back empty with InsufficientData set.
*/
package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultLookbackWeeks = 12

var seven = decimal.NewFromInt(7)

// PipelineDeal is an open opportunity from the CRM.
type PipelineDeal struct {
	ID            string
	RepID         RepID
	Amount        decimal.Decimal
	Probability   decimal.Decimal // 0..1
	ExpectedClose time.Time
}

// PipelineSource supplies open deals for a rep.
type PipelineSource interface {
	OpenDeals(ctx context.Context, repID RepID) ([]PipelineDeal, error)
}

type ForecastPoint struct {
	Date      time.Time
	Projected decimal.Decimal // trend + pipeline
	Pipeline  decimal.Decimal // pipeline portion of Projected
}

type Forecast struct {
	RepID      RepID
	AsOf       time.Time
	WindowDays int

	Points []ForecastPoint
	Total  decimal.Decimal

	WeeklySlope      decimal.Decimal // change in weekly earnings per week
	WeeklyIntercept  decimal.Decimal // fitted value of the first counted week
	DataPoints       int             // weeks with earned entries
	InsufficientData bool
}

type Forecaster struct {
	Ledger        Ledger
	Pipeline      PipelineSource // optional
	Reps          RepSource      // required for pipeline contribution
	Plans         PlanCatalog    // required for pipeline contribution
	LookbackWeeks int
	Logger        *zap.Logger
	Observer      Observer
	Now           func() time.Time
}

func NewForecaster(ledger Ledger) *Forecaster {
	return &Forecaster{
		Ledger:        ledger,
		LookbackWeeks: DefaultLookbackWeeks,
		Logger:        zap.NewNop(),
		Now:           time.Now,
	}
}

// Forecast projects windowDays days starting the day after now.
func (f *Forecaster) Forecast(ctx context.Context, repID RepID, windowDays int) (Forecast, error) {
	if windowDays <= 0 {
		return Forecast{}, ErrInvalidForecastWindow
	}
	asOf := f.now()
	fc := Forecast{RepID: repID, AsOf: asOf, WindowDays: windowDays, Total: decimal.Zero}

	weeks := f.LookbackWeeks
	if weeks <= 0 {
		weeks = DefaultLookbackWeeks
	}
	end := startOfDay(asOf).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -7*weeks)

	entries, err := f.Ledger.Entries(ctx, repID, Period{Start: start, End: end})
	if err != nil {
		return Forecast{}, fmt.Errorf("load ledger for %s: %w", repID, err)
	}
	buckets := make([]decimal.Decimal, weeks)
	filled := make([]bool, weeks)
	for tx := range entries {
		if tx.Kind != KindEarned {
			continue
		}
		i := int(tx.Timestamp.Sub(start) / (7 * 24 * time.Hour))
		if i < 0 || i >= weeks {
			continue
		}
		buckets[i] = buckets[i].Add(tx.Amount)
		filled[i] = true
	}

	first := -1
	for i, ok := range filled {
		if ok {
			fc.DataPoints++
			if first < 0 {
				first = i
			}
		}
	}
	if fc.DataPoints < 2 {
		fc.InsufficientData = true
		observerOrNop(f.Observer).Forecasted(true)
		return fc, nil
	}

	series := buckets[first:]
	intercept, slope := linearFit(series)
	fc.WeeklyIntercept = intercept
	fc.WeeklySlope = slope

	pipeline, err := f.pipelineByDay(ctx, repID, end, windowDays)
	if err != nil {
		return Forecast{}, err
	}

	last := decimal.NewFromInt(int64(len(series) - 1))
	for d := 1; d <= windowDays; d++ {
		x := last.Add(decimal.NewFromInt(int64(d)).Div(seven))
		weekly := intercept.Add(slope.Mul(x))
		if weekly.IsNegative() {
			weekly = decimal.Zero
		}
		date := end.AddDate(0, 0, d-1)
		p := ForecastPoint{Date: date, Pipeline: pipeline[date.Format(time.DateOnly)]}
		p.Projected = RoundCents(weekly.Div(seven)).Add(p.Pipeline)
		fc.Points = append(fc.Points, p)
		fc.Total = fc.Total.Add(p.Projected)
	}

	observerOrNop(f.Observer).Forecasted(false)
	f.logger().Debug("forecast computed",
		zap.String("rep_id", string(repID)),
		zap.Int("window_days", windowDays),
		zap.Int("data_points", fc.DataPoints),
		zap.String("total", fc.Total.StringFixed(CentPlaces)),
	)
	return fc, nil
}

// pipelineByDay returns expected commission from open deals keyed by the
// UTC date (YYYY-MM-DD) they are expected to close, limited to
// [from, from+windowDays).
func (f *Forecaster) pipelineByDay(ctx context.Context, repID RepID, from time.Time, windowDays int) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	if f.Pipeline == nil || f.Reps == nil || f.Plans == nil {
		return out, nil
	}
	deals, err := f.Pipeline.OpenDeals(ctx, repID)
	if err != nil {
		return nil, fmt.Errorf("pipeline for %s: %w", repID, err)
	}
	if len(deals) == 0 {
		return out, nil
	}
	rep, err := f.Reps.Rep(ctx, repID)
	if err != nil {
		return nil, fmt.Errorf("rep %s: %w", repID, err)
	}
	plan, err := f.Plans.Plan(ctx, rep.PlanID)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", rep.PlanID, err)
	}

	window := Period{Start: from, End: from.AddDate(0, 0, windowDays)}
	for _, deal := range deals {
		day := startOfDay(deal.ExpectedClose)
		if !window.Contains(day) {
			continue
		}
		expected := RoundCents(percentOf(deal.Amount.Mul(deal.Probability), plan.BaseRate))
		key := day.Format(time.DateOnly)
		out[key] = out[key].Add(expected)
	}
	return out, nil
}

// linearFit returns the least-squares intercept and slope of ys against
// x = 0..n-1. Requires len(ys) >= 2.
func linearFit(ys []decimal.Decimal) (intercept, slope decimal.Decimal) {
	n := decimal.NewFromInt(int64(len(ys)))
	sumX, sumY, sumXY, sumXX := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i, y := range ys {
		x := decimal.NewFromInt(int64(i))
		sumX = sumX.Add(x)
		sumY = sumY.Add(y)
		sumXY = sumXY.Add(x.Mul(y))
		sumXX = sumXX.Add(x.Mul(x))
	}
	denom := n.Mul(sumXX).Sub(sumX.Mul(sumX))
	if denom.IsZero() {
		return sumY.Div(n), decimal.Zero
	}
	slope = n.Mul(sumXY).Sub(sumX.Mul(sumY)).Div(denom)
	intercept = sumY.Sub(slope.Mul(sumX)).Div(n)
	return intercept, slope
}

func (f *Forecaster) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func (f *Forecaster) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}
