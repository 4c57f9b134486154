/*
calculator.go - Earned commission for a sales amount

PURPOSE:
  Applies the resolved tier rate and every applicable bonus rule to a
  sales amount. The calculator is a pure function of its inputs: it never
  reads or writes the ledger. Service.RecordEarning is the caller that
  persists the result.

RULES:
  rate  = tier rate, or plan base rate if the rep is not accelerator eligible
  base  = salesAmount * rate / 100
  bonus = sum of applicable rules (fixed: amount once, percent: salesAmount * pct / 100)
  total = base + bonus

  A bonus rule applies when its category is enabled on the rep, its scope
  includes the plan, and the deal satisfies its trigger.

SEE ALSO:
  - attainment.go: Produces the Attainment passed in here
  - service.go: Resolve -> compute -> record orchestration
*/
package commission

import (
	"math"

	"github.com/shopspring/decimal"
)

// AppliedBonus is one bonus rule that contributed to an earning.
type AppliedBonus struct {
	RuleID   string
	Name     string
	Category BonusCategory
	Amount   decimal.Decimal
}

// Earning is the breakdown of a single commission computation.
type Earning struct {
	RepID       RepID
	PlanID      PlanID
	SalesAmount decimal.Decimal
	Attainment  decimal.Decimal // unrounded percentage
	Tier        Tier
	Rate        decimal.Decimal // rate actually applied
	Accelerated bool

	Base       decimal.Decimal
	Bonuses    []AppliedBonus
	BonusTotal decimal.Decimal
	Total      decimal.Decimal
}

// SalesAmountFromFloat converts an external float to a sales amount,
// rejecting NaN, infinities and negative values.
func SalesAmountFromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return decimal.Zero, ErrInvalidSalesAmount
	}
	return decimal.NewFromFloat(v), nil
}

// Calculator computes earned commission. The zero value is ready to use.
type Calculator struct{}

// ComputeEarned returns the commission earned on salesAmount.
func (Calculator) ComputeEarned(rep RepAccount, plan Plan, salesAmount decimal.Decimal, att Attainment, deal Deal) (Earning, error) {
	if salesAmount.IsNegative() {
		return Earning{}, ErrInvalidSalesAmount
	}
	if rep.PlanID != plan.ID {
		return Earning{}, ErrPlanMismatch
	}
	if !plan.RoleEligible(rep.Role) {
		return Earning{}, ErrRoleNotEligible
	}

	e := Earning{
		RepID:       rep.ID,
		PlanID:      plan.ID,
		SalesAmount: salesAmount,
		Attainment:  att.Percent,
		Tier:        att.Tier,
		Rate:        att.Tier.Rate,
		Accelerated: att.Accelerated,
		BonusTotal:  decimal.Zero,
	}
	if !rep.AcceleratorEligible {
		e.Tier = plan.BaseTier()
		e.Rate = plan.BaseRate
		e.Accelerated = false
	}
	e.Base = RoundCents(percentOf(salesAmount, e.Rate))

	if deal.Amount.IsZero() {
		deal.Amount = salesAmount
	}
	for _, rule := range plan.Bonuses {
		if !rep.BonusEnabled(rule.Category) || !rule.AppliesToPlan(plan.ID) || !rule.Triggered(deal) {
			continue
		}
		amt := RoundCents(rule.amount(salesAmount))
		e.Bonuses = append(e.Bonuses, AppliedBonus{
			RuleID:   rule.ID,
			Name:     rule.Name,
			Category: rule.Category,
			Amount:   amt,
		})
		e.BonusTotal = e.BonusTotal.Add(amt)
	}

	e.Total = e.Base.Add(e.BonusTotal)
	return e, nil
}
