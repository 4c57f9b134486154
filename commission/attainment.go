package commission

import "github.com/shopspring/decimal"

// =============================================================================
// ATTAINMENT RESOLVER
// =============================================================================

// Attainment is the result of resolving a rep's position on a plan's
// accelerator schedule.
type Attainment struct {
	YTDSales decimal.Decimal
	Quota    decimal.Decimal

	// Percent is ytdSales / quota * 100, unrounded. Tier selection compares
	// against this exact value so 99.999% never lands on the 100% tier.
	Percent decimal.Decimal

	Tier Tier
	// Accelerated is false when attainment is below every threshold and the
	// virtual base tier was selected.
	Accelerated bool
}

// Rounded returns the attainment percentage for display (2 places).
func (a Attainment) Rounded() decimal.Decimal {
	return a.Percent.Round(CentPlaces)
}

// ResolveTier computes attainment and selects the tier whose threshold is
// the highest one <= attainment. Pure; safe for concurrent use.
func ResolveTier(plan Plan, ytdSales, quota decimal.Decimal) (Attainment, error) {
	if !quota.IsPositive() {
		return Attainment{}, ErrInvalidQuota
	}
	if ytdSales.IsNegative() {
		return Attainment{}, ErrInvalidSalesAmount
	}

	pct := ytdSales.Mul(hundred).Div(quota)
	att := Attainment{
		YTDSales: ytdSales,
		Quota:    quota,
		Percent:  pct,
		Tier:     plan.BaseTier(),
	}

	// Tiers are strictly increasing, so the last match is the highest.
	for _, tier := range plan.Tiers {
		if tier.Threshold.GreaterThan(pct) {
			break
		}
		att.Tier = tier
		att.Accelerated = true
	}
	return att, nil
}
