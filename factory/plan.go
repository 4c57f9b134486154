/*
Package factory provides JSON to Go conversion for plans and rep accounts.

PURPOSE:
  Converts JSON plan definitions into commission.Plan values so compensation
  teams can configure plans without code changes. The same JSON is what the
  sqlite store persists and what the HTTP API accepts.

JSON SCHEMA:
  {
    "id": "ae-2025",
    "name": "Account Executive 2025",
    "version": 1,
    "base_rate": "7.0",
    "tiers": [
      {"threshold": "100", "rate": "8.5"},
      {"threshold": "125", "rate": "10.0"}
    ],
    "bonuses": [
      {"id": "new-logo", "category": "new_logo", "effect": "fixed", "value": "1000"},
      {"id": "multi-year", "category": "multi_year", "effect": "percent", "value": "2",
       "min_term_months": 24}
    ],
    "eligible_roles": ["AE"],
    "retroactive_accelerators": true
  }

  Decimal fields accept JSON strings or numbers.

VALIDATION:
  Structural checks (required fields, enum values) use validator tags.
  Semantic checks (tier ordering, rate bounds) are commission.Plan.Validate.

USAGE:
  f := factory.New()
  plan, err := f.ParsePlan(plans.StandardAEJSON("ae-2025", "AE 2025"))

SEE ALSO:
  - commission/plan.go: Plan type and validation
  - plans/presets.go: Preset plan definitions
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
)

// ErrInvalidRep is returned when a rep definition fails validation.
var ErrInvalidRep = errors.New("invalid rep account")

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type PlanJSON struct {
	ID                      string          `json:"id" validate:"required,max=64"`
	Name                    string          `json:"name" validate:"required,max=200"`
	Version                 int             `json:"version" validate:"min=0"`
	BaseRate                decimal.Decimal `json:"base_rate"`
	Tiers                   []TierJSON      `json:"tiers" validate:"dive"`
	Bonuses                 []BonusJSON     `json:"bonuses,omitempty" validate:"dive"`
	EligibleRoles           []string        `json:"eligible_roles,omitempty" validate:"dive,required"`
	RetroactiveAccelerators bool            `json:"retroactive_accelerators"`
}

type TierJSON struct {
	Threshold decimal.Decimal `json:"threshold"`
	Rate      decimal.Decimal `json:"rate"`
}

type BonusJSON struct {
	ID            string           `json:"id" validate:"required"`
	Name          string           `json:"name,omitempty"`
	Category      string           `json:"category" validate:"required,oneof=new_logo multi_year upsell volume retention"`
	Effect        string           `json:"effect" validate:"required,oneof=fixed percent"`
	Value         decimal.Decimal  `json:"value"`
	MinDealAmount *decimal.Decimal `json:"min_deal_amount,omitempty"`
	MinTermMonths int              `json:"min_term_months,omitempty" validate:"min=0"`
	PlanScope     []string         `json:"plan_scope,omitempty"`
}

type RepJSON struct {
	ID                  string          `json:"id" validate:"required,max=64"`
	Name                string          `json:"name" validate:"required"`
	Role                string          `json:"role" validate:"required"`
	PlanID              string          `json:"plan_id" validate:"required"`
	AnnualQuota         decimal.Decimal `json:"annual_quota"`
	QuotaPeriod         string          `json:"quota_period,omitempty" validate:"omitempty,oneof=monthly quarterly annual"`
	YTDSales            decimal.Decimal `json:"ytd_sales"`
	AcceleratorEligible bool            `json:"accelerator_eligible"`
	BonusEligibility    []string        `json:"bonus_eligibility,omitempty" validate:"dive,oneof=new_logo multi_year upsell volume retention"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts between JSON definitions and engine types.
type Factory struct {
	validate *validator.Validate
}

func New() *Factory {
	return &Factory{validate: validator.New()}
}

// ParsePlan parses and validates a JSON plan.
func (f *Factory) ParsePlan(jsonStr string) (commission.Plan, error) {
	var pj PlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return commission.Plan{}, fmt.Errorf("parse plan JSON: %w: %v", commission.ErrInvalidPlan, err)
	}
	return f.PlanFromJSON(pj)
}

// PlanFromJSON validates pj and converts it to a commission.Plan.
func (f *Factory) PlanFromJSON(pj PlanJSON) (commission.Plan, error) {
	if err := f.validate.Struct(pj); err != nil {
		return commission.Plan{}, fmt.Errorf("plan %q: %w: %v", pj.ID, commission.ErrInvalidPlan, err)
	}

	plan := commission.Plan{
		ID:                      commission.PlanID(pj.ID),
		Name:                    pj.Name,
		Version:                 pj.Version,
		BaseRate:                pj.BaseRate,
		EligibleRoles:           pj.EligibleRoles,
		RetroactiveAccelerators: pj.RetroactiveAccelerators,
	}
	for _, tj := range pj.Tiers {
		plan.Tiers = append(plan.Tiers, commission.Tier{Threshold: tj.Threshold, Rate: tj.Rate})
	}
	for _, bj := range pj.Bonuses {
		rule := commission.BonusRule{
			ID:       bj.ID,
			Name:     bj.Name,
			Category: commission.BonusCategory(bj.Category),
			Effect: commission.BonusEffect{
				Kind:  commission.EffectKind(bj.Effect),
				Value: bj.Value,
			},
			Condition: commission.BonusCondition{MinTermMonths: bj.MinTermMonths},
		}
		if bj.MinDealAmount != nil {
			rule.Condition.MinDealAmount = *bj.MinDealAmount
		}
		for _, id := range bj.PlanScope {
			rule.PlanScope = append(rule.PlanScope, commission.PlanID(id))
		}
		plan.Bonuses = append(plan.Bonuses, rule)
	}

	if err := plan.Validate(); err != nil {
		return commission.Plan{}, err
	}
	return plan, nil
}

// PlanToJSON converts a plan to its JSON representation.
func (f *Factory) PlanToJSON(p commission.Plan) PlanJSON {
	pj := PlanJSON{
		ID:                      string(p.ID),
		Name:                    p.Name,
		Version:                 p.Version,
		BaseRate:                p.BaseRate,
		Tiers:                   []TierJSON{},
		EligibleRoles:           p.EligibleRoles,
		RetroactiveAccelerators: p.RetroactiveAccelerators,
	}
	for _, t := range p.Tiers {
		pj.Tiers = append(pj.Tiers, TierJSON{Threshold: t.Threshold, Rate: t.Rate})
	}
	for _, b := range p.Bonuses {
		bj := BonusJSON{
			ID:            b.ID,
			Name:          b.Name,
			Category:      string(b.Category),
			Effect:        string(b.Effect.Kind),
			Value:         b.Effect.Value,
			MinTermMonths: b.Condition.MinTermMonths,
		}
		if !b.Condition.MinDealAmount.IsZero() {
			floor := b.Condition.MinDealAmount
			bj.MinDealAmount = &floor
		}
		for _, id := range b.PlanScope {
			bj.PlanScope = append(bj.PlanScope, string(id))
		}
		pj.Bonuses = append(pj.Bonuses, bj)
	}
	return pj
}

// ParseRep parses and validates a JSON rep account.
func (f *Factory) ParseRep(jsonStr string) (commission.RepAccount, error) {
	var rj RepJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return commission.RepAccount{}, fmt.Errorf("parse rep JSON: %w: %v", ErrInvalidRep, err)
	}
	return f.RepFromJSON(rj)
}

// RepFromJSON validates rj and converts it to a commission.RepAccount.
func (f *Factory) RepFromJSON(rj RepJSON) (commission.RepAccount, error) {
	if err := f.validate.Struct(rj); err != nil {
		return commission.RepAccount{}, fmt.Errorf("rep %q: %w: %v", rj.ID, ErrInvalidRep, err)
	}
	if !rj.AnnualQuota.IsPositive() {
		return commission.RepAccount{}, fmt.Errorf("rep %q: %w", rj.ID, commission.ErrInvalidQuota)
	}
	if rj.YTDSales.IsNegative() {
		return commission.RepAccount{}, fmt.Errorf("rep %q: %w", rj.ID, commission.ErrInvalidSalesAmount)
	}

	period := commission.QuotaPeriod(rj.QuotaPeriod)
	if period == "" {
		period = commission.QuotaAnnual
	}
	rep := commission.RepAccount{
		ID:                  commission.RepID(rj.ID),
		Name:                rj.Name,
		Role:                rj.Role,
		PlanID:              commission.PlanID(rj.PlanID),
		AnnualQuota:         rj.AnnualQuota,
		QuotaPeriod:         period,
		YTDSales:            rj.YTDSales,
		AcceleratorEligible: rj.AcceleratorEligible,
	}
	if len(rj.BonusEligibility) > 0 {
		rep.BonusEligibility = make(map[commission.BonusCategory]bool, len(rj.BonusEligibility))
		for _, c := range rj.BonusEligibility {
			rep.BonusEligibility[commission.BonusCategory(c)] = true
		}
	}
	return rep, nil
}

// RepToJSON converts a rep account to its JSON representation.
func (f *Factory) RepToJSON(r commission.RepAccount) RepJSON {
	rj := RepJSON{
		ID:                  string(r.ID),
		Name:                r.Name,
		Role:                r.Role,
		PlanID:              string(r.PlanID),
		AnnualQuota:         r.AnnualQuota,
		QuotaPeriod:         string(r.QuotaPeriod),
		YTDSales:            r.YTDSales,
		AcceleratorEligible: r.AcceleratorEligible,
	}
	for c, on := range r.BonusEligibility {
		if on {
			rj.BonusEligibility = append(rj.BonusEligibility, string(c))
		}
	}
	sort.Strings(rj.BonusEligibility)
	return rj
}
