/*
plan.go - Commission plans, accelerator tiers, bonus rules and the catalog

PURPOSE:
  A Plan is the configuration side of the engine: a base rate, an
  accelerator schedule keyed by attainment percentage, and the bonus/SPIFF
  rules that stack on top. Plans are immutable once registered. A change to
  a plan is a new plan ID (e.g. "ae-2025-v2"), so ledger entries computed
  under the old version stay explainable.

TIER SCHEDULE:
  Tiers are sorted by strictly increasing Threshold. The tier used for a
  computation is the highest threshold <= attainment. Attainment below the
  first threshold uses the virtual base tier {Threshold: 0, Rate: BaseRate}.

  Example (standard AE plan, base rate 7.0%):
    attainment  < 100%   -> 7.0%  (virtual base tier)
    threshold     100%   -> 8.5%
    threshold     125%   -> 10.0%

BONUS RULES:
  Each rule has a category (new_logo, multi_year, upsell, volume, retention),
  an effect (fixed amount or additive percentage of the deal) and an optional
  condition. Applicable rules stack additively.

SEE ALSO:
  - attainment.go: Tier resolution
  - calculator.go: Applies rates and bonuses
  - factory/plan.go: JSON representation
*/
package commission

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER
// =============================================================================

// Tier is one step of the accelerator schedule. Threshold and Rate are
// percentages (Rate 8.5 means 8.5% of the sales amount).
type Tier struct {
	Threshold decimal.Decimal
	Rate      decimal.Decimal
}

// =============================================================================
// BONUS RULES
// =============================================================================

type BonusCategory string

const (
	BonusNewLogo   BonusCategory = "new_logo"
	BonusMultiYear BonusCategory = "multi_year"
	BonusUpsell    BonusCategory = "upsell"
	BonusVolume    BonusCategory = "volume"
	BonusRetention BonusCategory = "retention"
)

func (c BonusCategory) Valid() bool {
	switch c {
	case BonusNewLogo, BonusMultiYear, BonusUpsell, BonusVolume, BonusRetention:
		return true
	}
	return false
}

type EffectKind string

const (
	EffectFixed   EffectKind = "fixed"   // flat amount added once per deal
	EffectPercent EffectKind = "percent" // additive percentage of the sales amount
)

type BonusEffect struct {
	Kind  EffectKind
	Value decimal.Decimal
}

// BonusCondition narrows when a rule fires. Zero values mean "no constraint",
// except MinTermMonths for multi_year which defaults to DefaultMultiYearMonths.
type BonusCondition struct {
	MinDealAmount decimal.Decimal
	MinTermMonths int
}

// DefaultMultiYearMonths is the contract length that qualifies as multi-year.
const DefaultMultiYearMonths = 24

type BonusRule struct {
	ID        string
	Name      string
	Category  BonusCategory
	Effect    BonusEffect
	Condition BonusCondition
	PlanScope []PlanID // empty = every plan listing the rule
}

func (b BonusRule) AppliesToPlan(id PlanID) bool {
	return len(b.PlanScope) == 0 || slices.Contains(b.PlanScope, id)
}

// Triggered reports whether the deal satisfies this rule's category and condition.
func (b BonusRule) Triggered(deal Deal) bool {
	if deal.Amount.LessThan(b.Condition.MinDealAmount) {
		return false
	}
	switch b.Category {
	case BonusNewLogo:
		return deal.NewLogo
	case BonusMultiYear:
		minTerm := b.Condition.MinTermMonths
		if minTerm <= 0 {
			minTerm = DefaultMultiYearMonths
		}
		return deal.TermMonths >= minTerm
	case BonusUpsell:
		return deal.Upsell
	case BonusVolume:
		return true // gated by MinDealAmount above
	case BonusRetention:
		return deal.Renewal
	}
	return false
}

// amount returns the bonus for a sales amount.
func (b BonusRule) amount(salesAmount decimal.Decimal) decimal.Decimal {
	if b.Effect.Kind == EffectPercent {
		return percentOf(salesAmount, b.Effect.Value)
	}
	return b.Effect.Value
}

// =============================================================================
// PLAN
// =============================================================================

type Plan struct {
	ID            PlanID
	Name          string
	Version       int
	BaseRate      decimal.Decimal
	Tiers         []Tier
	Bonuses       []BonusRule
	EligibleRoles []string // empty = any role

	// RetroactiveAccelerators is informational: the tier rate always applies
	// to the whole sales amount of a computation.
	RetroactiveAccelerators bool
}

// BaseTier is the virtual tier used when attainment is below every threshold.
func (p Plan) BaseTier() Tier {
	return Tier{Threshold: decimal.Zero, Rate: p.BaseRate}
}

func (p Plan) RoleEligible(role string) bool {
	return len(p.EligibleRoles) == 0 || slices.Contains(p.EligibleRoles, role)
}

// Validate checks tier ordering, rate bounds and bonus rules.
func (p Plan) Validate() error {
	if p.ID == "" {
		return &PlanError{PlanID: p.ID, Field: "id", Reason: "required"}
	}
	if !validRate(p.BaseRate) {
		return &PlanError{PlanID: p.ID, Field: "base_rate", Reason: "must be between 0 and 100"}
	}
	for i, tier := range p.Tiers {
		if tier.Threshold.IsNegative() {
			return &PlanError{PlanID: p.ID, Field: "tiers", Reason: "threshold must not be negative"}
		}
		if !validRate(tier.Rate) {
			return &PlanError{PlanID: p.ID, Field: "tiers", Reason: "rate must be between 0 and 100"}
		}
		if i > 0 && !tier.Threshold.GreaterThan(p.Tiers[i-1].Threshold) {
			return &TierOrderingError{
				PlanID:   p.ID,
				Index:    i,
				Previous: p.Tiers[i-1].Threshold,
				Current:  tier.Threshold,
			}
		}
	}
	seen := make(map[string]bool, len(p.Bonuses))
	for _, b := range p.Bonuses {
		if b.ID == "" || seen[b.ID] {
			return &PlanError{PlanID: p.ID, Field: "bonuses", Reason: "rule IDs must be unique and non-empty"}
		}
		seen[b.ID] = true
		if !b.Category.Valid() {
			return &PlanError{PlanID: p.ID, Field: "bonuses", Reason: "unknown category " + string(b.Category)}
		}
		switch b.Effect.Kind {
		case EffectFixed, EffectPercent:
		default:
			return &PlanError{PlanID: p.ID, Field: "bonuses", Reason: "unknown effect " + string(b.Effect.Kind)}
		}
		if b.Effect.Value.IsNegative() {
			return &PlanError{PlanID: p.ID, Field: "bonuses", Reason: "effect value must not be negative"}
		}
	}
	return nil
}

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(hundred)
}

// clone returns a deep copy so catalog callers cannot mutate registered plans.
func (p Plan) clone() Plan {
	out := p
	out.Tiers = slices.Clone(p.Tiers)
	out.EligibleRoles = slices.Clone(p.EligibleRoles)
	out.Bonuses = make([]BonusRule, len(p.Bonuses))
	for i, b := range p.Bonuses {
		b.PlanScope = slices.Clone(b.PlanScope)
		out.Bonuses[i] = b
	}
	return out
}

// =============================================================================
// PLAN CATALOG
// =============================================================================

// PlanCatalog resolves plans by ID. Implementations must return copies.
type PlanCatalog interface {
	Plan(ctx context.Context, id PlanID) (Plan, error)
	Plans(ctx context.Context) ([]Plan, error)
}

// MemoryCatalog is a PlanCatalog held in memory.
type MemoryCatalog struct {
	mu    sync.RWMutex
	plans map[PlanID]Plan
}

func NewMemoryCatalog(plans ...Plan) (*MemoryCatalog, error) {
	c := &MemoryCatalog{plans: make(map[PlanID]Plan)}
	for _, p := range plans {
		if err := c.Register(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register validates and stores a plan. Re-registering an ID fails.
func (c *MemoryCatalog) Register(p Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.plans[p.ID]; ok {
		return ErrDuplicatePlan
	}
	c.plans[p.ID] = p.clone()
	return nil
}

func (c *MemoryCatalog) Plan(_ context.Context, id PlanID) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p.clone(), nil
}

func (c *MemoryCatalog) Plans(_ context.Context) ([]Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
