package commission_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/commission"
)

func TestResolveTier_ThresholdsAreInclusive(t *testing.T) {
	// GIVEN: Tiers {100 -> 8.5%, 125 -> 10.0%}, base rate 7.0%, quota 100,000
	// WHEN: Attainment sits exactly on, or just below, each threshold
	// THEN: The highest threshold <= attainment is selected

	plan := standardPlan()
	quota := dec("100000")

	cases := []struct {
		name        string
		ytd         string
		wantRate    string
		accelerated bool
	}{
		{"exactly 100%", "100000", "8.5", true},
		{"99.999%", "99999", "7.0", false},
		{"exactly 125%", "125000", "10.0", true},
		{"124.999%", "124999", "8.5", true},
		{"zero sales", "0", "7.0", false},
		{"far above top tier", "400000", "10.0", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			att, err := commission.ResolveTier(plan, dec(tc.ytd), quota)
			require.NoError(t, err)
			assert.True(t, att.Tier.Rate.Equal(dec(tc.wantRate)),
				"expected rate %s, got %s", tc.wantRate, att.Tier.Rate)
			assert.Equal(t, tc.accelerated, att.Accelerated)
		})
	}
}

func TestResolveTier_AttainmentIsNotRoundedForSelection(t *testing.T) {
	// GIVEN: ytd 99,999.50 on a 100,000 quota (99.9995%)
	// WHEN: Resolving the tier
	// THEN: The base rate applies, even though the display value rounds to 100.00

	att, err := commission.ResolveTier(standardPlan(), dec("99999.5"), dec("100000"))
	require.NoError(t, err)

	assert.True(t, att.Tier.Rate.Equal(dec("7.0")))
	assert.Equal(t, "100", att.Rounded().String())
}

func TestResolveTier_InvalidQuota(t *testing.T) {
	for _, quota := range []string{"0", "-1"} {
		_, err := commission.ResolveTier(standardPlan(), dec("1000"), dec(quota))
		if !errors.Is(err, commission.ErrInvalidQuota) {
			t.Errorf("quota %s: expected ErrInvalidQuota, got %v", quota, err)
		}
		if !commission.IsPlanMisconfigured(err) {
			t.Errorf("quota %s: invalid quota should classify as plan misconfiguration", quota)
		}
	}
}

func TestResolveTier_EmptyScheduleUsesBaseRate(t *testing.T) {
	plan := standardPlan()
	plan.Tiers = nil

	att, err := commission.ResolveTier(plan, dec("500000"), dec("100000"))
	require.NoError(t, err)
	assert.True(t, att.Tier.Rate.Equal(dec("7.0")))
	assert.True(t, att.Tier.Threshold.IsZero())
	assert.False(t, att.Accelerated)
}

func TestPlanValidate_TierOrdering(t *testing.T) {
	// GIVEN: A plan whose second threshold equals the first
	// WHEN: Registering it
	// THEN: TierOrderingError pointing at index 1

	plan := standardPlan()
	plan.Tiers = []commission.Tier{
		{Threshold: dec("100"), Rate: dec("8.5")},
		{Threshold: dec("100"), Rate: dec("10.0")},
	}

	_, err := commission.NewMemoryCatalog(plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, commission.ErrPlanTierOrdering)

	var orderErr *commission.TierOrderingError
	require.ErrorAs(t, err, &orderErr)
	assert.Equal(t, 1, orderErr.Index)
	assert.True(t, commission.IsPlanMisconfigured(err))
}

func TestPlanValidate_RejectsBadRatesAndBonuses(t *testing.T) {
	negative := standardPlan()
	negative.BaseRate = dec("-1")
	assert.ErrorIs(t, negative.Validate(), commission.ErrInvalidPlan)

	unknown := standardPlan()
	unknown.Bonuses = []commission.BonusRule{{
		ID:       "b1",
		Category: "referral",
		Effect:   commission.BonusEffect{Kind: commission.EffectFixed, Value: dec("100")},
	}}
	assert.ErrorIs(t, unknown.Validate(), commission.ErrInvalidPlan)

	dup := standardPlan()
	rule := commission.BonusRule{
		ID:       "b1",
		Category: commission.BonusNewLogo,
		Effect:   commission.BonusEffect{Kind: commission.EffectFixed, Value: dec("100")},
	}
	dup.Bonuses = []commission.BonusRule{rule, rule}
	assert.ErrorIs(t, dup.Validate(), commission.ErrInvalidPlan)
}

func TestMemoryCatalog_PlansAreImmutable(t *testing.T) {
	// GIVEN: A registered plan
	// WHEN: A caller mutates the returned copy, or re-registers the ID
	// THEN: The catalog is unchanged and re-registration fails

	catalog, err := commission.NewMemoryCatalog(standardPlan())
	require.NoError(t, err)

	p, err := catalog.Plan(context.Background(), "ae-2025")
	require.NoError(t, err)
	p.Tiers[0].Rate = dec("50")

	again, err := catalog.Plan(context.Background(), "ae-2025")
	require.NoError(t, err)
	assert.True(t, again.Tiers[0].Rate.Equal(dec("8.5")))

	assert.ErrorIs(t, catalog.Register(standardPlan()), commission.ErrDuplicatePlan)

	_, err = catalog.Plan(context.Background(), "missing")
	assert.True(t, commission.IsNotFound(err))
}
