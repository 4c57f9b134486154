package commission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/commission"
)

func TestQuotaPeriod_PeriodFor(t *testing.T) {
	at := time.Date(2025, time.August, 14, 18, 30, 0, 0, time.UTC)

	assert.Equal(t, commission.MonthPeriod(2025, time.August), commission.QuotaMonthly.PeriodFor(at))
	assert.Equal(t, commission.QuarterPeriod(2025, 3), commission.QuotaQuarterly.PeriodFor(at))
	assert.Equal(t, commission.YearPeriod(2025), commission.QuotaAnnual.PeriodFor(at))
}

func TestPeriod_HalfOpen(t *testing.T) {
	q := commission.QuarterPeriod(2025, 2)

	assert.True(t, q.Contains(date(2025, time.April, 1)))
	assert.True(t, q.Contains(date(2025, time.June, 30)))
	assert.False(t, q.Contains(date(2025, time.July, 1)))
	assert.True(t, commission.Period{}.Contains(date(1999, time.January, 1)), "zero period is unbounded")

	assert.Equal(t, commission.QuarterPeriod(2025, 3), q.Next())
	assert.Equal(t, commission.YearPeriod(2026), commission.YearPeriod(2025).Next())
}

func TestParsePeriod(t *testing.T) {
	cases := map[string]commission.Period{
		"2025":    commission.YearPeriod(2025),
		"2025-q2": commission.QuarterPeriod(2025, 2),
		"2025-03": commission.MonthPeriod(2025, time.March),
		"all":     {},
		"":        {},
	}
	for in, want := range cases {
		got, err := commission.ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"2025-Q5", "last year", "2025-13"} {
		_, err := commission.ParsePeriod(bad)
		assert.ErrorIs(t, err, commission.ErrInvalidPeriod, bad)
	}
}
