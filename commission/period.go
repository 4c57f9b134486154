package commission

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - The boundary for ledger queries and reconciliation
// =============================================================================

// Period is the half-open interval [Start, End). A zero Start or End leaves
// that side unbounded, so the zero Period covers the whole ledger.
//
// Examples:
//   - March 2025:  2025-03-01 .. 2025-04-01
//   - Q2 2025:     2025-04-01 .. 2025-07-01
//   - Year 2025:   2025-01-01 .. 2026-01-01
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !t.Before(p.End) {
		return false
	}
	return true
}

func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

func (p Period) Validate() error {
	if !p.Start.IsZero() && !p.End.IsZero() && !p.End.After(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Next returns the period of the same calendar length following this one.
func (p Period) Next() Period {
	months := monthsBetween(p.Start, p.End)
	if months > 0 {
		return Period{Start: p.End, End: p.End.AddDate(0, months, 0)}
	}
	return Period{Start: p.End, End: p.End.Add(p.End.Sub(p.Start))}
}

func (p Period) String() string {
	if p.IsZero() {
		return "[all]"
	}
	return "[" + formatBound(p.Start) + ", " + formatBound(p.End) + ")"
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func monthsBetween(from, to time.Time) int {
	if from.Day() != 1 || to.Day() != 1 {
		return 0
	}
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// =============================================================================
// QUOTA PERIOD - Which period a date falls into
// =============================================================================

type QuotaPeriod string

const (
	QuotaMonthly   QuotaPeriod = "monthly"
	QuotaQuarterly QuotaPeriod = "quarterly"
	QuotaAnnual    QuotaPeriod = "annual"
)

func (q QuotaPeriod) Valid() bool {
	switch q {
	case QuotaMonthly, QuotaQuarterly, QuotaAnnual:
		return true
	}
	return false
}

// PeriodFor returns the quota period containing t (UTC calendar based).
func (q QuotaPeriod) PeriodFor(t time.Time) Period {
	t = t.UTC()
	switch q {
	case QuotaMonthly:
		return MonthPeriod(t.Year(), t.Month())
	case QuotaQuarterly:
		return QuarterPeriod(t.Year(), (int(t.Month())-1)/3+1)
	default:
		return YearPeriod(t.Year())
	}
}

func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

func QuarterPeriod(year, quarter int) Period {
	start := time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 3, 0)}
}

func YearPeriod(year int) Period {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(1, 0, 0)}
}

// ParsePeriod accepts "2025", "2025-Q2", "2025-03" or "all".
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "ALL" {
		return Period{}, nil
	}
	if year, quarter, ok := strings.Cut(s, "-Q"); ok {
		y, err1 := strconv.Atoi(year)
		q, err2 := strconv.Atoi(quarter)
		if err1 != nil || err2 != nil || q < 1 || q > 4 {
			return Period{}, fmt.Errorf("parse period %q: %w", s, ErrInvalidPeriod)
		}
		return QuarterPeriod(y, q), nil
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return MonthPeriod(t.Year(), t.Month()), nil
	}
	if y, err := strconv.Atoi(s); err == nil && y > 0 {
		return YearPeriod(y), nil
	}
	return Period{}, fmt.Errorf("parse period %q: %w", s, ErrInvalidPeriod)
}

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
