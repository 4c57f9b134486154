package commission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RepAccount is a sales representative as seen by the engine. It is owned
// by an external directory and only read here.
type RepAccount struct {
	ID                  RepID
	Name                string
	Role                string
	PlanID              PlanID
	AnnualQuota         decimal.Decimal
	QuotaPeriod         QuotaPeriod
	YTDSales            decimal.Decimal
	AcceleratorEligible bool
	BonusEligibility    map[BonusCategory]bool
}

func (r RepAccount) BonusEnabled(c BonusCategory) bool {
	return r.BonusEligibility[c]
}

// CurrentPeriod returns the rep's quota period containing t.
func (r RepAccount) CurrentPeriod(t time.Time) Period {
	return r.QuotaPeriod.PeriodFor(t)
}

// RepSource looks up rep accounts.
type RepSource interface {
	Rep(ctx context.Context, id RepID) (RepAccount, error)
	Reps(ctx context.Context) ([]RepAccount, error)
}

// MemoryReps is a RepSource held in memory.
type MemoryReps struct {
	mu   sync.RWMutex
	reps map[RepID]RepAccount
}

func NewMemoryReps(reps ...RepAccount) *MemoryReps {
	m := &MemoryReps{reps: make(map[RepID]RepAccount)}
	for _, r := range reps {
		m.Put(r)
	}
	return m
}

// Put inserts or replaces a rep account.
func (m *MemoryReps) Put(r RepAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reps[r.ID] = cloneRep(r)
}

func (m *MemoryReps) Rep(_ context.Context, id RepID) (RepAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reps[id]
	if !ok {
		return RepAccount{}, ErrRepNotFound
	}
	return cloneRep(r), nil
}

func (m *MemoryReps) Reps(_ context.Context) ([]RepAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RepAccount, 0, len(m.reps))
	for _, r := range m.reps {
		out = append(out, cloneRep(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneRep(r RepAccount) RepAccount {
	if r.BonusEligibility != nil {
		elig := make(map[BonusCategory]bool, len(r.BonusEligibility))
		for k, v := range r.BonusEligibility {
			elig[k] = v
		}
		r.BonusEligibility = elig
	}
	return r
}
