package commission

import "github.com/shopspring/decimal"

// Observer receives engine events for metrics. Implementations must be
// safe for concurrent use; see metrics.Metrics.
type Observer interface {
	EntryAppended(kind Kind, amount decimal.Decimal)
	EarningComputed(planID PlanID, accelerated bool, total decimal.Decimal)
	Reconciled(balanced bool)
	Forecasted(insufficientData bool)
}

type nopObserver struct{}

func (nopObserver) EntryAppended(Kind, decimal.Decimal) {}
func (nopObserver) EarningComputed(PlanID, bool, decimal.Decimal) {}
func (nopObserver) Reconciled(bool) {}
func (nopObserver) Forecasted(bool) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
