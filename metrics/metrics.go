/*
Package metrics exposes Prometheus metrics for the commission engine.

Metrics implements commission.Observer, so the engine reports ledger
appends, computed earnings, reconciliations and forecasts without
importing Prometheus. HTTP metrics are recorded by Middleware using the
chi route pattern as the path label.

All collectors are registered on the registry passed to New, which keeps
tests isolated from the global default registry.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger metrics
	EntriesAppended *prometheus.CounterVec
	AmountAppended  *prometheus.CounterVec

	// Engine metrics
	EarningsComputed *prometheus.CounterVec
	EarningsTotal    *prometheus.CounterVec
	Reconciliations  *prometheus.CounterVec
	Forecasts        *prometheus.CounterVec

	// Scheduler metrics
	SweepDuration prometheus.Histogram
	SweepReps     *prometheus.CounterVec
}

var _ commission.Observer = (*Metrics)(nil)

// New creates a Metrics instance registered on reg. A nil reg gets a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		EntriesAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_ledger_entries_total",
				Help: "Ledger entries appended, by kind",
			},
			[]string{"kind"}, // earned, adjustment, pending, paid
		),
		AmountAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_ledger_amount_abs_total",
				Help: "Absolute currency amount appended to the ledger, by kind",
			},
			[]string{"kind"},
		),

		EarningsComputed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_earnings_computed_total",
				Help: "Commission computations, by plan and whether an accelerator tier applied",
			},
			[]string{"plan", "accelerated"},
		),
		EarningsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_earned_amount_total",
				Help: "Sum of computed commission totals, by plan",
			},
			[]string{"plan"},
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_reconciliations_total",
				Help: "Reconciliations performed, by result",
			},
			[]string{"result"}, // balanced, mismatch
		),
		Forecasts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_forecasts_total",
				Help: "Forecasts produced, by result",
			},
			[]string{"result"}, // projected, insufficient_data
		),

		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "commission_reconcile_sweep_duration_seconds",
			Help:    "Duration of scheduled reconciliation sweeps",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		SweepReps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_reconcile_sweep_reps_total",
				Help: "Reps processed by scheduled sweeps, by outcome",
			},
			[]string{"outcome"}, // balanced, mismatch, failed
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// =============================================================================
// commission.Observer
// =============================================================================

func (m *Metrics) EntryAppended(kind commission.Kind, amount decimal.Decimal) {
	m.EntriesAppended.WithLabelValues(string(kind)).Inc()
	m.AmountAppended.WithLabelValues(string(kind)).Add(amount.Abs().InexactFloat64())
}

func (m *Metrics) EarningComputed(planID commission.PlanID, accelerated bool, total decimal.Decimal) {
	m.EarningsComputed.WithLabelValues(string(planID), strconv.FormatBool(accelerated)).Inc()
	if total.IsPositive() {
		m.EarningsTotal.WithLabelValues(string(planID)).Add(total.InexactFloat64())
	}
}

func (m *Metrics) Reconciled(balanced bool) {
	result := "mismatch"
	if balanced {
		result = "balanced"
	}
	m.Reconciliations.WithLabelValues(result).Inc()
}

func (m *Metrics) Forecasted(insufficientData bool) {
	result := "projected"
	if insufficientData {
		result = "insufficient_data"
	}
	m.Forecasts.WithLabelValues(result).Inc()
}

// RecordSweep records one scheduled reconciliation sweep.
func (m *Metrics) RecordSweep(duration time.Duration, balanced, mismatched, failed int) {
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepReps.WithLabelValues("balanced").Add(float64(balanced))
	m.SweepReps.WithLabelValues("mismatch").Add(float64(mismatched))
	m.SweepReps.WithLabelValues("failed").Add(float64(failed))
}

// =============================================================================
// HTTP
// =============================================================================

// Middleware records request count and latency. The path label is the chi
// route pattern (e.g. /api/reps/{repID}/summary), not the raw URL.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}

		m.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		m.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}
