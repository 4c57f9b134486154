/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. RealIP:     Client address from proxy headers
  3. Logger:     zap request log (method, route, status, duration)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request count and latency (optional)
  6. CORS:       Cross-origin requests for the payroll UI

ROUTE GROUPS:
  /api/plans/*            Plan catalog
  /api/reps/*             Reps, earnings, ledger, summaries, forecasts
  /api/transactions/*     Cross-rep ledger audit
  /api/payroll/*          Payroll boundary
  /api/pipeline           CRM pipeline feed
  /api/reconciliation/*   Sweep results and manual sweep
  /api/export             CSV / XLSX export
  /api/scenarios/*        Demo scenarios
  /metrics                Prometheus scrape endpoint
  /healthz                Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/commission-engine/metrics"
)

// NewRouter creates a new router with all routes configured. m may be nil.
func NewRouter(h *Handler, m *metrics.Metrics, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Post("/", h.CreatePlan)
			r.Get("/{planID}", h.GetPlan)
		})

		r.Route("/reps", func(r chi.Router) {
			r.Get("/", h.ListReps)
			r.Post("/", h.SaveRep)
			r.Route("/{repID}", func(r chi.Router) {
				r.Get("/", h.GetRep)
				r.Post("/quote", h.Quote)
				r.Post("/earnings", h.RecordEarning)
				r.Get("/transactions", h.GetTransactions)
				r.Get("/pending", h.GetPending)
				r.Post("/pending/{pendingID}/void", h.VoidPending)
				r.Get("/summary", h.GetSummary)
				r.Get("/forecast", h.GetForecast)
				r.Post("/adjustments", h.CreateAdjustment)
				r.Get("/pipeline", h.GetPipeline)
			})
		})

		r.Get("/transactions/recent", h.GetRecentTransactions)

		r.Post("/payroll/close", h.ClosePayroll)
		r.Post("/pipeline", h.SaveDeal)
		r.Post("/pipeline/{dealID}/status", h.SetDealStatus)

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/runs", h.ListReconciliationRuns)
			r.Post("/run", h.RunReconciliation)
		})

		r.Get("/export", h.Export)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request at Info, or Error for 5xx.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Error("request", fields...)
				return
			}
			logger.Info("request", fields...)
		})
	}
}
