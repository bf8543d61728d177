package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const maxBodyBytes = 1 << 20

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the routes call. A nil service makes its routes
// answer 503.
type Services struct {
	Budgets      *service.BudgetService
	Transactions *service.TransactionService
	Streaks      *service.StreakTracker
	Advisor      *service.AdvisorService
	Samples      *service.SampleService
	Store        Pinger

	// Location is the budget zone bare YYYY-MM-DD query dates are read in.
	// Nil means UTC.
	Location *time.Location
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	loc := svc.Location
	if loc == nil {
		loc = time.UTC
	}

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(limitBody(maxBodyBytes))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Post("/budget/allocate", allocateHandler(svc.Budgets, logger))
		r.Get("/metrics/engine", engineMetricsHandler(metrics))

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Put("/budget", putBudgetHandler(svc.Budgets, logger))
			r.Get("/budget", getBudgetHandler(svc.Budgets, logger))
			r.Get("/budget/allocation", getAllocationHandler(svc.Budgets, logger))
			r.Get("/spending", spendingHandler(svc.Budgets, logger))

			r.Post("/transactions", createTransactionHandler(svc.Transactions, logger))
			r.Get("/transactions", listTransactionsHandler(svc.Transactions, loc, logger))
			r.Post("/transactions/sample", sampleTransactionsHandler(svc.Samples, logger))
			r.Delete("/transactions/{transactionId}", deleteTransactionHandler(svc.Transactions, logger))

			r.Post("/streak/check", checkStreakHandler(svc.Streaks, logger))
			r.Get("/streak", getStreakHandler(svc.Streaks, logger))

			r.Post("/advice", adviceHandler(svc.Advisor, logger))
		})
	})

	return r
}

// ============================================================
// Probes & metrics
// ============================================================

func healthzHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "budget-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			start := time.Now()
			err := store.Ping(ctx)
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func engineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
