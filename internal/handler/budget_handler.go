package handler

import (
	"net/http"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Budget declaration, allocation & spending
// ============================================================

type budgetResponse struct {
	Declaration *domain.BudgetDeclaration `json:"declaration"`
	Allocation  *domain.BudgetResult      `json:"allocation"`
}

func putBudgetHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "budget service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "PUT /v1/users/{userId}/budget")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("user.id", userID))

		var req domain.AllocateRequest
		if msg, ok := decodeJSON(r, &req); !ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		saved, res, err := svc.SaveDeclaration(ctx, &domain.BudgetDeclaration{
			UserID:             userID,
			MonthlyIncome:      req.MonthlyIncome,
			Categories:         req.Categories,
			WantsSubcategories: req.WantsSubcategories,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, budgetResponse{Declaration: saved, Allocation: res})
	}
}

func getBudgetHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "budget service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/budget")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		decl, err := svc.GetDeclaration(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, decl)
	}
}

func getAllocationHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "budget service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/budget/allocation")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		res, err := svc.GetAllocation(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// allocateHandler previews an allocation without saving it. An invalid
// budget is still a 200; the result carries isValid and errors.
func allocateHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "budget service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "POST /v1/budget/allocate")
		defer span.End()

		var req domain.AllocateRequest
		if msg, ok := decodeJSON(r, &req); !ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		res := svc.Preview(ctx, &req)
		writeJSON(w, http.StatusOK, res)
	}
}

func spendingHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "budget service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/spending")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		from, err := parseDateParam(r, "from")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		to, err := parseDateParam(r, "to")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		report, err := svc.GetSpendingAnalysis(ctx, userID, domain.SpendingPeriod{From: from, To: to})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
