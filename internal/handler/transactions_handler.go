package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Transactions
// ============================================================

func createTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "transaction service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/transactions")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("user.id", userID))

		var req domain.TransactionRequest
		if msg, ok := decodeJSON(r, &req); !ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		tx, err := svc.Create(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func listTransactionsHandler(svc *service.TransactionService, loc *time.Location, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "transaction service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/transactions")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		from, err := parseTimeParam(r, "from", false, loc)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		to, err := parseTimeParam(r, "to", true, loc)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		txs, err := svc.List(ctx, userID, from, to)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.TransactionList{Transactions: txs, Total: len(txs)})
	}
}

func deleteTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "transaction service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/users/{userId}/transactions/{transactionId}")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}
		txID := chi.URLParam(r, "transactionId")

		if err := svc.Delete(ctx, userID, txID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "transaction deleted", ID: txID})
	}
}

func sampleTransactionsHandler(svc *service.SampleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "sample service")
			return
		}
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/transactions/sample")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		var req domain.SampleRequest
		if msg, ok := decodeJSON(r, &req); !ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		resp, err := svc.Import(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}
