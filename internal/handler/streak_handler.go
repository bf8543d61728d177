package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Streak & advice
// ============================================================

// checkStreakHandler is safe to call repeatedly; only the first call of a
// day can move the streak.
func checkStreakHandler(svc *service.StreakTracker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "streak tracker")
			return
		}
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/streak/check")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("user.id", userID))

		res, err := svc.Check(ctx, userID, time.Now())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("streak.outcome", string(res.Outcome)))
		writeJSON(w, http.StatusOK, res)
	}
}

func getStreakHandler(svc *service.StreakTracker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "streak tracker")
			return
		}
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/streak")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		st, err := svc.Get(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func adviceHandler(svc *service.AdvisorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, "advisor")
			return
		}
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/advice")
		defer span.End()

		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("user.id", userID))

		var req domain.AdviceRequest
		if msg, ok := decodeJSON(r, &req); !ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		resp, err := svc.Ask(ctx, userID, req.Question)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
