package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/advisor")

// AdvisorService forwards a user's question to the external advisory service
// together with their budget, spending and streak as read-only context.
type AdvisorService struct {
	budgets *BudgetService
	streaks *StreakTracker
	advisor port.AdvisorCaller
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAdvisorService creates the advisor service with all dependencies injected.
func NewAdvisorService(
	budgets *BudgetService,
	streaks *StreakTracker,
	advisor port.AdvisorCaller,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AdvisorService {
	return &AdvisorService{
		budgets: budgets,
		streaks: streaks,
		advisor: advisor,
		metrics: metrics,
		logger:  logger,
	}
}

// Ask gathers context concurrently, then calls the advisor.
func (a *AdvisorService) Ask(ctx context.Context, userID, question string) (*domain.AdviceResponse, error) {
	// Bail out early if the caller already cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "AdvisorService.Ask")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &domain.ErrValidation{Field: "question", Message: "required"}
	}

	start := time.Now()
	defer func() {
		a.metrics.RecordRequestDuration("advice", time.Since(start))
	}()

	// --- Step 1: spending report + streak concurrently ---
	var (
		report *domain.SpendingReport
		streak *domain.StreakState
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r, err := a.budgets.GetSpendingAnalysis(gCtx, userID, domain.SpendingPeriod{})
		if err != nil {
			return fmt.Errorf("spending analysis: %w", err)
		}
		report = r
		return nil
	})

	g.Go(func() error {
		s, err := a.streaks.Get(gCtx, userID)
		if err != nil {
			return fmt.Errorf("streak: %w", err)
		}
		streak = s
		return nil
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("failed to build advisor context",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	// --- Step 2: call the advisor ---
	req := &domain.AdvisorRequest{
		UserID:   userID,
		Question: question,
		Budget:   report.Budget,
		Spending: report.Analysis,
		Streak:   streak,
	}

	advisorStart := time.Now()
	resp, err := a.advisor.Call(ctx, req)
	a.metrics.RecordRequestDuration("advisor", time.Since(advisorStart))

	if err != nil {
		a.logger.Error("advisor call failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		a.metrics.IncrExternalError("advisor")
		return nil, fmt.Errorf("advisor call: %w", err)
	}

	// --- Step 3: record token metrics ---
	a.metrics.RecordTokens(resp.TokensUsed.PromptTokens, resp.TokensUsed.CompletionTokens)

	return &domain.AdviceResponse{
		UserID:      userID,
		Answer:      resp.Answer,
		Tips:        resp.Tips,
		TokenUsage:  resp.TokensUsed,
		ProcessedAt: time.Now(),
	}, nil
}
