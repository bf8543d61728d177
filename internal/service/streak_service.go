package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/budget"
	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"
	"github.com/boddenberg/budget-coach-bfa/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var streakTracer = otel.Tracer("service/streak")

// StreakTracker advances a user's daily adherence streak.
//
// Checks for one user are serialized in-process, and every write is
// conditional on the lastCheckedDate that was read, so a concurrent check
// from another process makes this one re-read instead of double-counting.
type StreakTracker struct {
	budgets     port.BudgetStore
	txs         port.TransactionStore
	cache       port.Cache[*domain.BudgetDeclaration]
	locks       *resilience.KeyedMutex
	metrics     *observability.Metrics
	logger      *zap.Logger
	loc         *time.Location
	maxAttempts int
}

// NewStreakTracker creates the tracker. conflictRetries is how many times
// a lost conditional write is re-applied before giving up.
func NewStreakTracker(
	budgets port.BudgetStore,
	txs port.TransactionStore,
	cache port.Cache[*domain.BudgetDeclaration],
	metrics *observability.Metrics,
	logger *zap.Logger,
	loc *time.Location,
	conflictRetries int,
) *StreakTracker {
	if loc == nil {
		loc = time.UTC
	}
	if conflictRetries < 0 {
		conflictRetries = 0
	}
	return &StreakTracker{
		budgets:     budgets,
		txs:         txs,
		cache:       cache,
		locks:       resilience.NewKeyedMutex(),
		metrics:     metrics,
		logger:      logger,
		loc:         loc,
		maxAttempts: conflictRetries + 1,
	}
}

// Today is the calendar day of now in the tracker's zone.
func (t *StreakTracker) Today(now time.Time) domain.Date {
	return domain.DateOf(now.In(t.loc))
}

// Check evaluates the streak for now and persists the result. Repeated
// checks on the same calendar day return the stored snapshot unchanged.
func (t *StreakTracker) Check(ctx context.Context, userID string, now time.Time) (*domain.StreakCheckResult, error) {
	ctx, span := streakTracer.Start(ctx, "StreakTracker.Check")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() {
		t.metrics.RecordRequestDuration("streak_check", time.Since(start))
	}()

	unlock := t.locks.Lock(userID)
	defer unlock()

	today := t.Today(now)

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := t.checkOnce(ctx, userID, today)
		if err == nil {
			t.metrics.IncrStreakCheck(res.Outcome)
			span.SetAttributes(
				attribute.String("streak.outcome", string(res.Outcome)),
				attribute.Int("streak.current", res.Streak.CurrentStreak),
				attribute.Int("attempts", attempt),
			)
			return res, nil
		}

		var conflict *domain.ErrConflict
		if !errors.As(err, &conflict) {
			span.RecordError(err)
			return nil, err
		}
		t.metrics.IncrStreakConflict()
		t.logger.Warn("streak write lost to a concurrent update, re-reading",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
		)
	}

	return nil, &domain.ErrConflict{Resource: "streak", ID: userID}
}

func (t *StreakTracker) checkOnce(ctx context.Context, userID string, today domain.Date) (*domain.StreakCheckResult, error) {
	// Always read through the store; a cached streak may be stale.
	decl, err := t.budgets.GetBudgetDeclaration(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load declaration: %w", err)
	}

	if decl.Streak == nil {
		state := budget.NewStreak(today)
		if err := t.save(ctx, userID, state, nil); err != nil {
			return nil, err
		}
		t.logger.Info("streak initialized",
			zap.String("user_id", userID),
			zap.Stringer("date", today),
		)
		return &domain.StreakCheckResult{UserID: userID, Streak: state, Outcome: domain.StreakInitialized}, nil
	}

	prev := *decl.Streak
	spend := decimal.Zero
	if budget.NeedsRollover(prev, today) {
		from, to := budget.DayWindow(today, t.loc)
		txs, err := t.txs.GetTransactions(ctx, userID, from, to)
		if err != nil {
			t.metrics.IncrStoreError("get_transactions")
			return nil, fmt.Errorf("load yesterday's transactions: %w", err)
		}
		spend = budget.DaySpend(txs, from, to)
	}

	next, outcome := budget.Transition(prev, today, spend, budget.DailyBudget(decl.MonthlyIncome))
	if next == prev {
		return &domain.StreakCheckResult{UserID: userID, Streak: next, Outcome: outcome}, nil
	}

	expected := prev.LastCheckedDate
	if err := t.save(ctx, userID, next, &expected); err != nil {
		return nil, err
	}

	if outcome != domain.StreakUnchanged {
		t.logger.Info("streak advanced",
			zap.String("user_id", userID),
			zap.String("outcome", string(outcome)),
			zap.Int("current", next.CurrentStreak),
			zap.Int("longest", next.LongestStreak),
			zap.String("yesterday_spend", spend.StringFixed(2)),
		)
	}
	return &domain.StreakCheckResult{UserID: userID, Streak: next, Outcome: outcome}, nil
}

func (t *StreakTracker) save(ctx context.Context, userID string, state domain.StreakState, expected *domain.Date) error {
	err := t.budgets.SaveStreakState(ctx, userID, state, expected)
	if err != nil {
		var conflict *domain.ErrConflict
		if !errors.As(err, &conflict) {
			t.metrics.IncrStoreError("save_streak")
		}
		return fmt.Errorf("save streak: %w", err)
	}
	t.cache.Delete(userID)
	return nil
}

// Get returns the stored streak without evaluating it. A user who was
// never checked gets a zero state.
func (t *StreakTracker) Get(ctx context.Context, userID string) (*domain.StreakState, error) {
	ctx, span := streakTracer.Start(ctx, "StreakTracker.Get")
	defer span.End()

	decl, err := t.budgets.GetBudgetDeclaration(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load declaration: %w", err)
	}
	if decl.Streak == nil {
		return &domain.StreakState{}, nil
	}
	st := *decl.Streak
	return &st, nil
}
