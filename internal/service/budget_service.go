// Package service provides the business logic layer (use cases). It loads
// and stores through the ports and delegates every calculation to the
// budget engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/budget"
	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var budgetTracer = otel.Tracer("service/budget")

const declarationCache = "declaration"

// BudgetService manages declarations and derives allocations and spending
// analyses from them.
type BudgetService struct {
	budgets port.BudgetStore
	txs     port.TransactionStore
	cache   port.Cache[*domain.BudgetDeclaration]
	metrics *observability.Metrics
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewBudgetService creates the budget service. loc is the zone calendar
// ranges are evaluated in; nil means UTC.
func NewBudgetService(
	budgets port.BudgetStore,
	txs port.TransactionStore,
	cache port.Cache[*domain.BudgetDeclaration],
	metrics *observability.Metrics,
	logger *zap.Logger,
	loc *time.Location,
) *BudgetService {
	if loc == nil {
		loc = time.UTC
	}
	return &BudgetService{
		budgets: budgets,
		txs:     txs,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		loc:     loc,
		now:     time.Now,
	}
}

// WithClock replaces the wall clock used for default ranges.
func (s *BudgetService) WithClock(now func() time.Time) *BudgetService {
	s.now = now
	return s
}

// Preview allocates without touching storage.
func (s *BudgetService) Preview(ctx context.Context, req *domain.AllocateRequest) domain.BudgetResult {
	_, span := budgetTracer.Start(ctx, "BudgetService.Preview")
	defer span.End()

	res := budget.Allocate(req.MonthlyIncome, req.Categories, req.WantsSubcategories)
	s.metrics.IncrAllocation(res.IsValid)
	span.SetAttributes(attribute.Bool("budget.valid", res.IsValid))
	return res
}

// SaveDeclaration validates decl through the allocator and upserts it.
// An invalid declaration is rejected with *domain.ErrInvalidBudget listing
// every violated rule. The stored streak, if any, is kept.
func (s *BudgetService) SaveDeclaration(ctx context.Context, decl *domain.BudgetDeclaration) (*domain.BudgetDeclaration, *domain.BudgetResult, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.SaveDeclaration")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", decl.UserID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("save_declaration", time.Since(start))
	}()

	decl.UserID = strings.TrimSpace(decl.UserID)
	if decl.UserID == "" {
		return nil, nil, &domain.ErrValidation{Field: "userId", Message: "required"}
	}
	for i := range decl.Categories {
		decl.Categories[i].Name = strings.TrimSpace(decl.Categories[i].Name)
	}
	for i := range decl.WantsSubcategories {
		decl.WantsSubcategories[i].Name = strings.TrimSpace(decl.WantsSubcategories[i].Name)
	}

	res := budget.AllocateDeclaration(decl)
	s.metrics.IncrAllocation(res.IsValid)
	if !res.IsValid {
		span.SetStatus(codes.Error, "invalid budget")
		return nil, &res, &domain.ErrInvalidBudget{Errors: res.Errors}
	}

	saved, err := s.budgets.SaveBudgetDeclaration(ctx, decl)
	if err != nil {
		s.metrics.IncrStoreError("save_declaration")
		s.logger.Error("failed to save budget declaration",
			zap.String("user_id", decl.UserID),
			zap.Error(err),
		)
		span.RecordError(err)
		return nil, nil, fmt.Errorf("save declaration: %w", err)
	}
	s.cache.Delete(decl.UserID)

	s.logger.Info("budget declaration saved",
		zap.String("user_id", saved.UserID),
		zap.Float64("monthly_income", saved.MonthlyIncome),
		zap.Int("categories", len(saved.Categories)),
	)
	return saved, &res, nil
}

// GetDeclaration returns the stored declaration, cache-through.
func (s *BudgetService) GetDeclaration(ctx context.Context, userID string) (*domain.BudgetDeclaration, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.GetDeclaration")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if cached, ok := s.cache.Get(userID); ok {
		s.metrics.IncrCacheHit(declarationCache)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(declarationCache)

	decl, err := s.budgets.GetBudgetDeclaration(ctx, userID)
	if err != nil {
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			s.metrics.IncrStoreError("get_declaration")
			s.logger.Error("failed to load budget declaration",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("load declaration: %w", err)
	}
	s.cache.Set(userID, decl)
	return decl, nil
}

// InvalidateDeclaration drops any cached copy of the user's declaration.
func (s *BudgetService) InvalidateDeclaration(userID string) {
	s.cache.Delete(userID)
}

// GetAllocation recomputes the BudgetResult of the current declaration.
func (s *BudgetService) GetAllocation(ctx context.Context, userID string) (*domain.BudgetResult, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.GetAllocation")
	defer span.End()

	decl, err := s.GetDeclaration(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := budget.AllocateDeclaration(decl)
	s.metrics.IncrAllocation(res.IsValid)
	return &res, nil
}

// DefaultPeriod is the current calendar month up to today.
func (s *BudgetService) DefaultPeriod() domain.SpendingPeriod {
	today := domain.DateOf(s.now().In(s.loc))
	return domain.SpendingPeriod{From: today.FirstOfMonth(), To: today}
}

// GetSpendingAnalysis compares the user's transactions in period against
// their current allocation. Zero period bounds default to DefaultPeriod.
func (s *BudgetService) GetSpendingAnalysis(ctx context.Context, userID string, period domain.SpendingPeriod) (*domain.SpendingReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := budgetTracer.Start(ctx, "BudgetService.GetSpendingAnalysis")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("spending_analysis", time.Since(start))
	}()

	def := s.DefaultPeriod()
	if period.From.IsZero() {
		period.From = def.From
	}
	if period.To.IsZero() {
		period.To = def.To
	}
	if period.From.After(period.To) {
		return nil, &domain.ErrValidation{Field: "from", Message: "must not be after to"}
	}
	from, to := s.periodBounds(period)

	var (
		decl         *domain.BudgetDeclaration
		transactions []domain.Transaction
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d, err := s.GetDeclaration(gCtx, userID)
		if err != nil {
			return err
		}
		decl = d
		return nil
	})

	g.Go(func() error {
		t, err := s.txs.GetTransactions(gCtx, userID, from, to)
		if err != nil {
			s.metrics.IncrStoreError("get_transactions")
			s.logger.Error("failed to load transactions",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return fmt.Errorf("load transactions: %w", err)
		}
		transactions = t
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := budget.AllocateDeclaration(decl)
	analysis := budget.Analyze(transactions, res)
	s.metrics.IncrAnalysis()

	span.SetAttributes(
		attribute.Int("transactions.count", len(transactions)),
		attribute.Int("budget.over_categories", len(analysis.OverBudgetCategories)),
	)

	return &domain.SpendingReport{
		UserID:   userID,
		Period:   period,
		Budget:   &res,
		Analysis: &analysis,
	}, nil
}

// periodBounds converts an inclusive day range to instants in s.loc.
func (s *BudgetService) periodBounds(p domain.SpendingPeriod) (time.Time, time.Time) {
	return p.From.In(s.loc), p.To.AddDays(1).In(s.loc).Add(-time.Nanosecond)
}
