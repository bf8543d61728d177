package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveDeclaration_Valid(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))

	saved, res, err := f.budgets.SaveDeclaration(context.Background(), standardDeclaration(" user-1 ", 5000))
	require.NoError(t, err)

	assert.Equal(t, "user-1", saved.UserID)
	assert.True(t, res.IsValid)
	assert.Equal(t, 5000.0, res.TotalAllocated)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Allocations)
}

func TestSaveDeclaration_InvalidReportsEveryError(t *testing.T) {
	f := newFixture(t, time.Now())

	decl := &domain.BudgetDeclaration{
		UserID:        "user-1",
		MonthlyIncome: 0,
		Categories:    domain.CategoryShares{{Name: "rent", Percentage: 80}, {Name: "food", Percentage: 40}},
	}

	_, res, err := f.budgets.SaveDeclaration(context.Background(), decl)

	var invalid *domain.ErrInvalidBudget
	require.True(t, errors.As(err, &invalid))
	assert.Len(t, invalid.Errors, 2)
	assert.False(t, res.IsValid)

	_, err = f.store.GetBudgetDeclaration(context.Background(), "user-1")
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf), "invalid declaration must not be stored")
	assert.Equal(t, int64(1), f.metrics.Snapshot().InvalidAllocations)
}

func TestSaveDeclaration_MissingUser(t *testing.T) {
	f := newFixture(t, time.Now())

	_, _, err := f.budgets.SaveDeclaration(context.Background(), standardDeclaration("", 5000))

	var ve *domain.ErrValidation
	assert.True(t, errors.As(err, &ve))
}

func TestSaveDeclaration_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 3000)

	first, err := f.budgets.GetDeclaration(ctx, "user-1")
	require.NoError(t, err)
	_, err = f.budgets.GetDeclaration(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f.metrics.Snapshot().CacheHitRate)

	f.declare(t, "user-1", 4000)
	second, err := f.budgets.GetDeclaration(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 3000.0, first.MonthlyIncome)
	assert.Equal(t, 4000.0, second.MonthlyIncome)
}

func TestGetAllocation(t *testing.T) {
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 5000)

	res, err := f.budgets.GetAllocation(context.Background(), "user-1")
	require.NoError(t, err)

	require.Len(t, res.Categories, 6)
	assert.Equal(t, "Rent/Mortgage", res.Categories[0].Name)
	assert.Equal(t, 1500.0, res.Categories[0].Amount)
}

func TestGetAllocation_NotFound(t *testing.T) {
	f := newFixture(t, time.Now())

	_, err := f.budgets.GetAllocation(context.Background(), "ghost")

	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestGetSpendingAnalysis_DefaultsToCurrentMonth(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.declare(t, "user-1", 5000)

	f.spend(t, "user-1", "rent", 1500, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	f.spend(t, "user-1", "food", 720, time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC))
	f.spend(t, "user-1", "Travel", 100, time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC))
	f.spend(t, "user-1", "food", 999, time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC))

	report, err := f.budgets.GetSpendingAnalysis(context.Background(), "user-1", domain.SpendingPeriod{})
	require.NoError(t, err)

	assert.Equal(t, domain.Date{Year: 2024, Month: 3, Day: 1}, report.Period.From)
	assert.Equal(t, domain.Date{Year: 2024, Month: 3, Day: 15}, report.Period.To)

	a := report.Analysis
	assert.Equal(t, 2320.0, a.TotalSpent)
	assert.Equal(t, []string{"Rent/Mortgage"}, a.OverBudgetCategories)

	byName := map[string]domain.CategorySpending{}
	for _, c := range a.Categories {
		byName[c.Category] = c
	}
	assert.Equal(t, domain.StatusAt, byName["Food"].Status) // 720 of 750 = 96%
	assert.Equal(t, 100.0, byName["Wants"].Spent)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Analyses)
}

func TestGetSpendingAnalysis_ExplicitPeriod(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	f.declare(t, "user-1", 5000)
	f.spend(t, "user-1", "food", 40, time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC))
	f.spend(t, "user-1", "food", 60, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC))

	report, err := f.budgets.GetSpendingAnalysis(context.Background(), "user-1", domain.SpendingPeriod{
		From: domain.Date{Year: 2024, Month: 2, Day: 1},
		To:   domain.Date{Year: 2024, Month: 2, Day: 29},
	})
	require.NoError(t, err)
	assert.Equal(t, 40.0, report.Analysis.TotalSpent)
}

func TestGetSpendingAnalysis_InvertedPeriod(t *testing.T) {
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 5000)

	_, err := f.budgets.GetSpendingAnalysis(context.Background(), "user-1", domain.SpendingPeriod{
		From: domain.Date{Year: 2024, Month: 3, Day: 2},
		To:   domain.Date{Year: 2024, Month: 3, Day: 1},
	})

	var ve *domain.ErrValidation
	assert.True(t, errors.As(err, &ve))
}

func TestGetSpendingAnalysis_NoDeclaration(t *testing.T) {
	f := newFixture(t, time.Now())

	_, err := f.budgets.GetSpendingAnalysis(context.Background(), "ghost", domain.SpendingPeriod{})

	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestPreview(t *testing.T) {
	f := newFixture(t, time.Now())

	res := f.budgets.Preview(context.Background(), &domain.AllocateRequest{
		MonthlyIncome:      5000,
		Categories:         domain.CategoryShares{{Name: "wants", Percentage: 15}},
		WantsSubcategories: []domain.CategoryShare{{Name: "dining", Percentage: 40}},
	})

	require.True(t, res.IsValid)
	require.Len(t, res.Categories[0].Subcategories, 1)
	assert.Equal(t, 300.0, res.Categories[0].Subcategories[0].Amount)
	assert.Equal(t, 4250.0, res.Unallocated)
}
