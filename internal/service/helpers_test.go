package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/cache"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/memstore"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockAdvisor struct {
	response *domain.AdvisorResponse
	err      error
	got      *domain.AdvisorRequest
}

func (m *mockAdvisor) Call(_ context.Context, req *domain.AdvisorRequest) (*domain.AdvisorResponse, error) {
	m.got = req
	return m.response, m.err
}

type mockSampleSource struct {
	samples []domain.Transaction
	err     error
	calls   int
}

func (m *mockSampleSource) FetchSamples(_ context.Context, _ string, _, _ int) ([]domain.Transaction, error) {
	m.calls++
	return m.samples, m.err
}

type plainCipher struct{}

func (plainCipher) Encrypt(s string) (string, error) { return s, nil }
func (plainCipher) Decrypt(s string) (string, error) { return s, nil }

// --- Fixture ---

type fixture struct {
	store   *memstore.Store
	cache   *cache.InMemory[*domain.BudgetDeclaration]
	metrics *observability.Metrics
	budgets *service.BudgetService
	txs     *service.TransactionService
	streaks *service.StreakTracker
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	store := memstore.New()
	c := cache.New[*domain.BudgetDeclaration](5 * time.Minute)
	t.Cleanup(c.Stop)
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	return &fixture{
		store:   store,
		cache:   c,
		metrics: metrics,
		budgets: service.NewBudgetService(store, store, c, metrics, logger, time.UTC).WithClock(func() time.Time { return now }),
		txs:     service.NewTransactionService(store, plainCipher{}, metrics, logger),
		streaks: service.NewStreakTracker(store, store, c, metrics, logger, time.UTC, 3),
	}
}

func standardDeclaration(userID string, income float64) *domain.BudgetDeclaration {
	return &domain.BudgetDeclaration{
		UserID:        userID,
		MonthlyIncome: income,
		Categories: domain.CategoryShares{
			{Name: "Rent/Mortgage", Percentage: 30},
			{Name: "Food", Percentage: 15},
			{Name: "Bills", Percentage: 10},
			{Name: "Savings", Percentage: 20},
			{Name: "Investments", Percentage: 10},
			{Name: "Wants", Percentage: 15},
		},
	}
}

func (f *fixture) declare(t *testing.T, userID string, income float64) {
	t.Helper()
	_, _, err := f.budgets.SaveDeclaration(context.Background(), standardDeclaration(userID, income))
	require.NoError(t, err)
}

func (f *fixture) spend(t *testing.T, userID, category string, amount float64, at time.Time) {
	t.Helper()
	_, err := f.txs.Create(context.Background(), userID, &domain.TransactionRequest{
		Category: category,
		Amount:   amount,
		Date:     at,
	})
	require.NoError(t, err)
}
