package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/cache"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/memstore"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/port"
	"github.com/boddenberg/budget-coach-bfa/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func at(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestStreakCheck_InitializesOnFirstCheck(t *testing.T) {
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 3000)

	res, err := f.streaks.Check(context.Background(), "user-1", at(2024, 3, 11, 9))
	require.NoError(t, err)

	assert.Equal(t, domain.StreakInitialized, res.Outcome)
	assert.Equal(t, domain.StreakState{
		LastCheckedDate:  domain.Date{Year: 2024, Month: 3, Day: 11},
		MonthlyResetDate: domain.Date{Year: 2024, Month: 3, Day: 1},
	}, res.Streak)

	stored, err := f.streaks.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, res.Streak, *stored)
}

func TestStreakCheck_AdherenceExtends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 3000) // daily budget 100

	_, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 11, 9))
	require.NoError(t, err)

	f.spend(t, "user-1", "food", 60, at(2024, 3, 11, 12))
	f.spend(t, "user-1", "bills", 30, at(2024, 3, 11, 20))
	// Spend on the check day itself is not counted until tomorrow.
	f.spend(t, "user-1", "wants", 500, at(2024, 3, 12, 8))

	res, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 12, 9))
	require.NoError(t, err)

	assert.Equal(t, domain.StreakExtended, res.Outcome)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, 1, res.Streak.LongestStreak)
	assert.Equal(t, domain.Date{Year: 2024, Month: 3, Day: 12}, res.Streak.LastCheckedDate)
}

func TestStreakCheck_IdempotentWithinDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 3000)

	_, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 11, 9))
	require.NoError(t, err)
	first, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 12, 9))
	require.NoError(t, err)

	for _, hour := range []int{10, 15, 23} {
		again, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 12, hour))
		require.NoError(t, err)
		assert.Equal(t, domain.StreakUnchanged, again.Outcome)
		assert.Equal(t, first.Streak, again.Streak)
	}
}

func TestStreakCheck_MissAfterGapResetsAndMissAfterCheckHolds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 3000)

	_, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 10, 9))
	require.NoError(t, err)
	res, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 11, 9))
	require.NoError(t, err)
	require.Equal(t, 1, res.Streak.CurrentStreak)

	// Checked yesterday, overspent yesterday: held.
	f.spend(t, "user-1", "wants", 250, at(2024, 3, 11, 19))
	res, err = f.streaks.Check(ctx, "user-1", at(2024, 3, 12, 9))
	require.NoError(t, err)
	assert.Equal(t, domain.StreakHeld, res.Outcome)
	assert.Equal(t, 1, res.Streak.CurrentStreak)

	// Three unchecked days, overspent on the last: reset.
	f.spend(t, "user-1", "wants", 250, at(2024, 3, 14, 19))
	res, err = f.streaks.Check(ctx, "user-1", at(2024, 3, 15, 9))
	require.NoError(t, err)
	assert.Equal(t, domain.StreakReset, res.Outcome)
	assert.Zero(t, res.Streak.CurrentStreak)
	assert.Equal(t, 1, res.Streak.LongestStreak)
}

func TestStreakCheck_NoDeclaration(t *testing.T) {
	f := newFixture(t, time.Now())

	_, err := f.streaks.Check(context.Background(), "ghost", time.Now())

	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestStreakCheck_ConcurrentChecksCountOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 3000)

	_, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 11, 9))
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[domain.StreakOutcome]int{}
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.streaks.Check(ctx, "user-1", at(2024, 3, 12, 9))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[domain.StreakExtended])
	assert.Equal(t, 24, outcomes[domain.StreakUnchanged])

	stored, err := f.streaks.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentStreak)
}

// racingStore simulates another process completing the same day's check
// between this tracker's read and its write.
type racingStore struct {
	*memstore.Store
	once  sync.Once
	race  func()
	saves int
}

func (r *racingStore) SaveStreakState(ctx context.Context, userID string, state domain.StreakState, expected *domain.Date) error {
	r.saves++
	r.once.Do(r.race)
	return r.Store.SaveStreakState(ctx, userID, state, expected)
}

func TestStreakCheck_RetriesAfterConflict(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	metrics := observability.NewMetrics()
	c := cache.New[*domain.BudgetDeclaration](time.Minute)
	t.Cleanup(c.Stop)

	_, err := mem.SaveBudgetDeclaration(ctx, standardDeclaration("user-1", 3000))
	require.NoError(t, err)
	d11 := domain.Date{Year: 2024, Month: 3, Day: 11}
	d12 := d11.AddDays(1)
	require.NoError(t, mem.SaveStreakState(ctx, "user-1", domain.StreakState{
		CurrentStreak: 2, LongestStreak: 2, LastCheckedDate: d11, MonthlyResetDate: d11.FirstOfMonth(),
	}, nil))

	store := &racingStore{Store: mem}
	store.race = func() {
		// The other process already advanced the day.
		require.NoError(t, mem.SaveStreakState(ctx, "user-1", domain.StreakState{
			CurrentStreak: 3, LongestStreak: 3, LastCheckedDate: d12, MonthlyResetDate: d11.FirstOfMonth(),
		}, &d11))
	}

	tracker := service.NewStreakTracker(store, store, c, metrics, zap.NewNop(), time.UTC, 3)
	res, err := tracker.Check(ctx, "user-1", at(2024, 3, 12, 9))
	require.NoError(t, err)

	assert.Equal(t, domain.StreakUnchanged, res.Outcome)
	assert.Equal(t, 3, res.Streak.CurrentStreak, "the concurrent extension must not be applied twice")
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, int64(1), metrics.Snapshot().StreakConflicts)
}

// conflictStore loses every conditional write.
type conflictStore struct {
	*memstore.Store
}

func (conflictStore) SaveStreakState(_ context.Context, userID string, _ domain.StreakState, _ *domain.Date) error {
	return &domain.ErrConflict{Resource: "streak", ID: userID}
}

func TestStreakCheck_GivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	_, err := mem.SaveBudgetDeclaration(ctx, standardDeclaration("user-1", 3000))
	require.NoError(t, err)

	c := cache.New[*domain.BudgetDeclaration](time.Minute)
	t.Cleanup(c.Stop)
	metrics := observability.NewMetrics()

	var store port.Store = conflictStore{mem}
	tracker := service.NewStreakTracker(store, store, c, metrics, zap.NewNop(), time.UTC, 2)

	_, err = tracker.Check(ctx, "user-1", at(2024, 3, 12, 9))

	var conflict *domain.ErrConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(3), metrics.Snapshot().StreakConflicts)
}

func TestStreakCheck_UsesConfiguredTimezone(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("UTC+10", 10*3600)

	store := memstore.New()
	c := cache.New[*domain.BudgetDeclaration](time.Minute)
	t.Cleanup(c.Stop)
	metrics := observability.NewMetrics()
	tracker := service.NewStreakTracker(store, store, c, metrics, zap.NewNop(), loc, 3)
	txs := service.NewTransactionService(store, plainCipher{}, metrics, zap.NewNop())

	_, err := store.SaveBudgetDeclaration(ctx, standardDeclaration("user-1", 3000))
	require.NoError(t, err)

	// 15:00 UTC on the 10th is already the 11th in loc.
	res, err := tracker.Check(ctx, "user-1", time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, domain.Date{Year: 2024, Month: 3, Day: 11}, res.Streak.LastCheckedDate)

	// 13:00 UTC on the 11th is 23:00 local on the 11th: yesterday for the next check.
	_, err = txs.Create(ctx, "user-1", &domain.TransactionRequest{Category: "food", Amount: 150, Date: time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	res, err = tracker.Check(ctx, "user-1", time.Date(2024, 3, 12, 9, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, domain.StreakHeld, res.Outcome)
}

func TestStreakCheck_InvalidatesCachedDeclaration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 3000)

	before, err := f.budgets.GetDeclaration(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, before.Streak)

	_, err = f.streaks.Check(ctx, "user-1", at(2024, 3, 11, 9))
	require.NoError(t, err)

	after, err := f.budgets.GetDeclaration(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, after.Streak)
}

func TestStreakGet_NeverChecked(t *testing.T) {
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 3000)

	st, err := f.streaks.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StreakState{}, *st)
}
