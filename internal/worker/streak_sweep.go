// Package worker runs scheduled background jobs.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSchedule runs shortly after midnight so yesterday is final.
const DefaultSweepSchedule = "5 0 * * *"

const sweepTimeout = 10 * time.Minute

type userLister interface {
	ListBudgetUsers(ctx context.Context) ([]string, error)
}

type streakChecker interface {
	Check(ctx context.Context, userID string, now time.Time) (*domain.StreakCheckResult, error)
}

// SweepResult summarizes one pass over every user.
type SweepResult struct {
	Users   int
	Checked int
	Failed  int
}

// StreakSweep checks every user's streak on a schedule so streaks advance
// for users who never open the app. A failing user is logged and skipped.
type StreakSweep struct {
	users    userLister
	streaks  streakChecker
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	cron     *cron.Cron
	schedule string
	now      func() time.Time
	logger   *zap.Logger
}

// NewStreakSweep builds a sweep that fires on schedule in loc and checks at
// most concurrency users at a time.
func NewStreakSweep(
	users userLister,
	streaks streakChecker,
	metrics *observability.Metrics,
	logger *zap.Logger,
	schedule string,
	concurrency int,
	loc *time.Location,
) *StreakSweep {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	return &StreakSweep{
		users:    users,
		streaks:  streaks,
		bulkhead: resilience.NewBulkhead(concurrency),
		metrics:  metrics,
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		now:      time.Now,
		logger:   logger,
	}
}

// Start registers the job and starts the scheduler.
func (w *StreakSweep) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("Streak sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Streak sweep worker started", zap.String("schedule", w.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (w *StreakSweep) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("Streak sweep worker stopped")
}

// RunOnce checks every user with a declaration. Only listing the users can
// fail the sweep as a whole.
func (w *StreakSweep) RunOnce(ctx context.Context) (SweepResult, error) {
	users, err := w.users.ListBudgetUsers(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	now := w.now()
	res := SweepResult{Users: len(users)}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for i, userID := range users {
		if err := w.bulkhead.Acquire(ctx); err != nil {
			// Cancelled: the users not yet started count as failed.
			mu.Lock()
			res.Failed += len(users) - i
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			defer w.bulkhead.Release()

			result, err := w.streaks.Check(ctx, userID, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				w.metrics.IncrSweepUser("error")
				w.logger.Warn("Streak sweep: check failed",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				return
			}
			res.Checked++
			w.metrics.IncrSweepUser(string(result.Outcome))
		}(userID)
	}

	wg.Wait()

	w.logger.Info("Streak sweep completed",
		zap.Int("users", res.Users),
		zap.Int("checked", res.Checked),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
