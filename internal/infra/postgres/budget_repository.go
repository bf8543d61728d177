package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var budgetColumns = []string{
	"user_id", "monthly_income", "categories", "wants_subcategories",
	"current_streak", "longest_streak", "last_checked_date", "monthly_reset_date", "updated_at",
}

func (s *Store) GetBudgetDeclaration(ctx context.Context, userID string) (*domain.BudgetDeclaration, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetBudgetDeclaration")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var decl *domain.BudgetDeclaration
	err := s.execute(ctx, func() error {
		var err error
		decl, err = s.fetchBudget(ctx, userID)
		return err
	})
	if err != nil {
		return nil, wrapErr("get budget", err)
	}
	return decl, nil
}

// fetchBudget is a single attempt; callers run it inside execute.
func (s *Store) fetchBudget(ctx context.Context, userID string) (*domain.BudgetDeclaration, error) {
	sql, args, err := selectBudget(userID).ToSql()
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	decl, err := scanBudget(s.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resilience.Permanent(&domain.ErrNotFound{Resource: "budget declaration", ID: userID})
	}
	return decl, err
}

func (s *Store) SaveBudgetDeclaration(ctx context.Context, decl *domain.BudgetDeclaration) (*domain.BudgetDeclaration, error) {
	ctx, span := tracer.Start(ctx, "Postgres.SaveBudgetDeclaration")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", decl.UserID))

	sql, args, err := upsertBudget(decl, time.Now().UTC()).ToSql()
	if err != nil {
		return nil, err
	}

	var saved *domain.BudgetDeclaration
	err = s.execute(ctx, func() error {
		var err error
		saved, err = scanBudget(s.db.QueryRow(ctx, sql, args...))
		return err
	})
	if err != nil {
		return nil, wrapErr("save budget", err)
	}

	s.logger.Info("postgres: budget declaration saved", zap.String("user_id", decl.UserID))
	return saved, nil
}

func (s *Store) SaveStreakState(ctx context.Context, userID string, state domain.StreakState, expectedLastChecked *domain.Date) error {
	ctx, span := tracer.Start(ctx, "Postgres.SaveStreakState")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	sql, args, err := updateStreak(userID, state, expectedLastChecked).ToSql()
	if err != nil {
		return err
	}

	err = s.execute(ctx, func() error {
		tag, err := s.db.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		// Nothing matched: tell a missing user apart from a lost race.
		if _, err := s.fetchBudget(ctx, userID); err != nil {
			return err
		}
		return resilience.Permanent(&domain.ErrConflict{Resource: "streak", ID: userID})
	})
	if err != nil {
		return wrapErr("save streak", err)
	}
	return nil
}

func (s *Store) ListBudgetUsers(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListBudgetUsers")
	defer span.End()

	sql, args, err := squirrel.Select("user_id").
		From("budgets").
		OrderBy("user_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var users []string
	err = s.execute(ctx, func() error {
		rows, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		users, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, wrapErr("list budget users", err)
	}
	return users, nil
}

func selectBudget(userID string) squirrel.SelectBuilder {
	return squirrel.Select(budgetColumns...).
		From("budgets").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)
}

// upsertBudget never touches the streak columns of an existing row.
func upsertBudget(decl *domain.BudgetDeclaration, now time.Time) squirrel.InsertBuilder {
	categories := decl.Categories
	if categories == nil {
		categories = domain.CategoryShares{}
	}
	wants := decl.WantsSubcategories
	if wants == nil {
		wants = []domain.CategoryShare{}
	}
	return squirrel.Insert("budgets").
		Columns("user_id", "monthly_income", "categories", "wants_subcategories", "updated_at").
		Values(decl.UserID, decl.MonthlyIncome, categories, wants, now).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET " +
			"monthly_income = EXCLUDED.monthly_income, " +
			"categories = EXCLUDED.categories, " +
			"wants_subcategories = EXCLUDED.wants_subcategories, " +
			"updated_at = EXCLUDED.updated_at").
		Suffix("RETURNING " + strings.Join(budgetColumns, ", ")).
		PlaceholderFormat(squirrel.Dollar)
}

// updateStreak is a compare-and-swap on last_checked_date. IS NOT DISTINCT
// FROM makes a nil expectation match a NULL column.
func updateStreak(userID string, state domain.StreakState, expected *domain.Date) squirrel.UpdateBuilder {
	var guard any
	if expected != nil {
		guard = expected.In(time.UTC)
	}
	return squirrel.Update("budgets").
		Set("current_streak", state.CurrentStreak).
		Set("longest_streak", state.LongestStreak).
		Set("last_checked_date", dateArg(state.LastCheckedDate)).
		Set("monthly_reset_date", dateArg(state.MonthlyResetDate)).
		Where(squirrel.Eq{"user_id": userID}).
		Where("last_checked_date IS NOT DISTINCT FROM ?::date", guard).
		PlaceholderFormat(squirrel.Dollar)
}

func dateArg(d domain.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.In(time.UTC)
}

func scanBudget(row pgx.Row) (*domain.BudgetDeclaration, error) {
	var (
		d           domain.BudgetDeclaration
		current     int
		longest     int
		lastChecked pgtype.Date
		monthReset  pgtype.Date
	)
	if err := row.Scan(
		&d.UserID, &d.MonthlyIncome, &d.Categories, &d.WantsSubcategories,
		&current, &longest, &lastChecked, &monthReset, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastChecked.Valid {
		st := domain.StreakState{
			CurrentStreak:   current,
			LongestStreak:   longest,
			LastCheckedDate: domain.DateOf(lastChecked.Time),
		}
		if monthReset.Valid {
			st.MonthlyResetDate = domain.DateOf(monthReset.Time)
		}
		d.Streak = &st
	}
	return &d, nil
}
