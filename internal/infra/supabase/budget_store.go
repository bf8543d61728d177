package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Budgets: one row per user, streak columns embedded
// ============================================================

type budgetRow struct {
	UserID             string                 `json:"user_id"`
	MonthlyIncome      float64                `json:"monthly_income"`
	Categories         domain.CategoryShares  `json:"categories"`
	WantsSubcategories []domain.CategoryShare `json:"wants_subcategories"`
	CurrentStreak      int                    `json:"current_streak"`
	LongestStreak      int                    `json:"longest_streak"`
	LastCheckedDate    domain.Date            `json:"last_checked_date"`
	MonthlyResetDate   domain.Date            `json:"monthly_reset_date"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

func (r budgetRow) toDomain() *domain.BudgetDeclaration {
	d := &domain.BudgetDeclaration{
		UserID:             r.UserID,
		MonthlyIncome:      r.MonthlyIncome,
		Categories:         r.Categories,
		WantsSubcategories: r.WantsSubcategories,
		UpdatedAt:          r.UpdatedAt,
	}
	if !r.LastCheckedDate.IsZero() {
		d.Streak = &domain.StreakState{
			CurrentStreak:    r.CurrentStreak,
			LongestStreak:    r.LongestStreak,
			LastCheckedDate:  r.LastCheckedDate,
			MonthlyResetDate: r.MonthlyResetDate,
		}
	}
	return d
}

func (c *Client) GetBudgetDeclaration(ctx context.Context, userID string) (*domain.BudgetDeclaration, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBudgetDeclaration")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var decl *domain.BudgetDeclaration
	err := c.execute(ctx, func() error {
		row, err := c.fetchBudget(ctx, userID)
		if err != nil {
			return err
		}
		decl = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/budgets", err)
	}
	return decl, nil
}

func (c *Client) fetchBudget(ctx context.Context, userID string) (*budgetRow, error) {
	path := fmt.Sprintf("%s?user_id=eq.%s&limit=1", budgetsTable, url.QueryEscape(userID))
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []budgetRow
	if !isEmpty(body) {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, resilience.Permanent(fmt.Errorf("decode budget: %w", err))
		}
	}
	if len(rows) == 0 {
		return nil, resilience.Permanent(&domain.ErrNotFound{Resource: "budget declaration", ID: userID})
	}
	return &rows[0], nil
}

// SaveBudgetDeclaration upserts on user_id. Only declaration columns are
// sent, so PostgREST leaves the streak columns of an existing row alone.
func (c *Client) SaveBudgetDeclaration(ctx context.Context, decl *domain.BudgetDeclaration) (*domain.BudgetDeclaration, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SaveBudgetDeclaration")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", decl.UserID))

	wants := decl.WantsSubcategories
	if wants == nil {
		wants = []domain.CategoryShare{}
	}
	data := map[string]any{
		"user_id":             decl.UserID,
		"monthly_income":      decl.MonthlyIncome,
		"categories":          decl.Categories,
		"wants_subcategories": wants,
		"updated_at":          time.Now().UTC(),
	}

	var saved *domain.BudgetDeclaration
	err := c.execute(ctx, func() error {
		body, err := c.doPost(ctx, budgetsTable+"?on_conflict=user_id", data, "resolution=merge-duplicates,return=representation")
		if err != nil {
			return err
		}
		var rows []budgetRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return resilience.Permanent(fmt.Errorf("decode budget: %w", err))
		}
		if len(rows) == 0 {
			return resilience.Permanent(fmt.Errorf("upsert of budget %s returned no row", decl.UserID))
		}
		saved = rows[0].toDomain()
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/budgets", err)
	}

	c.logger.Info("supabase: budget declaration saved", zap.String("user_id", decl.UserID))
	return saved, nil
}

// SaveStreakState PATCHes the streak columns filtered on the expected
// last_checked_date. An empty representation means the filter missed: either
// the user has no row or another check got there first.
func (c *Client) SaveStreakState(ctx context.Context, userID string, state domain.StreakState, expectedLastChecked *domain.Date) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveStreakState")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	guard := "is.null"
	if expectedLastChecked != nil {
		guard = "eq." + expectedLastChecked.String()
	}
	path := fmt.Sprintf("%s?user_id=eq.%s&last_checked_date=%s", budgetsTable, url.QueryEscape(userID), guard)
	data := map[string]any{
		"current_streak":     state.CurrentStreak,
		"longest_streak":     state.LongestStreak,
		"last_checked_date":  state.LastCheckedDate,
		"monthly_reset_date": state.MonthlyResetDate,
	}

	err := c.execute(ctx, func() error {
		body, err := c.doPatch(ctx, path, data)
		if err != nil {
			return err
		}
		if !isEmpty(body) {
			return nil
		}
		if _, err := c.fetchBudget(ctx, userID); err != nil {
			return err
		}
		return resilience.Permanent(&domain.ErrConflict{Resource: "streak", ID: userID})
	})
	if err != nil {
		return wrapErr("supabase/budgets", err)
	}
	return nil
}

func (c *Client) ListBudgetUsers(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListBudgetUsers")
	defer span.End()

	var users []string
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, budgetsTable+"?select=user_id&order=user_id.asc")
		if err != nil {
			return err
		}
		var rows []struct {
			UserID string `json:"user_id"`
		}
		if !isEmpty(body) {
			if err := json.Unmarshal(body, &rows); err != nil {
				return resilience.Permanent(fmt.Errorf("decode budget users: %w", err))
			}
		}
		users = make([]string, 0, len(rows))
		for _, r := range rows {
			users = append(users, r.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/budgets", err)
	}
	return users, nil
}

// wrapErr passes domain errors through and wraps everything else as an
// external-service failure.
func wrapErr(service string, err error) error {
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return nf
	}
	var conflict *domain.ErrConflict
	if errors.As(err, &conflict) {
		return conflict
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: service}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: service}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}
