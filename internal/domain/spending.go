package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================
// Transactions
// ============================================================

// Transaction is a recorded expense. Immutable once created.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId,omitempty"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Merchant    string    `json:"merchant,omitempty"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// TransactionRequest is the body of POST /v1/users/{userId}/transactions.
type TransactionRequest struct {
	Category    string    `json:"category" validate:"required,max=64"`
	Amount      float64   `json:"amount" validate:"gt=0"`
	Description string    `json:"description" validate:"max=500"`
	Merchant    string    `json:"merchant" validate:"max=200"`
	Date        time.Time `json:"date"`

	// Day is set instead of a time of day when date was a bare YYYY-MM-DD.
	// The service places it at midnight in the budget zone.
	Day Date `json:"-"`
}

// UnmarshalJSON accepts date as an RFC 3339 timestamp or a YYYY-MM-DD day.
func (r *TransactionRequest) UnmarshalJSON(b []byte) error {
	type plain TransactionRequest
	aux := struct {
		*plain
		Date *string `json:"date"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	r.Date, r.Day = time.Time{}, Date{}
	if aux.Date == nil || *aux.Date == "" {
		return nil
	}
	if len(*aux.Date) == len(dateLayout) {
		d, err := ParseDate(*aux.Date)
		if err != nil {
			return err
		}
		r.Day = d
		r.Date = d.In(time.UTC)
		return nil
	}
	t, err := time.Parse(time.RFC3339, *aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date %q: must be RFC 3339 or YYYY-MM-DD", *aux.Date)
	}
	r.Date = t
	return nil
}

// TransactionList is returned by GET /v1/users/{userId}/transactions.
type TransactionList struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
}

// ============================================================
// Spending analysis (derived)
// ============================================================

// SpendingStatus classifies a category against its allocation.
type SpendingStatus string

const (
	StatusUnder SpendingStatus = "under"
	StatusAt    SpendingStatus = "at"
	StatusOver  SpendingStatus = "over"
)

// SpendingAnalysis compares transactions against a BudgetResult.
type SpendingAnalysis struct {
	TotalSpent             float64            `json:"totalSpent"`
	TotalBudget            float64            `json:"totalBudget"`
	PercentageOfBudgetUsed float64            `json:"percentageOfBudgetUsed"`
	Categories             []CategorySpending `json:"categories"`
	OverBudgetCategories   []string           `json:"overBudgetCategories"`
}

// CategorySpending is the per-category line of a SpendingAnalysis.
type CategorySpending struct {
	Category       string         `json:"category"`
	Spent          float64        `json:"spent"`
	Budget         float64        `json:"budget"`
	Remaining      float64        `json:"remaining"`
	PercentageUsed float64        `json:"percentageUsed"`
	Status         SpendingStatus `json:"status"`
}

// SpendingPeriod is the inclusive range a SpendingAnalysis covers.
type SpendingPeriod struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// SpendingReport wraps an analysis with the period it was computed for.
type SpendingReport struct {
	UserID   string            `json:"userId"`
	Period   SpendingPeriod    `json:"period"`
	Budget   *BudgetResult     `json:"budget"`
	Analysis *SpendingAnalysis `json:"analysis"`
}
