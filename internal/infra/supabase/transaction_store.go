package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Transactions: insert-only, deleted individually
// ============================================================

type transactionRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Merchant    string    `json:"merchant"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

func toRow(tx domain.Transaction) transactionRow {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return transactionRow{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Category:    tx.Category,
		Amount:      tx.Amount,
		Description: tx.Description,
		Merchant:    tx.Merchant,
		Date:        tx.Date.UTC(),
		CreatedAt:   tx.CreatedAt.UTC(),
	}
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		Category:    r.Category,
		Amount:      r.Amount,
		Description: r.Description,
		Merchant:    r.Merchant,
		Date:        r.Date,
		CreatedAt:   r.CreatedAt,
	}
}

func (c *Client) GetTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	if !from.IsZero() {
		q.Add("date", "gte."+from.UTC().Format(time.RFC3339Nano))
	}
	if !to.IsZero() {
		q.Add("date", "lte."+to.UTC().Format(time.RFC3339Nano))
	}
	q.Set("order", "date.asc")
	path := transactionsTable + "?" + q.Encode()

	var out []domain.Transaction
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		var rows []transactionRow
		if !isEmpty(body) {
			if err := json.Unmarshal(body, &rows); err != nil {
				return resilience.Permanent(fmt.Errorf("decode transactions: %w", err))
			}
		}
		out = make([]domain.Transaction, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/transactions", err)
	}
	return out, nil
}

func (c *Client) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", tx.UserID))

	row := toRow(*tx)
	var created domain.Transaction
	err := c.execute(ctx, func() error {
		body, err := c.doPost(ctx, transactionsTable, row, "return=representation")
		if err != nil {
			return err
		}
		var rows []transactionRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return resilience.Permanent(fmt.Errorf("decode transaction: %w", err))
		}
		if len(rows) == 0 {
			return resilience.Permanent(fmt.Errorf("insert of transaction %s returned no row", row.ID))
		}
		created = rows[0].toDomain()
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/transactions", err)
	}
	return &created, nil
}

// CreateTransactions inserts the batch in one request; PostgREST runs it in
// a single statement so it lands entirely or not at all.
func (c *Client) CreateTransactions(ctx context.Context, txs []domain.Transaction) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTransactions")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(txs)))

	if len(txs) == 0 {
		return 0, nil
	}
	rows := make([]transactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, toRow(tx))
	}

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, transactionsTable, rows, "return=minimal")
		return err
	})
	if err != nil {
		return 0, wrapErr("supabase/transactions", err)
	}
	return len(rows), nil
}

func (c *Client) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("transaction.id", transactionID))

	path := fmt.Sprintf("%s?id=eq.%s&user_id=eq.%s", transactionsTable, url.QueryEscape(transactionID), url.QueryEscape(userID))
	err := c.execute(ctx, func() error {
		body, err := c.doDelete(ctx, path)
		if err != nil {
			return err
		}
		if isEmpty(body) {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "transaction", ID: transactionID})
		}
		return nil
	})
	if err != nil {
		return wrapErr("supabase/transactions", err)
	}
	return nil
}
