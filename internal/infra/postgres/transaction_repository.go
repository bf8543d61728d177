package postgres

import (
	"context"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

var transactionColumns = []string{
	"id", "user_id", "category", "amount", "description", "merchant", "date", "created_at",
}

func (s *Store) GetTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	sql, args, err := selectTransactions(userID, from, to).ToSql()
	if err != nil {
		return nil, err
	}

	var out []domain.Transaction
	err = s.execute(ctx, func() error {
		rows, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]domain.Transaction, 0)
		for rows.Next() {
			var tx domain.Transaction
			if err := rows.Scan(
				&tx.ID, &tx.UserID, &tx.Category, &tx.Amount, &tx.Description, &tx.Merchant, &tx.Date, &tx.CreatedAt,
			); err != nil {
				return resilience.Permanent(err)
			}
			out = append(out, tx)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapErr("get transactions", err)
	}
	return out, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", tx.UserID))

	stored := prepareTransaction(*tx, time.Now().UTC())
	sql, args, err := insertTransactions([]domain.Transaction{stored}).ToSql()
	if err != nil {
		return nil, err
	}

	err = s.execute(ctx, func() error {
		_, err := s.db.Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return nil, wrapErr("create transaction", err)
	}
	return &stored, nil
}

// CreateTransactions inserts the batch as one multi-row statement, so it
// lands entirely or not at all.
func (s *Store) CreateTransactions(ctx context.Context, txs []domain.Transaction) (int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateTransactions")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(txs)))

	if len(txs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	prepared := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		prepared = append(prepared, prepareTransaction(tx, now))
	}

	sql, args, err := insertTransactions(prepared).ToSql()
	if err != nil {
		return 0, err
	}

	var n int
	err = s.execute(ctx, func() error {
		tag, err := s.db.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		n = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, wrapErr("create transactions", err)
	}
	return n, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("transaction.id", transactionID))

	sql, args, err := squirrel.Delete("transactions").
		Where(squirrel.Eq{"id": transactionID, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	err = s.execute(ctx, func() error {
		tag, err := s.db.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "transaction", ID: transactionID})
		}
		return nil
	})
	if err != nil {
		return wrapErr("delete transaction", err)
	}
	return nil
}

func selectTransactions(userID string, from, to time.Time) squirrel.SelectBuilder {
	q := squirrel.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("date ASC").
		PlaceholderFormat(squirrel.Dollar)
	if !from.IsZero() {
		q = q.Where(squirrel.GtOrEq{"date": from})
	}
	if !to.IsZero() {
		q = q.Where(squirrel.LtOrEq{"date": to})
	}
	return q
}

func insertTransactions(txs []domain.Transaction) squirrel.InsertBuilder {
	q := squirrel.Insert("transactions").
		Columns(transactionColumns...).
		PlaceholderFormat(squirrel.Dollar)
	for _, tx := range txs {
		q = q.Values(tx.ID, tx.UserID, tx.Category, tx.Amount, tx.Description, tx.Merchant, tx.Date, tx.CreatedAt)
	}
	return q
}

func prepareTransaction(tx domain.Transaction, now time.Time) domain.Transaction {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	return tx
}
