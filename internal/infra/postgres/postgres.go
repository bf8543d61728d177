// Package postgres implements port.Store on PostgreSQL through pgx and
// squirrel-built statements. Every statement runs through a circuit breaker
// with bounded retries; errors the server reports about the statement itself
// are not retried.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const service = "postgres"

var tracer = otel.Tracer("postgres")

//go:embed schema.sql
var schema string

// NewPool opens a connection pool for dsn and pings it.
func NewPool(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
	)

	return pool, nil
}

// querier is the part of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store is the PostgreSQL-backed port.Store.
type Store struct {
	db     querier
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// NewStore wraps an open pool.
func NewStore(db *pgxpool.Pool, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Store {
	return &Store{db: db, cb: cb, cfg: cfg, logger: logger}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info("Database schema applied")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// execute runs fn through the circuit breaker with retry and backoff.
func (s *Store) execute(ctx context.Context, fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, func() error {
			return classify(fn())
		})
	})
	return err
}

// classify marks errors that a retry cannot fix as permanent: domain
// outcomes, missing rows and statement errors reported by the server.
// Connection failures, serialization failures, deadlocks and shutdowns
// stay retryable.
func classify(err error) error {
	if err == nil || resilience.IsPermanent(err) {
		return err
	}
	var nf *domain.ErrNotFound
	var conflict *domain.ErrConflict
	if errors.As(err, &nf) || errors.As(err, &conflict) || errors.Is(err, pgx.ErrNoRows) {
		return resilience.Permanent(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return err
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57"):
			return err
		}
		return resilience.Permanent(err)
	}
	return err
}

// wrapErr passes domain errors through and wraps everything else as a
// store failure.
func wrapErr(op string, err error) error {
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
		return &domain.ErrTimeout{Operation: service + "/" + op}
	}
	return &domain.ErrExternalService{Service: service, Err: fmt.Errorf("%s: %w", op, err)}
}
