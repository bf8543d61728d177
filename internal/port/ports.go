// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
)

// BudgetStore persists the one live budget declaration per user together
// with its embedded streak.
type BudgetStore interface {
	// GetBudgetDeclaration returns *domain.ErrNotFound when the user has none.
	GetBudgetDeclaration(ctx context.Context, userID string) (*domain.BudgetDeclaration, error)

	// SaveBudgetDeclaration upserts income and categories. An existing streak
	// is kept; decl.Streak is ignored.
	SaveBudgetDeclaration(ctx context.Context, decl *domain.BudgetDeclaration) (*domain.BudgetDeclaration, error)

	// SaveStreakState writes state only if the stored lastCheckedDate still
	// equals expectedLastChecked (nil: no streak stored yet). Otherwise it
	// returns *domain.ErrConflict and leaves the record untouched.
	SaveStreakState(ctx context.Context, userID string, state domain.StreakState, expectedLastChecked *domain.Date) error

	// ListBudgetUsers returns the IDs of every user with a declaration.
	ListBudgetUsers(ctx context.Context) ([]string, error)
}

// TransactionStore persists immutable expense records.
type TransactionStore interface {
	// GetTransactions returns the user's transactions dated within [from, to].
	// A zero bound is open.
	GetTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
	CreateTransactions(ctx context.Context, txs []domain.Transaction) (int, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) error
}

// Store is everything the services need from persistence.
type Store interface {
	BudgetStore
	TransactionStore
	Ping(ctx context.Context) error
}

// AdvisorCaller invokes the external advisory (AI) service.
type AdvisorCaller interface {
	Call(ctx context.Context, req *domain.AdvisorRequest) (*domain.AdvisorResponse, error)
}

// SampleSource fetches sample transactions from an external generator.
type SampleSource interface {
	FetchSamples(ctx context.Context, userID string, count, days int) ([]domain.Transaction, error)
}

// FieldCipher encrypts free-text transaction fields at rest.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
