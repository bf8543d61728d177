// Package memstore is a process-local implementation of port.Store. It is the
// default backend for development and the fixture behind service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/google/uuid"
)

// Store keeps declarations and transactions in maps guarded by one RWMutex.
// Values are copied in and out so callers never share memory with it.
type Store struct {
	mu           sync.RWMutex
	declarations map[string]*domain.BudgetDeclaration
	transactions map[string][]domain.Transaction
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		declarations: make(map[string]*domain.BudgetDeclaration),
		transactions: make(map[string][]domain.Transaction),
		now:          time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetBudgetDeclaration(_ context.Context, userID string) (*domain.BudgetDeclaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.declarations[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "budget declaration", ID: userID}
	}
	return copyDeclaration(d), nil
}

func (s *Store) SaveBudgetDeclaration(_ context.Context, decl *domain.BudgetDeclaration) (*domain.BudgetDeclaration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyDeclaration(decl)
	next.Streak = nil
	if prev, ok := s.declarations[decl.UserID]; ok && prev.Streak != nil {
		st := *prev.Streak
		next.Streak = &st
	}
	next.UpdatedAt = s.now().UTC()
	s.declarations[decl.UserID] = next

	return copyDeclaration(next), nil
}

func (s *Store) SaveStreakState(_ context.Context, userID string, state domain.StreakState, expectedLastChecked *domain.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.declarations[userID]
	if !ok {
		return &domain.ErrNotFound{Resource: "budget declaration", ID: userID}
	}

	switch {
	case d.Streak == nil && expectedLastChecked == nil:
	case d.Streak != nil && expectedLastChecked != nil && d.Streak.LastCheckedDate == *expectedLastChecked:
	default:
		return &domain.ErrConflict{Resource: "streak", ID: userID}
	}

	st := state
	d.Streak = &st
	return nil
}

func (s *Store) ListBudgetUsers(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.declarations))
	for id := range s.declarations {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) GetTransactions(_ context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, len(s.transactions[userID]))
	for _, tx := range s.transactions[userID] {
		if !from.IsZero() && tx.Date.Before(from) {
			continue
		}
		if !to.IsZero() && tx.Date.After(to) {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.insert(*tx)
	return &stored, nil
}

func (s *Store) CreateTransactions(_ context.Context, txs []domain.Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		s.insert(tx)
	}
	return len(txs), nil
}

func (s *Store) insert(tx domain.Transaction) domain.Transaction {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now().UTC()
	}
	s.transactions[tx.UserID] = append(s.transactions[tx.UserID], tx)
	return tx
}

func (s *Store) DeleteTransaction(_ context.Context, userID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := s.transactions[userID]
	for i, tx := range txs {
		if tx.ID == transactionID {
			s.transactions[userID] = append(txs[:i:i], txs[i+1:]...)
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
}

func copyDeclaration(d *domain.BudgetDeclaration) *domain.BudgetDeclaration {
	c := *d
	c.Categories = append(domain.CategoryShares(nil), d.Categories...)
	c.WantsSubcategories = append([]domain.CategoryShare(nil), d.WantsSubcategories...)
	if d.Streak != nil {
		st := *d.Streak
		c.Streak = &st
	}
	return &c
}
