package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var txTracer = otel.Tracer("service/transactions")

// TransactionService records and lists expenses. Free-text fields are
// encrypted before they reach the store.
type TransactionService struct {
	store   port.TransactionStore
	cipher  port.FieldCipher
	metrics *observability.Metrics
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewTransactionService creates a new transaction service.
func NewTransactionService(store port.TransactionStore, cipher port.FieldCipher, metrics *observability.Metrics, logger *zap.Logger) *TransactionService {
	return &TransactionService{store: store, cipher: cipher, metrics: metrics, logger: logger, loc: time.UTC, now: time.Now}
}

// WithLocation sets the zone date-only transactions are placed in.
func (s *TransactionService) WithLocation(loc *time.Location) *TransactionService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// Create validates and stores a single transaction. Transactions are
// immutable once created.
func (s *TransactionService) Create(ctx context.Context, userID string, req *domain.TransactionRequest) (*domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	tx := domain.Transaction{
		UserID:      strings.TrimSpace(userID),
		Category:    strings.TrimSpace(req.Category),
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		Merchant:    strings.TrimSpace(req.Merchant),
		Date:        req.Date,
	}
	if !req.Day.IsZero() {
		tx.Date = req.Day.In(s.loc)
	}
	if err := validateTransaction(&tx); err != nil {
		return nil, err
	}
	s.stamp(&tx)

	sealed, err := s.seal(tx)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.CreateTransaction(ctx, &sealed); err != nil {
		s.metrics.IncrStoreError("create_transaction")
		s.logger.Error("failed to create transaction",
			zap.String("user_id", tx.UserID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.Info("transaction created",
		zap.String("user_id", tx.UserID),
		zap.String("transaction_id", tx.ID),
		zap.String("category", tx.Category),
		zap.Float64("amount", tx.Amount),
	)
	return &tx, nil
}

// CreateBatch validates and stores txs for userID in one call.
func (s *TransactionService) CreateBatch(ctx context.Context, userID string, txs []domain.Transaction) (int, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.CreateBatch")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("transactions.count", len(txs)))

	sealed := make([]domain.Transaction, 0, len(txs))
	for i := range txs {
		tx := txs[i]
		tx.UserID = userID
		if err := validateTransaction(&tx); err != nil {
			return 0, fmt.Errorf("transaction #%d: %w", i+1, err)
		}
		s.stamp(&tx)
		st, err := s.seal(tx)
		if err != nil {
			return 0, err
		}
		sealed = append(sealed, st)
	}

	n, err := s.store.CreateTransactions(ctx, sealed)
	if err != nil {
		s.metrics.IncrStoreError("create_transactions")
		return 0, fmt.Errorf("create transactions: %w", err)
	}
	return n, nil
}

// List returns the user's transactions in [from, to], decrypted.
func (s *TransactionService) List(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.List")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, &domain.ErrValidation{Field: "from", Message: "must not be after to"}
	}

	txs, err := s.store.GetTransactions(ctx, userID, from, to)
	if err != nil {
		s.metrics.IncrStoreError("get_transactions")
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	for i := range txs {
		if err := s.open(&txs[i]); err != nil {
			s.logger.Error("failed to decrypt transaction",
				zap.String("user_id", userID),
				zap.String("transaction_id", txs[i].ID),
				zap.Error(err),
			)
			return nil, fmt.Errorf("decrypt transaction %s: %w", txs[i].ID, err)
		}
	}
	return txs, nil
}

// Delete removes a whole transaction record.
func (s *TransactionService) Delete(ctx context.Context, userID, transactionID string) error {
	ctx, span := txTracer.Start(ctx, "TransactionService.Delete")
	defer span.End()

	if err := s.store.DeleteTransaction(ctx, userID, transactionID); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.logger.Info("transaction deleted",
		zap.String("user_id", userID),
		zap.String("transaction_id", transactionID),
	)
	return nil
}

func validateTransaction(tx *domain.Transaction) error {
	switch {
	case tx.UserID == "":
		return &domain.ErrValidation{Field: "userId", Message: "required"}
	case tx.Category == "":
		return &domain.ErrValidation{Field: "category", Message: "required"}
	case math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || tx.Amount <= 0:
		return &domain.ErrValidation{Field: "amount", Message: "must be a positive number"}
	case tx.Date.IsZero():
		return &domain.ErrValidation{Field: "date", Message: "required"}
	}
	return nil
}

func (s *TransactionService) stamp(tx *domain.Transaction) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now().UTC()
	}
}

func (s *TransactionService) seal(tx domain.Transaction) (domain.Transaction, error) {
	var err error
	if tx.Description, err = s.cipher.Encrypt(tx.Description); err != nil {
		return tx, fmt.Errorf("encrypt description: %w", err)
	}
	if tx.Merchant, err = s.cipher.Encrypt(tx.Merchant); err != nil {
		return tx, fmt.Errorf("encrypt merchant: %w", err)
	}
	return tx, nil
}

func (s *TransactionService) open(tx *domain.Transaction) error {
	var err error
	if tx.Description, err = s.cipher.Decrypt(tx.Description); err != nil {
		return err
	}
	tx.Merchant, err = s.cipher.Decrypt(tx.Merchant)
	return err
}
