package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var sampleTracer = otel.Tracer("service/samples")

const (
	maxSampleCount      = 100
	defaultSampleWindow = 30
	maxSampleWindow     = 90
)

// sampleKinds drive the local generator. "misc" is deliberately not a
// budget category; it exercises the wants fallback.
var sampleKinds = []struct {
	Category string
	Descs    []string
	Merchant []string
	Min, Max int // cents
}{
	{"food", []string{"Groceries", "Lunch", "Coffee"}, []string{"Corner Grocery", "Bistro 21", "Bean There"}, 350, 12000},
	{"bills", []string{"Electricity", "Phone plan", "Internet"}, []string{"City Power", "Telco One", "FiberNet"}, 2500, 18000},
	{"rent", []string{"Rent"}, []string{"Landlord"}, 80000, 180000},
	{"wants", []string{"Cinema", "Concert", "Dinner out"}, []string{"Cineplex", "Arena", "Trattoria"}, 1200, 9000},
	{"savings", []string{"Transfer to savings"}, []string{""}, 5000, 40000},
	{"investments", []string{"Index fund"}, []string{"Broker"}, 5000, 50000},
	{"misc", []string{"Gift", "Parking", "Haircut"}, []string{"", "ParkCo", "Barber"}, 500, 6000},
}

// SampleService imports sample transactions, from the remote sample source
// when one is configured and from a local generator otherwise.
type SampleService struct {
	source  port.SampleSource
	txs     *TransactionService
	budgets *BudgetService
	logger  *zap.Logger
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampleService creates the sample importer. source may be nil.
func NewSampleService(source port.SampleSource, txs *TransactionService, budgets *BudgetService, logger *zap.Logger) *SampleService {
	return &SampleService{
		source:  source,
		txs:     txs,
		budgets: budgets,
		logger:  logger,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Import adds req.Count sample transactions spread over the last req.Days
// days. The user must already have a declaration.
func (s *SampleService) Import(ctx context.Context, userID string, req *domain.SampleRequest) (*domain.SampleResponse, error) {
	ctx, span := sampleTracer.Start(ctx, "SampleService.Import")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("count", req.Count))

	if req.Count <= 0 || req.Count > maxSampleCount {
		return nil, &domain.ErrValidation{Field: "count", Message: fmt.Sprintf("must be between 1 and %d", maxSampleCount)}
	}
	days := req.Days
	if days <= 0 {
		days = defaultSampleWindow
	}
	if days > maxSampleWindow {
		days = maxSampleWindow
	}

	if _, err := s.budgets.GetDeclaration(ctx, userID); err != nil {
		return nil, err
	}

	source := "generated"
	var samples []domain.Transaction
	if s.source != nil {
		remote, err := s.source.FetchSamples(ctx, userID, req.Count, days)
		if err != nil {
			s.logger.Warn("sample source failed, generating locally",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else {
			samples, source = remote, "remote"
			if len(samples) > req.Count {
				samples = samples[:req.Count]
			}
		}
	}
	if samples == nil {
		samples = s.generate(req.Count, days)
	}

	n, err := s.txs.CreateBatch(ctx, userID, samples)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, tx := range samples {
		total = total.Add(decimal.NewFromFloat(tx.Amount))
	}

	s.logger.Info("sample transactions imported",
		zap.String("user_id", userID),
		zap.String("source", source),
		zap.Int("imported", n),
	)

	return &domain.SampleResponse{
		Imported: n,
		Total:    total.Round(2).InexactFloat64(),
		Source:   source,
		Message:  fmt.Sprintf("%d sample transactions imported", n),
	}, nil
}

func (s *SampleService) generate(count, days int) []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]domain.Transaction, 0, count)
	for i := 0; i < count; i++ {
		kind := sampleKinds[s.rng.Intn(len(sampleKinds))]
		cents := kind.Min + s.rng.Intn(kind.Max-kind.Min+1)
		daysAgo := s.rng.Intn(days)
		at := now.AddDate(0, 0, -daysAgo).Add(-time.Duration(s.rng.Intn(12*60)) * time.Minute)

		out = append(out, domain.Transaction{
			Category:    kind.Category,
			Amount:      decimal.New(int64(cents), -2).InexactFloat64(),
			Description: kind.Descs[s.rng.Intn(len(kind.Descs))],
			Merchant:    kind.Merchant[s.rng.Intn(len(kind.Merchant))],
			Date:        at,
		})
	}
	return out
}
