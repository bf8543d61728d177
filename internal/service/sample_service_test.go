package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSampleImport_GeneratesLocally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 4000)
	svc := service.NewSampleService(nil, f.txs, f.budgets, zap.NewNop())

	resp, err := svc.Import(ctx, "user-1", &domain.SampleRequest{Count: 40, Days: 10})
	require.NoError(t, err)

	assert.Equal(t, 40, resp.Imported)
	assert.Equal(t, "generated", resp.Source)
	assert.Greater(t, resp.Total, 0.0)

	txs, err := f.txs.List(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, txs, 40)

	oldest := time.Now().AddDate(0, 0, -11)
	for _, tx := range txs {
		assert.Greater(t, tx.Amount, 0.0)
		assert.True(t, tx.Date.After(oldest), "transaction dated %s outside window", tx.Date)
		assert.NotEmpty(t, tx.ID)
	}
}

func TestSampleImport_UsesRemoteSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 4000)

	when := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	source := &mockSampleSource{samples: []domain.Transaction{
		{Category: "food", Amount: 10.10, Date: when},
		{Category: "bills", Amount: 20.20, Date: when},
		{Category: "wants", Amount: 30.30, Date: when},
	}}
	svc := service.NewSampleService(source, f.txs, f.budgets, zap.NewNop())

	resp, err := svc.Import(ctx, "user-1", &domain.SampleRequest{Count: 2})
	require.NoError(t, err)

	assert.Equal(t, "remote", resp.Source)
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, 30.30, resp.Total)
}

func TestSampleImport_FallsBackWhenRemoteFails(t *testing.T) {
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 4000)
	source := &mockSampleSource{err: errors.New("connection refused")}
	svc := service.NewSampleService(source, f.txs, f.budgets, zap.NewNop())

	resp, err := svc.Import(context.Background(), "user-1", &domain.SampleRequest{Count: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, "generated", resp.Source)
	assert.Equal(t, 5, resp.Imported)
}

func TestSampleImport_Bounds(t *testing.T) {
	f := newFixture(t, time.Now())
	f.declare(t, "user-1", 4000)
	svc := service.NewSampleService(nil, f.txs, f.budgets, zap.NewNop())

	for _, count := range []int{0, -1, 101} {
		_, err := svc.Import(context.Background(), "user-1", &domain.SampleRequest{Count: count})
		var ve *domain.ErrValidation
		assert.True(t, errors.As(err, &ve), "count %d", count)
	}
}

func TestSampleImport_RequiresDeclaration(t *testing.T) {
	f := newFixture(t, time.Now())
	svc := service.NewSampleService(nil, f.txs, f.budgets, zap.NewNop())

	_, err := svc.Import(context.Background(), "ghost", &domain.SampleRequest{Count: 3})

	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}
