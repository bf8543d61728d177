package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fastRetry = resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}

func TestAdvisorClient_Call(t *testing.T) {
	var got domain.AdvisorRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/advice", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(domain.AdvisorResponse{
			Answer:     "Cut dining by 10%.",
			TokensUsed: domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	c := NewAdvisorClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("advisor", zap.NewNop()), fastRetry)
	resp, err := c.Call(context.Background(), &domain.AdvisorRequest{
		UserID:   "user-1",
		Question: "where can I save?",
		Budget:   &domain.BudgetResult{MonthlyIncome: 3000, IsValid: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "Cut dining by 10%.", resp.Answer)
	assert.Equal(t, 15, resp.TokensUsed.TotalTokens)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, 3000.0, got.Budget.MonthlyIncome)
}

func TestAdvisorClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.AdvisorResponse{Answer: "ok"})
	}))
	defer srv.Close()

	c := NewAdvisorClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("advisor", zap.NewNop()), fastRetry)
	resp, err := c.Call(context.Background(), &domain.AdvisorRequest{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAdvisorClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad question", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewAdvisorClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("advisor", zap.NewNop()), fastRetry)
	_, err := c.Call(context.Background(), &domain.AdvisorRequest{UserID: "u1"})

	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "advisor", ext.Service)
	assert.Contains(t, err.Error(), "bad question")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAdvisorClient_CircuitOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAdvisorClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("advisor", zap.NewNop()), resilience.Config{})

	var err error
	for i := 0; i < 6; i++ {
		_, err = c.Call(context.Background(), &domain.AdvisorRequest{UserID: "u1"})
	}

	var open *domain.ErrCircuitOpen
	assert.True(t, errors.As(err, &open), "got %v", err)
}

func TestSampleClient_FetchSamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/user-1/sample-transactions", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"transactions":[
			{"id":"s1","category":"food","amount":12.5,"description":"Lunch","date":"2024-03-11T12:00:00Z"},
			{"id":"s2","category":"bills","amount":40,"description":"Phone","date":"2024-03-10T09:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := NewSampleClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("samples", zap.NewNop()), fastRetry)
	txs, err := c.FetchSamples(context.Background(), "user-1", 3, 7)
	require.NoError(t, err)

	require.Len(t, txs, 2)
	assert.Equal(t, "food", txs[0].Category)
	assert.Equal(t, 12.5, txs[0].Amount)
	assert.Equal(t, time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC), txs[0].Date.UTC())
}

func TestSampleClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewSampleClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("samples", zap.NewNop()), fastRetry)
	_, err := c.FetchSamples(context.Background(), "user-1", 3, 7)

	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}
