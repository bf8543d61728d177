package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var standardFlags = []string{
	"--income", "4000",
	"-c", "Rent=30", "-c", "Food=15", "-c", "Bills=10",
	"-c", "Savings=20", "-c", "Investments=10", "-c", "Wants=15",
	"-w", "Dining=60", "-w", "Hobbies=40",
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, v any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestAllocate_Flags(t *testing.T) {
	out, err := run(t, append([]string{"allocate"}, standardFlags...)...)
	require.NoError(t, err)

	var res domain.BudgetResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.IsValid)
	assert.Equal(t, 4000.0, res.TotalAllocated)
	require.Len(t, res.Categories, 6)
	assert.Equal(t, "Rent", res.Categories[0].Name)
	assert.Equal(t, 1200.0, res.Categories[0].Amount)

	wants := res.Categories[5]
	require.Len(t, wants.Subcategories, 2)
	assert.Equal(t, 360.0, wants.Subcategories[0].Amount)
	assert.Equal(t, 240.0, wants.Subcategories[1].Amount)
}

func TestAllocate_InvalidBudgetStillPrints(t *testing.T) {
	out, err := run(t, "allocate", "--income", "4000", "-c", "Rent=80", "-c", "Food=30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid budget")

	var res domain.BudgetResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.Errors)
}

func TestAllocate_BadShare(t *testing.T) {
	for _, share := range []string{"rent", "=30", "rent=abc"} {
		_, err := run(t, "allocate", "--income", "4000", "-c", share)
		assert.Error(t, err, share)
	}
}

func TestAllocate_BudgetFileWithOverride(t *testing.T) {
	path := writeFile(t, "budget.json", map[string]any{
		"monthlyIncome": 1000,
		"categories":    map[string]float64{"rent": 50, "savings": 50},
	})

	out, err := run(t, "allocate", "--budget", path, "--income", "2000")
	require.NoError(t, err)

	var res domain.BudgetResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2000.0, res.MonthlyIncome)
	require.Len(t, res.Categories, 2)
	assert.Equal(t, 1000.0, res.Categories[0].Amount)
}

func TestAnalyze(t *testing.T) {
	txPath := writeFile(t, "txs.json", []map[string]any{
		{"id": "1", "category": "food", "amount": 650, "description": "Groceries", "date": "2026-05-02T12:00:00Z"},
		{"id": "2", "category": "misc", "amount": 100, "description": "Gift", "date": "2026-05-03T12:00:00Z"},
	})

	out, err := run(t, append([]string{"analyze", "--transactions", txPath}, standardFlags...)...)
	require.NoError(t, err)

	var report domain.SpendingAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 750.0, report.TotalSpent)
	assert.Equal(t, 4000.0, report.TotalBudget)
	assert.Equal(t, []string{"Food"}, report.OverBudgetCategories)

	for _, line := range report.Categories {
		if line.Category == "Wants" {
			assert.Equal(t, 100.0, line.Spent)
		}
	}
}

func TestAnalyze_RequiresTransactions(t *testing.T) {
	_, err := run(t, append([]string{"analyze"}, standardFlags...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--transactions")
}
