package budget

import (
	"github.com/boddenberg/budget-coach-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	overThreshold = decimal.NewFromInt(100)
	atThreshold   = decimal.NewFromInt(95)
)

// Analyze compares transactions against an allocation.
//
// Transactions whose category is not one of the canonical buckets are charged
// to wants. Categories with a zero budget report 0% used.
func Analyze(transactions []domain.Transaction, result domain.BudgetResult) domain.SpendingAnalysis {
	spentByKey := make(map[string]decimal.Decimal, len(CanonicalCategories))
	totalSpent := decimal.Zero

	for _, tx := range transactions {
		amount := dec(tx.Amount)
		key := SpendKey(tx.Category)
		spentByKey[key] = spentByKey[key].Add(amount)
		totalSpent = totalSpent.Add(amount)
	}

	lines := make([]domain.CategorySpending, 0, len(result.Categories))
	over := make([]string, 0)

	for _, c := range result.Categories {
		spent := spentByKey[CategoryKey(c.Name)]
		budgetAmt := dec(c.Amount)
		pct := percentageUsed(spent, budgetAmt)
		status := classify(pct)

		lines = append(lines, domain.CategorySpending{
			Category:       c.Name,
			Spent:          toFloat(spent),
			Budget:         c.Amount,
			Remaining:      toFloat(budgetAmt.Sub(spent)),
			PercentageUsed: toFloat(pct),
			Status:         status,
		})
		if status == domain.StatusOver {
			over = append(over, c.Name)
		}
	}

	totalBudget := dec(result.TotalAllocated)

	return domain.SpendingAnalysis{
		TotalSpent:             toFloat(totalSpent),
		TotalBudget:            result.TotalAllocated,
		PercentageOfBudgetUsed: toFloat(percentageUsed(totalSpent, totalBudget)),
		Categories:             lines,
		OverBudgetCategories:   over,
	}
}

func percentageUsed(spent, budget decimal.Decimal) decimal.Decimal {
	if !budget.IsPositive() {
		return decimal.Zero
	}
	return spent.Mul(hundred).Div(budget)
}

// classify: over at >= 100%, at within [95%, 100%), under otherwise.
func classify(pct decimal.Decimal) domain.SpendingStatus {
	switch {
	case pct.GreaterThanOrEqual(overThreshold):
		return domain.StatusOver
	case pct.GreaterThanOrEqual(atThreshold):
		return domain.StatusAt
	default:
		return domain.StatusUnder
	}
}
