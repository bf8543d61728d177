package budget

import (
	"fmt"
	"strings"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// Allocate validates a percentage budget and converts it to dollar amounts.
//
// Every violated rule is reported in Errors. When any rule fails the result
// is marked invalid and carries no amounts at all.
//
// Category amounts are rounded to cents first; wants subcategories are then
// computed from the rounded wants amount, so they need not sum exactly to it.
func Allocate(income float64, categories domain.CategoryShares, wants []domain.CategoryShare) domain.BudgetResult {
	errs := validate(income, categories, wants)
	if len(errs) > 0 {
		return domain.BudgetResult{
			MonthlyIncome: sanitize(income),
			Categories:    []domain.CategoryAllocation{},
			IsValid:       false,
			Errors:        errs,
		}
	}

	incomeDec := dec(income)
	total := decimal.Zero
	allocations := make([]domain.CategoryAllocation, 0, len(categories))

	for _, c := range categories {
		amount := round2(percentOf(incomeDec, dec(c.Percentage)))
		total = total.Add(amount)

		alloc := domain.CategoryAllocation{
			Name:       c.Name,
			Percentage: c.Percentage,
			Amount:     toFloat(amount),
		}
		if CategoryKey(c.Name) == CategoryWants && len(wants) > 0 {
			alloc.Subcategories = allocateWants(amount, wants)
		}
		allocations = append(allocations, alloc)
	}

	return domain.BudgetResult{
		MonthlyIncome:  income,
		TotalAllocated: toFloat(total),
		Unallocated:    toFloat(incomeDec.Sub(total)),
		Categories:     allocations,
		IsValid:        true,
	}
}

// AllocateDeclaration is Allocate applied to a stored declaration.
func AllocateDeclaration(decl *domain.BudgetDeclaration) domain.BudgetResult {
	return Allocate(decl.MonthlyIncome, decl.Categories, decl.WantsSubcategories)
}

func allocateWants(wantsAmount decimal.Decimal, wants []domain.CategoryShare) []domain.SubcategoryAllocation {
	subs := make([]domain.SubcategoryAllocation, 0, len(wants))
	for _, w := range wants {
		subs = append(subs, domain.SubcategoryAllocation{
			Name:       w.Name,
			Percentage: w.Percentage,
			Amount:     toFloat(round2(percentOf(wantsAmount, dec(w.Percentage)))),
		})
	}
	return subs
}

func validate(income float64, categories domain.CategoryShares, wants []domain.CategoryShare) []string {
	var errs []string

	if !finite(income) || income <= 0 {
		errs = append(errs, "income must be positive")
	}

	sum := decimal.Zero
	for _, c := range categories {
		if !validPercentage(c.Percentage) {
			errs = append(errs, fmt.Sprintf("%s percentage must be between 0 and 100", c.Name))
			continue
		}
		sum = sum.Add(dec(c.Percentage))
	}
	if sum.GreaterThan(hundred) {
		errs = append(errs, fmt.Sprintf("total exceeds 100%% (%s%%)", sum.String()))
	}

	wantsSum := decimal.Zero
	for i, w := range wants {
		if strings.TrimSpace(w.Name) == "" {
			errs = append(errs, fmt.Sprintf("wants subcategory #%d name must not be empty", i+1))
		}
		if !validPercentage(w.Percentage) {
			errs = append(errs, fmt.Sprintf("wants subcategory %q percentage must be between 0 and 100", w.Name))
			continue
		}
		wantsSum = wantsSum.Add(dec(w.Percentage))
	}
	if wantsSum.GreaterThan(hundred) {
		errs = append(errs, fmt.Sprintf("wants subcategories total exceeds 100%% (%s%%)", wantsSum.String()))
	}

	return errs
}

func validPercentage(p float64) bool {
	return finite(p) && p >= 0 && p <= 100
}

// sanitize keeps NaN and Inf out of JSON responses.
func sanitize(f float64) float64 {
	if !finite(f) {
		return 0
	}
	return f
}
