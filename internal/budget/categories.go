// Package budget is the accounting engine: it turns percentage budgets into
// dollar allocations, compares spending against them and advances the daily
// adherence streak. Everything here is pure; storage and time are supplied by
// the caller.
package budget

import "strings"

// Canonical spend-aggregation keys.
const (
	CategoryRent        = "rent"
	CategoryFood        = "food"
	CategoryBills       = "bills"
	CategorySavings     = "savings"
	CategoryInvestments = "investments"
	CategoryWants       = "wants"
)

// CanonicalCategories lists the six buckets in their conventional order.
var CanonicalCategories = []string{
	CategoryRent,
	CategoryFood,
	CategoryBills,
	CategorySavings,
	CategoryInvestments,
	CategoryWants,
}

var canonicalSet = map[string]struct{}{
	CategoryRent:        {},
	CategoryFood:        {},
	CategoryBills:       {},
	CategorySavings:     {},
	CategoryInvestments: {},
	CategoryWants:       {},
}

// IsCanonical reports whether key is one of the six buckets.
func IsCanonical(key string) bool {
	_, ok := canonicalSet[key]
	return ok
}

// CategoryKey normalizes a budget category display name ("Rent/Mortgage")
// to its aggregation key ("rent").
func CategoryKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if i := strings.Index(key, "/"); i >= 0 {
		key = key[:i]
	}
	return strings.TrimSpace(key)
}

// SpendKey maps a transaction category to the bucket it is charged to.
// Anything unrecognized lands in wants.
func SpendKey(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	if IsCanonical(key) {
		return key
	}
	return CategoryWants
}
