package budget

import (
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// daysPerMonth is the fixed divisor for the daily budget, regardless of the
// calendar length of the month.
var daysPerMonth = decimal.NewFromInt(30)

// DailyBudget is monthly income spread over a 30-day month.
func DailyBudget(monthlyIncome float64) decimal.Decimal {
	return dec(monthlyIncome).Div(daysPerMonth)
}

// NewStreak is the state of a user who has never been checked.
func NewStreak(today domain.Date) domain.StreakState {
	return domain.StreakState{
		CurrentStreak:    0,
		LongestStreak:    0,
		LastCheckedDate:  today,
		MonthlyResetDate: today.FirstOfMonth(),
	}
}

// NeedsRollover reports whether today is a calendar day the streak has not
// been evaluated for yet.
func NeedsRollover(state domain.StreakState, today domain.Date) bool {
	return today.After(state.LastCheckedDate)
}

// DayWindow returns the inclusive bounds of the day before today in loc.
func DayWindow(today domain.Date, loc *time.Location) (start, end time.Time) {
	start = today.AddDays(-1).In(loc)
	end = today.In(loc).Add(-time.Nanosecond)
	return start, end
}

// DaySpend sums transactions falling inside [start, end].
func DaySpend(transactions []domain.Transaction, start, end time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range transactions {
		if tx.Date.Before(start) || tx.Date.After(end) {
			continue
		}
		total = total.Add(dec(tx.Amount))
	}
	return total
}

// Transition advances state for a check made on today.
//
// The monthly marker moves forward whenever a new month has started; it does
// not touch the counters. On the first check of a new day yesterday's spend is
// compared with the daily budget: adherence extends the streak, a miss after a
// gap of unchecked days resets it, and a miss right after a checked day
// leaves it as it was. Transition is a no-op on the counters for any later
// check within the same day.
func Transition(state domain.StreakState, today domain.Date, yesterdaySpend, dailyBudget decimal.Decimal) (domain.StreakState, domain.StreakOutcome) {
	next := state

	if month := today.FirstOfMonth(); month.After(next.MonthlyResetDate) {
		next.MonthlyResetDate = month
	}

	if !NeedsRollover(next, today) {
		return next, domain.StreakUnchanged
	}

	yesterday := today.AddDays(-1)
	outcome := domain.StreakHeld

	switch {
	case yesterdaySpend.LessThanOrEqual(dailyBudget):
		next.CurrentStreak++
		if next.CurrentStreak > next.LongestStreak {
			next.LongestStreak = next.CurrentStreak
		}
		outcome = domain.StreakExtended
	case next.LastCheckedDate.Before(yesterday):
		next.CurrentStreak = 0
		outcome = domain.StreakReset
	}

	next.LastCheckedDate = today
	return next, outcome
}
