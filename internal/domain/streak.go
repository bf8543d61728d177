package domain

// StreakState is the consecutive-adherence counter embedded in a budget.
// LongestStreak >= CurrentStreak always holds.
type StreakState struct {
	CurrentStreak    int  `json:"currentStreak"`
	LongestStreak    int  `json:"longestStreak"`
	LastCheckedDate  Date `json:"lastCheckedDate"`
	MonthlyResetDate Date `json:"monthlyResetDate"`
}

// StreakOutcome describes what a check did to the streak.
type StreakOutcome string

const (
	StreakInitialized StreakOutcome = "initialized"
	StreakUnchanged   StreakOutcome = "unchanged" // already checked today
	StreakExtended    StreakOutcome = "extended"
	StreakReset       StreakOutcome = "reset"
	StreakHeld        StreakOutcome = "held" // missed budget yesterday, no gap
)

// StreakCheckResult is returned by POST /v1/users/{userId}/streak/check.
type StreakCheckResult struct {
	UserID  string        `json:"userId"`
	Streak  StreakState   `json:"streak"`
	Outcome StreakOutcome `json:"outcome"`
}
