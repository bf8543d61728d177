package domain

import "time"

// ============================================================
// Advisory service (external text generation)
// ============================================================

// AdviceRequest is the POST body for /v1/users/{userId}/advice.
type AdviceRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
}

// AdvisorRequest is sent to the external advisory service. The budget engine
// output is passed as read-only context.
type AdvisorRequest struct {
	UserID   string            `json:"user_id"`
	Question string            `json:"question"`
	Budget   *BudgetResult     `json:"budget"`
	Spending *SpendingAnalysis `json:"spending,omitempty"`
	Streak   *StreakState      `json:"streak,omitempty"`
}

// AdvisorResponse holds the advisory service's answer.
type AdvisorResponse struct {
	Answer     string     `json:"answer"`
	Tips       []string   `json:"tips,omitempty"`
	TokensUsed TokenUsage `json:"tokens_used"`
}

// TokenUsage tracks generation token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AdviceResponse is returned to the client.
type AdviceResponse struct {
	UserID      string     `json:"userId"`
	Answer      string     `json:"answer"`
	Tips        []string   `json:"tips,omitempty"`
	TokenUsage  TokenUsage `json:"tokenUsage"`
	ProcessedAt time.Time  `json:"processedAt"`
}

// ============================================================
// Sample transactions
// ============================================================

// SampleRequest is the POST body for /v1/users/{userId}/transactions/sample.
type SampleRequest struct {
	Count int `json:"count" validate:"required,min=1,max=100"`
	Days  int `json:"days" validate:"omitempty,min=1,max=90"`
}

// SampleResponse summarizes an import of sample transactions.
type SampleResponse struct {
	Imported int     `json:"imported"`
	Total    float64 `json:"total"`
	Source   string  `json:"source"` // remote, generated
	Message  string  `json:"message"`
}
