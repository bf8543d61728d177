package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// EngineMetrics is returned by GET /v1/metrics/engine.
type EngineMetrics struct {
	Allocations        int64   `json:"allocations"`
	InvalidAllocations int64   `json:"invalidAllocations"`
	Analyses           int64   `json:"analyses"`
	StreakChecks       int64   `json:"streakChecks"`
	StreaksExtended    int64   `json:"streaksExtended"`
	StreaksReset       int64   `json:"streaksReset"`
	StreakConflicts    int64   `json:"streakConflicts"`
	CacheHitRate       float64 `json:"cacheHitRate"`
	AdvisorTokens      int64   `json:"advisorTokens"`
	Period             string  `json:"period"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
