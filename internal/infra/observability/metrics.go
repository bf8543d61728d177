package observability

import (
	"strconv"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the budget service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	allocations     *prometheus.CounterVec
	analyses        prometheus.Counter
	streakChecks    *prometheus.CounterVec
	streakConflicts prometheus.Counter
	storeErrors     *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	sweepRuns       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "budget_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		allocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_allocations_total",
				Help: "Budget allocations computed, by validity.",
			},
			[]string{"valid"},
		),
		analyses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "budget_analyses_total",
				Help: "Spending analyses computed.",
			},
		),
		streakChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_streak_checks_total",
				Help: "Streak checks, by outcome.",
			},
			[]string{"outcome"},
		),
		streakConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "budget_streak_conflicts_total",
				Help: "Conditional streak writes that lost against a concurrent update.",
			},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_store_errors_total",
				Help: "Persistence failures, by operation.",
			},
			[]string{"op"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_advisor_tokens_total",
				Help: "Tokens consumed by the advisory service.",
			},
			[]string{"type"},
		),
		sweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_streak_sweep_users_total",
				Help: "Users processed by the scheduled streak sweep, by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrAllocation counts one computed allocation.
func (m *Metrics) IncrAllocation(valid bool) {
	m.allocations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// IncrAnalysis counts one computed spending analysis.
func (m *Metrics) IncrAnalysis() {
	m.analyses.Inc()
}

// IncrStreakCheck counts a streak check by its outcome.
func (m *Metrics) IncrStreakCheck(outcome domain.StreakOutcome) {
	m.streakChecks.WithLabelValues(string(outcome)).Inc()
}

// IncrStreakConflict counts a lost conditional streak write.
func (m *Metrics) IncrStreakConflict() {
	m.streakConflicts.Inc()
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrSweepUser counts one user handled by the streak sweep.
func (m *Metrics) IncrSweepUser(result string) {
	m.sweepRuns.WithLabelValues(result).Inc()
}

// Snapshot returns the engine counters for GET /v1/metrics/engine.
// Prometheus counters are cumulative, so the period is always "all_time".
func (m *Metrics) Snapshot() *domain.EngineMetrics {
	valid := getCounterValue(m.allocations, "true")
	invalid := getCounterValue(m.allocations, "false")

	var checks float64
	for _, o := range []domain.StreakOutcome{
		domain.StreakInitialized,
		domain.StreakUnchanged,
		domain.StreakExtended,
		domain.StreakReset,
		domain.StreakHeld,
	} {
		checks += getCounterValue(m.streakChecks, string(o))
	}

	hits := getCounterValue(m.cacheHits, "declaration")
	misses := getCounterValue(m.cacheMisses, "declaration")
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.EngineMetrics{
		Allocations:        int64(valid + invalid),
		InvalidAllocations: int64(invalid),
		Analyses:           int64(counterValue(m.analyses)),
		StreakChecks:       int64(checks),
		StreaksExtended:    int64(getCounterValue(m.streakChecks, string(domain.StreakExtended))),
		StreaksReset:       int64(getCounterValue(m.streakChecks, string(domain.StreakReset))),
		StreakConflicts:    int64(counterValue(m.streakConflicts)),
		CacheHitRate:       cacheHitRate,
		AdvisorTokens:      int64(getCounterValue(m.tokensUsed, "prompt") + getCounterValue(m.tokensUsed, "completion")),
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
