package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/budget-coach-bfa/internal/config"
	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/handler"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/cache"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/client"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/fieldcrypt"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/memstore"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/observability"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/postgres"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/supabase"
	"github.com/boddenberg/budget-coach-bfa/internal/port"
	"github.com/boddenberg/budget-coach-bfa/internal/service"
	"github.com/boddenberg/budget-coach-bfa/internal/worker"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	loc, _ := cfg.Location()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("timezone", loc.String()),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Bool("streak_sweep_enabled", cfg.StreakSweepEnabled),
		zap.Bool("field_encryption", cfg.FieldEncryptionKey != ""),
	)

	ctx := context.Background()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	budgetCache := cache.New[*domain.BudgetDeclaration](cfg.CacheTTL)
	defer budgetCache.Stop()

	// --- Field encryption ---
	cipher, err := fieldcrypt.New(cfg.FieldEncryptionKey)
	if err != nil {
		logger.Fatal("invalid FIELD_ENCRYPTION_KEY", zap.Error(err))
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Store ---
	var store port.Store
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		pg := postgres.NewStore(pool, resilience.NewCircuitBreaker("postgres", logger), resilienceCfg, logger)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("failed to apply schema", zap.Error(err))
		}
		store = pg
		logger.Info("using PostgreSQL as data backend")
	case config.StoreSupabase:
		store = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", logger),
			resilienceCfg,
			logger,
		)
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
	default:
		store = memstore.New()
		logger.Warn("using in-memory data backend, data is lost on restart")
	}

	// --- Clients ---
	advisorClient := client.NewAdvisorClient(httpClient, cfg.AdvisorAPIURL,
		resilience.NewCircuitBreaker("advisor", logger), resilienceCfg)

	var samples port.SampleSource
	if cfg.SampleAPIURL != "" {
		samples = client.NewSampleClient(httpClient, cfg.SampleAPIURL,
			resilience.NewCircuitBreaker("samples", logger), resilienceCfg)
	} else {
		logger.Info("sample API not configured, sample imports use the built-in generator")
	}

	// --- Services ---
	budgetSvc := service.NewBudgetService(store, store, budgetCache, metrics, logger, loc)
	txSvc := service.NewTransactionService(store, cipher, metrics, logger).WithLocation(loc)
	streakSvc := service.NewStreakTracker(store, store, budgetCache, metrics, logger, loc, cfg.StreakConflictRetries)
	advisorSvc := service.NewAdvisorService(budgetSvc, streakSvc, advisorClient, metrics, logger)
	sampleSvc := service.NewSampleService(samples, txSvc, budgetSvc, logger)

	// --- Workers ---
	if cfg.StreakSweepEnabled {
		sweep := worker.NewStreakSweep(store, streakSvc, metrics, logger, cfg.StreakSweepCron, cfg.MaxConcurrency, loc)
		if err := sweep.Start(); err != nil {
			logger.Fatal("failed to start streak sweep", zap.Error(err))
		}
		defer sweep.Stop()
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Budgets:      budgetSvc,
		Transactions: txSvc,
		Streaks:      streakSvc,
		Advisor:      advisorSvc,
		Samples:      sampleSvc,
		Store:        store,
		Location:     loc,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
