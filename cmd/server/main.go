// Package main is the entrypoint for the ThreadLens API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/threadlens/internal/ai"
	"github.com/kiranshivaraju/threadlens/internal/api"
	"github.com/kiranshivaraju/threadlens/internal/api/handler"
	mw "github.com/kiranshivaraju/threadlens/internal/api/middleware"
	"github.com/kiranshivaraju/threadlens/internal/api/response"
	"github.com/kiranshivaraju/threadlens/internal/cache"
	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/internal/metrics"
	"github.com/kiranshivaraju/threadlens/internal/reconcile"
	"github.com/kiranshivaraju/threadlens/internal/store"
	"github.com/kiranshivaraju/threadlens/internal/threads"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 30 * time.Second

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := setLogLevel(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 6. Domain services
	pgStore := store.NewPostgresStore(pool)
	reconciler := reconcile.New(reconcile.Config{
		LLMConfidenceThreshold: cfg.Threads.LLMConfidenceThreshold,
	})
	threadSvc := threads.NewService(pgStore, reconciler, m, threads.Config{
		DefaultListLimit:    cfg.Threads.ListDefaultLimit,
		DefaultWindowMonths: cfg.Threads.AggregateDefaultMonths,
	})

	// 7. Optional LLM provider and explain worker
	provider, err := newProvider(ctx, cfg.AI)
	if err != nil {
		return err
	}
	explainSvc := ai.NewExplainService(provider, pgStore, redisCache, threadSvc, m, ai.ExplainConfig{
		BatchLimit:       cfg.Explain.BatchLimit,
		PromptVersion:    cfg.Explain.PromptVersion,
		MaxRetries:       cfg.Explain.MaxRetries,
		InferenceTimeout: cfg.AI.InferenceTimeout,
	})

	if explainSvc.Enabled() && cfg.Explain.Schedule != "" {
		schedule, err := config.ParseSchedule(cfg.Explain.Schedule)
		if err != nil {
			return fmt.Errorf("parse explain schedule: %w", err)
		}
		go ai.NewScheduler(schedule, explainSvc).Run(ctx)
		slog.Info("explain scheduler started", "schedule", cfg.Explain.Schedule)
	}

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:        mw.NewAuth(pgStore),
		RateLimit:   mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),
		Metrics:     m,
		FrontendURL: cfg.Server.FrontendURL,

		HealthHandler:  healthHandler(pgStore, redisCache),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),

		ListThreads:       handler.NewListThreadsHandler(threadSvc),
		MonthlyAggregates: handler.NewMonthlyAggregatesHandler(threadSvc),
		GetThread:         handler.NewGetThreadHandler(threadSvc),
		RecordMessage:     handler.NewRecordMessageHandler(threadSvc),
		RecordSignal:      handler.NewRecordSignalHandler(threadSvc),

		TriggerExplain: handler.NewTriggerExplainHandler(explainSvc),
		GetJob:         handler.NewGetJobHandler(pgStore, redisCache),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newProvider returns nil without error when no provider is configured.
// The explain endpoints then answer EXPLAIN_DISABLED.
func newProvider(ctx context.Context, cfg config.AIConfig) (models.AIProvider, error) {
	if !cfg.Enabled() {
		slog.Info("AI provider not configured, explain worker disabled")
		return nil, nil
	}
	p, err := ai.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", p.Name(), "model", p.Model())
	return p, nil
}

func setLogLevel(name string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("THREADLENS_LOG_LEVEL: %w", err)
	}
	logLevel.Set(level)
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
