// Command server starts the EZ Sentence Fix HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver for migrations
	"github.com/joho/godotenv"

	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/ai"
	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/cache"
	httpserver "github.com/ezsentencefix/ez-sentence-fix/internal/adapter/httpserver"
	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/observability"
	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/ocr"
	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/repo/postgres"
	"github.com/ezsentencefix/ez-sentence-fix/internal/app"
	"github.com/ezsentencefix/ez-sentence-fix/internal/config"
	"github.com/ezsentencefix/ez-sentence-fix/internal/usecase"
)

func main() {
	// .env is a development convenience; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, AI, OCR, and analysis instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	// Infra: DB pool plus a database/sql handle for goose migrations.
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	migrDB, err := sql.Open("pgx", cfg.DBURL)
	if err != nil {
		slog.Error("db open for migrations failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := postgres.RunMigrations(ctx, migrDB); err != nil {
		slog.Error("migrations failed", slog.Any("error", err))
		os.Exit(1)
	}
	_ = migrDB.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(pool)
	essayRepo := postgres.NewEssayRepo(pool)
	evalRepo := postgres.NewEvaluationRepo(pool)

	// Analysis store: Redis when configured, otherwise in-process memory.
	// Redis is what lets several replicas share the single-flight lock.
	var store usecase.AnalysisStore
	var redisPing app.Pinger
	if cfg.RedisURL != "" {
		rstore, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			slog.Error("redis connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		store = rstore
		redisPing = rstore
		slog.Info("analysis cache using redis")
	} else {
		mstore := cache.NewMemoryStore()
		go mstore.Run(ctx)
		store = mstore
		slog.Info("analysis cache using process memory")
	}

	// AI and OCR adapters
	llm := ai.New(cfg)
	cleaner := ai.NewResponseCleaner()
	ocrChain := ocr.NewChain(cfg)

	// Usecases
	formatSvc := usecase.NewFormatService(llm, cleaner)
	scoreSvc := usecase.NewScoreService(llm, cleaner, usecase.LoadPersonas(cfg.PersonasFile))
	analysisSvc := usecase.NewAnalysisService(store, formatSvc, scoreSvc, essayRepo, evalRepo, cfg.AnalysisTTL, cfg.AnalysisJobTimeout)
	essaySvc := usecase.NewEssayService(essayRepo, ocrChain, analysisSvc, formatSvc, cfg.FormatOnCreate)
	evalSvc := usecase.NewEvaluationService(evalRepo, essayRepo)
	authSvc := usecase.NewAuthService(userRepo)

	// Readiness checks
	dbCheck, redisCheck := app.BuildReadinessChecks(pool, redisPing)

	// HTTP server
	srv := httpserver.NewServer(cfg, authSvc, essaySvc, evalSvc, analysisSvc, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
