package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Dropicx/docworker/cmd/docworker-api/handlers"
	"github.com/Dropicx/docworker/internal/cache"
	"github.com/Dropicx/docworker/internal/config"
	"github.com/Dropicx/docworker/internal/llm"
	"github.com/Dropicx/docworker/internal/monitoring"
	"github.com/Dropicx/docworker/internal/observability"
	"github.com/Dropicx/docworker/internal/ocr"
	"github.com/Dropicx/docworker/internal/pipeline"
	"github.com/Dropicx/docworker/internal/prompt"
	"github.com/Dropicx/docworker/internal/quality"
	"github.com/Dropicx/docworker/internal/steps"
	"github.com/Dropicx/docworker/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "docworker-api",
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("model", cfg.Model.Model).
		Msg("Starting docworker API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	repos := storage.NewRepositories(db)
	if err := storage.Seed(ctx, repos); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed defaults")
	}

	var thresholdSource quality.ThresholdSource = quality.StaticThreshold(cfg.Quality.MinThreshold)
	var thresholdWriter handlers.ThresholdWriter
	var publisher monitoring.EventPublisher
	if cfg.Cache.Driver == "redis" {
		redisClient, err := cache.NewRedisClient(cfg.Cache.Redis, cfg.Quality.MinThreshold, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		thresholdSource = redisClient
		thresholdWriter = redisClient
		publisher = redisClient
	}

	assessor := quality.NewAssessor(thresholdSource)
	registry := steps.NewRegistry(repos.StepConfigs)
	resolver := prompt.NewResolver(repos.Prompts)
	invoker := llm.NewClient(cfg.Model, logger)
	engine := ocr.NewHTTPEngine(cfg.OCR)
	recorder := monitoring.NewInteractionLogger(repos.Logs, publisher, cfg.Pipeline.LogTruncateRunes, logger)

	orch := pipeline.NewOrchestrator(
		repos.Documents, repos.Artifacts, registry, resolver, recorder,
		pipeline.DefaultHandlers(invoker, engine),
		invoker.ModelName(), logger,
	)
	pool := pipeline.NewPool(ctx, orch, cfg.Pipeline.MaxConcurrentRuns, logger)

	documentHandler := handlers.NewDocumentHandler(logger, repos, assessor, pool.Submit, cfg.Server.MaxUploadBytes)
	adminHandler := handlers.NewAdminHandler(logger, repos, thresholdSource, thresholdWriter)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(cfg, documentHandler, adminHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	// In-flight runs stop at their next step boundary once ctx is gone.
	if err := pool.Wait(); err != nil {
		logger.Error().Err(err).Msg("Worker pool error")
	}

	logger.Info().Msg("Server stopped")
}
