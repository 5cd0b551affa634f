package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bosun/internal/ai"
	"bosun/internal/bootstrap"
	"bosun/internal/config"
	cronpkg "bosun/internal/cron"
	"bosun/internal/generation"
	"bosun/internal/jobs"
	"bosun/internal/middleware"
	"bosun/internal/repository"
	"bosun/internal/router"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	// --- Repositories ---
	jobRepo := repository.NewJobRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	registryRepo := repository.NewProductRegistryRepository(db)
	maintenanceRepo := repository.NewMaintenanceTaskRepository(db)

	// --- Dispatch Deduper (Redis with in-memory fallback) ---
	dispatchDeduper, dedupeErr := middleware.NewDispatchDeduper(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		cfg.Jobs.DedupTTL,
	)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for dispatch dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Progress Publisher (Redis pub/sub with no-op fallback) ---
	publisher, pubErr := jobs.NewProgressPublisher(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		logger,
	)
	if pubErr != nil {
		logger.Warn("Redis unavailable for progress pub/sub, live updates disabled", zap.Error(pubErr))
	}

	// --- AI Client ---
	aiClient, err := buildAIClient(&cfg.AI)
	if err != nil {
		logger.Fatal("Failed to create AI client", zap.Error(err))
	}

	// --- Handler Registry ---
	registry := jobs.NewRegistry()
	registry.Register(generation.JobTypeEquipment, generation.NewEquipmentHandler(aiClient, registryRepo, maintenanceRepo, logger))
	registry.Register(generation.JobTypeRoute, generation.NewRouteHandler(aiClient, logger))

	// --- Dispatcher ---
	dispatcher := jobs.NewDispatcher(jobRepo, progressRepo, publisher, registry, cfg.Jobs.Timeout, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, db, dispatcher, logger, cfg.API.Key, dispatchDeduper)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg, jobRepo, progressRepo, dispatcher, logger)
	scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting Bosun server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func buildAIClient(cfg *config.AIConfig) (ai.Client, error) {
	switch cfg.Provider {
	case "compat":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("AI_BASE_URL is required for the compat provider")
		}
		return ai.NewCompatClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.ResearchModel), nil
	case "openai", "":
		return ai.NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.ResearchModel)
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}
