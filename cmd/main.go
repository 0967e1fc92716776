package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"manual-qa-backend/internal/ai"
	"manual-qa-backend/internal/cache"
	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/logger"
	"manual-qa-backend/internal/store"
	"manual-qa-backend/internal/telemetry"
	"manual-qa-backend/middleware"
	"manual-qa-backend/routes"
	"manual-qa-backend/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Tracing is optional; without an OTLP endpoint the no-op provider stays.
	shutdownTracer, err := telemetry.InitTracer("manual-qa-backend", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to init tracer:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	// Shared clients
	embedder := ai.NewEmbeddingClient(cfg.GeminiAPIKey, cfg.EmbeddingModel)
	defer embedder.Close()
	generator := ai.NewGenerator(cfg.GeminiAPIKey, cfg.GenerationModel, cfg.GeminiTier, metrics)
	defer generator.Close()
	answerCache := cache.New(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB, time.Duration(cfg.CacheTTLSecs)*time.Second)
	defer answerCache.Close()

	// Pipeline
	st := store.New(cfg.StorageDir)
	indexer := services.NewEmbeddingIndexer(embedder)
	coordinator := services.NewCoordinator(cfg, indexer, st, metrics)
	if err := coordinator.Restore(); err != nil {
		logger.Warn("Could not restore persisted index, starting empty", "error", err)
	}

	retrieval := services.NewRetrievalEngine(cfg, coordinator, embedder, generator, answerCache, metrics)
	qa := services.NewQAService(cfg, retrieval, generator, answerCache)

	watcher := services.NewReindexWatcher(cfg, coordinator)
	if err := watcher.Start(); err != nil {
		log.Fatal("Failed to start reindex watcher:", err)
	}
	defer watcher.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))

	// Setup routes
	routes.SetupIngestRoutes(router, cfg, coordinator, st)
	routes.SetupQueryRoutes(router, cfg, qa, retrieval, coordinator)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	// Stop any in-flight build first so it cannot race the exit.
	coordinator.Cancel()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
