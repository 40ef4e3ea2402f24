package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tobk/ytvault/internal/api"
	"github.com/tobk/ytvault/internal/api/middleware"
	"github.com/tobk/ytvault/internal/config"
	"github.com/tobk/ytvault/internal/logger"
	"github.com/tobk/ytvault/internal/repository"
	"github.com/tobk/ytvault/internal/service"
	"github.com/tobk/ytvault/internal/storage"
	"github.com/tobk/ytvault/internal/ytdl"
)

func main() {
	// Initialize logger
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// Initialize artifact storage (local disk or S3-compatible)
	store, err := storage.NewStore(&storage.Config{
		Backend:   cfg.Storage.Backend,
		LocalRoot: cfg.Storage.Local.Root,
		S3: storage.S3Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			Region:    cfg.Storage.S3.Region,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Bucket:    cfg.Storage.S3.Bucket,
			UseSSL:    cfg.Storage.S3.UseSSL,
		},
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Ensure the yt-dlp binary is available before any job runs
	ctx := context.Background()
	if err := ytdl.EnsureInstalled(ctx); err != nil {
		log.Fatalf("Failed to provision yt-dlp: %v", err)
	}

	downloader, err := ytdl.New(cfg.Download.ScratchDir)
	if err != nil {
		log.Fatalf("Failed to initialize downloader: %v", err)
	}
	transcripts := ytdl.NewTranscriptFetcher(cfg.Download.HTTPTimeout(), cfg.Download.TranscriptLanguages)
	thumbnails := ytdl.NewThumbnailFetcher(cfg.Download.HTTPTimeout())

	// Register one producer per artifact kind
	registry := service.NewProducerRegistry(
		service.NewAudioProducer(downloader, store),
		service.NewVideoProducer(downloader, store),
		service.NewTranscriptProducer(transcripts, store),
		service.NewThumbnailProducer(thumbnails, store),
	)

	// Initialize services
	statsService := service.NewStatsService(statsRepo, jobRepo)

	scheduler := service.NewScheduler(service.SchedulerOptions{
		Workers:     cfg.Scheduler.Workers,
		MaxRetries:  cfg.Scheduler.MaxRetries,
		RetryDelay:  cfg.Scheduler.RetryDelay(),
		ScratchRoot: cfg.Download.ScratchDir,
	}, jobRepo, statsService, downloader, registry)
	scheduler.Start()

	// Re-enqueue jobs the previous process left unfinished
	if recovered, err := scheduler.Recover(ctx); err != nil {
		log.Warnf("Failed to recover unfinished jobs: %v", err)
	} else if recovered > 0 {
		log.Infof("Recovered %d unfinished jobs", recovered)
	}

	jobService := service.NewJobService(jobRepo, statsService, store, scheduler, downloader)
	cleanupService := service.NewCleanupService(jobRepo, statsService, store, cfg.Cleanup.RetentionDays)

	// Setup router
	router := api.SetupRouter(jobService, statsService, cleanupService, log, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Starting API server on port %d (mode: %s, workers: %d)",
			cfg.Server.Port, cfg.Server.Mode, scheduler.Workers())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Stop accepting requests first, then drain the workers. In-flight
	// downloads that miss the drain deadline are aborted and re-queued by
	// Recover on the next start.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := scheduler.Stop(drainCtx); err != nil {
		log.Warnf("Worker drain incomplete: %v", err)
	}

	log.Info("Server exited")
}
