package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tobk/ytvault/internal/config"
	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/logger"
	"github.com/tobk/ytvault/internal/repository"
	"github.com/tobk/ytvault/internal/service"
	"github.com/tobk/ytvault/internal/storage"
	"github.com/tobk/ytvault/internal/ytdl"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "ytvault-fetch",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	kinds := flag.String("kinds", "audio", "Comma-separated artifact kinds: audio, video, transcript, thumbnail")
	quality := flag.String("quality", "", "Video quality: best, worst, 1080p, 720p, 480p, 360p, 240p")
	user := flag.String("user", "cli", "User the jobs are filed under")
	subfolder := flag.String("subfolder", "", "Subfolder inside the user's storage namespace")
	noPlaylist := flag.Bool("no-playlist", false, "Treat playlist URLs as single videos")
	cleanup := flag.Bool("cleanup", false, "Remove expired jobs and their artifacts instead of downloading")
	olderThan := flag.Int("older-than", 0, "Cleanup retention in days (0 uses the configured default)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories and storage
	jobRepo := repository.NewJobRepository(db)
	statsRepo := repository.NewStatsRepository(db)
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
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	statsService := service.NewStatsService(statsRepo, jobRepo)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	// Cleanup mode needs no downloader or workers
	if *cleanup {
		cleanupService := service.NewCleanupService(jobRepo, statsService, store, cfg.Cleanup.RetentionDays)
		report, err := cleanupService.RemoveOlderThan(ctx, *olderThan)
		if err != nil {
			appLogger.WithError(err).Fatal("Cleanup failed")
		}
		appLogger.WithFields(logger.Fields{
			"removed":     report.JobsRemoved,
			"bytes_freed": report.BytesFreed,
			"failures":    report.Failures,
		}).Info("Cleanup completed")
		return
	}

	urls := flag.Args()
	if len(urls) == 0 {
		appLogger.Fatal("No URLs given; usage: fetch [flags] URL...")
	}

	kindSet, err := domain.NewKindSet(splitCommaList(*kinds))
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid kinds")
	}
	videoQuality, err := domain.ParseQuality(*quality)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid quality")
	}

	// Ensure the yt-dlp binary is available
	if err := ytdl.EnsureInstalled(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to provision yt-dlp")
	}
	downloader, err := ytdl.New(cfg.Download.ScratchDir)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize downloader")
	}
	transcripts := ytdl.NewTranscriptFetcher(cfg.Download.HTTPTimeout(), cfg.Download.TranscriptLanguages)
	thumbnails := ytdl.NewThumbnailFetcher(cfg.Download.HTTPTimeout())

	registry := service.NewProducerRegistry(
		service.NewAudioProducer(downloader, store),
		service.NewVideoProducer(downloader, store),
		service.NewTranscriptProducer(transcripts, store),
		service.NewThumbnailProducer(thumbnails, store),
	)

	scheduler := service.NewScheduler(service.SchedulerOptions{
		Workers:     cfg.Scheduler.Workers,
		MaxRetries:  cfg.Scheduler.MaxRetries,
		RetryDelay:  cfg.Scheduler.RetryDelay(),
		ScratchRoot: cfg.Download.ScratchDir,
	}, jobRepo, statsService, downloader, registry)
	scheduler.Start()

	jobService := service.NewJobService(jobRepo, statsService, store, scheduler, downloader)

	// Submit every URL, then wait for the pool to finish them
	var submitted []*domain.DownloadJob
	for _, url := range urls {
		jobs, err := jobService.Submit(ctx, service.SubmitRequest{
			UserID:     *user,
			URL:        url,
			Kinds:      kindSet,
			Quality:    videoQuality,
			Subfolder:  *subfolder,
			NoPlaylist: *noPlaylist,
		})
		if err != nil {
			appLogger.WithError(err).WithField("url", url).Error("Submission rejected")
			continue
		}
		submitted = append(submitted, jobs...)
	}
	if len(submitted) == 0 {
		appLogger.Fatal("Nothing to download")
	}
	appLogger.WithField("count", len(submitted)).Info("Jobs queued")

	waitForJobs(ctx, appLogger, jobRepo, submitted)

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := scheduler.Stop(drainCtx); err != nil {
		appLogger.WithError(err).Warn("Worker drain incomplete")
	}
}

// waitForJobs polls until every submitted job reaches a terminal status,
// logging progress changes along the way.
func waitForJobs(ctx context.Context, log *logger.Logger, jobs *repository.JobRepository, submitted []*domain.DownloadJob) {
	pending := make(map[string]bool, len(submitted))
	for _, job := range submitted {
		pending[job.ID] = true
	}
	lastPct := make(map[string]int, len(submitted))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			log.WithField("remaining", len(pending)).Warn("Interrupted while jobs were still running")
			return
		case <-ticker.C:
		}

		for id := range pending {
			job, err := jobs.GetByID(ctx, id)
			if err != nil {
				log.WithError(err).WithField(logger.FieldJobID, id).Warn("Failed to poll job")
				continue
			}
			if job.ProgressPct != lastPct[id] {
				lastPct[id] = job.ProgressPct
				log.WithFields(logger.Fields{
					logger.FieldJobID:    id,
					logger.FieldStatus:   string(job.Status),
					logger.FieldProgress: job.ProgressPct,
				}).Info(job.Message)
			}
			if !job.Status.IsTerminal() {
				continue
			}
			delete(pending, id)
			switch job.Status {
			case domain.StatusDone:
				log.WithFields(logger.Fields{
					logger.FieldJobID: id,
					"title":           job.Title,
					"bytes":           job.TotalArtifactBytes(),
				}).Info("Download complete")
			case domain.StatusError:
				log.WithFields(logger.Fields{
					logger.FieldJobID: id,
					"error":           job.ErrorDetails,
				}).Error("Download failed")
			default:
				log.WithField(logger.FieldJobID, id).Warn("Download cancelled")
			}
		}
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
