package api

import (
	"github.com/gin-gonic/gin"
	"github.com/tobk/ytvault/internal/api/handler"
	"github.com/tobk/ytvault/internal/api/middleware"
	"github.com/tobk/ytvault/internal/logger"
	"github.com/tobk/ytvault/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	jobService *service.JobService,
	statsService *service.StatsService,
	cleanupService *service.CleanupService,
	log *logger.Logger,
	mode string,
	cors middleware.CORSConfig,
) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(jobService)
	statsHandler := handler.NewStatsHandler(statsService)
	adminHandler := handler.NewAdminHandler(cleanupService)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes, all behind the caller identity check
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RequireUser())
	{
		// Jobs
		v1.POST("/jobs", jobHandler.SubmitJobs)
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.POST("/jobs/bulk", jobHandler.BulkAction)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.GET("/jobs/:id/status", jobHandler.GetJobStatus)
		v1.GET("/jobs/:id/artifacts/:kind", jobHandler.DownloadArtifact)
		v1.POST("/jobs/:id/retry", jobHandler.RetryJob)
		v1.POST("/jobs/:id/cancel", jobHandler.CancelJob)

		// Queue
		v1.GET("/queue", jobHandler.GetQueue)

		// Stats
		v1.GET("/stats", statsHandler.GetStats)

		// Maintenance
		v1.POST("/admin/cleanup", adminHandler.RunCleanup)
	}

	return r
}
