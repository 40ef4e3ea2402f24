package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tobk/ytvault/internal/api/middleware"
	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/logger"
	"github.com/tobk/ytvault/internal/repository"
	"github.com/tobk/ytvault/internal/service"
)

// JobHandler handles download job endpoints.
type JobHandler struct {
	jobs *service.JobService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job service instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{
		jobs: jobs,
	}
}

// SubmitJobsRequest represents the submit API request. Every URL may be a
// single video or a playlist; playlists fan out into one job per entry
// unless expand_playlists is false.
type SubmitJobsRequest struct {
	URLs            []string `json:"urls" binding:"required,min=1"`
	Kinds           []string `json:"kinds"`
	Quality         string   `json:"quality"`
	Subfolder       string   `json:"subfolder"`
	ExpandPlaylists *bool    `json:"expand_playlists"`
}

// SubmitJobsResponse represents the submit API response.
type SubmitJobsResponse struct {
	Message string                `json:"message"`
	Jobs    []*domain.DownloadJob `json:"jobs"`
	Errors  []string              `json:"errors,omitempty"`
}

// ListJobsResponse represents the job list API response.
type ListJobsResponse struct {
	Jobs  []domain.DownloadJob `json:"jobs"`
	Count int                  `json:"count"`
}

// BulkJobsRequest selects jobs for a retry or cancel action.
type BulkJobsRequest struct {
	Action string   `json:"action" binding:"required"`
	JobIDs []string `json:"job_ids"`
}

// BulkJobsResponse represents the bulk action response.
type BulkJobsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ArtifactView describes one downloadable artifact on a job.
type ArtifactView struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Size  int64  `json:"size"`
}

// JobStatusResponse is the compact polling payload for one job.
type JobStatusResponse struct {
	ID          string         `json:"id"`
	Status      domain.Status  `json:"status"`
	ProgressPct int            `json:"progress_pct"`
	Message     string         `json:"message"`
	Title       string         `json:"title"`
	Duration    string         `json:"duration"`
	TotalBytes  int64          `json:"total_bytes"`
	Artifacts   []ArtifactView `json:"artifacts"`
	FinishedAt  *time.Time     `json:"finished_at"`
}

// SubmitJobs handles POST /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) SubmitJobs(c *gin.Context) {
	var req SubmitJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	kinds, err := domain.NewKindSet(req.Kinds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	quality := domain.QualityBest
	if req.Quality != "" {
		if quality, err = domain.ParseQuality(req.Quality); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}
	}
	noPlaylist := req.ExpandPlaylists != nil && !*req.ExpandPlaylists

	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	var jobs []*domain.DownloadJob
	var failures []string
	for _, url := range req.URLs {
		created, err := h.jobs.Submit(ctx, service.SubmitRequest{
			UserID:     userID,
			URL:        url,
			Kinds:      kinds,
			Quality:    quality,
			Subfolder:  req.Subfolder,
			NoPlaylist: noPlaylist,
		})
		if err != nil {
			logger.CtxWarn(ctx, "Submission rejected: url=%s, error=%v", url, err)
			failures = append(failures, url+": "+err.Error())
			continue
		}
		jobs = append(jobs, created...)
	}

	if len(jobs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No jobs queued: " + strings.Join(failures, "; "),
		})
		return
	}

	c.JSON(http.StatusCreated, SubmitJobsResponse{
		Message: fmt.Sprintf("Queued %d downloads", len(jobs)),
		Jobs:    jobs,
		Errors:  failures,
	})
}

// ListJobs handles GET /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) ListJobs(c *gin.Context) {
	filter, err := parseJobFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ListJobsResponse{Jobs: jobs, Count: len(jobs)})
}

// GetJob handles GET /api/v1/jobs/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetJobStatus handles GET /api/v1/jobs/:id/status, the payload the
// frontend polls while a job runs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, JobStatusResponse{
		ID:          job.ID,
		Status:      job.Status,
		ProgressPct: job.ProgressPct,
		Message:     job.Message,
		Title:       job.Title,
		Duration:    job.DurationFormatted(),
		TotalBytes:  job.TotalArtifactBytes(),
		Artifacts:   artifactViews(job),
		FinishedAt:  job.FinishedAt,
	})
}

// DownloadArtifact handles GET /api/v1/jobs/:id/artifacts/:kind and
// streams the stored file as an attachment.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes the file response).
func (h *JobHandler) DownloadArtifact(c *gin.Context) {
	rc, file, err := h.jobs.OpenArtifact(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("kind"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, domain.ErrArtifactNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to open artifact: " + err.Error(),
			})
		}
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, file.Size, contentTypeFor(file.Name), rc, map[string]string{
		"Content-Disposition": `attachment; filename="` + file.Name + `"`,
	})
}

// RetryJob handles POST /api/v1/jobs/:id/retry.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) RetryJob(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	jobID := c.Param("id")

	if _, err := h.jobs.Get(ctx, userID, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job: " + err.Error(),
		})
		return
	}

	result, err := h.jobs.Retry(ctx, userID, []string{jobID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retry job: " + err.Error(),
		})
		return
	}
	if result.Affected == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Job cannot be retried"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Job queued for retry",
		"job_id":  jobID,
	})
}

// CancelJob handles POST /api/v1/jobs/:id/cancel.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) CancelJob(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	jobID := c.Param("id")

	if _, err := h.jobs.Get(ctx, userID, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job: " + err.Error(),
		})
		return
	}

	result, err := h.jobs.Cancel(ctx, userID, []string{jobID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job: " + err.Error(),
		})
		return
	}
	if result.Affected == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Job cannot be cancelled"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Job cancelled",
		"job_id":  jobID,
	})
}

// BulkAction handles POST /api/v1/jobs/bulk.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) BulkAction(c *gin.Context) {
	var req BulkJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if len(req.JobIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No jobs selected"})
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	var result *service.BulkResult
	var message string
	var err error
	switch req.Action {
	case "retry":
		result, err = h.jobs.Retry(ctx, userID, req.JobIDs)
		if err == nil {
			message = fmt.Sprintf("Queued %d jobs for retry", result.Affected)
		}
	case "cancel":
		result, err = h.jobs.Cancel(ctx, userID, req.JobIDs)
		if err == nil {
			message = fmt.Sprintf("Cancelled %d jobs", result.Affected)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to " + req.Action + " jobs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, BulkJobsResponse{
		Success: true,
		Message: message,
		Count:   result.Affected,
	})
}

// GetQueue handles GET /api/v1/queue.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) GetQueue(c *gin.Context) {
	view, err := h.jobs.Queue(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load queue: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// parseJobFilter reads the list query parameters. Limit and offset fall
// back to the service defaults when absent or malformed.
func parseJobFilter(c *gin.Context) (repository.JobFilter, error) {
	var filter repository.JobFilter

	if v := c.Query("status"); v != "" {
		status, err := domain.ParseStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	if v := c.Query("kind"); v != "" {
		kind, err := domain.ParseKind(v)
		if err != nil {
			return filter, err
		}
		filter.Kind = kind
	}
	filter.Query = strings.TrimSpace(c.Query("q"))

	if v := c.Query("from"); v != "" {
		from, err := parseDate(v)
		if err != nil {
			return filter, err
		}
		filter.From = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := parseDate(v)
		if err != nil {
			return filter, err
		}
		filter.To = &to
	}

	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return filter, nil
}

// parseDate accepts RFC 3339 timestamps or bare dates.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// artifactViews lists a job's stored artifacts with their download labels,
// in the order the detail page presents them.
func artifactViews(job *domain.DownloadJob) []ArtifactView {
	var views []ArtifactView
	add := func(kind, label, path string, size *int64) {
		if path == "" {
			return
		}
		var bytes int64
		if size != nil {
			bytes = *size
		}
		views = append(views, ArtifactView{Kind: kind, Label: label, Size: bytes})
	}
	add("audio", "MP3 Audio", job.PathAudio, job.SizeAudio)
	add("video", "MP4 Video", job.PathVideo, job.SizeVideo)
	add("transcript", "Transcript (Timestamped)", job.PathTranscript, job.SizeTranscript)
	add("transcript_plain", "Transcript (Plain)", job.PathTranscriptPlain, job.SizeTranscriptPlain)
	add("thumbnail", "Thumbnail", job.ThumbnailPath, job.ThumbnailSize)
	return views
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
