package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/logger"
	"github.com/tobk/ytvault/internal/repository"
	"github.com/tobk/ytvault/internal/storage"
	"github.com/tobk/ytvault/internal/ytdl"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// recentFinishedWindow bounds the "just completed" section of the
	// queue view.
	recentFinishedWindow = time.Hour
	recentFinishedLimit  = 20
)

// PlaylistExpander resolves a playlist URL into its video entries.
// *ytdl.Client implements it.
type PlaylistExpander interface {
	ExpandPlaylist(ctx context.Context, url string) (*ytdl.Playlist, error)
}

// SubmitRequest describes one download submission. A playlist URL fans out
// into one job per entry.
type SubmitRequest struct {
	UserID    string
	URL       string
	Kinds     domain.KindSet
	Quality   domain.Quality
	Subfolder string

	// NoPlaylist forces single-video treatment even when the URL points at
	// a playlist, mirroring yt-dlp's --no-playlist flag.
	NoPlaylist bool
}

// BulkResult summarizes a retry or cancel request over several jobs.
// Skipped counts jobs that were missing, owned by someone else, or not in
// an eligible state.
type BulkResult struct {
	Requested int `json:"requested"`
	Affected  int `json:"affected"`
	Skipped   int `json:"skipped"`
}

// QueueView is the live picture of a user's queue: jobs still moving, jobs
// finished within the last hour, and the shared backlog depth.
type QueueView struct {
	Active       []domain.DownloadJob `json:"active_jobs"`
	RecentlyDone []domain.DownloadJob `json:"recent_completed"`
	QueueDepth   int                  `json:"queue_depth"`
	Workers      int                  `json:"workers"`
}

// ArtifactFile carries the download metadata for one stored artifact.
type ArtifactFile struct {
	Name string
	Size int64
}

// JobService implements the user-facing job operations: submission,
// inspection, retry, cancel, and artifact retrieval. Execution itself
// belongs to the Scheduler.
type JobService struct {
	jobs      JobStore
	stats     *StatsService
	store     storage.ArtifactStore
	scheduler *Scheduler
	expander  PlaylistExpander
}

// NewJobService wires the job operations.
// Parameters:
//   - jobs: job persistence.
//   - stats: outcome aggregator, fed on user cancels.
//   - store: artifact storage backing downloads.
//   - scheduler: executor the service enqueues into.
//   - expander: playlist resolution for submit.
// Returns:
//   - *JobService: ready to use service.
func NewJobService(jobs JobStore, stats *StatsService, store storage.ArtifactStore, scheduler *Scheduler, expander PlaylistExpander) *JobService {
	return &JobService{
		jobs:      jobs,
		stats:     stats,
		store:     store,
		scheduler: scheduler,
		expander:  expander,
	}
}

// Submit validates a request, expands playlists, persists the resulting
// jobs, and enqueues them. Defaults: audio only, best quality.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: submission; URL and UserID are required.
// Returns:
//   - []*domain.DownloadJob: created jobs in playlist order.
//   - error: non-nil on validation or persistence failure.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) ([]*domain.DownloadJob, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	req.URL = url
	if len(req.Kinds) == 0 {
		req.Kinds = domain.KindSet{domain.KindAudio}
	}
	if req.Quality == "" {
		req.Quality = domain.QualityBest
	}
	req.Subfolder = strings.TrimSpace(req.Subfolder)

	jobs := s.buildJobs(ctx, req)
	if err := s.jobs.CreateBatch(ctx, jobs); err != nil {
		return nil, fmt.Errorf("failed to persist jobs: %w", err)
	}
	for _, job := range jobs {
		s.scheduler.Enqueue(job.ID)
	}

	logger.With(logger.Fields{logger.FieldCount: len(jobs)}).
		Info(ctx, "Jobs submitted: url=%s", url)
	return jobs, nil
}

// buildJobs turns a URL into job records. Playlist URLs are expanded into
// one job per entry unless NoPlaylist is set; when expansion fails the
// URL is downloaded as a single video instead, matching yt-dlp's own
// fallback.
func (s *JobService) buildJobs(ctx context.Context, req SubmitRequest) []*domain.DownloadJob {
	if !req.NoPlaylist && ytdl.IsPlaylistURL(req.URL) {
		playlist, err := s.expander.ExpandPlaylist(ctx, req.URL)
		if err != nil {
			logger.CtxWarn(ctx, "Playlist expansion failed, treating URL as a single video: error=%v", err)
		} else if playlist.IsPlaylist() && len(playlist.Entries) > 0 {
			count := len(playlist.Entries)
			jobs := make([]*domain.DownloadJob, 0, count)
			for i, entry := range playlist.Entries {
				job := s.newJob(req.UserID, entry.VideoURL(), req.Kinds, req.Quality, req.Subfolder)
				job.VideoID = entry.ID
				job.Title = entry.Title
				job.PlaylistID = playlist.ID
				job.PlaylistTitle = playlist.Title
				job.PlaylistUploader = playlist.Uploader
				job.PlaylistIndex = intPtr(i + 1)
				job.PlaylistCount = intPtr(count)
				jobs = append(jobs, job)
			}
			logger.CtxInfo(ctx, "Expanded playlist into %d jobs: playlist_id=%s", count, playlist.ID)
			return jobs
		}
	}

	job := s.newJob(req.UserID, req.URL, req.Kinds, req.Quality, req.Subfolder)
	job.VideoID = ytdl.ExtractVideoID(req.URL)
	return []*domain.DownloadJob{job}
}

func (s *JobService) newJob(userID, url string, kinds domain.KindSet, quality domain.Quality, subfolder string) *domain.DownloadJob {
	return &domain.DownloadJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       url,
		Kinds:     kinds,
		Quality:   quality,
		Subfolder: subfolder,
		Status:    domain.StatusPending,
		Message:   "Queued",
	}
}

// Get retrieves one job, scoped to its owner.
func (s *JobService) Get(ctx context.Context, userID, jobID string) (*domain.DownloadJob, error) {
	return s.jobs.GetOwned(ctx, jobID, userID)
}

// List retrieves a user's jobs with optional filtering. The limit defaults
// to 50 and is capped at 200.
func (s *JobService) List(ctx context.Context, userID string, filter repository.JobFilter) ([]domain.DownloadJob, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.jobs.ListByUser(ctx, userID, filter)
}

// Retry resets failed or cancelled jobs back to PENDING and re-enqueues
// them. Jobs that are missing, not owned by the caller, or not in a
// retryable state are skipped, never reported as errors.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: caller; only their jobs are touched.
//   - jobIDs: jobs to reset.
// Returns:
//   - *BulkResult: requested, affected, and skipped counts.
//   - error: non-nil only on storage failure.
func (s *JobService) Retry(ctx context.Context, userID string, jobIDs []string) (*BulkResult, error) {
	result := &BulkResult{Requested: len(jobIDs)}
	for _, id := range jobIDs {
		applied := false
		_, err := s.jobs.AtomicUpdate(ctx, id, func(j *domain.DownloadJob) (*domain.JobUpdate, error) {
			if j.UserID != userID || !j.Status.IsRetryable() {
				return nil, nil
			}
			applied = true
			status := domain.StatusPending
			pct := 0
			msg := "Queued for retry"
			noDetails := ""
			retries := 0
			return &domain.JobUpdate{
				Status:          &status,
				ProgressPct:     &pct,
				Message:         &msg,
				ErrorDetails:    &noDetails,
				RetryCount:      &retries,
				ClearFinishedAt: true,
			}, nil
		})
		if errors.Is(err, domain.ErrJobNotFound) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}
		if !applied {
			result.Skipped++
			continue
		}
		result.Affected++
		s.scheduler.Enqueue(id)
	}

	logger.With(logger.Fields{logger.FieldCount: result.Affected}).
		Info(ctx, "Queued jobs for retry: skipped=%d", result.Skipped)
	return result, nil
}

// Cancel moves non-terminal jobs to CANCELLED. A job already running
// notices at its next stage boundary and stops; finished stages keep
// their stored artifacts. Each newly cancelled job is counted in the
// owner's statistics.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: caller; only their jobs are touched.
//   - jobIDs: jobs to cancel.
// Returns:
//   - *BulkResult: requested, affected, and skipped counts.
//   - error: non-nil only on storage failure.
func (s *JobService) Cancel(ctx context.Context, userID string, jobIDs []string) (*BulkResult, error) {
	result := &BulkResult{Requested: len(jobIDs)}
	for _, id := range jobIDs {
		applied := false
		_, err := s.jobs.AtomicUpdate(ctx, id, func(j *domain.DownloadJob) (*domain.JobUpdate, error) {
			if j.UserID != userID || j.Status.IsTerminal() {
				return nil, nil
			}
			applied = true
			status := domain.StatusCancelled
			pct := 100
			msg := "Cancelled by user"
			now := time.Now()
			return &domain.JobUpdate{
				Status:      &status,
				ProgressPct: &pct,
				Message:     &msg,
				FinishedAt:  &now,
			}, nil
		})
		if errors.Is(err, domain.ErrJobNotFound) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}
		if !applied {
			result.Skipped++
			continue
		}
		result.Affected++
		if err := s.stats.RecordOutcome(ctx, userID, domain.OutcomeCancelled); err != nil {
			logger.CtxWarn(ctx, "Failed to record cancel outcome: job_id=%s, error=%v", id, err)
		}
	}

	logger.With(logger.Fields{logger.FieldCount: result.Affected}).
		Info(ctx, "Cancelled jobs: skipped=%d", result.Skipped)
	return result, nil
}

// Queue reports the live state of a user's queue: active jobs, jobs
// finished within the last hour, and the shared backlog depth.
func (s *JobService) Queue(ctx context.Context, userID string) (*QueueView, error) {
	active, err := s.jobs.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	recent, err := s.jobs.ListRecentFinished(ctx, userID, recentFinishedLimit)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-recentFinishedWindow)
	done := make([]domain.DownloadJob, 0, len(recent))
	for _, job := range recent {
		if job.FinishedAt != nil && job.FinishedAt.After(cutoff) {
			done = append(done, job)
		}
	}

	return &QueueView{
		Active:       active,
		RecentlyDone: done,
		QueueDepth:   s.scheduler.QueueDepth(),
		Workers:      s.scheduler.Workers(),
	}, nil
}

// OpenArtifact streams one stored artifact of an owned job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: caller; must own the job.
//   - jobID: job to read from.
//   - artifact: artifact name; one of audio, video, transcript,
//     transcript_plain, thumbnail (mp3, mp4, txt, txt_plain also accepted).
// Returns:
//   - io.ReadCloser: artifact contents; caller closes.
//   - *ArtifactFile: suggested filename and size.
//   - error: ErrJobNotFound, ErrArtifactNotFound, or a storage failure.
func (s *JobService) OpenArtifact(ctx context.Context, userID, jobID, artifact string) (io.ReadCloser, *ArtifactFile, error) {
	job, err := s.jobs.GetOwned(ctx, jobID, userID)
	if err != nil {
		return nil, nil, err
	}

	key, size, ok := artifactLocation(job, artifact)
	if !ok {
		return nil, nil, domain.ErrArtifactNotFound
	}

	// The record can outlive the object, e.g. after a manual prune of the
	// media directory. That is a missing file, not a server error.
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: checking %s: %v", domain.ErrStorage, artifact, err)
	}
	if !exists {
		return nil, nil, domain.ErrArtifactNotFound
	}

	// A zero Content-Length truncates the response body on most clients.
	if size == 0 {
		if n, err := s.store.Stat(ctx, key); err == nil {
			size = n
		}
	}

	rc, err := s.store.Download(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening %s: %v", domain.ErrStorage, artifact, err)
	}
	return rc, &ArtifactFile{Name: path.Base(key), Size: size}, nil
}

// artifactLocation maps an artifact name onto the job's stored paths.
func artifactLocation(job *domain.DownloadJob, artifact string) (string, int64, bool) {
	var key string
	var size *int64
	switch artifact {
	case "audio", "mp3":
		key, size = job.PathAudio, job.SizeAudio
	case "video", "mp4":
		key, size = job.PathVideo, job.SizeVideo
	case "transcript", "txt":
		key, size = job.PathTranscript, job.SizeTranscript
	case "transcript_plain", "txt_plain":
		key, size = job.PathTranscriptPlain, job.SizeTranscriptPlain
	case "thumbnail":
		key, size = job.ThumbnailPath, job.ThumbnailSize
	}
	if key == "" {
		return "", 0, false
	}
	var bytes int64
	if size != nil {
		bytes = *size
	}
	return key, bytes, true
}
