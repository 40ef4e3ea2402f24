package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tobk/ytvault/internal/logger"
	"github.com/tobk/ytvault/internal/storage"
)

// CleanupReport summarizes one retention sweep.
type CleanupReport struct {
	Cutoff       time.Time `json:"cutoff"`
	JobsRemoved  int       `json:"jobs_removed"`
	BytesFreed   int64     `json:"bytes_freed"`
	UsersTouched int       `json:"users_touched"`
	Failures     int       `json:"failures"`
}

// CleanupService removes finished jobs past their retention window,
// artifacts first. A job whose artifacts cannot be deleted keeps its
// record, so the next sweep retries it.
type CleanupService struct {
	jobs          JobStore
	stats         *StatsService
	store         storage.ArtifactStore
	retentionDays int
}

// NewCleanupService wires the retention sweep.
// Parameters:
//   - jobs: job persistence.
//   - stats: storage totals to refresh after deletion.
//   - store: artifact storage to purge.
//   - retentionDays: default sweep window; 30 when not positive.
// Returns:
//   - *CleanupService: ready to use service.
func NewCleanupService(jobs JobStore, stats *StatsService, store storage.ArtifactStore, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &CleanupService{jobs: jobs, stats: stats, store: store, retentionDays: retentionDays}
}

// RemoveOlderThan deletes every finished job older than the given number
// of days: stored artifacts first, then the job record. Owner storage
// totals are refreshed once per affected user at the end.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - days: retention window; the configured default when not positive.
// Returns:
//   - *CleanupReport: what the sweep removed and what it could not.
//   - error: non-nil if expired jobs cannot be listed.
func (c *CleanupService) RemoveOlderThan(ctx context.Context, days int) (*CleanupReport, error) {
	if days <= 0 {
		days = c.retentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	jobs, err := c.jobs.ListFinishedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired jobs: %w", err)
	}

	report := &CleanupReport{Cutoff: cutoff}
	touched := make(map[string]bool)

	for i := range jobs {
		job := &jobs[i]
		prefix := job.OutputDir
		if prefix == "" {
			// Jobs cancelled before a worker claimed them never had an
			// output directory stamped.
			prefix = artifactPrefix(job)
		}

		if err := c.store.DeletePrefix(ctx, prefix); err != nil {
			logger.CtxWarn(ctx, "Failed to delete artifacts, keeping job record: job_id=%s, error=%v", job.ID, err)
			report.Failures++
			continue
		}
		if err := c.jobs.Delete(ctx, job.ID); err != nil {
			logger.CtxWarn(ctx, "Failed to delete job record: job_id=%s, error=%v", job.ID, err)
			report.Failures++
			continue
		}

		report.JobsRemoved++
		report.BytesFreed += job.TotalArtifactBytes()
		touched[job.UserID] = true
	}

	for userID := range touched {
		if err := c.stats.RefreshStorage(ctx, userID); err != nil {
			logger.CtxWarn(ctx, "Failed to refresh storage total: user_id=%s, error=%v", userID, err)
		}
	}
	report.UsersTouched = len(touched)

	logger.With(logger.Fields{
		logger.FieldCount: report.JobsRemoved,
		logger.FieldSize:  report.BytesFreed,
	}).Info(ctx, "Cleanup sweep finished: cutoff=%s, failures=%d",
		cutoff.Format(time.RFC3339), report.Failures)
	return report, nil
}
