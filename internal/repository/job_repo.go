package repository

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/tobk/ytvault/internal/domain"
	"gorm.io/gorm"
)

// jobLockStripes sizes the striped mutex table that serializes atomic
// updates per job ID.
const jobLockStripes = 64

// JobFilter narrows job listings.
type JobFilter struct {
	Status domain.Status
	Kind   domain.OutputKind
	Query  string // matches title, channel name, or URL
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// ChannelCount is one row of the per-channel job breakdown.
type ChannelCount struct {
	ChannelName string `json:"channel_name"`
	Count       int64  `json:"count"`
}

// KindStat is one row of the per-kind artifact breakdown.
type KindStat struct {
	Count      int64 `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// JobRepository handles download job persistence. All mutations of an
// existing job go through AtomicUpdate so concurrent writers (workers,
// cancel/retry handlers) always see a consistent record.
type JobRepository struct {
	db    *gorm.DB
	locks [jobLockStripes]sync.Mutex
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// lockFor maps a job ID onto its lock stripe.
func (r *JobRepository) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%jobLockStripes]
}

// CreateBatch inserts several job records in one transaction. Used by the
// submit endpoint when a playlist URL expands into many jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobs: job records to persist.
// Returns:
//   - error: non-nil if any insert fails; the batch is all-or-nothing.
func (r *JobRepository) CreateBatch(ctx context.Context, jobs []*domain.DownloadJob) error {
	if len(jobs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(jobs).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.DownloadJob: job record if found.
//   - error: domain.ErrJobNotFound when no record exists.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.DownloadJob, error) {
	var job domain.DownloadJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetOwned retrieves a job by ID scoped to its owner. Jobs of other users
// are reported as not found.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - userID: expected owner.
// Returns:
//   - *domain.DownloadJob: job record if found and owned by userID.
//   - error: domain.ErrJobNotFound when no matching record exists.
func (r *JobRepository) GetOwned(ctx context.Context, id, userID string) (*domain.DownloadJob, error) {
	var job domain.DownloadJob
	if err := r.db.WithContext(ctx).First(&job, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// AtomicUpdate runs a read-modify-write cycle on one job. The callback
// receives the current record and returns the partial update to apply, or
// nil to leave the record untouched. The cycle runs inside a transaction
// under a per-job lock, so two concurrent updates can never interleave.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - fn: decision callback; an error aborts the update and is returned.
// Returns:
//   - *domain.DownloadJob: the record after the update.
//   - error: domain.ErrJobNotFound, a callback error, or a database error.
func (r *JobRepository) AtomicUpdate(ctx context.Context, id string, fn func(*domain.DownloadJob) (*domain.JobUpdate, error)) (*domain.DownloadJob, error) {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	var result *domain.DownloadJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.DownloadJob
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrJobNotFound
			}
			return err
		}

		update, err := fn(&job)
		if err != nil {
			return err
		}
		if update == nil {
			result = &job
			return nil
		}

		update.Apply(&job)
		if err := tx.Save(&job).Error; err != nil {
			return fmt.Errorf("failed to save job %s: %w", id, err)
		}
		result = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListByUser retrieves a user's jobs with optional filters, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
//   - filter: optional narrowing; zero values mean no filter. Limit
//     defaults to 50 and is capped at 200.
// Returns:
//   - []domain.DownloadJob: matching job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListByUser(ctx context.Context, userID string, filter JobFilter) ([]domain.DownloadJob, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		// Kind sets are stored as JSON arrays of quoted names.
		query = query.Where("kinds LIKE ?", fmt.Sprintf("%%%q%%", string(filter.Kind)))
	}
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		query = query.Where("title LIKE ? OR channel_name LIKE ? OR url LIKE ?", like, like, like)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var jobs []domain.DownloadJob
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListActiveByUser retrieves a user's pending, running, and retrying jobs
// in submission order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
// Returns:
//   - []domain.DownloadJob: active job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.DownloadJob, error) {
	var jobs []domain.DownloadJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []domain.Status{domain.StatusPending, domain.StatusRunning, domain.StatusRetrying}).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListRecentFinished retrieves a user's most recently finished jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.DownloadJob: finished job records, newest finish first.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListRecentFinished(ctx context.Context, userID string, limit int) ([]domain.DownloadJob, error) {
	var jobs []domain.DownloadJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []domain.Status{domain.StatusDone, domain.StatusError, domain.StatusCancelled}).
		Order("finished_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListUnfinished retrieves every job in a non-terminal status across all
// users, oldest first. Used at startup to resume work interrupted by a
// shutdown or crash.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.DownloadJob: pending, running, and retrying job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListUnfinished(ctx context.Context) ([]domain.DownloadJob, error) {
	var jobs []domain.DownloadJob
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.Status{domain.StatusPending, domain.StatusRunning, domain.StatusRetrying}).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListFinishedBefore retrieves done and failed jobs that finished before
// the cutoff. Cancelled jobs are included; they may hold partial artifacts.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: exclusive upper bound on finished_at.
// Returns:
//   - []domain.DownloadJob: jobs eligible for cleanup.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]domain.DownloadJob, error) {
	var jobs []domain.DownloadJob
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND finished_at IS NOT NULL AND finished_at < ?",
			[]domain.Status{domain.StatusDone, domain.StatusError, domain.StatusCancelled}, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// SumArtifactBytes recomputes a user's stored bytes by scanning every
// artifact size column of their completed jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
// Returns:
//   - int64: total stored bytes; zero when nothing is stored.
//   - error: non-nil if the query fails.
func (r *JobRepository) SumArtifactBytes(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&domain.DownloadJob{}).
		Select(`COALESCE(SUM(
			COALESCE(size_audio, 0) +
			COALESCE(size_video, 0) +
			COALESCE(size_transcript, 0) +
			COALESCE(size_transcript_plain, 0) +
			COALESCE(thumbnail_size, 0)), 0)`).
		Where("user_id = ? AND status = ?", userID, domain.StatusDone).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// KindBreakdown aggregates a user's stored artifacts by kind: how many
// jobs hold one and how many bytes they take. Presence of the stored path
// is what counts, so artifacts kept by since-cancelled jobs are included.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
// Returns:
//   - map[domain.OutputKind]KindStat: per-kind counts and byte totals.
//   - error: non-nil if any query fails.
func (r *JobRepository) KindBreakdown(ctx context.Context, userID string) (map[domain.OutputKind]KindStat, error) {
	columns := map[domain.OutputKind][2]string{
		domain.KindAudio:      {"path_audio", "size_audio"},
		domain.KindVideo:      {"path_video", "size_video"},
		domain.KindTranscript: {"path_transcript", "size_transcript"},
		domain.KindThumbnail:  {"thumbnail_path", "thumbnail_size"},
	}
	breakdown := make(map[domain.OutputKind]KindStat, len(columns))
	for kind, cols := range columns {
		var row KindStat
		if err := r.db.WithContext(ctx).
			Model(&domain.DownloadJob{}).
			Select(fmt.Sprintf("COUNT(*) as count, COALESCE(SUM(%s), 0) as total_bytes", cols[1])).
			Where(fmt.Sprintf("user_id = ? AND %s <> ''", cols[0]), userID).
			Scan(&row).Error; err != nil {
			return nil, err
		}
		breakdown[kind] = row
	}
	return breakdown, nil
}

// DoneCreatedSince lists the creation times of a user's completed jobs
// submitted after the cutoff, oldest first. Feeds the daily activity
// histogram, which buckets the timestamps in Go to stay portable across
// SQLite and PostgreSQL date functions.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
//   - since: earliest creation time to include.
// Returns:
//   - []time.Time: creation timestamps of completed jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) DoneCreatedSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	var stamps []time.Time
	if err := r.db.WithContext(ctx).
		Model(&domain.DownloadJob{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, domain.StatusDone, since).
		Order("created_at ASC").
		Pluck("created_at", &stamps).Error; err != nil {
		return nil, err
	}
	return stamps, nil
}

// SumDurationSecs totals the probed media duration across all of a
// user's jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
// Returns:
//   - int64: total duration in seconds, zero when nothing was probed.
//   - error: non-nil if the query fails.
func (r *JobRepository) SumDurationSecs(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&domain.DownloadJob{}).
		Select("COALESCE(SUM(duration_secs), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// TopChannels retrieves the channels a user downloads from most often.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
//   - limit: maximum number of channels to return.
// Returns:
//   - []ChannelCount: channels with completed-job counts, largest first.
//   - error: non-nil if the query fails.
func (r *JobRepository) TopChannels(ctx context.Context, userID string, limit int) ([]ChannelCount, error) {
	var rows []ChannelCount
	if err := r.db.WithContext(ctx).
		Model(&domain.DownloadJob{}).
		Select("channel_name, COUNT(*) as count").
		Where("user_id = ? AND status = ? AND channel_name <> ''", userID, domain.StatusDone).
		Group("channel_name").
		Order("count DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete removes a job by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.DownloadJob{}, "id = ?", id).Error
}
