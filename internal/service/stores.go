package service

import (
	"context"
	"time"

	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/repository"
)

// JobStore is the job persistence surface the services depend on.
// *repository.JobRepository implements it; tests substitute an in-memory
// fake.
type JobStore interface {
	CreateBatch(ctx context.Context, jobs []*domain.DownloadJob) error
	GetByID(ctx context.Context, id string) (*domain.DownloadJob, error)
	GetOwned(ctx context.Context, id, userID string) (*domain.DownloadJob, error)
	AtomicUpdate(ctx context.Context, id string, fn func(*domain.DownloadJob) (*domain.JobUpdate, error)) (*domain.DownloadJob, error)
	ListByUser(ctx context.Context, userID string, filter repository.JobFilter) ([]domain.DownloadJob, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.DownloadJob, error)
	ListRecentFinished(ctx context.Context, userID string, limit int) ([]domain.DownloadJob, error)
	ListUnfinished(ctx context.Context) ([]domain.DownloadJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]domain.DownloadJob, error)
	SumArtifactBytes(ctx context.Context, userID string) (int64, error)
	SumDurationSecs(ctx context.Context, userID string) (int64, error)
	KindBreakdown(ctx context.Context, userID string) (map[domain.OutputKind]repository.KindStat, error)
	DoneCreatedSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
	TopChannels(ctx context.Context, userID string, limit int) ([]repository.ChannelCount, error)
	Delete(ctx context.Context, id string) error
}

// StatsStore is the rollup persistence surface.
// *repository.StatsRepository implements it.
type StatsStore interface {
	AtomicUpdate(ctx context.Context, userID string, fn func(*domain.UserStats) error) (*domain.UserStats, error)
	GetByUser(ctx context.Context, userID string) (*domain.UserStats, error)
}
