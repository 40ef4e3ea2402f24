package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/logger"
	"github.com/tobk/ytvault/internal/repository"
)

const (
	topChannelsLimit = 10
	dailyWindowDays  = 30
)

// DayCount is one bucket of the daily completion histogram.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// StatsOverview is the full statistics payload for one user: the stored
// rollup plus the breakdowns computed from the job table.
type StatsOverview struct {
	Stats             *domain.UserStats                         `json:"stats"`
	ByKind            map[domain.OutputKind]repository.KindStat `json:"by_kind"`
	TopChannels       []repository.ChannelCount                 `json:"top_channels"`
	Daily             []DayCount                                `json:"daily"`
	TotalDurationSecs int64                                     `json:"total_duration_secs"`
}

// StatsService maintains the per-user rollups. Counters move only through
// RecordOutcome; stored bytes are recomputed from the job table on every
// write, so deleted jobs simply fall out of the total.
type StatsService struct {
	stats StatsStore
	jobs  JobStore
}

// NewStatsService wires the statistics operations.
func NewStatsService(stats StatsStore, jobs JobStore) *StatsService {
	return &StatsService{stats: stats, jobs: jobs}
}

// RecordOutcome folds one finished job into its owner's rollup. Success
// and failure move TotalJobs; cancellations only move their own counter.
// The stored byte total is rescanned from completed jobs, so the caller
// must write the job's terminal state first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: job owner.
//   - outcome: how the job ended.
// Returns:
//   - error: non-nil if the rollup cannot be read or written.
func (s *StatsService) RecordOutcome(ctx context.Context, userID string, outcome domain.Outcome) error {
	bytes, err := s.jobs.SumArtifactBytes(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to total artifact bytes: %w", err)
	}

	now := time.Now()
	stats, err := s.stats.AtomicUpdate(ctx, userID, func(st *domain.UserStats) error {
		switch outcome {
		case domain.OutcomeSuccess:
			st.TotalJobs++
			st.SuccessfulJobs++
		case domain.OutcomeFailure:
			st.TotalJobs++
			st.FailedJobs++
		case domain.OutcomeCancelled:
			st.CancelledJobs++
		default:
			return fmt.Errorf("unknown outcome %q", outcome)
		}
		if st.FirstActivity == nil {
			st.FirstActivity = &now
		}
		st.LastActivity = &now
		st.TotalBytes = bytes
		return nil
	})
	if err != nil {
		return err
	}

	logger.CtxDebug(ctx, "Recorded job outcome: outcome=%s, total=%d, stored=%s",
		outcome, stats.TotalJobs, stats.StorageFormatted())
	return nil
}

// RefreshStorage recomputes a user's stored byte total without touching
// the outcome counters. Called after artifact cleanup.
func (s *StatsService) RefreshStorage(ctx context.Context, userID string) error {
	bytes, err := s.jobs.SumArtifactBytes(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to total artifact bytes: %w", err)
	}
	_, err = s.stats.AtomicUpdate(ctx, userID, func(st *domain.UserStats) error {
		st.TotalBytes = bytes
		return nil
	})
	return err
}

// Overview assembles the statistics payload for one user. Users with no
// recorded outcomes get an all-zero rollup rather than an error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user to report on.
// Returns:
//   - *StatsOverview: rollup plus per-kind, per-channel, and per-day
//     breakdowns.
//   - error: non-nil if any of the queries fail.
func (s *StatsService) Overview(ctx context.Context, userID string) (*StatsOverview, error) {
	stats, err := s.stats.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &domain.UserStats{UserID: userID}
	}

	byKind, err := s.jobs.KindBreakdown(ctx, userID)
	if err != nil {
		return nil, err
	}

	channels, err := s.jobs.TopChannels(ctx, userID, topChannelsLimit)
	if err != nil {
		return nil, err
	}

	daily, err := s.dailyCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	duration, err := s.jobs.SumDurationSecs(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &StatsOverview{
		Stats:             stats,
		ByKind:            byKind,
		TopChannels:       channels,
		Daily:             daily,
		TotalDurationSecs: duration,
	}, nil
}

// dailyCounts buckets the user's completions of the last 30 days by
// submission date. Every day gets a bucket, including empty ones, oldest
// first.
func (s *StatsService) dailyCounts(ctx context.Context, userID string) ([]DayCount, error) {
	year, month, day := time.Now().Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, time.Local)
	start := today.AddDate(0, 0, -(dailyWindowDays - 1))

	stamps, err := s.jobs.DoneCreatedSince(ctx, userID, start)
	if err != nil {
		return nil, err
	}

	perDay := make(map[string]int, len(stamps))
	for _, ts := range stamps {
		perDay[ts.Format("2006-01-02")]++
	}

	daily := make([]DayCount, 0, dailyWindowDays)
	for i := 0; i < dailyWindowDays; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		daily = append(daily, DayCount{Date: date, Count: perDay[date]})
	}
	return daily, nil
}
