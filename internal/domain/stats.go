package domain

import (
	"fmt"
	"math"
	"time"
)

// Outcome classifies how a finished job counts toward user statistics.
// Values include OutcomeSuccess, OutcomeFailure, and OutcomeCancelled.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// UserStats is the per-user rollup of finished download jobs. One row per
// user, created lazily on the first recorded outcome.
//
// TotalJobs always equals SuccessfulJobs plus FailedJobs; cancelled jobs are
// tracked in their own counter and do not contribute to the total.
type UserStats struct {
	UserID         string     `gorm:"type:text;primaryKey" json:"user_id"`
	TotalJobs      int        `gorm:"default:0" json:"total_jobs"`
	SuccessfulJobs int        `gorm:"default:0" json:"successful_jobs"`
	FailedJobs     int        `gorm:"default:0" json:"failed_jobs"`
	CancelledJobs  int        `gorm:"default:0" json:"cancelled_jobs"`
	TotalBytes     int64      `gorm:"default:0" json:"total_bytes"`
	FirstActivity  *time.Time `json:"first_activity,omitempty"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for UserStats.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (UserStats) TableName() string {
	return "user_stats"
}

// SuccessRate computes the percentage of counted jobs that succeeded,
// rounded to one decimal place.
// Parameters: none.
// Returns:
//   - float64: 0 when no jobs have been counted yet.
func (s *UserStats) SuccessRate() float64 {
	if s.TotalJobs == 0 {
		return 0
	}
	rate := float64(s.SuccessfulJobs) / float64(s.TotalJobs) * 100
	return math.Round(rate*10) / 10
}

// StorageFormatted renders TotalBytes as a human-readable size.
// Parameters: none.
// Returns:
//   - string: e.g. "0 B", "356.2 MB".
func (s *UserStats) StorageFormatted() string {
	return HumanSize(s.TotalBytes)
}

// HumanSize formats a byte count with binary unit prefixes and one decimal.
// Parameters:
//   - n: byte count.
//
// Returns:
//   - string: formatted size, e.g. "512 B", "4.0 KB", "1.5 GB".
func HumanSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	size := float64(n)
	for _, unit := range []string{"KB", "MB", "GB", "TB"} {
		size /= 1024
		if size < 1024 || unit == "TB" {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
	}
	return fmt.Sprintf("%d B", n)
}
