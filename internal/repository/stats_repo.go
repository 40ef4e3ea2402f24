package repository

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/tobk/ytvault/internal/domain"
	"gorm.io/gorm"
)

const statsLockStripes = 32

// StatsRepository handles per-user statistics persistence. The rollup row
// is created lazily on the first recorded outcome, and updates to the same
// user are serialized through a per-user lock.
type StatsRepository struct {
	db    *gorm.DB
	locks [statsLockStripes]sync.Mutex
}

// NewStatsRepository creates a new StatsRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *StatsRepository: repository instance bound to db.
func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// lockFor maps a user ID onto its lock stripe.
func (r *StatsRepository) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &r.locks[h.Sum32()%statsLockStripes]
}

// AtomicUpdate runs a read-modify-write cycle on one user's rollup row,
// creating the row if the user has none yet. The callback mutates the
// record in place.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: rollup owner.
//   - fn: mutation callback; an error aborts the update and is returned.
// Returns:
//   - *domain.UserStats: the record after the update.
//   - error: a callback error or a database error.
func (r *StatsRepository) AtomicUpdate(ctx context.Context, userID string, fn func(*domain.UserStats) error) (*domain.UserStats, error) {
	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	var result *domain.UserStats
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stats domain.UserStats
		if err := tx.First(&stats, "user_id = ?", userID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			stats = domain.UserStats{UserID: userID}
		}

		if err := fn(&stats); err != nil {
			return err
		}

		if err := tx.Save(&stats).Error; err != nil {
			return fmt.Errorf("failed to save stats for user %s: %w", userID, err)
		}
		result = &stats
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetByUser retrieves a user's rollup row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: rollup owner.
// Returns:
//   - *domain.UserStats: the stored row, or a zero-valued row for users
//     with no recorded outcomes yet.
//   - error: non-nil if the query fails.
func (r *StatsRepository) GetByUser(ctx context.Context, userID string) (*domain.UserStats, error) {
	var stats domain.UserStats
	if err := r.db.WithContext(ctx).First(&stats, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.UserStats{UserID: userID}, nil
		}
		return nil, err
	}
	return &stats, nil
}
