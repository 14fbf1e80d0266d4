package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/smiletrip/smilecoin/internal/domain"
)

// RewardRepository exposes read queries over the per-day reward aggregates.
// Rows are written only by the recorder's transaction.
type RewardRepository interface {
	ListByUserDesc(ctx context.Context, userID int64) ([]domain.DailyReward, error)
	CountCompleted(ctx context.Context, userID int64, from, to time.Time) (int, error)
}

type rewardRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRewardRepository creates a new SQL-backed daily reward repository.
func NewRewardRepository(db *sql.DB, log *slog.Logger) RewardRepository {
	return &rewardRepository{
		db:  db,
		log: log,
	}
}

// ListByUserDesc returns the user's daily reward rows, most recent day first.
func (r *rewardRepository) ListByUserDesc(ctx context.Context, userID int64) ([]domain.DailyReward, error) {
	const query = `
		SELECT user_id, reward_date, coins_received, coins_given, all_coins_given
		FROM daily_rewards
		WHERE user_id = $1
		ORDER BY reward_date DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to list daily rewards", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("list daily rewards: %w", err)
	}
	defer rows.Close()

	var rewards []domain.DailyReward
	for rows.Next() {
		var reward domain.DailyReward
		if err := rows.Scan(
			&reward.UserID,
			&reward.RewardDate,
			&reward.CoinsReceived,
			&reward.CoinsGiven,
			&reward.AllCoinsGiven,
		); err != nil {
			return nil, fmt.Errorf("scan daily reward: %w", err)
		}
		rewards = append(rewards, reward)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily rewards: %w", err)
	}

	return rewards, nil
}

// CountCompleted counts the user's fully-given days inside [from, to].
// Bounding here matters for eligibility: days outside the trip window must
// never count toward the voucher.
func (r *rewardRepository) CountCompleted(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM daily_rewards
		WHERE user_id = $1
		  AND all_coins_given = TRUE
		  AND reward_date BETWEEN $2 AND $3
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, from, to).Scan(&count); err != nil {
		if r.log != nil {
			r.log.Error("failed to count completed days", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return 0, fmt.Errorf("count completed days: %w", err)
	}

	return count, nil
}
