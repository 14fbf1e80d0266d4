// Package eligibility derives trip progress and voucher eligibility from the
// per-day reward history.
package eligibility

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/smiletrip/smilecoin/internal/cache"
	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/repository"
)

// Engine computes trip summaries. All date arithmetic is relative to an
// explicit asOf argument so trip-boundary conditions are testable without
// touching the wall clock.
type Engine struct {
	users   repository.UserRepository
	rewards repository.RewardRepository
	cache   *cache.Store
	ttl     time.Duration
	log     *slog.Logger
}

// NewEngine constructs an Engine. The cache may be nil, in which case every
// summary is recomputed.
func NewEngine(
	users repository.UserRepository,
	rewards repository.RewardRepository,
	store *cache.Store,
	ttl time.Duration,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		users:   users,
		rewards: rewards,
		cache:   store,
		ttl:     ttl,
		log:     log,
	}
}

// Summary computes the user's trip progress as of the given time. Results
// are cached per (user, day) with a short TTL; the recorder deletes the
// entry whenever it writes a DailyReward for the user.
func (e *Engine) Summary(ctx context.Context, userID int64, asOf time.Time) (*domain.TripSummary, error) {
	key := cache.EligibilityKey(userID, asOf)

	var cached domain.TripSummary
	if found, err := e.cache.Get(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	summary, err := e.compute(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, summary, e.ttl, cache.ScopeUser(userID)); err != nil {
		e.log.Warn("trip summary cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	return summary, nil
}

func (e *Engine) compute(ctx context.Context, userID int64, asOf time.Time) (*domain.TripSummary, error) {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", userID)
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	rewards, err := e.rewards.ListByUserDesc(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	today := domain.Day(asOf)
	arrival := domain.Day(user.ArrivalDate)
	departure := domain.Day(user.DepartureDate)

	// Only days inside the trip window count toward eligibility. Transfers
	// keep working after departure, but those days can never substitute for
	// a trip day that was missed.
	completedDays, err := e.rewards.CountCompleted(ctx, userID, arrival, departure)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	totalTripDays := TripDays(arrival, departure)

	summary := &domain.TripSummary{
		TotalTripDays:        totalTripDays,
		CompletedDays:        completedDays,
		CurrentStreak:        streak(rewards, today),
		DaysUntilDeparture:   daysBetween(today, departure),
		IsEligibleForVoucher: !today.Before(departure) && completedDays >= totalTripDays,
	}

	if totalTripDays > 0 {
		pct := float64(completedDays) / float64(totalTripDays) * 100
		summary.CompletionPercentage = math.Round(pct*100) / 100
	}

	return summary, nil
}

// TripDays is the inclusive count of calendar days between arrival and
// departure: a trip arriving day 0 and departing day 3 spans 4 days, and
// every one of them must be complete for voucher eligibility.
func TripDays(arrival, departure time.Time) int {
	if departure.Before(arrival) {
		return 0
	}

	return daysBetween(arrival, departure) + 1
}

// streak counts consecutive complete days walking backward from the asOf
// day. The walk is anchored on today, not on the user's last activity: a
// user who completed every trip day but stopped engaging sees the streak
// reset once a day passes without a complete row.
func streak(rewards []domain.DailyReward, today time.Time) int {
	expected := today
	count := 0

	for _, reward := range rewards {
		day := domain.Day(reward.RewardDate)
		if day.After(expected) {
			continue
		}
		if !day.Equal(expected) || !reward.AllCoinsGiven {
			break
		}

		count++
		expected = expected.AddDate(0, 0, -1)
	}

	return count
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}

	return int(to.Sub(from).Hours() / 24)
}
