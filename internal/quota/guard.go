// Package quota validates proposed coin transfers against the daily and
// per-restaurant caps.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/repository"
	"github.com/smiletrip/smilecoin/pkg/metrics"
)

// Caps holds the quota constants the guard enforces.
type Caps struct {
	Daily         int
	PerRestaurant int
}

// DefaultCaps matches the product rules: 10 coins per day, 3 per restaurant.
func DefaultCaps() Caps {
	return Caps{Daily: domain.DailyCap, PerRestaurant: domain.PerRestaurantCap}
}

// Guard answers whether a proposed transfer is permitted. It is a pure
// read + decision: the pre-flight check here is advisory for UX, and the
// recorder re-runs the same arithmetic inside its transaction to close the
// race window between check and write.
type Guard struct {
	users       repository.UserRepository
	restaurants repository.RestaurantRepository
	transfers   repository.TransferRepository
	caps        Caps
	log         *slog.Logger
}

// NewGuard constructs a Guard over the given repositories.
func NewGuard(
	users repository.UserRepository,
	restaurants repository.RestaurantRepository,
	transfers repository.TransferRepository,
	caps Caps,
	log *slog.Logger,
) *Guard {
	if log == nil {
		log = slog.Default()
	}

	return &Guard{
		users:       users,
		restaurants: restaurants,
		transfers:   transfers,
		caps:        caps,
		log:         log,
	}
}

// Caps returns the configured quota constants.
func (g *Guard) Caps() Caps {
	return g.caps
}

// Validate checks the proposed transfer against both caps as of the given
// time. Daily totals are recomputed from the transfer log, never read from
// the cached DailyReward row, to avoid stale-read races.
func (g *Guard) Validate(ctx context.Context, userID, restaurantID int64, amount int, asOf time.Time) (*domain.QuotaDecision, error) {
	if amount < domain.AmountMin || amount > domain.AmountMax {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("amount must be between %d and %d", domain.AmountMin, domain.AmountMax))
	}

	if _, err := g.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", userID)
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	if _, err := g.restaurants.FindByID(ctx, restaurantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("restaurant", restaurantID)
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	dailyGiven, err := g.transfers.SumForUserOnDay(ctx, userID, asOf)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	restaurantGiven, err := g.transfers.SumForUserRestaurantOnDay(ctx, userID, restaurantID, asOf)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	decision := g.Decide(dailyGiven, restaurantGiven, amount)
	if !decision.Allowed {
		g.log.Info("quota pre-flight rejected",
			slog.Int64("user_id", userID),
			slog.Int64("restaurant_id", restaurantID),
			slog.Int("amount", amount),
			slog.String("reason", decision.Reason),
		)
	}

	return decision, nil
}

// Decide applies the cap arithmetic to already-known totals. The recorder
// calls this inside its transaction with totals read under the user lock, so
// the advisory and authoritative paths can never disagree on the rules.
func (g *Guard) Decide(dailyGiven, restaurantGiven, amount int) *domain.QuotaDecision {
	decision := &domain.QuotaDecision{
		DailyGiven:           dailyGiven,
		DailyRemaining:       g.caps.Daily - dailyGiven,
		RestaurantGivenToday: restaurantGiven,
	}
	if decision.DailyRemaining < 0 {
		decision.DailyRemaining = 0
	}

	switch {
	case dailyGiven+amount > g.caps.Daily:
		decision.Reason = fmt.Sprintf("daily cap of %d coins exceeded", g.caps.Daily)
		metrics.RecordQuotaRejection("daily")
	case restaurantGiven+amount > g.caps.PerRestaurant:
		decision.Reason = fmt.Sprintf("per-restaurant cap of %d coins exceeded", g.caps.PerRestaurant)
		metrics.RecordQuotaRejection("restaurant")
	default:
		decision.Allowed = true
	}

	return decision
}
