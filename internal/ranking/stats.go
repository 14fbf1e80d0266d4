package ranking

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

// Trend window sizes per bucket.
const (
	dailyWindowDays   = 14
	weeklyWindowCount = 8
	monthlyWindow     = 6
)

// Stats builds the single-restaurant drill-down: totals, origin breakdown,
// rank and percentile, and daily/weekly/monthly trends. The view is cached
// under the restaurant's scope and dropped whenever the recorder commits a
// transfer for it.
func (e *Engine) Stats(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error) {
	key := cache.DashboardKey(restaurantID)

	var cached domain.RestaurantStats
	if found, err := e.cache.Get(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	stats, err := e.computeStats(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, stats, e.dashTTL, cache.ScopeRestaurant(restaurantID)); err != nil {
		e.log.Warn("dashboard cache write failed", slog.Int64("restaurant_id", restaurantID), slog.Any("error", err))
	}

	return stats, nil
}

func (e *Engine) computeStats(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error) {
	rest, err := e.restaurants.FindByID(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("restaurant", restaurantID)
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	totals, err := e.transfers.TotalsForRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	breakdown, err := e.transfers.OriginBreakdown(ctx, restaurantID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	rank, restaurantCount, err := e.restaurants.RankOf(ctx, restaurantID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	now := e.now().UTC()

	daily, err := e.trend(ctx, restaurantID, "day", dayStart(now).AddDate(0, 0, -(dailyWindowDays-1)), stepDays(1))
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	weekly, err := e.trend(ctx, restaurantID, "week", weekStart(now).AddDate(0, 0, -7*(weeklyWindowCount-1)), stepDays(7))
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	monthly, err := e.trend(ctx, restaurantID, "month", monthStart(now).AddDate(0, -(monthlyWindow-1), 0), stepMonths)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	stats := &domain.RestaurantStats{
		RestaurantID:  rest.ID,
		Name:          rest.Name,
		TotalCoins:    totals.TotalCoins,
		TransferCount: totals.TransferCount,
		UniqueUsers:   totals.UniqueUsers,
		Rank:          rank,
		Percentile:    percentile(rank, restaurantCount),
		Origins:       originShares(breakdown, totals.TotalCoins),
		Daily:         daily,
		Weekly:        weekly,
		Monthly:       monthly,
	}

	return stats, nil
}

// trend fetches the bucketed series and zero-fills missing periods so the
// growth rate always compares adjacent periods.
func (e *Engine) trend(ctx context.Context, restaurantID int64, bucket string, since time.Time, step func(time.Time) time.Time) ([]domain.TrendPoint, error) {
	series, err := e.transfers.SeriesForRestaurant(ctx, restaurantID, bucket, since)
	if err != nil {
		return nil, err
	}

	byPeriod := make(map[time.Time]int64, len(series))
	for _, point := range series {
		byPeriod[point.PeriodStart.UTC()] = point.Coins
	}

	now := e.now().UTC()
	var points []domain.TrendPoint
	for period := since; !period.After(now); period = step(period) {
		points = append(points, domain.TrendPoint{
			PeriodStart: period,
			Coins:       byPeriod[period],
		})
	}

	for i := 1; i < len(points); i++ {
		points[i].GrowthRate = growthRate(points[i-1].Coins, points[i].Coins)
	}

	return points, nil
}

// growthRate is the period-over-period change in percent. A zero previous
// period reports 0% rather than dividing by zero.
func growthRate(previous, current int64) float64 {
	if previous == 0 {
		return 0
	}

	rate := float64(current-previous) / float64(previous) * 100

	return math.Round(rate*100) / 100
}

// originShares converts per-country totals into percentages of the overall
// total, rounded to 2 decimals.
func originShares(breakdown []repository.OriginTotal, totalCoins int64) []domain.OriginShare {
	shares := make([]domain.OriginShare, 0, len(breakdown))
	for _, entry := range breakdown {
		share := domain.OriginShare{
			Country: entry.Country,
			Coins:   entry.Coins,
		}
		if totalCoins > 0 {
			share.Percentage = math.Round(float64(entry.Coins)/float64(totalCoins)*100*100) / 100
		}
		shares = append(shares, share)
	}

	return shares
}

// percentile reports the share of restaurants at or below this rank, so the
// top restaurant of N scores 100.
func percentile(rank, total int) float64 {
	if total == 0 {
		return 0
	}

	pct := float64(total-rank+1) / float64(total) * 100

	return math.Round(pct*100) / 100
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart truncates to the ISO week start (Monday), matching Postgres
// date_trunc('week', ...).
func weekStart(t time.Time) time.Time {
	day := dayStart(t)
	offset := (int(day.Weekday()) + 6) % 7

	return day.AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func stepDays(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.AddDate(0, 0, n) }
}

func stepMonths(t time.Time) time.Time {
	return t.AddDate(0, 1, 0)
}
