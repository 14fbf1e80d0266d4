package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/repository"
)

func TestStats_ComputesDashboard(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	transfers := &fakeTransfers{
		totals: repository.RestaurantTotals{TotalCoins: 90, TransferCount: 40, UniqueUsers: 25},
		breakdown: []repository.OriginTotal{
			{Country: "JP", Coins: 45},
			{Country: "KR", Coins: 30},
			{Country: "US", Coins: 15},
		},
		series: map[string][]repository.PeriodTotal{
			"day": {
				{PeriodStart: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), Coins: 4},
				{PeriodStart: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Coins: 6},
			},
		},
	}

	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, transfers)
	engine.WithClock(func() time.Time { return now })

	stats, err := engine.Stats(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.RestaurantID)
	assert.Equal(t, "Chiang Mai Khao Soi", stats.Name)
	assert.Equal(t, int64(90), stats.TotalCoins)
	assert.Equal(t, int64(40), stats.TransferCount)
	assert.Equal(t, int64(25), stats.UniqueUsers)

	// Top restaurant of four.
	assert.Equal(t, 1, stats.Rank)
	assert.InDelta(t, 100.0, stats.Percentile, 0.001)

	require.Len(t, stats.Origins, 3)
	assert.Equal(t, "JP", stats.Origins[0].Country)
	assert.InDelta(t, 50.0, stats.Origins[0].Percentage, 0.001)
	assert.InDelta(t, 33.33, stats.Origins[1].Percentage, 0.001)
	assert.InDelta(t, 16.67, stats.Origins[2].Percentage, 0.001)

	// 14 daily buckets ending today, zero-filled where the ledger is silent.
	require.Len(t, stats.Daily, 14)
	assert.Equal(t, time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC), stats.Daily[0].PeriodStart)
	assert.Equal(t, int64(4), stats.Daily[11].Coins)
	assert.Equal(t, int64(6), stats.Daily[12].Coins)
	assert.InDelta(t, 50.0, stats.Daily[12].GrowthRate, 0.001)
	// Today has no transfers yet: -100% against yesterday.
	assert.Equal(t, int64(0), stats.Daily[13].Coins)
	assert.InDelta(t, -100.0, stats.Daily[13].GrowthRate, 0.001)

	require.Len(t, stats.Weekly, 8)
	// March 10 2026 is a Tuesday; the last weekly bucket starts Monday March 9.
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), stats.Weekly[7].PeriodStart)

	require.Len(t, stats.Monthly, 6)
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), stats.Monthly[0].PeriodStart)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), stats.Monthly[5].PeriodStart)
}

func TestStats_UnknownRestaurant(t *testing.T) {
	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, &fakeTransfers{})

	_, err := engine.Stats(context.Background(), 999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGrowthRate(t *testing.T) {
	assert.InDelta(t, 50.0, growthRate(4, 6), 0.001)
	assert.InDelta(t, -25.0, growthRate(4, 3), 0.001)
	assert.InDelta(t, 0.0, growthRate(0, 10), 0.001)
	assert.InDelta(t, -100.0, growthRate(10, 0), 0.001)
	assert.InDelta(t, 33.33, growthRate(3, 4), 0.001)
}

func TestOriginShares(t *testing.T) {
	shares := originShares([]repository.OriginTotal{
		{Country: "JP", Coins: 2},
		{Country: "KR", Coins: 1},
	}, 3)

	require.Len(t, shares, 2)
	assert.InDelta(t, 66.67, shares[0].Percentage, 0.001)
	assert.InDelta(t, 33.33, shares[1].Percentage, 0.001)

	// Zero total yields zero percentages, not NaN.
	empty := originShares([]repository.OriginTotal{{Country: "JP", Coins: 0}}, 0)
	assert.InDelta(t, 0.0, empty[0].Percentage, 0.001)
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 100.0, percentile(1, 4), 0.001)
	assert.InDelta(t, 25.0, percentile(4, 4), 0.001)
	assert.InDelta(t, 0.0, percentile(0, 0), 0.001)
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, monday, weekStart(time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, monday, weekStart(time.Date(2026, 3, 11, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, monday, weekStart(time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)))
}
