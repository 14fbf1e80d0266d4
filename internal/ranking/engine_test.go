package ranking

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiletrip/smilecoin/internal/cache"
	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/repository"
)

type fakeRestaurants struct {
	restaurants []domain.Restaurant
	listCalls   int
}

func (f *fakeRestaurants) FindByID(_ context.Context, id int64) (*domain.Restaurant, error) {
	for i := range f.restaurants {
		if f.restaurants[i].ID == id {
			return &f.restaurants[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRestaurants) Create(context.Context, *domain.Restaurant) error { return nil }

func (f *fakeRestaurants) ListAll(context.Context) ([]domain.Restaurant, error) {
	f.listCalls++
	return f.restaurants, nil
}

func (f *fakeRestaurants) RankOf(_ context.Context, id int64) (int, int, error) {
	rank := 1
	var me *domain.Restaurant
	for i := range f.restaurants {
		if f.restaurants[i].ID == id {
			me = &f.restaurants[i]
		}
	}
	if me == nil {
		return 0, 0, sql.ErrNoRows
	}
	for _, other := range f.restaurants {
		if other.TotalCoinsReceived > me.TotalCoinsReceived ||
			(other.TotalCoinsReceived == me.TotalCoinsReceived && other.ID < me.ID) {
			rank++
		}
	}
	return rank, len(f.restaurants), nil
}

type fakeTransfers struct {
	origins   map[string]map[int64]int64
	totals    repository.RestaurantTotals
	breakdown []repository.OriginTotal
	series    map[string][]repository.PeriodTotal
}

func (f *fakeTransfers) SumForUserOnDay(context.Context, int64, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeTransfers) SumForUserRestaurantOnDay(context.Context, int64, int64, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeTransfers) CoinsByOrigin(_ context.Context, country string) (map[int64]int64, error) {
	return f.origins[country], nil
}

func (f *fakeTransfers) TotalsForRestaurant(context.Context, int64) (*repository.RestaurantTotals, error) {
	totals := f.totals
	return &totals, nil
}

func (f *fakeTransfers) OriginBreakdown(context.Context, int64) ([]repository.OriginTotal, error) {
	return f.breakdown, nil
}

func (f *fakeTransfers) SeriesForRestaurant(_ context.Context, _ int64, bucket string, _ time.Time) ([]repository.PeriodTotal, error) {
	return f.series[bucket], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *cache.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewStore(client, testLogger())
}

// Bangkok city-center coordinates for the geo tests.
const (
	bkkLat = 13.7563
	bkkLng = 100.5018
)

func sampleRestaurants() []domain.Restaurant {
	return []domain.Restaurant{
		{ID: 1, Name: "Sukhumvit Soi Noodles", Lat: bkkLat + 0.002, Lng: bkkLng + 0.002, TotalCoinsReceived: 40},
		{ID: 2, Name: "Chiang Mai Khao Soi", Lat: 18.7883, Lng: 98.9853, TotalCoinsReceived: 90},
		{ID: 3, Name: "Riverside Grill", Lat: bkkLat - 0.004, Lng: bkkLng + 0.001, TotalCoinsReceived: 40},
		{ID: 4, Name: "Old Town Curry", Lat: bkkLat + 0.005, Lng: bkkLng - 0.003, TotalCoinsReceived: 15},
	}
}

func newTestEngine(t *testing.T, restaurants *fakeRestaurants, transfers *fakeTransfers) *Engine {
	t.Helper()
	return NewEngine(restaurants, transfers, testStore(t), time.Minute, time.Minute, testLogger())
}

func TestOverall_OrderAndTiebreak(t *testing.T) {
	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, &fakeTransfers{})

	page, err := engine.Overall(context.Background(), 1, 20, nil)
	require.NoError(t, err)

	require.Len(t, page.Entries, 4)
	// Coins descending, lower id first on ties.
	ids := []int64{page.Entries[0].RestaurantID, page.Entries[1].RestaurantID, page.Entries[2].RestaurantID, page.Entries[3].RestaurantID}
	assert.Equal(t, []int64{2, 1, 3, 4}, ids)

	for i, entry := range page.Entries {
		assert.Equal(t, i+1, entry.Rank)
		assert.Nil(t, entry.DistanceKm)
	}
}

func TestOverall_Pagination(t *testing.T) {
	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, &fakeTransfers{})
	ctx := context.Background()

	page, err := engine.Overall(ctx, 2, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.Limit)
	assert.Equal(t, 4, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Entries, 1)
	// Rank carries over from the full ordering, not the page.
	assert.Equal(t, 4, page.Entries[0].Rank)

	empty, err := engine.Overall(ctx, 5, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)
	assert.Equal(t, 2, empty.TotalPages)
}

func TestOverall_PageAndLimitValidation(t *testing.T) {
	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, &fakeTransfers{})
	ctx := context.Background()

	_, err := engine.Overall(ctx, 0, 20, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = engine.Overall(ctx, 1, 0, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = engine.Overall(ctx, 1, 101, nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestOverall_CachesResult(t *testing.T) {
	restaurants := &fakeRestaurants{restaurants: sampleRestaurants()}
	engine := newTestEngine(t, restaurants, &fakeTransfers{})
	ctx := context.Background()

	first, err := engine.Overall(ctx, 1, 20, nil)
	require.NoError(t, err)
	second, err := engine.Overall(ctx, 1, 20, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, restaurants.listCalls)
}

func TestRefresh_DropsCachedRankings(t *testing.T) {
	restaurants := &fakeRestaurants{restaurants: sampleRestaurants()}
	engine := newTestEngine(t, restaurants, &fakeTransfers{})
	ctx := context.Background()

	_, err := engine.Overall(ctx, 1, 20, nil)
	require.NoError(t, err)

	require.NoError(t, engine.Refresh(ctx))

	_, err = engine.Overall(ctx, 1, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, restaurants.listCalls)
}

func TestByOrigin_FiltersAndReranks(t *testing.T) {
	transfers := &fakeTransfers{origins: map[string]map[int64]int64{
		"JP": {1: 5, 4: 12},
	}}
	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, transfers)

	page, err := engine.ByOrigin(context.Background(), "JP", 1, 20, nil)
	require.NoError(t, err)

	// Restaurants without JP coins drop out; ordering uses the JP totals.
	require.Len(t, page.Entries, 2)
	assert.Equal(t, int64(4), page.Entries[0].RestaurantID)
	assert.Equal(t, int64(12), page.Entries[0].TotalCoins)
	assert.Equal(t, 1, page.Entries[0].Rank)
	assert.Equal(t, int64(1), page.Entries[1].RestaurantID)
	assert.Equal(t, "JP", page.Entries[1].OriginCountry)
}

func TestByOrigin_RequiresCountry(t *testing.T) {
	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, &fakeTransfers{})

	_, err := engine.ByOrigin(context.Background(), "", 1, 20, nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestNearby_FiltersByRadius(t *testing.T) {
	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, &fakeTransfers{})

	page, err := engine.Nearby(context.Background(), bkkLat, bkkLng, 2, 1, 20)
	require.NoError(t, err)

	// Chiang Mai is ~580 km away and drops out; the three Bangkok venues
	// stay, re-ranked within the filtered set.
	require.Len(t, page.Entries, 3)
	assert.Equal(t, int64(1), page.Entries[0].RestaurantID)
	assert.Equal(t, 1, page.Entries[0].Rank)

	for _, entry := range page.Entries {
		require.NotNil(t, entry.DistanceKm)
		assert.LessOrEqual(t, *entry.DistanceKm, 2.0)
	}
}

func TestNearby_RequiresPositiveRadius(t *testing.T) {
	engine := newTestEngine(t, &fakeRestaurants{restaurants: sampleRestaurants()}, &fakeTransfers{})

	_, err := engine.Nearby(context.Background(), bkkLat, bkkLng, 0, 1, 20)
	assert.True(t, apperrors.IsValidation(err))
}

func TestHaversineKm(t *testing.T) {
	// Bangkok to Chiang Mai is roughly 580 km.
	distance := haversineKm(bkkLat, bkkLng, 18.7883, 98.9853)
	assert.InDelta(t, 580, distance, 10)

	assert.Zero(t, haversineKm(bkkLat, bkkLng, bkkLat, bkkLng))
}

func TestRoundKm(t *testing.T) {
	assert.Equal(t, 1.235, roundKm(1.23456))
	assert.Equal(t, 0.0, roundKm(0.0))
}
