// Package ranking derives ordered restaurant views from the coin ledger.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/smiletrip/smilecoin/internal/cache"
	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/repository"
	"github.com/smiletrip/smilecoin/pkg/metrics"
)

const (
	limitMin = 1
	limitMax = 100
)

// GeoFilter restricts a ranking to restaurants within RadiusKm of a point.
type GeoFilter struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
}

// Engine produces restaurant rankings and drill-down statistics, writing
// every distinct (kind, filter, page, limit) view through the cache with a
// short TTL. Cache failures degrade to recompute.
type Engine struct {
	restaurants repository.RestaurantRepository
	transfers   repository.TransferRepository
	cache       *cache.Store
	rankingTTL  time.Duration
	dashTTL     time.Duration
	log         *slog.Logger

	now func() time.Time
}

// NewEngine constructs a ranking Engine.
func NewEngine(
	restaurants repository.RestaurantRepository,
	transfers repository.TransferRepository,
	store *cache.Store,
	rankingTTL, dashboardTTL time.Duration,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		restaurants: restaurants,
		transfers:   transfers,
		cache:       store,
		rankingTTL:  rankingTTL,
		dashTTL:     dashboardTTL,
		log:         log,
		now:         time.Now,
	}
}

// WithClock overrides the engine's time source for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Overall ranks all restaurants by total coins received, optionally
// restricted to a radius.
func (e *Engine) Overall(ctx context.Context, page, limit int, geo *GeoFilter) (*domain.RankingPage, error) {
	return e.ranked(ctx, "overall", geoFilterTag(geo), page, limit, geo, nil)
}

// ByOrigin ranks restaurants by coins attributable to transfers from the
// given origin country.
func (e *Engine) ByOrigin(ctx context.Context, country string, page, limit int, geo *GeoFilter) (*domain.RankingPage, error) {
	if country == "" {
		return nil, apperrors.NewValidationError("origin country is required")
	}

	filter := country
	if geo != nil {
		filter = country + ":" + geoFilterTag(geo)
	}

	return e.ranked(ctx, "origin", filter, page, limit, geo, &country)
}

// Nearby ranks restaurants within radiusKm of the query point by total coins
// received.
func (e *Engine) Nearby(ctx context.Context, lat, lng, radiusKm float64, page, limit int) (*domain.RankingPage, error) {
	if radiusKm <= 0 {
		return nil, apperrors.NewValidationError("radius must be positive")
	}

	geo := &GeoFilter{Lat: lat, Lng: lng, RadiusKm: radiusKm}

	return e.ranked(ctx, "nearby", geoFilterTag(geo), page, limit, geo, nil)
}

// Refresh drops every ranking-prefixed cache entry, forcing the next queries
// to recompute from the ledger.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.cache.InvalidateScope(ctx, cache.ScopeRanking)
}

func (e *Engine) ranked(ctx context.Context, kind, filterTag string, page, limit int, geo *GeoFilter, originCountry *string) (*domain.RankingPage, error) {
	if page < 1 {
		return nil, apperrors.NewValidationError("page must be at least 1")
	}
	if limit < limitMin || limit > limitMax {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("limit must be between %d and %d", limitMin, limitMax))
	}

	start := time.Now()
	defer func() { metrics.RecordRankingQuery(kind, time.Since(start)) }()

	key := cache.RankingKey(kind, filterTag, page, limit)

	var cached domain.RankingPage
	if found, err := e.cache.Get(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	entries, err := e.buildEntries(ctx, geo, originCountry)
	if err != nil {
		return nil, err
	}

	result := paginate(entries, page, limit)

	if err := e.cache.Set(ctx, key, result, e.rankingTTL, cache.ScopeRanking); err != nil {
		e.log.Warn("ranking cache write failed", slog.String("key", key), slog.Any("error", err))
	}

	return result, nil
}

// buildEntries assembles the full filtered, ordered ranking. Filters run
// before pagination; ranks are positions within the filtered ordering.
func (e *Engine) buildEntries(ctx context.Context, geo *GeoFilter, originCountry *string) ([]domain.RankingEntry, error) {
	restaurants, err := e.restaurants.ListAll(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	var originTotals map[int64]int64
	if originCountry != nil {
		originTotals, err = e.transfers.CoinsByOrigin(ctx, *originCountry)
		if err != nil {
			return nil, apperrors.NewDatabaseError(err)
		}
	}

	entries := make([]domain.RankingEntry, 0, len(restaurants))
	for _, rest := range restaurants {
		coins := rest.TotalCoinsReceived
		if originTotals != nil {
			coins = originTotals[rest.ID]
			if coins == 0 {
				continue
			}
		}

		entry := domain.RankingEntry{
			RestaurantID: rest.ID,
			Name:         rest.Name,
			Address:      rest.Address,
			Lat:          rest.Lat,
			Lng:          rest.Lng,
			TotalCoins:   coins,
		}
		if originCountry != nil {
			entry.OriginCountry = *originCountry
		}

		if geo != nil {
			distance := roundKm(haversineKm(geo.Lat, geo.Lng, rest.Lat, rest.Lng))
			if distance > geo.RadiusKm {
				continue
			}
			entry.DistanceKm = &distance
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalCoins != entries[j].TotalCoins {
			return entries[i].TotalCoins > entries[j].TotalCoins
		}
		return entries[i].RestaurantID < entries[j].RestaurantID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries, nil
}

func paginate(entries []domain.RankingEntry, page, limit int) *domain.RankingPage {
	total := len(entries)
	totalPages := (total + limit - 1) / limit

	from := (page - 1) * limit
	if from > total {
		from = total
	}
	to := from + limit
	if to > total {
		to = total
	}

	return &domain.RankingPage{
		Entries:    entries[from:to],
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

func geoFilterTag(geo *GeoFilter) string {
	if geo == nil {
		return ""
	}

	return fmt.Sprintf("%.4f,%.4f,r%.1f", geo.Lat, geo.Lng, geo.RadiusKm)
}
