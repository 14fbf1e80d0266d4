package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/smiletrip/smilecoin/internal/domain"
)

// OriginTotal is one country's coin total for a restaurant.
type OriginTotal struct {
	Country string
	Coins   int64
}

// PeriodTotal is one time-bucket of a restaurant's received coins.
type PeriodTotal struct {
	PeriodStart time.Time
	Coins       int64
}

// RestaurantTotals aggregates a restaurant's ledger activity.
type RestaurantTotals struct {
	TotalCoins    int64
	TransferCount int64
	UniqueUsers   int64
}

// TransferRepository exposes read-side queries over the append-only ledger.
// Writes happen only inside the recorder's transaction, never through this
// repository, so quota reads here are advisory by construction.
type TransferRepository interface {
	SumForUserOnDay(ctx context.Context, userID int64, day time.Time) (int, error)
	SumForUserRestaurantOnDay(ctx context.Context, userID, restaurantID int64, day time.Time) (int, error)
	CoinsByOrigin(ctx context.Context, country string) (map[int64]int64, error)
	TotalsForRestaurant(ctx context.Context, restaurantID int64) (*RestaurantTotals, error)
	OriginBreakdown(ctx context.Context, restaurantID int64) ([]OriginTotal, error)
	SeriesForRestaurant(ctx context.Context, restaurantID int64, bucket string, since time.Time) ([]PeriodTotal, error)
}

type transferRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewTransferRepository creates a new SQL-backed transfer repository.
func NewTransferRepository(db *sql.DB, log *slog.Logger) TransferRepository {
	return &transferRepository{
		db:  db,
		log: log,
	}
}

// SumForUserOnDay totals the coins a user gave across all restaurants on the
// given calendar day.
func (r *transferRepository) SumForUserOnDay(ctx context.Context, userID int64, day time.Time) (int, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transfers
		WHERE user_id = $1
		  AND transfer_date >= $2
		  AND transfer_date < $3
	`

	start := domain.Day(day)
	end := start.AddDate(0, 0, 1)

	var sum int
	if err := r.db.QueryRowContext(ctx, query, userID, start, end).Scan(&sum); err != nil {
		if r.log != nil {
			r.log.Error("failed to sum daily transfers", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return 0, fmt.Errorf("sum transfers for user on day: %w", err)
	}

	return sum, nil
}

// SumForUserRestaurantOnDay totals the coins a user gave to one restaurant on
// the given calendar day.
func (r *transferRepository) SumForUserRestaurantOnDay(ctx context.Context, userID, restaurantID int64, day time.Time) (int, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transfers
		WHERE user_id = $1
		  AND restaurant_id = $2
		  AND transfer_date >= $3
		  AND transfer_date < $4
	`

	start := domain.Day(day)
	end := start.AddDate(0, 0, 1)

	var sum int
	if err := r.db.QueryRowContext(ctx, query, userID, restaurantID, start, end).Scan(&sum); err != nil {
		if r.log != nil {
			r.log.Error("failed to sum per-restaurant transfers",
				slog.Int64("user_id", userID),
				slog.Int64("restaurant_id", restaurantID),
				slog.Any("error", err),
			)
		}
		return 0, fmt.Errorf("sum transfers for user and restaurant on day: %w", err)
	}

	return sum, nil
}

// CoinsByOrigin returns the coin total per restaurant attributable to
// transfers whose denormalized origin country matches.
func (r *transferRepository) CoinsByOrigin(ctx context.Context, country string) (map[int64]int64, error) {
	const query = `
		SELECT restaurant_id, COALESCE(SUM(amount), 0)
		FROM transfers
		WHERE origin_country = $1
		GROUP BY restaurant_id
	`

	rows, err := r.db.QueryContext(ctx, query, country)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to aggregate coins by origin", slog.String("country", country), slog.Any("error", err))
		}
		return nil, fmt.Errorf("coins by origin: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]int64)
	for rows.Next() {
		var restaurantID, coins int64
		if err := rows.Scan(&restaurantID, &coins); err != nil {
			return nil, fmt.Errorf("scan origin total: %w", err)
		}
		totals[restaurantID] = coins
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate origin totals: %w", err)
	}

	return totals, nil
}

func (r *transferRepository) TotalsForRestaurant(ctx context.Context, restaurantID int64) (*RestaurantTotals, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0), COUNT(*), COUNT(DISTINCT user_id)
		FROM transfers
		WHERE restaurant_id = $1
	`

	var totals RestaurantTotals
	if err := r.db.QueryRowContext(ctx, query, restaurantID).Scan(
		&totals.TotalCoins,
		&totals.TransferCount,
		&totals.UniqueUsers,
	); err != nil {
		if r.log != nil {
			r.log.Error("failed to aggregate restaurant totals", slog.Int64("restaurant_id", restaurantID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("restaurant totals: %w", err)
	}

	return &totals, nil
}

// OriginBreakdown returns per-country coin totals for the restaurant, largest
// first with the country name as tiebreak.
func (r *transferRepository) OriginBreakdown(ctx context.Context, restaurantID int64) ([]OriginTotal, error) {
	const query = `
		SELECT origin_country, COALESCE(SUM(amount), 0) AS coins
		FROM transfers
		WHERE restaurant_id = $1
		GROUP BY origin_country
		ORDER BY coins DESC, origin_country ASC
	`

	rows, err := r.db.QueryContext(ctx, query, restaurantID)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to aggregate origin breakdown", slog.Int64("restaurant_id", restaurantID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("origin breakdown: %w", err)
	}
	defer rows.Close()

	var breakdown []OriginTotal
	for rows.Next() {
		var entry OriginTotal
		if err := rows.Scan(&entry.Country, &entry.Coins); err != nil {
			return nil, fmt.Errorf("scan origin breakdown: %w", err)
		}
		breakdown = append(breakdown, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate origin breakdown: %w", err)
	}

	return breakdown, nil
}

// SeriesForRestaurant buckets the restaurant's received coins by the given
// date_trunc unit ("day", "week" or "month") from since onward. Truncation
// happens on the UTC wall clock so period starts line up with the engine's
// zero-fill regardless of the session timezone.
func (r *transferRepository) SeriesForRestaurant(ctx context.Context, restaurantID int64, bucket string, since time.Time) ([]PeriodTotal, error) {
	const query = `
		SELECT date_trunc($2, transfer_date AT TIME ZONE 'UTC') AS period, COALESCE(SUM(amount), 0)
		FROM transfers
		WHERE restaurant_id = $1
		  AND transfer_date >= $3
		GROUP BY period
		ORDER BY period ASC
	`

	rows, err := r.db.QueryContext(ctx, query, restaurantID, bucket, since)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to aggregate trend series",
				slog.Int64("restaurant_id", restaurantID),
				slog.String("bucket", bucket),
				slog.Any("error", err),
			)
		}
		return nil, fmt.Errorf("trend series: %w", err)
	}
	defer rows.Close()

	var series []PeriodTotal
	for rows.Next() {
		var point PeriodTotal
		if err := rows.Scan(&point.PeriodStart, &point.Coins); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		series = append(series, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend series: %w", err)
	}

	return series, nil
}
