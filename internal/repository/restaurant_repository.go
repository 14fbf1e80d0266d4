package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smiletrip/smilecoin/internal/domain"
)

// RestaurantRepository defines persistence operations for restaurants.
type RestaurantRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Restaurant, error)
	Create(ctx context.Context, restaurant *domain.Restaurant) error
	ListAll(ctx context.Context) ([]domain.Restaurant, error)
	RankOf(ctx context.Context, id int64) (rank int, total int, err error)
}

type restaurantRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRestaurantRepository creates a new SQL-backed restaurant repository.
func NewRestaurantRepository(db *sql.DB, log *slog.Logger) RestaurantRepository {
	return &restaurantRepository{
		db:  db,
		log: log,
	}
}

func (r *restaurantRepository) FindByID(ctx context.Context, id int64) (*domain.Restaurant, error) {
	const query = `
		SELECT id, place_ref, name, address, lat, lng, wallet_address, total_coins_received, created_at
		FROM restaurants
		WHERE id = $1
	`

	var rest domain.Restaurant
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rest.ID,
		&rest.PlaceRef,
		&rest.Name,
		&rest.Address,
		&rest.Lat,
		&rest.Lng,
		&rest.WalletAddress,
		&rest.TotalCoinsReceived,
		&rest.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		if r.log != nil {
			r.log.Error("failed to fetch restaurant", slog.Int64("restaurant_id", id), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select restaurant by id: %w", err)
	}

	return &rest, nil
}

func (r *restaurantRepository) Create(ctx context.Context, restaurant *domain.Restaurant) error {
	const query = `
		INSERT INTO restaurants (place_ref, name, address, lat, lng, wallet_address, total_coins_received, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	if err := r.db.QueryRowContext(
		ctx,
		query,
		restaurant.PlaceRef,
		restaurant.Name,
		restaurant.Address,
		restaurant.Lat,
		restaurant.Lng,
		restaurant.WalletAddress,
		restaurant.TotalCoinsReceived,
		restaurant.CreatedAt,
	).Scan(&restaurant.ID); err != nil {
		if r.log != nil {
			r.log.Error("failed to create restaurant", slog.String("place_ref", restaurant.PlaceRef), slog.Any("error", err))
		}
		return fmt.Errorf("insert restaurant: %w", err)
	}

	return nil
}

// ListAll returns every restaurant ordered by received coins descending with
// the identifier as a deterministic tiebreak.
func (r *restaurantRepository) ListAll(ctx context.Context) ([]domain.Restaurant, error) {
	const query = `
		SELECT id, place_ref, name, address, lat, lng, wallet_address, total_coins_received, created_at
		FROM restaurants
		ORDER BY total_coins_received DESC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to list restaurants", slog.Any("error", err))
		}
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	var restaurants []domain.Restaurant
	for rows.Next() {
		var rest domain.Restaurant
		if err := rows.Scan(
			&rest.ID,
			&rest.PlaceRef,
			&rest.Name,
			&rest.Address,
			&rest.Lat,
			&rest.Lng,
			&rest.WalletAddress,
			&rest.TotalCoinsReceived,
			&rest.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		restaurants = append(restaurants, rest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurants: %w", err)
	}

	return restaurants, nil
}

// RankOf computes the 1-indexed rank of the restaurant among all restaurants
// ordered by received coins, with the id tiebreak matching ListAll.
func (r *restaurantRepository) RankOf(ctx context.Context, id int64) (int, int, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) + 1
			 FROM restaurants other, restaurants me
			 WHERE me.id = $1
			   AND (other.total_coins_received > me.total_coins_received
			        OR (other.total_coins_received = me.total_coins_received AND other.id < me.id))),
			(SELECT COUNT(*) FROM restaurants)
	`

	var rank, total int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&rank, &total); err != nil {
		if r.log != nil {
			r.log.Error("failed to compute restaurant rank", slog.Int64("restaurant_id", id), slog.Any("error", err))
		}
		return 0, 0, fmt.Errorf("rank restaurant: %w", err)
	}

	return rank, total, nil
}
