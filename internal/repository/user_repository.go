package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smiletrip/smilecoin/internal/domain"
)

// UserRepository defines persistence operations for tourists.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByWallet(ctx context.Context, wallet string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
}

type userRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(db *sql.DB, log *slog.Logger) UserRepository {
	return &userRepository{
		db:  db,
		log: log,
	}
}

// FindByID retrieves a user from the database by identifier. A missing row
// is reported as sql.ErrNoRows for the service layer to map.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `
		SELECT id, origin_country, arrival_date, departure_date, wallet_address, created_at
		FROM users
		WHERE id = $1
	`

	return r.scanUser(r.db.QueryRowContext(ctx, query, id), "id", id)
}

// FindByWallet retrieves a user by their unique wallet address.
func (r *userRepository) FindByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	const query = `
		SELECT id, origin_country, arrival_date, departure_date, wallet_address, created_at
		FROM users
		WHERE wallet_address = $1
	`

	return r.scanUser(r.db.QueryRowContext(ctx, query, wallet), "wallet", wallet)
}

// Create persists a new user record and fills in the generated identifier.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
		INSERT INTO users (origin_country, arrival_date, departure_date, wallet_address, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.OriginCountry,
		user.ArrivalDate,
		user.DepartureDate,
		user.WalletAddress,
		user.CreatedAt,
	).Scan(&user.ID); err != nil {
		if r.log != nil {
			r.log.Error("failed to create user", slog.String("wallet_address", user.WalletAddress), slog.Any("error", err))
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *userRepository) scanUser(row *sql.Row, field string, value any) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.OriginCountry,
		&user.ArrivalDate,
		&user.DepartureDate,
		&user.WalletAddress,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		if r.log != nil {
			r.log.Error("failed to fetch user", slog.String("field", field), slog.Any("value", value), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select user by %s: %w", field, err)
	}

	return &user, nil
}
