// Package registration onboards tourists and restaurants.
package registration

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/repository"
	"github.com/smiletrip/smilecoin/internal/usercache"
)

const profileTTL = time.Hour

// Service creates user and restaurant records and serves tourist profiles
// through a read-through cache.
type Service struct {
	users       repository.UserRepository
	restaurants repository.RestaurantRepository
	profiles    *usercache.Cache
	log         *slog.Logger

	now func() time.Time
}

// NewService constructs a registration Service. The profile cache may be
// nil; lookups then always hit the database.
func NewService(
	users repository.UserRepository,
	restaurants repository.RestaurantRepository,
	profiles *usercache.Cache,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		users:       users,
		restaurants: restaurants,
		profiles:    profiles,
		log:         log,
		now:         time.Now,
	}
}

// UserInput carries the fields required to register a tourist.
type UserInput struct {
	OriginCountry string
	ArrivalDate   time.Time
	DepartureDate time.Time
	WalletAddress string
}

// RestaurantInput carries the fields required to onboard a restaurant.
type RestaurantInput struct {
	PlaceRef      string
	Name          string
	Address       string
	Lat           float64
	Lng           float64
	WalletAddress string
}

// RegisterUser creates a tourist profile. The trip window is pinned to
// calendar days; arrival must precede departure.
func (s *Service) RegisterUser(ctx context.Context, input UserInput) (*domain.User, error) {
	arrival := domain.Day(input.ArrivalDate)
	departure := domain.Day(input.DepartureDate)

	if !arrival.Before(departure) {
		return nil, apperrors.NewValidationError("arrival date must precede departure date")
	}

	user := &domain.User{
		OriginCountry: input.OriginCountry,
		ArrivalDate:   arrival,
		DepartureDate: departure,
		WalletAddress: input.WalletAddress,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, mapCreateError(err, "wallet address already registered")
	}

	if err := s.profiles.Set(ctx, user, profileTTL); err != nil {
		s.log.Warn("profile cache write failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	s.log.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("origin_country", user.OriginCountry),
	)

	return user, nil
}

// RegisterRestaurant onboards a venue so it can receive coins.
func (s *Service) RegisterRestaurant(ctx context.Context, input RestaurantInput) (*domain.Restaurant, error) {
	if input.Lat < -90 || input.Lat > 90 || input.Lng < -180 || input.Lng > 180 {
		return nil, apperrors.NewValidationError("coordinates out of range")
	}

	restaurant := &domain.Restaurant{
		PlaceRef:      input.PlaceRef,
		Name:          input.Name,
		Address:       input.Address,
		Lat:           input.Lat,
		Lng:           input.Lng,
		WalletAddress: input.WalletAddress,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.restaurants.Create(ctx, restaurant); err != nil {
		return nil, mapCreateError(err, "restaurant already registered")
	}

	s.log.Info("restaurant registered",
		slog.Int64("restaurant_id", restaurant.ID),
		slog.String("name", restaurant.Name),
	)

	return restaurant, nil
}

// GetUser serves a tourist profile, preferring the cache. Profiles are
// immutable, so a stale-free TTL is all the consistency needed.
func (s *Service) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	if cached, err := s.profiles.Get(ctx, userID); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		s.log.Warn("profile cache read failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", userID)
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	if err := s.profiles.Set(ctx, user, profileTTL); err != nil {
		s.log.Warn("profile cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	return user, nil
}

func mapCreateError(err error, duplicateMsg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperrors.NewConflictError(duplicateMsg, err)
	}

	return apperrors.NewDatabaseError(err)
}
